// Package mqtt provides MQTT client connectivity for the enteliweb service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Command subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The service publishes what it learns from the enteliWEB gateway onto the
// site's MQTT bus and listens there for on-demand job commands:
//
//	enteliWEB gateway ↔ enteliweb service ↔ MQTT broker ↔ dashboards, SCADA
//
// Topic layout is documented on TopicPrefix.
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) outside a trusted network
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.PropertyState("Main", "100", "AV1", "present-value")
//	err = client.PublishRetained(topic, []byte(`{"value":"21.5"}`))
package mqtt

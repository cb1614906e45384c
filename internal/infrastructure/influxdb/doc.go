// Package influxdb provides InfluxDB connectivity for the enteliweb service.
//
// It wraps the official influxdb-client-go v2 library for two kinds of
// time-series data:
//   - bacnet_property: numeric property values sampled from devices
//   - task_run: duration and poll attempts of finished gateway workflows
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePropertySample("Main", "100", "AV1", "present-value", 21.5, time.Now())
//
// # Error Handling
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; batch failures are reported through SetOnError.
// Connection and health check errors are returned directly.
package influxdb

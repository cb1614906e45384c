// Package telemetry publishes what the service learns from the enteliWEB
// gateway onto MQTT and InfluxDB.
//
// A Telemetry value is a gateway.TaskObserver: every AsyncTask transition
// is published as a TaskMessage on enteliweb/task/{kind}/{run_id}, and each
// finished run is written to InfluxDB as a task_run point. PublishSample
// publishes sampled property values retained on
// enteliweb/state/{site}/{device}/{object}/{property} and writes the
// numeric ones as bacnet_property points.
//
// HealthReporter publishes a retained service health message at a fixed
// interval, degraded while the gateway session is down.
//
// Publishing is best effort: failures are counted and logged, never
// returned to the workflow that caused them.
package telemetry

// Package jobs runs the service's scheduled gateway work.
//
// Two jobs are supported:
//   - backup: SaveDatabase for each configured device into a local
//     directory, every jobs.backup.interval minutes
//   - sample: ReadMany of the configured properties of each configured
//     object, every jobs.sample.interval seconds, handed to a Sampler
//     (telemetry) for MQTT and InfluxDB
//
// Both jobs share one gateway session. Operations are serialized because a
// gateway.Session is not safe for concurrent use. The Runner owns the
// re-login policy: after an operation fails with ErrNotAuthenticated, or
// with ErrVendor or ErrHTTP twice in a row, the session is dropped and the
// next operation logs in again first.
//
// Jobs can also be run on demand with Trigger, which the service wires to
// the enteliweb/command/{backup|sample} MQTT topics.
package jobs

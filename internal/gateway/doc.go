// Package gateway is a client for the enteliWEB REST gateway.
//
// The gateway exposes a BACnet device network as a four-level hierarchy:
//
//	site → device → object → property
//
// Every call made by this package goes through one response classifier so
// that the gateway's mixed success signalling (HTTP status codes, embedded
// JSON error envelopes and the 203 "accepted" sentinel) reaches callers as a
// single contract: an operation either returns nil or a typed error.
//
// # Sessions
//
// A Session is created by Login and passed by reference into every
// operation. The client holds no session state of its own, so distinct
// Sessions may be used from distinct goroutines. A single Session is not
// safe for concurrent use.
//
//	c := gateway.New(gateway.Options{})
//	sess, err := c.Login(ctx, "10.0.0.5", "admin", "secret")
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
// Sessions are never renewed. When an operation fails with
// ErrNotAuthenticated, or repeatedly with ErrVendor or ErrHTTP, the caller
// logs in again.
//
// # Operations
//
//   - Directory: ListSites, ListDevices, DescribeDevices, ListObjects
//   - Objects: CreateObject, DeleteObject, WriteProperty
//   - Batch: WriteMany, ReadMany (one round trip through /api/.multi)
//   - Workflows: SaveDatabase, LoadDatabase, CopyObject, LoadObject,
//     SaveObjects, LoadProgram
//
// Workflows are fixed sequences of blocking HTTP calls. A failed phase stops
// the workflow; nothing is rolled back. Poll phases follow a PollPolicy and
// sleep through an injectable Sleeper so tests never wait in real time.
package gateway

// Package testing provides test utilities for courier.
//
// It offers helpers for running an embedded NATS server with JetStream so
// resequencer, router and worker code can be exercised end to end without
// external infrastructure. The package name follows the net/http/httptest
// convention of shipping test helpers alongside the library.
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateStream: Work-queue stream for fragment and work subjects
//   - CreateJetStreamKV: KV bucket for the completed-groups ledger
//   - NewTestLogger: types.Logger that writes through t.Logf
//
// Example usage:
//
//	import (
//	    "testing"
//	    couriertest "github.com/arloliu/courier/testing"
//	)
//
//	func TestPipeline(t *testing.T) {
//	    _, nc := couriertest.StartEmbeddedNATS(t)
//	    couriertest.CreateStream(t, nc, "COURIER", "courier.>")
//	}
package testing

// Package courier provides message resequencing and readiness-based work
// routing on top of a message broker.
//
// A Resequencer consumes fragments of larger payloads that arrive out of
// order, possibly interleaved across groups, and emits each payload once all
// of its fragments arrived. A Router forwards work items to whichever worker
// most recently declared itself ready, so a slow worker never accumulates a
// queue while a fast one idles.
//
// # Quick Start
//
// Reassembling fragments published on the inbound subject:
//
//	import "github.com/arloliu/courier"
//
//	cfg := courier.DefaultConfig()
//	bus, err := broker.NewFromConn(nc, cfg.BrokerConfig(logger, nil))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sink := courier.NewPublishSink(bus, cfg.Resequencer.OutputSubject)
//
//	rs, err := courier.NewResequencer(&cfg, bus, sink)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := rs.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rs.Stop(context.Background())
//
// # Fragment Protocol
//
// Every fragment carries three headers:
//
//	group_id   string   groups fragments of one payload
//	position   integer  1-based position within the group
//	total      integer  number of fragments in the group
//
// Fragments violating the protocol (mismatched total, position outside
// [1, total], duplicate position, total below 1, missing headers) are
// published to the dead-letter subject with reject_reason, reject_detail and
// original_subject headers added. A Fragmenter produces conforming
// fragments.
//
// # Readiness Routing
//
// Workers publish their queue name to the ready subject (payload and
// reply_to header). The router keeps ready workers on a stack and work items
// in a FIFO backlog:
//
//	Queued → Dispatched → Acknowledged
//	                    ↘ Requeued → Queued
//
// A worker that signals ready again acknowledges its previous item. Items
// whose publish fails, or whose worker stays silent past DispatchTimeout,
// return to the head of the backlog. See the worker package for a ready-made
// worker loop.
//
// # Delivery Guarantees
//
// Fragments are acknowledged only after they are durably reflected in the
// fragment store, dead-lettered, or the completed payload was handed to the
// sink. Sink failures park the payload for retry instead of losing it.
// Completed group ids are remembered for Config.Ledger.Retention so a
// redelivered fragment of a finished group is dead-lettered rather than
// starting a phantom group.
//
// See the examples/ directory for complete working programs.
package courier

package courier

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/courier/internal/ledger"
)

// NewMemoryLedger returns an in-process completed-groups ledger that
// remembers ids for retention. A retention <= 0 disables the ledger.
func NewMemoryLedger(retention time.Duration) CompletionLedger {
	return ledger.NewMemory(retention, time.Now)
}

// NewKVLedger returns a completed-groups ledger backed by a JetStream KV
// bucket whose TTL equals retention, so several resequencer instances
// consuming the same subject share one view of completed groups.
//
// The bucket is created if missing.
//
// Example:
//
//	l, err := courier.NewKVLedger(ctx, js, cfg.Ledger.Bucket, cfg.Ledger.Retention)
//	if err != nil {
//	    return err
//	}
//	rs, err := courier.NewResequencer(&cfg, bus, sink, courier.WithLedger(l))
func NewKVLedger(ctx context.Context, js jetstream.JetStream, bucket string, retention time.Duration) (CompletionLedger, error) {
	l, err := ledger.NewKV(ctx, js, bucket, retention)
	if err != nil {
		return nil, err
	}

	return l, nil
}

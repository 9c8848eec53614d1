package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/courier/internal/kvutil"
	"github.com/arloliu/courier/internal/natsutil"
	"github.com/arloliu/courier/types"
)

// KV is a CompletionLedger backed by a JetStream KeyValue bucket.
//
// The bucket TTL equals the retention window, so expiry happens server-side
// and the ledger is shared by every resequencer instance using the bucket.
type KV struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

var _ types.CompletionLedger = (*KV)(nil)

// NewKV creates (or opens) bucket with TTL = retention and returns a ledger on it.
//
// Parameters:
//   - ctx: Context for bucket provisioning
//   - js: JetStream context
//   - bucket: KV bucket name
//   - retention: How long completed ids are remembered (must be > 0)
//
// Returns:
//   - *KV: Ledger instance
//   - error: Provisioning error, wrapped in ErrBus on connectivity failures
func NewKV(ctx context.Context, js jetstream.JetStream, bucket string, retention time.Duration) (*KV, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("%w: ledger retention must be > 0 for a KV ledger", types.ErrInvalidConfig)
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "courier completed fragment groups",
		History:     1,
		TTL:         retention,
	}, 3)
	if err != nil {
		return nil, natsutil.WrapBus(err)
	}

	return NewKVFromBucket(kv), nil
}

// NewKVFromBucket wraps an existing bucket. Expiry relies on the bucket TTL.
func NewKVFromBucket(kv jetstream.KeyValue) *KV {
	return &KV{kv: kv, now: time.Now}
}

// Seen reports whether groupID is present in the bucket.
func (l *KV) Seen(ctx context.Context, groupID string) (bool, error) {
	_, err := l.kv.Get(ctx, encodeKey(groupID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}

	return false, natsutil.WrapBus(fmt.Errorf("ledger lookup %s: %w", groupID, err))
}

// Record stores groupID with the current time.
func (l *KV) Record(ctx context.Context, groupID string) error {
	stamp := strconv.FormatInt(l.now().UnixMilli(), 10)
	if _, err := l.kv.Put(ctx, encodeKey(groupID), []byte(stamp)); err != nil {
		return natsutil.WrapBus(fmt.Errorf("ledger record %s: %w", groupID, err))
	}

	return nil
}

// Prune is a no-op: the bucket TTL expires entries.
func (l *KV) Prune(context.Context) int {
	return 0
}

// encodeKey maps arbitrary group ids onto the KV key alphabet.
func encodeKey(groupID string) string {
	return "g." + base64.RawURLEncoding.EncodeToString([]byte(groupID))
}

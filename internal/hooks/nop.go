// Package hooks provides default hook implementations.
package hooks

import (
	"context"

	"github.com/arloliu/courier/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, string, int) error                = (*NopHooks)(nil).OnGroupCompleted
	_ func(context.Context, string, types.RejectReason) error = (*NopHooks)(nil).OnDeadLetter
	_ func(context.Context, types.WorkItem, string) error     = (*NopHooks)(nil).OnDispatch
	_ func(context.Context, error) error                      = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnGroupCompleted: h.OnGroupCompleted,
		OnDeadLetter:     h.OnDeadLetter,
		OnDispatch:       h.OnDispatch,
		OnError:          h.OnError,
	}
}

// Merge returns a Hooks value where every nil callback of custom is
// replaced by its no-op counterpart.
func Merge(custom *types.Hooks) types.Hooks {
	out := NewNop()
	if custom == nil {
		return out
	}
	if custom.OnGroupCompleted != nil {
		out.OnGroupCompleted = custom.OnGroupCompleted
	}
	if custom.OnDeadLetter != nil {
		out.OnDeadLetter = custom.OnDeadLetter
	}
	if custom.OnDispatch != nil {
		out.OnDispatch = custom.OnDispatch
	}
	if custom.OnError != nil {
		out.OnError = custom.OnError
	}

	return out
}

// OnGroupCompleted is a no-op implementation.
func (h *NopHooks) OnGroupCompleted(ctx context.Context, groupID string, size int) error {
	return nil
}

// OnDeadLetter is a no-op implementation.
func (h *NopHooks) OnDeadLetter(ctx context.Context, subject string, reason types.RejectReason) error {
	return nil
}

// OnDispatch is a no-op implementation.
func (h *NopHooks) OnDispatch(ctx context.Context, item types.WorkItem, workerID string) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}

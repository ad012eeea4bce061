package engine

import (
	"context"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
)

// Event names one lifecycle hook.
type Event string

const (
	EventBeforeInsert          Event = "before_insert"
	EventAfterInsert           Event = "after_insert"
	EventBeforeSave            Event = "before_save"
	EventAfterSave             Event = "after_save"
	EventBeforeSaveAfterSubmit Event = "before_save_after_submit"
	EventAfterSaveAfterSubmit  Event = "after_save_after_submit"
	EventBeforeChange          Event = "before_change"
	EventAfterChange           Event = "after_change"
	EventBeforeDelete          Event = "before_delete"
	EventAfterDelete           Event = "after_delete"
	EventBeforeSubmit          Event = "before_submit"
	EventAfterSubmit           Event = "after_submit"
	EventBeforeCancel          Event = "before_cancel"
	EventAfterCancel           Event = "after_cancel"
)

// Payload carries the document state around a lifecycle event.
type Payload struct {
	Doctype string
	Event   Event
	Old     map[string]any
	Doc     map[string]any
	Input   map[string]any
}

// Callback is one registered lifecycle hook. A before-hook error aborts the
// operation.
type Callback func(ctx context.Context, p Payload) error

// Notifier pushes lifecycle events to realtime subscribers. Delivery is an
// external concern; failures are logged, never propagated.
type Notifier interface {
	Trigger(ctx context.Context, doctype string, event Event, p Payload) error
}

// Registry maps doctype and event to registered callbacks. It is built once
// at startup and passed to the engine by reference; any module can
// subscribe before the engine starts serving.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]map[Event][]Callback
}

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[string]map[Event][]Callback)}
}

// On registers a callback for a doctype's event.
func (r *Registry) On(doctype string, event Event, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.callbacks[doctype] == nil {
		r.callbacks[doctype] = make(map[Event][]Callback)
	}
	r.callbacks[doctype][event] = append(r.callbacks[doctype][event], cb)
}

func (r *Registry) fire(ctx context.Context, p Payload) error {
	r.mu.RLock()
	cbs := r.callbacks[p.Doctype][p.Event]
	r.mu.RUnlock()
	for _, cb := range cbs {
		if err := cb(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// fire runs registered callbacks and then the notifier. Callback errors
// propagate; notifier errors are logged only.
func (e *Engine) fire(ctx context.Context, p Payload) error {
	if err := e.registry.fire(ctx, p); err != nil {
		return err
	}
	if e.notifier != nil {
		if err := e.notifier.Trigger(ctx, p.Doctype, p.Event, p); err != nil {
			logx.WithContext(ctx).Errorf("notify %s %s: %v", p.Doctype, p.Event, err)
		}
	}
	return nil
}

// FileStore reads, writes and deletes stored blobs for File fields. The
// engine orchestrates when blobs are deleted; how bytes are stored is
// external.
type FileStore interface {
	Read(ctx context.Context, doctype, id, field string) ([]byte, error)
	Write(ctx context.Context, doctype, id, field string, data []byte) error
	Delete(ctx context.Context, doctype, id, field string) error
}

package recordstore

import (
	"sync"
	"sync/atomic"

	"github.com/kart-io/logger"
)

// Holder publishes the current Store. Readers always see a fully loaded store;
// a reload builds a new one and swaps the pointer.
type Holder struct {
	cfg     Config
	current atomic.Pointer[Store]

	mu        sync.Mutex
	listeners []func(error)
}

// NewHolder wraps an already loaded store.
func NewHolder(cfg Config, initial *Store) *Holder {
	h := &Holder{cfg: cfg}
	if initial == nil {
		initial = New(cfg)
	}
	h.current.Store(initial)
	return h
}

// Current returns the published store.
func (h *Holder) Current() *Store {
	return h.current.Load()
}

// OnReload registers fn to be called after every reload attempt with its result.
func (h *Holder) OnReload(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload builds a new store from disk and publishes it. On error the previous
// store stays in place.
func (h *Holder) Reload() error {
	err := h.reload()

	h.mu.Lock()
	listeners := append([]func(error){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(err)
	}
	return err
}

func (h *Holder) reload() error {
	next := New(h.cfg)
	if err := next.Load(); err != nil {
		logger.Errorw("record reload failed, keeping previous store", "error", err.Error())
		return err
	}
	prev := h.current.Swap(next)
	logger.Infow("record store swapped",
		"records", next.Len(),
		"previous_records", prev.Len(),
		"namespaces", len(next.Namespaces()),
	)
	return nil
}

// Text returns the stored text for id from the published store.
func (h *Holder) Text(id string) (string, bool) {
	return h.Current().Text(id)
}

// Metadata returns the normalized metadata for id from the published store.
func (h *Holder) Metadata(id string) (Metadata, bool) {
	return h.Current().Metadata(id)
}

// Namespaces returns the namespace registry of the published store.
func (h *Holder) Namespaces() []string {
	return h.Current().Namespaces()
}

// Len returns the record count of the published store.
func (h *Holder) Len() int {
	return h.Current().Len()
}

// Records re-reads every record of the current configuration.
func (h *Holder) Records() ([]Record, error) {
	return h.Current().Records()
}

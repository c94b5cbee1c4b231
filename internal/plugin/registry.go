// SPDX-License-Identifier: MIT
package plugin

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"vizpipe/internal/analysis"
	"vizpipe/internal/log"
	"vizpipe/internal/metrics"
)

var (
	ErrDuplicateIdentifier = errors.New("duplicate plugin identifier")
	ErrUnknownPlugin       = errors.New("unknown plugin")
	ErrInvalidPlugin       = errors.New("invalid plugin")
)

// parked is set in entry.state while the entry must not receive frames.
// The remaining bits count Render calls in flight.
const parked int64 = 1 << 62

type entry struct {
	desc   Descriptor
	plugin Plugin
	state  atomic.Int64
}

func newEntry(desc Descriptor, p Plugin) *entry {
	e := &entry{desc: desc, plugin: p}
	e.state.Store(parked)
	return e
}

// acquire registers a Render in flight unless the entry is parked.
func (e *entry) acquire() bool {
	for {
		s := e.state.Load()
		if s&parked != 0 {
			return false
		}
		if e.state.CompareAndSwap(s, s+1) {
			return true
		}
	}
}

func (e *entry) release() {
	e.state.Add(-1)
}

func (e *entry) park() {
	for {
		s := e.state.Load()
		if s&parked != 0 || e.state.CompareAndSwap(s, s|parked) {
			return
		}
	}
}

func (e *entry) unpark() {
	for {
		s := e.state.Load()
		if s&parked == 0 || e.state.CompareAndSwap(s, s&^parked) {
			return
		}
	}
}

// drain waits until no Render is in flight. Callers park first, so the
// wait is bounded by the duration of one Render.
func (e *entry) drain() {
	for e.state.Load()&^parked != 0 {
		runtime.Gosched()
	}
}

// Registry tracks the registered plugins and which one is active. Create
// one per application and pass it to whoever needs activation control.
//
// Control methods (Register, Unregister, Activate, Deactivate) wait for
// in-flight Render calls and must not be called from inside Render.
type Registry struct {
	mu      sync.Mutex // serializes the control path
	entries map[string]*entry
	order   []string // registration order for List

	active atomic.Pointer[entry]
}

// NewRegistry creates an empty registry with no active plugin.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a plugin under desc.ID.
func (r *Registry) Register(desc Descriptor, p Plugin) error {
	if desc.ID == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidPlugin)
	}
	if p == nil {
		return fmt.Errorf("%w: nil plugin for %q", ErrInvalidPlugin, desc.ID)
	}
	if desc.DisplayName == "" {
		desc.DisplayName = desc.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateIdentifier, desc.ID)
	}
	r.entries[desc.ID] = newEntry(desc, p)
	r.order = append(r.order, desc.ID)
	metrics.PluginActive.WithLabelValues(desc.ID).Set(0)

	log.Debugf("Plugin: Registered %q (%s)", desc.ID, desc.DisplayName)
	return nil
}

// Unregister removes a plugin. If it was active, activation is cleared in
// the same step. When Unregister returns, no Render is running on the
// removed plugin and none will start.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, id)
	}

	wasActive := r.active.CompareAndSwap(e, nil)
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	e.park()
	e.drain()
	if wasActive {
		deactivated(e)
	}
	metrics.PluginActive.DeleteLabelValues(id)

	log.Debugf("Plugin: Unregistered %q (was active: %t)", id, wasActive)
	return nil
}

// Activate makes id the active plugin. An unknown id leaves the current
// activation unchanged. The switch is visible to the next Dispatch; a
// Render already running on the previous plugin completes first, and only
// then does that plugin receive its Deactivated hook.
func (r *Registry) Activate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, id)
	}

	prev := r.active.Load()
	if prev == next {
		return nil
	}

	if lc, ok := next.plugin.(Lifecycle); ok {
		lc.Activated()
	}
	next.unpark()
	r.active.Store(next)

	if prev != nil {
		prev.park()
		prev.drain()
		deactivated(prev)
	}

	metrics.PluginActive.WithLabelValues(id).Set(1)
	metrics.Activations.Inc()
	log.Infof("Plugin: Activated %q", id)
	return nil
}

// Deactivate clears the active plugin, if any.
func (r *Registry) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.active.Swap(nil)
	if prev == nil {
		return
	}
	prev.park()
	prev.drain()
	deactivated(prev)
	log.Infof("Plugin: Deactivated %q", prev.desc.ID)
}

func deactivated(e *entry) {
	metrics.PluginActive.WithLabelValues(e.desc.ID).Set(0)
	if lc, ok := e.plugin.(Lifecycle); ok {
		lc.Deactivated()
	}
}

// Dispatch delivers frame to the active plugin and reports whether it did.
// With no active plugin it is a no-op. It never blocks on the control path:
// a plugin that is being switched out or removed is skipped. A panic in
// Render is recovered and counted so one faulty plugin cannot stop the
// stream.
func (r *Registry) Dispatch(frame analysis.Frame) bool {
	e := r.active.Load()
	if e == nil {
		metrics.DispatchNoActive.Inc()
		return false
	}
	if !e.acquire() {
		metrics.DispatchParked.Inc()
		return false
	}
	defer r.finish(e)

	e.plugin.Render(frame)
	metrics.DispatchDelivered.Inc()
	return true
}

func (r *Registry) finish(e *entry) {
	if rec := recover(); rec != nil {
		metrics.PluginPanics.WithLabelValues(e.desc.ID).Inc()
		log.Errorf("Plugin: Render panicked in %q: %v", e.desc.ID, rec)
	}
	e.release()
}

// Configure forwards a setting to the plugin without validating it.
func (r *Registry) Configure(id, key string, value any) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, id)
	}
	e.plugin.Configure(key, value)
	return nil
}

// List returns the registered descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Descriptor, len(r.order))
	for i, id := range r.order {
		result[i] = r.entries[id].desc
	}
	return result
}

// Active returns the descriptor of the active plugin.
func (r *Registry) Active() (Descriptor, bool) {
	e := r.active.Load()
	if e == nil {
		return Descriptor{}, false
	}
	return e.desc, true
}

// ActivePlugin returns the active plugin instance, or nil.
func (r *Registry) ActivePlugin() Plugin {
	e := r.active.Load()
	if e == nil {
		return nil
	}
	return e.plugin
}

// Lookup returns the plugin registered under id.
func (r *Registry) Lookup(id string) (Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

package analysis

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultPanelIdleTTL closes panels nobody touched for this long.
const DefaultPanelIdleTTL = 30 * time.Minute

// Factory builds the orchestrator of a newly opened panel.
type Factory func(panelID string) *Orchestrator

// Registry keeps one orchestrator per UI panel. Idle panels expire and are closed.
type Registry struct {
	mu     sync.Mutex
	panels *gocache.Cache
	build  Factory
}

func NewRegistry(idleTTL time.Duration, build Factory) *Registry {
	return newRegistry(idleTTL, idleTTL/2, build)
}

// newRegistry lets tests run without the janitor; cleanup <= 0 disables it.
func newRegistry(idleTTL, cleanup time.Duration, build Factory) *Registry {
	var c *gocache.Cache
	if idleTTL <= 0 {
		c = gocache.New(gocache.NoExpiration, 0)
	} else {
		c = gocache.New(idleTTL, cleanup)
	}
	c.OnEvicted(func(_ string, v interface{}) {
		if o, ok := v.(*Orchestrator); ok {
			o.Close()
		}
	})
	return &Registry{panels: c, build: build}
}

// Open returns the panel's orchestrator, creating it on first use.
func (r *Registry) Open(panelID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.lookup(panelID); ok {
		return o
	}
	// an expired panel the janitor has not reached yet is closed here; Set alone would overwrite it without closing
	r.panels.Delete(panelID)
	o := r.build(panelID)
	r.panels.Set(panelID, o, gocache.DefaultExpiration)
	return o
}

// Get returns an existing panel and refreshes its idle timer.
func (r *Registry) Get(panelID string) (*Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(panelID)
}

func (r *Registry) lookup(panelID string) (*Orchestrator, bool) {
	v, found := r.panels.Get(panelID)
	if !found {
		return nil, false
	}
	o := v.(*Orchestrator)
	r.panels.Set(panelID, o, gocache.DefaultExpiration)
	return o, true
}

// Remove closes and forgets a panel.
func (r *Registry) Remove(panelID string) {
	r.panels.Delete(panelID)
}

func (r *Registry) Len() int {
	return r.panels.ItemCount()
}

// Shutdown closes every panel and waits for their loads to return.
func (r *Registry) Shutdown() {
	var open []*Orchestrator
	for id, item := range r.panels.Items() {
		if o, ok := item.Object.(*Orchestrator); ok {
			open = append(open, o)
		}
		r.panels.Delete(id)
	}
	for _, o := range open {
		o.Wait()
	}
}

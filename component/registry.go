package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/streamkit/logger"
)

// stopGrace bounds how long any single component gets to stop. The hub
// draining a few hundred streams fits comfortably; a wedged component
// does not get to stall the whole shutdown.
const stopGrace = 10 * time.Second

// Registry owns component startup and shutdown order. Registration
// order is dependency order: the redis client before the hub that
// counts tabs through it, the hub before the server that streams from
// it. StartAll walks forward, StopAll walks backward.
type Registry struct {
	mu         sync.RWMutex
	components []Component
	byName     map[string]Component

	// started is a watermark: components[:started] are up. StartAll
	// advances it per success so a failed boot stops exactly what ran.
	started int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Component)}
}

// Register appends a component. Names must be unique; they key health
// reporting and Get lookups.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %q already registered", name)
	}
	r.components = append(r.components, c)
	r.byName[name] = c

	logger.Debug("Component registered", map[string]interface{}{
		"component": name,
	})
	return nil
}

// StartAll brings components up in registration order, failing fast:
// the first error aborts the walk and is returned, leaving earlier
// components running for StopAll to unwind.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger.Info("Starting components", map[string]interface{}{
		"count": len(r.components),
	})
	for _, c := range r.components[r.started:] {
		if err := c.Start(ctx); err != nil {
			logger.Error("Component start failed", map[string]interface{}{
				"component": c.Name(),
				"error":     err.Error(),
			})
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		r.started++
		logger.Debug("Component started", map[string]interface{}{
			"component": c.Name(),
		})
	}
	return nil
}

// StopAll unwinds started components in reverse registration order.
// Every started component gets its stop attempt and its own grace
// window; errors are collected, not short-circuited.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for r.started > 0 {
		r.started--
		c := r.components[r.started]

		stopCtx, cancel := context.WithTimeout(ctx, stopGrace)
		err := c.Stop(stopCtx)
		cancel()

		if err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", c.Name(), err))
			logger.Error("Component stop failed", map[string]interface{}{
				"component": c.Name(),
				"error":     err.Error(),
			})
			continue
		}
		logger.Debug("Component stopped", map[string]interface{}{
			"component": c.Name(),
		})
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// HealthAll polls every registered component, started or not, in
// registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c.Health(ctx))
	}
	return out
}

// Get returns the component registered under name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns the components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, len(r.components))
	copy(out, r.components)
	return out
}

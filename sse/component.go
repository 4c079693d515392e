package sse

import (
	"context"
	"fmt"

	"github.com/kbukum/streamkit/component"
)

// HubComponent adapts the hub to the component lifecycle so the
// bootstrap can start the sweep loop and drain connections on shutdown.
type HubComponent struct {
	hub *Hub
}

var _ component.Component = (*HubComponent)(nil)

// NewHubComponent wraps the hub for lifecycle management.
func NewHubComponent(hub *Hub) *HubComponent {
	return &HubComponent{hub: hub}
}

// Name returns the component name.
func (c *HubComponent) Name() string { return "sse-hub" }

// Start launches the sweep loop.
func (c *HubComponent) Start(ctx context.Context) error {
	go c.hub.Run()
	return nil
}

// Stop terminates the sweep loop and closes every open connection.
func (c *HubComponent) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.hub.Stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sse hub stop: %w", ctx.Err())
	}
}

// Health reports the hub as healthy with a connection count.
func (c *HubComponent) Health(ctx context.Context) component.Health {
	st := c.hub.Stats()
	return component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
		Message: fmt.Sprintf("%d connections across %d sessions",
			st.Connections, st.Sessions),
	}
}

// Describe returns a human-readable component description.
func (c *HubComponent) Describe() component.Description {
	return component.Description{
		Name:    "SSE Hub",
		Type:    "sse",
		Details: fmt.Sprintf("sweep every %s", c.hub.Config().SweepInterval),
	}
}

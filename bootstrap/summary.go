package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/logger"
)

// Summary tracks and displays the application bootstrap outcome: which
// components came up, their health, and how long startup took.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
}

// NewSummary creates a bootstrap summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records how long startup took.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// Display logs the startup summary: one line per component with its
// description and health, then a closing banner.
func (s *Summary) Display(registry *component.Registry, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, c := range registry.All() {
		health := c.Health(ctx)

		fields := map[string]interface{}{
			"component": c.Name(),
			"status":    string(health.Status),
		}
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			if desc.Details != "" {
				fields["details"] = desc.Details
			}
			if desc.Port != 0 {
				fields["port"] = desc.Port
			}
		}
		if health.Message != "" {
			fields["message"] = health.Message
		}
		log.Info("Component up", fields)
	}

	log.Info(strings.TrimSpace(fmt.Sprintf("%s %s started in %s",
		s.serviceName, s.version, s.startupDuration.Round(time.Millisecond))))
}

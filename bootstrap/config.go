package bootstrap

import (
	"github.com/kbukum/streamkit/config"
)

// Config is the interface constraint for application configuration
// types. Any struct that embeds config.ServiceConfig (value embedding)
// automatically satisfies this interface via promoted methods.
//
// Example:
//
//	type AppConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    SSE sse.Config `yaml:"sse" mapstructure:"sse"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}

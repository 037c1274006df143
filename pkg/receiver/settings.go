package receiver

import (
	"time"

	"github.com/metaworking/meshsync/pkg/scene"
)

type Settings struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`
	// FsmPath overrides the built-in connection state machine.
	FsmPath string `yaml:"fsm"`
	// HelloTimeout closes connections that have not said hello in time. Zero
	// disables the check.
	HelloTimeout time.Duration `yaml:"hello_timeout"`
	// MaxFsmDisallowed closes a connection after that many messages not
	// allowed in its state. Zero disables the limit.
	MaxFsmDisallowed int      `yaml:"max_fsm_disallowed"`
	TrustedOrigins   []string `yaml:"trusted_origins"`
	MetricsAddress   string   `yaml:"metrics_address"`
	// ConvertTo rewrites received scenes into this coordinate system and
	// unit scale before they are applied. Nil keeps scenes as sent.
	ConvertTo *scene.Handedness `yaml:"convert_to"`
}

func DefaultSettings() Settings {
	return Settings{
		Network:          "tcp",
		Address:          ":8080",
		HelloTimeout:     5 * time.Second,
		MaxFsmDisallowed: 10,
		MetricsAddress:   ":8081",
	}
}

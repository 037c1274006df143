// Package config assembles the settings of the meshsync command from
// defaults, a YAML file and command-line flags.
package config

import (
	"fmt"

	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/meshsyncpb"
	"github.com/metaworking/meshsync/pkg/receiver"
	"github.com/metaworking/meshsync/pkg/transport"
	"go.uber.org/multierr"
)

type ProfileSettings struct {
	// Mode is one of cpu, mem, block, mutex, goroutine or trace. Empty
	// disables profiling.
	Mode string `yaml:"mode"`
	Path string `yaml:"path"`
}

type Config struct {
	Sync     meshsync.Settings    `yaml:"sync"`
	Receiver receiver.Settings    `yaml:"receiver"`
	Logging  meshsync.LogSettings `yaml:"logging"`
	Profile  ProfileSettings      `yaml:"profile"`
}

func Default() *Config {
	return &Config{
		Sync:     meshsync.DefaultSettings(),
		Receiver: receiver.DefaultSettings(),
		Logging: meshsync.LogSettings{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Profile: ProfileSettings{Path: "profiles"},
	}
}

var profileModes = map[string]bool{
	"": true, "cpu": true, "mem": true, "block": true, "mutex": true, "goroutine": true, "trace": true,
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	client := c.Sync.ClientSettings
	if _, e := meshsyncpb.ParseCompressionType(client.Compression); e != nil {
		err = multierr.Append(err, e)
	}
	if _, e := transport.NormalizeNetwork(client.Network, client.Address); e != nil {
		err = multierr.Append(err, fmt.Errorf("client: %w", e))
	}
	if client.Address == "" {
		err = multierr.Append(err, fmt.Errorf("client address is empty"))
	}
	if client.Timeout < 0 {
		err = multierr.Append(err, fmt.Errorf("client timeout %v is negative", client.Timeout))
	}
	if c.Sync.SampleAnimation && c.Sync.AnimationSPS <= 0 {
		err = multierr.Append(err, fmt.Errorf("animation_sps must be positive, got %d", c.Sync.AnimationSPS))
	}
	if c.Sync.NormalEpsilon < 0 {
		err = multierr.Append(err, fmt.Errorf("normal_epsilon must not be negative"))
	}
	if c.Sync.ExtractWorkers < 1 {
		err = multierr.Append(err, fmt.Errorf("extract_workers must be at least 1, got %d", c.Sync.ExtractWorkers))
	}
	if c.Sync.SceneSettings.ScaleFactor <= 0 {
		err = multierr.Append(err, fmt.Errorf("scale_factor must be positive"))
	}
	if _, e := transport.NormalizeNetwork(c.Receiver.Network, c.Receiver.Address); e != nil {
		err = multierr.Append(err, fmt.Errorf("receiver: %w", e))
	}
	if !profileModes[c.Profile.Mode] {
		err = multierr.Append(err, fmt.Errorf("unknown profile mode %q", c.Profile.Mode))
	}
	return err
}

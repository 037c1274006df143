package config

import (
	"time"

	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags set explicitly on the
// command line replace values from the config file.
type Flags struct {
	ConfigPath string

	Address     string
	Network     string
	Session     string
	Compression string
	Timeout     time.Duration
	Normals     string
	Workers     int
	NoAnimation bool

	ListenNetwork  string
	ListenAddress  string
	MetricsAddress string
	ConvertTo      string

	LogLevel    string
	LogFile     string
	Development bool

	Profile     string
	ProfilePath string
}

func NewFlags() *Flags {
	d := Default()
	return &Flags{
		Address:        d.Sync.ClientSettings.Address,
		Network:        d.Sync.ClientSettings.Network,
		Session:        d.Sync.ClientSettings.SessionName,
		Compression:    d.Sync.ClientSettings.Compression,
		Timeout:        d.Sync.ClientSettings.Timeout,
		Normals:        d.Sync.SyncNormals.String(),
		Workers:        d.Sync.ExtractWorkers,
		ListenNetwork:  d.Receiver.Network,
		ListenAddress:  d.Receiver.Address,
		MetricsAddress: d.Receiver.MetricsAddress,
		LogLevel:       d.Logging.Level,
		ProfilePath:    d.Profile.Path,
	}
}

// AddGlobalFlags registers the flags shared by every command.
func (f *Flags) AddGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.ConfigPath, "config", "c", f.ConfigPath, "path to the YAML config file")
	fs.StringVar(&f.LogLevel, "log-level", f.LogLevel, "log level: trace, debug, info, warn or error")
	fs.StringVar(&f.LogFile, "log-file", f.LogFile, "also write JSON logs to this rotated file, {time} is replaced by the start time")
	fs.BoolVar(&f.Development, "dev", f.Development, "human readable development logging")
	fs.StringVar(&f.Profile, "profile", f.Profile, "profile mode: cpu, mem, block, mutex, goroutine or trace")
	fs.StringVar(&f.ProfilePath, "profile-path", f.ProfilePath, "directory the profile is written to")
}

// AddClientFlags registers the flags of commands that send scenes.
func (f *Flags) AddClientFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Address, "address", "a", f.Address, "receiver address, host:port or a ws:// URL")
	fs.StringVarP(&f.Network, "network", "n", f.Network, "network: tcp, kcp or ws")
	fs.StringVarP(&f.Session, "session", "s", f.Session, "session name announced to the receiver")
	fs.StringVar(&f.Compression, "compression", f.Compression, "packet compression: none or snappy")
	fs.DurationVar(&f.Timeout, "timeout", f.Timeout, "connect and write timeout")
	fs.StringVar(&f.Normals, "normals", f.Normals, "normal sync mode: none, per_vertex or per_index")
	fs.IntVar(&f.Workers, "workers", f.Workers, "mesh extraction goroutines")
	fs.BoolVar(&f.NoAnimation, "no-animation", f.NoAnimation, "skip baking animations")
}

// AddReceiverFlags registers the flags of the serve command.
func (f *Flags) AddReceiverFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ListenNetwork, "listen-network", f.ListenNetwork, "network to accept connections on: tcp, kcp or ws")
	fs.StringVarP(&f.ListenAddress, "listen", "l", f.ListenAddress, "address to accept connections on")
	fs.StringVar(&f.MetricsAddress, "metrics-address", f.MetricsAddress, "address of the Prometheus endpoint, empty disables it")
	fs.StringVar(&f.ConvertTo, "convert-to", f.ConvertTo, "convert received scenes to right_z_up, right_y_up or left_y_up, empty keeps them as sent")
}

func (f *Flags) apply(cfg *Config, fs *pflag.FlagSet) error {
	changed := func(name string) bool {
		flag := fs.Lookup(name)
		return flag != nil && flag.Changed
	}

	client := &cfg.Sync.ClientSettings
	if changed("address") {
		client.Address = f.Address
	}
	if changed("network") {
		client.Network = f.Network
	}
	if changed("session") {
		client.SessionName = f.Session
	}
	if changed("compression") {
		client.Compression = f.Compression
	}
	if changed("timeout") {
		client.Timeout = f.Timeout
	}
	if changed("normals") {
		var mode meshsync.NormalSyncMode
		if err := mode.UnmarshalText([]byte(f.Normals)); err != nil {
			return err
		}
		cfg.Sync.SyncNormals = mode
	}
	if changed("workers") {
		cfg.Sync.ExtractWorkers = f.Workers
	}
	if changed("no-animation") && f.NoAnimation {
		cfg.Sync.SyncAnimations = false
	}

	if changed("listen-network") {
		cfg.Receiver.Network = f.ListenNetwork
	}
	if changed("listen") {
		cfg.Receiver.Address = f.ListenAddress
	}
	if changed("metrics-address") {
		cfg.Receiver.MetricsAddress = f.MetricsAddress
	}
	if changed("convert-to") {
		cfg.Receiver.ConvertTo = nil
		if f.ConvertTo != "" {
			var to scene.Handedness
			if err := to.UnmarshalText([]byte(f.ConvertTo)); err != nil {
				return err
			}
			cfg.Receiver.ConvertTo = &to
		}
	}

	if changed("log-level") {
		cfg.Logging.Level = f.LogLevel
	}
	if changed("log-file") {
		cfg.Logging.File = f.LogFile
	}
	if changed("dev") {
		cfg.Logging.Development = f.Development
	}
	if changed("profile") {
		cfg.Profile.Mode = f.Profile
	}
	if changed("profile-path") {
		cfg.Profile.Path = f.ProfilePath
	}
	return nil
}

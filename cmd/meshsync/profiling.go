package main

import (
	"github.com/metaworking/meshsync/internal/config"
	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

var profileModes = map[string]func(*profile.Profile){
	"cpu":       profile.CPUProfile,
	"mem":       profile.MemProfile,
	"block":     profile.BlockProfile,
	"mutex":     profile.MutexProfile,
	"goroutine": profile.GoroutineProfile,
	"trace":     profile.TraceProfile,
}

// startProfiling returns the function that stops the profile and writes it.
// Commands stop it on their own signal handling path, so the profile's
// shutdown hook is disabled.
func startProfiling(settings config.ProfileSettings) func() {
	mode := profileModes[settings.Mode]
	if mode == nil {
		return nil
	}
	prof := profile.Start(
		mode,
		profile.ProfilePath(settings.Path),
		profile.NoShutdownHook,
		profile.Quiet,
	)
	meshsync.RootLogger().Info("profiling", zap.String("mode", settings.Mode), zap.String("path", settings.Path))
	return prof.Stop
}

package configwatcher

import "github.com/bft-labs/harvester/pkg/harvester"

// WithConfigWatcher returns a harvester Option that reloads pacing settings
// from a TOML file while a run is in progress.
//
// Usage:
//
//	h, err := harvester.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/harvester/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) harvester.Option {
	return harvester.WithPlugin(New(cfg))
}

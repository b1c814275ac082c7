// Package configwatcher reloads pacing settings during a harvester run.
// It watches the TOML config file and applies round_wait, oracle_delay and
// poll_interval to the running throttle whenever the file changes.
package configwatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/harvester/pkg/harvester"
	"github.com/bft-labs/harvester/pkg/log"
)

// DefaultDebounceDelay coalesces the burst of events editors emit on save.
const DefaultDebounceDelay = 100 * time.Millisecond

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML file to watch.
	Path string

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// pacing is the subset of the config file the plugin applies.
type pacing struct {
	RoundWait    string `toml:"round_wait"`
	OracleDelay  string `toml:"oracle_delay"`
	PollInterval string `toml:"poll_interval"`
}

// Plugin implements config watching.
type Plugin struct {
	mu sync.Mutex

	path          string
	debounceDelay time.Duration

	throttle harvester.Throttle
	logger   harvester.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	reloads  int
}

// New creates a config watcher plugin.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file's directory. A missing path
// disables the plugin.
func (p *Plugin) Initialize(ctx context.Context, cfg harvester.PluginConfig) error {
	p.mu.Lock()
	p.throttle = cfg.Throttle
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.mu.Unlock()

	if p.path == "" || p.throttle == nil {
		p.logger.Warn("config watcher disabled: no config file")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watching the directory survives editors that replace the file.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.logger.Info("config watcher started", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns how many times settings were applied.
func (p *Plugin) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.reload(); err != nil {
			p.logger.Warn("config reload failed, keeping current settings",
				log.String("path", p.path),
				log.Err(err),
			)
		}
	})
}

// reload parses the file and applies every setting it names. Nothing is
// applied unless the whole file is valid.
func (p *Plugin) reload() error {
	b, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	var pc pacing
	if err := toml.Unmarshal(b, &pc); err != nil {
		return err
	}

	type setting struct {
		name  string
		value string
		set   func(time.Duration)
	}
	settings := []setting{
		{"round_wait", pc.RoundWait, p.throttle.SetRoundWait},
		{"oracle_delay", pc.OracleDelay, p.throttle.SetOracleDelay},
		{"poll_interval", pc.PollInterval, p.throttle.SetPollInterval},
	}

	parsed := make([]time.Duration, len(settings))
	for i, s := range settings {
		if s.value == "" {
			continue
		}
		d, err := time.ParseDuration(s.value)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		if d < 0 || (s.name != "round_wait" && d == 0) {
			return fmt.Errorf("%s: %s out of range", s.name, s.value)
		}
		parsed[i] = d
	}

	fields := []log.Field{log.String("path", p.path)}
	for i, s := range settings {
		if s.value == "" {
			continue
		}
		s.set(parsed[i])
		fields = append(fields, log.Duration(s.name, parsed[i]))
	}

	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	p.logger.Info("pacing reloaded", fields...)
	return nil
}

var _ harvester.Plugin = (*Plugin)(nil)

package agent

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// AgentStarterConfig mirrors the YAML shape `meshctl init` writes
// (cli.AgentStarterConfig) — duplicated here rather than imported so the
// agent runtime never depends on the operator CLI package.
type AgentStarterConfig struct {
	Name        string   `yaml:"name"`
	Namespace   string   `yaml:"namespace"`
	Runtime     string   `yaml:"runtime"`
	RegistryURL string   `yaml:"registry_url"`
	Tags        []string `yaml:"tags,omitempty"`
}

// ConfigWatcher watches a single mounted config file for namespace/tag
// overrides in local dev, debouncing rapid successive writes the way an
// editor's save produces (grounded on the teacher's cli/watcher.go
// debounce pattern, trimmed from "watch a source tree and restart the
// process" down to "watch one file and hot-patch a few fields" — this
// runtime has no subprocess to restart).
type ConfigWatcher struct {
	path          string
	watcher       *fsnotify.Watcher
	debounceDelay time.Duration
	onReload      func(AgentStarterConfig)

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewConfigWatcher builds a watcher for the config file at path. onReload
// is invoked with the newly parsed config whenever the file changes.
func NewConfigWatcher(path string, onReload func(AgentStarterConfig)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	return &ConfigWatcher{
		path:          path,
		watcher:       w,
		debounceDelay: 500 * time.Millisecond,
		onReload:      onReload,
		stopChan:      make(chan struct{}),
	}, nil
}

// Start runs the watch loop in the background and returns immediately.
func (cw *ConfigWatcher) Start() {
	go cw.run()
}

func (cw *ConfigWatcher) run() {
	var debounceTimer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(cw.debounceDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}

		case <-reload:
			cw.reload()

		case <-cw.stopChan:
			cw.watcher.Close()
			return
		}
	}
}

func (cw *ConfigWatcher) reload() {
	data, err := os.ReadFile(cw.path)
	if err != nil {
		Log.Warning("config watcher: failed to read %s: %v", cw.path, err)
		return
	}
	var cfg AgentStarterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		Log.Warning("config watcher: failed to parse %s: %v", cw.path, err)
		return
	}
	Log.Info("config watcher: reloaded %s (namespace=%s, tags=%v)", cw.path, cfg.Namespace, cfg.Tags)
	cw.onReload(cfg)
}

// Stop halts the watch loop. Safe to call multiple times.
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() { close(cw.stopChan) })
}

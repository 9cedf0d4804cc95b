// Package settings persists user preferences between sessions.
package settings

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/quasilyte/gdata/v2"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/sequencer"
)

const (
	AppName = "bounce"

	settingsObject   = "settings"
	settingsProperty = "prefs"
)

type Preferences struct {
	Tempo  int    `yaml:"tempo"`
	Timbre string `yaml:"timbre"`
}

func Defaults() Preferences {
	return Preferences{
		Tempo:  sequencer.DefaultTempo,
		Timbre: config.DefaultTimbre,
	}
}

func (p Preferences) normalize() Preferences {
	if p.Tempo == 0 {
		p.Tempo = sequencer.DefaultTempo
	}
	p.Tempo = sequencer.ClampTempo(p.Tempo)
	p.Timbre = config.ValidTimbre(p.Timbre)
	return p
}

// Manager holds the current preferences. With a nil gdata manager it keeps
// them in memory only.
type Manager struct {
	mu     sync.Mutex
	store  *gdata.Manager
	prefs  Preferences
	logger *slog.Logger
}

// Open opens the platform data store for the app. Failure to open it is
// logged and yields a memory-only manager.
func Open(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store, err := gdata.Open(gdata.Config{AppName: AppName})
	if err != nil {
		logger.Warn("settings store unavailable, using memory only", "err", err)
		store = nil
	}
	return New(store, logger)
}

func New(store *gdata.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{store: store, prefs: Defaults(), logger: logger}
	if err := m.Load(); err != nil {
		logger.Warn("failed to load settings, using defaults", "err", err)
	}
	return m
}

// Load reads the stored preferences. Absent data leaves the defaults;
// malformed data resets to defaults and reports the error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prefs = Defaults()
	if m.store == nil || !m.store.ObjectPropExists(settingsObject, settingsProperty) {
		return nil
	}

	data, err := m.store.LoadObjectProp(settingsObject, settingsProperty)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	var p Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	m.prefs = p.normalize()
	return nil
}

func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	data, err := yaml.Marshal(m.prefs)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := m.store.SaveObjectProp(settingsObject, settingsProperty, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (m *Manager) Preferences() Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs
}

// Persistent reports whether preferences survive a restart.
func (m *Manager) Persistent() bool { return m.store != nil }

// SetTempo stores the clamped tempo and returns it.
func (m *Manager) SetTempo(bpm int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs.Tempo = sequencer.ClampTempo(bpm)
	return m.prefs.Tempo
}

// SetTimbre stores name if known, else the default, and returns what was
// stored.
func (m *Manager) SetTimbre(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs.Timbre = config.ValidTimbre(name)
	return m.prefs.Timbre
}

// Apply copies the preferences onto cfg.
func (m *Manager) Apply(cfg *config.Config) {
	p := m.Preferences()
	cfg.Scene.Tempo = p.Tempo
	cfg.Sequencer.Tempo = p.Tempo
	cfg.Audio.Timbre = p.Timbre
}

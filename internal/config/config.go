package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"stereocast/internal/logger"
)

// Duration is a time.Duration that reads and writes YAML in the
// human-editable string form ("10s", "1m30s"). Bare integers are still
// accepted as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// PublisherConfig configures the `publish` role.
type PublisherConfig struct {
	// Listen is the HTTP listen address for signaling and frames.
	Listen string `json:"listen" yaml:"listen"`
	// FramesDir is a directory of side-by-side image frames to loop.
	// Empty selects the synthetic test pattern.
	FramesDir string `json:"frames_dir" yaml:"frames_dir"`
	// Width and Height size the synthetic pattern (ignored for FramesDir).
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// FPS is the source's native rate.
	FPS int `json:"fps" yaml:"fps"`
}

// ViewerConfig configures the `view` role.
type ViewerConfig struct {
	// PublisherURL is the publisher to connect to.
	PublisherURL string `json:"publisher_url" yaml:"publisher_url"`
	// Listen is the control API / presentation listen address.
	Listen string `json:"listen" yaml:"listen"`
	// Transport is "websocket" or "webrtc".
	Transport string `json:"transport" yaml:"transport"`
	// QueueCapacity bounds the frame queue.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`
	// HandshakeTimeout bounds the Connecting state.
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	// DefaultMode and DefaultOffset seed the parameter store.
	DefaultMode   string `json:"default_mode" yaml:"default_mode"`
	DefaultOffset int    `json:"default_offset" yaml:"default_offset"`
	// DisplayFPS caps the render cadence; 0 follows the source.
	DisplayFPS int `json:"display_fps" yaml:"display_fps"`
	// ReconnectAttempts bounds reconnection after a disconnect.
	ReconnectAttempts int `json:"reconnect_attempts" yaml:"reconnect_attempts"`
	// ReconnectBackoff is the pause between attempts.
	ReconnectBackoff Duration `json:"reconnect_backoff" yaml:"reconnect_backoff"`
}

// Config is the application configuration.
type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Publisher PublisherConfig `json:"publisher" yaml:"publisher"`
	Viewer    ViewerConfig    `json:"viewer" yaml:"viewer"`
}

// Manager handles configuration loading and persistence.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads the config file, creating it with defaults on first
// run. An empty configFile selects ~/.config/stereocast/config.yaml.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir := filepath.Join(homeDir, ".config", "stereocast")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		actualConfigPath = filepath.Join(configDir, "config.yaml")
	}

	m := &Manager{configPath: actualConfigPath}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", actualConfigPath).
				Msg("Config file not found, creating with defaults")
			m.config = defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, err
		}
	}

	return m, nil
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Publisher: PublisherConfig{
			Listen: ":3030",
			Width:  1280,
			Height: 720,
			FPS:    30,
		},
		Viewer: ViewerConfig{
			PublisherURL:      "http://localhost:3030",
			Listen:            ":8080",
			Transport:         "websocket",
			QueueCapacity:     3,
			HandshakeTimeout:  Duration(10 * time.Second),
			DefaultMode:       "side_by_side_parallel",
			DefaultOffset:     50,
			ReconnectAttempts: 3,
			ReconnectBackoff:  Duration(2 * time.Second),
		},
	}
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// Save writes the configuration back to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Update replaces the whole configuration.
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetLogLevel overrides the log level.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
}

// GetConfigPath returns the config file path.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

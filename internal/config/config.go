// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	golobby "github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/google/uuid"

	"github.com/horchi/vdr-plugin-squeezebox/internal/lms"
)

// Config represents the daemon configuration
type Config struct {
	// Server is the media server to connect to
	Server ServerConfig `json:"server"`

	// Player identifies the squeezebox player to control
	Player PlayerConfig `json:"player"`

	// OSD settings for the web on-screen display
	OSD OSDConfig `json:"osd"`

	// Behavior settings
	Behavior BehaviorConfig `json:"behavior"`

	// DataDir is where to store data files (history, covers)
	DataDir string `json:"dataDir"`

	// LogLevel is one of error, warning, info, debug
	LogLevel string `json:"logLevel"`
}

// ServerConfig contains media server settings
type ServerConfig struct {
	// Host of the media server; empty (the default) enables discovery
	Host string `json:"host"`

	// Port of the CLI (default: 9090)
	Port int `json:"port"`

	// HTTPPort of the web interface, used for cover art (default: 9000)
	HTTPPort int `json:"httpPort"`

	// ResponseTimeoutMs bounds the wait for a command response (default: 30000)
	ResponseTimeoutMs int `json:"responseTimeoutMs"`

	// NotifyTimeoutMs is the notification poll timeout (default: 100)
	NotifyTimeoutMs int `json:"notifyTimeoutMs"`
}

// PlayerConfig contains player settings
type PlayerConfig struct {
	// MAC is the player id; detected or generated when empty
	MAC string `json:"mac"`
}

// OSDConfig contains on-screen display settings
type OSDConfig struct {
	// Enabled starts the web OSD
	Enabled bool `json:"enabled"`

	// Addr to listen on (default: 127.0.0.1:8090)
	Addr string `json:"addr"`

	// PageSize caps browse results (default: 10000)
	PageSize int `json:"pageSize"`

	// TickMs is the redraw interval (default: 1000)
	TickMs int `json:"tickMs"`

	// ResyncSeconds forces a full refresh periodically (default: 60)
	ResyncSeconds int `json:"resyncSeconds"`
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// ResumeOnStart - restore the player's saved playlist on start
	ResumeOnStart bool `json:"resumeOnStart"`

	// SaveOnExit - save the player's playlist on shutdown
	SaveOnExit bool `json:"saveOnExit"`

	// RecordHistory - keep a play history database
	RecordHistory bool `json:"recordHistory"`

	// MediaSession - publish the player to the desktop media session
	MediaSession bool `json:"mediaSession"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              lms.DefaultPort,
			HTTPPort:          lms.DefaultHTTPPort,
			ResponseTimeoutMs: int(lms.DefaultResponseTimeout / time.Millisecond),
			NotifyTimeoutMs:   int(lms.DefaultNotifyTimeout / time.Millisecond),
		},
		OSD: OSDConfig{
			Enabled:       true,
			Addr:          "127.0.0.1:8090",
			PageSize:      lms.DefaultPageSize,
			TickMs:        1000,
			ResyncSeconds: 60,
		},
		Behavior: BehaviorConfig{
			ResumeOnStart: false,
			SaveOnExit:    false,
			RecordHistory: true,
			MediaSession:  true,
		},
		LogLevel: "info",
	}
}

// LMS returns the protocol client configuration.
func (c *Config) LMS() lms.Config {
	return lms.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		HTTPPort:        c.Server.HTTPPort,
		PlayerID:        c.Player.MAC,
		ResponseTimeout: time.Duration(c.Server.ResponseTimeoutMs) * time.Millisecond,
		NotifyTimeout:   time.Duration(c.Server.NotifyTimeoutMs) * time.Millisecond,
		PageSize:        c.OSD.PageSize,
	}
}

// GetLogLevel maps LogLevel to a slog level
func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.LogLevel)
	switch logLevel {
	case "error":
		return slog.LevelError
	case "warning", "warn":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}

// envOverrides lists the environment variables that override the file
type envOverrides struct {
	Host     string `env:"SQUEEZED_HOST"`
	Port     int    `env:"SQUEEZED_PORT"`
	HTTPPort int    `env:"SQUEEZED_HTTP_PORT"`
	MAC      string `env:"SQUEEZED_PLAYER_MAC"`
	OSDAddr  string `env:"SQUEEZED_OSD_ADDR"`
	DataDir  string `env:"SQUEEZED_DATA_DIR"`
	LogLevel string `env:"SQUEEZED_LOG_LEVEL"`
}

// ApplyEnv overrides settings from SQUEEZED_* environment variables
func (c *Config) ApplyEnv() error {
	var env envOverrides

	if err := golobby.New().AddFeeder(feeder.Env{}).AddStruct(&env).Feed(); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.Host != "" {
		c.Server.Host = env.Host
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.HTTPPort != 0 {
		c.Server.HTTPPort = env.HTTPPort
	}
	if env.MAC != "" {
		c.Player.MAC = env.MAC
	}
	if env.OSDAddr != "" {
		c.OSD.Addr = env.OSDAddr
	}
	if env.DataDir != "" {
		c.DataDir = env.DataDir
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}

	return nil
}

// interfaceMAC returns the MAC of the first non-loopback interface
var interfaceMAC = func() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) != 6 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

// EnsurePlayerID fills an empty player MAC, first from the network
// interfaces, then with a random locally administered address. It reports
// whether the config changed.
func (c *Config) EnsurePlayerID() bool {
	if c.Player.MAC != "" {
		return false
	}

	if mac := interfaceMAC(); mac != "" {
		c.Player.MAC = mac
		return true
	}

	id := uuid.New()
	mac := net.HardwareAddr(append([]byte(nil), id[:6]...))
	mac[0] = (mac[0] | 0x02) &^ 0x01
	c.Player.MAC = mac.String()

	return true
}

// Manager handles loading and saving configuration
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	// Ensure config directory exists
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if config file exists
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		m.config.DataDir = m.configDir
		m.config.EnsurePlayerID()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if config.DataDir == "" {
		config.DataDir = m.configDir
	}

	m.config = config

	// persist a generated player id so the server keeps seeing the same player
	if config.EnsurePlayerID() {
		return m.Save()
	}

	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update updates the configuration and saves it
func (m *Manager) Update(config *Config) error {
	m.config = config
	return m.Save()
}

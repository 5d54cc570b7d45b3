package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/petervdpas/volmix/internal/util"
)

// EnvPrefix prefixes every environment override, e.g. VOLMIX_BACKEND_URL.
const EnvPrefix = "volmix"

type Config struct {
	Backend Backend `json:"backend"`
	Overlay Overlay `json:"overlay"`
	Mixer   Mixer   `json:"mixer"`
	Log     Log     `json:"log"`
	Debug   Debug   `json:"debug"`
}

type Backend struct {
	// Websocket URL of the audio backend.
	URL string `json:"url"`

	// Upper bound for a single backend command.
	CallTimeoutMs int `json:"call_timeout_ms"`

	// Delay between redial attempts after the connection drops. 0 disables
	// reconnecting.
	ReconnectMs int `json:"reconnect_ms"`
}

type Overlay struct {
	// Session shown when the overlay starts, before any change arrives.
	Session     string `json:"session"`
	HideAfterMs int    `json:"hide_after_ms"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type Mixer struct {
	HideAfterMs int `json:"hide_after_ms"`

	// Re-show the panel when a change arrives while it is hidden.
	ShowOnReset bool `json:"show_on_reset"`
}

type Log struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // plaintext, color, json
	Buffer int    `json:"buffer"` // lines kept for the console view
}

type Debug struct {
	// Listen address of the metrics/logs server. Empty disables it.
	Addr string `json:"addr"`
}

func Default() Config {
	return Config{
		Backend: Backend{
			URL:           "ws://127.0.0.1:7320/ws",
			CallTimeoutMs: 5000,
			ReconnectMs:   2000,
		},
		Overlay: Overlay{
			Session:     "master",
			HideAfterMs: 1500,
			Width:       320,
			Height:      90,
		},
		Mixer: Mixer{
			HideAfterMs: 3000,
			ShowOnReset: true,
		},
		Log: Log{
			Level:  "info",
			Format: "plaintext",
			Buffer: 1000,
		},
	}
}

func (b Backend) CallTimeout() time.Duration {
	return time.Duration(b.CallTimeoutMs) * time.Millisecond
}

func (b Backend) Reconnect() time.Duration {
	return time.Duration(b.ReconnectMs) * time.Millisecond
}

func (o Overlay) HideAfter() time.Duration {
	return time.Duration(o.HideAfterMs) * time.Millisecond
}

func (m Mixer) HideAfter() time.Duration {
	return time.Duration(m.HideAfterMs) * time.Millisecond
}

func (c *Config) Validate() error {
	// Backend
	if strings.TrimSpace(c.Backend.URL) == "" {
		return errors.New("backend.url is required")
	}
	if err := validateBackendURL(c.Backend.URL); err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if c.Backend.CallTimeoutMs <= 0 {
		return errors.New("backend.call_timeout_ms must be > 0")
	}
	if c.Backend.ReconnectMs < 0 {
		return errors.New("backend.reconnect_ms must be >= 0")
	}

	// Windows
	if c.Overlay.HideAfterMs < 100 || c.Overlay.HideAfterMs > 60000 {
		return errors.New("overlay.hide_after_ms must be 100..60000")
	}
	if c.Overlay.Width <= 0 || c.Overlay.Height <= 0 {
		return errors.New("overlay.width and overlay.height must be > 0")
	}
	if c.Mixer.HideAfterMs < 100 || c.Mixer.HideAfterMs > 60000 {
		return errors.New("mixer.hide_after_ms must be 100..60000")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "plaintext", "color", "json":
	default:
		return fmt.Errorf("log.format %q must be plaintext, color or json", c.Log.Format)
	}
	if c.Log.Buffer < 0 {
		return errors.New("log.buffer must be >= 0")
	}

	// Debug
	if a := strings.TrimSpace(c.Debug.Addr); a != "" {
		if _, _, err := net.SplitHostPort(a); err != nil {
			return fmt.Errorf("debug.addr: %w", err)
		}
	}

	return nil
}

func validateBackendURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("scheme must be ws or wss")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// env holds the environment overrides. Unset variables leave the file
// value alone.
type env struct {
	BackendURL string `envconfig:"BACKEND_URL"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
	LogFormat  string `envconfig:"LOG_FORMAT"`
	DebugAddr  string `envconfig:"DEBUG_ADDR"`
}

// ApplyEnv overlays VOLMIX_* environment variables onto c.
func ApplyEnv(c *Config) error {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if e.BackendURL != "" {
		c.Backend.URL = e.BackendURL
	}
	if e.LogLevel != "" {
		c.Log.Level = strings.ToLower(e.LogLevel)
	}
	if e.LogFormat != "" {
		c.Log.Format = strings.ToLower(e.LogFormat)
	}
	if e.DebugAddr != "" {
		c.Debug.Addr = e.DebugAddr
	}
	return nil
}

func Load(path string) (Config, error) {
	cfg, err := LoadPartial(path)
	if err != nil {
		return Config{}, err
	}

	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadPartial reads a config file without validation or environment
// overrides.
func LoadPartial(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

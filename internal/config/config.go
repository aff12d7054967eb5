package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vango-dev/webdriverbidi/internal/errors"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

const (
	// TOMLFileName is the preferred configuration file name.
	TOMLFileName = "bidi.toml"

	// JSONFileName is the alternative configuration file name.
	JSONFileName = "bidi.json"

	// DefaultURL is the session endpoint of a local browser.
	DefaultURL = "ws://127.0.0.1:9222/session"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultCommandTimeout is the default command deadline.
	DefaultCommandTimeout = "60s"

	// DefaultMetricsNamespace prefixes exported metric names.
	DefaultMetricsNamespace = "bidi"
)

// Config is the bidictl configuration.
type Config struct {
	// URL is the websocket session endpoint of the remote end.
	URL string `json:"url,omitempty" toml:"url,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty" toml:"logLevel,omitempty"`

	Transport TransportConfig `json:"transport" toml:"transport"`
	WebSocket WebSocketConfig `json:"websocket" toml:"websocket"`
	Recorder  RecorderConfig  `json:"recorder" toml:"recorder"`
	Metrics   MetricsConfig   `json:"metrics" toml:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// TransportConfig configures command handling.
type TransportConfig struct {
	// CommandTimeout is the default deadline for a command, e.g. "30s".
	CommandTimeout string `json:"commandTimeout,omitempty" toml:"commandTimeout,omitempty"`
}

// WebSocketConfig configures the websocket connection.
type WebSocketConfig struct {
	HandshakeTimeout  string            `json:"handshakeTimeout,omitempty" toml:"handshakeTimeout,omitempty"`
	WriteTimeout      string            `json:"writeTimeout,omitempty" toml:"writeTimeout,omitempty"`
	MaxMessageSize    int64             `json:"maxMessageSize,omitempty" toml:"maxMessageSize,omitempty"`
	MessageBuffer     int               `json:"messageBuffer,omitempty" toml:"messageBuffer,omitempty"`
	EnableCompression bool              `json:"enableCompression,omitempty" toml:"enableCompression,omitempty"`
	Headers           map[string]string `json:"headers,omitempty" toml:"headers,omitempty"`
}

// RecorderConfig configures traffic recording. An empty Path disables it.
type RecorderConfig struct {
	Path   string `json:"path,omitempty" toml:"path,omitempty"`
	Buffer int    `json:"buffer,omitempty" toml:"buffer,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables
// it.
type MetricsConfig struct {
	Addr      string `json:"addr,omitempty" toml:"addr,omitempty"`
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	ws := transport.DefaultWebSocketConfig()
	return &Config{
		URL:      DefaultURL,
		LogLevel: DefaultLogLevel,
		Transport: TransportConfig{
			CommandTimeout: DefaultCommandTimeout,
		},
		WebSocket: WebSocketConfig{
			HandshakeTimeout: ws.HandshakeTimeout.String(),
			WriteTimeout:     ws.WriteTimeout.String(),
			MaxMessageSize:   ws.MaxMessageSize,
			MessageBuffer:    ws.MessageBuffer,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultMetricsNamespace,
		},
	}
}

// Load reads the configuration from dir, preferring bidi.toml over
// bidi.json.
func Load(dir string) (*Config, error) {
	for _, name := range []string{TOMLFileName, JSONFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E120").
		WithDetail("No " + TOMLFileName + " or " + JSONFileName + " found in " + dir)
}

// Find walks up from dir looking for a configuration file and returns its
// path, or "" when none exists up to the filesystem root.
func Find(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		for _, name := range []string{TOMLFileName, JSONFileName} {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadFile reads the configuration at path. The format follows the file
// extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E120").
				WithDetail("No config file at " + path).
				WithSuggestion("Pass --config with an existing file or run without it to use defaults")
		}
		return nil, errors.New("E121").Wrap(err)
	}

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = decodeTOML(path, data, cfg)
	case ".json":
		err = decodeJSON(path, data, cfg)
	default:
		return nil, errors.New("E123").WithDetail("Cannot read " + path + ": config files must end in .json or .toml")
	}
	if err != nil {
		return nil, err
	}

	cfg.configPath = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		e := errors.New("E121").Wrap(err).WithSuggestion("Check that " + filepath.Base(path) + " is valid TOML")
		var pe toml.ParseError
		if stderrors.As(err, &pe) {
			e.WithLocation(path, pe.Position.Line, 0)
		}
		return e
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return errors.New("E122").WithDetail("Unknown keys in " + filepath.Base(path) + ": " + strings.Join(keys, ", "))
	}
	return nil
}

func decodeJSON(path string, data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		e := errors.New("E121").Wrap(err).WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
		var se *json.SyntaxError
		if stderrors.As(err, &se) {
			line, col := position(data, se.Offset)
			e.WithLocation(path, line, col)
		}
		return e
	}
	return nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	before := data[:offset]
	line := bytes.Count(before, []byte("\n")) + 1
	col := int(offset) - bytes.LastIndexByte(before, '\n')
	return line, col
}

// SaveTo writes the configuration to path in the format of its extension.
func (c *Config) SaveTo(path string) error {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return errors.New("E121").Wrap(err)
		}
	case ".json":
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.New("E121").Wrap(err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	default:
		return errors.New("E123").WithDetail("Cannot write " + path)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.New("E121").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Validate checks values that decoding alone cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return c.invalid("url must be a ws:// or wss:// URL, got " + quote(c.URL))
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return c.invalid("logLevel must be one of debug, info, warn, error, got " + quote(c.LogLevel))
	}
	for name, value := range map[string]string{
		"transport.commandTimeout":   c.Transport.CommandTimeout,
		"websocket.handshakeTimeout": c.WebSocket.HandshakeTimeout,
		"websocket.writeTimeout":     c.WebSocket.WriteTimeout,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return c.invalid(name + " must be a non-negative duration such as \"30s\", got " + quote(value))
		}
	}
	if c.WebSocket.MaxMessageSize < 0 {
		return c.invalid("websocket.maxMessageSize must not be negative")
	}
	if c.WebSocket.MessageBuffer < 0 || c.Recorder.Buffer < 0 {
		return c.invalid("buffer sizes must not be negative")
	}
	return nil
}

func (c *Config) invalid(detail string) error {
	e := errors.New("E122").WithDetail(detail)
	if c.configPath != "" {
		e.Location = &errors.Location{File: c.configPath}
	}
	return e
}

func quote(s string) string {
	return `"` + s + `"`
}

// CommandTimeout returns the default command deadline. Zero disables it.
func (c *Config) CommandTimeout() time.Duration {
	return durationOr(c.Transport.CommandTimeout, transport.DefaultCommandTimeout)
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// WebSocketOptions builds the websocket connection settings.
func (c *Config) WebSocketOptions(logger *slog.Logger) *transport.WebSocketConfig {
	ws := transport.DefaultWebSocketConfig()
	ws.HandshakeTimeout = durationOr(c.WebSocket.HandshakeTimeout, ws.HandshakeTimeout)
	ws.WriteTimeout = durationOr(c.WebSocket.WriteTimeout, ws.WriteTimeout)
	if c.WebSocket.MaxMessageSize > 0 {
		ws.MaxMessageSize = c.WebSocket.MaxMessageSize
	}
	if c.WebSocket.MessageBuffer > 0 {
		ws.MessageBuffer = c.WebSocket.MessageBuffer
	}
	ws.EnableCompression = c.WebSocket.EnableCompression
	if len(c.WebSocket.Headers) > 0 {
		ws.Header = make(http.Header, len(c.WebSocket.Headers))
		for k, v := range c.WebSocket.Headers {
			ws.Header.Set(k, v)
		}
	}
	ws.Logger = logger
	return ws
}

// TransportOptions builds the transport options the config implies.
func (c *Config) TransportOptions() []transport.Option {
	return []transport.Option{
		transport.WithCommandTimeout(c.CommandTimeout()),
	}
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

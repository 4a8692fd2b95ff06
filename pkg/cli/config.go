package cli

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".giztoy"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Config is the configuration file of a CLI app: a set of named contexts,
// one per relay backend, and the one in use.
type Config struct {
	// AppName is the application name (e.g., "convrelay")
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is the configuration for one relay backend.
type Context struct {
	// Name is the context name
	Name string `yaml:"name"`

	// Endpoint is the relay websocket URL
	Endpoint string `yaml:"endpoint,omitempty"`

	// AudioDevice selects the capture device by index or by a substring of
	// its name. Empty means the system default.
	AudioDevice string `yaml:"audio_device,omitempty"`

	// BlockSize is the number of source frames per audio block
	BlockSize int `yaml:"block_size,omitempty"`

	// Resampler is "box" (default) or "soxr"
	Resampler string `yaml:"resampler,omitempty"`

	// AllowInsecure permits audio over ws:// to a non-loopback host
	AllowInsecure bool `yaml:"allow_insecure,omitempty"`

	// Keepalive is the ping interval in seconds (0 disables it)
	Keepalive int `yaml:"keepalive,omitempty"`

	// Timeout is the handshake timeout in seconds (optional)
	Timeout int `yaml:"timeout,omitempty"`

	// RecordDir, when set, records every session to a msgpack log there
	RecordDir string `yaml:"record_dir,omitempty"`

	// Headers are extra handshake headers
	Headers map[string]string `yaml:"headers,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigIfExists loads the app's default config file, or returns nil
// when it does not exist or cannot be read.
func LoadConfigIfExists(appName string) *Config {
	paths, err := NewPaths(appName)
	if err != nil {
		return nil
	}
	if _, err := os.Stat(paths.ConfigFile()); err != nil {
		return nil
	}
	cfg, err := LoadConfigWithPath(appName, paths.ConfigFile())
	if err != nil {
		return nil
	}
	return cfg
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		paths, err := NewPaths(appName)
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = paths.ConfigFile()
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			cfg.Contexts[name] = &Context{Name: name}
		}
	}

	cfg.AppName = appName
	cfg.configPath = configPath

	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// AddContext adds or replaces a context
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name is
// empty. With neither, it returns an empty context so that flags and
// defaults apply.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		name = c.CurrentContext
	}
	if name == "" {
		return &Context{}, nil
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeepaliveInterval returns Keepalive as a duration.
func (ctx *Context) KeepaliveInterval() time.Duration {
	return time.Duration(ctx.Keepalive) * time.Second
}

// HandshakeTimeout returns Timeout as a duration, zero when unset.
func (ctx *Context) HandshakeTimeout() time.Duration {
	return time.Duration(ctx.Timeout) * time.Second
}

// Header returns Headers as an http.Header, or nil when there are none.
func (ctx *Context) Header() http.Header {
	if len(ctx.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(ctx.Headers))
	for k, v := range ctx.Headers {
		h.Set(k, v)
	}
	return h
}

// SetHeader parses a "Key: value" or "Key=value" pair into Headers.
func (ctx *Context) SetHeader(pair string) error {
	key, value, ok := strings.Cut(pair, ":")
	if !ok {
		key, value, ok = strings.Cut(pair, "=")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("invalid header %q (want Key: value)", pair)
	}
	if ctx.Headers == nil {
		ctx.Headers = make(map[string]string)
	}
	ctx.Headers[key] = strings.TrimSpace(value)
	return nil
}

// Masked returns a copy of the context with header values masked for
// display.
func (ctx *Context) Masked() *Context {
	out := *ctx
	if len(ctx.Headers) > 0 {
		out.Headers = make(map[string]string, len(ctx.Headers))
		for k, v := range ctx.Headers {
			out.Headers[k] = MaskSecret(v)
		}
	}
	return &out
}

// MaskSecret masks a secret for display
func MaskSecret(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

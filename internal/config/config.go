package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/liveview/internal/errors"
)

// FileNames are the config files Load looks for, in order.
var FileNames = []string{"liveview.yaml", "liveview.yml", "liveview.json"}

const (
	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultStoreDriver keeps view state in process memory.
	DefaultStoreDriver = "memory"

	// DefaultSQLTable is the table SQL stores write to.
	DefaultSQLTable = "liveview_sessions"
)

// Config is the liveview.yaml / liveview.json configuration.
type Config struct {
	// Server configures the HTTP/WebSocket listener.
	Server ServerConfig `yaml:"server" json:"server"`

	// Session configures every live session.
	Session SessionConfig `yaml:"session" json:"session"`

	// Store selects where view state is persisted.
	Store StoreConfig `yaml:"store" json:"store"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log" json:"log"`

	path string
}

// ServerConfig configures the listener.
type ServerConfig struct {
	Address         string   `yaml:"address,omitempty" json:"address,omitempty"`
	MaxSessions     int      `yaml:"maxSessions,omitempty" json:"maxSessions,omitempty"`
	ShutdownTimeout string   `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	CleanupInterval string   `yaml:"cleanupInterval,omitempty" json:"cleanupInterval,omitempty"`
	ReadBufferSize  int      `yaml:"readBufferSize,omitempty" json:"readBufferSize,omitempty"`
	WriteBufferSize int      `yaml:"writeBufferSize,omitempty" json:"writeBufferSize,omitempty"`
	AllowedOrigins  []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins,omitempty"`
	ClientScript    string   `yaml:"clientScript,omitempty" json:"clientScript,omitempty"`
	StyleSheets     []string `yaml:"styleSheets,omitempty" json:"styleSheets,omitempty"`
}

// SessionConfig configures sessions. Durations use time.ParseDuration syntax.
type SessionConfig struct {
	ReadTimeout       string `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout      string `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout       string `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	HeartbeatInterval string `yaml:"heartbeatInterval,omitempty" json:"heartbeatInterval,omitempty"`
	StateTTL          string `yaml:"stateTTL,omitempty" json:"stateTTL,omitempty"`
	MaxMessageSize    int64  `yaml:"maxMessageSize,omitempty" json:"maxMessageSize,omitempty"`
	MaxEventQueue     int    `yaml:"maxEventQueue,omitempty" json:"maxEventQueue,omitempty"`

	// EventRate is events per second; negative disables the session bucket.
	EventRate  float64 `yaml:"eventRate,omitempty" json:"eventRate,omitempty"`
	EventBurst int     `yaml:"eventBurst,omitempty" json:"eventBurst,omitempty"`

	// MaxRateWarnings ends a session after that many rate rejections;
	// negative never ends it.
	MaxRateWarnings int `yaml:"maxRateWarnings,omitempty" json:"maxRateWarnings,omitempty"`

	// CompressThreshold is the frame size above which payloads are
	// compressed; negative disables compression.
	CompressThreshold int `yaml:"compressThreshold,omitempty" json:"compressThreshold,omitempty"`

	// Codec is "binary" or "cbor".
	Codec string `yaml:"codec,omitempty" json:"codec,omitempty"`
}

// StoreConfig selects the view state store.
type StoreConfig struct {
	// Driver is memory, redis, postgres, sqlite or s3.
	Driver string      `yaml:"driver,omitempty" json:"driver,omitempty"`
	Redis  RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	SQL    SQLConfig   `yaml:"sql,omitempty" json:"sql,omitempty"`
	S3     S3Config    `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Address  string `yaml:"address,omitempty" json:"address,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// SQLConfig configures the postgres and sqlite drivers.
type SQLConfig struct {
	DSN   string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Table string `yaml:"table,omitempty" json:"table,omitempty"`
}

// S3Config configures the s3 driver.
type S3Config struct {
	Bucket   string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Format is text or json.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
}

// New returns a Config with defaults applied.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the first of FileNames found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E100").
		WithDetail(fmt.Sprintf("No %s found in %s.", strings.Join(FileNames, ", "), dir)).
		WithSuggestion("Run 'liveview config init' to write one with defaults")
}

// LoadFile reads, defaults and validates a config file. The format follows
// the extension; .json files may carry comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.New("E100").WithDetail(path + " does not exist.").Wrap(err)
		}
		return nil, errors.New("E100").Wrap(err)
	}

	c := &Config{}
	if format == "json" {
		err = decodeJSON(path, data, c)
	} else {
		err = decodeYAML(path, data, c)
	}
	if err != nil {
		return nil, err
	}

	c.path = path
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	default:
		return "", errors.New("E103").WithDetail(path + " is neither YAML nor JSON.")
	}
}

// yamlLine matches the line prefix yaml.v3 puts on its errors.
var yamlLine = regexp.MustCompile(`line (\d+):`)

func decodeYAML(path string, data []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// A file with no documents decodes to io.EOF and means all defaults.
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		e := errors.New("E101").Wrap(err)
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			line, _ := strconv.Atoi(m[1])
			e.WithLocation(path, line, 0)
		}
		return e
	}
	return nil
}

func decodeJSON(path string, data []byte, c *Config) error {
	// jsonc blanks comments in place, so offsets still point into data.
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		e := errors.New("E101").Wrap(err)
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntax):
			line, col := position(data, syntax.Offset)
			e.WithLocation(path, line, col)
		case stderrors.As(err, &typeErr):
			line, col := position(data, typeErr.Offset)
			e.WithLocation(path, line, col)
		}
		return e
	}
	return nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	before := data[:offset]
	line = bytes.Count(before, []byte("\n")) + 1
	col = int(offset) - bytes.LastIndexByte(before, '\n')
	return line, col
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return errors.New("E106").WithDetail("The config was not loaded from a file.")
	}
	return c.SaveTo(c.path)
}

// SaveTo writes the config to path in the format its extension names.
func (c *Config) SaveTo(path string) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}

	var data []byte
	if format == "json" {
		data, err = json.MarshalIndent(c, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("E106").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("E106").Wrap(err)
	}
	c.path = path
	return nil
}

// Path returns the file the config was loaded from or saved to.
func (c *Config) Path() string {
	return c.path
}

// Dir returns the directory holding the config file.
func (c *Config) Dir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "30s"
	}
	if c.Server.CleanupInterval == "" {
		c.Server.CleanupInterval = "30s"
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = 4096
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = 4096
	}
	if c.Server.ClientScript == "" {
		c.Server.ClientScript = "/static/liveview.js"
	}

	s := &c.Session
	if s.ReadTimeout == "" {
		s.ReadTimeout = "60s"
	}
	if s.WriteTimeout == "" {
		s.WriteTimeout = "10s"
	}
	if s.IdleTimeout == "" {
		s.IdleTimeout = "5m"
	}
	if s.HeartbeatInterval == "" {
		s.HeartbeatInterval = "30s"
	}
	if s.StateTTL == "" {
		s.StateTTL = "1h"
	}
	if s.MaxMessageSize == 0 {
		s.MaxMessageSize = 64 * 1024
	}
	if s.MaxEventQueue == 0 {
		s.MaxEventQueue = 256
	}
	if s.EventRate == 0 {
		s.EventRate = 100
	}
	if s.EventBurst == 0 {
		s.EventBurst = 20
	}
	if s.MaxRateWarnings == 0 {
		s.MaxRateWarnings = 3
	}
	if s.CompressThreshold == 0 {
		s.CompressThreshold = 4096
	}
	if s.Codec == "" {
		s.Codec = "binary"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "liveview:session:"
	}
	if c.Store.SQL.Table == "" {
		c.Store.SQL.Table = DefaultSQLTable
	}
	if c.Store.S3.Prefix == "" {
		c.Store.S3.Prefix = "sessions/"
	}

	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// sqlTable guards the table name, which is interpolated into statements.
var sqlTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks value ranges and the settings the store driver needs.
func (c *Config) Validate() error {
	durations := []struct {
		field, value string
	}{
		{"server.shutdownTimeout", c.Server.ShutdownTimeout},
		{"server.cleanupInterval", c.Server.CleanupInterval},
		{"session.readTimeout", c.Session.ReadTimeout},
		{"session.writeTimeout", c.Session.WriteTimeout},
		{"session.idleTimeout", c.Session.IdleTimeout},
		{"session.heartbeatInterval", c.Session.HeartbeatInterval},
		{"session.stateTTL", c.Session.StateTTL},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.field, d.value); err != nil {
			return err
		}
	}

	switch {
	case c.Server.MaxSessions < 0:
		return invalid("server.maxSessions", "must not be negative")
	case c.Server.ReadBufferSize < 0 || c.Server.WriteBufferSize < 0:
		return invalid("server buffer sizes", "must not be negative")
	case c.Session.MaxMessageSize < 0:
		return invalid("session.maxMessageSize", "must not be negative")
	case c.Session.MaxEventQueue < 0:
		return invalid("session.maxEventQueue", "must not be negative")
	case c.Session.EventBurst < 0:
		return invalid("session.eventBurst", "must not be negative")
	}
	if c.Session.Codec != "binary" && c.Session.Codec != "cbor" {
		return invalid("session.codec", fmt.Sprintf("%q is not binary or cbor", c.Session.Codec))
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("E105").WithSuggestion(fmt.Sprintf("log.format is %q; use text or json", c.Log.Format))
	}

	return c.Store.validate()
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case "memory":
		return nil
	case "redis":
		if s.Redis.Address == "" {
			return missing("store.redis.address", "redis")
		}
	case "postgres", "sqlite":
		if s.SQL.DSN == "" {
			return missing("store.sql.dsn", s.Driver)
		}
		if !sqlTable.MatchString(s.SQL.Table) {
			return invalid("store.sql.table", fmt.Sprintf("%q is not a plain identifier", s.SQL.Table))
		}
	case "s3":
		if s.S3.Bucket == "" {
			return missing("store.s3.bucket", "s3")
		}
	default:
		return errors.New("E120").
			WithSuggestion(fmt.Sprintf("store.driver is %q; use memory, redis, postgres, sqlite or s3", s.Driver))
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New("E104").
			WithSuggestion(fmt.Sprintf("%s is %q; write it like 30s or 5m", field, value)).
			Wrap(err)
	}
	if d < 0 {
		return 0, invalid(field, "must not be negative")
	}
	return d, nil
}

func invalid(field, reason string) *errors.Error {
	return errors.New("E102").WithDetail(field + " " + reason + ".")
}

func missing(field, driver string) *errors.Error {
	return errors.New("E121").
		WithDetail(fmt.Sprintf("The %s driver needs %s.", driver, field))
}

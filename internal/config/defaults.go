package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultAddr             = ":8080"
	DefaultCollectorName    = "DEFAULT"
	DefaultCompositeType    = "SyncEvent"
	DefaultMaxPending       = 64
	DefaultStragglerTimeout = "2s"
	DefaultAnnounceTimeout  = "5s"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "auto"
	DefaultMaxBodyBytes     = 8 << 20
	DefaultWSSendBuffer     = 256

	// EnvPrefix prefixes environment overrides, e.g. COLLECTORD_ADDR.
	EnvPrefix = "COLLECTORD_"
)

// Default returns a fully populated configuration.
func Default() Config {
	var c Config
	ApplyDefaults(&c)
	return c
}

// ApplyDefaults fills unset fields of c.
func ApplyDefaults(c *Config) {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.CollectorName == "" {
		c.CollectorName = DefaultCollectorName
	}
	if c.CompositeType == "" {
		c.CompositeType = DefaultCompositeType
	}
	if c.MaxPending <= 0 {
		c.MaxPending = DefaultMaxPending
	}
	if c.StragglerTimeout == "" {
		c.StragglerTimeout = DefaultStragglerTimeout
	}
	if c.AnnounceTimeout == "" {
		c.AnnounceTimeout = DefaultAnnounceTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.WSSendBuffer <= 0 {
		c.WSSendBuffer = DefaultWSSendBuffer
	}
}

// ApplyEnv overrides c from COLLECTORD_* variables found by lookup.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("COLLECTOR_NAME", &c.CollectorName)
	str("COMPOSITE_TYPE", &c.CompositeType)
	str("STRAGGLER_TIMEOUT", &c.StragglerTimeout)
	str("ANNOUNCE_TIMEOUT", &c.AnnounceTimeout)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("STREAM_TARGET", &c.StreamTarget)
	str("BACKUP_SAVE_FILE_PATH", &c.BackupSaveFilePath)

	if v, ok := lookup(EnvPrefix + "SYNC"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSYNC: %w", EnvPrefix, err)
		}
		c.SyncEnabled = b
	}
	if v, ok := lookup(EnvPrefix + "SWAGGER"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSWAGGER: %w", EnvPrefix, err)
		}
		c.Swagger = b
	}
	if v, ok := lookup(EnvPrefix + "MAX_PENDING"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_PENDING: %w", EnvPrefix, err)
		}
		c.MaxPending = n
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		c.CORSEnabled = true
		c.CORSOrigins = SplitCSV(v)
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if strings.Contains(c.CollectorName, "/") {
		return fmt.Errorf("collector_name %q must not contain '/'", c.CollectorName)
	}
	if c.MaxPending < 1 {
		return fmt.Errorf("max_pending must be positive, got %d", c.MaxPending)
	}
	if _, err := parseDuration(c.StragglerTimeout); err != nil {
		return fmt.Errorf("straggler_timeout: %w", err)
	}
	if _, err := parseDuration(c.AnnounceTimeout); err != nil {
		return fmt.Errorf("announce_timeout: %w", err)
	}
	return nil
}

// AnnounceTimeoutDuration returns the parsed announce timeout, or zero when
// unset or malformed.
func (c Config) AnnounceTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.AnnounceTimeout)
	return d
}

// StragglerTimeoutDuration returns the parsed straggler timeout. "off"
// disables the timeout and yields a negative duration.
func (c Config) StragglerTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.StragglerTimeout)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "off", "disabled":
		return -1, nil
	}
	return time.ParseDuration(s)
}

// SplitCSV splits a comma separated list, trimming blanks and dropping empty
// entries.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

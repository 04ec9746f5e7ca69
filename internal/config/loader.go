package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"collectord/internal/common/fsutil"
)

// Config holds runtime parameters for the collector service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr             string   `json:"addr" yaml:"addr" toml:"addr"`
	CollectorName    string   `json:"collector_name" yaml:"collector_name" toml:"collector_name"`
	SyncEnabled      bool     `json:"sync_enabled" yaml:"sync_enabled" toml:"sync_enabled"`
	CompositeType    string   `json:"composite_type" yaml:"composite_type" toml:"composite_type"`
	MaxPending       int      `json:"max_pending" yaml:"max_pending" toml:"max_pending"`
	StragglerTimeout string   `json:"straggler_timeout" yaml:"straggler_timeout" toml:"straggler_timeout"`
	AnnounceTimeout  string   `json:"announce_timeout" yaml:"announce_timeout" toml:"announce_timeout"`
	LogLevel         string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat        string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	MaxBodyBytes     int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	Swagger          bool     `json:"swagger" yaml:"swagger" toml:"swagger"`
	CORSEnabled      bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins      []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods      []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders      []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`
	WSSendBuffer     int      `json:"ws_send_buffer" yaml:"ws_send_buffer" toml:"ws_send_buffer"`

	// StreamTarget is written to BackupSaveFilePath when a synchronizing
	// collector starts. Empty means the collector name.
	StreamTarget       string `json:"stream_target" yaml:"stream_target" toml:"stream_target"`
	BackupSaveFilePath string `json:"backup_save_file_path" yaml:"backup_save_file_path" toml:"backup_save_file_path"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

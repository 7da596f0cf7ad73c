package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"shipscore.ai/internal/vschem/framing"
	"shipscore.ai/internal/vschem/materials"
)

// Config is the analyser service configuration (analyser.yaml).
type Config struct {
	ScoreTable        string   `yaml:"score_table"`
	WatchScoreTable   bool     `yaml:"watch_score_table"`
	HeaderMaxLength   int      `yaml:"header_max_length"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	NamespacePrefixes []string `yaml:"namespace_prefixes"`

	DataDir    string `yaml:"data_dir"`
	JournalDir string `yaml:"journal_dir"`
	IndexDB    string `yaml:"index_db"`
	DisableDB  bool   `yaml:"disable_db"`

	JournalMirror MirrorConfig `yaml:"journal_mirror"`
}

// MirrorConfig enables uploading completed journal files to S3-compatible
// storage. Credentials come from SHIPSCORE_MIRROR_ACCESS_KEY_ID and
// SHIPSCORE_MIRROR_SECRET_ACCESS_KEY, never from the file.
type MirrorConfig struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Workers  int    `yaml:"workers"`
}

func (m MirrorConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != "" && strings.TrimSpace(m.Bucket) != ""
}

func Defaults() Config {
	return Config{
		ScoreTable:        "./configs/BlockScores.json",
		WatchScoreTable:   true,
		HeaderMaxLength:   framing.DefaultMaxLength,
		MaxUploadBytes:    8 << 20,
		NamespacePrefixes: append([]string(nil), materials.DefaultNamespacePrefixes...),
		DataDir:           "./data",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("analyser.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("analyser.yaml: %w", err)
	}
	return cfg, nil
}

// Normalize fills derived paths and trims list entries.
func (c *Config) Normalize() {
	c.ScoreTable = strings.TrimSpace(c.ScoreTable)
	c.JournalMirror.Endpoint = strings.TrimSpace(c.JournalMirror.Endpoint)
	c.JournalMirror.Bucket = strings.TrimSpace(c.JournalMirror.Bucket)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.JournalDir) == "" {
		c.JournalDir = filepath.Join(c.DataDir, "reports")
	}
	if strings.TrimSpace(c.IndexDB) == "" {
		c.IndexDB = filepath.Join(c.DataDir, "index", "analyses.sqlite")
	}
	if c.HeaderMaxLength <= 0 {
		c.HeaderMaxLength = framing.DefaultMaxLength
	}
	out := c.NamespacePrefixes[:0]
	for _, p := range c.NamespacePrefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	c.NamespacePrefixes = out
}

func (c Config) Validate() error {
	if c.ScoreTable == "" {
		return fmt.Errorf("score_table is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be > 0")
	}
	if len(c.NamespacePrefixes) == 0 {
		return fmt.Errorf("namespace_prefixes must not be empty")
	}
	if (c.JournalMirror.Endpoint == "") != (c.JournalMirror.Bucket == "") {
		return fmt.Errorf("journal_mirror needs both endpoint and bucket")
	}
	if c.JournalMirror.Workers < 0 {
		return fmt.Errorf("journal_mirror.workers must be >= 0")
	}
	return nil
}

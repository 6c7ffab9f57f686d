// Package config parses indexer startup configuration from CLI flags,
// environment variables, and an optional TOML file, grounded on the
// source's clap-derived Opts/ChainId/StartOptions (config.rs).
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"

	"github.com/near/tx-indexer/mathutil"
	"github.com/near/tx-indexer/progress"
)

// Backend selects which storage.Store implementation to construct.
type Backend string

const (
	BackendBolt Backend = "bolt"
	BackendSQL  Backend = "sql"
)

// Config is the fully resolved startup configuration for cmd/txindexer.
type Config struct {
	IndexerId   string
	MetricsAddr string
	DebugSecret string

	Backend       Backend
	StorePath     string
	RetainAge     uint64
	ReadCacheSize int
	BlockSource   string // path or ws:// URL, interpreted by cmd/txindexer

	StartMode  progress.StartMode
	FromHeight uint64
}

// FileConfig is the optional TOML overlay loaded before flags/env are
// applied; explicit flags and env vars always win over file values, mirroring
// the precedence convention of urfave/cli's altsrc-less manual layering.
type FileConfig struct {
	IndexerId   string `toml:"indexer_id"`
	MetricsAddr string `toml:"metrics_addr"`
	DebugSecret string `toml:"debug_secret"`
	Backend     string `toml:"backend"`
	StorePath   string `toml:"store_path"`
	RetainAge   uint64 `toml:"retain_age_blocks"`
	BlockSource string `toml:"block_source"`
}

// LoadFile reads and parses a TOML config file at path.
func LoadFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fc, nil
}

// Flags is the cli.Flag set cmd/txindexer registers on its App.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "optional TOML config file", EnvVars: []string{"TX_INDEXER_CONFIG"}},
		&cli.StringFlag{Name: "indexer-id", Usage: "unique id for this indexer instance's progress cursor", EnvVars: []string{"TX_INDEXER_ID"}, Value: "tx-indexer"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "address the metrics HTTP server listens on", EnvVars: []string{"TX_INDEXER_METRICS_ADDR"}, Value: ":3030"},
		&cli.StringFlag{Name: "debug-secret", Usage: "HMAC secret gating /debug/cache; empty disables the route", EnvVars: []string{"TX_INDEXER_DEBUG_SECRET"}},
		&cli.StringFlag{Name: "backend", Usage: "storage backend: bolt or sql", EnvVars: []string{"TX_INDEXER_BACKEND"}, Value: "bolt"},
		&cli.StringFlag{Name: "store-path", Usage: "path to the backend's data file", EnvVars: []string{"TX_INDEXER_STORE_PATH"}, Value: "tx-indexer-data"},
		&cli.Uint64Flag{Name: "retain-age-blocks", Usage: "in-flight transaction retention window, in blocks; 0 disables the sweep", EnvVars: []string{"TX_INDEXER_RETAIN_AGE_BLOCKS"}, Value: 1000},
		&cli.IntFlag{Name: "read-cache-size", Usage: "entries held in the read-through transaction/receipt lookup cache; 0 disables it", EnvVars: []string{"TX_INDEXER_READ_CACHE_SIZE"}, Value: 4096},
		&cli.StringFlag{Name: "block-source", Usage: "file path or ws:// URL to read StreamerMessages from", EnvVars: []string{"TX_INDEXER_BLOCK_SOURCE"}, Required: true},
		&cli.StringFlag{Name: "start-mode", Usage: "from-height, from-interruption, or from-latest", EnvVars: []string{"TX_INDEXER_START_MODE"}, Value: "from-interruption"},
		&cli.StringFlag{Name: "from-height", Usage: "starting height when start-mode=from-height; decimal or 0x-prefixed hex", EnvVars: []string{"TX_INDEXER_FROM_HEIGHT"}},
	}
}

// FromCliContext resolves a Config from parsed flags, applying an optional
// TOML file first (flag/env values always override file values that were
// left at their zero value).
func FromCliContext(c *cli.Context) (Config, error) {
	fromHeight, ok := mathutil.ParseUint64(c.String("from-height"))
	if !ok {
		return Config{}, fmt.Errorf("config: invalid --from-height %q", c.String("from-height"))
	}

	cfg := Config{
		IndexerId:     c.String("indexer-id"),
		MetricsAddr:   c.String("metrics-addr"),
		DebugSecret:   c.String("debug-secret"),
		Backend:       Backend(c.String("backend")),
		StorePath:     c.String("store-path"),
		RetainAge:     c.Uint64("retain-age-blocks"),
		ReadCacheSize: c.Int("read-cache-size"),
		BlockSource:   c.String("block-source"),
		FromHeight:    fromHeight,
	}

	if path := c.String("config"); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		applyFileOverlay(&cfg, fc, c)
	}

	mode, err := parseStartMode(c.String("start-mode"))
	if err != nil {
		return Config{}, err
	}
	cfg.StartMode = mode

	if cfg.Backend != BackendBolt && cfg.Backend != BackendSQL {
		return Config{}, fmt.Errorf("config: unknown backend %q (want %q or %q)", cfg.Backend, BackendBolt, BackendSQL)
	}
	return cfg, nil
}

// applyFileOverlay fills cfg fields from fc wherever the corresponding flag
// was not explicitly set on the command line (c.IsSet reports false for
// values that came only from a flag Default).
func applyFileOverlay(cfg *Config, fc FileConfig, c *cli.Context) {
	if !c.IsSet("indexer-id") && fc.IndexerId != "" {
		cfg.IndexerId = fc.IndexerId
	}
	if !c.IsSet("metrics-addr") && fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	if !c.IsSet("debug-secret") && fc.DebugSecret != "" {
		cfg.DebugSecret = fc.DebugSecret
	}
	if !c.IsSet("backend") && fc.Backend != "" {
		cfg.Backend = Backend(fc.Backend)
	}
	if !c.IsSet("store-path") && fc.StorePath != "" {
		cfg.StorePath = fc.StorePath
	}
	if !c.IsSet("retain-age-blocks") && fc.RetainAge != 0 {
		cfg.RetainAge = fc.RetainAge
	}
	if !c.IsSet("block-source") && fc.BlockSource != "" {
		cfg.BlockSource = fc.BlockSource
	}
}

func parseStartMode(s string) (progress.StartMode, error) {
	switch s {
	case "from-height":
		return progress.FromHeight, nil
	case "from-interruption":
		return progress.FromInterruption, nil
	case "from-latest":
		return progress.FromLatest, nil
	default:
		return 0, fmt.Errorf("config: unknown start-mode %q", s)
	}
}

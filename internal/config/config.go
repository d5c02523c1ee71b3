// Package config loads the Reforge workspace configuration.
//
// Configuration resolves, in order of precedence: $REFORGE_* environment
// overrides, the config file (explicit path, else ./reforge.json),
// built-in defaults.
// All thresholds and policy knobs flow from here into stage entry points;
// no stage reads configuration globals.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete Reforge configuration.
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// ArtifactRoot is the {root} of the on-disk layout.
	ArtifactRoot string `json:"artifact_root" mapstructure:"artifact_root"`

	// DatabasePath is the sqlite database location.
	DatabasePath string `json:"database_path" mapstructure:"database_path"`

	Builder   BuilderConfig   `json:"builder" mapstructure:"builder"`
	Oracle    OracleConfig    `json:"oracle" mapstructure:"oracle"`
	Join      JoinConfig      `json:"join" mapstructure:"join"`
	Decompile DecompileConfig `json:"decompile" mapstructure:"decompile"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Worker    WorkerConfig    `json:"worker" mapstructure:"worker"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// BuilderConfig contains build-matrix configuration.
type BuilderConfig struct {
	CompilerPath     string `json:"compiler_path" mapstructure:"compiler_path"`
	StripPath        string `json:"strip_path" mapstructure:"strip_path"`
	ProfilePath      string `json:"profile_path" mapstructure:"profile_path"`
	CompileTimeoutMs int    `json:"compile_timeout_ms" mapstructure:"compile_timeout_ms"`
	LinkTimeoutMs    int    `json:"link_timeout_ms" mapstructure:"link_timeout_ms"`
	StripTimeoutMs   int    `json:"strip_timeout_ms" mapstructure:"strip_timeout_ms"`
	PreprocTimeoutMs int    `json:"preproc_timeout_ms" mapstructure:"preproc_timeout_ms"`
}

// OracleConfig contains DWARF and tree-sitter oracle thresholds.
type OracleConfig struct {
	MinDominantFileRatio float64  `json:"min_dominant_file_ratio" mapstructure:"min_dominant_file_ratio"`
	MaxFragmentsWarn     int      `json:"max_fragments_warn" mapstructure:"max_fragments_warn"`
	ExcludePathPrefixes  []string `json:"exclude_path_prefixes" mapstructure:"exclude_path_prefixes"`
	DeepNestingThreshold int      `json:"deep_nesting_threshold" mapstructure:"deep_nesting_threshold"`
}

// JoinConfig contains thresholds for both join stages.
type JoinConfig struct {
	OverlapThreshold   float64 `json:"overlap_threshold" mapstructure:"overlap_threshold"`
	Epsilon            float64 `json:"epsilon" mapstructure:"epsilon"`
	MinOverlapLines    int     `json:"min_overlap_lines" mapstructure:"min_overlap_lines"`
	StrongOverlapRatio float64 `json:"strong_overlap_ratio" mapstructure:"strong_overlap_ratio"`
	WeakOverlapRatio   float64 `json:"weak_overlap_ratio" mapstructure:"weak_overlap_ratio"`
	NearTieEpsilon     float64 `json:"near_tie_epsilon" mapstructure:"near_tie_epsilon"`
}

// DecompileConfig contains decompiler reshape thresholds.
type DecompileConfig struct {
	HighDecompileFailRate float64 `json:"high_decompile_fail_rate" mapstructure:"high_decompile_fail_rate"`
}

// ServerConfig contains the HTTP orchestration surface configuration.
type ServerConfig struct {
	Addr             string `json:"addr" mapstructure:"addr"`
	ReadTimeoutSecs  int    `json:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int    `json:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// WorkerConfig contains job-runner configuration.
type WorkerConfig struct {
	QueueSize   int `json:"queue_size" mapstructure:"queue_size"`
	WorkerCount int `json:"worker_count" mapstructure:"worker_count"`
	// IntraJobParallelism bounds parallel subprocess fan-out inside one job.
	IntraJobParallelism int `json:"intra_job_parallelism" mapstructure:"intra_job_parallelism"`
}

// LoggingConfig contains logger configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:      1,
		ArtifactRoot: "artifacts",
		DatabasePath: filepath.Join("artifacts", "reforge.db"),
		Builder: BuilderConfig{
			CompilerPath:     "gcc",
			StripPath:        "strip",
			CompileTimeoutMs: 30000,
			LinkTimeoutMs:    30000,
			StripTimeoutMs:   10000,
			PreprocTimeoutMs: 15000,
		},
		Oracle: OracleConfig{
			MinDominantFileRatio: 0.7,
			MaxFragmentsWarn:     2,
			ExcludePathPrefixes: []string{
				"/usr/include",
				"/usr/lib/gcc",
				"<built-in>",
				"<command-line>",
			},
			DeepNestingThreshold: 8,
		},
		Join: JoinConfig{
			OverlapThreshold:   0.7,
			Epsilon:            0.02,
			MinOverlapLines:    1,
			StrongOverlapRatio: 0.9,
			WeakOverlapRatio:   0.3,
			NearTieEpsilon:     0.05,
		},
		Decompile: DecompileConfig{
			HighDecompileFailRate: 0.25,
		},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8742",
			ReadTimeoutSecs:  15,
			WriteTimeoutSecs: 60,
		},
		Worker: WorkerConfig{
			QueueSize:           64,
			WorkerCount:         1,
			IntraJobParallelism: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "human",
		},
	}
}

// Load reads configuration from the given path (optional) merged over the
// defaults, with REFORGE_* environment overrides applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("REFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("reforge")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Missing workspace config is fine; defaults apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("version", cfg.Version)
	v.SetDefault("artifact_root", cfg.ArtifactRoot)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("builder.compiler_path", cfg.Builder.CompilerPath)
	v.SetDefault("builder.strip_path", cfg.Builder.StripPath)
	v.SetDefault("builder.compile_timeout_ms", cfg.Builder.CompileTimeoutMs)
	v.SetDefault("builder.link_timeout_ms", cfg.Builder.LinkTimeoutMs)
	v.SetDefault("builder.strip_timeout_ms", cfg.Builder.StripTimeoutMs)
	v.SetDefault("builder.preproc_timeout_ms", cfg.Builder.PreprocTimeoutMs)
	v.SetDefault("oracle.min_dominant_file_ratio", cfg.Oracle.MinDominantFileRatio)
	v.SetDefault("oracle.max_fragments_warn", cfg.Oracle.MaxFragmentsWarn)
	v.SetDefault("oracle.exclude_path_prefixes", cfg.Oracle.ExcludePathPrefixes)
	v.SetDefault("oracle.deep_nesting_threshold", cfg.Oracle.DeepNestingThreshold)
	v.SetDefault("join.overlap_threshold", cfg.Join.OverlapThreshold)
	v.SetDefault("join.epsilon", cfg.Join.Epsilon)
	v.SetDefault("join.min_overlap_lines", cfg.Join.MinOverlapLines)
	v.SetDefault("join.strong_overlap_ratio", cfg.Join.StrongOverlapRatio)
	v.SetDefault("join.weak_overlap_ratio", cfg.Join.WeakOverlapRatio)
	v.SetDefault("join.near_tie_epsilon", cfg.Join.NearTieEpsilon)
	v.SetDefault("decompile.high_decompile_fail_rate", cfg.Decompile.HighDecompileFailRate)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout_secs", cfg.Server.ReadTimeoutSecs)
	v.SetDefault("server.write_timeout_secs", cfg.Server.WriteTimeoutSecs)
	v.SetDefault("worker.queue_size", cfg.Worker.QueueSize)
	v.SetDefault("worker.worker_count", cfg.Worker.WorkerCount)
	v.SetDefault("worker.intra_job_parallelism", cfg.Worker.IntraJobParallelism)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.ArtifactRoot == "" {
		return fmt.Errorf("artifact_root must not be empty")
	}
	if c.Join.OverlapThreshold <= 0 || c.Join.OverlapThreshold > 1 {
		return fmt.Errorf("join.overlap_threshold must be in (0, 1], got %v", c.Join.OverlapThreshold)
	}
	if c.Join.Epsilon < 0 {
		return fmt.Errorf("join.epsilon must be >= 0")
	}
	if c.Join.WeakOverlapRatio >= c.Join.StrongOverlapRatio {
		return fmt.Errorf("join.weak_overlap_ratio must be below join.strong_overlap_ratio")
	}
	if c.Oracle.MinDominantFileRatio <= 0 || c.Oracle.MinDominantFileRatio > 1 {
		return fmt.Errorf("oracle.min_dominant_file_ratio must be in (0, 1]")
	}
	if c.Worker.WorkerCount < 1 {
		c.Worker.WorkerCount = 1
	}
	if c.Worker.IntraJobParallelism < 1 {
		c.Worker.IntraJobParallelism = 1
	}
	return nil
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Tiers  TierConfig   `yaml:"tiers" mapstructure:"tiers"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Actor  string       `yaml:"actor" mapstructure:"actor"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	// Driver selects the backend: "sqlite" (default) or "file".
	Driver string `yaml:"driver" mapstructure:"driver"`
	// DataDir holds the sqlite database and/or the flat-file documents.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// EngineConfig holds the decision-engine thresholds and scoring weights.
// The reliability and evolution constants are empirically tuned; they are
// exposed as configuration rather than re-derived.
type EngineConfig struct {
	PullThreshold     float64 `yaml:"pull_threshold" mapstructure:"pull_threshold"`
	EvolveThreshold   float64 `yaml:"evolve_threshold" mapstructure:"evolve_threshold"`
	GenerateThreshold float64 `yaml:"generate_threshold" mapstructure:"generate_threshold"`
	RetireThreshold   float64 `yaml:"retire_threshold" mapstructure:"retire_threshold"`

	RelevanceWeight   float64 `yaml:"relevance_weight" mapstructure:"relevance_weight"`
	CoherencyWeight   float64 `yaml:"coherency_weight" mapstructure:"coherency_weight"`
	ReliabilityWeight float64 `yaml:"reliability_weight" mapstructure:"reliability_weight"`

	PullRelevanceGate   float64 `yaml:"pull_relevance_gate" mapstructure:"pull_relevance_gate"`
	EvolveRelevanceGate float64 `yaml:"evolve_relevance_gate" mapstructure:"evolve_relevance_gate"`

	BugPenaltyPerReport float64 `yaml:"bug_penalty_per_report" mapstructure:"bug_penalty_per_report"`
	VoteBoostScale      float64 `yaml:"vote_boost_scale" mapstructure:"vote_boost_scale"`
	VoteBoostCap        float64 `yaml:"vote_boost_cap" mapstructure:"vote_boost_cap"`
	VoteBoostFloor      float64 `yaml:"vote_boost_floor" mapstructure:"vote_boost_floor"`

	StalenessAfterDays int     `yaml:"staleness_after_days" mapstructure:"staleness_after_days"`
	StalenessFullDays  int     `yaml:"staleness_full_days" mapstructure:"staleness_full_days"`
	StalenessCap       float64 `yaml:"staleness_cap" mapstructure:"staleness_cap"`

	OverEvolutionChildren int     `yaml:"over_evolution_children" mapstructure:"over_evolution_children"`
	OverEvolutionStep     float64 `yaml:"over_evolution_step" mapstructure:"over_evolution_step"`
	OverEvolutionCap      float64 `yaml:"over_evolution_cap" mapstructure:"over_evolution_cap"`

	NameBonus           float64 `yaml:"name_bonus" mapstructure:"name_bonus"`
	AtomicFocusBonus    float64 `yaml:"atomic_focus_bonus" mapstructure:"atomic_focus_bonus"`
	CompositeFocusBonus float64 `yaml:"composite_focus_bonus" mapstructure:"composite_focus_bonus"`

	DefaultSuccessRate float64 `yaml:"default_success_rate" mapstructure:"default_success_rate"`
	ReliabilityCeiling float64 `yaml:"reliability_ceiling" mapstructure:"reliability_ceiling"`
}

// TierConfig holds complexity-tier line and nesting limits.
type TierConfig struct {
	AtomicMaxLines      int `yaml:"atomic_max_lines" mapstructure:"atomic_max_lines"`
	AtomicMaxNesting    int `yaml:"atomic_max_nesting" mapstructure:"atomic_max_nesting"`
	CompositeMaxLines   int `yaml:"composite_max_lines" mapstructure:"composite_max_lines"`
	CompositeMaxNesting int `yaml:"composite_max_nesting" mapstructure:"composite_max_nesting"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CODEKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// SetDefaults registers every recognized option with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.data_dir", ".codekeep")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("actor", "local")

	v.SetDefault("engine.pull_threshold", 0.70)
	v.SetDefault("engine.evolve_threshold", 0.50)
	v.SetDefault("engine.generate_threshold", 0.30)
	v.SetDefault("engine.retire_threshold", 0.40)
	v.SetDefault("engine.relevance_weight", 0.45)
	v.SetDefault("engine.coherency_weight", 0.30)
	v.SetDefault("engine.reliability_weight", 0.25)
	v.SetDefault("engine.pull_relevance_gate", 0.35)
	v.SetDefault("engine.evolve_relevance_gate", 0.20)
	v.SetDefault("engine.bug_penalty_per_report", 0.15)
	v.SetDefault("engine.vote_boost_scale", 0.02)
	v.SetDefault("engine.vote_boost_cap", 0.10)
	v.SetDefault("engine.vote_boost_floor", -0.10)
	v.SetDefault("engine.staleness_after_days", 30)
	v.SetDefault("engine.staleness_full_days", 120)
	v.SetDefault("engine.staleness_cap", 0.10)
	v.SetDefault("engine.over_evolution_children", 3)
	v.SetDefault("engine.over_evolution_step", 0.02)
	v.SetDefault("engine.over_evolution_cap", 0.08)
	v.SetDefault("engine.name_bonus", 0.05)
	v.SetDefault("engine.atomic_focus_bonus", 0.03)
	v.SetDefault("engine.composite_focus_bonus", 0.015)
	v.SetDefault("engine.default_success_rate", 0.5)
	v.SetDefault("engine.reliability_ceiling", 1.0)

	v.SetDefault("tiers.atomic_max_lines", 30)
	v.SetDefault("tiers.atomic_max_nesting", 3)
	v.SetDefault("tiers.composite_max_lines", 90)
	v.SetDefault("tiers.composite_max_nesting", 5)
}

// Default returns a Config populated with defaults only. Used by tests and
// as the base for emitted starter configs.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

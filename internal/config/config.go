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
	Harvest    HarvestConfig    `yaml:"harvest" mapstructure:"harvest"`
	Wiki       WikiConfig       `yaml:"wiki" mapstructure:"wiki"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// HarvestConfig configures the crawl/classify pipeline.
type HarvestConfig struct {
	Seeds                 []string `yaml:"seeds" mapstructure:"seeds"`
	MaxDepth              int      `yaml:"max_depth" mapstructure:"max_depth"`
	MaxWorkers            int      `yaml:"max_workers" mapstructure:"max_workers"`
	MaxEntries            int      `yaml:"max_entries" mapstructure:"max_entries"`
	MaxMembersPerCategory int      `yaml:"max_members_per_category" mapstructure:"max_members_per_category"`
	CheckpointInterval    int      `yaml:"checkpoint_interval" mapstructure:"checkpoint_interval"`
	QueueCapacity         int      `yaml:"queue_capacity" mapstructure:"queue_capacity"`
	OutputDir             string   `yaml:"output_dir" mapstructure:"output_dir"`
	CheckpointFile        string   `yaml:"checkpoint_file" mapstructure:"checkpoint_file"`
}

// WikiConfig configures the MediaWiki API client.
type WikiConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ClassifierConfig configures the rule-based classifier.
type ClassifierConfig struct {
	MinContentLength    int     `yaml:"min_content_length" mapstructure:"min_content_length"`
	ExclusionThreshold  float64 `yaml:"exclusion_threshold" mapstructure:"exclusion_threshold"`
	NormalizingConstant float64 `yaml:"normalizing_constant" mapstructure:"normalizing_constant"`
	RulesFile           string  `yaml:"rules_file" mapstructure:"rules_file"`
}

// StoreConfig configures the dataset store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("harvest.seeds", []string{
		"Fictional technology",
		"Science fiction weapons",
		"Fictional spacecraft",
		"Fictional vehicles",
		"Fictional robots",
	})
	v.SetDefault("harvest.max_depth", 5)
	v.SetDefault("harvest.max_workers", 4)
	v.SetDefault("harvest.max_entries", 5000)
	v.SetDefault("harvest.max_members_per_category", 500)
	v.SetDefault("harvest.checkpoint_interval", 10)
	v.SetDefault("harvest.queue_capacity", 256)
	v.SetDefault("harvest.output_dir", "data")
	v.SetDefault("harvest.checkpoint_file", "checkpoints/harvest.json")
	v.SetDefault("wiki.base_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("wiki.user_agent", "fictech-harvester/1.0 (https://github.com/arvinsingh/fictech-harvester)")
	v.SetDefault("wiki.rate_per_sec", 5.0)
	v.SetDefault("wiki.burst", 5)
	v.SetDefault("wiki.timeout_secs", 30)
	v.SetDefault("classifier.min_content_length", 200)
	v.SetDefault("classifier.exclusion_threshold", 2.0)
	v.SetDefault("classifier.normalizing_constant", 8.0)
	v.SetDefault("store.path", "checkpoints/harvest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate rejects configurations that cannot produce a valid run. It is
// called once at startup, before any worker starts. hasCheckpoint relaxes
// the seed requirement: a resumed run rehydrates its frontier instead.
func (c *Config) Validate(hasCheckpoint bool) error {
	if c.Harvest.MaxDepth < 0 {
		return eris.Errorf("config: max_depth must be >= 0, got %d", c.Harvest.MaxDepth)
	}
	if c.Harvest.MaxWorkers < 1 {
		return eris.Errorf("config: max_workers must be >= 1, got %d", c.Harvest.MaxWorkers)
	}
	if c.Harvest.MaxEntries < 0 {
		return eris.Errorf("config: max_entries must be >= 0, got %d", c.Harvest.MaxEntries)
	}
	if c.Harvest.CheckpointInterval < 1 {
		return eris.Errorf("config: checkpoint_interval must be >= 1, got %d", c.Harvest.CheckpointInterval)
	}
	if c.Harvest.QueueCapacity < 1 {
		return eris.Errorf("config: queue_capacity must be >= 1, got %d", c.Harvest.QueueCapacity)
	}
	if c.Wiki.RatePerSec <= 0 {
		return eris.Errorf("config: wiki.rate_per_sec must be > 0, got %f", c.Wiki.RatePerSec)
	}
	if len(c.Harvest.Seeds) == 0 && !hasCheckpoint {
		return eris.New("config: no seed categories and no checkpoint to resume from")
	}
	return nil
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

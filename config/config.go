// Package config loads crewgraph settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/smallnest/crewgraph/graph"
	"github.com/smallnest/crewgraph/llms/openaicompat"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/prebuilt"
	"github.com/smallnest/crewgraph/store"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// CREWGRAPH_STORE_BACKEND.
const EnvPrefix = "CREWGRAPH"

// Config is the complete application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Store    StoreConfig    `mapstructure:"store"`
	Team     TeamConfig     `mapstructure:"team"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Search   SearchConfig   `mapstructure:"search"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Log      LogConfig      `mapstructure:"log"`
}

type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Backend   string `mapstructure:"backend"`    // file, memory, sqlite, redis, postgres
	Path      string `mapstructure:"path"`       // file and sqlite
	DSN       string `mapstructure:"dsn"`        // postgres
	Addr      string `mapstructure:"addr"`       // redis
	Password  string `mapstructure:"password"`   // redis
	DB        int    `mapstructure:"db"`         // redis
	Prefix    string `mapstructure:"prefix"`     // redis
	ClearMode string `mapstructure:"clear_mode"` // keep or remove
}

type TeamConfig struct {
	Persona         string        `mapstructure:"persona"`
	MinLength       int           `mapstructure:"min_length"`
	MaxRevisions    int           `mapstructure:"max_revisions"`
	AmbiguousPolicy string        `mapstructure:"ambiguous_policy"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout"`
	ModelReview     bool          `mapstructure:"model_review"`
}

type ApprovalConfig struct {
	ApproveToken    string        `mapstructure:"approve_token"`
	MaxSteps        int           `mapstructure:"max_steps"`
	AmbiguousPolicy string        `mapstructure:"ambiguous_policy"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout"`
}

type SearchConfig struct {
	Provider    string `mapstructure:"provider"` // duckduckgo or brave
	BraveAPIKey string `mapstructure:"brave_api_key"`
	MaxResults  int    `mapstructure:"max_results"`
}

type ChatConfig struct {
	Window int `mapstructure:"window"`
	TopK   int `mapstructure:"top_k"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var backends = []string{"file", "memory", "sqlite", "redis", "postgres"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", openaicompat.DefaultBaseURL)
	v.SetDefault("llm.model", openaicompat.DefaultModel)
	v.SetDefault("llm.embedding_model", openaicompat.DefaultEmbeddingModel)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "chat_history.json")
	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.prefix", "crewgraph:")
	v.SetDefault("store.clear_mode", "keep")

	v.SetDefault("team.persona", prebuilt.DefaultPersona)
	v.SetDefault("team.min_length", prebuilt.DefaultMinLength)
	v.SetDefault("team.max_revisions", prebuilt.DefaultMaxRevisions)
	v.SetDefault("team.ambiguous_policy", prebuilt.TreatAsRejected.String())
	v.SetDefault("team.stage_timeout", "2m")
	v.SetDefault("team.model_review", false)

	v.SetDefault("approval.approve_token", prebuilt.DefaultApproveToken)
	v.SetDefault("approval.max_steps", graph.DefaultMaxSteps)
	v.SetDefault("approval.ambiguous_policy", prebuilt.TreatAsRejected.String())
	v.SetDefault("approval.stage_timeout", "2m")

	v.SetDefault("search.provider", "duckduckgo")
	v.SetDefault("search.max_results", 5)

	v.SetDefault("chat.window", 20)
	v.SetDefault("chat.top_k", 2)

	v.SetDefault("log.level", "info")
}

// Load reads the configuration. An empty path looks for crewgraph.yaml in
// the working directory and the user config directory; a missing file is
// not an error then. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("crewgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/crewgraph")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// widely used provider variable names
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.base_url", EnvPrefix+"_LLM_BASE_URL", "DASHSCOPE_BASE_URL")
	_ = v.BindEnv("search.brave_api_key", EnvPrefix+"_SEARCH_BRAVE_API_KEY", "BRAVE_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend %q is not one of %s", c.Store.Backend, strings.Join(backends, ", ")))
	}
	if (c.Store.Backend == "file" || c.Store.Backend == "sqlite") && c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required for the %s backend", c.Store.Backend))
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required for the postgres backend"))
	}
	if _, err := store.ParseClearMode(c.Store.ClearMode); err != nil {
		errs = append(errs, fmt.Errorf("store.clear_mode: %w", err))
	}

	if c.Team.MinLength <= 0 {
		errs = append(errs, errors.New("team.min_length must be positive"))
	}
	if c.Team.MaxRevisions <= 0 {
		errs = append(errs, errors.New("team.max_revisions must be positive"))
	}
	if _, err := prebuilt.ParseAmbiguousPolicy(c.Team.AmbiguousPolicy); err != nil {
		errs = append(errs, fmt.Errorf("team.ambiguous_policy: %w", err))
	}
	if c.Team.StageTimeout < 0 || c.Approval.StageTimeout < 0 {
		errs = append(errs, errors.New("stage_timeout must not be negative"))
	}

	if c.Approval.MaxSteps <= 0 {
		errs = append(errs, errors.New("approval.max_steps must be positive"))
	}
	if strings.TrimSpace(c.Approval.ApproveToken) == "" {
		errs = append(errs, errors.New("approval.approve_token must not be empty"))
	}
	if _, err := prebuilt.ParseAmbiguousPolicy(c.Approval.AmbiguousPolicy); err != nil {
		errs = append(errs, fmt.Errorf("approval.ambiguous_policy: %w", err))
	}

	switch c.Search.Provider {
	case "duckduckgo":
	case "brave":
		if c.Search.BraveAPIKey == "" {
			errs = append(errs, errors.New("search.brave_api_key is required for the brave provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("search.provider %q is not one of duckduckgo, brave", c.Search.Provider))
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, errors.New("search.max_results must be positive"))
	}

	if c.Chat.Window < 0 || c.Chat.TopK < 0 {
		errs = append(errs, errors.New("chat.window and chat.top_k must not be negative"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

package config

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/smallnest/crewgraph/llms/openaicompat"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/prebuilt"
	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/store/file"
	"github.com/smallnest/crewgraph/store/memory"
	"github.com/smallnest/crewgraph/store/postgres"
	"github.com/smallnest/crewgraph/store/redis"
	"github.com/smallnest/crewgraph/store/sqlite"
	"github.com/smallnest/crewgraph/tool"
	"github.com/tmc/langchaingo/tools"
)

// NewLogger returns a logger writing to out at the configured level.
func (c *Config) NewLogger(out io.Writer) log.Logger {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		level = log.LogLevelInfo
	}
	return log.NewLogger(out, level)
}

// OpenStore opens the configured session store backend.
func (c *Config) OpenStore(ctx context.Context, logger log.Logger) (store.Store, error) {
	mode, err := store.ParseClearMode(c.Store.ClearMode)
	if err != nil {
		return nil, err
	}
	s := c.Store
	switch s.Backend {
	case "memory":
		return memory.New(mode), nil
	case "file":
		return file.New(file.Options{Path: s.Path, ClearMode: mode, Logger: logger})
	case "sqlite":
		return sqlite.New(sqlite.Options{Path: s.Path, ClearMode: mode, Logger: logger})
	case "redis":
		return redis.New(redis.Options{
			Addr:      s.Addr,
			Password:  s.Password,
			DB:        s.DB,
			Prefix:    s.Prefix,
			ClearMode: mode,
			Logger:    logger,
		}), nil
	case "postgres":
		return postgres.New(ctx, postgres.Options{ConnString: s.DSN, ClearMode: mode, Logger: logger})
	}
	return nil, fmt.Errorf("unknown store backend %q", s.Backend)
}

// NewModel returns the OpenAI compatible chat model.
func (c *Config) NewModel() (*openaicompat.LLM, error) {
	opts := []openaicompat.Option{
		openaicompat.WithBaseURL(c.LLM.BaseURL),
		openaicompat.WithModel(c.LLM.Model),
		openaicompat.WithEmbeddingModel(c.LLM.EmbeddingModel),
	}
	if c.LLM.APIKey != "" {
		opts = append(opts, openaicompat.WithAPIKey(c.LLM.APIKey))
	}
	if c.LLM.Timeout > 0 {
		opts = append(opts, openaicompat.WithHTTPClient(&http.Client{Timeout: c.LLM.Timeout}))
	}
	return openaicompat.New(opts...)
}

// NewSearchTool returns the configured web search tool.
func (c *Config) NewSearchTool() (tools.Tool, error) {
	switch c.Search.Provider {
	case "brave":
		return tool.NewBraveSearch(c.Search.BraveAPIKey, tool.WithBraveCount(c.Search.MaxResults))
	case "duckduckgo", "":
		return tool.NewDuckDuckGo(tool.WithDuckDuckGoMaxResults(c.Search.MaxResults)), nil
	}
	return nil, fmt.Errorf("unknown search provider %q", c.Search.Provider)
}

// TeamPolicy returns the team's ambiguous verdict policy.
func (c *Config) TeamPolicy() prebuilt.AmbiguousPolicy {
	p, _ := prebuilt.ParseAmbiguousPolicy(c.Team.AmbiguousPolicy)
	return p
}

// ApprovalPolicy returns the approval agent's ambiguous verdict policy.
func (c *Config) ApprovalPolicy() prebuilt.AmbiguousPolicy {
	p, _ := prebuilt.ParseAmbiguousPolicy(c.Approval.AmbiguousPolicy)
	return p
}

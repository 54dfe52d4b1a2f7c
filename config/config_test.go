package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/prebuilt"
	"github.com/smallnest/crewgraph/store/file"
	"github.com/smallnest/crewgraph/store/memory"
	"github.com/smallnest/crewgraph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	tempDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.T().Chdir(s.tempDir)
	s.T().Setenv("HOME", s.tempDir)
	for _, k := range []string{"OPENAI_API_KEY", "DASHSCOPE_BASE_URL", "BRAVE_API_KEY"} {
		s.T().Setenv(k, "")
		os.Unsetenv(k)
	}
}

func (s *ConfigTestSuite) write(name, content string) string {
	path := filepath.Join(s.tempDir, name)
	require.NoError(s.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Load("")
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "qwen-plus", cfg.LLM.Model)
	assert.Equal(s.T(), 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(s.T(), "file", cfg.Store.Backend)
	assert.Equal(s.T(), "chat_history.json", cfg.Store.Path)
	assert.Equal(s.T(), prebuilt.DefaultMaxRevisions, cfg.Team.MaxRevisions)
	assert.Equal(s.T(), prebuilt.DefaultMinLength, cfg.Team.MinLength)
	assert.Equal(s.T(), "ok", cfg.Approval.ApproveToken)
	assert.Equal(s.T(), 25, cfg.Approval.MaxSteps)
	assert.Equal(s.T(), "duckduckgo", cfg.Search.Provider)
	assert.Equal(s.T(), prebuilt.TreatAsRejected, cfg.TeamPolicy())
	assert.Equal(s.T(), "info", cfg.Log.Level)
}

func (s *ConfigTestSuite) TestFileInWorkingDirectory() {
	s.write("crewgraph.yaml", `
store:
  backend: sqlite
  path: sessions.db
team:
  max_revisions: 5
  ambiguous_policy: fail
  stage_timeout: 30s
log:
  level: debug
`)
	cfg, err := Load("")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "sqlite", cfg.Store.Backend)
	assert.Equal(s.T(), "sessions.db", cfg.Store.Path)
	assert.Equal(s.T(), 5, cfg.Team.MaxRevisions)
	assert.Equal(s.T(), prebuilt.FailRun, cfg.TeamPolicy())
	assert.Equal(s.T(), 30*time.Second, cfg.Team.StageTimeout)
	assert.Equal(s.T(), "debug", cfg.Log.Level)
	// untouched sections keep their defaults
	assert.Equal(s.T(), "ok", cfg.Approval.ApproveToken)
}

func (s *ConfigTestSuite) TestExplicitPathMustExist() {
	_, err := Load(filepath.Join(s.tempDir, "missing.yaml"))
	assert.Error(s.T(), err)
}

func (s *ConfigTestSuite) TestEnvironment() {
	s.T().Setenv("OPENAI_API_KEY", "sk-test")
	s.T().Setenv("DASHSCOPE_BASE_URL", "http://localhost:9999/v1")
	s.T().Setenv("CREWGRAPH_STORE_BACKEND", "memory")
	s.T().Setenv("CREWGRAPH_APPROVAL_MAX_STEPS", "7")

	cfg, err := Load("")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "sk-test", cfg.LLM.APIKey)
	assert.Equal(s.T(), "http://localhost:9999/v1", cfg.LLM.BaseURL)
	assert.Equal(s.T(), "memory", cfg.Store.Backend)
	assert.Equal(s.T(), 7, cfg.Approval.MaxSteps)
}

func (s *ConfigTestSuite) TestPrefixedEnvironmentWins() {
	s.T().Setenv("OPENAI_API_KEY", "generic")
	s.T().Setenv("CREWGRAPH_LLM_API_KEY", "specific")

	cfg, err := Load("")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "specific", cfg.LLM.APIKey)
}

func (s *ConfigTestSuite) TestInvalidFile() {
	path := s.write("bad.yaml", `
store:
  backend: mongo
team:
  max_revisions: 0
search:
  provider: brave
`)
	_, err := Load(path)
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), `store.backend "mongo"`)
	assert.Contains(s.T(), err.Error(), "team.max_revisions must be positive")
	assert.Contains(s.T(), err.Error(), "search.brave_api_key is required")
}

func (s *ConfigTestSuite) TestOpenStore() {
	cfg, err := Load("")
	require.NoError(s.T(), err)
	logger := &log.NoOpLogger{}

	cfg.Store.Backend = "memory"
	st, err := cfg.OpenStore(context.Background(), logger)
	require.NoError(s.T(), err)
	assert.IsType(s.T(), &memory.Store{}, st)

	cfg.Store.Backend = "file"
	cfg.Store.Path = filepath.Join(s.tempDir, "history.json")
	st, err = cfg.OpenStore(context.Background(), logger)
	require.NoError(s.T(), err)
	assert.IsType(s.T(), &file.Store{}, st)
	require.NoError(s.T(), st.Close())

	cfg.Store.Backend = "mongo"
	_, err = cfg.OpenStore(context.Background(), logger)
	assert.Error(s.T(), err)
}

func (s *ConfigTestSuite) TestNewSearchTool() {
	cfg, err := Load("")
	require.NoError(s.T(), err)

	search, err := cfg.NewSearchTool()
	require.NoError(s.T(), err)
	assert.IsType(s.T(), &tool.DuckDuckGo{}, search)

	cfg.Search.Provider = "brave"
	cfg.Search.BraveAPIKey = "key"
	search, err = cfg.NewSearchTool()
	require.NoError(s.T(), err)
	assert.IsType(s.T(), &tool.BraveSearch{}, search)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Store:    StoreConfig{Backend: "postgres", ClearMode: "keep"},
		Team:     TeamConfig{MinLength: 10, MaxRevisions: 3, AmbiguousPolicy: "maybe"},
		Approval: ApprovalConfig{ApproveToken: " ", MaxSteps: 0},
		Search:   SearchConfig{Provider: "bing", MaxResults: 5},
		Log:      LogConfig{Level: "loud"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"store.dsn is required",
		"team.ambiguous_policy",
		"approval.max_steps must be positive",
		"approval.approve_token must not be empty",
		`search.provider "bing"`,
		"log.level",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

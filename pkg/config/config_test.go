package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "flowllm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDecodesNestedStructure(t *testing.T) {
	path := writeTempConfig(t, `
app_id: test-app
language: en
pool_size: 8
llms:
  default:
    backend: openai
    model: gpt-test
ops:
  search_op:
    backend: search
    max_retries: 3
flows:
  qa:
    content: "search_op"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-app", cfg.AppID)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, "openai", cfg.LLMs["default"].Backend)
	assert.Equal(t, 3, cfg.Ops["search_op"].MaxRetries)
	assert.Equal(t, "search_op", cfg.Flows["qa"].Content)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-abc123")
	path := writeTempConfig(t, `
app_id: test-app
llms:
  default:
    backend: openai
    api_key: ${TEST_LLM_KEY}
    region: ${MISSING_VAR:-us-east-1}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc123", cfg.LLMs["default"].Params["api_key"])
	assert.Equal(t, "us-east-1", cfg.LLMs["default"].Params["region"])
}

func TestApplyOverridesSetsNestedKey(t *testing.T) {
	path := writeTempConfig(t, `
app_id: test-app
pool_size: 8
server:
  http_addr: ":8080"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	err = ApplyOverrides(cfg, []string{"server.http_addr=:9000", "pool_size=32"})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	assert.Equal(t, 32, cfg.PoolSize)
}

func TestApplyOverridesRejectsMalformedEntry(t *testing.T) {
	cfg := &Config{}
	err := ApplyOverrides(cfg, []string{"no-equals-sign"})
	require.Error(t, err)
}

func TestCoerceTypes(t *testing.T) {
	assert.Equal(t, true, coerce("true"))
	assert.Equal(t, 42, coerce("42"))
	assert.Equal(t, 3.14, coerce("3.14"))
	assert.Equal(t, "hello", coerce("hello"))
}

func TestLoadEnvWalksParentDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("WALK_TEST_VAR=found\n"), 0o600))

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	require.NoError(t, LoadEnv(nested))
	assert.Equal(t, "found", os.Getenv("WALK_TEST_VAR"))
	os.Unsetenv("WALK_TEST_VAR")
}

package docgraph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, SinkNeo4j, cfg.Sink)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, 60*time.Second, cfg.Neo4j.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docgraph.yaml")
	data := `sink: sqlite
sqlite:
  db_path: /tmp/graph.db
neo4j:
  timeout: 5s
artifact_path: out/generated_cypher.cypher
watch:
  extensions: [".txt"]
  debounce: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, SinkSQLite, cfg.Sink)
	assert.Equal(t, "/tmp/graph.db", cfg.SQLite.ResolveDBPath())
	assert.Equal(t, 5*time.Second, cfg.Neo4j.Timeout)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI, "unset fields keep defaults")
	assert.Equal(t, "out/generated_cypher.cypher", cfg.ArtifactPath)
	assert.Equal(t, []string{".txt"}, cfg.Watch.Extensions)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 1024, cfg.Watch.CacheSize)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sink: [unclosed"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sink, cfg.Sink)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DOCGRAPH_SINK":           "memory",
		"DOCGRAPH_NEO4J_PASSWORD": "secret",
		"DOCGRAPH_NEO4J_TIMEOUT":  "90s",
		"DOCGRAPH_RULES":          "rules.yaml",
		"DOCGRAPH_ARTIFACT":       "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.ArtifactPath = "keep.cypher"
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, SinkMemory, cfg.Sink)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, 90*time.Second, cfg.Neo4j.Timeout)
	assert.Equal(t, "rules.yaml", cfg.RulesPath)
	assert.Equal(t, "keep.cypher", cfg.ArtifactPath, "empty values are ignored")

	env["DOCGRAPH_NEO4J_TIMEOUT"] = "soon"
	assert.ErrorIs(t, cfg.ApplyEnv(lookup), ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"sqlite", func(c *Config) { c.Sink = SinkSQLite }, true},
		{"memory upper", func(c *Config) { c.Sink = "MEMORY" }, true},
		{"unknown sink", func(c *Config) { c.Sink = "redis" }, false},
		{"no neo4j uri", func(c *Config) { c.Neo4j.URI = "" }, false},
		{"negative timeout", func(c *Config) { c.Neo4j.Timeout = -time.Second }, false},
		{"negative cache", func(c *Config) { c.Watch.CacheSize = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestResolveDBPath(t *testing.T) {
	local := SQLiteConfig{DBName: "reports", StorageDir: "local"}
	assert.Equal(t, "reports.db", local.ResolveDBPath())

	home := SQLiteConfig{StorageDir: "home"}
	got := home.ResolveDBPath()
	assert.True(t, strings.HasSuffix(got, filepath.Join(".docgraph", "docgraph.db")), got)
}

package docgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/docgraph/sink"
)

// Sink kinds accepted in Config.Sink.
const (
	SinkNeo4j  = "neo4j"
	SinkSQLite = "sqlite"
	SinkMemory = "memory"
)

// Config holds all configuration for the pipeline and its collaborators.
type Config struct {
	// Sink selects the graph store: neo4j, sqlite or memory.
	Sink string `json:"sink" yaml:"sink"`

	Neo4j  sink.Neo4jConfig `json:"neo4j" yaml:"neo4j"`
	SQLite SQLiteConfig     `json:"sqlite" yaml:"sqlite"`

	// RulesPath points to a YAML rule table. Empty uses the built-in rules.
	RulesPath string `json:"rules_path" yaml:"rules_path"`

	// ArtifactPath, when set, receives the compiled statement script before
	// every submission.
	ArtifactPath string `json:"artifact_path" yaml:"artifact_path"`

	// EnsureConstraints creates per-label uniqueness constraints on startup (neo4j only).
	EnsureConstraints bool `json:"ensure_constraints" yaml:"ensure_constraints"`

	Watch WatchConfig `json:"watch" yaml:"watch"`
}

// SQLiteConfig configures the embedded graph store.
type SQLiteConfig struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.docgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. "home" (default) uses ~/.docgraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`
}

// WatchConfig configures directory watching.
type WatchConfig struct {
	Extensions []string      `json:"extensions" yaml:"extensions"`
	Debounce   time.Duration `json:"debounce" yaml:"debounce"`
	CacheSize  int           `json:"cache_size" yaml:"cache_size"` // remembered file hashes
}

// DefaultConfig returns a Config for a local Neo4j instance.
func DefaultConfig() Config {
	return Config{
		Sink: SinkNeo4j,
		Neo4j: sink.Neo4jConfig{
			URI:     "bolt://localhost:7687",
			User:    "neo4j",
			Timeout: 60 * time.Second,
		},
		SQLite: SQLiteConfig{
			DBName:     "docgraph",
			StorageDir: "home",
		},
		Watch: WatchConfig{
			Extensions: []string{".pdf", ".docx", ".xlsx", ".txt", ".md"},
			Debounce:   500 * time.Millisecond,
			CacheSize:  1024,
		},
	}
}

// LoadConfig reads a YAML (or JSON) config file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides config fields from DOCGRAPH_* environment variables.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DOCGRAPH_SINK":           &c.Sink,
		"DOCGRAPH_NEO4J_URI":      &c.Neo4j.URI,
		"DOCGRAPH_NEO4J_USER":     &c.Neo4j.User,
		"DOCGRAPH_NEO4J_PASSWORD": &c.Neo4j.Password,
		"DOCGRAPH_NEO4J_DATABASE": &c.Neo4j.Database,
		"DOCGRAPH_DB_PATH":        &c.SQLite.DBPath,
		"DOCGRAPH_RULES":          &c.RulesPath,
		"DOCGRAPH_ARTIFACT":       &c.ArtifactPath,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("DOCGRAPH_NEO4J_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: DOCGRAPH_NEO4J_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		c.Neo4j.Timeout = d
	}
	return nil
}

// Validate checks that the selected sink is fully configured.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Sink) {
	case SinkNeo4j:
		if c.Neo4j.URI == "" {
			return fmt.Errorf("%w: neo4j.uri is required", ErrInvalidConfig)
		}
		if c.Neo4j.Timeout < 0 {
			return fmt.Errorf("%w: neo4j.timeout must not be negative", ErrInvalidConfig)
		}
	case SinkSQLite, SinkMemory:
	default:
		return fmt.Errorf("%w: unknown sink %q", ErrInvalidConfig, c.Sink)
	}
	if c.Watch.CacheSize < 0 {
		return fmt.Errorf("%w: watch.cache_size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ResolveDBPath computes the final SQLite database path from config fields.
func (c *SQLiteConfig) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "docgraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".docgraph", name+".db")
	}
}

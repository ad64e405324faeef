package ogm

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dialect names accepted in Config.Dialect.
const (
	DialectMemory   = "memory"
	DialectHTTP     = "http"
	DialectBolt     = "bolt"
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectPgx      = "pgx"
	DialectMySQL    = "mysql"
)

var dialects = []string{
	DialectMemory, DialectHTTP, DialectBolt,
	DialectSQLite, DialectPostgres, DialectPgx, DialectMySQL,
}

// Config is the configuration record accepted by a session factory.
type Config struct {
	// ScanRoots are the package paths whose types are registered as entities.
	ScanRoots []string `yaml:"scan_roots"`
	// EndpointBaseURL is the graph server address, for example
	// http://localhost:7474 or neo4j://localhost:7687.
	EndpointBaseURL string `yaml:"endpoint_base_url"`
	// Credentials authenticate against the endpoint.
	Credentials Credentials `yaml:"credentials"`
	// Dialect selects the transport. Defaults to http.
	Dialect string `yaml:"dialect"`
	// DSN is the data source name for SQL dialects.
	DSN string `yaml:"dsn"`
	// Database selects a named database on servers that host several.
	Database string `yaml:"database"`
	// SlowQueryThreshold enables slow statement logging when positive.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
	// Debug logs every statement sent to the transport.
	Debug bool `yaml:"debug"`
}

// Credentials holds basic authentication data.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// String returns the credentials with the password redacted.
func (c Credentials) String() string {
	if c.Password == "" {
		return c.Username
	}
	return c.Username + ":******"
}

// Empty reports whether no credentials were configured.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// LoadConfig reads a YAML configuration file. Environment variables
// referenced as ${NAME} are expanded before decoding.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ogm: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("ogm: parse config: %w", err)
	}
	if cfg.Dialect == "" {
		cfg.Dialect = DialectHTTP
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or unknown values.
func (c *Config) Validate() error {
	var errs []error
	if len(c.ScanRoots) == 0 {
		errs = append(errs, errors.New("scan_roots must not be empty"))
	}
	for _, root := range c.ScanRoots {
		if strings.TrimSpace(root) == "" {
			errs = append(errs, errors.New("scan_roots contains an empty entry"))
			break
		}
	}
	if c.Dialect != "" && !slices.Contains(dialects, c.Dialect) {
		errs = append(errs, fmt.Errorf("unknown dialect %q", c.Dialect))
	}
	switch c.Dialect {
	case DialectHTTP, DialectBolt:
		if c.EndpointBaseURL == "" {
			errs = append(errs, fmt.Errorf("endpoint_base_url is required for dialect %q", c.Dialect))
		}
	case DialectSQLite, DialectPostgres, DialectPgx, DialectMySQL:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("dsn is required for dialect %q", c.Dialect))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("ogm: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

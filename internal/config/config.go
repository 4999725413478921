package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location when set.
const EnvConfigPath = "SNAPRESTORE_CONFIG"

// DefaultMaxQueryRetries is used when the config does not set restore.max_query_retries.
const DefaultMaxQueryRetries = 3

// Config matches the structure of the config.yaml file.
type Config struct {
	Version      int                   `yaml:"version"`
	Clusters     map[string]Cluster    `yaml:"clusters"`
	Repositories map[string]Repository `yaml:"repositories,omitempty"`
	Restore      Restore               `yaml:"restore"`
	CLI          CLI                   `yaml:"cli"`
	Secrets      *Secrets              `yaml:"secrets,omitempty"`
	Signing      Signing               `yaml:"signing"`

	// path is where the config was loaded from.
	path string `yaml:"-"`
}

// Cluster describes how to reach a named search cluster.
type Cluster struct {
	URL string `yaml:"url"`
	// Region overrides the region parsed from the cluster host name.
	Region          string `yaml:"region,omitempty"`
	AccessKeyEnv    string `yaml:"access_key_env,omitempty"`
	SecretKeyEnv    string `yaml:"secret_key_env,omitempty"`
	SessionTokenEnv string `yaml:"session_token_env,omitempty"`
}

// Repository describes where a snapshot repository stores its data.
type Repository struct {
	S3 *S3 `yaml:"s3,omitempty"`
}

type S3 struct {
	Endpoint     string `yaml:"endpoint,omitempty"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Prefix       string `yaml:"prefix,omitempty"`
}

type Restore struct {
	// MaxQueryRetries bounds consecutive transient recovery query failures.
	// Nil means DefaultMaxQueryRetries; zero fails on the first one.
	MaxQueryRetries *int `yaml:"max_query_retries,omitempty"`
	TimeoutMinutes  int  `yaml:"timeout_minutes,omitempty"`
}

type CLI struct {
	ReportDir string `yaml:"report_dir"`
	LogFormat string `yaml:"log_format,omitempty"`
}

type Secrets struct {
	File            string `yaml:"file"`
	AgeIdentityPath string `yaml:"age_identity_path"`
}

type Signing struct {
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
}

// BaseDir returns the directory holding the default config, keys and reports.
func BaseDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".snaprestore"), nil
}

// DefaultPath returns the config path, honouring SNAPRESTORE_CONFIG.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	baseDir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "config.yaml"), nil
}

// Load finds, reads, and parses the configuration file.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at %s. Please run 'snaprestore init'", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes config YAML and expands "~" in path fields.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.CLI.ReportDir = expandHome(cfg.CLI.ReportDir)
	cfg.Signing.PrivateKeyPath = expandHome(cfg.Signing.PrivateKeyPath)
	if cfg.Secrets != nil {
		cfg.Secrets.File = expandHome(cfg.Secrets.File)
		cfg.Secrets.AgeIdentityPath = expandHome(cfg.Secrets.AgeIdentityPath)
	}
	return &cfg, nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Cluster looks up a named cluster.
func (c *Config) Cluster(name string) (Cluster, error) {
	cl, ok := c.Clusters[name]
	if !ok || cl.URL == "" {
		return Cluster{}, fmt.Errorf("No cluster named %q configured", name)
	}
	return cl, nil
}

// Repository looks up the storage description of a snapshot repository.
// Repositories without an entry are verified through the cluster only.
func (c *Config) Repository(name string) (Repository, bool) {
	r, ok := c.Repositories[name]
	return r, ok
}

// MaxQueryRetries returns the configured retry budget for recovery queries.
func (c *Config) MaxQueryRetries() int {
	if c.Restore.MaxQueryRetries == nil {
		return DefaultMaxQueryRetries
	}
	if *c.Restore.MaxQueryRetries < 0 {
		return 0
	}
	return *c.Restore.MaxQueryRetries
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(homeDir, strings.TrimPrefix(p, "~"))
}

// Package config loads the ofxingest YAML configuration and .env secrets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/registry"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/scanner"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/transform"
)

// ErrInvalidConfig marks configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid config")

const (
	// DefaultPath is used when neither -config nor OFXINGEST_CONFIG is set.
	DefaultPath = "./config/ofxingest.yaml"
	// PathEnv overrides the config path.
	PathEnv = "OFXINGEST_CONFIG"

	defaultFilesLedger       = "./config/consumed-files.json"
	defaultRequestsPerSecond = 5
)

// Parse failure policies.
const (
	FailureAbort = "abort"
	FailureSkip  = "skip"
)

// Upload backends.
const (
	BackendHTTP      = "http"
	BackendFirestore = "firestore"
	BackendNone      = "none"
)

// Config is the whole run configuration.
type Config struct {
	Sources        []Source         `yaml:"sources"`
	Institutions   map[string]int64 `yaml:"institutions"`
	Ledger         LedgerConfig     `yaml:"ledger"`
	OnParseFailure string           `yaml:"on_parse_failure"`
	RulesFile      string           `yaml:"rules_file"`
	Upload         UploadConfig     `yaml:"upload"`

	// Secrets come from the environment only.
	APIKey    string `yaml:"-"`
	AuthToken string `yaml:"-"`
}

// Source is one institution directory.
type Source struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// LedgerConfig locates the transaction and source-file ledgers.
type LedgerConfig struct {
	Path      string `yaml:"path"`
	FilesPath string `yaml:"files_path"`
}

// UploadConfig selects and configures the upload sink.
type UploadConfig struct {
	Backend  string `yaml:"backend"`
	BaseURL  string `yaml:"base_url"`
	UserID   int64  `yaml:"user_id"`
	// RequestsPerSecond is nil when the key is absent. An explicit 0
	// disables throttling.
	RequestsPerSecond *float64 `yaml:"requests_per_second"`
	FirestoreProject  string   `yaml:"firestore_project"`
}

// Rate returns the configured sink request rate, 0 meaning unthrottled.
func (u UploadConfig) Rate() float64 {
	if u.RequestsPerSecond == nil {
		return defaultRequestsPerSecond
	}
	return *u.RequestsPerSecond
}

// ResolvePath picks the config file: the flag value, then $OFXINGEST_CONFIG,
// then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(PathEnv); env != "" {
		return env
	}
	return DefaultPath
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads, normalizes and validates the config file at path.
// A missing file returns an error satisfying os.IsNotExist.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and environment secrets, and validates.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.applyDefaults()
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AuthToken = os.Getenv("AUTH_TOKEN")

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Sources {
		if c.Sources[i].Format == "" {
			c.Sources[i].Format = registry.FormatAuto
		}
	}
	if c.OnParseFailure == "" {
		c.OnParseFailure = FailureAbort
	}
	if c.Ledger.FilesPath == "" {
		c.Ledger.FilesPath = defaultFilesLedger
	}
	if c.Upload.Backend == "" {
		c.Upload.Backend = BackendNone
	}
	if c.Upload.RequestsPerSecond == nil {
		rps := float64(defaultRequestsPerSecond)
		c.Upload.RequestsPerSecond = &rps
	}
}

// normalize slugifies institution keys and expands ~ in paths.
func (c *Config) normalize() error {
	normalized := make(map[string]int64, len(c.Institutions))
	for name, id := range c.Institutions {
		slug, err := transform.SlugifyInstitution(name)
		if err != nil {
			return fmt.Errorf("%w: institution %q: %v", ErrInvalidConfig, name, err)
		}
		if prev, dup := normalized[slug]; dup && prev != id {
			return fmt.Errorf("%w: institutions %q and another name both map to %q with different ids", ErrInvalidConfig, name, slug)
		}
		normalized[slug] = id
	}
	c.Institutions = normalized

	var err error
	if c.Ledger.Path, err = scanner.ExpandHome(c.Ledger.Path); err != nil {
		return err
	}
	if c.Ledger.FilesPath, err = scanner.ExpandHome(c.Ledger.FilesPath); err != nil {
		return err
	}
	if c.RulesFile, err = scanner.ExpandHome(c.RulesFile); err != nil {
		return err
	}
	return nil
}

// Validate reports every problem at once, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Sources) == 0 {
		problems = append(problems, "no sources configured")
	}
	for i, src := range c.Sources {
		if strings.TrimSpace(src.Dir) == "" {
			problems = append(problems, fmt.Sprintf("sources[%d]: dir is empty", i))
		}
		if !registry.KnownFormat(src.Format) {
			problems = append(problems, fmt.Sprintf("sources[%d]: unknown format %q", i, src.Format))
		}
	}
	for name, id := range c.Institutions {
		if id < 0 {
			problems = append(problems, fmt.Sprintf("institution %q: id must not be negative", name))
		}
	}
	switch c.OnParseFailure {
	case FailureAbort, FailureSkip:
	default:
		problems = append(problems, fmt.Sprintf("unknown on_parse_failure %q (want abort or skip)", c.OnParseFailure))
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		problems = append(problems, "ledger.path is empty")
	}
	switch c.Upload.Backend {
	case BackendNone:
	case BackendHTTP:
		if c.Upload.BaseURL == "" {
			problems = append(problems, "upload.base_url is required for the http backend")
		}
	case BackendFirestore:
		if c.Upload.FirestoreProject == "" {
			problems = append(problems, "upload.firestore_project is required for the firestore backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown upload.backend %q", c.Upload.Backend))
	}
	if c.Upload.Rate() < 0 {
		problems = append(problems, "upload.requests_per_second must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SourcesFor returns the sources whose directory names the given
// institution. An empty name returns every source.
func (c *Config) SourcesFor(institution string) ([]Source, error) {
	if institution == "" {
		return c.Sources, nil
	}
	want, err := transform.SlugifyInstitution(institution)
	if err != nil {
		return nil, fmt.Errorf("invalid institution filter: %w", err)
	}

	var out []Source
	for _, src := range c.Sources {
		slug, err := transform.SlugifyInstitution(filepath.Base(filepath.Clean(src.Dir)))
		if err == nil && slug == want {
			out = append(out, src)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no source directory matches institution %q", institution)
	}
	return out, nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
sources:
  - dir: /statements/American Express
    format: auto
  - dir: /statements/citizens
    format: citizens-csv
  - dir: /statements/credit_union
institutions:
  american_express: 1
  Citizens: 2
ledger:
  path: /var/lib/ofxingest/seen.txt
on_parse_failure: skip
upload:
  backend: http
  base_url: http://localhost:8085
  user_id: 3
`

func TestParse(t *testing.T) {
	t.Setenv("API_KEY", "key-123")
	t.Setenv("AUTH_TOKEN", "tok-456")

	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "auto", cfg.Sources[2].Format, "format defaults to auto")
	assert.Equal(t, "citizens-csv", cfg.Sources[1].Format)
	assert.Equal(t, map[string]int64{"american-express": 1, "citizens": 2}, cfg.Institutions)
	assert.Equal(t, "/var/lib/ofxingest/seen.txt", cfg.Ledger.Path)
	assert.Equal(t, defaultFilesLedger, cfg.Ledger.FilesPath)
	assert.Equal(t, FailureSkip, cfg.OnParseFailure)
	assert.Equal(t, BackendHTTP, cfg.Upload.Backend)
	assert.Equal(t, int64(3), cfg.Upload.UserID)
	assert.Equal(t, float64(defaultRequestsPerSecond), cfg.Upload.Rate())
	assert.Equal(t, "key-123", cfg.APIKey)
	assert.Equal(t, "tok-456", cfg.AuthToken)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("sources:\n  - dir: /s/amex\nledger:\n  path: seen.txt\n"))
	require.NoError(t, err)
	assert.Equal(t, FailureAbort, cfg.OnParseFailure)
	assert.Equal(t, BackendNone, cfg.Upload.Backend)
	assert.Empty(t, cfg.Institutions)
}

func TestParse_RequestsPerSecond(t *testing.T) {
	tests := []struct {
		name     string
		upload   string
		expected float64
	}{
		{"absent uses default", "upload: {backend: none}\n", defaultRequestsPerSecond},
		{"explicit zero is unthrottled", "upload: {backend: none, requests_per_second: 0}\n", 0},
		{"explicit rate", "upload: {backend: none, requests_per_second: 2.5}\n", 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(strings.NewReader("sources:\n  - dir: /s/amex\nledger:\n  path: seen.txt\n" + tt.upload))
			require.NoError(t, err)
			require.NotNil(t, cfg.Upload.RequestsPerSecond)
			assert.Equal(t, tt.expected, cfg.Upload.Rate())
		})
	}
}

func TestParse_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Parse(strings.NewReader("sources:\n  - dir: ~/s/amex\nledger:\n  path: ~/.ofxingest/seen.txt\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ofxingest", "seen.txt"), cfg.Ledger.Path)
	assert.Equal(t, "~/s/amex", cfg.Sources[0].Dir, "source dirs are expanded by the scanner")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty document", "", "no sources configured"},
		{"empty dir", "sources:\n  - dir: ''\nledger: {path: a}\n", "dir is empty"},
		{"unknown format", "sources:\n  - {dir: /a, format: qif}\nledger: {path: a}\n", `unknown format "qif"`},
		{"unknown policy", "sources: [{dir: /a}]\nledger: {path: a}\non_parse_failure: retry\n", `unknown on_parse_failure "retry"`},
		{"missing ledger", "sources: [{dir: /a}]\n", "ledger.path is empty"},
		{"negative id", "sources: [{dir: /a}]\nledger: {path: a}\ninstitutions: {amex: -1}\n", "must not be negative"},
		{"http without url", "sources: [{dir: /a}]\nledger: {path: a}\nupload: {backend: http}\n", "base_url is required"},
		{"firestore without project", "sources: [{dir: /a}]\nledger: {path: a}\nupload: {backend: firestore}\n", "firestore_project is required"},
		{"negative rate", "sources: [{dir: /a}]\nledger: {path: a}\nupload: {backend: none, requests_per_second: -1}\n", "requests_per_second must not be negative"},
		{"unknown backend", "sources: [{dir: /a}]\nledger: {path: a}\nupload: {backend: ftp}\n", `unknown upload.backend "ftp"`},
		{"unknown field", "sources: [{dir: /a}]\nledger: {path: a}\nledgr: {}\n", "ledgr"},
		{"slug collision", "sources: [{dir: /a}]\nledger: {path: a}\ninstitutions: {amex_card: 1, Amex Card: 2}\n", "different ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "error should wrap ErrInvalidConfig: %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{OnParseFailure: "x", Upload: UploadConfig{Backend: BackendNone}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources configured")
	assert.Contains(t, err.Error(), "unknown on_parse_failure")
	assert.Contains(t, err.Error(), "ledger.path is empty")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ofxingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Sources, 3)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, os.IsNotExist(err), "got %v", err)
}

func TestLoad_InvalidNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: ["), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(PathEnv, "")
	assert.Equal(t, DefaultPath, ResolvePath(""))

	t.Setenv(PathEnv, "/etc/ofxingest.yaml")
	assert.Equal(t, "/etc/ofxingest.yaml", ResolvePath(""))
	assert.Equal(t, "/flag.yaml", ResolvePath("/flag.yaml"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OFXINGEST_TEST_SECRET=from-file\n"), 0600))

	t.Setenv("OFXINGEST_TEST_SECRET", "")
	os.Unsetenv("OFXINGEST_TEST_SECRET")

	require.NoError(t, LoadEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("OFXINGEST_TEST_SECRET"))
}

func TestSourcesFor(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	all, err := cfg.SourcesFor("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	amex, err := cfg.SourcesFor("american-express")
	require.NoError(t, err)
	require.Len(t, amex, 1)
	assert.Equal(t, "/statements/American Express", amex[0].Dir)

	_, err = cfg.SourcesFor("chase")
	assert.Error(t, err)
}

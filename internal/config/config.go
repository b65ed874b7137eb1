package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default file names inside the config directory.
const (
	APIConfigFile   = "api_config.yaml"
	CredentialsFile = "credentials.yaml"
	TestCaseFile    = "test_case.yaml"
)

// DefaultTimeout is applied when api_config.yaml does not set one.
const DefaultTimeout = 30 * time.Second

// Environment variables that override credentials.yaml.
const (
	EnvUsername = "AVI_USERNAME"
	EnvPassword = "AVI_PASSWORD"
)

// Endpoint names referenced by the automation.
const (
	EndpointRegister        = "register"
	EndpointLogin           = "login"
	EndpointTenants         = "tenants"
	EndpointVirtualServices = "virtual_services"
	EndpointServiceEngines  = "service_engines"
)

// PreFetchResources lists, in fetch order, the resource keys the pre-fetch
// stage understands. Anything else in the test case is ignored.
var PreFetchResources = []string{EndpointTenants, EndpointVirtualServices, EndpointServiceEngines}

// Endpoints maps endpoint names to API paths relative to the base URL.
type Endpoints map[string]string

// Path returns the path registered under name.
func (e Endpoints) Path(name string) (string, bool) {
	p, ok := e[name]
	if !ok || p == "" {
		return "", false
	}
	return p, true
}

// APIConfig is the content of api_config.yaml.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Endpoints Endpoints     `yaml:"endpoints"`
	Insecure  bool          `yaml:"insecure"` // skip TLS verification
	CACert    string        `yaml:"ca_cert"`  // path to a PEM bundle
	Timeout   time.Duration `yaml:"timeout"`
}

// Credentials is the content of credentials.yaml.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Toggle is a stage that can be switched on or off.
type Toggle struct {
	Enabled bool `yaml:"enabled"`
}

// PreFetch configures the pre-fetch stage.
type PreFetch struct {
	Enabled   bool     `yaml:"enabled"`
	Resources []string `yaml:"resources"`
}

// Action configures the update issued against the target.
type Action struct {
	Enabled bool                   `yaml:"enabled"`
	Payload map[string]interface{} `yaml:"payload"`
}

// Workflow holds the per-stage settings.
type Workflow struct {
	PreFetch       PreFetch `yaml:"pre_fetch"`
	PreValidation  Toggle   `yaml:"pre_validation"`
	Action         Action   `yaml:"action"`
	PostValidation Toggle   `yaml:"post_validation"`
}

// Target names the virtual service under test.
type Target struct {
	VSName string `yaml:"vs_name"`
}

// TestCase is the content of test_case.yaml.
type TestCase struct {
	Name     string   `yaml:"name"`
	Target   Target   `yaml:"target"`
	Workflow Workflow `yaml:"workflow"`
}

// Bundle is the full, validated configuration for one run.
type Bundle struct {
	API         APIConfig
	Credentials Credentials
	TestCase    TestCase
}

// Paths locates the three configuration files.
type Paths struct {
	APIConfig   string
	Credentials string
	TestCase    string
}

// DefaultPaths returns the standard file locations inside dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		APIConfig:   filepath.Join(dir, APIConfigFile),
		Credentials: filepath.Join(dir, CredentialsFile),
		TestCase:    filepath.Join(dir, TestCaseFile),
	}
}

// FieldError reports a missing or invalid configuration field.
type FieldError struct {
	File   string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Reason)
}

type credentialsFile struct {
	Credentials Credentials `yaml:"credentials"`
}

type testCaseFile struct {
	TestCase TestCase `yaml:"test_case"`
}

// Load reads and validates all three files. Every field problem is reported,
// joined into a single error.
func Load(paths Paths) (*Bundle, error) {
	b := &Bundle{}

	if err := loadFile(paths.APIConfig, &b.API); err != nil {
		return nil, err
	}

	var creds credentialsFile
	if err := loadFile(paths.Credentials, &creds); err != nil {
		return nil, err
	}
	b.Credentials = creds.Credentials
	if v := os.Getenv(EnvUsername); v != "" {
		b.Credentials.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		b.Credentials.Password = v
	}

	var tc testCaseFile
	if err := loadFile(paths.TestCase, &tc); err != nil {
		return nil, err
	}
	b.TestCase = tc.TestCase

	if b.API.Timeout == 0 {
		b.API.Timeout = DefaultTimeout
	}
	b.API.BaseURL = strings.TrimRight(b.API.BaseURL, "/")

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// loadFile reads a YAML file into dest. Empty documents are rejected.
func loadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("parsing %s: file is empty", path)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks every required field of the bundle.
func (b *Bundle) Validate() error {
	var errs []error
	add := func(file, field, reason string) {
		errs = append(errs, &FieldError{File: file, Field: field, Reason: reason})
	}

	// api_config.yaml
	if b.API.BaseURL == "" {
		add(APIConfigFile, "base_url", "is required")
	} else if u, err := url.Parse(b.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add(APIConfigFile, "base_url", fmt.Sprintf("%q is not an http(s) URL", b.API.BaseURL))
	}
	if b.API.Timeout < 0 {
		add(APIConfigFile, "timeout", "must not be negative")
	}
	required := []string{EndpointRegister, EndpointLogin, EndpointVirtualServices}
	if b.TestCase.Workflow.PreFetch.Enabled {
		for _, name := range b.TestCase.Workflow.PreFetch.Resources {
			if IsPreFetchResource(name) && name != EndpointVirtualServices {
				required = append(required, name)
			}
		}
	}
	for _, name := range required {
		if _, ok := b.API.Endpoints.Path(name); !ok {
			add(APIConfigFile, "endpoints."+name, "is required")
		}
	}

	// credentials.yaml
	if b.Credentials.Username == "" {
		add(CredentialsFile, "credentials.username", "is required")
	}
	if b.Credentials.Password == "" {
		add(CredentialsFile, "credentials.password", "is required")
	}

	// test_case.yaml
	if b.TestCase.Target.VSName == "" {
		add(TestCaseFile, "test_case.target.vs_name", "is required")
	}
	if len(b.TestCase.Workflow.Action.Payload) == 0 {
		add(TestCaseFile, "test_case.workflow.action.payload", "is required")
	}

	return errors.Join(errs...)
}

// IsPreFetchResource reports whether name is a resource key the pre-fetch
// stage understands.
func IsPreFetchResource(name string) bool {
	for _, r := range PreFetchResources {
		if r == name {
			return true
		}
	}
	return false
}

package platform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rflorenc/avi-test-automation/internal/config"
)

var (
	// ErrNotAuthenticated is returned by AuthHeader before a successful Login.
	ErrNotAuthenticated = errors.New("not authenticated: login first")
	// ErrRegister is returned when registration fails with an unexpected status.
	ErrRegister = errors.New("registration failed")
	// ErrLogin is returned for rejected credentials or a malformed login response.
	ErrLogin = errors.New("login failed")
)

// Authenticator registers a user and exchanges basic credentials for a
// bearer token.
type Authenticator struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	log        zerolog.Logger

	token string
}

// NewAuthenticator creates an unauthenticated Authenticator.
func NewAuthenticator(api config.APIConfig, creds config.Credentials, logger zerolog.Logger) (*Authenticator, error) {
	httpClient, err := NewHTTPClient(api)
	if err != nil {
		return nil, err
	}
	return newAuthenticator(api.BaseURL, creds, httpClient, logger), nil
}

func newAuthenticator(baseURL string, creds config.Credentials, httpClient *http.Client, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   creds.Username,
		password:   creds.Password,
		httpClient: httpClient,
		log:        logger.With().Str("component", "auth").Logger(),
	}
}

// Register creates the user. A user that already exists is not an error, so
// the call is safe to repeat.
func (a *Authenticator) Register(path string) error {
	data, err := json.Marshal(map[string]string{
		"username": a.username,
		"password": a.password,
	})
	if err != nil {
		return fmt.Errorf("marshaling body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := a.do(req)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		a.log.Info().Str("username", a.username).Msg("user registered")
	case http.StatusBadRequest, http.StatusConflict:
		a.log.Info().Str("username", a.username).Int("status", status).Msg("user already registered")
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ErrRegister, status, truncate(body, 200))
	}
	return nil
}

// Login authenticates with basic auth and stores the returned token.
func (a *Authenticator) Login(path string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, a.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(a.username, a.password)

	status, body, err := a.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrLogin, status, truncate(body, 200))
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", ErrLogin, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: response does not contain a token", ErrLogin)
	}

	a.token = resp.Token
	a.log.Info().Str("username", a.username).Msg("login successful, token acquired")
	return a.token, nil
}

// Authenticated reports whether Login has succeeded.
func (a *Authenticator) Authenticated() bool {
	return a.token != ""
}

// AuthHeader returns the bearer authorization header for API calls.
func (a *Authenticator) AuthHeader() (http.Header, error) {
	if !a.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+a.token)
	return h, nil
}

func (a *Authenticator) do(req *http.Request) (int, string, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

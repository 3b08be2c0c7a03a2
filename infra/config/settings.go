package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Settings field names as stored in the settings storage
const (
	FieldToken       = "token"
	FieldWebhookURL  = "webhook_url"
	FieldRedirectURL = "redirect_url"
)

// ErrFieldNotSet is returned when a settings field has never been stored
var ErrFieldNotSet = errors.New("settings field is not set")

// SecretStore gives access to secret settings fields by name
type SecretStore interface {
	GetPassword(field string) (string, error)
}

// FieldStore is a SecretStore that also holds plain fields
type FieldStore interface {
	SecretStore
	GetField(field string) (string, error)
}

// Settings is the monopay settings singleton. The token is never held in
// memory; it is fetched from the environment or the secret store on demand.
type Settings struct {
	WebhookURL  string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
	RedirectURL string `json:"redirectUrl,omitempty" validate:"omitempty,url"`

	mu      sync.RWMutex
	secrets SecretStore
}

// LoadSettings builds settings from environment variables, falling back to the store.
// store may be nil when settings come only from the environment.
func LoadSettings(store FieldStore) (*Settings, error) {
	s := &Settings{secrets: store}

	s.WebhookURL = GetEnv("MONOPAY_WEBHOOK_URL", "")
	s.RedirectURL = GetEnv("MONOPAY_REDIRECT_URL", "")

	if store != nil {
		if s.WebhookURL == "" {
			v, err := store.GetField(FieldWebhookURL)
			if err != nil && !errors.Is(err, ErrFieldNotSet) {
				return nil, fmt.Errorf("failed to load %s: %w", FieldWebhookURL, err)
			}
			s.WebhookURL = v
		}
		if s.RedirectURL == "" {
			v, err := store.GetField(FieldRedirectURL)
			if err != nil && !errors.Is(err, ErrFieldNotSet) {
				return nil, fmt.Errorf("failed to load %s: %w", FieldRedirectURL, err)
			}
			s.RedirectURL = v
		}
	}

	if err := Validator().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid monopay settings: %w", err)
	}
	s.WebhookURL = strings.TrimRight(s.WebhookURL, "/")
	return s, nil
}

// Token returns the provider API token
func (s *Settings) Token() (string, error) {
	if token := GetEnv("MONOPAY_TOKEN", ""); token != "" {
		return token, nil
	}

	s.mu.RLock()
	secrets := s.secrets
	s.mu.RUnlock()

	if secrets == nil {
		return "", fmt.Errorf("%s: %w", FieldToken, ErrFieldNotSet)
	}
	return secrets.GetPassword(FieldToken)
}

// WebhookOverride returns the configured webhook base URL, or ""
func (s *Settings) WebhookOverride() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.WebhookURL
}

// RedirectOverride returns the configured redirect URL, or ""
func (s *Settings) RedirectOverride() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RedirectURL
}

// Update replaces the URL overrides after they were persisted
func (s *Settings) Update(webhookURL, redirectURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WebhookURL = strings.TrimRight(webhookURL, "/")
	s.RedirectURL = redirectURL
}

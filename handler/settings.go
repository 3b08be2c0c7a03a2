package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/monopay/infra/config"
	"github.com/mstgnz/monopay/infra/logger"
	"github.com/mstgnz/monopay/infra/response"
	"github.com/mstgnz/monopay/infra/validate"
	"github.com/mstgnz/monopay/provider"
)

// SettingsStore persists settings fields
type SettingsStore interface {
	SetField(field, value string) error
	SetPassword(field, value string) error
	DeleteField(field string) error
}

// SettingsSource is the live settings instance
type SettingsSource interface {
	Token() (string, error)
	WebhookOverride() string
	RedirectOverride() string
	Update(webhookURL, redirectURL string)
}

// SettingsResponse never exposes the full token
type SettingsResponse struct {
	TokenConfigured bool   `json:"tokenConfigured"`
	Token           string `json:"token,omitempty"`
	WebhookURL      string `json:"webhookUrl,omitempty"`
	RedirectURL     string `json:"redirectUrl,omitempty"`
	CallbackPath    string `json:"callbackPath"`
}

// UpdateSettingsRequest changes the stored settings. Empty fields are left unchanged.
type UpdateSettingsRequest struct {
	Token            string `json:"token,omitempty" validate:"omitempty,min=8"`
	WebhookURL       string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
	RedirectURL      string `json:"redirectUrl,omitempty" validate:"omitempty,url"`
	ClearWebhookURL  bool   `json:"clearWebhookUrl,omitempty"`
	ClearRedirectURL bool   `json:"clearRedirectUrl,omitempty"`
}

// SettingsHandler handles settings related HTTP requests
type SettingsHandler struct {
	settings SettingsSource
	store    SettingsStore
	validate *validator.Validate
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings SettingsSource, store SettingsStore, validate *validator.Validate) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		store:    store,
		validate: validate,
	}
}

// GetSettings returns the current settings with the token masked
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	resp := SettingsResponse{
		WebhookURL:   h.settings.WebhookOverride(),
		RedirectURL:  h.settings.RedirectOverride(),
		CallbackPath: provider.CallbackPath,
	}

	token, err := h.settings.Token()
	switch {
	case err == nil && token != "":
		resp.TokenConfigured = true
		resp.Token = maskSecret(token)
	case err != nil && !errors.Is(err, config.ErrFieldNotSet):
		response.Error(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	response.Success(w, http.StatusOK, "Settings", resp)
}

// UpdateSettings stores the token and URL overrides
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", errors.New(validate.Messages(err)))
		return
	}

	if req.Token != "" {
		if err := h.store.SetPassword(config.FieldToken, req.Token); err != nil {
			response.Error(w, http.StatusInternalServerError, "Failed to store token", err)
			return
		}
	}

	webhookURL, err := h.applyField(config.FieldWebhookURL, req.WebhookURL, req.ClearWebhookURL, h.settings.WebhookOverride())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to store webhook URL", err)
		return
	}
	redirectURL, err := h.applyField(config.FieldRedirectURL, req.RedirectURL, req.ClearRedirectURL, h.settings.RedirectOverride())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to store redirect URL", err)
		return
	}

	h.settings.Update(webhookURL, redirectURL)

	logger.Info("Settings updated", logger.LogContext{
		Provider: "monopay",
		Fields: map[string]any{
			"token_changed": req.Token != "",
			"webhook_url":   webhookURL,
			"redirect_url":  redirectURL,
		},
	})

	h.GetSettings(w, r)
}

// applyField persists one URL field and returns its new effective value
func (h *SettingsHandler) applyField(field, value string, clear bool, current string) (string, error) {
	switch {
	case clear:
		if err := h.store.DeleteField(field); err != nil {
			return "", err
		}
		return "", nil
	case value != "":
		if err := h.store.SetField(field, value); err != nil {
			return "", err
		}
		return value, nil
	default:
		return current, nil
	}
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

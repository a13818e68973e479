package http

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/vaultd/internal/vault"
	customValidation "github.com/allisson/vaultd/internal/validation"
)

// CreateOrUpdateSecretRequest is the body for POST /secret.
//
// Either Value is supplied directly, or Generate is true and the server
// generates a value of the given semantic Type (defaulting to a name-based
// guess when Type is empty).
type CreateOrUpdateSecretRequest struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Type     string `json:"type"`
	Generate bool   `json:"generate"`
}

// Validate checks the request fields.
func (r CreateOrUpdateSecretRequest) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&r.Name, validation.Required, customValidation.NotBlank, customValidation.SecretName),
		validation.Field(&r.Type, customValidation.NoWhitespace),
	}
	if !r.Generate {
		rules = append(rules, validation.Field(&r.Value, validation.Required, customValidation.NotBlank))
	}
	return validation.ValidateStruct(&r, rules...)
}

// RotateRequest is the body for POST /rotate. An empty Secrets list means
// "rotate everything that is due".
type RotateRequest struct {
	Secrets []string `json:"secrets"`
}

// Validate checks the request fields.
func (r RotateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Secrets, validation.Each(customValidation.NotBlank, customValidation.SecretName)),
	)
}

// SecretMetaResponse is the metadata shape returned by the API.
type SecretMetaResponse struct {
	Algorithm string     `json:"algorithm"`
	Kid       string     `json:"kid"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Prev      []string   `json:"prev"`
}

// GetSecretResponse is the body for GET /secret/{name}.
type GetSecretResponse struct {
	Name  string             `json:"name"`
	Value string             `json:"value"`
	Meta  SecretMetaResponse `json:"meta"`
}

// SecretInfoResponse is one element of the GET /secrets listing.
type SecretInfoResponse struct {
	Name string             `json:"name"`
	Meta SecretMetaResponse `json:"meta"`
}

// CreateSecretResponse is the body for POST /secret. No plaintext.
type CreateSecretResponse struct {
	Name string             `json:"name"`
	Meta SecretMetaResponse `json:"meta"`
}

// RotateResponse is the body for POST /rotate.
type RotateResponse struct {
	Count   int      `json:"count"`
	Rotated []string `json:"rotated"`
}

// HealthResponse is the body for GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Secrets       int    `json:"secrets"`
}

// mapMeta converts vault metadata to its response shape.
func mapMeta(meta vault.SecretMeta) SecretMetaResponse {
	prev := meta.Prev
	if prev == nil {
		prev = []string{}
	}
	return SecretMetaResponse{
		Algorithm: meta.Algorithm,
		Kid:       meta.Kid,
		CreatedAt: meta.CreatedAt,
		ExpiresAt: meta.ExpiresAt,
		Prev:      prev,
	}
}

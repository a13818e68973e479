package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/vaultd/internal/audit"
	"github.com/allisson/vaultd/internal/crypto"
	apperrors "github.com/allisson/vaultd/internal/errors"
	"github.com/allisson/vaultd/internal/httputil"
	"github.com/allisson/vaultd/internal/intrusion"
	"github.com/allisson/vaultd/internal/metrics"
	"github.com/allisson/vaultd/internal/policy"
	"github.com/allisson/vaultd/internal/rotation"
	"github.com/allisson/vaultd/internal/vault"
	customValidation "github.com/allisson/vaultd/internal/validation"
)

// SecretHandler serves the vault API. Every request walks the same
// pipeline: authenticated client → intrusion ban check → canary check →
// policy check → vault operation → audit entry. Each stage can
// short-circuit with a terminal failure.
type SecretHandler struct {
	store    *vault.Store
	pol      *policy.Policy
	detector *intrusion.Detector
	auditLog *audit.Log
	engine   *rotation.Engine
	business *metrics.Business
	logger   *slog.Logger
	version  string
	started  time.Time
}

// NewSecretHandler creates the handler with the process's shared components.
// business may be nil when metrics are disabled.
func NewSecretHandler(
	store *vault.Store,
	pol *policy.Policy,
	detector *intrusion.Detector,
	auditLog *audit.Log,
	engine *rotation.Engine,
	business *metrics.Business,
	logger *slog.Logger,
	version string,
) *SecretHandler {
	return &SecretHandler{
		store:    store,
		pol:      pol,
		detector: detector,
		auditLog: auditLog,
		engine:   engine,
		business: business,
		logger:   logger,
		version:  version,
		started:  time.Now(),
	}
}

// authorize runs the ban, canary, and policy stages for one request.
// It writes the error response and audit entry itself and reports whether
// the request may proceed to the vault operation.
func (h *SecretHandler) authorize(c *gin.Context, client, secretName string, verb policy.Verb, event string) bool {
	ctx := c.Request.Context()

	if h.detector.IsBanned(client) {
		h.auditLog.LogError(event, client, secretName, "client banned")
		if h.business != nil {
			h.business.RecordAuthDenial(ctx, "banned")
		}
		httputil.HandleErrorGin(c, apperrors.ErrLocked, h.logger)
		return false
	}

	if secretName != "" && h.detector.CheckCanary(secretName, client) {
		h.logger.Warn("canary secret requested",
			slog.String("client_id", client),
			slog.String("secret", secretName),
		)
		h.auditLog.LogError(event, client, secretName, "canary access")
		if h.business != nil {
			h.business.RecordCanaryHit(ctx)
			h.business.RecordAuthDenial(ctx, "canary")
		}
		httputil.HandleErrorGin(c, apperrors.ErrForbidden, h.logger)
		return false
	}

	var allowed bool
	if secretName != "" {
		allowed = h.pol.Authorized(client, secretName, verb)
	} else {
		allowed = h.pol.HasVerb(client, verb)
	}
	if !allowed {
		h.detector.ReportFailure(client, "policy denied")
		h.auditLog.LogError(event, client, secretName, "policy denied")
		if h.business != nil {
			h.business.RecordAuthDenial(ctx, "policy")
			if h.detector.IsBanned(client) {
				h.business.RecordIntrusionBan(ctx)
			}
		}
		httputil.HandleErrorGin(c, apperrors.ErrForbidden, h.logger)
		return false
	}

	return true
}

// GetHandler retrieves and decrypts a secret by name.
// GET /secret/:name - requires the read verb. 404 if absent, 403 if denied.
func (h *SecretHandler) GetHandler(c *gin.Context) {
	client, _ := GetClient(c.Request.Context())
	name := c.Param("name")

	if !h.authorize(c, client, name, policy.VerbRead, "get_secret") {
		return
	}

	plaintext, meta, err := h.store.GetSecret(name)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			h.detector.ReportFailure(client, "secret not found")
		}
		h.auditLog.LogError("get_secret", client, name, "error")
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	defer crypto.Zero(plaintext)

	h.auditLog.LogSuccess("get_secret", client, name)
	if h.business != nil {
		h.business.RecordSecretRead(c.Request.Context())
	}

	c.JSON(http.StatusOK, GetSecretResponse{
		Name:  name,
		Value: string(plaintext),
		Meta:  mapMeta(meta),
	})
}

// CreateOrUpdateHandler creates or updates a secret.
// POST /secret - requires the write verb. 201 on success, 400 on empty
// name or value.
func (h *SecretHandler) CreateOrUpdateHandler(c *gin.Context) {
	client, _ := GetClient(c.Request.Context())

	var req CreateOrUpdateSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if !h.authorize(c, client, req.Name, policy.VerbWrite, "set_secret") {
		return
	}

	var err error
	if req.Generate {
		secretType := rotation.InferSecretType(req.Name)
		if req.Type != "" {
			secretType = crypto.ParseSecretType(req.Type)
		}
		err = h.store.GenerateAndStore(req.Name, secretType)
	} else {
		plaintext := []byte(req.Value)
		defer crypto.Zero(plaintext)
		err = h.store.SetSecret(req.Name, plaintext, nil)
	}
	if err != nil {
		h.auditLog.LogError("set_secret", client, req.Name, "error")
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	meta, err := h.store.GetMeta(req.Name)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.auditLog.LogSuccess("set_secret", client, req.Name)
	if h.business != nil {
		h.business.RecordSecretWrite(c.Request.Context())
		h.business.RecordSecretCount(c.Request.Context(), int64(h.store.Stats().Total))
	}

	c.JSON(http.StatusCreated, CreateSecretResponse{
		Name: req.Name,
		Meta: mapMeta(meta),
	})
}

// DeleteHandler removes a secret.
// DELETE /secret/:name - requires the delete verb. 204 on success.
func (h *SecretHandler) DeleteHandler(c *gin.Context) {
	client, _ := GetClient(c.Request.Context())
	name := c.Param("name")

	if !h.authorize(c, client, name, policy.VerbDelete, "delete_secret") {
		return
	}

	if err := h.store.DeleteSecret(name); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			h.detector.ReportFailure(client, "secret not found")
		}
		h.auditLog.LogError("delete_secret", client, name, "error")
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.auditLog.LogSuccess("delete_secret", client, name)
	if h.business != nil {
		h.business.RecordSecretCount(c.Request.Context(), int64(h.store.Stats().Total))
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// ListHandler returns metadata for every secret the client may touch.
// GET /secrets - requires the list verb; the result is filtered by the
// client's name patterns, possibly to nothing.
func (h *SecretHandler) ListHandler(c *gin.Context) {
	client, _ := GetClient(c.Request.Context())

	if !h.authorize(c, client, "", policy.VerbList, "list_secrets") {
		return
	}

	infos := h.store.ListSecrets()
	response := make([]SecretInfoResponse, 0, len(infos))
	for _, info := range infos {
		if !h.pol.Allowed(client, info.Name) {
			continue
		}
		response = append(response, SecretInfoResponse{
			Name: info.Name,
			Meta: mapMeta(info.Meta),
		})
	}

	h.auditLog.LogSuccess("list_secrets", client, "")

	c.JSON(http.StatusOK, response)
}

// RotateHandler rotates the named secrets, or everything due when the list
// is empty. POST /rotate - requires the rotate verb on every named secret.
func (h *SecretHandler) RotateHandler(c *gin.Context) {
	client, _ := GetClient(c.Request.Context())

	// An absent body is the same as an empty secrets list: rotate
	// everything that is due.
	var req RotateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if len(req.Secrets) == 0 {
		if !h.authorize(c, client, "", policy.VerbRotate, "rotate_secrets") {
			return
		}
	} else {
		for _, name := range req.Secrets {
			if !h.authorize(c, client, name, policy.VerbRotate, "rotate_secrets") {
				return
			}
		}
	}

	rotated := h.engine.RotateIfDue(req.Secrets)

	h.auditLog.LogSuccess("rotate_secrets", client, "")
	if h.business != nil {
		h.business.RecordSecretRotation(c.Request.Context(), int64(len(rotated)))
	}

	c.JSON(http.StatusOK, RotateResponse{
		Count:   len(rotated),
		Rotated: rotated,
	})
}

// HealthHandler reports liveness and vault stats.
// GET /healthz - no authentication required.
func (h *SecretHandler) HealthHandler(c *gin.Context) {
	stats := h.store.Stats()
	if h.business != nil {
		h.business.RecordSecretCount(c.Request.Context(), int64(stats.Total))
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Secrets:       stats.Total,
	})
}

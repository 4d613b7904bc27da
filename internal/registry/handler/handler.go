// Package handler exposes the registry over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genmark/internal/audit"
	"genmark/internal/domain"
	"genmark/internal/fingerprint"
	"genmark/internal/registry"
	dErrors "genmark/pkg/domain-errors"
	"genmark/pkg/platform/httputil"
	"genmark/pkg/platform/middleware"
	"genmark/pkg/requestcontext"
)

// maxUploadBytes caps image uploads.
const maxUploadBytes = 10 << 20

// Service defines the registry operations the handler needs.
type Service interface {
	Register(ctx context.Context, req registry.RegisterRequest) (registry.RegisterResult, error)
	Verify(ctx context.Context, fp domain.Fingerprint) (registry.VerifyResult, error)
	FlagMisuse(ctx context.Context, req registry.FlagMisuseRequest) (registry.FlagMisuseResult, error)
	GetFlag(ctx context.Context, fp domain.Fingerprint, index uint64) (string, error)
	FindSimilar(ctx context.Context, fp domain.Fingerprint, limit int) ([]registry.SimilarMatch, error)
}

// AuditLog lists recorded audit events.
type AuditLog interface {
	List(ctx context.Context, fingerprint string, limit int) ([]audit.Event, error)
}

// Handler serves the registry API.
type Handler struct {
	logger   *slog.Logger
	svc      Service
	auditLog AuditLog
}

// New creates a registry Handler. auditLog may be nil; the audit endpoint
// then reports not found.
func New(svc Service, auditLog AuditLog, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, svc: svc, auditLog: auditLog}
}

// Register mounts the API routes.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))

	api.Post("/register", h.handleRegister)
	api.Post("/verify", h.handleVerify)
	api.Post("/flag", h.handleFlag)
	api.Get("/flag/{fingerprint}/{index}", h.handleGetFlag)
	api.Get("/similar/{fingerprint}", h.handleSimilar)
	api.Get("/audit/{fingerprint}", h.handleAudit)

	r.Mount("/api", api)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := parseRegisterRequest(r)
	if err != nil {
		h.warn(ctx, "invalid register request", err)
		httputil.WriteError(w, err)
		return
	}

	res, err := h.svc.Register(ctx, req)
	if err != nil {
		h.warn(ctx, "registration failed", err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyRegistered {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, toRegisterResponse(res))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fp, err := parseFingerprintRequest(r)
	if err != nil {
		h.warn(ctx, "invalid verify request", err)
		httputil.WriteError(w, err)
		return
	}

	res, err := h.svc.Verify(ctx, fp)
	if err != nil {
		h.warn(ctx, "verification failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(fp, res))
}

func (h *Handler) handleFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := httputil.Decode[flagRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fp, err := domain.ParseFingerprint(body.Phash)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid phash"))
		return
	}

	res, err := h.svc.FlagMisuse(ctx, registry.FlagMisuseRequest{
		Fingerprint: fp,
		Description: body.Description,
		ReporterID:  body.ReporterID,
	})
	if err != nil {
		h.warn(ctx, "flag failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toFlagResponse(res))
}

func (h *Handler) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	fp, err := domain.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid fingerprint"))
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid flag index"))
		return
	}

	desc, err := h.svc.GetFlag(r.Context(), fp, index)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, flagDetailResponse{
		Fingerprint: fp.String(),
		Index:       index,
		Description: desc,
	})
}

func (h *Handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	fp, err := domain.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid fingerprint"))
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			limit = n
		}
	}

	matches, err := h.svc.FindSimilar(r.Context(), fp, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSimilarResponse(fp, matches))
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditLog == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit trail is not enabled"))
		return
	}
	fp, err := domain.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid fingerprint"))
		return
	}

	events, err := h.auditLog.List(r.Context(), fp.String(), 100)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit trail unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auditResponse{
		Fingerprint: fp.String(),
		Events:      events,
	})
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}

// resolveFingerprint turns uploaded content or a client-supplied hash into a
// fingerprint. Content wins when both are present.
func resolveFingerprint(content []byte, phash string) (domain.Fingerprint, error) {
	if len(content) > 0 {
		fp, err := fingerprint.Compute(content)
		if errors.Is(err, fingerprint.ErrUnsupportedContent) {
			return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, "content is not a decodable image")
		}
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "fingerprint computation failed")
		}
		return fp, nil
	}
	if phash == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "either an image or a phash is required")
	}
	fp, err := domain.ParseFingerprint(phash)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid phash")
	}
	return fp, nil
}

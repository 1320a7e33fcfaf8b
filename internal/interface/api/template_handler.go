package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/usecase"
)

type TemplateHandler struct {
	templates *usecase.TemplateService
	logger    *slog.Logger
}

func NewTemplateHandler(templates *usecase.TemplateService, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, logger: logger}
}

func templateID(r *http.Request, field string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(field), 10, 64)
	if err != nil {
		return 0, &domain.ValidationError{Field: field, Reason: "not a valid id"}
	}
	return id, nil
}

func (h *TemplateHandler) RegisterArmTemplate(w http.ResponseWriter, r *http.Request) {
	h.applyArmTemplate(w, r, h.templates.RegisterArmTemplate, http.StatusCreated)
}

func (h *TemplateHandler) UpdateArmTemplate(w http.ResponseWriter, r *http.Request) {
	h.applyArmTemplate(w, r, h.templates.UpdateArmTemplate, http.StatusOK)
}

func (h *TemplateHandler) applyArmTemplate(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, offerName string, templateID int64, body []byte) error, status int) {
	id, err := templateID(r, "templateId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if err := apply(r.Context(), r.PathValue("offerName"), id, body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(status)
}

type webhookRequest struct {
	URL string `json:"url"`
}

func (h *TemplateHandler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	h.applyWebhook(w, r, h.templates.RegisterWebhook, http.StatusCreated)
}

func (h *TemplateHandler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	h.applyWebhook(w, r, h.templates.UpdateWebhook, http.StatusOK)
}

func (h *TemplateHandler) applyWebhook(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, offerName string, webhookID int64, url string) error, status int) {
	id, err := templateID(r, "webhookId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if req.URL == "" {
		writeError(w, h.logger, &domain.ValidationError{Field: "url", Reason: "not provided"})
		return
	}
	if err := apply(r.Context(), r.PathValue("offerName"), id, req.URL); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(status)
}

func (h *TemplateHandler) SweepUnusedParameters(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.templates.SweepUnusedParameters(r.Context(), r.PathValue("offerName"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Deleted int64 `json:"deleted"`
	}{Deleted: deleted})
}

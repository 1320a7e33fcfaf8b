package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/usecase"
)

type IPConfigHandler struct {
	configs *usecase.IPConfigService
	logger  *slog.Logger
}

func NewIPConfigHandler(configs *usecase.IPConfigService, logger *slog.Logger) *IPConfigHandler {
	return &IPConfigHandler{configs: configs, logger: logger}
}

type ipConfigRequest struct {
	IPsPerSub int      `json:"ipsPerSub"`
	Blocks    []string `json:"ipBlocks"`
}

type ipConfigResponse struct {
	Name      string   `json:"name"`
	IPsPerSub int      `json:"ipsPerSub"`
	Blocks    []string `json:"ipBlocks"`
}

func toIPConfigResponse(cfg *domain.IPConfig) ipConfigResponse {
	return ipConfigResponse{Name: cfg.Name, IPsPerSub: cfg.IPsPerSub, Blocks: cfg.Blocks}
}

func (h *IPConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.GetConfig(r.Context(), r.PathValue("offerName"), r.PathValue("configName"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toIPConfigResponse(cfg))
}

func (h *IPConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ipConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	cfg := &domain.IPConfig{
		Name:      r.PathValue("configName"),
		IPsPerSub: req.IPsPerSub,
		Blocks:    req.Blocks,
	}
	created, err := h.configs.CreateConfig(r.Context(), r.PathValue("offerName"), cfg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIPConfigResponse(created))
}

func (h *IPConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ipConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	cfg := &domain.IPConfig{
		Name:      r.PathValue("configName"),
		IPsPerSub: req.IPsPerSub,
		Blocks:    req.Blocks,
	}
	updated, err := h.configs.UpdateConfig(r.Context(), r.PathValue("offerName"), r.PathValue("configName"), cfg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toIPConfigResponse(updated))
}

func (h *IPConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.configs.DeleteConfig(r.Context(), r.PathValue("offerName"), r.PathValue("configName"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignAddressRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

type ipAddressResponse struct {
	Value          string `json:"value"`
	SubscriptionID string `json:"subscriptionId"`
}

func (h *IPConfigHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	subID, err := uuid.Parse(req.SubscriptionID)
	if err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "subscriptionId", Reason: "not a valid UUID"})
		return
	}

	addr, err := h.configs.AssignAddress(r.Context(), subID, r.PathValue("offerName"), r.PathValue("configName"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ipAddressResponse{Value: addr.Value, SubscriptionID: subID.String()})
}

func (h *IPConfigHandler) Release(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(r.PathValue("subscriptionId"))
	if err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "subscriptionId", Reason: "not a valid UUID"})
		return
	}
	if err := h.configs.ReleaseAddresses(r.Context(), subID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

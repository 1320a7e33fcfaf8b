package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/usecase"
)

type MeterUsageHandler struct {
	tracker *usecase.MeterUsageTracker
	logger  *slog.Logger
}

func NewMeterUsageHandler(tracker *usecase.MeterUsageTracker, logger *slog.Logger) *MeterUsageHandler {
	return &MeterUsageHandler{tracker: tracker, logger: logger}
}

type meterUsageResponse struct {
	MeterID         int64      `json:"meterId"`
	IsEnabled       bool       `json:"isEnabled"`
	EnabledTime     *time.Time `json:"enabledTime,omitempty"`
	DisabledTime    *time.Time `json:"disabledTime,omitempty"`
	LastUpdatedTime time.Time  `json:"lastUpdatedTime"`
}

func (h *MeterUsageHandler) List(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(r.PathValue("subscriptionId"))
	if err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "subscriptionId", Reason: "not a valid UUID"})
		return
	}
	usages, err := h.tracker.ListBySubscription(r.Context(), subID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]meterUsageResponse, 0, len(usages))
	for _, u := range usages {
		out = append(out, meterUsageResponse{
			MeterID:         u.MeterID,
			IsEnabled:       u.IsEnabled,
			EnabledTime:     u.EnabledTime,
			DisabledTime:    u.DisabledTime,
			LastUpdatedTime: u.LastUpdatedTime,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *MeterUsageHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	subID, err := uuid.Parse(r.PathValue("subscriptionId"))
	if err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "subscriptionId", Reason: "not a valid UUID"})
		return
	}
	if enabled {
		err = h.tracker.Enable(r.Context(), subID)
	} else {
		err = h.tracker.Disable(r.Context(), subID)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeterUsageHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *MeterUsageHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *MeterUsageHandler) EffectiveStartTime(w http.ResponseWriter, r *http.Request) {
	start, err := h.tracker.EffectiveStartTime(r.Context(), r.PathValue("offerName"), r.PathValue("meterName"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		EffectiveStartTime time.Time `json:"effectiveStartTime"`
	}{EffectiveStartTime: start})
}

type catchUpRequest struct {
	UpTo time.Time `json:"upTo"`
}

func (h *MeterUsageHandler) CatchUp(w http.ResponseWriter, r *http.Request) {
	var req catchUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if req.UpTo.IsZero() {
		writeError(w, h.logger, &domain.ValidationError{Field: "upTo", Reason: "not provided"})
		return
	}

	touched, err := h.tracker.CatchUpUnreported(r.Context(), r.PathValue("offerName"), r.PathValue("meterName"), req.UpTo)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Touched int64 `json:"touched"`
	}{Touched: touched})
}

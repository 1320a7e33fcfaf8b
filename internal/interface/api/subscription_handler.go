package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
	"github.com/offerstack/fulfillment/internal/usecase"
)

type SubscriptionHandler struct {
	lifecycle *usecase.SubscriptionLifecycle
	logger    *slog.Logger
}

func NewSubscriptionHandler(lifecycle *usecase.SubscriptionLifecycle, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{lifecycle: lifecycle, logger: logger}
}

type subscriptionParameterRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type createSubscriptionRequest struct {
	Name       string                         `json:"name"`
	OfferName  string                         `json:"offerName"`
	PlanName   string                         `json:"planName"`
	Owner      string                         `json:"owner"`
	Quantity   int                            `json:"quantity"`
	Parameters []subscriptionParameterRequest `json:"parameters"`
}

type updateSubscriptionRequest struct {
	PlanName    string `json:"planName"`
	Quantity    int    `json:"quantity"`
	OperationID string `json:"operationId"`
}

type subscriptionResponse struct {
	SubscriptionID     string     `json:"subscriptionId"`
	Name               string     `json:"name"`
	OfferName          string     `json:"offerName"`
	PlanName           string     `json:"planName"`
	Owner              string     `json:"owner"`
	Quantity           int        `json:"quantity"`
	Status             string     `json:"status"`
	ProvisioningStatus string     `json:"provisioningStatus"`
	ProvisioningType   string     `json:"provisioningType"`
	OperationID        string     `json:"operationId,omitempty"`
	CreatedTime        time.Time  `json:"createdTime"`
	LastUpdatedTime    *time.Time `json:"lastUpdatedTime,omitempty"`
	ActivatedTime      *time.Time `json:"activatedTime,omitempty"`
	ActivatedBy        string     `json:"activatedBy,omitempty"`
}

func toSubscriptionResponse(sub *domain.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		SubscriptionID:     sub.SubscriptionID.String(),
		Name:               sub.Name,
		OfferName:          sub.OfferName,
		PlanName:           sub.PlanName,
		Owner:              sub.Owner,
		Quantity:           sub.Quantity,
		Status:             string(sub.Status),
		ProvisioningStatus: string(sub.ProvisioningStatus),
		ProvisioningType:   string(sub.ProvisioningType),
		CreatedTime:        sub.CreatedTime,
		LastUpdatedTime:    sub.LastUpdatedTime,
		ActivatedTime:      sub.ActivatedTime,
		ActivatedBy:        sub.ActivatedBy,
	}
	if sub.OperationID.Valid {
		resp.OperationID = sub.OperationID.UUID.String()
	}
	return resp
}

func subscriptionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("subscriptionId"))
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: "subscriptionId", Reason: "not a valid UUID"}
	}
	return id, nil
}

func operationID(req string) (uuid.UUID, error) {
	if req == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(req)
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: "operationId", Reason: "not a valid UUID"}
	}
	return id, nil
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	in := usecase.CreateSubscriptionInput{
		SubscriptionID: id,
		Name:           req.Name,
		OfferName:      req.OfferName,
		PlanName:       req.PlanName,
		Owner:          req.Owner,
		Quantity:       req.Quantity,
	}
	for _, p := range req.Parameters {
		in.Parameters = append(in.Parameters, domain.SubscriptionParameter{
			Name: p.Name, Type: p.Type, Value: p.Value,
		})
	}

	sub, err := h.lifecycle.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sub, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.FulfillmentState
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.FulfillmentState(s))
		}
	}
	owner := r.URL.Query().Get("owner")

	subs, err := h.lifecycle.List(r.Context(), statuses, owner)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionResponse(&subs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SubscriptionHandler) Warnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.lifecycle.Warnings(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if warnings == nil {
		warnings = []usecase.SubscriptionWarning{}
	}
	writeJSON(w, http.StatusOK, warnings)
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req updateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	opID, err := operationID(req.OperationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub, err := h.lifecycle.Update(r.Context(), usecase.UpdateSubscriptionInput{
		SubscriptionID: id,
		PlanName:       req.PlanName,
		Quantity:       req.Quantity,
	}, opID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

type operationRequest struct {
	OperationID string `json:"operationId"`
}

func (h *SubscriptionHandler) transition(w http.ResponseWriter, r *http.Request,
	run func(id, opID uuid.UUID) (*domain.Subscription, error)) {
	id, err := subscriptionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req operationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
	}
	opID, err := operationID(req.OperationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sub, err := run(id, opID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, opID uuid.UUID) (*domain.Subscription, error) {
		return h.lifecycle.Unsubscribe(r.Context(), id, opID)
	})
}

func (h *SubscriptionHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, opID uuid.UUID) (*domain.Subscription, error) {
		return h.lifecycle.Suspend(r.Context(), id, opID)
	})
}

func (h *SubscriptionHandler) Reinstate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id, opID uuid.UUID) (*domain.Subscription, error) {
		return h.lifecycle.Reinstate(r.Context(), id, opID)
	})
}

func (h *SubscriptionHandler) DeleteData(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sub, err := h.lifecycle.DeleteData(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req struct {
		ActivatedBy string `json:"activatedBy"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, h.logger, &domain.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
	}
	sub, err := h.lifecycle.Activate(r.Context(), id, req.ActivatedBy)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/offerstack/fulfillment/internal/domain"
)

// Parameter names the fulfillment pipeline injects itself. Declarations with
// these names are skipped during reconciliation; operators never provide
// values for them.
const (
	paramOfferName         = "system$$offerName"
	paramSubscriptionOwner = "system$$subscriptionOwner"
	paramSubscriptionID    = "system$$subscriptionId"
	paramPlanName          = "system$$planName"
	paramOperationType     = "system$$operationType"
)

// Parameters every ARM template deployment receives regardless of what the
// template declares.
const (
	paramResourceGroupLocation = "resourceGroupLocation"
	paramEntryPointURL         = "entryPointUrl"
)

func isReservedParameter(name string) bool {
	switch name {
	case paramOfferName, paramSubscriptionOwner, paramSubscriptionID, paramPlanName, paramOperationType:
		return true
	}
	return false
}

// TemplateReconciler keeps the shared parameter definitions of one kind (ARM
// template or webhook) in step with what each template declares. Definitions
// are shared across templates of the offer through join links.
type TemplateReconciler struct {
	params  domain.ParameterRepository
	catalog domain.CatalogRepository
	logger  *slog.Logger
}

func NewTemplateReconciler(params domain.ParameterRepository, catalog domain.CatalogRepository, logger *slog.Logger) *TemplateReconciler {
	return &TemplateReconciler{params: params, catalog: catalog, logger: logger}
}

// Register records the declared parameters of a newly added template: each
// declared name is linked to the existing shared definition when one exists,
// created and linked otherwise. Reserved names are skipped.
func (r *TemplateReconciler) Register(ctx context.Context, offerID, templateID int64, declared []domain.TemplateParameter) error {
	var create []domain.TemplateParameter
	var link []int64
	for _, d := range dedupeParameters(declared) {
		if isReservedParameter(d.Name) {
			continue
		}
		existing, err := r.params.GetByName(ctx, offerID, d.Name)
		if err != nil {
			if _, ok := err.(*domain.NotFoundError); !ok {
				return err
			}
			d.OfferID = offerID
			create = append(create, d)
			continue
		}
		link = append(link, existing.ID)
	}
	if len(create) == 0 && len(link) == 0 {
		return nil
	}
	return r.params.Reconcile(ctx, templateID, create, link, nil)
}

// Update reconciles the declared parameters of a changed template against its
// current links: newly declared names are linked or created, names no longer
// declared are unlinked. The whole diff is applied as one batch.
func (r *TemplateReconciler) Update(ctx context.Context, offerID, templateID int64, declared []domain.TemplateParameter) error {
	linked, err := r.params.ListLinked(ctx, templateID)
	if err != nil {
		return err
	}
	linkedByName := make(map[string]domain.TemplateParameter, len(linked))
	for _, p := range linked {
		linkedByName[p.Name] = p
	}

	var create []domain.TemplateParameter
	var link []int64
	declaredNames := make(map[string]bool)
	for _, d := range dedupeParameters(declared) {
		if isReservedParameter(d.Name) {
			continue
		}
		declaredNames[d.Name] = true
		if _, ok := linkedByName[d.Name]; ok {
			continue
		}
		existing, err := r.params.GetByName(ctx, offerID, d.Name)
		if err != nil {
			if _, ok := err.(*domain.NotFoundError); !ok {
				return err
			}
			d.OfferID = offerID
			create = append(create, d)
			continue
		}
		link = append(link, existing.ID)
	}

	var unlink []int64
	for _, p := range linked {
		if !declaredNames[p.Name] {
			unlink = append(unlink, p.ID)
		}
	}

	if len(create) == 0 && len(link) == 0 && len(unlink) == 0 {
		return nil
	}
	if err := r.params.Reconcile(ctx, templateID, create, link, unlink); err != nil {
		return err
	}
	r.logger.Info("reconciled template parameters",
		"template", templateID, "created", len(create), "linked", len(link), "unlinked", len(unlink))
	return nil
}

// SweepUnused deletes parameter definitions of the offer that no template
// links anymore and reports how many were removed.
func (r *TemplateReconciler) SweepUnused(ctx context.Context, offerID int64) (int64, error) {
	deleted, err := r.params.DeleteUnused(ctx, offerID)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.logger.Info("swept unused template parameters", "offer", offerID, "deleted", deleted)
	}
	return deleted, nil
}

// TemplateService is the offer-facing surface over both reconcilers. It
// parses declarations out of ARM template documents and webhook URLs before
// handing them to the matching reconciler.
type TemplateService struct {
	arm      *TemplateReconciler
	webhooks *TemplateReconciler
	catalog  domain.CatalogRepository
	logger   *slog.Logger
}

func NewTemplateService(arm, webhooks *TemplateReconciler, catalog domain.CatalogRepository, logger *slog.Logger) *TemplateService {
	return &TemplateService{arm: arm, webhooks: webhooks, catalog: catalog, logger: logger}
}

// RegisterArmTemplate records the parameters a new ARM template declares,
// plus the deployment parameters every template receives.
func (s *TemplateService) RegisterArmTemplate(ctx context.Context, offerName string, templateID int64, templateBody []byte) error {
	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return err
	}
	declared, err := ParseArmTemplateParameters(templateBody)
	if err != nil {
		return err
	}
	declared = ensureBaselineParameters(declared)
	return s.arm.Register(ctx, offer.ID, templateID, declared)
}

// UpdateArmTemplate reconciles a changed ARM template's declared parameters.
func (s *TemplateService) UpdateArmTemplate(ctx context.Context, offerName string, templateID int64, templateBody []byte) error {
	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return err
	}
	declared, err := ParseArmTemplateParameters(templateBody)
	if err != nil {
		return err
	}
	declared = ensureBaselineParameters(declared)
	return s.arm.Update(ctx, offer.ID, templateID, declared)
}

// RegisterWebhook records the parameters a new webhook URL declares.
func (s *TemplateService) RegisterWebhook(ctx context.Context, offerName string, webhookID int64, webhookURL string) error {
	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return err
	}
	declared, err := ParseWebhookParameters(webhookURL)
	if err != nil {
		return err
	}
	return s.webhooks.Register(ctx, offer.ID, webhookID, declared)
}

// UpdateWebhook reconciles a changed webhook URL's declared parameters.
func (s *TemplateService) UpdateWebhook(ctx context.Context, offerName string, webhookID int64, webhookURL string) error {
	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return err
	}
	declared, err := ParseWebhookParameters(webhookURL)
	if err != nil {
		return err
	}
	return s.webhooks.Update(ctx, offer.ID, webhookID, declared)
}

// SweepUnusedParameters deletes the offer's unlinked parameter definitions of
// both kinds and reports the total removed.
func (s *TemplateService) SweepUnusedParameters(ctx context.Context, offerName string) (int64, error) {
	offer, err := s.catalog.GetOffer(ctx, offerName)
	if err != nil {
		return 0, err
	}
	armDeleted, err := s.arm.SweepUnused(ctx, offer.ID)
	if err != nil {
		return 0, err
	}
	webhookDeleted, err := s.webhooks.SweepUnused(ctx, offer.ID)
	if err != nil {
		return 0, err
	}
	return armDeleted + webhookDeleted, nil
}

// ParseArmTemplateParameters extracts the parameter declarations from an ARM
// template document.
func ParseArmTemplateParameters(body []byte) ([]domain.TemplateParameter, error) {
	var doc struct {
		Parameters map[string]struct {
			Type string `json:"type"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &domain.ValidationError{Field: "templateContent", Reason: fmt.Sprintf("not a valid ARM template: %v", err)}
	}
	params := make([]domain.TemplateParameter, 0, len(doc.Parameters))
	for name, p := range doc.Parameters {
		params = append(params, domain.TemplateParameter{Name: name, Type: p.Type})
	}
	return params, nil
}

// ParseWebhookParameters extracts parameter declarations from a webhook URL:
// every query value of the form {name} declares a string parameter called
// name.
func ParseWebhookParameters(rawURL string) ([]domain.TemplateParameter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &domain.ValidationError{Field: "webhookUrl", Reason: fmt.Sprintf("not a valid URL: %v", err)}
	}
	var params []domain.TemplateParameter
	for _, values := range u.Query() {
		for _, v := range values {
			if !strings.HasPrefix(v, "{") || !strings.HasSuffix(v, "}") {
				continue
			}
			name := v[1 : len(v)-1]
			if name == "" {
				continue
			}
			params = append(params, domain.TemplateParameter{Name: name, Type: "string"})
		}
	}
	return params, nil
}

// ensureBaselineParameters adds the deployment parameters every ARM template
// receives, unless the template already declares them.
func ensureBaselineParameters(declared []domain.TemplateParameter) []domain.TemplateParameter {
	have := make(map[string]bool, len(declared))
	for _, d := range declared {
		have[d.Name] = true
	}
	for _, name := range []string{paramResourceGroupLocation, paramEntryPointURL} {
		if !have[name] {
			declared = append(declared, domain.TemplateParameter{Name: name, Type: "string"})
		}
	}
	return declared
}

func dedupeParameters(params []domain.TemplateParameter) []domain.TemplateParameter {
	seen := make(map[string]bool, len(params))
	out := params[:0:0]
	for _, p := range params {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

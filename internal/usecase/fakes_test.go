package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/offerstack/fulfillment/internal/domain"
)

// In-memory repository fakes. They mirror the transactional semantics of the
// Postgres implementations closely enough for lifecycle tests: assignment is
// first-free, counts come back from releases and sweeps, and uniqueness is
// keyed the same way.

type fakeCatalog struct {
	offers      map[string]*domain.Offer
	plans       map[int64]map[string]*domain.Plan
	offerParams map[int64][]domain.OfferParameter
	meters      map[int64][]domain.CustomMeter
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		offers:      map[string]*domain.Offer{},
		plans:       map[int64]map[string]*domain.Plan{},
		offerParams: map[int64][]domain.OfferParameter{},
		meters:      map[int64][]domain.CustomMeter{},
	}
}

func (c *fakeCatalog) addOffer(id int64, name string, planNames ...string) *domain.Offer {
	offer := &domain.Offer{ID: id, Name: name, ContainerName: name + "-files"}
	c.offers[name] = offer
	c.plans[id] = map[string]*domain.Plan{}
	for i, planName := range planNames {
		c.plans[id][planName] = &domain.Plan{ID: id*100 + int64(i), OfferID: id, Name: planName}
	}
	return offer
}

func (c *fakeCatalog) OfferExists(ctx context.Context, name string) (bool, error) {
	_, ok := c.offers[name]
	return ok, nil
}

func (c *fakeCatalog) GetOffer(ctx context.Context, name string) (*domain.Offer, error) {
	offer, ok := c.offers[name]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "offer", Key: name}
	}
	return offer, nil
}

func (c *fakeCatalog) GetPlan(ctx context.Context, offerID int64, name string) (*domain.Plan, error) {
	plan, ok := c.plans[offerID][name]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "plan", Key: name}
	}
	return plan, nil
}

func (c *fakeCatalog) ListOfferParameters(ctx context.Context, offerID int64) ([]domain.OfferParameter, error) {
	return c.offerParams[offerID], nil
}

func (c *fakeCatalog) ListCustomMeters(ctx context.Context, offerID int64) ([]domain.CustomMeter, error) {
	return c.meters[offerID], nil
}

func (c *fakeCatalog) GetCustomMeter(ctx context.Context, offerID int64, name string) (*domain.CustomMeter, error) {
	for _, m := range c.meters[offerID] {
		if m.Name == name {
			meter := m
			return &meter, nil
		}
	}
	return nil, &domain.NotFoundError{Resource: "custom meter", Key: name}
}

type fakeIPRepo struct {
	nextID    int64
	configs   map[int64]*domain.IPConfig
	addresses []*domain.IPAddress
	blockCfg  map[int64]int64 // block id -> config id
}

func newFakeIPRepo() *fakeIPRepo {
	return &fakeIPRepo{nextID: 1, configs: map[int64]*domain.IPConfig{}, blockCfg: map[int64]int64{}}
}

func (r *fakeIPRepo) id() int64 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *fakeIPRepo) GetConfig(ctx context.Context, offerID int64, name string) (*domain.IPConfig, error) {
	for _, cfg := range r.configs {
		if cfg.OfferID == offerID && cfg.Name == name {
			copied := *cfg
			copied.Blocks = append([]string(nil), cfg.Blocks...)
			return &copied, nil
		}
	}
	return nil, &domain.NotFoundError{Resource: "IP config", Key: name}
}

func (r *fakeIPRepo) ConfigExists(ctx context.Context, offerID int64, name string) (bool, error) {
	_, err := r.GetConfig(ctx, offerID, name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeIPRepo) CreateConfig(ctx context.Context, cfg *domain.IPConfig, blocks []domain.BlockAddresses) error {
	cfg.ID = r.id()
	stored := *cfg
	stored.Blocks = append([]string(nil), cfg.Blocks...)
	r.configs[cfg.ID] = &stored
	return r.AppendBlocks(ctx, cfg.ID, blocks)
}

func (r *fakeIPRepo) AppendBlocks(ctx context.Context, configID int64, blocks []domain.BlockAddresses) error {
	cfg, ok := r.configs[configID]
	if !ok {
		return &domain.NotFoundError{Resource: "IP config", Key: fmt.Sprint(configID)}
	}
	for _, block := range blocks {
		blockID := r.id()
		r.blockCfg[blockID] = configID
		found := false
		for _, b := range cfg.Blocks {
			if b == block.CIDR {
				found = true
			}
		}
		if !found {
			cfg.Blocks = append(cfg.Blocks, block.CIDR)
		}
		for _, addr := range block.Addresses {
			r.addresses = append(r.addresses, &domain.IPAddress{
				ID: r.id(), IPBlockID: blockID, Value: addr, Available: true,
			})
		}
	}
	return nil
}

func (r *fakeIPRepo) DeleteConfig(ctx context.Context, configID int64) error {
	for _, a := range r.addresses {
		if r.blockCfg[a.IPBlockID] == configID && !a.Available {
			return &domain.ConflictError{Resource: "IP config", Key: fmt.Sprint(configID), Reason: "addresses still assigned"}
		}
	}
	delete(r.configs, configID)
	kept := r.addresses[:0]
	for _, a := range r.addresses {
		if r.blockCfg[a.IPBlockID] != configID {
			kept = append(kept, a)
		}
	}
	r.addresses = kept
	return nil
}

func (r *fakeIPRepo) AssignAddress(ctx context.Context, cfg *domain.IPConfig, subscriptionID uuid.UUID) (*domain.IPAddress, error) {
	for _, a := range r.addresses {
		if r.blockCfg[a.IPBlockID] != cfg.ID || !a.Available {
			continue
		}
		a.Available = false
		a.SubscriptionID = uuid.NullUUID{UUID: subscriptionID, Valid: true}
		copied := *a
		return &copied, nil
	}
	return nil, &domain.CapacityError{IPConfig: cfg.Name}
}

func (r *fakeIPRepo) ReleaseAddresses(ctx context.Context, subscriptionID uuid.UUID) (int64, error) {
	var released int64
	for _, a := range r.addresses {
		if a.SubscriptionID.Valid && a.SubscriptionID.UUID == subscriptionID {
			a.Available = true
			a.SubscriptionID = uuid.NullUUID{}
			released++
		}
	}
	return released, nil
}

type fakeSubRepo struct {
	subs   map[uuid.UUID]*domain.Subscription
	params map[uuid.UUID][]domain.SubscriptionParameter
	usages *fakeMeterUsageRepo
}

func newFakeSubRepo(usages *fakeMeterUsageRepo) *fakeSubRepo {
	return &fakeSubRepo{
		subs:   map[uuid.UUID]*domain.Subscription{},
		params: map[uuid.UUID][]domain.SubscriptionParameter{},
		usages: usages,
	}
}

func (r *fakeSubRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, ok := r.subs[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "subscription", Key: id.String()}
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := r.subs[id]
	return ok, nil
}

func (r *fakeSubRepo) Create(ctx context.Context, sub *domain.Subscription, params []domain.SubscriptionParameter, usages []domain.SubscriptionCustomMeterUsage) error {
	copied := *sub
	r.subs[sub.SubscriptionID] = &copied
	r.params[sub.SubscriptionID] = params
	for _, u := range usages {
		stored := u
		r.usages.rows = append(r.usages.rows, &stored)
	}
	return nil
}

func (r *fakeSubRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	if _, ok := r.subs[sub.SubscriptionID]; !ok {
		return &domain.NotFoundError{Resource: "subscription", Key: sub.SubscriptionID.String()}
	}
	copied := *sub
	r.subs[sub.SubscriptionID] = &copied
	return nil
}

func (r *fakeSubRepo) Unsubscribe(ctx context.Context, sub *domain.Subscription, unsubscribedAt time.Time) error {
	for _, u := range r.usages.rows {
		if u.SubscriptionID == sub.SubscriptionID && u.IsEnabled {
			at := unsubscribedAt
			u.UnsubscribedTime = &at
		}
	}
	return r.Update(ctx, sub)
}

func (r *fakeSubRepo) Suspend(ctx context.Context, sub *domain.Subscription, suspendedAt time.Time) error {
	if err := r.usages.SetEnabledBySubscription(ctx, sub.SubscriptionID, false, suspendedAt); err != nil {
		return err
	}
	return r.Update(ctx, sub)
}

func (r *fakeSubRepo) Reinstate(ctx context.Context, sub *domain.Subscription, reinstatedAt time.Time) error {
	if err := r.usages.SetEnabledBySubscription(ctx, sub.SubscriptionID, true, reinstatedAt); err != nil {
		return err
	}
	return r.Update(ctx, sub)
}

func (r *fakeSubRepo) List(ctx context.Context, statuses []domain.FulfillmentState, owner string) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for _, sub := range r.subs {
		if owner != "" && sub.Owner != owner {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, s := range statuses {
				if sub.Status == s {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *sub)
	}
	return out, nil
}

type fakeMeterUsageRepo struct {
	rows []*domain.SubscriptionCustomMeterUsage
}

func (r *fakeMeterUsageRepo) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionCustomMeterUsage, error) {
	var out []domain.SubscriptionCustomMeterUsage
	for _, u := range r.rows {
		if u.SubscriptionID == subscriptionID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *fakeMeterUsageRepo) SetEnabledBySubscription(ctx context.Context, subscriptionID uuid.UUID, enabled bool, now time.Time) error {
	for _, u := range r.rows {
		if u.SubscriptionID != subscriptionID {
			continue
		}
		u.IsEnabled = enabled
		at := now
		if enabled {
			u.EnabledTime = &at
			u.LastUpdatedTime = now
		} else {
			u.DisabledTime = &at
		}
	}
	return nil
}

func (r *fakeMeterUsageRepo) EarliestEnabledUpdate(ctx context.Context, meterID int64) (time.Time, bool, error) {
	var earliest time.Time
	found := false
	for _, u := range r.rows {
		if u.MeterID != meterID || !u.IsEnabled {
			continue
		}
		if !found || u.LastUpdatedTime.Before(earliest) {
			earliest = u.LastUpdatedTime
			found = true
		}
	}
	return earliest, found, nil
}

func (r *fakeMeterUsageRepo) AdvanceUnreported(ctx context.Context, meterID int64, t time.Time) (int64, error) {
	var touched int64
	for _, u := range r.rows {
		if u.MeterID != meterID || !u.IsEnabled || !u.LastUpdatedTime.Before(t) {
			continue
		}
		if u.LastErrorReportedTime != nil && !u.LastErrorReportedTime.Before(t) {
			continue
		}
		if u.UnsubscribedTime != nil && u.UnsubscribedTime.Before(t) {
			at := t
			u.LastUpdatedTime = t
			u.DisabledTime = &at
			u.IsEnabled = false
		} else {
			u.LastUpdatedTime = t
		}
		touched++
	}
	return touched, nil
}

type fakeParamRepo struct {
	nextID int64
	params []*domain.TemplateParameter
	links  map[int64]map[int64]bool // template id -> parameter id set
}

func newFakeParamRepo() *fakeParamRepo {
	return &fakeParamRepo{nextID: 1, links: map[int64]map[int64]bool{}}
}

func (r *fakeParamRepo) ListByOffer(ctx context.Context, offerID int64) ([]domain.TemplateParameter, error) {
	var out []domain.TemplateParameter
	for _, p := range r.params {
		if p.OfferID == offerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeParamRepo) GetByName(ctx context.Context, offerID int64, name string) (*domain.TemplateParameter, error) {
	for _, p := range r.params {
		if p.OfferID == offerID && p.Name == name {
			copied := *p
			return &copied, nil
		}
	}
	return nil, &domain.NotFoundError{Resource: "parameter", Key: name}
}

func (r *fakeParamRepo) Exists(ctx context.Context, offerID int64, name string) (bool, error) {
	_, err := r.GetByName(ctx, offerID, name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeParamRepo) ListLinked(ctx context.Context, templateID int64) ([]domain.TemplateParameter, error) {
	var out []domain.TemplateParameter
	for _, p := range r.params {
		if r.links[templateID][p.ID] {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeParamRepo) Reconcile(ctx context.Context, templateID int64, create []domain.TemplateParameter, link []int64, unlink []int64) error {
	if r.links[templateID] == nil {
		r.links[templateID] = map[int64]bool{}
	}
	for _, p := range create {
		stored := p
		stored.ID = r.nextID
		r.nextID++
		r.params = append(r.params, &stored)
		r.links[templateID][stored.ID] = true
	}
	for _, id := range link {
		r.links[templateID][id] = true
	}
	for _, id := range unlink {
		delete(r.links[templateID], id)
	}
	return nil
}

func (r *fakeParamRepo) DeleteUnused(ctx context.Context, offerID int64) (int64, error) {
	linked := map[int64]bool{}
	for _, set := range r.links {
		for id := range set {
			linked[id] = true
		}
	}
	var deleted int64
	kept := r.params[:0]
	for _, p := range r.params {
		if p.OfferID == offerID && !linked[p.ID] {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	r.params = kept
	return deleted, nil
}

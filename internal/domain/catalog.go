package domain

// Catalog entities are offer-scoped configuration authored by the ISV. The
// fulfillment core consumes them as read-only lookups by name; their own CRUD
// lifecycle is owned by the admin layer.

type Offer struct {
	ID            int64
	Name          string
	ContainerName string
}

type Plan struct {
	ID      int64
	OfferID int64
	Name    string
}

// OfferParameter declares an input a purchaser must supply when subscribing.
type OfferParameter struct {
	ID        int64
	OfferID   int64
	Name      string
	ValueType string
}

type ArmTemplate struct {
	ID      int64
	OfferID int64
	Name    string
	FileURL string
}

type Webhook struct {
	ID      int64
	OfferID int64
	Name    string
	URL     string
}

// TemplateParameter is a parameter definition shared by the ARM templates or
// webhooks of one offer. Many templates may link to a single definition.
type TemplateParameter struct {
	ID      int64
	OfferID int64
	Name    string
	Type    string
	Value   string
}

// ParameterLink is a join entry associating one template (or webhook) with a
// shared parameter definition.
type ParameterLink struct {
	TemplateID  int64
	ParameterID int64
}

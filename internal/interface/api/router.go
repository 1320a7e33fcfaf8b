package api

import "net/http"

// NewRouter wires every handler onto one mux. Offer-scoped resources live
// under /offers/{offerName}; subscription lifecycle actions are POSTs on the
// subscription.
func NewRouter(subs *SubscriptionHandler, configs *IPConfigHandler, meters *MeterUsageHandler, templates *TemplateHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /subscriptions/{subscriptionId}", subs.Create)
	mux.HandleFunc("GET /subscriptions/{subscriptionId}", subs.Get)
	mux.HandleFunc("GET /subscriptions", subs.List)
	mux.HandleFunc("GET /subscriptions/warnings", subs.Warnings)
	mux.HandleFunc("PATCH /subscriptions/{subscriptionId}", subs.Update)
	mux.HandleFunc("POST /subscriptions/{subscriptionId}/unsubscribe", subs.Unsubscribe)
	mux.HandleFunc("POST /subscriptions/{subscriptionId}/suspend", subs.Suspend)
	mux.HandleFunc("POST /subscriptions/{subscriptionId}/reinstate", subs.Reinstate)
	mux.HandleFunc("POST /subscriptions/{subscriptionId}/deleteData", subs.DeleteData)
	mux.HandleFunc("POST /subscriptions/{subscriptionId}/activate", subs.Activate)

	mux.HandleFunc("GET /offers/{offerName}/ipConfigs/{configName}", configs.Get)
	mux.HandleFunc("PUT /offers/{offerName}/ipConfigs/{configName}", configs.Create)
	mux.HandleFunc("PATCH /offers/{offerName}/ipConfigs/{configName}", configs.Update)
	mux.HandleFunc("DELETE /offers/{offerName}/ipConfigs/{configName}", configs.Delete)
	mux.HandleFunc("POST /offers/{offerName}/ipConfigs/{configName}/assign", configs.Assign)
	mux.HandleFunc("DELETE /subscriptions/{subscriptionId}/ipAddresses", configs.Release)

	mux.HandleFunc("GET /subscriptions/{subscriptionId}/meterUsages", meters.List)
	mux.HandleFunc("POST /subscriptions/{subscriptionId}/meterUsages/enable", meters.Enable)
	mux.HandleFunc("POST /subscriptions/{subscriptionId}/meterUsages/disable", meters.Disable)
	mux.HandleFunc("GET /offers/{offerName}/meters/{meterName}/effectiveStartTime", meters.EffectiveStartTime)
	mux.HandleFunc("POST /offers/{offerName}/meters/{meterName}/catchUp", meters.CatchUp)

	mux.HandleFunc("PUT /offers/{offerName}/armTemplates/{templateId}/parameters", templates.RegisterArmTemplate)
	mux.HandleFunc("PATCH /offers/{offerName}/armTemplates/{templateId}/parameters", templates.UpdateArmTemplate)
	mux.HandleFunc("PUT /offers/{offerName}/webhooks/{webhookId}/parameters", templates.RegisterWebhook)
	mux.HandleFunc("PATCH /offers/{offerName}/webhooks/{webhookId}/parameters", templates.UpdateWebhook)
	mux.HandleFunc("POST /offers/{offerName}/parameters/sweep", templates.SweepUnusedParameters)

	return mux
}

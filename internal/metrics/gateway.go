package metrics

import "time"

// Metric names recorded by the gateway.
const (
	WebhookRequestsTotal   = "webhook_requests_total"
	WebhookChangesTotal    = "webhook_changes_total"
	InboundMessagesTotal   = "inbound_messages_total"
	DuplicateMessagesTotal = "inbound_duplicates_total"
	DeliveryStatusTotal    = "delivery_status_total"
	TemplateStatusTotal    = "template_status_total"
	AutoRepliesTotal       = "auto_replies_total"
	ReadReceiptsTotal      = "read_receipts_total"
	OutboundMessagesTotal  = "outbound_messages_total"
	OutboundSendDuration   = "outbound_send_duration"
	TokenResolutionsTotal  = "token_resolutions_total"
	TokenCacheHitsTotal    = "token_cache_hits_total"
	TokenInvalidationTotal = "token_invalidations_total"
	EventSubscribers       = "event_subscribers"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// RecordWebhookRequest counts a callback by verification result.
func (r *Registry) RecordWebhookRequest(result string) {
	r.IncrementCounter(WebhookRequestsTotal, map[string]string{"result": result}, "Inbound webhook requests")
}

// RecordWebhookChange counts one entry.changes[] element by field.
func (r *Registry) RecordWebhookChange(field string) {
	r.IncrementCounter(WebhookChangesTotal, map[string]string{"field": field}, "Webhook changes by field")
}

// RecordInboundMessage counts a persisted inbound message by kind.
func (r *Registry) RecordInboundMessage(kind string) {
	r.IncrementCounter(InboundMessagesTotal, map[string]string{"kind": kind}, "Inbound messages by kind")
}

// RecordDuplicateMessage counts a redelivered inbound message.
func (r *Registry) RecordDuplicateMessage() {
	r.IncrementCounter(DuplicateMessagesTotal, nil, "Inbound messages skipped as duplicates")
}

// RecordDeliveryStatus counts a delivery receipt by status.
func (r *Registry) RecordDeliveryStatus(status string) {
	r.IncrementCounter(DeliveryStatusTotal, map[string]string{"status": status}, "Delivery receipts by status")
}

// RecordTemplateStatus counts a template review transition.
func (r *Registry) RecordTemplateStatus(event string) {
	r.IncrementCounter(TemplateStatusTotal, map[string]string{"event": event}, "Template status updates")
}

// RecordAutoReply counts an auto-reply attempt.
func (r *Registry) RecordAutoReply(err error) {
	r.IncrementCounter(AutoRepliesTotal, map[string]string{"outcome": outcome(err)}, "Keyword auto-replies")
}

// RecordReadReceipt counts a read-receipt attempt.
func (r *Registry) RecordReadReceipt(err error) {
	r.IncrementCounter(ReadReceiptsTotal, map[string]string{"outcome": outcome(err)}, "Read receipts sent")
}

// RecordOutbound counts a send and records its provider latency.
func (r *Registry) RecordOutbound(mode string, duration time.Duration, err error) {
	labels := map[string]string{"mode": mode, "outcome": outcome(err)}
	r.IncrementCounter(OutboundMessagesTotal, labels, "Outbound messages by mode")
	r.RecordTimer(OutboundSendDuration, duration, map[string]string{"mode": mode}, "Provider send latency")
}

// RecordTokenResolution counts a fallback-chain resolution by source.
func (r *Registry) RecordTokenResolution(source string, err error) {
	r.IncrementCounter(TokenResolutionsTotal, map[string]string{"source": source, "outcome": outcome(err)}, "Credential resolutions")
}

// RecordTokenCacheHit counts a credential served from cache.
func (r *Registry) RecordTokenCacheHit() {
	r.IncrementCounter(TokenCacheHitsTotal, nil, "Credential cache hits")
}

// RecordTokenInvalidation counts an explicit cache clear by reason.
func (r *Registry) RecordTokenInvalidation(reason string) {
	r.IncrementCounter(TokenInvalidationTotal, map[string]string{"reason": reason}, "Credential invalidations")
}

// SetEventSubscribers reports the number of live /events connections.
func (r *Registry) SetEventSubscribers(n int) {
	r.SetGauge(EventSubscribers, float64(n), nil, "Connected event feed subscribers")
}

package enum

// ── Group A: Provider states (owned by the payment provider) ──

const (
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresConfirmation  = "requires_confirmation"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusProcessing            = "processing"
	IntentStatusCanceled              = "canceled"
	IntentStatusSucceeded             = "succeeded"
)

const (
	WebhookIntentSucceeded = "payment_intent.succeeded"
)

// ── Group B: Intent metadata ──

const (
	MetadataUsername = "username"
	MetadataPurpose  = "purpose"
)

const (
	PurposeOrder    = "order"
	PurposeDonation = "donation"
)

// ── Group C: Order lifecycle events (broadcast + queued) ──

const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
	EventOrderPaid    = "order.paid"
)

const (
	CurrencyGBP = "gbp"
)

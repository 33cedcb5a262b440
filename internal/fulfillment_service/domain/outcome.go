package domain

// ErrorCategory is the canonical reason a delivery failed.
type ErrorCategory string

const (
	CategoryRateLimited           ErrorCategory = "rate_limited"
	CategoryProviderUnavailable   ErrorCategory = "provider_unavailable"
	CategoryAuthorizationRequired ErrorCategory = "authorization_required"
	CategoryInvalidRecipient      ErrorCategory = "invalid_recipient"
	CategoryQuantityBelowMinimum  ErrorCategory = "quantity_below_minimum"
	CategoryInsufficientBalance   ErrorCategory = "insufficient_balance"
	CategoryWrongVersion          ErrorCategory = "wrong_version"
	CategoryRecipientNotFound     ErrorCategory = "recipient_not_found"
	CategoryProviderMessage       ErrorCategory = "provider_message"
	CategoryGeneric               ErrorCategory = "generic"
)

// Classification pairs a category with the text shown to the buyer.
type Classification struct {
	Category ErrorCategory
	Message  string
}

// DeliveryOutcome is the result of one delivery attempt. Status is 0 when
// the request never produced an HTTP response.
type DeliveryOutcome struct {
	Success        bool
	Body           string
	Status         int
	Classification *Classification
}

package domain

// Purchase is a validated purchase event from the webhook adapter.
type Purchase struct {
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
	ProductName    string  `json:"product_name"`
	Recipient      string  `json:"recipient"`
}

// IssueRequest asks the issuer for a token on a matched resource.
type IssueRequest struct {
	IdempotencyKey *string
	ProductName    string // Normalized
	ResourceID     ResourceID
	Policy         Policy
}

// IssueResult carries the stored record. AlreadyProcessed is set when the
// idempotency key had been seen before; callers skip notification then.
type IssueResult struct {
	Record           TokenRecord
	AlreadyProcessed bool
}

// Outcome reasons for an unfulfilled purchase.
const (
	ReasonUnmatched = "unmatched"
)

// PurchaseOutcome is the caller-visible result of handling a purchase event.
type PurchaseOutcome struct {
	Success          bool       `json:"success"`
	ResourceID       ResourceID `json:"resource_id,omitempty"`
	AccessURL        string     `json:"access_url,omitempty"`
	AlreadyProcessed bool       `json:"already_processed,omitempty"`
	Emailed          bool       `json:"emailed"`
	Reason           string     `json:"reason,omitempty"`
	RawName          string     `json:"raw_name,omitempty"`
}

// Notification is what the notifier sends to a purchaser.
type Notification struct {
	Recipient    string
	ResourceName string
	AccessURL    string
}

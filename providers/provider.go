package providers

import (
	"context"
	"strings"
	"sync"

	"bitbucket.org/rentfolio/reporting_backend/credit"
)

type SubmitStatus string

const (
	SubmitStatusAccepted SubmitStatus = "accepted"
	SubmitStatusRejected SubmitStatus = "rejected"
	SubmitStatusFailed   SubmitStatus = "failed"
)

type SubmitResult struct {
	Status    SubmitStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	ReceiptId string       `json:"receipt_id,omitempty"`
}

// SubmissionMeta carries the identifying fields a provider needs to shape and
// address a payload.
type SubmissionMeta struct {
	LandlordId     string  `json:"landlord_id"`
	TenantId       string  `json:"tenant_id"`
	LeaseId        *string `json:"lease_id,omitempty"`
	Period         string  `json:"period"`
	PayloadVersion string  `json:"payload_version"`
	SubmissionKey  string  `json:"submission_key"`
}

// Payload is the provider-specific wire shape. Kept generic so it can be
// hashed and stored as an audit snapshot without knowing the provider.
type Payload map[string]interface{}

// Provider is the capability interface for one bureau integration.
// Submit is the only method with a network side effect; transport timeouts are
// the provider's responsibility.
type Provider interface {
	Key() string
	ValidateConfig() error
	BuildPayload(records []credit.BureauRecord, meta SubmissionMeta) (Payload, error)
	Submit(ctx context.Context, payload Payload) (SubmitResult, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Provider{}
)

func Register(p Provider) {
	registryMu.Lock()
	registry[strings.ToLower(p.Key())] = p
	registryMu.Unlock()
}

// Resolve returns the provider for key, defaulting to the mock implementation
// for empty or unknown keys. Callers must still run ValidateConfig before any
// live use; unimplemented providers fail there, not here.
func Resolve(key string) Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if p, ok := registry[strings.ToLower(strings.TrimSpace(key))]; ok {
		return p
	}
	return registry[KeyMock]
}

func init() {
	Register(&MockProvider{})
	Register(NewExperianProvider())
	Register(&TransUnionProvider{})
}

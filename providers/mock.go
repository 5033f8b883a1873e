package providers

import (
	"context"

	"bitbucket.org/rentfolio/reporting_backend/credit"
	"github.com/google/uuid"
)

const KeyMock = "mock"

// MockProvider always validates and always accepts. It is the reference
// implementation for dry-run submissions and tests; it never touches the network.
type MockProvider struct{}

func (p *MockProvider) Key() string { return KeyMock }

func (p *MockProvider) ValidateConfig() error { return nil }

func (p *MockProvider) BuildPayload(records []credit.BureauRecord, meta SubmissionMeta) (Payload, error) {
	return Payload{
		"provider":        KeyMock,
		"payload_version": meta.PayloadVersion,
		"landlord_id":     meta.LandlordId,
		"tenant_id":       meta.TenantId,
		"period":          meta.Period,
		"records":         records,
	}, nil
}

func (p *MockProvider) Submit(ctx context.Context, payload Payload) (SubmitResult, error) {
	return SubmitResult{
		Status:    SubmitStatusAccepted,
		Message:   "mock accepted",
		ReceiptId: uuid.NewString(),
	}, nil
}

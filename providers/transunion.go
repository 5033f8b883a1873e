package providers

import (
	"context"

	"bitbucket.org/rentfolio/reporting_backend/credit"
	"bitbucket.org/rentfolio/reporting_backend/utils"
)

const KeyTransUnion = "transunion"

// TransUnionProvider is registered but not yet implemented. ValidateConfig
// failing with a ConfigurationError is the expected, normal answer for it;
// callers surface that as a precondition failure, never a crash.
type TransUnionProvider struct{}

func (p *TransUnionProvider) Key() string { return KeyTransUnion }

func (p *TransUnionProvider) ValidateConfig() error {
	return utils.NewConfigurationError(KeyTransUnion, "transunion integration is not implemented")
}

func (p *TransUnionProvider) BuildPayload(records []credit.BureauRecord, meta SubmissionMeta) (Payload, error) {
	return nil, p.ValidateConfig()
}

func (p *TransUnionProvider) Submit(ctx context.Context, payload Payload) (SubmitResult, error) {
	return SubmitResult{}, p.ValidateConfig()
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/credit"
	"bitbucket.org/rentfolio/reporting_backend/utils"
)

const KeyExperian = "experian"

// ExperianProvider submits rental tradeline data in a Metro2-flavored JSON
// shape. Credentials come from env:
// - EXPERIAN_API_URL
// - EXPERIAN_API_KEY
// - EXPERIAN_SUBSCRIBER_CODE
type ExperianProvider struct {
	client *http.Client
}

func NewExperianProvider() *ExperianProvider {
	return &ExperianProvider{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *ExperianProvider) Key() string { return KeyExperian }

func (p *ExperianProvider) ValidateConfig() error {
	if os.Getenv("EXPERIAN_API_URL") == "" {
		return utils.NewConfigurationError(KeyExperian, "EXPERIAN_API_URL is not set")
	}
	if os.Getenv("EXPERIAN_API_KEY") == "" {
		return utils.NewConfigurationError(KeyExperian, "EXPERIAN_API_KEY is not set")
	}
	if os.Getenv("EXPERIAN_SUBSCRIBER_CODE") == "" {
		return utils.NewConfigurationError(KeyExperian, "EXPERIAN_SUBSCRIBER_CODE is not set")
	}
	return nil
}

func (p *ExperianProvider) BuildPayload(records []credit.BureauRecord, meta SubmissionMeta) (Payload, error) {
	segments := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		segments = append(segments, map[string]interface{}{
			"portfolio_type": "O", // open account (rental)
			"account_id":     meta.SubmissionKey,
			"consumer_id":    meta.TenantId,
			"period":         r.Period,
			"payment_rating": r.StatusCode,
			"scheduled_amount": func() interface{} {
				if r.RentAmount == nil {
					return nil
				}
				return r.RentAmount.String()
			}(),
			"actual_amount": r.AmountPaid.String(),
		})
	}
	return Payload{
		"provider":        KeyExperian,
		"payload_version": meta.PayloadVersion,
		"header": map[string]interface{}{
			"subscriber_code": os.Getenv("EXPERIAN_SUBSCRIBER_CODE"),
			"furnisher_id":    meta.LandlordId,
			"reporting_month": meta.Period,
		},
		"base_segments": segments,
	}, nil
}

func (p *ExperianProvider) Submit(ctx context.Context, payload Payload) (SubmitResult, error) {
	if err := p.ValidateConfig(); err != nil {
		return SubmitResult{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, os.Getenv("EXPERIAN_API_URL"), bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+os.Getenv("EXPERIAN_API_KEY"))

	resp, err := p.client.Do(req)
	if err != nil {
		return SubmitResult{}, utils.NewTransientProviderError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed struct {
			ReceiptId string `json:"receipt_id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
		return SubmitResult{Status: SubmitStatusAccepted, ReceiptId: parsed.ReceiptId}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The bureau made an authoritative decision; do not retry.
		return SubmitResult{
			Status:  SubmitStatusRejected,
			Message: fmt.Sprintf("experian rejected submission (http %d)", resp.StatusCode),
		}, nil
	default:
		return SubmitResult{
			Status:  SubmitStatusFailed,
			Message: fmt.Sprintf("experian unavailable (http %d)", resp.StatusCode),
		}, nil
	}
}

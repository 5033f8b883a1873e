package providers

import (
	"context"
	"testing"

	"bitbucket.org/rentfolio/reporting_backend/credit"
	"bitbucket.org/rentfolio/reporting_backend/utils"
)

func TestResolve_DefaultsToMock(t *testing.T) {
	for _, key := range []string{"", "mock", "MOCK", " mock ", "unknown-provider"} {
		if _, ok := Resolve(key).(*MockProvider); !ok {
			t.Fatalf("Resolve(%q) = %T, want *MockProvider", key, Resolve(key))
		}
	}
}

func TestResolve_KnownKeys(t *testing.T) {
	if _, ok := Resolve("experian").(*ExperianProvider); !ok {
		t.Fatalf("Resolve(experian) = %T", Resolve("experian"))
	}
	if _, ok := Resolve("transunion").(*TransUnionProvider); !ok {
		t.Fatalf("Resolve(transunion) = %T", Resolve("transunion"))
	}
}

func TestMockProvider_AlwaysValidatesAndAccepts(t *testing.T) {
	p := &MockProvider{}
	if err := p.ValidateConfig(); err != nil {
		t.Fatalf("mock ValidateConfig: %v", err)
	}

	records := []credit.BureauRecord{{Period: "2024-03", StatusCode: credit.BureauCodeOK}}
	payload, err := p.BuildPayload(records, SubmissionMeta{
		LandlordId:     "ll_1",
		TenantId:       "tn_1",
		Period:         "2024-03",
		PayloadVersion: "v1",
	})
	if err != nil {
		t.Fatalf("mock BuildPayload: %v", err)
	}
	if payload["provider"] != KeyMock {
		t.Fatalf("payload provider = %v, want %s", payload["provider"], KeyMock)
	}

	result, err := p.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("mock Submit: %v", err)
	}
	if result.Status != SubmitStatusAccepted {
		t.Fatalf("status = %s, want accepted", result.Status)
	}
	if result.ReceiptId == "" {
		t.Fatal("mock Submit returned empty receipt id")
	}
}

func TestExperianProvider_ValidateConfigMissingCreds(t *testing.T) {
	t.Setenv("EXPERIAN_API_URL", "")
	t.Setenv("EXPERIAN_API_KEY", "")
	t.Setenv("EXPERIAN_SUBSCRIBER_CODE", "")

	p := NewExperianProvider()
	err := p.ValidateConfig()
	if err == nil {
		t.Fatal("expected configuration error without credentials")
	}
	if !utils.IsConfigurationError(err) {
		t.Fatalf("err = %T, want *utils.ConfigurationError", err)
	}
}

func TestExperianProvider_BuildPayloadShape(t *testing.T) {
	t.Setenv("EXPERIAN_SUBSCRIBER_CODE", "SUB123")

	p := NewExperianProvider()
	records := []credit.BureauRecord{
		{Period: "2024-03", StatusCode: credit.BureauCode30},
	}
	payload, err := p.BuildPayload(records, SubmissionMeta{
		LandlordId:     "ll_1",
		TenantId:       "tn_1",
		Period:         "2024-03",
		PayloadVersion: "v1",
		SubmissionKey:  "experian|v1|ll_1|tn_1|2024-03",
	})
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	header, ok := payload["header"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload header missing: %v", payload)
	}
	if header["subscriber_code"] != "SUB123" {
		t.Fatalf("subscriber_code = %v, want SUB123", header["subscriber_code"])
	}
	segments, ok := payload["base_segments"].([]map[string]interface{})
	if !ok || len(segments) != 1 {
		t.Fatalf("base_segments = %v, want 1 segment", payload["base_segments"])
	}
	if segments[0]["payment_rating"] != credit.BureauCode30 {
		t.Fatalf("payment_rating = %v, want %s", segments[0]["payment_rating"], credit.BureauCode30)
	}
}

func TestTransUnionProvider_UnimplementedIsConfigError(t *testing.T) {
	p := &TransUnionProvider{}
	if err := p.ValidateConfig(); !utils.IsConfigurationError(err) {
		t.Fatalf("ValidateConfig err = %v, want configuration error", err)
	}
	if _, err := p.BuildPayload(nil, SubmissionMeta{}); !utils.IsConfigurationError(err) {
		t.Fatalf("BuildPayload err = %v, want configuration error", err)
	}
	if _, err := p.Submit(context.Background(), nil); !utils.IsConfigurationError(err) {
		t.Fatalf("Submit err = %v, want configuration error", err)
	}
}

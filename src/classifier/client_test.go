package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"investpipeline/src/model"
)

type stubInvoker struct {
	text         string
	inputTokens  int64
	outputTokens int64
	err          error
	prompts      []string
}

func (s *stubInvoker) Invoke(ctx context.Context, prompt string) (string, int64, int64, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", 0, 0, s.err
	}
	return s.text, s.inputTokens, s.outputTokens, nil
}

type memoryAttempts struct {
	attempts []*model.ClassificationAttempt
}

func (m *memoryAttempts) Create(ctx context.Context, attempt *model.ClassificationAttempt) error {
	m.attempts = append(m.attempts, attempt)
	return nil
}

func testConfig() Config {
	return Config{
		Model:             "test-model",
		MaxTokens:         1024,
		Timeout:           5 * time.Second,
		InputCostPerMTok:  3.0,
		OutputCostPerMTok: 15.0,
	}
}

func TestClassifySuccess(t *testing.T) {
	inv := &stubInvoker{
		text:         `{"ticker": "sbux", "company_name": "Starbucks Corporation", "category": "Coffee Shops", "confidence": 0.97}`,
		inputTokens:  200,
		outputTokens: 40,
	}
	attempts := &memoryAttempts{}
	client := newClientWithInvoker(inv, attempts, testConfig())

	mapping := &model.Mapping{ID: 7, MerchantName: "STARBUCKS #9911 SEATTLE"}
	result, err := client.Classify(context.Background(), mapping, "")
	if err != nil {
		t.Fatalf("unexpected classify error: %v", err)
	}

	if result.Ticker != "SBUX" {
		t.Fatalf("ticker = %q, want SBUX (uppercased)", result.Ticker)
	}
	if result.Confidence != 0.97 {
		t.Fatalf("confidence = %f, want 0.97", result.Confidence)
	}
	if result.ModelVersion != "test-model" {
		t.Fatalf("model version = %q", result.ModelVersion)
	}

	if len(attempts.attempts) != 1 {
		t.Fatalf("expected 1 persisted attempt, got %d", len(attempts.attempts))
	}
	attempt := attempts.attempts[0]
	if attempt.MappingID != 7 || attempt.IsError {
		t.Fatalf("unexpected attempt record: %+v", attempt)
	}
	if attempt.Ticker != "SBUX" || attempt.RawResponse == "" || attempt.Prompt == "" {
		t.Fatalf("attempt missing audit fields: %+v", attempt)
	}
	if attempt.CostUSD.IsZero() {
		t.Fatalf("expected nonzero cost for %d/%d tokens", attempt.InputTokens, attempt.OutputTokens)
	}
}

func TestClassifyWrappedJSON(t *testing.T) {
	inv := &stubInvoker{
		text: "Here is the result:\n```json\n{\"ticker\": \"COST\", \"company_name\": \"Costco Wholesale\", \"category\": \"Groceries\", \"confidence\": 0.92}\n```",
	}
	client := newClientWithInvoker(inv, &memoryAttempts{}, testConfig())

	result, err := client.Classify(context.Background(), &model.Mapping{ID: 1, MerchantName: "COSTCO WHSE #0423"}, "")
	if err != nil {
		t.Fatalf("unexpected classify error: %v", err)
	}
	if result.Ticker != "COST" {
		t.Fatalf("ticker = %q, want COST", result.Ticker)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	inv := &stubInvoker{
		text: `{"ticker": "", "company_name": "", "category": "", "confidence": 0.1}`,
	}
	client := newClientWithInvoker(inv, &memoryAttempts{}, testConfig())

	result, err := client.Classify(context.Background(), &model.Mapping{ID: 2, MerchantName: "JOES PLUMBING LLC"}, "")
	if err != nil {
		t.Fatalf("unexpected classify error: %v", err)
	}
	if result.Ticker != "" {
		t.Fatalf("expected empty ticker for unidentifiable merchant, got %q", result.Ticker)
	}
}

func TestClassifyEmptyMerchant(t *testing.T) {
	client := newClientWithInvoker(&stubInvoker{}, &memoryAttempts{}, testConfig())

	_, err := client.Classify(context.Background(), &model.Mapping{ID: 3, MerchantName: "   "}, "")
	if err == nil {
		t.Fatal("expected error for empty merchant name")
	}

	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != KindInvalidInput || cerr.Retryable {
		t.Fatalf("expected non-retryable invalid_input, got %v", err)
	}
}

func TestClassifyMalformedResponse(t *testing.T) {
	inv := &stubInvoker{text: "I could not find anything"}
	attempts := &memoryAttempts{}
	client := newClientWithInvoker(inv, attempts, testConfig())

	_, err := client.Classify(context.Background(), &model.Mapping{ID: 4, MerchantName: "SQ *COFFEE"}, "")

	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != KindMalformed || cerr.Retryable {
		t.Fatalf("expected non-retryable malformed_response, got %v", err)
	}

	// The failed attempt is still persisted for the audit trail.
	if len(attempts.attempts) != 1 || !attempts.attempts[0].IsError {
		t.Fatalf("expected 1 error attempt, got %+v", attempts.attempts)
	}
}

func TestClassifyConfidenceOutOfRange(t *testing.T) {
	inv := &stubInvoker{text: `{"ticker": "SBUX", "confidence": 1.7}`}
	client := newClientWithInvoker(inv, &memoryAttempts{}, testConfig())

	_, err := client.Classify(context.Background(), &model.Mapping{ID: 5, MerchantName: "STARBUCKS"}, "")

	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != KindMalformed {
		t.Fatalf("expected malformed_response for out-of-range confidence, got %v", err)
	}
}

func TestClassifyUpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"rate limited", errors.New("request failed: 429 Too Many Requests"), KindRateLimit},
		{"overloaded", errors.New("api error: overloaded_error"), KindRateLimit},
		{"timeout", context.DeadlineExceeded, KindTimeout},
		{"other upstream fault", errors.New("connection reset by peer"), KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := &memoryAttempts{}
			client := newClientWithInvoker(&stubInvoker{err: tt.err}, attempts, testConfig())

			_, err := client.Classify(context.Background(), &model.Mapping{ID: 6, MerchantName: "NETFLIX.COM"}, "")

			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if cerr.Kind != tt.wantKind {
				t.Fatalf("kind = %q, want %q", cerr.Kind, tt.wantKind)
			}
			if !cerr.Retryable {
				t.Fatalf("expected %s to be retryable", tt.wantKind)
			}
			if len(attempts.attempts) != 1 || !attempts.attempts[0].IsError {
				t.Fatalf("expected 1 error attempt, got %+v", attempts.attempts)
			}
		})
	}
}

func TestClassifyIncludesContextHint(t *testing.T) {
	inv := &stubInvoker{text: `{"ticker": "AMZN", "company_name": "Amazon.com Inc", "category": "Shopping", "confidence": 0.88}`}
	client := newClientWithInvoker(inv, &memoryAttempts{}, testConfig())

	_, err := client.Classify(context.Background(), &model.Mapping{ID: 8, MerchantName: "AMZN MKTP US"}, "online marketplace order")
	if err != nil {
		t.Fatalf("unexpected classify error: %v", err)
	}

	if len(inv.prompts) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(inv.prompts))
	}
	prompt := inv.prompts[0]
	if !strings.Contains(prompt, "AMZN MKTP US") || !strings.Contains(prompt, "online marketplace order") {
		t.Fatalf("prompt missing merchant or hint:\n%s", prompt)
	}
}

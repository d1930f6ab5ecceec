package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"investpipeline/src/model"
)

// Result is a single merchant classification. Ticker is empty when the
// classifier found no confident public-company match.
type Result struct {
	Ticker       string
	CompanyName  string
	Category     string
	Confidence   float64
	ModelVersion string
	LatencyMs    int64
}

// attemptWriter durably records classification attempts.
type attemptWriter interface {
	Create(ctx context.Context, attempt *model.ClassificationAttempt) error
}

// invoker abstracts the model call so tests can stub the API.
type invoker interface {
	Invoke(ctx context.Context, prompt string) (text string, inputTokens, outputTokens int64, err error)
}

type anthropicInvoker struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func (a *anthropicInvoker) Invoke(ctx context.Context, prompt string) (string, int64, int64, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", 0, 0, err
	}

	if len(message.Content) == 0 {
		return "", 0, 0, errors.New("empty response from model")
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	return responseText, message.Usage.InputTokens, message.Usage.OutputTokens, nil
}

// Client wraps the external text-classification service. Every call,
// success or failure, is logged as a ClassificationAttempt before the
// result is returned, so no classification is ever lost.
type Client struct {
	invoke   invoker
	attempts attemptWriter
	config   Config
}

// NewClient builds a classifier client from the environment config.
func NewClient(attempts attemptWriter) *Client {
	config := GetConfig()

	logger.WithFields(map[string]interface{}{
		"component": "ClassifierClient",
		"model":     config.Model,
		"timeout":   config.Timeout,
	}).Info("Creating classifier client")

	return &Client{
		invoke: &anthropicInvoker{
			client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
			model:     config.Model,
			maxTokens: config.MaxTokens,
		},
		attempts: attempts,
		config:   config,
	}
}

// newClientWithInvoker is the test seam.
func newClientWithInvoker(inv invoker, attempts attemptWriter, config Config) *Client {
	return &Client{invoke: inv, attempts: attempts, config: config}
}

type parsedResponse struct {
	Ticker      string  `json:"ticker"`
	CompanyName string  `json:"company_name"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
}

// Classify resolves a merchant string to a ticker candidate. The caller
// is responsible for stripping register/terminal noise from the
// merchant string; this component takes it as-is.
func (c *Client) Classify(
	ctx context.Context,
	mapping *model.Mapping,
	contextHint string,
) (*Result, error) {

	merchant := strings.TrimSpace(mapping.MerchantName)
	if merchant == "" {
		return nil, &Error{Kind: KindInvalidInput, Retryable: false, Err: errors.New("empty merchant name")}
	}

	prompt := buildPrompt(merchant, contextHint)

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	text, inputTokens, outputTokens, err := c.invoke.Invoke(callCtx, prompt)
	latency := time.Since(start).Milliseconds()

	attempt := &model.ClassificationAttempt{
		MappingID:    mapping.ID,
		Prompt:       prompt,
		RawResponse:  text,
		ModelVersion: c.config.Model,
		LatencyMs:    latency,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      c.callCost(inputTokens, outputTokens),
	}

	if err != nil {
		cerr := c.translateError(callCtx, err)
		attempt.IsError = true
		attempt.ErrorMessage = cerr.Error()
		c.logAttempt(ctx, attempt)

		logger.WithFields(map[string]interface{}{
			"component":  "ClassifierClient",
			"mapping_id": mapping.ID,
			"merchant":   merchant,
			"kind":       cerr.Kind,
			"retryable":  cerr.Retryable,
		}).WithError(err).Warn("Classification call failed")

		return nil, cerr
	}

	parsed, perr := parseResponse(text)
	if perr != nil {
		attempt.IsError = true
		attempt.ErrorMessage = perr.Error()
		c.logAttempt(ctx, attempt)

		return nil, &Error{Kind: KindMalformed, Retryable: false, Err: perr}
	}

	attempt.Ticker = parsed.Ticker
	attempt.CompanyName = parsed.CompanyName
	attempt.Category = parsed.Category
	attempt.Confidence = parsed.Confidence
	c.logAttempt(ctx, attempt)

	logger.WithFields(map[string]interface{}{
		"component":  "ClassifierClient",
		"mapping_id": mapping.ID,
		"merchant":   merchant,
		"ticker":     parsed.Ticker,
		"confidence": parsed.Confidence,
		"latency_ms": latency,
	}).Info("Merchant classified")

	return &Result{
		Ticker:       parsed.Ticker,
		CompanyName:  parsed.CompanyName,
		Category:     parsed.Category,
		Confidence:   parsed.Confidence,
		ModelVersion: c.config.Model,
		LatencyMs:    latency,
	}, nil
}

func (c *Client) translateError(callCtx context.Context, err error) *Error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Retryable: true, Err: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "overloaded") {
		return &Error{Kind: KindRateLimit, Retryable: true, Err: err}
	}

	return &Error{Kind: KindUpstream, Retryable: true, Err: err}
}

// logAttempt persists the attempt on a fresh context so a cancelled
// caller cannot lose the audit row.
func (c *Client) logAttempt(ctx context.Context, attempt *model.ClassificationAttempt) {
	writeCtx := context.WithoutCancel(ctx)
	if err := c.attempts.Create(writeCtx, attempt); err != nil {
		logger.WithFields(map[string]interface{}{
			"component":  "ClassifierClient",
			"mapping_id": attempt.MappingID,
		}).WithError(err).Error("Failed to persist classification attempt")
	}
}

func (c *Client) callCost(inputTokens, outputTokens int64) decimal.Decimal {
	perMTok := decimal.NewFromInt(1_000_000)
	in := decimal.NewFromInt(inputTokens).Mul(decimal.NewFromFloat(c.config.InputCostPerMTok)).Div(perMTok)
	out := decimal.NewFromInt(outputTokens).Mul(decimal.NewFromFloat(c.config.OutputCostPerMTok)).Div(perMTok)
	return in.Add(out).Round(6)
}

// parseResponse extracts the JSON object from the model output. The
// model might wrap JSON in markdown code blocks, so we cut from the
// first "{" to the last "}".
func parseResponse(text string) (*parsedResponse, error) {
	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd < jsonStart {
		return nil, fmt.Errorf("no JSON found in response: %s", text)
	}

	var parsed parsedResponse
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return nil, fmt.Errorf("confidence %f out of range [0,1]", parsed.Confidence)
	}

	parsed.Ticker = strings.ToUpper(strings.TrimSpace(parsed.Ticker))
	return &parsed, nil
}

func buildPrompt(merchant, contextHint string) string {
	var b strings.Builder
	b.WriteString(`You are a financial data assistant. Given the raw merchant name from a bank-card transaction, identify the publicly traded company behind it, if any.

**Rules:**
- "ticker" is the primary US exchange symbol of the parent public company, or "" if the merchant is private, a franchise of unknown ownership, or unidentifiable
- "company_name" is the legal name of that company, or "" when ticker is ""
- "category" is a short spending category label (e.g. "Coffee Shops", "Groceries", "Streaming"); it may be "" if unclear
- "confidence" is your certainty in the merchant-to-ticker match, between 0 and 1

**Output Format:**
Return ONLY a JSON object:

{"ticker": "SBUX", "company_name": "Starbucks Corporation", "category": "Coffee Shops", "confidence": 0.97}

**Merchant:** `)
	b.WriteString(merchant)
	if contextHint != "" {
		b.WriteString("\n**Additional context:** ")
		b.WriteString(contextHint)
	}
	b.WriteString("\n\n**Now return the JSON object:**")
	return b.String()
}

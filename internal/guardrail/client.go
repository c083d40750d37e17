package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	errx "github.com/receiptqa/server/internal/core/error"
	logx "github.com/receiptqa/server/pkg/logger"
)

const DefaultTimeout = 20 * time.Second

// ValidateRequest is the body of POST /validate.
type ValidateRequest struct {
	Guard  string `json:"guard"`
	Prompt string `json:"prompt"`
}

// ValidateResponse is returned on success.
type ValidateResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is returned on any failure.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Client validates payloads against a remote guardrail service.
type Client struct {
	http     *resty.Client
	url      string
	policies map[string]bool
}

// NewClient builds a client for the service's validate URL. The service is
// expected to hold the sql and toxic policies unless others are listed.
func NewClient(url string, timeout time.Duration, policies ...string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if len(policies) == 0 {
		policies = []string{PolicySQL, PolicyToxic}
	}
	known := make(map[string]bool, len(policies))
	for _, p := range policies {
		known[p] = true
	}
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Content-Type", "application/json"),
		url:      url,
		policies: known,
	}
}

func (c *Client) IsKnown(policy string) bool {
	return c.policies[policy]
}

func (c *Client) Validate(ctx context.Context, policy, payload string) error {
	logx.Debug().Str("policy", policy).Str("url", c.url).Msg("Validating with guardrail service")

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ValidateRequest{Guard: policy, Prompt: payload}).
		Post(c.url)
	if err != nil {
		return errx.WrapUpstream("guardrails", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusForbidden:
		return &ValidationError{Policy: policy, Detail: detailOf(resp.Body())}
	case http.StatusNotFound:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	default:
		return errx.UpstreamStatus("guardrails", resp.StatusCode(), detailOf(resp.Body()))
	}
}

func detailOf(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return string(body)
}

var _ Validator = (*Client)(nil)

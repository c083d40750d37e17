package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/receiptqa/server/internal/agent/model"
	errx "github.com/receiptqa/server/internal/core/error"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultTopK    = 5
)

type Config struct {
	URL        string
	Timeout    time.Duration
	TopK       int
	FetchPages bool
}

// Client calls the web search collaborator. It never retries.
type Client struct {
	http *resty.Client
	cfg  Config
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Client{
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetHeader("Content-Type", "application/json"),
		cfg: cfg,
	}
}

func (c *Client) Search(ctx context.Context, question string) (*model.WebSearchResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(model.WebSearchRequest{
			Question:   question,
			TopK:       c.cfg.TopK,
			FetchPages: c.cfg.FetchPages,
		}).
		Post(c.cfg.URL)
	if err != nil {
		return nil, errx.WrapUpstream("web-search", err)
	}
	if resp.IsError() {
		return nil, errx.UpstreamStatus("web-search", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	var out model.WebSearchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode web search response: %w", err)
	}
	return &out, nil
}

// Render formats a search response as the text handed back to the model.
func Render(r *model.WebSearchResponse) string {
	var b strings.Builder
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		summary = "(no summary available)"
	}
	b.WriteString("Summary: ")
	b.WriteString(summary)
	b.WriteString("\nSources:")
	if len(r.Sources) == 0 {
		b.WriteString(" none")
	}
	for _, s := range r.Sources {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = "untitled"
		}
		b.WriteString("\n- ")
		b.WriteString(title)
		if s.URL != "" {
			b.WriteString(" (")
			b.WriteString(s.URL)
			b.WriteString(")")
		}
	}
	return b.String()
}

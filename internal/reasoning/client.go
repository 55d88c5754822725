// Package reasoning calls an external inference service for an optional
// second opinion on a symbol's signal context.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"finagent/models"
)

// Client speaks the inference service's JSON protocol: it posts the
// symbol, goal and indicator snapshot and receives a short text insight
// with a confidence in [0,1].
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// Options configures the client.
type Options struct {
	URL     string
	Timeout time.Duration
}

// New creates a client for the inference service at opts.URL.
func New(opts Options) *Client {
	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(opts.URL, "/"))
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	return &Client{
		http:   httpClient,
		logger: log.With().Str("component", "reasoning").Logger(),
	}
}

type insightResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Infer posts the signal context and returns the service's insight.
// Every transport or protocol failure is an error; the analysis engine
// treats it as "no insight" and stays rule-based.
func (c *Client) Infer(ctx context.Context, req models.InsightRequest) (*models.Insight, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/v1/insight")
	if err != nil {
		return nil, fmt.Errorf("reasoning request for %s: %w", req.Symbol, err)
	}
	if resp.StatusCode() != 200 {
		c.logger.Warn().Str("symbol", req.Symbol).Int("status", resp.StatusCode()).Msg("reasoning service error")
		return nil, fmt.Errorf("reasoning service returned %d for %s", resp.StatusCode(), req.Symbol)
	}

	var out insightResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("parsing insight for %s: %w", req.Symbol, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("insight confidence %v for %s out of range", out.Confidence, req.Symbol)
	}
	return &models.Insight{Text: out.Text, Confidence: out.Confidence}, nil
}

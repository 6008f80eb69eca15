package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/local-mcps/crawl4ai-mcp/config"
)

// RemoteEngine crawls through a crawl4ai HTTP service.
type RemoteEngine struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRemoteEngine returns an engine backed by the crawl4ai service at
// cfg.BaseURL.
func NewRemoteEngine(cfg config.Crawl4AIConfig, logger *zap.Logger) *RemoteEngine {
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &RemoteEngine{
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name implements Engine.
func (e *RemoteEngine) Name() string { return "crawl4ai" }

// Close implements Engine. The client holds no connection state worth
// tearing down.
func (e *RemoteEngine) Close(ctx context.Context) error { return nil }

// crawlRequest is the crawl4ai /crawl request body.
type crawlRequest struct {
	URLs                    []string        `json:"urls"`
	WordCountThreshold      int             `json:"word_count_threshold,omitempty"`
	ExcludedTags            []string        `json:"excluded_tags,omitempty"`
	ExcludeExternalLinks    bool            `json:"exclude_external_links,omitempty"`
	ExcludeSocialMediaLinks bool            `json:"exclude_social_media_links,omitempty"`
	ProcessIframes          bool            `json:"process_iframes,omitempty"`
	RemoveOverlay           bool            `json:"remove_overlay_elements,omitempty"`
	Screenshot              bool            `json:"screenshot,omitempty"`
	PDF                     bool            `json:"pdf,omitempty"`
	JSCode                  []string        `json:"js_code,omitempty"`
	WaitFor                 string          `json:"wait_for,omitempty"`
	CSSSelector             string          `json:"css_selector,omitempty"`
	SessionID               string          `json:"session_id,omitempty"`
	PageTimeout             int             `json:"page_timeout,omitempty"`
	CacheMode               string          `json:"cache_mode,omitempty"`
	ExtractionStrategy      *strategyConfig `json:"extraction_strategy,omitempty"`
	ContentFilter           *strategyConfig `json:"content_filter,omitempty"`
}

// strategyConfig carries a typed strategy with its constructor params.
type strategyConfig struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// crawlResponse is the crawl4ai /crawl response body.
type crawlResponse struct {
	Success bool           `json:"success"`
	Results []*CrawlResult `json:"results"`
	Detail  string         `json:"detail,omitempty"`
}

// Run implements Engine.
func (e *RemoteEngine) Run(ctx context.Context, url string, cfg *RunConfig) (*CrawlResult, error) {
	if cfg == nil {
		cfg = &RunConfig{}
	}
	requestID := uuid.NewString()
	log := e.logger.With(zap.String("request_id", requestID), zap.String("url", url))

	body, err := json.Marshal(buildCrawlRequest(url, cfg))
	if err != nil {
		return nil, fmt.Errorf("marshal crawl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/crawl", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create crawl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiToken)
	}

	start := time.Now()
	log.Debug("crawl request dispatched")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call crawl service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("crawl service returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var crawlResp crawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&crawlResp); err != nil {
		return nil, fmt.Errorf("decode crawl response: %w", err)
	}
	if !crawlResp.Success || len(crawlResp.Results) == 0 {
		if crawlResp.Detail != "" {
			return nil, fmt.Errorf("crawl service rejected request: %s", crawlResp.Detail)
		}
		return nil, fmt.Errorf("crawl service returned no results")
	}

	result := crawlResp.Results[0]
	if result.URL == "" {
		result.URL = url
	}
	log.Debug("crawl request finished",
		zap.Bool("page_success", result.Success),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// RunMany implements Engine via the shared dispatcher-driven helper.
func (e *RemoteEngine) RunMany(ctx context.Context, urls []string, cfg *RunConfig, d *Dispatcher) ([]*CrawlResult, error) {
	return runMany(ctx, e, urls, cfg, d)
}

// HealthCheck verifies the crawl service answers on /health.
func (e *RemoteEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	if e.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiToken)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crawl service health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("crawl service health check: status %d", resp.StatusCode)
	}
	return nil
}

func buildCrawlRequest(url string, cfg *RunConfig) *crawlRequest {
	req := &crawlRequest{
		URLs:                    []string{url},
		WordCountThreshold:      cfg.WordCountThreshold,
		ExcludedTags:            cfg.ExcludedTags,
		ExcludeExternalLinks:    cfg.ExcludeExternalLinks,
		ExcludeSocialMediaLinks: cfg.ExcludeSocialMediaLinks,
		ProcessIframes:          cfg.ProcessIframes,
		RemoveOverlay:           cfg.RemoveOverlays,
		Screenshot:              cfg.Screenshot,
		PDF:                     cfg.PDF,
		JSCode:                  cfg.JSCode,
		WaitFor:                 cfg.WaitFor,
		CSSSelector:             cfg.CSSSelector,
		SessionID:               cfg.SessionID,
		CacheMode:               "enabled",
	}
	if cfg.BypassCache {
		req.CacheMode = "bypass"
	}
	if cfg.PageTimeout > 0 {
		req.PageTimeout = int(cfg.PageTimeout / time.Millisecond)
	}

	// Login runs in-page on the service side; prepend it so page state
	// is authenticated before any caller-supplied scripts run.
	if cfg.Login != nil {
		req.JSCode = append([]string{cfg.Login.Render(url)}, req.JSCode...)
	}

	if ex := cfg.Extraction; ex != nil {
		switch ex.Type {
		case ExtractionJSONCSS:
			req.ExtractionStrategy = &strategyConfig{
				Type: ExtractionJSONCSS,
				Params: map[string]interface{}{
					"schema":   ex.Schema,
					"multiple": ex.Multiple,
				},
			}
		case ExtractionLLM:
			req.ExtractionStrategy = &strategyConfig{
				Type: ExtractionLLM,
				Params: map[string]interface{}{
					"provider":    "openai",
					"model":       ex.Model,
					"instruction": ex.Instruction,
					"schema":      ex.Schema,
					"temperature": ex.Temperature,
					"api_token":   ex.APIKey,
				},
			}
		}
	}

	if f := cfg.Filter; f != nil {
		switch f.Type {
		case FilterBM25:
			req.ContentFilter = &strategyConfig{
				Type: FilterBM25,
				Params: map[string]interface{}{
					"user_query":     f.Query,
					"bm25_threshold": f.Threshold,
				},
			}
		case FilterPruning:
			req.ContentFilter = &strategyConfig{
				Type: FilterPruning,
				Params: map[string]interface{}{
					"min_word_threshold": f.MinWordThreshold,
				},
			}
		case FilterLLM:
			req.ContentFilter = &strategyConfig{
				Type: FilterLLM,
				Params: map[string]interface{}{
					"provider":         "openai",
					"model":            f.Model,
					"relevance_prompt": f.Query,
					"api_token":        f.APIKey,
				},
			}
		}
	}
	return req
}

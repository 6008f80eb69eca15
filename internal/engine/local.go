package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/local-mcps/crawl4ai-mcp/config"
)

// LocalEngine drives a headless Chrome through chromedp. One browser
// process serves the whole engine; each Run gets its own tab.
type LocalEngine struct {
	pageTimeout time.Duration
	llm         *llmClient
	logger      *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewLocalEngine launches the browser allocator. The browser itself
// starts on the first tab.
func NewLocalEngine(cfg config.ChromedpConfig, llmCfg config.LLMConfig, logger *zap.Logger) (*LocalEngine, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	timeout := 60 * time.Second
	if cfg.PageTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.PageTimeoutSeconds) * time.Second
	}

	return &LocalEngine{
		pageTimeout:   timeout,
		llm:           newLLMClient(llmCfg.APIKey, llmCfg.BaseURL),
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Name implements Engine.
func (e *LocalEngine) Name() string { return "chromedp" }

// Close implements Engine, shutting the browser down.
func (e *LocalEngine) Close(ctx context.Context) error {
	e.browserCancel()
	e.allocCancel()
	return nil
}

// RunMany implements Engine via the shared dispatcher-driven helper.
func (e *LocalEngine) RunMany(ctx context.Context, urls []string, cfg *RunConfig, d *Dispatcher) ([]*CrawlResult, error) {
	return runMany(ctx, e, urls, cfg, d)
}

// Run implements Engine. Page-level failures (navigation errors,
// timeouts, script errors) come back as CrawlResult{Success: false},
// matching the remote engine's result shape.
func (e *LocalEngine) Run(ctx context.Context, pageURL string, cfg *RunConfig) (*CrawlResult, error) {
	if cfg == nil {
		cfg = &RunConfig{}
	}

	timeout := cfg.PageTimeout
	if timeout <= 0 {
		timeout = e.pageTimeout
	}

	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// The tab context descends from the browser, not the caller;
	// propagate caller cancellation by hand.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-stop:
		}
	}()

	failed := func(err error) (*CrawlResult, error) {
		e.logger.Debug("crawl failed", zap.String("url", pageURL), zap.Error(err))
		return &CrawlResult{URL: pageURL, ErrorMessage: err.Error()}, nil
	}

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return failed(fmt.Errorf("navigation failed: %w", err))
	}

	if cfg.WaitFor != "" {
		if err := e.waitFor(tabCtx, cfg.WaitFor); err != nil {
			return failed(fmt.Errorf("wait_for %q: %w", cfg.WaitFor, err))
		}
	}

	if cfg.Login != nil {
		if err := e.performLogin(tabCtx, pageURL, cfg.Login); err != nil {
			return failed(fmt.Errorf("login failed: %w", err))
		}
	}

	for _, script := range cfg.JSCode {
		if err := evaluateAwait(tabCtx, script, nil); err != nil {
			return failed(fmt.Errorf("script execution failed: %w", err))
		}
	}

	if cfg.RemoveOverlays {
		// Overlay cleanup is cosmetic; a failing page script must not
		// sink the crawl.
		if err := evaluateAwait(tabCtx, overlayRemovalJS, nil); err != nil {
			e.logger.Debug("overlay removal failed", zap.String("url", pageURL), zap.Error(err))
		}
	}

	var pageHTML, pageTitle, location string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&location),
		chromedp.Title(&pageTitle),
		chromedp.OuterHTML("html", &pageHTML),
	); err != nil {
		return failed(fmt.Errorf("content capture failed: %w", err))
	}

	result := &CrawlResult{URL: pageURL, Success: true, HTML: pageHTML}

	if cfg.Screenshot {
		var buf []byte
		if err := chromedp.Run(tabCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
			e.logger.Warn("screenshot failed", zap.String("url", pageURL), zap.Error(err))
		} else {
			result.Screenshot = base64.StdEncoding.EncodeToString(buf)
		}
	}

	if cfg.PDF {
		var buf []byte
		err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = cdppage.PrintToPDF().WithPrintBackground(true).Do(ctx)
			return err
		}))
		if err != nil {
			e.logger.Warn("pdf capture failed", zap.String("url", pageURL), zap.Error(err))
		} else {
			result.PDF = base64.StdEncoding.EncodeToString(buf)
		}
	}

	base, _ := url.Parse(location)
	if base == nil {
		base, _ = url.Parse(pageURL)
	}

	contentHTML := pageHTML
	if cfg.CSSSelector != "" {
		scoped, err := scopeHTML(pageHTML, cfg.CSSSelector)
		if err != nil {
			return failed(fmt.Errorf("css selector %q: %w", cfg.CSSSelector, err))
		}
		contentHTML = scoped
	}

	proc, err := processHTML(contentHTML, pageOptions{
		BaseURL:                 base,
		WordCountThreshold:      cfg.WordCountThreshold,
		ExcludedTags:            cfg.ExcludedTags,
		ExcludeExternalLinks:    cfg.ExcludeExternalLinks,
		ExcludeSocialMediaLinks: cfg.ExcludeSocialMediaLinks,
	})
	if err != nil {
		return failed(fmt.Errorf("html processing failed: %w", err))
	}

	result.CleanedHTML = proc.CleanedHTML
	result.Markdown = &Markdown{RawMarkdown: proc.Markdown}
	result.Media = proc.Media
	result.Links = proc.Links
	result.Metadata = proc.Metadata

	// Scoped content rarely carries <head>; recover metadata from the
	// full document.
	if cfg.CSSSelector != "" {
		if root, err := html.Parse(strings.NewReader(pageHTML)); err == nil {
			result.Metadata = extractMetadata(root)
		}
	}
	if pageTitle != "" {
		result.Metadata.Title = pageTitle
	}

	if ex := cfg.Extraction; ex != nil {
		switch ex.Type {
		case ExtractionJSONCSS:
			js, err := buildCSSExtractionJS(ex.Schema, ex.Multiple)
			if err != nil {
				return failed(err)
			}
			var extracted string
			if err := chromedp.Run(tabCtx, chromedp.Evaluate(js, &extracted)); err != nil {
				return failed(fmt.Errorf("css extraction failed: %w", err))
			}
			result.ExtractedContent = extracted
		case ExtractionLLM:
			extracted, err := e.llm.Extract(ctx, proc.Markdown, ex)
			if err != nil {
				return failed(fmt.Errorf("llm extraction failed: %w", err))
			}
			result.ExtractedContent = extracted
		}
	}

	if cfg.Filter != nil {
		if err := applyFilter(ctx, result, cfg.Filter, e.llm); err != nil {
			return failed(fmt.Errorf("content filter failed: %w", err))
		}
	}

	return result, nil
}

// waitFor blocks until a CSS selector is visible, or until a "js:"
// expression evaluates truthy.
func (e *LocalEngine) waitFor(ctx context.Context, cond string) error {
	if expr, ok := strings.CutPrefix(cond, "js:"); ok {
		return chromedp.Run(ctx, chromedp.Poll(strings.TrimSpace(expr), nil))
	}
	return chromedp.Run(ctx, chromedp.WaitVisible(cond, chromedp.ByQuery))
}

// performLogin interprets a LoginScript: reach the form, probe for
// visible fields, fill and submit, then settle on the target page.
func (e *LocalEngine) performLogin(ctx context.Context, targetURL string, script *LoginScript) error {
	sc := script.withDefaults()

	loginURL := sc.LoginURL
	if loginURL == "" {
		loginURL = targetURL
	}

	var currentURL string
	if err := chromedp.Run(ctx, chromedp.Location(&currentURL)); err != nil {
		return err
	}
	if currentURL != loginURL && !strings.Contains(currentURL, "login") {
		if err := chromedp.Run(ctx,
			chromedp.Navigate(loginURL),
			chromedp.WaitReady("body"),
		); err != nil {
			return fmt.Errorf("navigate to login page: %w", err)
		}
	}

	var userSel string
	if err := chromedp.Run(ctx, chromedp.Evaluate(probeVisibleJS(sc.UsernameSelectors), &userSel)); err != nil {
		return fmt.Errorf("probe username field: %w", err)
	}
	if userSel != "" {
		if err := chromedp.Run(ctx, chromedp.Evaluate(fillFieldJS(userSel, sc.Username), nil)); err != nil {
			return fmt.Errorf("fill username: %w", err)
		}
	}

	var passSel string
	if err := chromedp.Run(ctx, chromedp.Evaluate(probeVisibleJS(sc.PasswordSelectors), &passSel)); err != nil {
		return fmt.Errorf("probe password field: %w", err)
	}
	if passSel != "" {
		if err := chromedp.Run(ctx,
			chromedp.Sleep(500*time.Millisecond),
			chromedp.Evaluate(fillFieldJS(passSel, sc.Password), nil),
		); err != nil {
			return fmt.Errorf("fill password: %w", err)
		}
	}

	if err := chromedp.Run(ctx, chromedp.Sleep(500*time.Millisecond)); err != nil {
		return err
	}

	var submitSel string
	if err := chromedp.Run(ctx, chromedp.Evaluate(probeVisibleJS(sc.SubmitSelectors), &submitSel)); err != nil {
		return fmt.Errorf("probe submit button: %w", err)
	}

	submitted := false
	if submitSel != "" {
		if err := chromedp.Run(ctx, chromedp.Click(submitSel, chromedp.ByQuery)); err == nil {
			submitted = true
		}
	}
	if !submitted && passSel != "" {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(submitFormJS(passSel), &ok)); err != nil {
			return fmt.Errorf("submit form: %w", err)
		}
	}

	if err := chromedp.Run(ctx, chromedp.Sleep(time.Duration(sc.WaitAfterMS)*time.Millisecond)); err != nil {
		return err
	}

	if sc.NavigateToTarget {
		var cur string
		if err := chromedp.Run(ctx, chromedp.Location(&cur)); err != nil {
			return err
		}
		if cur != targetURL && !strings.Contains(cur, targetURL) {
			return chromedp.Run(ctx,
				chromedp.Navigate(targetURL),
				chromedp.WaitReady("body"),
			)
		}
	}
	return nil
}

// evaluateAwait evaluates script in the page, awaiting any returned
// promise. Pass a nil res to run for side effects only.
func evaluateAwait(ctx context.Context, script string, res interface{}) error {
	return chromedp.Run(ctx, chromedp.Evaluate(script, res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
}

package crawler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/local-mcps/crawl4ai-mcp/internal/engine"
	"github.com/local-mcps/crawl4ai-mcp/internal/traversal"
	"github.com/local-mcps/crawl4ai-mcp/pkg/mcp"
)

func (s *Server) crawlURLTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "crawl_url",
		Description: "Crawl a URL and return its content as markdown, with optional screenshot, PDF and form-based login",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":                        mcp.StringProperty("The URL to crawl"),
			"wait_for":                   mcp.StringProperty("CSS selector to wait for before extracting content"),
			"screenshot":                 mcp.BoolProperty("Capture a screenshot of the page"),
			"pdf":                        mcp.BoolProperty("Generate a PDF of the page"),
			"remove_overlay":             mcp.BoolProperty("Remove popups and overlays before extraction (default true)"),
			"bypass_cache":               mcp.BoolProperty("Skip the crawler cache and fetch fresh content"),
			"word_count_threshold":       mcp.IntProperty("Minimum words per content block (default 10)"),
			"exclude_external_links":     mcp.BoolProperty("Drop links pointing off-site"),
			"exclude_social_media_links": mcp.BoolProperty("Drop links to social media platforms (default true)"),
			"username":                   mcp.StringProperty("Username for form-based login"),
			"password":                   mcp.StringProperty("Password for form-based login"),
			"login_url":                  mcp.StringProperty("Login page URL, when it differs from the target URL"),
			"username_selector":          mcp.StringProperty("Comma-separated CSS selectors for the username field"),
			"password_selector":          mcp.StringProperty("Comma-separated CSS selectors for the password field"),
			"submit_selector":            mcp.StringProperty("Comma-separated CSS selectors for the submit button"),
		}, []string{"url"}),
		Handler: s.handleCrawlURL,
	}
}

func (s *Server) handleCrawlURL(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	waitFor, _ := mcp.GetStringParam(params, "wait_for", false)
	screenshot, _ := mcp.GetBoolParam(params, "screenshot", false)
	pdf, _ := mcp.GetBoolParam(params, "pdf", false)
	removeOverlay, _ := mcp.GetBoolParam(params, "remove_overlay", true)
	bypassCache, _ := mcp.GetBoolParam(params, "bypass_cache", false)
	wordCount, _ := mcp.GetIntParam(params, "word_count_threshold", false, 10)
	excludeExternal, _ := mcp.GetBoolParam(params, "exclude_external_links", false)
	excludeSocial, _ := mcp.GetBoolParam(params, "exclude_social_media_links", true)

	cfg := &engine.RunConfig{
		WaitFor:                 waitFor,
		Screenshot:              screenshot,
		PDF:                     pdf,
		RemoveOverlays:          removeOverlay,
		BypassCache:             bypassCache,
		WordCountThreshold:      wordCount,
		ExcludeExternalLinks:    excludeExternal,
		ExcludeSocialMediaLinks: excludeSocial,
	}

	username, _ := mcp.GetStringParam(params, "username", false)
	password, _ := mcp.GetStringParam(params, "password", false)
	if username != "" && password != "" {
		loginURL, _ := mcp.GetStringParam(params, "login_url", false)
		usernameSel, _ := mcp.GetStringParam(params, "username_selector", false)
		passwordSel, _ := mcp.GetStringParam(params, "password_selector", false)
		submitSel, _ := mcp.GetStringParam(params, "submit_selector", false)
		cfg.Login = &engine.LoginScript{
			LoginURL:          loginURL,
			Username:          username,
			Password:          password,
			UsernameSelectors: splitSelectors(usernameSel),
			PasswordSelectors: splitSelectors(passwordSel),
			SubmitSelectors:   splitSelectors(submitSel),
		}
	}

	res, err := s.runCrawl(ctx, rawURL, cfg)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return errorEnvelope(failureMessage(res, "Crawl failed"))
	}

	id, err := s.store.Put(rawURL, res)
	if err != nil {
		return errorEnvelope(err.Error())
	}

	markdown := res.RawMarkdown()
	fields := map[string]interface{}{
		"content_id":      id,
		"url":             rawURL,
		"title":           res.Title(),
		"markdown":        truncate(markdown, 1000),
		"html_length":     len(res.HTML),
		"markdown_length": len(markdown),
		"media":           res.Media,
		"links": map[string]interface{}{
			"internal": len(res.Links.Internal),
			"external": len(res.Links.External),
		},
		"metadata": res.Metadata,
	}
	if screenshot && res.Screenshot != "" {
		fields["screenshot_available"] = true
	}
	if pdf && res.PDF != "" {
		fields["pdf_available"] = true
	}
	return successEnvelope(fields)
}

func (s *Server) crawlWithAuthTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "crawl_with_auth",
		Description: "Crawl a page behind a login form, verifying the login with a screenshot",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":              mcp.StringProperty("The URL to crawl after logging in"),
			"username":         mcp.StringProperty("Username or email for the login form"),
			"password":         mcp.StringProperty("Password for the login form"),
			"login_url":        mcp.StringProperty("Login page URL, when it differs from the target URL"),
			"wait_after_login": mcp.IntProperty("Milliseconds to wait after submitting the form (default 5000)"),
			"content_selector": mcp.StringProperty("CSS selector scoping the content to extract"),
		}, []string{"url", "username", "password"}),
		Handler: s.handleCrawlWithAuth,
	}
}

func (s *Server) handleCrawlWithAuth(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	username, err := mcp.GetStringParam(params, "username", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	password, err := mcp.GetStringParam(params, "password", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	loginURL, _ := mcp.GetStringParam(params, "login_url", false)
	waitAfter, _ := mcp.GetIntParam(params, "wait_after_login", false, 5000)
	contentSelector, _ := mcp.GetStringParam(params, "content_selector", false)

	cfg := &engine.RunConfig{
		BypassCache: true,
		Screenshot:  true,
		SessionID:   uuid.NewString(),
		CSSSelector: contentSelector,
		Login: &engine.LoginScript{
			LoginURL:         loginURL,
			Username:         username,
			Password:         password,
			WaitAfterMS:      waitAfter,
			NavigateToTarget: true,
		},
	}

	res, err := s.runCrawl(ctx, rawURL, cfg)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return mcp.JSONResult(map[string]interface{}{
			"success": false,
			"error":   failureMessage(res, "Authentication crawl failed"),
			"tip":     "Check login credentials and selectors",
		})
	}

	id, err := s.store.Put(rawURL, res)
	if err != nil {
		return errorEnvelope(err.Error())
	}

	return successEnvelope(map[string]interface{}{
		"url":              rawURL,
		"authenticated":    true,
		"content_id":       id,
		"title":            res.Title(),
		"content_length":   len(res.RawMarkdown()),
		"screenshot_taken": res.Screenshot != "",
		"message":          "Successfully crawled with authentication",
	})
}

func (s *Server) batchCrawlTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "batch_crawl",
		Description: "Crawl multiple URLs in parallel with bounded concurrency",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"urls":                 mcp.ArrayProperty("string", "The URLs to crawl"),
			"max_concurrent":       mcp.IntProperty("Maximum concurrent crawls (default 5)"),
			"bypass_cache":         mcp.BoolProperty("Skip the crawler cache and fetch fresh content"),
			"word_count_threshold": mcp.IntProperty("Minimum words per content block (default 10)"),
		}, []string{"urls"}),
		Handler: s.handleBatchCrawl,
	}
}

func (s *Server) handleBatchCrawl(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	urls, err := mcp.GetStringArrayParam(params, "urls", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	maxConcurrent, _ := mcp.GetIntParam(params, "max_concurrent", false, s.config.Crawler.MaxConcurrent)
	bypassCache, _ := mcp.GetBoolParam(params, "bypass_cache", false)
	wordCount, _ := mcp.GetIntParam(params, "word_count_threshold", false, 10)

	cfg := &engine.RunConfig{
		BypassCache:        bypassCache,
		WordCountThreshold: wordCount,
	}

	// Invalid URLs become failed rows without ever reaching the engine.
	rows := make([]map[string]interface{}, len(urls))
	valid := make([]string, 0, len(urls))
	validIdx := make([]int, 0, len(urls))
	for i, u := range urls {
		if _, verr := s.validator.ValidateURL(u); verr != nil {
			rows[i] = map[string]interface{}{"url": u, "success": false, "error": verr.Error()}
			continue
		}
		valid = append(valid, u)
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		eng, err := s.handle.Acquire(ctx)
		if err != nil {
			return errorEnvelope(err.Error())
		}
		dispatcher := engine.NewDispatcher(
			maxConcurrent,
			s.config.Crawler.MemoryThresholdPercent,
			s.memoryCheckInterval(),
		)
		results, err := eng.RunMany(ctx, valid, cfg, dispatcher)
		if err != nil {
			return errorEnvelope(err.Error())
		}
		for j, res := range results {
			i := validIdx[j]
			if !res.Success {
				rows[i] = map[string]interface{}{"url": res.URL, "success": false, "error": res.ErrorMessage}
				continue
			}
			id, perr := s.store.Put(res.URL, res)
			if perr != nil {
				rows[i] = map[string]interface{}{"url": res.URL, "success": false, "error": perr.Error()}
				continue
			}
			rows[i] = map[string]interface{}{
				"url":            res.URL,
				"success":        true,
				"content_id":     id,
				"title":          res.Title(),
				"content_length": len(res.RawMarkdown()),
			}
		}
	}

	successful := 0
	for _, row := range rows {
		if ok, _ := row["success"].(bool); ok {
			successful++
		}
	}

	return successEnvelope(map[string]interface{}{
		"total_urls": len(urls),
		"successful": successful,
		"failed":     len(urls) - successful,
		"results":    rows,
	})
}

func (s *Server) deepCrawlTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "deep_crawl",
		Description: "Crawl a site by following internal links from a start URL, breadth-first or depth-first",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"start_url":        mcp.StringProperty("The URL to start crawling from"),
			"max_depth":        mcp.IntProperty("Maximum link depth to follow (default 3)"),
			"max_pages":        mcp.IntProperty("Maximum number of pages to crawl (default 100)"),
			"strategy":         mcp.StringProperty("Traversal strategy: bfs, dfs or best_first (default bfs)"),
			"allowed_domains":  mcp.ArrayProperty("string", "Only follow links on these domains"),
			"exclude_patterns": mcp.ArrayProperty("string", "Skip URLs matching these *-wildcard patterns"),
			"include_patterns": mcp.ArrayProperty("string", "Only crawl URLs matching these *-wildcard patterns"),
			"keyword_focus":    mcp.ArrayProperty("string", "Keywords to prioritize with the best_first strategy"),
		}, []string{"start_url"}),
		Handler: s.handleDeepCrawl,
	}
}

func (s *Server) handleDeepCrawl(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	startURL, err := mcp.GetStringParam(params, "start_url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if _, err := s.validator.ValidateURL(startURL); err != nil {
		return errorEnvelope(err.Error())
	}

	maxDepth, _ := mcp.GetIntParam(params, "max_depth", false, 3)
	maxPages, _ := mcp.GetIntParam(params, "max_pages", false, 100)
	strategy, _ := mcp.GetStringParam(params, "strategy", false)
	allowedDomains, _ := mcp.GetStringArrayParam(params, "allowed_domains", false)
	excludePatterns, _ := mcp.GetStringArrayParam(params, "exclude_patterns", false)
	includePatterns, _ := mcp.GetStringArrayParam(params, "include_patterns", false)

	if maxDepth > s.config.Crawler.MaxDepthLimit {
		maxDepth = s.config.Crawler.MaxDepthLimit
	}
	if maxPages > s.config.Crawler.MaxPagesLimit {
		maxPages = s.config.Crawler.MaxPagesLimit
	}

	// best_first needs a relevance scorer only a native deep crawler
	// has, so it and anything unrecognized degrade to bfs. The
	// keyword_focus parameter is accepted and unused in that case.
	effective := traversal.StrategyBFS
	if strategy == traversal.StrategyDFS {
		effective = traversal.StrategyDFS
	}

	eng, err := s.handle.Acquire(ctx)
	if err != nil {
		return errorEnvelope(err.Error())
	}

	rows := make([]map[string]interface{}, 0, maxPages)
	maxDepthReached := 0

	if dc, ok := eng.(engine.DeepCrawler); ok {
		native, err := dc.DeepCrawl(ctx, &engine.DeepCrawlRequest{
			StartURL: startURL,
			Strategy: effective,
			MaxDepth: maxDepth,
			MaxPages: maxPages,
		})
		if err != nil {
			return errorEnvelope(err.Error())
		}
		for _, page := range native.Pages {
			id, perr := s.store.Put(page.URL, page)
			if perr != nil {
				s.logger.Warn("store deep crawl page", zap.String("url", page.URL), zap.Error(perr))
				continue
			}
			rows = append(rows, map[string]interface{}{
				"url":         page.URL,
				"depth":       0,
				"content_id":  id,
				"title":       page.Title(),
				"links_found": len(page.Links.Internal),
			})
		}
	} else {
		result, terr := traversal.Run(ctx, eng, &engine.RunConfig{
			BypassCache:        true,
			WordCountThreshold: 10,
		}, traversal.Params{
			StartURL:        startURL,
			Strategy:        effective,
			MaxDepth:        maxDepth,
			MaxPages:        maxPages,
			AllowedDomains:  allowedDomains,
			IncludePatterns: includePatterns,
			ExcludePatterns: excludePatterns,
			Logger:          s.logger,
		})
		if terr != nil {
			return errorEnvelope(terr.Error())
		}
		for _, page := range result.Pages {
			id, perr := s.store.Put(page.URL, page.Result)
			if perr != nil {
				s.logger.Warn("store deep crawl page", zap.String("url", page.URL), zap.Error(perr))
				continue
			}
			if page.Depth > maxDepthReached {
				maxDepthReached = page.Depth
			}
			rows = append(rows, map[string]interface{}{
				"url":         page.URL,
				"depth":       page.Depth,
				"content_id":  id,
				"title":       page.Result.Title(),
				"links_found": len(page.Result.Links.Internal),
			})
		}
		if len(result.Skipped) > 0 {
			s.logger.Debug("deep crawl skipped pages",
				zap.Int("count", len(result.Skipped)),
				zap.Strings("urls", result.Skipped))
		}
	}

	return successEnvelope(map[string]interface{}{
		"start_url":         startURL,
		"strategy":          effective,
		"pages_crawled":     len(rows),
		"max_depth_reached": maxDepthReached,
		"results":           rows,
	})
}

func (s *Server) extractStructuredDataTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "extract_structured_data",
		Description: "Extract structured data from a page using a CSS selector schema",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":             mcp.StringProperty("The URL to extract from"),
			"schema":          mcp.MapProperty("Extraction schema with baseSelector and fields"),
			"extraction_type": mcp.StringProperty("Extraction strategy, only json_css is supported (default json_css)"),
			"multiple":        mcp.BoolProperty("Extract every match of baseSelector instead of the first"),
		}, []string{"url", "schema"}),
		Handler: s.handleExtractStructuredData,
	}
}

func (s *Server) handleExtractStructuredData(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	schema, err := mcp.GetObjectParam(params, "schema", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	extractionType, _ := mcp.GetStringParam(params, "extraction_type", false)
	if extractionType == "" {
		extractionType = engine.ExtractionJSONCSS
	}
	multiple, _ := mcp.GetBoolParam(params, "multiple", false)

	if extractionType != engine.ExtractionJSONCSS {
		return errorEnvelope(fmt.Sprintf("unknown extraction type: %s", extractionType))
	}

	cfg := &engine.RunConfig{
		BypassCache: true,
		Extraction: &engine.Extraction{
			Type:     engine.ExtractionJSONCSS,
			Schema:   schema,
			Multiple: multiple,
		},
	}

	res, err := s.runCrawl(ctx, rawURL, cfg)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return errorEnvelope(failureMessage(res, "Extraction failed"))
	}

	return successEnvelope(map[string]interface{}{
		"url":             rawURL,
		"extracted_data":  res.ExtractedContent,
		"extraction_type": extractionType,
	})
}

func (s *Server) extractWithLLMTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "extract_with_llm",
		Description: "Extract data from a page by giving an LLM a natural-language instruction",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":         mcp.StringProperty("The URL to extract from"),
			"instruction": mcp.StringProperty("What to extract, in natural language"),
			"model":       mcp.StringProperty("Model to use (default gpt-4o-mini)"),
			"api_key":     mcp.StringProperty("OpenAI API key, falls back to configuration or OPENAI_API_KEY"),
			"schema":      mcp.MapProperty("Optional JSON schema shaping the extraction output"),
			"temperature": mcp.NumberProperty("Sampling temperature (default 0.7)"),
		}, []string{"url", "instruction"}),
		Handler: s.handleExtractWithLLM,
	}
}

func (s *Server) handleExtractWithLLM(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	instruction, err := mcp.GetStringParam(params, "instruction", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	model, _ := mcp.GetStringParam(params, "model", false)
	if model == "" {
		model = s.config.LLM.Model
	}
	schema, _ := mcp.GetObjectParam(params, "schema", false)
	temperature, _ := mcp.GetFloatParam(params, "temperature", false, 0.7)

	apiKey, _ := mcp.GetStringParam(params, "api_key", false)
	if apiKey == "" {
		apiKey = s.config.LLM.APIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return errorEnvelope("API key required for LLM extraction")
	}

	cfg := &engine.RunConfig{
		BypassCache: true,
		Extraction: &engine.Extraction{
			Type:        engine.ExtractionLLM,
			Instruction: instruction,
			Model:       model,
			APIKey:      apiKey,
			Schema:      schema,
			Temperature: temperature,
		},
	}

	res, err := s.runCrawl(ctx, rawURL, cfg)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return errorEnvelope(failureMessage(res, "LLM extraction failed"))
	}

	id, err := s.store.Put(rawURL, res)
	if err != nil {
		return errorEnvelope(err.Error())
	}

	return successEnvelope(map[string]interface{}{
		"url":               rawURL,
		"content_id":        id,
		"extracted_content": res.ExtractedContent,
		"model_used":        model,
	})
}

func (s *Server) crawlWithFilterTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "crawl_with_filter",
		Description: "Crawl a URL and filter the content for relevance with bm25, pruning or an LLM",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":                mcp.StringProperty("The URL to crawl"),
			"filter_type":        mcp.StringProperty("Content filter: bm25, pruning or llm (default bm25)"),
			"query":              mcp.StringProperty("Relevance query for bm25 and llm filters"),
			"min_word_threshold": mcp.IntProperty("Minimum words per block for the pruning filter (default 50)"),
			"threshold":          mcp.NumberProperty("Relevance score cutoff for the bm25 filter (default 0.3)"),
		}, []string{"url"}),
		Handler: s.handleCrawlWithFilter,
	}
}

func (s *Server) handleCrawlWithFilter(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	filterType, _ := mcp.GetStringParam(params, "filter_type", false)
	if filterType == "" {
		filterType = engine.FilterBM25
	}
	query, _ := mcp.GetStringParam(params, "query", false)
	minWord, _ := mcp.GetIntParam(params, "min_word_threshold", false, 50)
	threshold, _ := mcp.GetFloatParam(params, "threshold", false, 0.3)

	// bm25 without a query means no filter at all, not an error.
	var filter *engine.ContentFilter
	switch {
	case filterType == engine.FilterBM25 && query != "":
		filter = &engine.ContentFilter{
			Type:      engine.FilterBM25,
			Query:     query,
			Threshold: threshold,
		}
	case filterType == engine.FilterPruning:
		filter = &engine.ContentFilter{
			Type:             engine.FilterPruning,
			MinWordThreshold: minWord,
		}
	case filterType == engine.FilterLLM:
		apiKey := s.config.LLM.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return errorEnvelope("API key required for LLM filtering")
		}
		filter = &engine.ContentFilter{
			Type:   engine.FilterLLM,
			Query:  query,
			APIKey: apiKey,
			Model:  s.config.LLM.Model,
		}
	}

	res, err := s.runCrawl(ctx, rawURL, &engine.RunConfig{
		BypassCache: true,
		Filter:      filter,
	})
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return errorEnvelope(failureMessage(res, "Filtered crawl failed"))
	}

	id, err := s.store.Put(rawURL, res)
	if err != nil {
		return errorEnvelope(err.Error())
	}

	var filtered interface{}
	if res.Markdown != nil && res.Markdown.FitMarkdown != "" {
		filtered = res.Markdown.FitMarkdown
	}

	return successEnvelope(map[string]interface{}{
		"url":            rawURL,
		"content_id":     id,
		"filter_type":    filterType,
		"content_length": len(res.RawMarkdown()),
		"filtered":       filtered,
	})
}

func (s *Server) extractLinksTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "extract_links",
		Description: "Extract and classify the links on a page, optionally previewing where they lead",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":           mcp.StringProperty("The URL to extract links from"),
			"preview_links": mcp.BoolProperty("Crawl the first few links for a short preview"),
			"max_preview":   mcp.IntProperty("Total number of links to preview (default 10)"),
		}, []string{"url"}),
		Handler: s.handleExtractLinks,
	}
}

func (s *Server) handleExtractLinks(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	previewLinks, _ := mcp.GetBoolParam(params, "preview_links", false)
	maxPreview, _ := mcp.GetIntParam(params, "max_preview", false, 10)

	res, err := s.runCrawl(ctx, rawURL, &engine.RunConfig{BypassCache: true})
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return errorEnvelope(failureMessage(res, "Failed to extract links"))
	}

	fields := map[string]interface{}{
		"url":            rawURL,
		"internal_links": res.Links.Internal,
		"external_links": res.Links.External,
		"total_internal": len(res.Links.Internal),
		"total_external": len(res.Links.External),
	}
	if previewLinks {
		fields["link_previews"] = s.previewLinks(ctx, res.Links, maxPreview)
	}
	return successEnvelope(fields)
}

// previewLinks crawls the first maxPreview/2 internal and external links
// for a short title and markdown preview. Links that fail to crawl are
// left out of the result.
func (s *Server) previewLinks(ctx context.Context, links engine.Links, maxPreview int) []map[string]interface{} {
	half := maxPreview / 2
	targets := make([]string, 0, maxPreview)
	for i, l := range links.Internal {
		if i >= half {
			break
		}
		targets = append(targets, l.Href)
	}
	for i, l := range links.External {
		if i >= half {
			break
		}
		targets = append(targets, l.Href)
	}

	cfg := &engine.RunConfig{WordCountThreshold: 50}
	previews := make([]map[string]interface{}, 0, len(targets))
	for _, target := range targets {
		res, err := s.runCrawl(ctx, target, cfg)
		if err != nil || !res.Success {
			continue
		}
		previews = append(previews, map[string]interface{}{
			"url":         target,
			"title":       res.Title(),
			"description": clip(res.Metadata.Description, 200),
			"preview":     clip(res.RawMarkdown(), 500),
		})
	}
	return previews
}

func (s *Server) getCrawledContentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_crawled_content",
		Description: "Retrieve previously crawled content from the cache by its content ID",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"content_id":         mcp.StringProperty("Content ID returned by an earlier crawl"),
			"include_html":       mcp.BoolProperty("Include the raw HTML in the response"),
			"include_screenshot": mcp.BoolProperty("Include the base64 screenshot in the response"),
		}, []string{"content_id"}),
		Handler: s.handleGetCrawledContent,
	}
}

func (s *Server) handleGetCrawledContent(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	id, err := mcp.GetStringParam(params, "content_id", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	includeHTML, _ := mcp.GetBoolParam(params, "include_html", false)
	includeScreenshot, _ := mcp.GetBoolParam(params, "include_screenshot", false)

	entry, err := s.store.Get(id)
	if err != nil {
		return errorEnvelope(fmt.Sprintf("Content ID %s not found", id))
	}

	fields := map[string]interface{}{
		"content_id": id,
		"url":        entry.URL,
		"markdown":   entry.Content.RawMarkdown(),
		"metadata":   entry.Content.Metadata,
		"media":      entry.Content.Media,
	}
	if includeHTML {
		fields["html"] = entry.Content.HTML
	}
	if includeScreenshot {
		fields["screenshot_data"] = entry.Content.Screenshot
	}
	return successEnvelope(fields)
}

func (s *Server) listCrawledContentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_crawled_content",
		Description: "List all crawled content held in the cache",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{}, nil),
		Handler:     s.handleListCrawledContent,
	}
}

func (s *Server) handleListCrawledContent(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	items := s.store.List()
	return successEnvelope(map[string]interface{}{
		"total_items": len(items),
		"content":     items,
	})
}

func (s *Server) crawlWithJSExecutionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "crawl_with_js_execution",
		Description: "Crawl a page after executing custom JavaScript on it",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":         mcp.StringProperty("The URL to crawl"),
			"js_code":     mcp.StringProperty("JavaScript to execute before extraction"),
			"wait_for_js": mcp.StringProperty("Condition to wait for after the script runs"),
			"js_timeout":  mcp.IntProperty("Page timeout in milliseconds (default 30000)"),
		}, []string{"url"}),
		Handler: s.handleCrawlWithJSExecution,
	}
}

func (s *Server) handleCrawlWithJSExecution(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	jsCode, _ := mcp.GetStringParam(params, "js_code", false)
	waitForJS, _ := mcp.GetStringParam(params, "wait_for_js", false)
	jsTimeout, _ := mcp.GetIntParam(params, "js_timeout", false, 30000)

	cfg := &engine.RunConfig{
		BypassCache: true,
		WaitFor:     waitForJS,
		PageTimeout: time.Duration(jsTimeout) * time.Millisecond,
	}
	if jsCode != "" {
		cfg.JSCode = []string{jsCode}
	}

	res, err := s.runCrawl(ctx, rawURL, cfg)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return errorEnvelope(failureMessage(res, "JS crawl failed"))
	}

	id, err := s.store.Put(rawURL, res)
	if err != nil {
		return errorEnvelope(err.Error())
	}

	return successEnvelope(map[string]interface{}{
		"url":            rawURL,
		"content_id":     id,
		"js_executed":    jsCode != "",
		"content_length": len(res.RawMarkdown()),
		"title":          res.Title(),
	})
}

func (s *Server) crawlDynamicContentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "crawl_dynamic_content",
		Description: "Crawl content that loads dynamically, scrolling the page to trigger it",
		InputSchema: mcp.BuildInputSchema(map[string]interface{}{
			"url":               mcp.StringProperty("The URL to crawl"),
			"scroll":            mcp.BoolProperty("Scroll the page to trigger lazy loading (default true)"),
			"scroll_delay":      mcp.IntProperty("Milliseconds between scrolls (default 1000)"),
			"max_scrolls":       mcp.IntProperty("Maximum number of scrolls (default 10)"),
			"wait_for_selector": mcp.StringProperty("CSS selector to wait for before extraction"),
		}, []string{"url"}),
		Handler: s.handleCrawlDynamicContent,
	}
}

func (s *Server) handleCrawlDynamicContent(ctx context.Context, params map[string]interface{}) (*mcp.ToolResult, error) {
	rawURL, err := mcp.GetStringParam(params, "url", true)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	scroll, _ := mcp.GetBoolParam(params, "scroll", true)
	scrollDelay, _ := mcp.GetIntParam(params, "scroll_delay", false, 1000)
	maxScrolls, _ := mcp.GetIntParam(params, "max_scrolls", false, 10)
	waitForSelector, _ := mcp.GetStringParam(params, "wait_for_selector", false)

	cfg := &engine.RunConfig{
		BypassCache:        true,
		WordCountThreshold: 10,
		WaitFor:            waitForSelector,
	}
	if scroll {
		cfg.JSCode = []string{engine.BuildScrollScript(maxScrolls, scrollDelay)}
	}

	res, err := s.runCrawl(ctx, rawURL, cfg)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	if !res.Success {
		return errorEnvelope(failureMessage(res, "Dynamic crawl failed"))
	}

	id, err := s.store.Put(rawURL, res)
	if err != nil {
		return errorEnvelope(err.Error())
	}

	return successEnvelope(map[string]interface{}{
		"url":               rawURL,
		"content_id":        id,
		"scrolling_applied": scroll,
		"content_length":    len(res.RawMarkdown()),
		"title":             res.Title(),
	})
}

// successEnvelope wraps fields in the success envelope every tool
// returns. Handlers never surface protocol errors; outcomes good and
// bad travel as indented JSON tool results.
func successEnvelope(fields map[string]interface{}) (*mcp.ToolResult, error) {
	payload := map[string]interface{}{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	return mcp.JSONResult(payload)
}

func errorEnvelope(message string) (*mcp.ToolResult, error) {
	return mcp.JSONResult(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// failureMessage prefers the engine's own error over the generic fallback.
func failureMessage(res *engine.CrawlResult, fallback string) string {
	if res.ErrorMessage != "" {
		return res.ErrorMessage
	}
	return fallback
}

// splitSelectors turns a comma-separated selector list into a slice,
// dropping empty parts. Empty input means engine defaults.
func splitSelectors(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

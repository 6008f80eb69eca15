// Package engine runs browser-backed page crawls. Two implementations
// exist: a client for a remote crawl4ai HTTP service and a local
// chromedp-driven browser. Both return the same CrawlResult shape.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"
)

// Extraction strategy types.
const (
	ExtractionJSONCSS = "json_css"
	ExtractionLLM     = "llm"
)

// Content filter types.
const (
	FilterBM25    = "bm25"
	FilterPruning = "pruning"
	FilterLLM     = "llm"
)

// Engine crawls pages and returns their processed content.
// Implementations must be safe for concurrent use.
type Engine interface {
	Name() string
	Run(ctx context.Context, url string, cfg *RunConfig) (*CrawlResult, error)
	RunMany(ctx context.Context, urls []string, cfg *RunConfig, d *Dispatcher) ([]*CrawlResult, error)
	Close(ctx context.Context) error
}

// DeepCrawler is implemented by engines with a native multi-page
// traversal mode. Callers type-assert; when the engine does not
// implement it they fall back to link-following over repeated Run calls.
type DeepCrawler interface {
	DeepCrawl(ctx context.Context, req *DeepCrawlRequest) (*DeepCrawlResult, error)
}

// DeepCrawlRequest describes a native deep crawl.
type DeepCrawlRequest struct {
	StartURL string
	Strategy string
	MaxDepth int
	MaxPages int
}

// DeepCrawlResult is the outcome of a native deep crawl.
type DeepCrawlResult struct {
	Pages []*CrawlResult
}

// RunConfig controls a single crawl.
type RunConfig struct {
	WordCountThreshold      int
	ExcludedTags            []string
	ExcludeExternalLinks    bool
	ExcludeSocialMediaLinks bool
	RemoveOverlays          bool
	ProcessIframes          bool
	BypassCache             bool

	// WaitFor is a CSS selector to wait for, or a "js:" prefixed
	// expression polled until truthy.
	WaitFor     string
	JSCode      []string
	CSSSelector string
	SessionID   string
	PageTimeout time.Duration

	Screenshot bool
	PDF        bool

	Login      *LoginScript
	Extraction *Extraction
	Filter     *ContentFilter
}

// Extraction describes a structured-data extraction strategy.
type Extraction struct {
	Type        string
	Schema      map[string]interface{}
	Instruction string
	Model       string
	APIKey      string
	Temperature float64
	Multiple    bool
}

// ContentFilter describes a post-crawl content filter. The filtered
// markdown lands in CrawlResult.Markdown.FitMarkdown.
type ContentFilter struct {
	Type             string
	Query            string
	Threshold        float64
	MinWordThreshold int
	APIKey           string
	Model            string
}

// CrawlResult is the outcome of crawling one URL. The JSON tags follow
// the crawl4ai wire format so remote responses decode directly into it.
type CrawlResult struct {
	URL              string    `json:"url"`
	Success          bool      `json:"success"`
	HTML             string    `json:"html,omitempty"`
	CleanedHTML      string    `json:"cleaned_html,omitempty"`
	Markdown         *Markdown `json:"markdown,omitempty"`
	ExtractedContent string    `json:"extracted_content,omitempty"`
	Media            Media     `json:"media,omitempty"`
	Links            Links     `json:"links,omitempty"`
	Metadata         Metadata  `json:"metadata,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	Screenshot       string    `json:"screenshot,omitempty"`
	PDF              string    `json:"pdf,omitempty"`
}

// RawMarkdown returns the unfiltered markdown, or "" when none was produced.
func (r *CrawlResult) RawMarkdown() string {
	if r.Markdown == nil {
		return ""
	}
	return r.Markdown.RawMarkdown
}

// FitMarkdown returns the filtered markdown when a content filter ran,
// falling back to the raw markdown.
func (r *CrawlResult) FitMarkdown() string {
	if r.Markdown == nil {
		return ""
	}
	if r.Markdown.FitMarkdown != "" {
		return r.Markdown.FitMarkdown
	}
	return r.Markdown.RawMarkdown
}

// Title returns the page title from metadata.
func (r *CrawlResult) Title() string {
	return r.Metadata.Title
}

// Markdown is the markdown view of a crawled page. crawl4ai servers
// emit it either as a bare string or as an object of variants.
type Markdown struct {
	RawMarkdown           string `json:"raw_markdown"`
	MarkdownWithCitations string `json:"markdown_with_citations,omitempty"`
	ReferencesMarkdown    string `json:"references_markdown,omitempty"`
	FitMarkdown           string `json:"fit_markdown,omitempty"`
	FitHTML               string `json:"fit_html,omitempty"`
}

// UnmarshalJSON accepts both the string and the object wire forms.
func (m *Markdown) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		m.RawMarkdown = str
		return nil
	}

	type alias Markdown
	aux := (*alias)(m)
	return json.Unmarshal(data, aux)
}

// Media contains media elements discovered on the page.
type Media struct {
	Images []Image `json:"images,omitempty"`
	Videos []Video `json:"videos,omitempty"`
	Audios []Audio `json:"audios,omitempty"`
}

// Image is an extracted <img> element.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Video is an extracted <video> element.
type Video struct {
	Src    string `json:"src"`
	Poster string `json:"poster,omitempty"`
}

// Audio is an extracted <audio> element.
type Audio struct {
	Src string `json:"src"`
}

// Links groups page links by whether they stay on the page's host.
type Links struct {
	Internal []Link `json:"internal,omitempty"`
	External []Link `json:"external,omitempty"`
}

// Link is a single extracted anchor.
type Link struct {
	Href       string `json:"href"`
	Text       string `json:"text,omitempty"`
	Title      string `json:"title,omitempty"`
	BaseDomain string `json:"base_domain,omitempty"`
}

// Metadata holds page-level metadata from <title> and <meta> tags.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
	Author      string `json:"author,omitempty"`
	Language    string `json:"language,omitempty"`
}

// runMany is the shared RunMany implementation. It crawls urls
// concurrently through eng, keeping at most the dispatcher's permit
// count in flight. Results are positional: results[i] corresponds to
// urls[i]. A URL whose crawl fails yields a CrawlResult with Success
// false; runMany itself returns an error only when the context is
// cancelled.
func runMany(ctx context.Context, eng Engine, urls []string, cfg *RunConfig, d *Dispatcher) ([]*CrawlResult, error) {
	results := make([]*CrawlResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			if err := d.Acquire(gctx); err != nil {
				return err
			}
			defer d.Release()

			res, err := eng.Run(gctx, u, cfg)
			if err != nil {
				res = &CrawlResult{URL: u, ErrorMessage: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

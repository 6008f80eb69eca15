// Package traversal implements deep crawling by walking internal links
// through repeated single-page crawls, for engines without a native
// deep-crawl mode.
package traversal

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/local-mcps/crawl4ai-mcp/internal/engine"
)

// Traversal strategies.
const (
	StrategyBFS = "bfs"
	StrategyDFS = "dfs"
)

// Params controls a traversal run.
type Params struct {
	StartURL string
	// Strategy is bfs or dfs. Anything else behaves as bfs.
	Strategy string
	MaxDepth int
	MaxPages int
	// AllowedDomains restricts crawling to these hosts when non-empty.
	AllowedDomains  []string
	IncludePatterns []string
	ExcludePatterns []string
	Logger          *zap.Logger
}

// PageVisit is one successfully crawled page.
type PageVisit struct {
	URL    string
	Depth  int
	Result *engine.CrawlResult
}

// Result is the traversal outcome. Skipped holds URLs whose crawl
// failed; filtered URLs are not recorded.
type Result struct {
	Pages   []PageVisit
	Skipped []string
}

type frontierItem struct {
	url   string
	depth int
}

// Run walks from p.StartURL following internal links up to MaxDepth and
// MaxPages. Discovered link hrefs are enqueued exactly as the engine
// reports them: no resolution against the page base and no
// de-duplication of query-string variants.
func Run(ctx context.Context, eng engine.Engine, runCfg *engine.RunConfig, p Params) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res := &Result{}
	visited := make(map[string]bool)
	frontier := []frontierItem{{url: p.StartURL, depth: 0}}

	for len(frontier) > 0 && len(res.Pages) < p.MaxPages {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		item := frontier[0]
		frontier = frontier[1:]

		if visited[item.url] || item.depth > p.MaxDepth {
			continue
		}
		if !allowed(item.url, p) {
			continue
		}
		visited[item.url] = true

		logger.Debug("crawling page",
			zap.String("url", item.url),
			zap.Int("depth", item.depth))

		page, err := eng.Run(ctx, item.url, runCfg)
		if err != nil || !page.Success {
			if err != nil {
				logger.Debug("page crawl failed", zap.String("url", item.url), zap.Error(err))
			}
			res.Skipped = append(res.Skipped, item.url)
			continue
		}

		res.Pages = append(res.Pages, PageVisit{URL: item.url, Depth: item.depth, Result: page})

		for _, link := range page.Links.Internal {
			if link.Href == "" || visited[link.Href] {
				continue
			}
			next := frontierItem{url: link.Href, depth: item.depth + 1}
			if p.Strategy == StrategyDFS {
				frontier = append([]frontierItem{next}, frontier...)
			} else {
				frontier = append(frontier, next)
			}
		}
	}

	return res, nil
}

// allowed applies the domain and pattern filters. A filtered URL is
// skipped without being marked visited.
func allowed(rawURL string, p Params) bool {
	if len(p.AllowedDomains) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return false
		}
		host := u.Hostname()
		ok := false
		for _, d := range p.AllowedDomains {
			if strings.EqualFold(host, d) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	for _, pattern := range p.ExcludePatterns {
		if matchPattern(pattern, rawURL) {
			return false
		}
	}

	if len(p.IncludePatterns) > 0 {
		for _, pattern := range p.IncludePatterns {
			if matchPattern(pattern, rawURL) {
				return true
			}
		}
		return false
	}
	return true
}

// matchPattern reports whether s matches pattern, where * matches any
// run of characters including none.
func matchPattern(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

// Package crawler exposes the crawl tool surface over MCP: single-page
// and authenticated crawls, batch and deep crawling, extraction,
// filtering and the content store behind them.
package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/local-mcps/crawl4ai-mcp/config"
	"github.com/local-mcps/crawl4ai-mcp/internal/common"
	"github.com/local-mcps/crawl4ai-mcp/internal/engine"
	"github.com/local-mcps/crawl4ai-mcp/internal/store"
	"github.com/local-mcps/crawl4ai-mcp/pkg/mcp"
)

// Server owns the shared engine handle, the content store and the crawl
// policy. main constructs one and tears it down on shutdown; handlers
// hold no state of their own.
type Server struct {
	config    *config.Config
	logger    *zap.Logger
	handle    *engine.Handle
	store     *store.Store
	validator *common.URLValidator
}

// NewServer wires the store and engine handle. factory builds the
// engine on first use so startup stays cheap.
func NewServer(cfg *config.Config, logger *zap.Logger, factory func() (engine.Engine, error)) (*Server, error) {
	st, err := store.New(cfg.CacheDir(), logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		config: cfg,
		logger: logger,
		handle: engine.NewHandle(factory, logger),
		store:  st,
		validator: common.NewURLValidator(
			cfg.Crawler.AllowedDomains,
			cfg.Crawler.DeniedDomains,
			cfg.Crawler.AllowPrivateNetworks,
		),
	}, nil
}

func (s *Server) RegisterTools(server *mcp.Server) {
	server.RegisterTool(s.crawlURLTool())
	server.RegisterTool(s.crawlWithAuthTool())
	server.RegisterTool(s.batchCrawlTool())
	server.RegisterTool(s.deepCrawlTool())
	server.RegisterTool(s.extractStructuredDataTool())
	server.RegisterTool(s.extractWithLLMTool())
	server.RegisterTool(s.crawlWithFilterTool())
	server.RegisterTool(s.extractLinksTool())
	server.RegisterTool(s.getCrawledContentTool())
	server.RegisterTool(s.listCrawledContentTool())
	server.RegisterTool(s.crawlWithJSExecutionTool())
	server.RegisterTool(s.crawlDynamicContentTool())
}

// Close releases the engine if one was started.
func (s *Server) Close(ctx context.Context) error {
	return s.handle.Release(ctx)
}

// runCrawl validates rawURL against the crawl policy, starts the engine
// if needed and performs a single crawl.
func (s *Server) runCrawl(ctx context.Context, rawURL string, cfg *engine.RunConfig) (*engine.CrawlResult, error) {
	if _, err := s.validator.ValidateURL(rawURL); err != nil {
		return nil, err
	}
	eng, err := s.handle.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx, rawURL, cfg)
}

func (s *Server) memoryCheckInterval() time.Duration {
	return time.Duration(s.config.Crawler.MemoryCheckIntervalSeconds * float64(time.Second))
}

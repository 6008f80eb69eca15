package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/local-mcps/crawl4ai-mcp/config"
	"github.com/local-mcps/crawl4ai-mcp/internal/common"
	"github.com/local-mcps/crawl4ai-mcp/internal/crawler"
	"github.com/local-mcps/crawl4ai-mcp/internal/engine"
	"github.com/local-mcps/crawl4ai-mcp/pkg/mcp"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("mcp-crawl4ai " + version)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := common.NewLogger(cfg.Global.LogLevel, cfg.Global.LogFormat)
	defer logger.Sync()

	crawlServer, err := crawler.NewServer(cfg, logger, engineFactory(cfg, logger))
	if err != nil {
		logger.Fatal("init crawler server", zap.Error(err))
	}

	server := mcp.NewServer("mcp-crawl4ai", version)
	crawlServer.RegisterTools(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	logger.Info("starting server",
		zap.String("engine", cfg.Engine.Type),
		zap.String("transport", cfg.Global.Transport))

	switch cfg.Global.Transport {
	case "http":
		err = server.RunHTTP(ctx, fmt.Sprintf(":%d", cfg.Global.HTTPPort))
	default:
		err = server.Run(ctx)
	}

	// the engine may hold a browser; release it before reporting errors
	if cerr := crawlServer.Close(context.Background()); cerr != nil {
		logger.Warn("close crawler engine", zap.Error(cerr))
	}

	if err != nil && err != context.Canceled {
		logger.Fatal("server error", zap.Error(err))
	}
}

// engineFactory defers engine construction to first use. chromedp is
// the default; anything starting a browser at boot would slow every
// tools/list round trip.
func engineFactory(cfg *config.Config, logger *zap.Logger) func() (engine.Engine, error) {
	switch cfg.Engine.Type {
	case "crawl4ai":
		return func() (engine.Engine, error) {
			return engine.NewRemoteEngine(cfg.Engine.Crawl4AI, logger), nil
		}
	default:
		return func() (engine.Engine, error) {
			return engine.NewLocalEngine(cfg.Engine.Chromedp, cfg.LLM, logger)
		}
	}
}

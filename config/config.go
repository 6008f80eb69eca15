package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Global  GlobalConfig  `yaml:"global"`
	Engine  EngineConfig  `yaml:"engine"`
	Cache   CacheConfig   `yaml:"cache"`
	Crawler CrawlerConfig `yaml:"crawler"`
	LLM     LLMConfig     `yaml:"llm"`
}

type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Transport string `yaml:"transport"`
	HTTPPort  int    `yaml:"http_port"`
}

type EngineConfig struct {
	Type     string         `yaml:"type"`
	Crawl4AI Crawl4AIConfig `yaml:"crawl4ai"`
	Chromedp ChromedpConfig `yaml:"chromedp"`
}

type Crawl4AIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ChromedpConfig struct {
	Headless           bool   `yaml:"headless"`
	NoSandbox          bool   `yaml:"no_sandbox"`
	ChromePath         string `yaml:"chrome_path"`
	UserAgent          string `yaml:"user_agent"`
	PageTimeoutSeconds int    `yaml:"page_timeout_seconds"`
}

type CacheConfig struct {
	Dir        string `yaml:"dir"`
	Persistent bool   `yaml:"persistent"`
}

type CrawlerConfig struct {
	MaxConcurrent              int      `yaml:"max_concurrent"`
	MemoryThresholdPercent     float64  `yaml:"memory_threshold_percent"`
	MemoryCheckIntervalSeconds float64  `yaml:"memory_check_interval_seconds"`
	AllowedDomains             []string `yaml:"allowed_domains"`
	DeniedDomains              []string `yaml:"denied_domains"`
	AllowPrivateNetworks       bool     `yaml:"allow_private_networks"`
	MaxPagesLimit              int      `yaml:"max_pages_limit"`
	MaxDepthLimit              int      `yaml:"max_depth_limit"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Engine: EngineConfig{
			Type: "chromedp",
			Crawl4AI: Crawl4AIConfig{
				BaseURL:        "http://localhost:11235",
				TimeoutSeconds: 120,
			},
			Chromedp: ChromedpConfig{
				Headless:           true,
				NoSandbox:          false,
				UserAgent:          "",
				PageTimeoutSeconds: 60,
			},
		},
		Cache: CacheConfig{
			Dir:        "",
			Persistent: false,
		},
		Crawler: CrawlerConfig{
			MaxConcurrent:              5,
			MemoryThresholdPercent:     70.0,
			MemoryCheckIntervalSeconds: 1.0,
			AllowedDomains:             []string{},
			DeniedDomains:              []string{},
			AllowPrivateNetworks:       false,
			MaxPagesLimit:              500,
			MaxDepthLimit:              10,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			APIKey:   "",
			BaseURL:  "",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		configDir, err := os.UserConfigDir()
		if err == nil {
			path = filepath.Join(configDir, "crawl4ai-mcp", "config.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CRAWL4AI_MCP_LOG_LEVEL"); v != "" {
		config.Global.LogLevel = v
	}
	if v := os.Getenv("CRAWL4AI_MCP_LOG_FORMAT"); v != "" {
		config.Global.LogFormat = v
	}
	if v := os.Getenv("CRAWL4AI_MCP_TRANSPORT"); v != "" {
		config.Global.Transport = v
	}
	if v := os.Getenv("CRAWL4AI_MCP_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Global.HTTPPort = port
		}
	}
	if v := os.Getenv("CRAWL4AI_MCP_ENGINE"); v != "" {
		config.Engine.Type = v
	}
	if v := os.Getenv("CRAWL4AI_MCP_BASE_URL"); v != "" {
		config.Engine.Crawl4AI.BaseURL = v
	}
	if v := os.Getenv("CRAWL4AI_MCP_API_TOKEN"); v != "" {
		config.Engine.Crawl4AI.APIToken = v
	}
	if v := os.Getenv("CRAWL4AI_MCP_CACHE_DIR"); v != "" {
		config.Cache.Dir = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && config.LLM.APIKey == "" {
		config.LLM.APIKey = v
	}
}

// CacheDir resolves the content cache location. An explicit dir wins; with
// persistent caching the entries live under the user cache home; otherwise
// they go to the OS temp directory.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return os.ExpandEnv(c.Cache.Dir)
	}
	if c.Cache.Persistent {
		return filepath.Join(xdg.CacheHome, "crawl4ai-mcp")
	}
	return filepath.Join(os.TempDir(), "mcp-crawl4ai-cache")
}

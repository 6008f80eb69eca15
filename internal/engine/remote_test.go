package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/local-mcps/crawl4ai-mcp/config"
)

// newCrawlService fakes the crawl4ai /crawl endpoint. Captured requests
// arrive on the returned channel.
func newCrawlService(t *testing.T, handler http.HandlerFunc) (*httptest.Server, chan *crawlRequest) {
	t.Helper()
	captured := make(chan *crawlRequest, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crawl" {
			var req crawlRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				captured <- &req
			}
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func okCrawlResponse(markdown string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"success": true,
			"results": []map[string]interface{}{{
				"url":      "https://example.com/",
				"success":  true,
				"markdown": markdown,
				"metadata": map[string]interface{}{"title": "Example"},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func newTestRemote(srvURL string) *RemoteEngine {
	return NewRemoteEngine(config.Crawl4AIConfig{
		BaseURL:        srvURL,
		APIToken:       "test-token",
		TimeoutSeconds: 5,
	}, zap.NewNop())
}

func TestRemoteEngineRun(t *testing.T) {
	t.Run("decodes string markdown", func(t *testing.T) {
		srv, _ := newCrawlService(t, okCrawlResponse("# Hello"))
		eng := newTestRemote(srv.URL)

		res, err := eng.Run(context.Background(), "https://example.com/", &RunConfig{})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "# Hello", res.RawMarkdown())
		assert.Equal(t, "Example", res.Title())
	})

	t.Run("request carries crawl options", func(t *testing.T) {
		srv, captured := newCrawlService(t, okCrawlResponse("# Hello"))
		eng := newTestRemote(srv.URL)

		cfg := &RunConfig{
			BypassCache:        true,
			Screenshot:         true,
			WordCountThreshold: 10,
			CSSSelector:        "article",
			WaitFor:            "#content",
			PageTimeout:        30 * time.Second,
		}
		_, err := eng.Run(context.Background(), "https://example.com/", cfg)
		require.NoError(t, err)

		got := <-captured
		assert.Equal(t, []string{"https://example.com/"}, got.URLs)
		assert.Equal(t, "bypass", got.CacheMode)
		assert.True(t, got.Screenshot)
		assert.Equal(t, 10, got.WordCountThreshold)
		assert.Equal(t, "article", got.CSSSelector)
		assert.Equal(t, "#content", got.WaitFor)
		assert.Equal(t, 30000, got.PageTimeout)
	})

	t.Run("cache enabled by default", func(t *testing.T) {
		srv, captured := newCrawlService(t, okCrawlResponse("# Hello"))
		eng := newTestRemote(srv.URL)

		_, err := eng.Run(context.Background(), "https://example.com/", &RunConfig{})
		require.NoError(t, err)
		assert.Equal(t, "enabled", (<-captured).CacheMode)
	})

	t.Run("sends bearer token", func(t *testing.T) {
		var auth string
		srv, _ := newCrawlService(t, func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			okCrawlResponse("# Hello")(w, r)
		})
		eng := newTestRemote(srv.URL)

		_, err := eng.Run(context.Background(), "https://example.com/", &RunConfig{})
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token", auth)
	})

	t.Run("login script runs before caller js", func(t *testing.T) {
		srv, captured := newCrawlService(t, okCrawlResponse("# Hello"))
		eng := newTestRemote(srv.URL)

		cfg := &RunConfig{
			JSCode: []string{"window.scrollTo(0, document.body.scrollHeight);"},
			Login:  &LoginScript{Username: "u", Password: "p"},
		}
		_, err := eng.Run(context.Background(), "https://example.com/", cfg)
		require.NoError(t, err)

		got := <-captured
		require.Len(t, got.JSCode, 2)
		assert.Contains(t, got.JSCode[0], "usernameSelectors")
		assert.Equal(t, "window.scrollTo(0, document.body.scrollHeight);", got.JSCode[1])
	})

	t.Run("extraction strategy passthrough", func(t *testing.T) {
		srv, captured := newCrawlService(t, okCrawlResponse("# Hello"))
		eng := newTestRemote(srv.URL)

		cfg := &RunConfig{Extraction: &Extraction{
			Type:     ExtractionJSONCSS,
			Schema:   map[string]interface{}{"baseSelector": "li", "fields": []interface{}{}},
			Multiple: true,
		}}
		_, err := eng.Run(context.Background(), "https://example.com/", cfg)
		require.NoError(t, err)

		got := <-captured
		require.NotNil(t, got.ExtractionStrategy)
		assert.Equal(t, ExtractionJSONCSS, got.ExtractionStrategy.Type)
		assert.Equal(t, "li", got.ExtractionStrategy.Params["schema"].(map[string]interface{})["baseSelector"])
	})

	t.Run("content filter passthrough", func(t *testing.T) {
		srv, captured := newCrawlService(t, okCrawlResponse("# Hello"))
		eng := newTestRemote(srv.URL)

		cfg := &RunConfig{Filter: &ContentFilter{Type: FilterBM25, Query: "docs", Threshold: 1.2}}
		_, err := eng.Run(context.Background(), "https://example.com/", cfg)
		require.NoError(t, err)

		got := <-captured
		require.NotNil(t, got.ContentFilter)
		assert.Equal(t, FilterBM25, got.ContentFilter.Type)
		assert.Equal(t, "docs", got.ContentFilter.Params["user_query"])
	})

	t.Run("non-200 status", func(t *testing.T) {
		srv, _ := newCrawlService(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "browser pool exhausted", http.StatusInternalServerError)
		})
		eng := newTestRemote(srv.URL)

		_, err := eng.Run(context.Background(), "https://example.com/", &RunConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "browser pool exhausted")
	})

	t.Run("service rejection with detail", func(t *testing.T) {
		srv, _ := newCrawlService(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"detail":  "invalid url scheme",
			})
		})
		eng := newTestRemote(srv.URL)

		_, err := eng.Run(context.Background(), "https://example.com/", &RunConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid url scheme")
	})

	t.Run("empty result set", func(t *testing.T) {
		srv, _ := newCrawlService(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"results": []interface{}{},
			})
		})
		eng := newTestRemote(srv.URL)

		_, err := eng.Run(context.Background(), "https://example.com/", &RunConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no results")
	})
}

func TestRemoteEngineHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.NoError(t, newTestRemote(srv.URL).HealthCheck(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := newTestRemote(srv.URL).HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})
}

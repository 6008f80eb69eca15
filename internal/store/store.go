// Package store keeps crawl results addressable by content id, in
// memory with a JSON file mirror that survives restarts.
package store

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/local-mcps/crawl4ai-mcp/internal/common"
	"github.com/local-mcps/crawl4ai-mcp/internal/engine"
)

// Entry is one stored crawl result.
type Entry struct {
	URL       string              `json:"url"`
	Content   *engine.CrawlResult `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
}

// Summary is a listing row. FromCache marks entries recovered from the
// disk mirror rather than this process's memory.
type Summary struct {
	ContentID string    `json:"content_id"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	FromCache bool      `json:"from_cache,omitempty"`
}

// Store holds crawl results. There is no eviction; entries live for the
// process lifetime and their files until the cache directory is cleared.
type Store struct {
	dir    string
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New opens a store over dir, creating it if needed.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Store{
		dir:     dir,
		logger:  logger,
		entries: make(map[string]*Entry),
	}, nil
}

// Put stores result under a deterministic id derived from its JSON
// form. The disk write is best-effort: a failure is logged and the
// memory entry stands.
func (s *Store) Put(url string, result *engine.CrawlResult) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal crawl result: %w", err)
	}
	sum := md5.Sum(payload)
	id := hex.EncodeToString(sum[:])[:12]

	entry := &Entry{URL: url, Content: result, Timestamp: time.Now().UTC()}

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()

	if data, err := json.MarshalIndent(entry, "", "  "); err != nil {
		s.logger.Warn("marshal cache entry", zap.String("content_id", id), zap.Error(err))
	} else if err := os.WriteFile(filepath.Join(s.dir, id+".json"), data, 0o644); err != nil {
		s.logger.Warn("write cache file", zap.String("content_id", id), zap.Error(err))
	}
	return id, nil
}

// Get returns the entry for id, falling back to the disk mirror on a
// memory miss and caching it back. Ids that are not well-formed content
// ids never touch the filesystem.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return entry, nil
	}

	if !common.IsContentID(id) {
		return nil, fmt.Errorf("content ID %s not found: %w", id, common.ErrNotFound)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("content ID %s not found: %w", id, common.ErrNotFound)
	}
	var loaded Entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("corrupt cache file", zap.String("content_id", id), zap.Error(err))
		return nil, fmt.Errorf("content ID %s not found: %w", id, common.ErrNotFound)
	}

	s.mu.Lock()
	s.entries[id] = &loaded
	s.mu.Unlock()
	return &loaded, nil
}

// List summarizes memory entries plus disk files left by earlier runs,
// newest first. Unreadable files are skipped.
func (s *Store) List() []Summary {
	s.mu.RLock()
	summaries := make([]Summary, 0, len(s.entries))
	inMemory := make(map[string]bool, len(s.entries))
	for id, entry := range s.entries {
		inMemory[id] = true
		summaries = append(summaries, Summary{
			ContentID: id,
			URL:       entry.URL,
			Timestamp: entry.Timestamp,
		})
	}
	s.mu.RUnlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("read cache directory", zap.Error(err))
	}
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if !common.IsContentID(id) || inMemory[id] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			ContentID: id,
			URL:       entry.URL,
			Timestamp: entry.Timestamp,
			FromCache: true,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})
	return summaries
}

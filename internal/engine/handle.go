package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handle owns the server's single Engine instance. The engine is built
// lazily on first Acquire so that starting the server does not launch a
// browser or contact the crawl service until a tool needs one.
type Handle struct {
	factory func() (Engine, error)
	logger  *zap.Logger

	mu     sync.Mutex
	engine Engine
}

// NewHandle returns a handle that builds its engine with factory on
// first use.
func NewHandle(factory func() (Engine, error), logger *zap.Logger) *Handle {
	return &Handle{factory: factory, logger: logger}
}

// Acquire returns the shared engine, creating it if needed. Concurrent
// callers share one instance.
func (h *Handle) Acquire(ctx context.Context) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine != nil {
		return h.engine, nil
	}

	eng, err := h.factory()
	if err != nil {
		return nil, err
	}
	h.logger.Info("crawler engine started", zap.String("engine", eng.Name()))
	h.engine = eng
	return h.engine, nil
}

// Release closes the engine if one was created. The next Acquire builds
// a fresh instance.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine == nil {
		return nil
	}
	err := h.engine.Close(ctx)
	h.logger.Info("crawler engine stopped", zap.String("engine", h.engine.Name()))
	h.engine = nil
	return err
}

package profile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/pkg/did"
)

const (
	queueCapacity  = 256
	refreshTimeout = 10 * time.Second
)

// DocumentSource resolves a DID to a fresh document, bypassing caches.
type DocumentSource interface {
	Refresh(ctx context.Context, didStr string) (*didresolver.Document, error)
}

// Store persists a refreshed profile onto the actor and its memberships.
type Store interface {
	UpdateActorProfile(ctx context.Context, didStr string, p *Profile) error
}

// Refresher performs asynchronous profile refreshes. Callers enqueue a DID
// and move on; refresh failures are logged, never surfaced.
type Refresher struct {
	source DocumentSource
	store  Store
	queue  chan string
	logger *zap.Logger
}

// NewRefresher creates a Refresher with a bounded queue.
func NewRefresher(source DocumentSource, store Store, logger *zap.Logger) *Refresher {
	return &Refresher{
		source: source,
		store:  store,
		queue:  make(chan string, queueCapacity),
		logger: logger,
	}
}

// Enqueue schedules a refresh for didStr. It never blocks; when the queue is
// full the request is dropped and false returned.
func (r *Refresher) Enqueue(didStr string) bool {
	select {
	case r.queue <- didStr:
		return true
	default:
		r.logger.Warn("profile: refresh queue full, dropping", zap.String("did", didStr))
		return false
	}
}

// Start runs the refresh loop until done is closed.
func (r *Refresher) Start(done <-chan struct{}) {
	for {
		select {
		case didStr := <-r.queue:
			r.refresh(didStr)
		case <-done:
			return
		}
	}
}

func (r *Refresher) refresh(didStr string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	d, err := did.Parse(didStr)
	if err != nil {
		r.logger.Warn("profile: refresh for invalid did", zap.String("did", didStr), zap.Error(err))
		return
	}

	doc, err := r.source.Refresh(ctx, d.String())
	if err != nil {
		r.logger.Warn("profile: document refresh failed", zap.String("did", didStr), zap.Error(err))
		return
	}

	p, err := Extract(d, doc)
	if err != nil {
		r.logger.Warn("profile: extraction failed", zap.String("did", didStr), zap.Error(err))
		return
	}

	if err := r.store.UpdateActorProfile(ctx, d.String(), p); err != nil {
		r.logger.Error("profile: store update failed", zap.String("did", didStr), zap.Error(err))
		return
	}
	r.logger.Debug("profile refreshed", zap.String("did", didStr), zap.String("profileUrl", p.ProfileURL))
}

package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/store"
)

// Engine reconciles normalized wire entities into a store.
type Engine struct {
	store store.Store
	log   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New returns an engine writing through the given store.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyOptions configure one CreateOrMerge call.
type ApplyOptions struct {
	// FetchedAt is when the response carrying the entity was received.
	// Required; it drives the merge gate.
	FetchedAt time.Time

	// Viewer is the authenticated account the response was fetched as.
	// Sparse per-viewer flags are recorded against it; with no viewer
	// they are ignored.
	Viewer *model.Key

	// Cache carries resolved entities across calls that belong to the
	// same response. Nil gets a fresh cache scoped to this call.
	Cache *Cache
}

// pass is the state threaded through one depth-first traversal.
type pass struct {
	cache     *Cache
	fetchedAt time.Time
	viewer    string

	// inflight holds the keys currently being persisted on this call
	// stack. Hitting one again means the payload is cyclic.
	inflight map[model.Key]struct{}

	batchID string
	log     *slog.Logger
}

func (e *Engine) newPass(opts ApplyOptions) (*pass, error) {
	if opts.FetchedAt.IsZero() {
		return nil, ErrMissingFetchTime
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewCache()
	}
	viewer := ""
	if opts.Viewer != nil {
		viewer = opts.Viewer.String()
	}
	batchID := uuid.NewString()
	return &pass{
		cache:     cache,
		fetchedAt: opts.FetchedAt.UTC(),
		viewer:    viewer,
		inflight:  make(map[model.Key]struct{}),
		batchID:   batchID,
		log:       e.log.With("batch", batchID),
	}, nil
}

// entityKey builds and validates a wire entity's identity key. A
// remote id is always required; federated sources additionally need an
// instance domain. The decoders guarantee both, so these checks guard
// direct library callers.
func entityKey(source model.Source, domain, remoteID string) (model.Key, error) {
	if remoteID == "" {
		return model.Key{}, ErrMissingRemoteID
	}
	if source == model.SourceMastodon && domain == "" {
		return model.Key{}, ErrMissingDomain
	}
	return model.Key{Source: source, Domain: domain, RemoteID: remoteID}, nil
}

func (ps *pass) entering(key model.Key) bool {
	if _, ok := ps.inflight[key]; ok {
		return false
	}
	ps.inflight[key] = struct{}{}
	return true
}

func (ps *pass) leave(key model.Key) {
	delete(ps.inflight, key)
}

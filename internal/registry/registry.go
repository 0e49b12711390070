// Package registry owns the live document replicas of this process. Documents
// are created or loaded explicitly and released explicitly; nothing is cached
// implicitly.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"marginalia/api/internal/crdt"
	"marginalia/api/internal/snapshot"
)

var (
	ErrExists   = errors.New("document already open")
	ErrNotFound = errors.New("document not found")
)

type Registry struct {
	mu     sync.RWMutex
	docs   map[string]*crdt.Document
	site   uint32
	store  snapshot.Store
	loads  singleflight.Group
	logger logrus.FieldLogger
}

// New returns a registry whose local edits are attributed to site. A nil store
// keeps snapshots in memory.
func New(store snapshot.Store, site uint32, logger logrus.FieldLogger) *Registry {
	if store == nil {
		store = snapshot.NewMemoryStore()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		docs:   map[string]*crdt.Document{},
		site:   site,
		store:  store,
		logger: logger,
	}
}

// Create registers a new document holding text and stores its first snapshot.
func (r *Registry) Create(ctx context.Context, id, text string) (*crdt.Document, error) {
	r.mu.Lock()
	if _, ok := r.docs[id]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	doc := crdt.NewFromText(r.site, text)
	r.docs[id] = doc
	r.mu.Unlock()

	if err := r.save(ctx, id, doc); err != nil {
		r.mu.Lock()
		delete(r.docs, id)
		r.mu.Unlock()
		return nil, err
	}
	return doc, nil
}

// Get returns an open document.
func (r *Registry) Get(id string) (*crdt.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	return doc, ok
}

// Open returns the open document or restores it from its latest snapshot.
// Concurrent opens of the same document share one load.
func (r *Registry) Open(ctx context.Context, id string) (*crdt.Document, error) {
	if doc, ok := r.Get(id); ok {
		return doc, nil
	}
	v, err, _ := r.loads.Do(id, func() (any, error) {
		if doc, ok := r.Get(id); ok {
			return doc, nil
		}
		data, err := r.store.Load(ctx, id)
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", id, err)
		}
		doc, err := crdt.Restore(data)
		if err != nil {
			return nil, fmt.Errorf("restore document %s: %w", id, err)
		}
		if doc.Site() != r.site {
			doc = doc.Clone(r.site)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.docs[id]; ok {
			return existing, nil
		}
		r.docs[id] = doc
		r.logger.WithFields(logrus.Fields{"document_id": id, "length": doc.Length()}).Debug("document restored")
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*crdt.Document), nil
}

// Store persists the current state of an open document.
func (r *Registry) Store(ctx context.Context, id string) error {
	doc, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.save(ctx, id, doc)
}

// Destroy stores the document and releases it. The snapshot stays available to
// a later Open.
func (r *Registry) Destroy(ctx context.Context, id string) error {
	if err := r.Store(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.docs, id)
	r.mu.Unlock()
	return nil
}

// Purge releases the document and deletes its snapshots.
func (r *Registry) Purge(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.docs, id)
	r.mu.Unlock()
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// StoreAll persists every open document and reports the failures together.
func (r *Registry) StoreAll(ctx context.Context) error {
	var errs []error
	for _, id := range r.IDs() {
		if err := r.Store(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// IDs returns the open document IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) save(ctx context.Context, id string, doc *crdt.Document) error {
	data, err := doc.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot document %s: %w", id, err)
	}
	if err := r.store.Save(ctx, id, data); err != nil {
		return fmt.Errorf("store document %s: %w", id, err)
	}
	return nil
}

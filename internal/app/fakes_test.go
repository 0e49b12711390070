package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"marginalia/api/internal/config"
	"marginalia/api/internal/events"
	"marginalia/api/internal/history"
	"marginalia/api/internal/registry"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
)

// fakeStore keeps rows in memory. Fn fields override individual methods.
type fakeStore struct {
	mu        sync.Mutex
	documents map[string]store.Document
	comments  map[string]store.Comment
	replies   map[string][]store.Reply
	seq       int

	insertDocumentFn       func(context.Context, store.Document) error
	updateDocumentLengthFn func(context.Context, string, int) error
	markCommentOrphanedFn  func(context.Context, string, string, string) (bool, error)
	pingFn                 func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: map[string]store.Document{},
		comments:  map[string]store.Comment{},
		replies:   map[string][]store.Reply{},
	}
}

func (f *fakeStore) ListDocuments(context.Context) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Document, 0, len(f.documents))
	for _, item := range f.documents {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.documents[documentID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, item store.Document) error {
	if f.insertDocumentFn != nil {
		return f.insertDocumentFn(ctx, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateDocumentLength(ctx context.Context, documentID string, length int) error {
	if f.updateDocumentLengthFn != nil {
		if err := f.updateDocumentLengthFn(ctx, documentID, length); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	item.Length = length
	f.documents[documentID] = item
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, documentID string) ([]store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Comment, 0)
	for _, item := range f.comments {
		if item.DocumentID == documentID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (f *fakeStore) GetComment(_ context.Context, documentID, commentID string) (store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.comments[commentID]
	if !ok || item.DocumentID != documentID {
		return store.Comment{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) CountComments(ctx context.Context, documentID string) (int, error) {
	items, err := f.ListComments(ctx, documentID)
	return len(items), err
}

func (f *fakeStore) InsertComment(_ context.Context, comment store.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[comment.ID] = comment
	return nil
}

func (f *fakeStore) MarkCommentOrphaned(ctx context.Context, documentID, commentID, reason string) (bool, error) {
	if f.markCommentOrphanedFn != nil {
		return f.markCommentOrphanedFn(ctx, documentID, commentID, reason)
	}
	return f.update(documentID, commentID, func(c *store.Comment) bool {
		if c.OrphanedReason != "" {
			return false
		}
		c.OrphanedReason = reason
		return true
	})
}

func (f *fakeStore) ReanchorComment(_ context.Context, comment store.Comment) (bool, error) {
	return f.update(comment.DocumentID, comment.ID, func(c *store.Comment) bool {
		c.SelectionFrom, c.SelectionTo = comment.SelectionFrom, comment.SelectionTo
		c.FromRelative, c.ToRelative = comment.FromRelative, comment.ToRelative
		c.Quote = comment.Quote
		c.OrphanedReason = ""
		return true
	})
}

func (f *fakeStore) ResolveComment(_ context.Context, documentID, commentID, resolvedBy string) (bool, error) {
	return f.update(documentID, commentID, func(c *store.Comment) bool {
		if c.Status == store.CommentResolved {
			return false
		}
		c.Status, c.ResolvedBy = store.CommentResolved, resolvedBy
		return true
	})
}

func (f *fakeStore) ReopenComment(_ context.Context, documentID, commentID string) (bool, error) {
	return f.update(documentID, commentID, func(c *store.Comment) bool {
		if c.Status != store.CommentResolved {
			return false
		}
		c.Status, c.ResolvedBy = store.CommentOpen, ""
		return true
	})
}

func (f *fakeStore) DeleteComment(_ context.Context, documentID, commentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.comments[commentID]
	if !ok || item.DocumentID != documentID {
		return false, nil
	}
	delete(f.comments, commentID)
	return true, nil
}

func (f *fakeStore) InsertReply(_ context.Context, reply store.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[reply.CommentID] = append(f.replies[reply.CommentID], reply)
	return nil
}

func (f *fakeStore) ListReplies(_ context.Context, commentID string) ([]store.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Reply{}, f.replies[commentID]...), nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) update(documentID, commentID string, fn func(*store.Comment) bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.comments[commentID]
	if !ok || item.DocumentID != documentID {
		return false, nil
	}
	if !fn(&item) {
		return false, nil
	}
	f.comments[commentID] = item
	return true, nil
}

type fakeSearch struct {
	mu       sync.Mutex
	indexed  map[string]search.CommentRecord
	deleted  []string
	searchFn func(search.Query) search.Response
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexDocument(search.DocumentRecord) {}

func (f *fakeSearch) IndexComment(record search.CommentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string]search.CommentRecord{}
	}
	f.indexed[record.ID] = record
}

func (f *fakeSearch) DeleteComment(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []events.Event
	publishFn func(context.Context, events.Event) error
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	p.published = append(p.published, evt)
	p.mu.Unlock()
	if p.publishFn != nil {
		return p.publishFn(ctx, evt)
	}
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.published))
	for _, evt := range p.published {
		out = append(out, evt.Type)
	}
	return out
}

type testEnv struct {
	svc       *Service
	store     *fakeStore
	docs      *registry.Registry
	search    *fakeSearch
	publisher *recordingPublisher
	hook      *logtest.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	env := &testEnv{
		store:     newFakeStore(),
		docs:      registry.New(nil, 1, logger),
		search:    &fakeSearch{},
		publisher: &recordingPublisher{},
		hook:      hook,
	}
	env.svc = &Service{
		cfg:     config.Config{SiteID: 1},
		store:   env.store,
		docs:    env.docs,
		history: history.New(t.TempDir()),
		search:  env.search,
		events:  env.publisher,
		logger:  logger,
	}
	return env
}

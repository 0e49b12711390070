package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"marginalia/api/internal/anchor"
	"marginalia/api/internal/config"
	"marginalia/api/internal/crdt"
	"marginalia/api/internal/events"
	"marginalia/api/internal/history"
	"marginalia/api/internal/registry"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
	"marginalia/api/internal/util"
)

type CreateDocumentInput struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Author string `json:"author"`
}

type EditInput struct {
	Kind   string `json:"kind"`
	Offset int    `json:"offset"`
	Text   string `json:"text"`
	Count  int    `json:"count"`
}

type CreateCommentInput struct {
	Body   string `json:"body"`
	Author string `json:"author"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Mode   string `json:"mode"`
}

type ReanchorCommentInput struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Mode string `json:"mode"`
}

type ReplyInput struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

const (
	modeCRDT     = "crdt"
	modeAbsolute = "absolute"
)

type dataStore interface {
	ListDocuments(context.Context) ([]store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) error
	UpdateDocumentLength(context.Context, string, int) error
	ListComments(context.Context, string) ([]store.Comment, error)
	GetComment(context.Context, string, string) (store.Comment, error)
	CountComments(context.Context, string) (int, error)
	InsertComment(context.Context, store.Comment) error
	MarkCommentOrphaned(context.Context, string, string, string) (bool, error)
	ReanchorComment(context.Context, store.Comment) (bool, error)
	ResolveComment(context.Context, string, string, string) (bool, error)
	ReopenComment(context.Context, string, string) (bool, error)
	DeleteComment(context.Context, string, string) (bool, error)
	InsertReply(context.Context, store.Reply) error
	ListReplies(context.Context, string) ([]store.Reply, error)
	Ping(context.Context) error
}

type historyService interface {
	Init(string, history.Content, string) error
	Checkpoint(string, history.Content, string, string) (history.Commit, error)
	Head(string) (history.Content, history.Commit, error)
	Log(string, int) ([]history.Commit, error)
}

type searchService interface {
	Search(search.Query) search.Response
	IndexDocument(search.DocumentRecord)
	IndexComment(search.CommentRecord)
	DeleteComment(string)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	docs    *registry.Registry
	history historyService
	search  searchService
	events  events.Publisher
	logger  logrus.FieldLogger

	persistBackoff time.Duration
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	docs *registry.Registry,
	historySvc *history.Service,
	searchSvc *search.Service,
	publisher events.Publisher,
	logger logrus.FieldLogger,
) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		docs:   docs,
		events: publisher,
		logger: logger,

		persistBackoff: 50 * time.Millisecond,
	}
	if historySvc != nil {
		s.history = historySvc
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) ListDocuments(ctx context.Context) ([]map[string]any, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, item := range documents {
		_, tracked := s.docs.Get(item.ID)
		items = append(items, map[string]any{
			"id":        item.ID,
			"title":     item.Title,
			"length":    item.Length,
			"site":      item.SiteID,
			"open":      tracked,
			"createdBy": item.CreatedBy,
			"updatedAt": item.UpdatedAt,
		})
	}
	return items, nil
}

func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	author := strings.TrimSpace(input.Author)
	if author == "" {
		author = "Marginalia"
	}
	documentID := strings.TrimSpace(input.ID)
	if documentID == "" {
		documentID = util.NewID("doc")
	}

	doc, err := s.docs.Create(ctx, documentID, input.Text)
	if errors.Is(err, registry.ErrExists) {
		return nil, domainError(http.StatusConflict, "DOCUMENT_EXISTS", "Document already exists", map[string]any{"id": documentID})
	}
	if err != nil {
		return nil, err
	}

	row := store.Document{
		ID:        documentID,
		Title:     title,
		SiteID:    doc.Site(),
		Length:    doc.Length(),
		CreatedBy: author,
	}
	if err := s.store.InsertDocument(ctx, row); err != nil {
		if purgeErr := s.docs.Purge(ctx, documentID); purgeErr != nil {
			s.logger.WithError(purgeErr).WithField("document_id", documentID).Warn("rollback tracked document")
		}
		return nil, err
	}

	if s.history != nil {
		if err := s.history.Init(documentID, historyContent(title, doc), author); err != nil {
			s.logger.WithError(err).WithField("document_id", documentID).Warn("history baseline failed")
		}
	}
	if s.search != nil {
		s.search.IndexDocument(search.DocumentRecord{ID: documentID, Title: title})
	}
	s.publish(ctx, events.New(events.DocumentCreated, documentID, ""))

	return documentPayload(row, doc, 0), nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (map[string]any, error) {
	row, doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountComments(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return documentPayload(row, doc, count), nil
}

// ApplyEdits applies local edits as one batch. Either every edit lands or none.
func (s *Service) ApplyEdits(ctx context.Context, documentID string, edits []EditInput) (map[string]any, error) {
	row, doc, err := s.requireTracked(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "edits are required", nil)
	}

	ops, err := doc.Batch(func(tx *crdt.Tx) error {
		for i, edit := range edits {
			switch strings.ToLower(strings.TrimSpace(edit.Kind)) {
			case "insert":
				if err := tx.Insert(edit.Offset, edit.Text); err != nil {
					return fmt.Errorf("edit %d: %w", i, err)
				}
			case "delete":
				if err := tx.Delete(edit.Offset, edit.Count); err != nil {
					return fmt.Errorf("edit %d: %w", i, err)
				}
			default:
				return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("edit %d: unknown kind %q", i, edit.Kind), nil)
			}
		}
		return nil
	})
	if errors.Is(err, crdt.ErrOutOfRange) {
		return nil, domainError(http.StatusUnprocessableEntity, "EDIT_OUT_OF_RANGE", err.Error(), map[string]any{"length": doc.Length()})
	}
	if err != nil {
		return nil, err
	}

	if err := s.persistDocument(ctx, row.ID, doc); err != nil {
		return nil, err
	}
	return map[string]any{
		"ops":    nonNilOps(ops),
		"length": doc.Length(),
		"clock":  doc.Clock(),
	}, nil
}

// MergeOps integrates operations produced by another replica.
func (s *Service) MergeOps(ctx context.Context, documentID string, ops []crdt.Op) (map[string]any, error) {
	row, doc, err := s.requireTracked(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := doc.Apply(ops...); err != nil {
		if errors.Is(err, crdt.ErrUnknownCharacter) || errors.Is(err, crdt.ErrInvalidOp) {
			return nil, domainError(http.StatusUnprocessableEntity, "INVALID_OPS", err.Error(), nil)
		}
		return nil, err
	}
	if err := s.persistDocument(ctx, row.ID, doc); err != nil {
		return nil, err
	}
	return map[string]any{
		"applied": len(ops),
		"length":  doc.Length(),
		"clock":   doc.Clock(),
	}, nil
}

func (s *Service) Checkpoint(ctx context.Context, documentID, author, message string) (map[string]any, error) {
	if s.history == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "History is not configured", nil)
	}
	row, doc, err := s.requireTracked(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(author) == "" {
		author = "Marginalia"
	}
	if strings.TrimSpace(message) == "" {
		message = "Checkpoint"
	}

	content := historyContent(row.Title, doc)
	commit, err := s.history.Checkpoint(documentID, content, author, message)
	if errors.Is(err, history.ErrNoRepo) {
		if err := s.history.Init(documentID, content, author); err != nil {
			return nil, err
		}
		_, commit, err = s.history.Head(documentID)
	}
	if errors.Is(err, history.ErrNoChanges) {
		return map[string]any{"commit": nil, "unchanged": true}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"commit": commit, "unchanged": false}, nil
}

func (s *Service) History(ctx context.Context, documentID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	commits := []history.Commit{}
	if s.history != nil {
		items, err := s.history.Log(documentID, limit)
		if err != nil && !errors.Is(err, history.ErrNoRepo) {
			return nil, err
		}
		if items != nil {
			commits = items
		}
	}
	return map[string]any{"documentId": documentID, "commits": commits}, nil
}

// CloseSession stores the replica's snapshot and releases it.
func (s *Service) CloseSession(ctx context.Context, documentID string) error {
	err := s.docs.Destroy(ctx, documentID)
	if errors.Is(err, registry.ErrNotFound) {
		return domainError(http.StatusNotFound, "DOCUMENT_NOT_OPEN", "Document is not open", nil)
	}
	return err
}

func (s *Service) CreateComment(ctx context.Context, documentID string, input CreateCommentInput) (map[string]any, error) {
	body := strings.TrimSpace(input.Body)
	author := strings.TrimSpace(input.Author)
	if body == "" || author == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body and author are required", nil)
	}
	row, doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	stored, quote, err := buildAnchor(doc, input.From, input.To, input.Mode)
	if err != nil {
		return nil, err
	}

	comment := store.Comment{
		ID:            util.NewID("cmt"),
		DocumentID:    row.ID,
		Body:          body,
		Quote:         quote,
		Author:        author,
		SelectionFrom: input.From,
		SelectionTo:   input.To,
		FromRelative:  stored.FromRelative,
		ToRelative:    stored.ToRelative,
		Status:        store.CommentOpen,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}

	s.indexComment(comment)
	evt := events.New(events.CommentCreated, row.ID, comment.ID)
	evt.From, evt.To = input.From, input.To
	s.publish(ctx, evt)

	return commentPayload(comment, resolveComment(doc, comment), doc), nil
}

// ListComments resolves every comment against the live document. Comments
// whose anchor stopped resolving are marked orphaned the first time it is
// observed.
func (s *Service) ListComments(ctx context.Context, documentID string) (map[string]any, error) {
	row, doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, documentID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(comments))
	orphaned := 0
	for _, comment := range comments {
		resolved := resolveComment(doc, comment)
		if s.orphanIfLost(ctx, doc, &comment, resolved) {
			orphaned++
		}
		items = append(items, commentPayload(comment, resolved, doc))
	}
	return map[string]any{
		"documentId":    row.ID,
		"tracked":       doc != nil,
		"comments":      items,
		"newlyOrphaned": orphaned,
	}, nil
}

func (s *Service) GetComment(ctx context.Context, documentID, commentID string) (map[string]any, error) {
	_, doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, documentID, commentID)
	if err != nil {
		return nil, err
	}
	replies, err := s.store.ListReplies(ctx, commentID)
	if err != nil {
		return nil, err
	}

	resolved := resolveComment(doc, comment)
	s.orphanIfLost(ctx, doc, &comment, resolved)
	payload := commentPayload(comment, resolved, doc)
	payload["replies"] = repliesPayload(replies)
	return payload, nil
}

func (s *Service) ReplyComment(ctx context.Context, documentID, commentID string, input ReplyInput) (map[string]any, error) {
	body := strings.TrimSpace(input.Body)
	author := strings.TrimSpace(input.Author)
	if body == "" || author == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body and author are required", nil)
	}
	if _, err := s.store.GetComment(ctx, documentID, commentID); err != nil {
		return nil, err
	}
	reply := store.Reply{
		ID:        util.NewID("rep"),
		CommentID: commentID,
		Author:    author,
		Body:      body,
	}
	if err := s.store.InsertReply(ctx, reply); err != nil {
		return nil, err
	}
	return map[string]any{"id": reply.ID, "commentId": commentID, "author": author, "body": body}, nil
}

func (s *Service) ResolveComment(ctx context.Context, documentID, commentID, resolvedBy string) (map[string]any, error) {
	if strings.TrimSpace(resolvedBy) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "resolvedBy is required", nil)
	}
	comment, err := s.store.GetComment(ctx, documentID, commentID)
	if err != nil {
		return nil, err
	}
	changed, err := s.store.ResolveComment(ctx, documentID, commentID, resolvedBy)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "COMMENT_ALREADY_RESOLVED", "Comment is already resolved", nil)
	}

	comment.Status = store.CommentResolved
	comment.ResolvedBy = resolvedBy
	s.indexComment(comment)
	s.publish(ctx, events.New(events.CommentResolved, documentID, commentID))
	return map[string]any{"id": commentID, "status": comment.Status, "resolvedBy": resolvedBy}, nil
}

func (s *Service) ReopenComment(ctx context.Context, documentID, commentID string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, documentID, commentID)
	if err != nil {
		return nil, err
	}
	changed, err := s.store.ReopenComment(ctx, documentID, commentID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "COMMENT_NOT_RESOLVED", "Comment is not resolved", nil)
	}

	comment.Status = store.CommentOpen
	comment.ResolvedBy = ""
	s.indexComment(comment)
	s.publish(ctx, events.New(events.CommentReopened, documentID, commentID))
	return map[string]any{"id": commentID, "status": comment.Status}, nil
}

// ReanchorComment replaces a comment's anchor with a new one built from the
// current document. The old anchor is discarded wholesale.
func (s *Service) ReanchorComment(ctx context.Context, documentID, commentID string, input ReanchorCommentInput) (map[string]any, error) {
	_, doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, documentID, commentID)
	if err != nil {
		return nil, err
	}

	stored, quote, err := buildAnchor(doc, input.From, input.To, input.Mode)
	if err != nil {
		return nil, err
	}
	comment.SelectionFrom = input.From
	comment.SelectionTo = input.To
	comment.FromRelative = stored.FromRelative
	comment.ToRelative = stored.ToRelative
	comment.Quote = quote
	comment.OrphanedReason = ""

	changed, err := s.store.ReanchorComment(ctx, comment)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
	}

	s.indexComment(comment)
	evt := events.New(events.CommentReanchored, documentID, commentID)
	evt.From, evt.To = input.From, input.To
	s.publish(ctx, evt)
	return commentPayload(comment, resolveComment(doc, comment), doc), nil
}

func (s *Service) DeleteComment(ctx context.Context, documentID, commentID string) error {
	changed, err := s.store.DeleteComment(ctx, documentID, commentID)
	if err != nil {
		return err
	}
	if !changed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
	}
	if s.search != nil {
		s.search.DeleteComment(commentID)
	}
	s.publish(ctx, events.New(events.CommentDeleted, documentID, commentID))
	return nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// loadDocument returns the document row and its live replica. The replica is
// nil when no snapshot exists, in which case only absolute anchors apply.
func (s *Service) loadDocument(ctx context.Context, documentID string) (store.Document, *crdt.Document, error) {
	row, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, nil, err
	}
	doc, err := s.docs.Open(ctx, documentID)
	if errors.Is(err, registry.ErrNotFound) {
		return row, nil, nil
	}
	if err != nil {
		return store.Document{}, nil, err
	}
	return row, doc, nil
}

func (s *Service) requireTracked(ctx context.Context, documentID string) (store.Document, *crdt.Document, error) {
	row, doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, nil, err
	}
	if doc == nil {
		return store.Document{}, nil, domainError(http.StatusConflict, "DOCUMENT_NOT_TRACKED", "Document has no tracked content", nil)
	}
	return row, doc, nil
}

const persistAttempts = 3

// persistDocument saves the snapshot and the row length after an in-memory
// commit. The live document keeps the edit either way, so transient failures are
// retried before the caller sees an error.
func (s *Service) persistDocument(ctx context.Context, documentID string, doc *crdt.Document) error {
	var err error
	for attempt := 0; attempt < persistAttempts; attempt++ {
		if attempt > 0 {
			if waitErr := s.waitBackoff(ctx, attempt); waitErr != nil {
				break
			}
		}
		err = s.docs.Store(ctx, documentID)
		if err == nil {
			err = s.store.UpdateDocumentLength(ctx, documentID, doc.Length())
		}
		if err == nil || errors.Is(err, sql.ErrNoRows) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"document_id": documentID,
			"length":      doc.Length(),
		}).Error("document state not persisted")
	}
	return err
}

func (s *Service) waitBackoff(ctx context.Context, attempt int) error {
	delay := s.persistBackoff * time.Duration(1<<(attempt-1))
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) orphanIfLost(ctx context.Context, doc *crdt.Document, comment *store.Comment, resolved anchor.ResolvedRange) bool {
	if resolved.Valid || doc == nil || comment.Orphaned() {
		return false
	}
	reason := orphanReason(resolved)
	changed, err := s.store.MarkCommentOrphaned(ctx, comment.DocumentID, comment.ID, reason)
	if err != nil {
		s.logger.WithError(err).WithField("comment_id", comment.ID).Warn("mark comment orphaned")
		return false
	}
	comment.OrphanedReason = reason
	if !changed {
		return false
	}

	s.indexComment(*comment)
	evt := events.New(events.CommentOrphaned, comment.DocumentID, comment.ID)
	evt.Reason = reason
	s.publish(ctx, evt)
	return true
}

func (s *Service) indexComment(comment store.Comment) {
	if s.search == nil {
		return
	}
	s.search.IndexComment(search.CommentRecord{
		ID:         comment.ID,
		DocumentID: comment.DocumentID,
		Body:       comment.Body,
		Quote:      comment.Quote,
		Author:     comment.Author,
		Status:     comment.Status,
		Orphaned:   comment.Orphaned(),
	})
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":       evt.Type,
			"document_id": evt.DocumentID,
		}).Warn("publish event")
	}
}

// buildAnchor validates [from, to) and returns its persisted anchor and quoted
// text. CRDT anchors need a live replica; absolute anchors are used when asked
// for or when the document is not tracked.
func buildAnchor(doc *crdt.Document, from, to int, mode string) (anchor.Stored, string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "" && mode != modeCRDT && mode != modeAbsolute {
		return anchor.Stored{}, "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown anchor mode %q", mode), nil)
	}
	if from < 0 || to < from {
		return anchor.Stored{}, "", domainError(http.StatusUnprocessableEntity, "INVALID_RANGE", "from and to must satisfy 0 <= from <= to", map[string]any{"from": from, "to": to})
	}
	if mode == modeCRDT && doc == nil {
		return anchor.Stored{}, "", domainError(http.StatusConflict, "DOCUMENT_NOT_TRACKED", "Document has no tracked content", nil)
	}
	if doc != nil && to > doc.Length() {
		return anchor.Stored{}, "", domainError(http.StatusUnprocessableEntity, "INVALID_RANGE", "range exceeds document length", map[string]any{"from": from, "to": to, "length": doc.Length()})
	}

	var (
		a   anchor.Anchor
		err error
	)
	if doc == nil || mode == modeAbsolute {
		a, err = anchor.BuildFallback(from, to)
	} else {
		a, err = anchor.Build(doc, from, to)
	}
	if err != nil {
		return anchor.Stored{}, "", domainError(http.StatusUnprocessableEntity, "INVALID_RANGE", err.Error(), nil)
	}
	stored, err := anchor.Encode(a)
	if err != nil {
		return anchor.Stored{}, "", err
	}

	quote := ""
	if doc != nil {
		quote, _ = doc.Slice(from, to)
	}
	return stored, quote, nil
}

func resolveComment(doc *crdt.Document, comment store.Comment) anchor.ResolvedRange {
	return comment.Anchor().Range(tracked(doc), comment.SelectionFrom, comment.SelectionTo)
}

// tracked keeps a nil replica a nil interface.
func tracked(doc *crdt.Document) anchor.Tracked {
	if doc == nil {
		return nil
	}
	return doc
}

func orphanReason(resolved anchor.ResolvedRange) string {
	if errors.Is(resolved.Err, anchor.ErrContentDeleted) {
		return "content_deleted"
	}
	return resolved.Status.String()
}

func historyContent(title string, doc *crdt.Document) history.Content {
	return history.Content{
		Title:  title,
		Text:   doc.Text(),
		Length: doc.Length(),
		Clock:  doc.Clock(),
	}
}

func documentPayload(row store.Document, doc *crdt.Document, commentCount int) map[string]any {
	payload := map[string]any{
		"id":           row.ID,
		"title":        row.Title,
		"site":         row.SiteID,
		"length":       row.Length,
		"text":         "",
		"tracked":      doc != nil,
		"commentCount": commentCount,
		"createdBy":    row.CreatedBy,
	}
	if doc != nil {
		payload["text"] = doc.Text()
		payload["length"] = doc.Length()
		payload["site"] = doc.Site()
		payload["clock"] = doc.Clock()
	}
	return payload
}

func commentPayload(comment store.Comment, resolved anchor.ResolvedRange, doc *crdt.Document) map[string]any {
	mode := "none"
	if !comment.Anchor().Empty() {
		mode = modeCRDT
		if comment.Anchor().IsFallback() {
			mode = modeAbsolute
		}
	}
	var highlight any
	if resolved.Valid {
		h := map[string]any{"from": resolved.From, "to": resolved.To}
		if doc != nil {
			if text, err := doc.Slice(resolved.From, resolved.To); err == nil {
				h["text"] = text
			}
		}
		highlight = h
	}
	var orphanedReason any
	if comment.Orphaned() {
		orphanedReason = comment.OrphanedReason
	}
	return map[string]any{
		"id":             comment.ID,
		"documentId":     comment.DocumentID,
		"body":           comment.Body,
		"quote":          comment.Quote,
		"author":         comment.Author,
		"status":         comment.Status,
		"anchorMode":     mode,
		"selection":      map[string]any{"from": comment.SelectionFrom, "to": comment.SelectionTo},
		"highlight":      highlight,
		"resolution":     resolved.Status.String(),
		"orphaned":       comment.Orphaned(),
		"orphanedReason": orphanedReason,
		"createdAt":      comment.CreatedAt,
	}
}

func repliesPayload(replies []store.Reply) []map[string]any {
	items := make([]map[string]any, 0, len(replies))
	for _, reply := range replies {
		items = append(items, map[string]any{
			"id":        reply.ID,
			"author":    reply.Author,
			"body":      reply.Body,
			"createdAt": reply.CreatedAt,
		})
	}
	return items
}

func nonNilOps(ops []crdt.Op) []crdt.Op {
	if ops == nil {
		return []crdt.Op{}
	}
	return ops
}

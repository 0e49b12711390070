package search

import (
	"context"

	"github.com/sirupsen/logrus"
)

// meiliBackend is the part of Meili the facade uses.
type meiliBackend interface {
	Searcher
	IndexDocument(DocumentRecord) error
	IndexComment(CommentRecord) error
	DeleteComment(id string) error
	IndexDocuments([]DocumentRecord) error
	IndexComments([]CommentRecord) error
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  meiliBackend
	pgfts  Searcher
	logger logrus.FieldLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger logrus.FieldLogger) *Service {
	s := &Service{logger: logger}
	if meili != nil {
		s.meili = meili
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	return s
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WithError(err).Warn("search: meilisearch error, falling back to pgfts")
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.WithError(err).Error("search: pgfts error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument indexes a document (fire-and-forget to Meilisearch).
func (s *Service) IndexDocument(doc DocumentRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexDocument(doc); err != nil {
			s.logger.WithError(err).WithField("document_id", doc.ID).Warn("search: index document")
		}
	}()
}

// IndexComment indexes a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(c CommentRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			s.logger.WithError(err).WithField("comment_id", c.ID).Warn("search: index comment")
		}
	}()
}

// DeleteComment removes a comment from the search index (fire-and-forget).
func (s *Service) DeleteComment(id string) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(id); err != nil {
			s.logger.WithError(err).WithField("comment_id", id).Warn("search: delete comment")
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch.
func (s *Service) ReindexAll(documents []DocumentRecord, comments []CommentRecord) {
	if !s.meiliReady() {
		return
	}
	if err := s.meili.IndexDocuments(documents); err != nil {
		s.logger.WithError(err).Warn("search: reindex documents")
	}
	if err := s.meili.IndexComments(comments); err != nil {
		s.logger.WithError(err).Warn("search: reindex comments")
	}
}

// recordLoader loads every searchable record from the primary database.
type recordLoader interface {
	LoadAllRecords(ctx context.Context) ([]DocumentRecord, []CommentRecord, error)
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	loader, ok := s.pgfts.(recordLoader)
	if !s.meiliReady() || !ok {
		return
	}
	documents, comments, err := loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.WithError(err).Error("search: reindex load failed")
		return
	}
	s.ReindexAll(documents, comments)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

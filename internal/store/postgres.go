package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const documentColumns = `id, title, site_id, length, created_by_name, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var item Document
	var siteID int64
	if err := row.Scan(&item.ID, &item.Title, &siteID, &item.Length, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Document{}, err
	}
	item.SiteID = uint32(siteID)
	return item, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id=$1
	`, documentID))
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, site_id, length, created_by_name)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Title, int64(item.SiteID), item.Length, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentLength(ctx context.Context, documentID string, length int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET length=$2, updated_at=NOW()
		WHERE id=$1
	`, documentID, length)
	if err != nil {
		return fmt.Errorf("update document length: %w", err)
	}
	return nil
}

const commentColumns = `id, document_id, body, quote, author_name, selection_from, selection_to,
	from_relative, to_relative, status, COALESCE(orphaned_reason, ''), COALESCE(resolved_by_name, ''),
	created_at, updated_at`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	var fromRelative, toRelative sql.NullString
	if err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.Body,
		&item.Quote,
		&item.Author,
		&item.SelectionFrom,
		&item.SelectionTo,
		&fromRelative,
		&toRelative,
		&item.Status,
		&item.OrphanedReason,
		&item.ResolvedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Comment{}, err
	}
	if fromRelative.Valid {
		item.FromRelative = &fromRelative.String
	}
	if toRelative.Valid {
		item.ToRelative = &toRelative.String
	}
	return item, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, documentID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE document_id=$1
		ORDER BY created_at ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, documentID, commentID string) (Comment, error) {
	return scanComment(s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE document_id=$1 AND id=$2
	`, documentID, commentID))
}

func (s *PostgresStore) CountComments(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE document_id=$1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	status := comment.Status
	if status == "" {
		status = CommentOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, document_id, body, quote, author_name, selection_from, selection_to, from_relative, to_relative, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, comment.ID, comment.DocumentID, comment.Body, comment.Quote, comment.Author,
		comment.SelectionFrom, comment.SelectionTo, nullString(comment.FromRelative), nullString(comment.ToRelative), status)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// MarkCommentOrphaned records why a comment lost its range. It reports false
// when the comment was already orphaned.
func (s *PostgresStore) MarkCommentOrphaned(ctx context.Context, documentID, commentID, reason string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET orphaned_reason=$3, orphaned_at=NOW(), updated_at=NOW()
		WHERE document_id=$1 AND id=$2 AND orphaned_reason IS NULL
	`, documentID, commentID, reason)
	if err != nil {
		return false, fmt.Errorf("mark comment orphaned: %w", err)
	}
	return rowsChanged(result, "mark comment orphaned rows")
}

// ReanchorComment replaces the whole anchor of a comment and clears its
// orphaned state.
func (s *PostgresStore) ReanchorComment(ctx context.Context, comment Comment) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET selection_from=$3, selection_to=$4, from_relative=$5, to_relative=$6, quote=$7,
			orphaned_reason=NULL, orphaned_at=NULL, updated_at=NOW()
		WHERE document_id=$1 AND id=$2
	`, comment.DocumentID, comment.ID, comment.SelectionFrom, comment.SelectionTo,
		nullString(comment.FromRelative), nullString(comment.ToRelative), comment.Quote)
	if err != nil {
		return false, fmt.Errorf("reanchor comment: %w", err)
	}
	return rowsChanged(result, "reanchor comment rows")
}

func (s *PostgresStore) ResolveComment(ctx context.Context, documentID, commentID, resolvedBy string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET status='RESOLVED', resolved_by_name=$3, resolved_at=NOW(), updated_at=NOW()
		WHERE document_id=$1 AND id=$2 AND status <> 'RESOLVED'
	`, documentID, commentID, resolvedBy)
	if err != nil {
		return false, fmt.Errorf("resolve comment: %w", err)
	}
	return rowsChanged(result, "resolve comment rows")
}

func (s *PostgresStore) ReopenComment(ctx context.Context, documentID, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET status='OPEN', resolved_by_name=NULL, resolved_at=NULL, updated_at=NOW()
		WHERE document_id=$1 AND id=$2 AND status='RESOLVED'
	`, documentID, commentID)
	if err != nil {
		return false, fmt.Errorf("reopen comment: %w", err)
	}
	return rowsChanged(result, "reopen comment rows")
}

func (s *PostgresStore) DeleteComment(ctx context.Context, documentID, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE document_id=$1 AND id=$2`, documentID, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	return rowsChanged(result, "delete comment rows")
}

func (s *PostgresStore) InsertReply(ctx context.Context, reply Reply) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replies (id, comment_id, author_name, body)
		VALUES ($1, $2, $3, $4)
	`, reply.ID, reply.CommentID, reply.Author, reply.Body)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListReplies(ctx context.Context, commentID string) ([]Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, comment_id, author_name, body, created_at
		FROM replies
		WHERE comment_id=$1
		ORDER BY created_at ASC
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	items := make([]Reply, 0)
	for rows.Next() {
		var item Reply
		if err := rows.Scan(&item.ID, &item.CommentID, &item.Author, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func rowsChanged(result sql.Result, op string) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

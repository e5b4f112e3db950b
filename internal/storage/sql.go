package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/llmdiag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyFingerprint is returned when writing an absent fingerprint
	ErrEmptyFingerprint = errors.New("fingerprint cannot be empty")
)

// SQLStorage implements the Storage interface on top of database/sql.
// It serves both SQLite and PostgreSQL; see NewSQLiteStorage and NewPostgresStorage.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	driver  string
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqlTx wraps a SQL transaction
type sqlTx struct {
	tx      *sql.Tx
	storage *SQLStorage
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the DB querier
func (s *SQLStorage) querier() querier {
	return s.db
}

// Ledger operations

func (s *SQLStorage) getFingerprintWithQuerier(ctx context.Context, q querier, id types.DocumentID) (types.Fingerprint, error) {
	query := s.dialect.rebind(`SELECT fingerprint FROM documents WHERE document_id = ?`)
	var fp string
	err := q.QueryRowContext(ctx, query, string(id)).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get fingerprint: %w", err)
	}
	return types.Fingerprint(fp), nil
}

func (s *SQLStorage) GetFingerprint(ctx context.Context, id types.DocumentID) (types.Fingerprint, error) {
	return s.getFingerprintWithQuerier(ctx, s.querier(), id)
}

func (s *SQLStorage) setFingerprintWithQuerier(ctx context.Context, q querier, id types.DocumentID, fp types.Fingerprint) error {
	if fp.IsZero() {
		return ErrEmptyFingerprint
	}
	query := s.dialect.rebind(`
		INSERT INTO documents (document_id, fingerprint, analyzed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			analyzed_at = excluded.analyzed_at,
			updated_at = excluded.updated_at
	`)
	now := time.Now().UTC()
	if _, err := q.ExecContext(ctx, query, string(id), string(fp), now, now, now); err != nil {
		return fmt.Errorf("failed to set fingerprint: %w", err)
	}
	return nil
}

func (s *SQLStorage) SetFingerprint(ctx context.Context, id types.DocumentID, fp types.Fingerprint) error {
	return s.setFingerprintWithQuerier(ctx, s.querier(), id, fp)
}

// compareAndSetWithQuerier performs the swap in a single statement so that two
// cycles racing on the same document cannot both win.
func (s *SQLStorage) compareAndSetWithQuerier(ctx context.Context, q querier, id types.DocumentID, expected, next types.Fingerprint) (bool, error) {
	if next.IsZero() {
		return false, ErrEmptyFingerprint
	}
	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	if expected.IsZero() {
		result, err = q.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO documents (document_id, fingerprint, analyzed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (document_id) DO NOTHING
		`), string(id), string(next), now, now, now)
	} else {
		result, err = q.ExecContext(ctx, s.dialect.rebind(`
			UPDATE documents
			SET fingerprint = ?, analyzed_at = ?, updated_at = ?
			WHERE document_id = ? AND fingerprint = ?
		`), string(next), now, now, string(id), string(expected))
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-set fingerprint: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *SQLStorage) CompareAndSetFingerprint(ctx context.Context, id types.DocumentID, expected, next types.Fingerprint) (bool, error) {
	return s.compareAndSetWithQuerier(ctx, s.querier(), id, expected, next)
}

// Issue operations

func (s *SQLStorage) replaceIssuesWithQuerier(ctx context.Context, q querier, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	if _, err := q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM issues WHERE document_id = ?`), string(id)); err != nil {
		return fmt.Errorf("failed to clear issues: %w", err)
	}

	query := s.dialect.rebind(`
		INSERT INTO issues (document_id, position, fingerprint, file_name, line, original_line,
		                    col, length, message, line_content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	now := time.Now().UTC()
	for i, issue := range issues {
		_, err := q.ExecContext(ctx, query,
			string(id), i, string(fp), issue.FileName, issue.Line, issue.OriginalLine,
			issue.Column, issue.Length, issue.Message, issue.LineContent, string(issue.Status), now)
		if err != nil {
			return fmt.Errorf("failed to store issue %d: %w", i, err)
		}
	}
	return nil
}

// ReplaceIssues runs the delete and inserts in one transaction
func (s *SQLStorage) ReplaceIssues(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ReplaceIssues(ctx, id, fp, issues); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStorage) listIssuesWithQuerier(ctx context.Context, q querier, id types.DocumentID) ([]types.ReconciledIssue, error) {
	query := s.dialect.rebind(`
		SELECT file_name, line, original_line, col, length, message, line_content, status
		FROM issues
		WHERE document_id = ?
		ORDER BY position
	`)
	rows, err := q.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	issues := make([]types.ReconciledIssue, 0)
	for rows.Next() {
		var r types.ReconciledIssue
		var status string
		if err := rows.Scan(&r.FileName, &r.Line, &r.OriginalLine, &r.Column,
			&r.Length, &r.Message, &r.LineContent, &status); err != nil {
			return nil, err
		}
		r.Status = types.ReconcileStatus(status)
		issues = append(issues, r)
	}
	return issues, rows.Err()
}

func (s *SQLStorage) ListIssues(ctx context.Context, id types.DocumentID) ([]types.ReconciledIssue, error) {
	return s.listIssuesWithQuerier(ctx, s.querier(), id)
}

func (s *SQLStorage) deleteIssuesWithQuerier(ctx context.Context, q querier, id types.DocumentID) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM issues WHERE document_id = ?`), string(id))
	return err
}

func (s *SQLStorage) DeleteIssues(ctx context.Context, id types.DocumentID) error {
	return s.deleteIssuesWithQuerier(ctx, s.querier(), id)
}

// Document operations

func (s *SQLStorage) GetDocument(ctx context.Context, id types.DocumentID) (*Document, error) {
	query := s.dialect.rebind(`
		SELECT document_id, fingerprint, analyzed_at, created_at, updated_at
		FROM documents
		WHERE document_id = ?
	`)
	var doc Document
	var docID, fp string
	err := s.db.QueryRowContext(ctx, query, string(id)).Scan(
		&docID, &fp, &doc.AnalyzedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.ID = types.DocumentID(docID)
	doc.Fingerprint = types.Fingerprint(fp)
	return &doc, nil
}

func (s *SQLStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, fingerprint, analyzed_at, created_at, updated_at
		FROM documents
		ORDER BY document_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		var doc Document
		var docID, fp string
		if err := rows.Scan(&docID, &fp, &doc.AnalyzedAt, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.ID = types.DocumentID(docID)
		doc.Fingerprint = types.Fingerprint(fp)
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DeleteDocument forgets the ledger entry and the stored issues for id
func (s *SQLStorage) DeleteDocument(ctx context.Context, id types.DocumentID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteIssuesWithQuerier(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM documents WHERE document_id = ?`), string(id)); err != nil {
		return err
	}
	return tx.Commit()
}

// Status operations

func (s *SQLStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Driver: s.driver}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&status.DocumentsCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues").Scan(&status.IssuesCount); err != nil {
		return nil, err
	}

	if status.DocumentsCount > 0 {
		err := s.db.QueryRowContext(ctx,
			"SELECT analyzed_at FROM documents ORDER BY analyzed_at DESC LIMIT 1").Scan(&status.LastAnalyzedAt)
		if err != nil {
			return nil, err
		}
	}

	version, err := currentVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	return status, nil
}

// Transaction operations

func (t *sqlTx) GetFingerprint(ctx context.Context, id types.DocumentID) (types.Fingerprint, error) {
	return t.storage.getFingerprintWithQuerier(ctx, t.tx, id)
}

func (t *sqlTx) SetFingerprint(ctx context.Context, id types.DocumentID, fp types.Fingerprint) error {
	return t.storage.setFingerprintWithQuerier(ctx, t.tx, id, fp)
}

func (t *sqlTx) CompareAndSetFingerprint(ctx context.Context, id types.DocumentID, expected, next types.Fingerprint) (bool, error) {
	return t.storage.compareAndSetWithQuerier(ctx, t.tx, id, expected, next)
}

func (t *sqlTx) ReplaceIssues(ctx context.Context, id types.DocumentID, fp types.Fingerprint, issues []types.ReconciledIssue) error {
	return t.storage.replaceIssuesWithQuerier(ctx, t.tx, id, fp, issues)
}

func (t *sqlTx) ListIssues(ctx context.Context, id types.DocumentID) ([]types.ReconciledIssue, error) {
	return t.storage.listIssuesWithQuerier(ctx, t.tx, id)
}

func (t *sqlTx) DeleteIssues(ctx context.Context, id types.DocumentID) error {
	return t.storage.deleteIssuesWithQuerier(ctx, t.tx, id)
}

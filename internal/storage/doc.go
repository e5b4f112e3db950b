// Package storage persists the fingerprint ledger and the published issues.
//
// # Database Schema
//
// Tables:
//   - documents: one row per document with the fingerprint of its last
//     successfully analyzed text
//   - issues: the issues last published for a document, in order
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	db, err := storage.Open(ctx, "~/.llmdiag/state.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	prev, err := db.GetFingerprint(ctx, id)
//	if errors.Is(err, storage.ErrNotFound) {
//	    // never analyzed
//	}
//
// # Compare-and-set
//
// A cycle records its fingerprint with CompareAndSetFingerprint, passing the
// value it observed when it started. If another cycle has written in the
// meantime the swap fails and the caller drops its result:
//
//	ok, err := db.CompareAndSetFingerprint(ctx, id, prev, next)
//	if err == nil && !ok {
//	    // stale
//	}
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.ReplaceIssues(ctx, id, fp, issues); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Backends
//
// Open chooses PostgreSQL (via pgx) for postgres:// DSNs and SQLite for
// everything else. The SQLite driver is selected by build tag:
//
//   - default or purego: modernc.org/sqlite, no C compiler needed
//
//   - sqlite_cgo: github.com/mattn/go-sqlite3
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo"
package storage

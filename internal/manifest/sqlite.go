package manifest

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eargollo/treesum/internal/hash"
	_ "modernc.org/sqlite"
)

// busyTimeoutMS is how long SQLite waits (ms) before returning SQLITE_BUSY
// when another process holds the manifest database.
const busyTimeoutMS = 30000

// insertBatchSize is the max rows per INSERT statement.
const insertBatchSize = 500

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	root         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	file_count   INTEGER NOT NULL,
	failed_count INTEGER NOT NULL,
	byte_count   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS files (
	run_id   INTEGER NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	path     TEXT NOT NULL,
	hash     TEXT NOT NULL,
	size     INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS failures (
	run_id   INTEGER NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	path     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	detail   TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// openSQLite opens (or creates) the manifest database at path, with a busy
// timeout on every pooled connection and WAL mode for write throughput.
func openSQLite(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_busy_timeout=" + strconv.Itoa(busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// WriteSQLite appends one run to the manifest database at path: a row in
// runs, the successful results in files (position = enumeration index, so
// SELECT ... ORDER BY position reproduces the manifest order), and the
// failures in failures. The whole run is written in a single transaction;
// on error nothing is persisted.
func WriteSQLite(ctx context.Context, path, root string, res *hash.RunResult) error {
	db, err := openSQLite(path)
	if err != nil {
		return fmt.Errorf("open manifest db %q: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx,
		`INSERT INTO runs (root, created_at, file_count, failed_count, byte_count) VALUES (?, ?, ?, ?, ?)`,
		root, time.Now().UTC().Format(time.RFC3339), res.Succeeded, res.Failed, res.BytesHashed)
	if err != nil {
		return err
	}
	runID, err := r.LastInsertId()
	if err != nil {
		return err
	}

	var files, failures []hash.Result
	for _, r := range res.Results {
		if r.Failed() {
			failures = append(failures, r)
		} else {
			files = append(files, r)
		}
	}
	if err := insertFilesBatch(ctx, tx, runID, files); err != nil {
		return err
	}
	if err := insertFailuresBatch(ctx, tx, runID, failures); err != nil {
		return err
	}
	return tx.Commit()
}

// insertFilesBatch inserts successful results in batches of insertBatchSize
// rows per statement to keep round-trips down on large trees.
func insertFilesBatch(ctx context.Context, tx *sql.Tx, runID int64, results []hash.Result) error {
	for start := 0; start < len(results); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(results) {
			end = len(results)
		}
		batch := results[start:end]
		placeholders := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)*5)
		for i, r := range batch {
			placeholders[i] = "(?, ?, ?, ?, ?)"
			args = append(args, runID, r.Index, r.RelPath, hex.EncodeToString(r.Digest), r.Size)
		}
		query := `INSERT INTO files (run_id, position, path, hash, size) VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func insertFailuresBatch(ctx context.Context, tx *sql.Tx, runID int64, results []hash.Result) error {
	for start := 0; start < len(results); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(results) {
			end = len(results)
		}
		batch := results[start:end]
		placeholders := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)*5)
		for i, r := range batch {
			placeholders[i] = "(?, ?, ?, ?, ?)"
			args = append(args, runID, r.Index, r.RelPath, r.Kind.String(), r.Err.Error())
		}
		query := `INSERT INTO failures (run_id, position, path, kind, detail) VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

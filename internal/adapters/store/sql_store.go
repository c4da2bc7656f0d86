package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

const defaultPageSize = 100

// SQLStore is a MessageRepository backed by SQLite, MySQL or PostgreSQL
type SQLStore struct {
	db        *sqlx.DB
	dialect   Dialect
	logger    *zap.Logger
	retention *retention
}

// NewSQLiteStore opens (or creates) a SQLite message store
func NewSQLiteStore(dbPath string, logger *zap.Logger, window, cleanupFreq time.Duration) (*SQLStore, error) {
	db, err := sqlx.Open(string(DialectSQLite), dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return newSQLStore(db, DialectSQLite, logger, window, cleanupFreq)
}

// NewMySQLStore opens a MySQL message store
func NewMySQLStore(dsn string, logger *zap.Logger, window, cleanupFreq time.Duration) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// Report matched rather than changed rows so idempotent updates succeed
	cfg.ClientFoundRows = true

	db, err := sqlx.Open(string(DialectMySQL), cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}
	return newSQLStore(db, DialectMySQL, logger, window, cleanupFreq)
}

// NewPostgresStore opens a PostgreSQL message store
func NewPostgresStore(dsn string, logger *zap.Logger, window, cleanupFreq time.Duration) (*SQLStore, error) {
	db, err := sqlx.Open(string(DialectPostgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	return newSQLStore(db, DialectPostgres, logger, window, cleanupFreq)
}

func newSQLStore(db *sqlx.DB, dialect Dialect, logger *zap.Logger, window, cleanupFreq time.Duration) (*SQLStore, error) {
	for _, stmt := range schema(dialect) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s := &SQLStore{
		db:        db,
		dialect:   dialect,
		logger:    logger,
		retention: newRetention(window, cleanupFreq, logger),
	}
	s.retention.start(s)

	logger.Info("Opened message store", zap.String("dialect", string(dialect)))
	return s, nil
}

// FindByCanonicalID returns the stored message or core.ErrNotFound
func (s *SQLStore) FindByCanonicalID(ctx context.Context, canonicalID string) (*core.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind("SELECT "+messageColumns+" FROM messages WHERE canonical_id = ?"),
		canonicalID)
	if errors.Is(err, sql.ErrNoRows) {
		purged, err := s.isPurged(ctx, canonicalID)
		if err != nil {
			return nil, err
		}
		if purged {
			return nil, core.ErrMessagePurged
		}
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return row.toMessage()
}

func (s *SQLStore) isPurged(ctx context.Context, canonicalID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.db.Rebind("SELECT COUNT(*) FROM purged_messages WHERE canonical_id = ?"), canonicalID)
	if err != nil {
		return false, fmt.Errorf("failed to check purged messages: %w", err)
	}
	return n > 0, nil
}

// Create inserts a message; an existing or purged canonical id yields
// core.ErrDuplicateMessage
func (s *SQLStore) Create(ctx context.Context, msg *core.Message) error {
	row, err := toRow(msg)
	if err != nil {
		return err
	}

	purged, err := s.isPurged(ctx, msg.CanonicalID)
	if err != nil {
		return err
	}
	if purged {
		return core.ErrDuplicateMessage
	}

	res, err := s.db.NamedExecContext(ctx, insertIgnore(s.dialect), row)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return core.ErrDuplicateMessage
	}
	return nil
}

// UpdateClassification rewrites the classification of a stored message
func (s *SQLStore) UpdateClassification(ctx context.Context, canonicalID string, cls *core.Classification) error {
	var row messageRow
	if err := row.setClassification(cls); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE messages SET category = ?, confidence = ?, classification = ? WHERE canonical_id = ?"),
		row.Category, row.Confidence, row.Classification, canonicalID)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Query returns a page of messages, newest first
func (s *SQLStore) Query(ctx context.Context, opts core.QueryOptions) ([]*core.Message, error) {
	var (
		where []string
		args  []interface{}
	)
	if opts.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, opts.AccountID)
	}
	if !opts.Since.IsZero() {
		where = append(where, "received_at >= ?")
		args = append(args, opts.Since.UTC())
	}

	query := "SELECT " + messageColumns + " FROM messages"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY received_at DESC, canonical_id LIMIT ? OFFSET ?"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	args = append(args, limit, opts.Offset)

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	out := make([]*core.Message, 0, len(rows))
	for i := range rows {
		msg, err := rows[i].toMessage()
		if err != nil {
			s.logger.Warn("Skipping undecodable message", zap.String("message_id", rows[i].CanonicalID), zap.Error(err))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteAll removes every stored message along with the purge history
func (s *SQLStore) DeleteAll(ctx context.Context) error {
	for _, table := range []string{"messages", "purged_messages"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	return nil
}

// Cleanup removes messages received before the cutoff. Their ids are kept so
// a purged message still on the server is not ingested again.
func (s *SQLStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup: %w", err)
	}
	defer tx.Rollback()

	cutoff := before.UTC()
	if _, err := tx.ExecContext(ctx, tx.Rebind(tombstoneExpired(s.dialect)), cutoff); err != nil {
		return 0, fmt.Errorf("failed to record purged messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM messages WHERE received_at < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
		return 0, nil
	}
	return n, nil
}

// Stop stops the cleanup task and closes the database connection
func (s *SQLStore) Stop() {
	s.retention.stop()
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close message store", zap.Error(err))
	}
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/annotator/internal/config"
)

// ErrNotFound is returned when a requested answer does not exist.
var ErrNotFound = errors.New("answer not found")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var schemas = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS annotated_answers (
			id UUID PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			message_id TEXT,
			raw_text TEXT NOT NULL,
			formatted_text TEXT NOT NULL,
			citations JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_annotated_answers_conversation ON annotated_answers (conversation_id, created_at)`,
	},
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS annotated_answers (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			message_id TEXT,
			raw_text TEXT NOT NULL,
			formatted_text TEXT NOT NULL,
			citations TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_annotated_answers_conversation ON annotated_answers (conversation_id, created_at)`,
	},
}

// Client stores annotated answers.
type Client struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewClient opens and pings the configured database.
func NewClient(cfg config.StoreConfig, logger *zap.Logger) (*Client, error) {
	dsn := cfg.DSN
	if cfg.Driver == "postgres" {
		dsn = cfg.PostgresDSN()
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections / 2)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database client initialized", zap.String("driver", cfg.Driver))
	return NewFromDB(db, logger), nil
}

// NewFromDB wraps an existing connection.
func NewFromDB(db *sqlx.DB, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{db: db, logger: logger}
}

// DB returns the underlying connection.
func (c *Client) DB() *sql.DB {
	return c.db.DB
}

// EnsureSchema creates the answers table when missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	stmts, ok := schemas[c.db.DriverName()]
	if !ok {
		stmts = schemas["postgres"]
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveAnswer inserts rec, filling in the id and timestamp when unset.
func (c *Client) SaveAnswer(ctx context.Context, rec *AnnotatedAnswer) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Citations == nil {
		rec.Citations = CitationList{}
	}

	query := c.db.Rebind(`INSERT INTO annotated_answers
		(id, conversation_id, message_id, raw_text, formatted_text, citations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := c.db.ExecContext(ctx, query,
		rec.ID, rec.ConversationID, rec.MessageID, rec.RawText, rec.FormattedText, rec.Citations, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	c.logger.Debug("Annotated answer saved",
		zap.String("answer_id", rec.ID.String()),
		zap.String("conversation_id", rec.ConversationID),
		zap.Int("citations", len(rec.Citations)))
	return nil
}

// GetAnswer loads one answer by id.
func (c *Client) GetAnswer(ctx context.Context, id uuid.UUID) (*AnnotatedAnswer, error) {
	var rec AnnotatedAnswer
	query := c.db.Rebind(`SELECT id, conversation_id, message_id, raw_text, formatted_text, citations, created_at
		FROM annotated_answers WHERE id = ?`)
	if err := c.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return &rec, nil
}

// ListByConversation returns a conversation's answers oldest first.
// Non-positive limits use the default; large ones are capped.
func (c *Client) ListByConversation(ctx context.Context, conversationID string, limit int) ([]AnnotatedAnswer, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	out := []AnnotatedAnswer{}
	query := c.db.Rebind(`SELECT id, conversation_id, message_id, raw_text, formatted_text, citations, created_at
		FROM annotated_answers WHERE conversation_id = ? ORDER BY created_at ASC LIMIT ?`)
	if err := c.db.SelectContext(ctx, &out, query, conversationID, limit); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.db.Close()
}

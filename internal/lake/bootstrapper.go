// Package lake attaches the DuckLake catalog inside an embedded DuckDB
// session.
package lake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/Semprini/data-products/ducklake-init/internal/bootstrap"
)

const probeName = "lake"

// AttachError reports the step at which the attach sequence stopped.
type AttachError struct {
	Step string
	Err  error

	secrets []string
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach lake: %s: %s", e.Step, redact(e.Err.Error(), e.secrets))
}

func (e *AttachError) Unwrap() error { return e.Err }

// Session is a single engine connection. Session options set through it
// stay in effect for every later statement.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Bootstrapper owns the engine session for the life of the process. The
// attachment disappears when the session is closed.
type Bootstrapper struct {
	settings Settings
	dbPath   string
	open     func(ctx context.Context, path string) (Session, error)

	mu      sync.Mutex
	session Session
}

// New returns a Bootstrapper. dbPath "" keeps the engine in memory.
func New(settings Settings, dbPath string) *Bootstrapper {
	return &Bootstrapper{
		settings: settings,
		dbPath:   dbPath,
		open:     openDuckDB,
	}
}

// Attach opens the session if needed and runs Plan in order. The first
// failing statement stops the sequence; nothing is rolled back or retried.
func (b *Bootstrapper) Attach(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	secrets := b.settings.secrets()

	if b.session == nil {
		s, err := b.open(ctx, b.dbPath)
		if err != nil {
			return &AttachError{Step: StepOpenSession, Err: err, secrets: secrets}
		}
		b.session = s
	}

	for _, stmt := range Plan(b.settings) {
		start := time.Now()
		if _, err := b.session.ExecContext(ctx, stmt.SQL); err != nil {
			slog.ErrorContext(ctx, "lake statement failed",
				"step", stmt.Step,
				"sql", stmt.Redacted,
				"err", redact(err.Error(), secrets),
			)
			return &AttachError{Step: stmt.Step, Err: err, secrets: secrets}
		}
		slog.DebugContext(ctx, "lake statement ok",
			"step", stmt.Step,
			"sql", stmt.Redacted,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	slog.InfoContext(ctx, "lake attached",
		"lake", b.settings.Name,
		"data_path", b.settings.DataPath,
	)
	return nil
}

// Probe checks that the attachment is still usable on the session.
func (b *Bootstrapper) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()
	result := bootstrap.ProbeResult{Name: probeName}

	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.session == nil {
		err = errors.New("session not open")
	} else {
		_, err = b.session.ExecContext(ctx, "USE "+quoteIdent(b.settings.Name))
	}

	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = redact(err.Error(), b.settings.secrets())
		return result
	}
	result.OK = true
	return result
}

// Close releases the session. It is safe to call more than once.
func (b *Bootstrapper) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	err := b.session.Close()
	b.session = nil
	return err
}

// engineSession pins one connection from the pool so that SET and USE apply
// to every statement that follows.
type engineSession struct {
	*sql.Conn
	db *sql.DB
}

func (s *engineSession) Close() error {
	return errors.Join(s.Conn.Close(), s.db.Close())
}

func openDuckDB(ctx context.Context, path string) (Session, error) {
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating duckdb connector: %w", err)
	}
	db := sql.OpenDB(connector)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("opening duckdb connection: %w", err)
	}
	return &engineSession{Conn: conn, db: db}, nil
}

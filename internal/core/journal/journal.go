// Package journal records every dispatch in the database: the message, the
// rule that took it and the final context bindings.
//
// Payloads are stored zstd-compressed next to their BLAKE3 digest; bindings
// are deterministic CBOR. A journal failure never changes the outcome of a
// dispatch: callers log it and carry on.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/solatis/mario/internal/core/db"
	"github.com/solatis/mario/internal/logging"
	"github.com/solatis/mario/internal/rules"
	"github.com/solatis/mario/internal/types"
)

// ErrNotFound indicates no dispatch has the requested ID.
var ErrNotFound = errors.New("dispatch not found")

// Source names the surface a dispatch came through.
type Source string

const (
	SourceCLI  Source = "cli"
	SourceGRPC Source = "grpc"
)

// Entry is one journaled dispatch.
type Entry struct {
	ID        types.DispatchID
	Kind      types.Kind
	Payload   string
	Digest    string
	Matched   bool
	RuleName  string
	Completed bool
	Bindings  map[string]string
	Source    Source
	CreatedAt time.Time
}

type row struct {
	DispatchID    string `db:"dispatch_id"`
	Kind          string `db:"kind"`
	Payload       []byte `db:"payload"`
	PayloadSize   int    `db:"payload_size"`
	PayloadDigest string `db:"payload_digest"`
	Matched       bool   `db:"matched"`
	RuleName      string `db:"rule_name"`
	Completed     bool   `db:"completed"`
	Bindings      []byte `db:"bindings"`
	Source        string `db:"source"`
	CreatedAt     string `db:"created_at"`
}

// Journal stores dispatches through the named queries of package db.
type Journal struct {
	conn    *sqlx.DB
	queries *db.Queries
	logger  zerolog.Logger
	now     func() time.Time
}

// Open connects to dbURL, applies pending migrations and loads the queries.
func Open(dbURL string) (*Journal, error) {
	conn, err := db.Open(dbURL)
	if err != nil {
		return nil, err
	}

	j, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an open connection, migrating it first.
func New(conn *sqlx.DB) (*Journal, error) {
	logger := logging.GetLogger("core.journal")

	done := logging.TimeOperation(logger, "migrate")
	ran, err := db.MigrateUp(conn)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	for _, id := range ran {
		logger.Info().Str("migration", id).Msg("Applied migration")
	}

	queries, err := db.LoadQueries(conn)
	if err != nil {
		return nil, err
	}

	return &Journal{
		conn:    conn,
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Queries exposes the named queries for other tables of the database.
func (j *Journal) Queries() *db.Queries {
	return j.queries
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Record stores a dispatch of msg. res may be nil when evaluation failed
// before producing a result; the entry then records no match.
func (j *Journal) Record(ctx context.Context, msg types.Message, res *rules.Result, source Source) (types.DispatchID, error) {
	id := types.NewDispatchID()

	var (
		matched, completed bool
		ruleName           string
		bindings           map[string]string
	)
	if res != nil {
		matched, completed, ruleName, bindings = res.Matched, res.Completed, res.RuleName, res.Bindings
	}

	kind := msg.Kind
	if kind == types.KindUnspecified {
		kind = types.GuessKind([]byte(msg.Data))
	}

	encoded, err := encodeBindings(bindings, msg.Data)
	if err != nil {
		return "", fmt.Errorf("encode bindings: %w", err)
	}

	_, err = j.queries.Exec(ctx, "insert-dispatch",
		string(id),
		kind.String(),
		compressPayload(msg.Data),
		len(msg.Data),
		Digest(msg.Data),
		matched,
		ruleName,
		completed,
		encoded,
		string(source),
		j.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert dispatch: %w", err)
	}

	j.logger.Debug().Str("dispatch_id", string(id)).Bool("matched", matched).Msg("Dispatch recorded")
	return id, nil
}

// Get returns one dispatch by ID.
func (j *Journal) Get(ctx context.Context, id types.DispatchID) (*Entry, error) {
	var r row
	err := j.queries.Get(ctx, "get-dispatch", &r, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dispatch: %w", err)
	}
	return r.entry()
}

// List returns the most recent dispatches, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	var rows []row
	if err := j.queries.Select(ctx, "list-dispatches", &rows, limit); err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	return entries(rows)
}

// FindByPayload returns earlier dispatches of an identical payload, newest
// first.
func (j *Journal) FindByPayload(ctx context.Context, payload string) ([]Entry, error) {
	var rows []row
	if err := j.queries.Select(ctx, "list-dispatches-by-digest", &rows, Digest(payload)); err != nil {
		return nil, fmt.Errorf("find dispatches: %w", err)
	}
	return entries(rows)
}

// Count returns the number of journaled dispatches.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.queries.Get(ctx, "count-dispatches", &n); err != nil {
		return 0, fmt.Errorf("count dispatches: %w", err)
	}
	return n, nil
}

// Prune deletes dispatches recorded before the cutoff and returns how many
// were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.queries.Exec(ctx, "delete-dispatches-before", before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	return res.RowsAffected()
}

func entries(rows []row) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r row) entry() (*Entry, error) {
	kind, err := types.ParseKind(r.Kind)
	if err != nil {
		return nil, err
	}
	payload, err := decompressPayload(r.Payload, r.PayloadSize)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", r.DispatchID, err)
	}
	bindings, err := decodeBindings(r.Bindings, payload)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", r.DispatchID, err)
	}
	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: bad created_at: %w", r.DispatchID, err)
	}

	return &Entry{
		ID:        types.DispatchID(r.DispatchID),
		Kind:      kind,
		Payload:   payload,
		Digest:    r.PayloadDigest,
		Matched:   r.Matched,
		RuleName:  r.RuleName,
		Completed: r.Completed,
		Bindings:  bindings,
		Source:    Source(r.Source),
		CreatedAt: created,
	}, nil
}

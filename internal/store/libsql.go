package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/blueprint/pkg/schema"
)

// connPragmas are applied once after opening. The store keeps a single
// connection, so they hold for every statement.
var connPragmas = []string{
	"journal_mode=WAL",
	"synchronous=NORMAL",
	"busy_timeout=5000",
	"foreign_keys=ON",
	"temp_store=MEMORY",
}

// LibSQLStore persists compile history, the artifact cache and the event log
// in an embedded libSQL database.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens the database at dbPath, a file URI such as
// "file:/path/to/blueprint.db". Call Migrate before first use.
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range connPragmas {
		// Some pragmas answer with a row, so read and discard it.
		var ignored string
		_ = db.QueryRow("PRAGMA " + p).Scan(&ignored)
	}
	return &LibSQLStore{db: db}, nil
}

// DB exposes the handle for tests and ad-hoc queries.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Artifacts ---

const artifactColumns = `id, graph_name, graph_hash, status, source_text, node_order, outputs_by_node, diagnostics, partial, duration_ms, created_at`

// SaveArtifact records a compile pass in the history. Saving the same id twice is a no-op.
func (s *LibSQLStore) SaveArtifact(ctx context.Context, a *schema.CompiledArtifact) error {
	return insertArtifact(ctx, s.db, a)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertArtifact(ctx context.Context, db execer, a *schema.CompiledArtifact) error {
	if a == nil || a.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "artifact id is required")
	}
	order, err := nullableJSON(a.Order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	outputs, err := nullableJSON(a.OutputsByNode)
	if err != nil {
		return fmt.Errorf("marshal outputs_by_node: %w", err)
	}
	diags, err := json.Marshal(a.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	partial, err := nullableJSON(a.Partial)
	if err != nil {
		return fmt.Errorf("marshal partial: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT OR IGNORE INTO artifacts (`+artifactColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullStr(a.GraphName), nullStr(a.GraphHash), string(a.Status), a.SourceText,
		order, outputs, string(diags), partial, a.DurationMs, timeOrNow(a.CreatedAt),
	)
	return err
}

// GetArtifact returns one artifact from the history.
func (s *LibSQLStore) GetArtifact(ctx context.Context, id string) (*schema.CompiledArtifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("artifact", id)
	}
	return a, err
}

// ListArtifacts returns history entries matching filter, newest first.
func (s *LibSQLStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]*schema.CompiledArtifact, error) {
	var q filterQuery
	q.equal("graph_name", filter.GraphName)
	q.equal("graph_hash", filter.GraphHash)
	q.equal("status", string(filter.Status))
	q.since("created_at", filter.Since)
	query, args := q.build(`SELECT `+artifactColumns+` FROM artifacts`, "created_at DESC, id", filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.CompiledArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneArtifacts deletes history entries created before the given time.
// Cache entries pointing at them go too.
func (s *LibSQLStore) PruneArtifacts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (*schema.CompiledArtifact, error) {
	a := &schema.CompiledArtifact{}
	var (
		graphName, graphHash           sql.NullString
		order, outputs, diags, partial sql.NullString
		status                         string
	)
	if err := row.Scan(&a.ID, &graphName, &graphHash, &status, &a.SourceText,
		&order, &outputs, &diags, &partial, &a.DurationMs, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.GraphName = graphName.String
	a.GraphHash = graphHash.String
	a.Status = schema.CompileStatus(status)

	if err := unmarshalNullable(order, &a.Order); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	if err := unmarshalNullable(outputs, &a.OutputsByNode); err != nil {
		return nil, fmt.Errorf("unmarshal outputs_by_node: %w", err)
	}
	if err := unmarshalNullable(diags, &a.Diagnostics); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	if err := unmarshalNullable(partial, &a.Partial); err != nil {
		return nil, fmt.Errorf("unmarshal partial: %w", err)
	}
	return a, nil
}

// --- Artifact cache ---

// Lookup returns the cached artifact for key. A miss is (nil, false, nil).
func (s *LibSQLStore) Lookup(ctx context.Context, key string) (*schema.CompiledArtifact, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT a.id, a.graph_name, a.graph_hash, a.status, a.source_text, a.node_order,
		        a.outputs_by_node, a.diagnostics, a.partial, a.duration_ms, a.created_at
		 FROM artifact_cache c JOIN artifacts a ON a.id = c.artifact_id
		 WHERE c.cache_key = ?`, key)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE artifact_cache SET hits = hits + 1, last_hit_at = ? WHERE cache_key = ?`,
		time.Now().UTC(), key,
	); err != nil {
		return nil, false, fmt.Errorf("record cache hit: %w", err)
	}
	return a, true, nil
}

// Remember caches a compiled artifact under key, saving it to the history if needed.
func (s *LibSQLStore) Remember(ctx context.Context, key string, a *schema.CompiledArtifact) error {
	if a == nil || !a.Succeeded() {
		return schema.NewError(schema.ErrCodeValidation, "only compiled artifacts can be cached")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertArtifact(ctx, tx, a); err != nil {
		return fmt.Errorf("save cached artifact: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artifact_cache (cache_key, artifact_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET artifact_id = excluded.artifact_id, hits = 0`,
		key, a.ID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return tx.Commit()
}

// CacheStats reports the number of cache entries and total hits.
func (s *LibSQLStore) CacheStats(ctx context.Context) (CacheStats, error) {
	var st CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hits), 0) FROM artifact_cache`,
	).Scan(&st.Entries, &st.Hits)
	return st, err
}

// --- Events ---

// AppendEvent appends an event with the next per-compile sequence number.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE compile_id = ?`, event.CompileID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (compile_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.CompileID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a compile pass with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, compileID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE compile_id = ? AND sequence > ? ORDER BY sequence ASC`,
		compileID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsByType returns events of a specific type matching the filter, newest first.
func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	var q filterQuery
	q.equal("event_type", eventType)
	q.equal("compile_id", filter.CompileID)
	q.equal("node_id", filter.NodeID)
	q.since("timestamp", filter.Since)
	query, args := q.build(`SELECT `+eventColumns+` FROM events`, "timestamp DESC, id DESC", filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

const eventColumns = `id, compile_id, node_id, event_type, payload, timestamp, sequence`

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.CompileID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.BlueprintError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

// nullableJSON marshals v, storing empty slices and maps as NULL.
func nullableJSON[T any](v T) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	switch string(b) {
	case "null", "[]", "{}":
		return nil, nil
	}
	return string(b), nil
}

func unmarshalNullable(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

var _ Store = (*LibSQLStore)(nil)

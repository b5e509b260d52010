package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/sentinel"
	"auditpipe/pkg/platform/tracing"
	txcontext "auditpipe/pkg/platform/tx"
)

// maxRowsPerStatement keeps multi-row inserts under the Postgres limit of
// 65535 bind parameters.
const maxRowsPerStatement = 1000

const columns = `id, timestamp, action_type, action, category, outcome, failure_reason,
	actor_user_id, actor_display_name, actor_ip_address,
	resource_type, resource_id, resource_name,
	organization_id, organization_name, correlation_id, details`

const columnCount = 17

// Store implements audit.Store on the audit_events table.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db, tracer: tracing.Tracer("auditpipe/audit/store/postgres")}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer returns the transaction carried in ctx, or the pool.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Insert writes a single event in one statement.
func (s *Store) Insert(ctx context.Context, event audit.Event) error {
	args, err := rowArgs(event)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_events (` + columns + `) VALUES ` + placeholders(1, 0)
	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("audit event %s already stored: %w", event.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// InsertBatch writes all events atomically. Batches larger than one statement
// can carry run inside a transaction.
func (s *Store) InsertBatch(ctx context.Context, events []audit.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	ctx, span := tracing.Start(ctx, s.tracer, "audit.store.insert_batch", attribute.Int("batch_size", len(events)))
	defer func() { tracing.End(span, err) }()

	if len(events) <= maxRowsPerStatement {
		return s.insertRows(ctx, s.execer(ctx), events)
	}
	if _, ok := txcontext.From(ctx); ok {
		return s.insertChunks(ctx, s.execer(ctx), events)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.insertChunks(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

func (s *Store) insertChunks(ctx context.Context, exec dbExecutor, events []audit.Event) error {
	for start := 0; start < len(events); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(events))
		if err := s.insertRows(ctx, exec, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertRows(ctx context.Context, exec dbExecutor, events []audit.Event) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO audit_events (` + columns + `) VALUES `)
	args := make([]any, 0, len(events)*columnCount)
	for i, e := range events {
		row, err := rowArgs(e)
		if err != nil {
			return err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders(1, i))
		args = append(args, row...)
	}
	if _, err := exec.ExecContext(ctx, b.String(), args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("audit batch repeats a stored id: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit batch: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Get returns sentinel.ErrNotFound when no row has the id.
func (s *Store) Get(ctx context.Context, eventID id.EventID) (audit.Event, error) {
	query := `SELECT ` + columns + ` FROM audit_events WHERE id = $1`
	e, err := scanEvent(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(eventID)))
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Event{}, sentinel.ErrNotFound
	}
	if err != nil {
		return audit.Event{}, fmt.Errorf("get audit event: %w", err)
	}
	return e, nil
}

func (s *Store) Find(ctx context.Context, filter audit.Filter, limit, offset int) (events []audit.Event, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "audit.store.find",
		attribute.Int("limit", limit), attribute.Int("offset", offset))
	defer func() { tracing.End(span, err) }()

	where, args := buildWhere(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM audit_events%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		columns, where, orderBy(filter.Sort), len(args)-1, len(args))
	return s.query(ctx, query, args...)
}

func (s *Store) Count(ctx context.Context, filter audit.Filter) (n int64, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "audit.store.count")
	defer func() { tracing.End(span, err) }()

	where, args := buildWhere(filter)
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// FindAfter pages by (timestamp, id) so concurrent inserts cannot shift or
// duplicate rows between batches.
func (s *Store) FindAfter(ctx context.Context, filter audit.Filter, after *audit.Cursor, limit int) (events []audit.Event, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "audit.store.find_after", attribute.Int("limit", limit))
	defer func() { tracing.End(span, err) }()

	where, args := buildWhere(filter)
	if after != nil {
		op := "<"
		if filter.Sort == audit.SortAsc {
			op = ">"
		}
		args = append(args, after.Timestamp, uuid.UUID(after.ID))
		where = and(where, fmt.Sprintf("(timestamp, id) %s ($%d, $%d)", op, len(args)-1, len(args)))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM audit_events%s ORDER BY %s LIMIT $%d`,
		columns, where, orderBy(filter.Sort), len(args))
	return s.query(ctx, query, args...)
}

func (s *Store) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]audit.Event, error) {
	query := `SELECT ` + columns + ` FROM audit_events WHERE timestamp < $1 ORDER BY timestamp ASC, id ASC LIMIT $2`
	return s.query(ctx, query, cutoff, limit)
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []id.EventID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, eventID := range ids {
		raw[i] = eventID.String()
	}
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM audit_events WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return 0, fmt.Errorf("delete audit events by id: %w", err)
	}
	return res.RowsAffected()
}

// DeleteBefore removes up to limit of the oldest rows strictly before cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (n int64, err error) {
	ctx, span := tracing.Start(ctx, s.tracer, "audit.store.delete_before", attribute.Int("limit", limit))
	defer func() { tracing.End(span, err) }()

	query := `
		DELETE FROM audit_events
		WHERE id IN (
			SELECT id FROM audit_events
			WHERE timestamp < $1
			ORDER BY timestamp ASC
			LIMIT $2
		)
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit events: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]audit.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// buildWhere renders the filter as a WHERE clause with positional args.
func buildWhere(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if !f.OrganizationID.IsNil() {
		add("organization_id = ?", uuid.UUID(f.OrganizationID))
	}
	if !f.ActorUserID.IsNil() {
		add("actor_user_id = ?", uuid.UUID(f.ActorUserID))
	}
	if len(f.Actions) > 0 {
		vals := make([]int64, len(f.Actions))
		for i, a := range f.Actions {
			vals[i] = int64(a)
		}
		add("action_type = ANY(?::int[])", pq.Array(vals))
	}
	if len(f.ResourceTypes) > 0 {
		vals := make([]int64, len(f.ResourceTypes))
		for i, r := range f.ResourceTypes {
			vals[i] = int64(r)
		}
		add("resource_type = ANY(?::int[])", pq.Array(vals))
	}
	if f.ResourceID != "" {
		add("resource_id = ?", f.ResourceID)
	}
	if f.Outcome != "" {
		add("outcome = ?", string(f.Outcome))
	}
	if !f.From.IsZero() {
		add("timestamp >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("timestamp <= ?", f.To)
	}
	if f.Search != "" {
		add(`(resource_name ILIKE ? ESCAPE '\' OR actor_display_name ILIKE ? ESCAPE '\')`, "%"+escapeLike(f.Search)+"%")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func and(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}

func orderBy(dir audit.SortDirection) string {
	if dir == audit.SortAsc {
		return "timestamp ASC, id ASC"
	}
	return "timestamp DESC, id DESC"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// placeholders renders "($n, ..., $m)" for the row-th row of a multi-row insert.
func placeholders(first, row int) string {
	var b strings.Builder
	b.WriteByte('(')
	base := first + row*columnCount
	for i := range columnCount {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(base + i))
	}
	b.WriteByte(')')
	return b.String()
}

func rowArgs(e audit.Event) ([]any, error) {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "audit details are not serializable")
		}
	}
	return []any{
		uuid.UUID(e.ID),
		e.Timestamp.UTC(),
		int64(e.Action),
		e.Action.String(),
		string(e.Category()),
		string(e.Outcome),
		e.FailureReason,
		nullUUID(uuid.UUID(e.Actor.UserID)),
		e.Actor.DisplayName,
		e.Actor.IPAddress,
		int64(e.Resource.Type),
		e.Resource.ID,
		e.Resource.Name,
		nullUUID(uuid.UUID(e.Organization.ID)),
		e.Organization.Name,
		e.CorrelationID,
		details,
	}, nil
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (audit.Event, error) {
	var (
		e            audit.Event
		eventID      uuid.UUID
		actionType   int64
		actionName   string
		category     string
		outcome      string
		actorUserID  uuid.NullUUID
		resourceType int64
		orgID        uuid.NullUUID
		details      []byte
	)
	err := row.Scan(
		&eventID,
		&e.Timestamp,
		&actionType,
		&actionName,
		&category,
		&outcome,
		&e.FailureReason,
		&actorUserID,
		&e.Actor.DisplayName,
		&e.Actor.IPAddress,
		&resourceType,
		&e.Resource.ID,
		&e.Resource.Name,
		&orgID,
		&e.Organization.Name,
		&e.CorrelationID,
		&details,
	)
	if err != nil {
		return audit.Event{}, err
	}

	e.ID = id.EventID(eventID)
	e.Timestamp = e.Timestamp.UTC()
	e.Action = audit.ActionType(actionType)
	e.Outcome = audit.Outcome(outcome)
	e.Resource.Type = audit.ResourceType(resourceType)
	if actorUserID.Valid {
		e.Actor.UserID = id.UserID(actorUserID.UUID)
	}
	if orgID.Valid {
		e.Organization.ID = id.OrganizationID(orgID.UUID)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return audit.Event{}, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	return e, nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ManuGH/booksync/internal/domain/booking/model"
	"github.com/ManuGH/booksync/internal/persistence/sqlite"
)

const schemaVersion = 1

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var bookingColumns = []string{
	"id", "service_id", "customer_id", "provider_id", "date", "time",
	"status", "payment_status", "amount_minor", "currency",
	"version", "history_count", "created_at_ms", "updated_at_ms",
}

var sessionColumns = []string{
	"session_id", "booking_id", "customer_id", "status", "url",
	"amount_minor", "currency", "created_at_ms", "expires_at_ms", "closed_at_ms",
}

// SqliteStore implements StateStore using SQLite. Writers open IMMEDIATE
// transactions, so a compare-and-set loser blocks, reads the advanced
// version and fails with ErrStaleVersion.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens dbPath and applies the schema.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("booking store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		service_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		version INTEGER NOT NULL,
		history_count INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id, created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_bookings_provider ON bookings(provider_id, created_at_ms);

	CREATE TABLE IF NOT EXISTS booking_history (
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		seq INTEGER NOT NULL,
		at_ms INTEGER NOT NULL,
		actor_role TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		PRIMARY KEY (booking_id, seq)
	);

	CREATE TABLE IF NOT EXISTS checkout_sessions (
		session_id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		customer_id TEXT NOT NULL,
		status TEXT NOT NULL,
		url TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		expires_at_ms INTEGER NOT NULL,
		closed_at_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open ON checkout_sessions(booking_id) WHERE status = 'open';
	CREATE INDEX IF NOT EXISTS idx_sessions_status_expiry ON checkout_sessions(status, expires_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- Bookings ---

func (s *SqliteStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Insert("bookings").
		Columns(bookingColumns...).
		Values(
			b.ID, b.ServiceID, b.CustomerID, b.ProviderID, b.Date, b.Time,
			string(b.Status), string(b.PaymentStatus), b.AmountMinor, b.Currency,
			b.Version, len(b.History), s2ms(b.CreatedAt), s2ms(b.UpdatedAt),
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert booking: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, err)
	}
	if err := insertHistory(ctx, tx, b.ID, 0, b.History); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := getBooking(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	// History rows are append-only and committed before history_count moves,
	// so the first history_count rows are always a consistent prefix.
	hist, err := loadHistory(ctx, s.DB, id, len(b.History))
	if err != nil {
		return nil, err
	}
	b.History = hist
	return b, nil
}

func (s *SqliteStore) ListBookings(ctx context.Context, f BookingFilter) ([]*model.Booking, error) {
	sel := psql.Select(bookingColumns...).From("bookings").OrderBy("created_at_ms DESC", "id ASC")
	if f.CustomerID != "" {
		sel = sel.Where(sq.Eq{"customer_id": f.CustomerID})
	}
	if f.ProviderID != "" {
		sel = sel.Where(sq.Eq{"provider_id": f.ProviderID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		sel = sel.Where(sq.Eq{"status": statuses})
	}
	if f.Limit > 0 {
		sel = sel.Limit(uint64(f.Limit))
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bookings: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		b.History = nil
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SqliteStore) UpdateBooking(ctx context.Context, id string, expectedVersion int64, fn BookingMutator) (*model.Booking, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getBookingWithHistory(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && cur.Version != expectedVersion {
		return nil, ErrStaleVersion
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if err := writeBooking(ctx, tx, cur, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

func getBooking(ctx context.Context, q queryer, id string) (*model.Booking, error) {
	query, args, err := psql.Select(bookingColumns...).From("bookings").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking: %w", err)
	}
	b, err := scanBooking(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func getBookingWithHistory(ctx context.Context, q queryer, id string) (*model.Booking, error) {
	b, err := getBooking(ctx, q, id)
	if err != nil {
		return nil, err
	}
	hist, err := loadHistory(ctx, q, id, len(b.History))
	if err != nil {
		return nil, err
	}
	b.History = hist
	return b, nil
}

// writeBooking persists next over cur inside tx. Only the mutable columns are
// touched; amount and references stay as inserted.
func writeBooking(ctx context.Context, tx *sql.Tx, cur, next *model.Booking) error {
	if err := checkNext(cur, next); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, cur.ID, len(cur.History), next.History[len(cur.History):]); err != nil {
		return err
	}
	query, args, err := psql.Update("bookings").
		Set("status", string(next.Status)).
		Set("payment_status", string(next.PaymentStatus)).
		Set("version", next.Version).
		Set("history_count", len(next.History)).
		Set("updated_at_ms", s2ms(next.UpdatedAt)).
		Where(sq.Eq{"id": cur.ID, "version": cur.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", cur.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrStaleVersion
	}
	return nil
}

func insertHistory(ctx context.Context, q queryer, bookingID string, startSeq int, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := psql.Insert("booking_history").
		Columns("booking_id", "seq", "at_ms", "actor_role", "actor_id", "from_status", "to_status")
	for i, e := range entries {
		ins = ins.Values(bookingID, startSeq+i, s2ms(e.At), string(e.ActorRole), e.ActorID, string(e.From), string(e.To))
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("build insert history: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append history for %s: %w", bookingID, err)
	}
	return nil
}

func loadHistory(ctx context.Context, q queryer, bookingID string, count int) ([]model.HistoryEntry, error) {
	if count == 0 {
		return []model.HistoryEntry{}, nil
	}
	query, args, err := psql.Select("at_ms", "actor_role", "actor_id", "from_status", "to_status").
		From("booking_history").
		Where(sq.Eq{"booking_id": bookingID}).
		Where(sq.Lt{"seq": count}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load history: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.HistoryEntry, 0, count)
	for rows.Next() {
		var (
			e                      model.HistoryEntry
			atMS                   int64
			role, fromSt, toStatus string
		)
		if err := rows.Scan(&atMS, &role, &e.ActorID, &fromSt, &toStatus); err != nil {
			return nil, err
		}
		e.At = ms2t(atMS)
		e.ActorRole = model.Role(role)
		e.From = model.LifecycleStatus(fromSt)
		e.To = model.LifecycleStatus(toStatus)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != count {
		return nil, fmt.Errorf("%w: booking %s has %d history rows, want %d", ErrInvariant, bookingID, len(out), count)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanBooking reads bookingColumns. History is sized to history_count but
// left empty; callers load or drop it.
func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b                   model.Booking
		status, payStatus   string
		historyCount        int
		createdMS, updateMS int64
	)
	err := row.Scan(
		&b.ID, &b.ServiceID, &b.CustomerID, &b.ProviderID, &b.Date, &b.Time,
		&status, &payStatus, &b.AmountMinor, &b.Currency,
		&b.Version, &historyCount, &createdMS, &updateMS,
	)
	if err != nil {
		return nil, err
	}
	b.Status = model.LifecycleStatus(status)
	b.PaymentStatus = model.PaymentStatus(payStatus)
	b.CreatedAt = ms2t(createdMS)
	b.UpdatedAt = ms2t(updateMS)
	b.History = make([]model.HistoryEntry, historyCount)
	return &b, nil
}

// --- Checkout sessions ---

func (s *SqliteStore) GetSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	return getSession(ctx, s.DB, sq.Eq{"session_id": id})
}

func (s *SqliteStore) OpenSession(ctx context.Context, bookingID string) (*model.CheckoutSession, error) {
	return getSession(ctx, s.DB, sq.Eq{"booking_id": bookingID, "status": string(model.SessionOpen)})
}

func (s *SqliteStore) ListOpenSessions(ctx context.Context, cutoff time.Time) ([]*model.CheckoutSession, error) {
	query, args, err := psql.Select(sessionColumns...).
		From("checkout_sessions").
		Where(sq.Eq{"status": string(model.SessionOpen)}).
		Where(sq.LtOrEq{"expires_at_ms": cutoff.UnixMilli()}).
		OrderBy("expires_at_ms ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list open sessions: %w", err)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.CheckoutSession
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *SqliteStore) CreateSession(ctx context.Context, cs *model.CheckoutSession, fn BookingMutator) (*model.Booking, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getBookingWithHistory(ctx, tx, cs.BookingID)
	if err != nil {
		return nil, err
	}
	if _, err := getSession(ctx, tx, sq.Eq{"booking_id": cs.BookingID, "status": string(model.SessionOpen)}); err == nil {
		return nil, ErrSessionConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}

	query, args, err := psql.Insert("checkout_sessions").
		Columns(sessionColumns...).
		Values(
			cs.ID, cs.BookingID, cs.CustomerID, string(cs.Status), cs.URL,
			cs.AmountMinor, cs.Currency, s2ms(cs.CreatedAt), s2ms(cs.ExpiresAt), s2ms(cs.ClosedAt),
		).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSessionConflict
		}
		return nil, fmt.Errorf("insert session %s: %w", cs.ID, err)
	}
	if err := writeBooking(ctx, tx, cur, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *SqliteStore) UpdateSession(ctx context.Context, id string, fn SessionMutator) (*model.Booking, *model.CheckoutSession, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cs, err := getSession(ctx, tx, sq.Eq{"session_id": id})
	if err != nil {
		return nil, nil, err
	}
	cur, err := getBookingWithHistory(ctx, tx, cs.BookingID)
	if err != nil {
		return nil, nil, err
	}

	scopy := *cs
	nextB, nextS, err := fn(cur.Clone(), &scopy)
	if err != nil {
		return nil, nil, err
	}

	if nextS != nil {
		if nextS.ID != cs.ID || nextS.BookingID != cs.BookingID {
			return nil, nil, fmt.Errorf("%w: session identity changed", ErrInvariant)
		}
		query, args, err := psql.Update("checkout_sessions").
			Set("status", string(nextS.Status)).
			Set("url", nextS.URL).
			Set("expires_at_ms", s2ms(nextS.ExpiresAt)).
			Set("closed_at_ms", s2ms(nextS.ClosedAt)).
			Where(sq.Eq{"session_id": id}).
			ToSql()
		if err != nil {
			return nil, nil, fmt.Errorf("build update session: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return nil, nil, ErrSessionConflict
			}
			return nil, nil, fmt.Errorf("update session %s: %w", id, err)
		}
		cs = nextS
	}

	outB := cur
	if nextB != nil {
		if err := writeBooking(ctx, tx, cur, nextB); err != nil {
			return nil, nil, err
		}
		outB = nextB
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	out := *cs
	return outB, &out, nil
}

func getSession(ctx context.Context, q queryer, where sq.Eq) (*model.CheckoutSession, error) {
	query, args, err := psql.Select(sessionColumns...).From("checkout_sessions").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get session: %w", err)
	}
	cs, err := scanSession(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cs, err
}

func scanSession(row rowScanner) (*model.CheckoutSession, error) {
	var (
		cs                        model.CheckoutSession
		status                    string
		createdMS, expMS, closeMS int64
	)
	err := row.Scan(
		&cs.ID, &cs.BookingID, &cs.CustomerID, &status, &cs.URL,
		&cs.AmountMinor, &cs.Currency, &createdMS, &expMS, &closeMS,
	)
	if err != nil {
		return nil, err
	}
	cs.Status = model.SessionStatus(status)
	cs.CreatedAt = ms2t(createdMS)
	cs.ExpiresAt = ms2t(expMS)
	cs.ClosedAt = ms2t(closeMS)
	return &cs, nil
}

// isUniqueViolation reports a unique index or primary key conflict. The
// driver runs with extended result codes enabled.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

var _ StateStore = (*SqliteStore)(nil)

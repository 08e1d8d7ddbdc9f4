package visit

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jizpi/arm-ledger/internal/db"
)

const selectColumns = `id, first_name, last_name, group_size, group_label, department, resource,
	visitor_class, visit_date, sequence_number, created_at, updated_at`

// Repository provides CRUD operations for visit records.
// It assigns record ids and a creation timestamp that is strictly
// increasing across all inserts made through the same Repository.
type Repository struct {
	db  *db.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    time.Time
}

// NewRepository creates a visit repository.
func NewRepository(d *db.DB) *Repository {
	return &Repository{
		db:      d,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// WithClock replaces the clock used for creation timestamps.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// stamp returns the next creation time and a matching id.
func (r *Repository) stamp(at *time.Time) (time.Time, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ts time.Time
	if at != nil {
		ts = at.UTC()
	} else {
		ts = r.now().UTC()
		if !ts.After(r.last) {
			ts = r.last.Add(time.Nanosecond)
		}
		r.last = ts
	}

	id, err := ulid.New(ulid.Timestamp(ts), r.entropy)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("generating id: %w", err)
	}
	return ts, id.String(), nil
}

// Insert writes a new record. The id and created_at are assigned here;
// any values already present on rec are ignored.
func (r *Repository) Insert(ctx context.Context, rec *Record) (*Record, error) {
	createdAt, id, err := r.stamp(nil)
	if err != nil {
		return nil, err
	}
	return r.insert(ctx, id, rec, &createdAt)
}

// Import writes a record carried over from an older system. created_at is
// kept as given, including nil.
func (r *Repository) Import(ctx context.Context, rec *Record) (*Record, error) {
	_, id, err := r.stamp(rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r.insert(ctx, id, rec, rec.CreatedAt)
}

func (r *Repository) insert(ctx context.Context, id string, rec *Record, createdAt *time.Time) (*Record, error) {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO visits (id, first_name, last_name, group_size, group_label, department, resource,
			visitor_class, visit_date, sequence_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, rec.FirstName, rec.LastName, rec.GroupSize, rec.Group, rec.Department, rec.Resource,
		string(rec.Class), rec.VisitDate, rec.Sequence, unixNano(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting visit: %w", err)
	}

	saved, err := r.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading back visit: %w", err)
	}
	return saved, nil
}

// Get returns a record by id.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind("SELECT "+selectColumns+" FROM visits WHERE id = ?"), id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying visit %s: %w", id, err)
	}
	return rec, nil
}

// List returns the full record set, newest first. Records without a
// creation time sort last.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	return r.query(ctx, "SELECT "+selectColumns+" FROM visits ORDER BY COALESCE(created_at, 0) DESC, id DESC")
}

// ListByPerson returns every visit recorded under an exact first and last name,
// most recent visit date first.
func (r *Repository) ListByPerson(ctx context.Context, firstName, lastName string) ([]Record, error) {
	recs, err := r.query(ctx,
		"SELECT "+selectColumns+" FROM visits WHERE first_name = ? AND last_name = ? ORDER BY COALESCE(created_at, 0) DESC",
		firstName, lastName,
	)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recs, func(i, j int) bool {
		di, erri := ParseDate(recs[i].VisitDate, time.UTC)
		dj, errj := ParseDate(recs[j].VisitDate, time.UTC)
		if erri != nil || errj != nil {
			return erri == nil && errj != nil
		}
		return di.After(dj)
	})
	return recs, nil
}

// CountByDate returns how many records carry the given visit date.
func (r *Repository) CountByDate(ctx context.Context, visitDate string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.db.Rebind("SELECT COUNT(*) FROM visits WHERE visit_date = ?"), visitDate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting visits for %s: %w", visitDate, err)
	}
	return n, nil
}

// Update writes every mutable field of rec. id, sequence_number and
// created_at are never touched.
func (r *Repository) Update(ctx context.Context, rec *Record) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE visits SET first_name = ?, last_name = ?, group_size = ?, group_label = ?, department = ?,
			resource = ?, visitor_class = ?, visit_date = ?, updated_at = ?
		 WHERE id = ?`),
		rec.FirstName, rec.LastName, rec.GroupSize, rec.Group, rec.Department,
		rec.Resource, string(rec.Class), rec.VisitDate, unixNano(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating visit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("visit %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a record by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM visits WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting visit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (recs []Record, err error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing visits: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	recs = make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning visit: %w", err)
		}
		recs = append(recs, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visits: %w", err)
	}
	return recs, nil
}

// scanRecord scans a record from a database row.
func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	var class string
	var createdAt, updatedAt sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.FirstName, &rec.LastName, &rec.GroupSize, &rec.Group, &rec.Department, &rec.Resource,
		&class, &rec.VisitDate, &rec.Sequence, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Class = Class(class)
	rec.CreatedAt = fromUnixNano(createdAt)
	rec.UpdatedAt = fromUnixNano(updatedAt)
	return &rec, nil
}

func unixNano(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromUnixNano(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

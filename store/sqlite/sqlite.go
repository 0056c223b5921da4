/*
Package sqlite provides a SQLite-backed recurrence.TemplateStore.

PURPOSE:
  Persists templates and their exclusion sets. Occurrences are derived on
  every query and never written here.

INTERFACES IMPLEMENTED:
  recurrence.TemplateStore:   Template CRUD and exclusion append
  recurrence.TxTemplateStore: WithTx for atomic exceptions

KEY TABLES:
  templates:           One row per (scope_id, id)
  template_exclusions: Excluded dates, cascade-deleted with their template

CONCURRENCY:
  Writes are serialized with sync.RWMutex; SQLite allows a single writer
  anyway. The exclusion append is a single INSERT guarded by the table's
  primary key, so two racing requests for the same date cannot both succeed.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Versioned migrations are embedded from migrations/ and applied by
  golang-migrate on New().

USAGE:
  store, err := sqlite.New("./data/recurrence.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := recurrence.NewService(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/warp/recurrence-engine/recurrence"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements recurrence.TxTemplateStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies the embedded migrations. The migrate instance is not
// closed: its driver would close the shared *sql.DB.
func (s *Store) migrate() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// =============================================================================
// TEMPLATE STORE (recurrence.TemplateStore interface)
// =============================================================================

const templateColumns = `
	scope_id, id, frequency, anchor_date, day_of_week, day_of_month,
	type, amount, category, description, person, budget_category,
	is_salary, created_by, created_at`

// LoadTemplates returns every template of scope with its exclusions, ordered by id.
func (s *Store) LoadTemplates(ctx context.Context, scope recurrence.ScopeID) ([]recurrence.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadTemplates(ctx, s.db, scope)
}

// GetTemplate returns one template or a *recurrence.NotFoundError.
func (s *Store) GetTemplate(ctx context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) (recurrence.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getTemplate(ctx, s.db, scope, id)
}

// AppendExclusion inserts the date unless it is already present.
func (s *Store) AppendExclusion(ctx context.Context, scope recurrence.ScopeID, id recurrence.TemplateID, date recurrence.Date) (recurrence.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendExclusion(ctx, s.db, scope, id, date)
}

// InsertTemplate stores t and its exclusions atomically.
func (s *Store) InsertTemplate(ctx context.Context, t recurrence.Template) (recurrence.TemplateID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := insertTemplate(ctx, sqlTx, t); err != nil {
		return "", err
	}
	if err := sqlTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return t.ID, nil
}

// UpdateTemplate rewrites the rule and payload columns of an existing
// template. Exclusion rows and created_at are left alone.
func (s *Store) UpdateTemplate(ctx context.Context, t recurrence.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateTemplate(ctx, s.db, t)
}

// DeleteTemplate removes a template; its exclusions go with it.
func (s *Store) DeleteTemplate(ctx context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteTemplate(ctx, s.db, scope, id)
}

func loadTemplates(ctx context.Context, q querier, scope recurrence.ScopeID) ([]recurrence.Template, error) {
	rows, err := q.QueryContext(ctx, `SELECT`+templateColumns+`
		FROM templates
		WHERE scope_id = ?
		ORDER BY id ASC`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	result := []recurrence.Template{}
	index := make(map[recurrence.TemplateID]int)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		index[t.ID] = len(result)
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	exclusions, err := q.QueryContext(ctx, `
		SELECT template_id, excluded_date
		FROM template_exclusions
		WHERE scope_id = ?`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer exclusions.Close()

	for exclusions.Next() {
		var (
			templateID recurrence.TemplateID
			raw        string
		)
		if err := exclusions.Scan(&templateID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		i, ok := index[templateID]
		if !ok {
			continue
		}
		d, err := recurrence.ParseDateLoose(raw)
		if err != nil {
			return nil, fmt.Errorf("template %q: stored exclusion: %w", templateID, err)
		}
		// Rows are unique per date, so Add never conflicts here.
		_ = result[i].Exclusions.Add(d)
	}
	return result, exclusions.Err()
}

func getTemplate(ctx context.Context, q querier, scope recurrence.ScopeID, id recurrence.TemplateID) (recurrence.Template, error) {
	rows, err := q.QueryContext(ctx, `SELECT`+templateColumns+`
		FROM templates
		WHERE scope_id = ? AND id = ?`, scope, id)
	if err != nil {
		return recurrence.Template{}, fmt.Errorf("failed to query template: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return recurrence.Template{}, err
		}
		return recurrence.Template{}, &recurrence.NotFoundError{ScopeID: scope, TemplateID: id}
	}
	t, err := scanTemplate(rows)
	if err != nil {
		return recurrence.Template{}, err
	}
	rows.Close()

	dates, err := loadExclusions(ctx, q, scope, id)
	if err != nil {
		return recurrence.Template{}, err
	}
	t.Exclusions = recurrence.NewExclusionSet(dates...)
	return t, nil
}

func loadExclusions(ctx context.Context, q querier, scope recurrence.ScopeID, id recurrence.TemplateID) ([]recurrence.Date, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT excluded_date
		FROM template_exclusions
		WHERE scope_id = ? AND template_id = ?
		ORDER BY excluded_date ASC`, scope, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

	var dates []recurrence.Date
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		d, err := recurrence.ParseDateLoose(raw)
		if err != nil {
			return nil, fmt.Errorf("template %q: stored exclusion: %w", id, err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// appendExclusion relies on the primary key of template_exclusions: the
// insert either adds the row or does nothing, never both for two callers.
func appendExclusion(ctx context.Context, q querier, scope recurrence.ScopeID, id recurrence.TemplateID, date recurrence.Date) (recurrence.AppendResult, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO template_exclusions (scope_id, template_id, excluded_date, created_at)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM templates WHERE scope_id = ? AND id = ?)
		ON CONFLICT (scope_id, template_id, excluded_date) DO NOTHING`,
		scope, id, date.String(), time.Now().UTC().Format(time.RFC3339),
		scope, id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append exclusion: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return recurrence.AppendSuccess, nil
	}

	var exists int
	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM templates WHERE scope_id = ? AND id = ?",
		scope, id,
	).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return recurrence.AppendNotFound, nil
	}
	return recurrence.AppendAlreadyExcluded, nil
}

func insertTemplate(ctx context.Context, q querier, t recurrence.Template) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ScopeID,
		t.ID,
		t.Frequency,
		t.AnchorDate.String(),
		nullWeekday(t.DayOfWeek),
		nullInt(t.DayOfMonth),
		t.Type,
		t.Amount.String(),
		t.Category,
		t.Description,
		t.Person,
		t.BudgetCategory,
		t.IsSalary,
		t.CreatedBy,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return recurrence.ErrDuplicateTemplate
		}
		return fmt.Errorf("failed to insert template: %w", err)
	}

	for _, d := range t.Exclusions.Dates() {
		if _, err := appendExclusion(ctx, q, t.ScopeID, t.ID, d); err != nil {
			return err
		}
	}
	return nil
}

func updateTemplate(ctx context.Context, q querier, t recurrence.Template) error {
	res, err := q.ExecContext(ctx, `
		UPDATE templates SET
			frequency = ?, anchor_date = ?, day_of_week = ?, day_of_month = ?,
			type = ?, amount = ?, category = ?, description = ?, person = ?,
			budget_category = ?, is_salary = ?, created_by = ?
		WHERE scope_id = ? AND id = ?`,
		t.Frequency,
		t.AnchorDate.String(),
		nullWeekday(t.DayOfWeek),
		nullInt(t.DayOfMonth),
		t.Type,
		t.Amount.String(),
		t.Category,
		t.Description,
		t.Person,
		t.BudgetCategory,
		t.IsSalary,
		t.CreatedBy,
		t.ScopeID,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &recurrence.NotFoundError{ScopeID: t.ScopeID, TemplateID: t.ID}
	}
	return nil
}

func deleteTemplate(ctx context.Context, q querier, scope recurrence.ScopeID, id recurrence.TemplateID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM templates WHERE scope_id = ? AND id = ?", scope, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &recurrence.NotFoundError{ScopeID: scope, TemplateID: id}
	}
	return nil
}

func scanTemplate(rows *sql.Rows) (recurrence.Template, error) {
	var (
		t                     recurrence.Template
		anchor, amount        string
		createdAt             string
		dayOfWeek, dayOfMonth sql.NullInt64
	)
	err := rows.Scan(
		&t.ScopeID,
		&t.ID,
		&t.Frequency,
		&anchor,
		&dayOfWeek,
		&dayOfMonth,
		&t.Type,
		&amount,
		&t.Category,
		&t.Description,
		&t.Person,
		&t.BudgetCategory,
		&t.IsSalary,
		&t.CreatedBy,
		&createdAt,
	)
	if err != nil {
		return recurrence.Template{}, fmt.Errorf("failed to scan template: %w", err)
	}

	// Rows written by older clients may carry a timestamp instead of a date.
	if t.AnchorDate, err = recurrence.ParseDateLoose(anchor); err != nil {
		return recurrence.Template{}, fmt.Errorf("template %q: anchor_date: %w", t.ID, err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return recurrence.Template{}, fmt.Errorf("template %q: amount: %w", t.ID, err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	t.DayOfWeek = mo.None[recurrence.Weekday]()
	if dayOfWeek.Valid {
		t.DayOfWeek = mo.Some(recurrence.Weekday(dayOfWeek.Int64))
	}
	t.DayOfMonth = mo.None[int]()
	if dayOfMonth.Valid {
		t.DayOfMonth = mo.Some(int(dayOfMonth.Int64))
	}
	t.Exclusions = recurrence.NewExclusionSet()
	return t, nil
}

// =============================================================================
// TRANSACTIONAL STORE (recurrence.TxTemplateStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store passed
// to fn must not be used after fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(store recurrence.TemplateStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LoadTemplates(ctx context.Context, scope recurrence.ScopeID) ([]recurrence.Template, error) {
	return loadTemplates(ctx, ts.tx, scope)
}

func (ts *txStore) GetTemplate(ctx context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) (recurrence.Template, error) {
	return getTemplate(ctx, ts.tx, scope, id)
}

func (ts *txStore) AppendExclusion(ctx context.Context, scope recurrence.ScopeID, id recurrence.TemplateID, date recurrence.Date) (recurrence.AppendResult, error) {
	return appendExclusion(ctx, ts.tx, scope, id, date)
}

// InsertTemplate runs inside a savepoint so a duplicate insert doesn't
// poison the enclosing transaction.
func (ts *txStore) InsertTemplate(ctx context.Context, t recurrence.Template) (recurrence.TemplateID, error) {
	if _, err := ts.tx.ExecContext(ctx, "SAVEPOINT insert_template"); err != nil {
		return "", err
	}
	if err := insertTemplate(ctx, ts.tx, t); err != nil {
		if _, rbErr := ts.tx.ExecContext(ctx, "ROLLBACK TO insert_template; RELEASE insert_template"); rbErr != nil {
			return "", errors.Join(err, rbErr)
		}
		return "", err
	}
	if _, err := ts.tx.ExecContext(ctx, "RELEASE insert_template"); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (ts *txStore) UpdateTemplate(ctx context.Context, t recurrence.Template) error {
	return updateTemplate(ctx, ts.tx, t)
}

func (ts *txStore) DeleteTemplate(ctx context.Context, scope recurrence.ScopeID, id recurrence.TemplateID) error {
	return deleteTemplate(ctx, ts.tx, scope, id)
}

// Helper functions

func nullInt(o mo.Option[int]) sql.NullInt64 {
	v, ok := o.Get()
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func nullWeekday(o mo.Option[recurrence.Weekday]) sql.NullInt64 {
	v, ok := o.Get()
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}

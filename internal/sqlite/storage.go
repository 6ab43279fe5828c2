package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/guilherme-santos/clinicagenda/internal"
	"github.com/jmoiron/sqlx"
)

const DriverName = "sqlite3"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sql.DB) *Storage {
	s := &Storage{
		db: sqlx.NewDb(db, DriverName),
	}
	err := s.RunMigrations()
	if err != nil {
		panic(fmt.Sprintf("sqlite: running migrations: %v", err))
	}
	return s
}

// Get returns the configuration value stored under key. A missing key is not
// an error, ok is false instead.
func (s Storage) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.GetContext(ctx, &value, `
		SELECT value FROM config WHERE name = ?
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s Storage) Upsert(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = ?;
	`, key, value, value)
	return err
}

func (s Storage) PendingAppointments(ctx context.Context) ([]*internal.Event, error) {
	var rows []Appointment

	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, patient, procedure, professional, contact, status, color, starts_at, ends_at
		FROM appointments
		ORDER BY starts_at, id
	`)
	if err != nil {
		return nil, err
	}

	res := make([]*internal.Event, len(rows))
	for i, a := range rows {
		res[i] = a.Convert()
	}
	return res, nil
}

func (s Storage) CreateAppointment(ctx context.Context, e *internal.Event) (int64, error) {
	a := newAppointment(e)
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO appointments (patient, procedure, professional, contact, status, color, starts_at, ends_at)
		VALUES (:patient, :procedure, :professional, :contact, :status, :color, :starts_at, :ends_at)
	`, a)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s Storage) UpdateAppointment(ctx context.Context, e *internal.Event) error {
	a := newAppointment(e)
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE appointments
		SET patient = :patient, procedure = :procedure, professional = :professional,
			contact = :contact, status = :status, color = :color,
			starts_at = :starts_at, ends_at = :ends_at
		WHERE id = :id
	`, a)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (s Storage) DeleteAppointment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM appointments WHERE id = ?
	`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return internal.ErrNotFound
	}
	return nil
}

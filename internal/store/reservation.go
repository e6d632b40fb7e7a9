package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/libreserve/apiserver/types"
)

// ReservationRepository handles persistence for reservations.
type ReservationRepository struct {
	db *sqlx.DB
}

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `id, user_id, book_id, reservation_date, return_date, status, created_at, updated_at`

// ReservationFilter is the conjunctive search filter for reservations.
// Zero-valued fields are not applied.
type ReservationFilter struct {
	UserID int
	BookID int
	Status types.ReservationStatus
	From   *time.Time
	Until  *time.Time
}

func (f ReservationFilter) expressions() []goqu.Expression {
	exprs := make([]goqu.Expression, 0, 5)
	if f.UserID != 0 {
		exprs = append(exprs, goqu.C("user_id").Eq(f.UserID))
	}
	if f.BookID != 0 {
		exprs = append(exprs, goqu.C("book_id").Eq(f.BookID))
	}
	if f.Status != "" {
		exprs = append(exprs, goqu.C("status").Eq(string(f.Status)))
	}
	if f.From != nil {
		exprs = append(exprs, goqu.C("reservation_date").Gte(*f.From))
	}
	if f.Until != nil {
		exprs = append(exprs, goqu.C("reservation_date").Lte(*f.Until))
	}
	return exprs
}

func (r *ReservationRepository) Get(ctx context.Context, id int) (types.Reservation, error) {
	const query = `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE id = $1`
	var reservation types.Reservation
	if err := r.db.GetContext(ctx, &reservation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Reservation{}, ErrNotFound
		}
		return types.Reservation{}, err
	}
	return reservation, nil
}

func (r *ReservationRepository) Create(ctx context.Context, reservation types.Reservation) (types.Reservation, error) {
	now := time.Now()
	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	if reservation.ReservationDate.IsZero() {
		reservation.ReservationDate = now
	}
	if reservation.Status == "" {
		reservation.Status = types.ReservationActive
	}

	const query = `
		INSERT INTO reservations (user_id, book_id, reservation_date, return_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		reservation.UserID,
		reservation.BookID,
		reservation.ReservationDate,
		reservation.ReturnDate,
		reservation.Status,
		reservation.CreatedAt,
		reservation.UpdatedAt,
	).Scan(&reservation.ID); err != nil {
		return types.Reservation{}, err
	}
	return reservation, nil
}

// Search returns one page of matching reservations plus the total match
// count, newest first.
func (r *ReservationRepository) Search(ctx context.Context, filter ReservationFilter, offset, limit int) ([]types.Reservation, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	where := filter.expressions()
	dialect := goqu.Dialect(dialectPostgres)

	countSQL, countArgs, err := dialect.
		From("reservations").
		Select(goqu.COUNT("*")).
		Where(where...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, err
	}

	listSQL, listArgs, err := dialect.
		From("reservations").
		Select(
			"id", "user_id", "book_id", "reservation_date", "return_date",
			"status", "created_at", "updated_at",
		).
		Where(where...).
		Order(goqu.I("created_at").Desc(), goqu.I("id").Desc()).
		Offset(uint(offset)).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}

	reservations := make([]types.Reservation, 0, limit)
	if err := r.db.SelectContext(ctx, &reservations, listSQL, listArgs...); err != nil {
		return nil, 0, err
	}

	return reservations, total, nil
}

// Complete transitions an active reservation to completed, stamps the
// return date, and returns the claimed copy to the book's pool. The
// conditional update is keyed on the current status, so a reservation can
// only be completed once, and the transition and the copy release commit in
// one transaction. Returns ErrNotActive when the reservation exists but is
// already terminal.
func (r *ReservationRepository) Complete(ctx context.Context, id int, returnDate time.Time) (types.Reservation, error) {
	const query = `
		UPDATE reservations
		SET status = $1,
			return_date = $2,
			updated_at = $3
		WHERE id = $4
			AND status = $5
		RETURNING ` + reservationColumns
	return r.transition(ctx, id, func(tx *sqlx.Tx) (types.Reservation, error) {
		var reservation types.Reservation
		err := tx.GetContext(ctx, &reservation, query,
			types.ReservationCompleted, returnDate, time.Now(), id, types.ReservationActive)
		return reservation, err
	})
}

// Cancel transitions an active reservation to cancelled and returns the
// claimed copy to the book's pool. The return date stays null. Same
// conditional-update semantics as Complete.
func (r *ReservationRepository) Cancel(ctx context.Context, id int) (types.Reservation, error) {
	const query = `
		UPDATE reservations
		SET status = $1,
			updated_at = $2
		WHERE id = $3
			AND status = $4
		RETURNING ` + reservationColumns
	return r.transition(ctx, id, func(tx *sqlx.Tx) (types.Reservation, error) {
		var reservation types.Reservation
		err := tx.GetContext(ctx, &reservation, query,
			types.ReservationCancelled, time.Now(), id, types.ReservationActive)
		return reservation, err
	})
}

// transition runs the conditional status update and the book copy release in
// a single transaction. Either both commit or neither does, so a terminal
// reservation can never be left with an unreturned copy.
func (r *ReservationRepository) transition(ctx context.Context, id int, update func(tx *sqlx.Tx) (types.Reservation, error)) (types.Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.Reservation{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	reservation, err := update(tx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Reservation{}, r.transitionFailure(ctx, id)
		}
		return types.Reservation{}, err
	}

	var book types.Book
	if err := tx.GetContext(ctx, &book, releaseCopyQuery, time.Now(), reservation.BookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Reservation{}, ErrNotFound
		}
		return types.Reservation{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Reservation{}, err
	}
	return reservation, nil
}

// transitionFailure distinguishes a missing reservation from one in a
// terminal state after a conditional update matched nothing.
func (r *ReservationRepository) transitionFailure(ctx context.Context, id int) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotActive
}

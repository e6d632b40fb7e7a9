package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jmoiron/sqlx"
	"github.com/libreserve/apiserver/types"
)

const dialectPostgres = "postgres"

// BookRepository handles persistence for catalog records.
type BookRepository struct {
	db *sqlx.DB
}

func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

const bookColumns = `id, title, author, isbn, genre, publisher, publish_date, description,
		total_copies, available_copies, is_available, is_active, created_at, updated_at`

// BookFilter is the conjunctive search filter for the catalog.
// Zero-valued fields are not applied.
type BookFilter struct {
	Title           string
	Author          string
	Genre           string
	Publisher       string
	ISBN            string
	IsAvailable     *bool
	PublishedFrom   *time.Time
	PublishedUntil  *time.Time
	IncludeInactive bool
}

func (f BookFilter) expressions() []goqu.Expression {
	exprs := make([]goqu.Expression, 0, 8)
	if f.Title != "" {
		exprs = append(exprs, goqu.C("title").ILike("%"+f.Title+"%"))
	}
	if f.Author != "" {
		exprs = append(exprs, goqu.C("author").ILike("%"+f.Author+"%"))
	}
	if f.Genre != "" {
		exprs = append(exprs, goqu.C("genre").ILike("%"+f.Genre+"%"))
	}
	if f.Publisher != "" {
		exprs = append(exprs, goqu.C("publisher").ILike("%"+f.Publisher+"%"))
	}
	if f.ISBN != "" {
		exprs = append(exprs, goqu.C("isbn").Eq(f.ISBN))
	}
	if f.IsAvailable != nil {
		exprs = append(exprs, goqu.C("is_available").Eq(*f.IsAvailable))
	}
	if f.PublishedFrom != nil {
		exprs = append(exprs, goqu.C("publish_date").Gte(*f.PublishedFrom))
	}
	if f.PublishedUntil != nil {
		exprs = append(exprs, goqu.C("publish_date").Lte(*f.PublishedUntil))
	}
	if !f.IncludeInactive {
		exprs = append(exprs, goqu.C("is_active").IsTrue())
	}
	return exprs
}

// Search returns one page of matching books plus the total match count,
// newest first.
func (r *BookRepository) Search(ctx context.Context, filter BookFilter, offset, limit int) ([]types.Book, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	where := filter.expressions()
	dialect := goqu.Dialect(dialectPostgres)

	countSQL, countArgs, err := dialect.
		From("books").
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
		From("books").
		Select(
			"id", "title", "author", "isbn", "genre", "publisher", "publish_date",
			"description", "total_copies", "available_copies", "is_available",
			"is_active", "created_at", "updated_at",
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

	books := make([]types.Book, 0, limit)
	if err := r.db.SelectContext(ctx, &books, listSQL, listArgs...); err != nil {
		return nil, 0, err
	}

	return books, total, nil
}

func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	const query = `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = $1`
	var book types.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now
	book.AvailableCopies = book.TotalCopies
	book.IsAvailable = book.AvailableCopies > 0

	const query = `
		INSERT INTO books (title, author, isbn, genre, publisher, publish_date, description,
			total_copies, available_copies, is_available, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Genre,
		book.Publisher,
		book.PublishDate,
		book.Description,
		book.TotalCopies,
		book.AvailableCopies,
		book.IsAvailable,
		book.IsActive,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Book{}, ErrConflict
		}
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	// Copy counts are clamped and the availability flag re-derived so that
	// direct edits cannot break the accounting invariant.
	if book.AvailableCopies > book.TotalCopies {
		book.AvailableCopies = book.TotalCopies
	}
	if book.AvailableCopies < 0 {
		book.AvailableCopies = 0
	}
	book.IsAvailable = book.AvailableCopies > 0

	const query = `
		UPDATE books
		SET title = $1,
			author = $2,
			isbn = $3,
			genre = $4,
			publisher = $5,
			publish_date = $6,
			description = $7,
			total_copies = $8,
			available_copies = $9,
			is_available = $10,
			updated_at = $11
		WHERE id = $12`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Genre,
		book.Publisher,
		book.PublishDate,
		book.Description,
		book.TotalCopies,
		book.AvailableCopies,
		book.IsAvailable,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Book{}, ErrConflict
		}
		return types.Book{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Book{}, err
	}
	if affected == 0 {
		return types.Book{}, ErrNotFound
	}
	return book, nil
}

// Deactivate clears the active flag. The record is retained.
func (r *BookRepository) Deactivate(ctx context.Context, id int) error {
	const query = `
		UPDATE books
		SET is_active = FALSE,
			updated_at = $1
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReserveCopy atomically claims one copy of the book. The decrement only
// applies while the book is active and still has an available copy, so two
// requests racing for the last copy cannot both succeed. Returns
// ErrNotAvailable when the precondition fails for any reason (no copies,
// inactive, or unknown id).
func (r *BookRepository) ReserveCopy(ctx context.Context, id int) (types.Book, error) {
	const query = `
		UPDATE books
		SET available_copies = available_copies - 1,
			is_available = available_copies - 1 > 0,
			updated_at = $1
		WHERE id = $2
			AND is_active
			AND available_copies > 0
		RETURNING ` + bookColumns
	var book types.Book
	if err := r.db.GetContext(ctx, &book, query, time.Now(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotAvailable
		}
		return types.Book{}, err
	}
	return book, nil
}

// releaseCopyQuery returns one copy to the pool. The increment is capped at
// total_copies and the availability flag is re-derived. Shared with the
// reservation transition transactions.
const releaseCopyQuery = `
	UPDATE books
	SET available_copies = LEAST(available_copies + 1, total_copies),
		is_available = LEAST(available_copies + 1, total_copies) > 0,
		updated_at = $1
	WHERE id = $2
	RETURNING ` + bookColumns

// ReleaseCopy returns one copy of the book to the pool.
func (r *BookRepository) ReleaseCopy(ctx context.Context, id int) (types.Book, error) {
	var book types.Book
	if err := r.db.GetContext(ctx, &book, releaseCopyQuery, time.Now(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

package services

import (
	"context"

	"github.com/libreserve/apiserver/internal/store"
	"github.com/libreserve/apiserver/types"
)

// BookRepository defines persistence operations for books.
type BookRepository interface {
	Search(ctx context.Context, filter store.BookFilter, offset, limit int) ([]types.Book, int, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	Deactivate(ctx context.Context, id int) error
	ReserveCopy(ctx context.Context, id int) (types.Book, error)
	ReleaseCopy(ctx context.Context, id int) (types.Book, error)
}

// BookService encapsulates catalog use-cases.
type BookService struct {
	repo BookRepository
}

func NewBookService(repo BookRepository) *BookService {
	return &BookService{repo: repo}
}

func (s *BookService) Search(ctx context.Context, filter store.BookFilter, offset, limit int) ([]types.Book, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.Search(ctx, filter, offset, limit)
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	return s.repo.Get(ctx, id)
}

func (s *BookService) Create(ctx context.Context, book types.Book) (types.Book, error) {
	book.IsActive = true
	return s.repo.Create(ctx, book)
}

func (s *BookService) Update(ctx context.Context, book types.Book) (types.Book, error) {
	return s.repo.Update(ctx, book)
}

func (s *BookService) Deactivate(ctx context.Context, id int) error {
	return s.repo.Deactivate(ctx, id)
}

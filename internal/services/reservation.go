package services

import (
	"context"
	"fmt"
	"time"

	"github.com/libreserve/apiserver/internal/store"
	"github.com/libreserve/apiserver/types"
)

// ReservationRepository defines persistence operations for reservations.
// Complete and Cancel also return the claimed copy to the book's pool; the
// transition and the release commit atomically.
type ReservationRepository interface {
	Get(ctx context.Context, id int) (types.Reservation, error)
	Create(ctx context.Context, reservation types.Reservation) (types.Reservation, error)
	Search(ctx context.Context, filter store.ReservationFilter, offset, limit int) ([]types.Reservation, int, error)
	Complete(ctx context.Context, id int, returnDate time.Time) (types.Reservation, error)
	Cancel(ctx context.Context, id int) (types.Reservation, error)
}

// ReservationService orchestrates the reservation lifecycle against the
// reservation and book stores. A reservation always corresponds to exactly
// one decremented copy: the copy is claimed first via the book store's
// conditional update, and the reservation record is only created after the
// claim succeeds.
type ReservationService struct {
	repo  ReservationRepository
	books BookRepository
}

func NewReservationService(repo ReservationRepository, books BookRepository) *ReservationService {
	return &ReservationService{repo: repo, books: books}
}

func (s *ReservationService) Get(ctx context.Context, id int) (types.Reservation, error) {
	return s.repo.Get(ctx, id)
}

func (s *ReservationService) Search(ctx context.Context, filter store.ReservationFilter, offset, limit int) ([]types.Reservation, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.Search(ctx, filter, offset, limit)
}

// Reserve claims a copy of the book for the user and records the
// reservation. Returns store.ErrNotAvailable when no copy can be claimed;
// no reservation is created in that case. If recording the reservation
// fails after the claim, the copy is released again.
func (s *ReservationService) Reserve(ctx context.Context, userID, bookID int) (types.Reservation, types.Book, error) {
	book, err := s.books.ReserveCopy(ctx, bookID)
	if err != nil {
		return types.Reservation{}, types.Book{}, err
	}

	reservation, err := s.repo.Create(ctx, types.Reservation{
		UserID:          userID,
		BookID:          bookID,
		ReservationDate: time.Now(),
		Status:          types.ReservationActive,
	})
	if err != nil {
		if _, releaseErr := s.books.ReleaseCopy(ctx, bookID); releaseErr != nil {
			return types.Reservation{}, types.Book{}, fmt.Errorf("record reservation: %w (release copy: %v)", err, releaseErr)
		}
		return types.Reservation{}, types.Book{}, err
	}

	return reservation, book, nil
}

// Complete transitions an active reservation to completed, stamps the
// return date, and returns the claimed copy to the book's pool. The store
// commits the transition and the release atomically, so a reservation that
// is already terminal fails with store.ErrNotActive and the book is never
// mutated on failure.
func (s *ReservationService) Complete(ctx context.Context, id int) (types.Reservation, error) {
	return s.repo.Complete(ctx, id, time.Now())
}

// Cancel transitions an active reservation to cancelled and returns the
// claimed copy to the book's pool. The return date stays unset.
func (s *ReservationService) Cancel(ctx context.Context, id int) (types.Reservation, error) {
	return s.repo.Cancel(ctx, id)
}

package handlers

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/libreserve/apiserver/internal/services"
	"github.com/libreserve/apiserver/internal/store"
	"github.com/libreserve/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type memUserRepo struct {
	users  map[int]*types.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int]*types.User), nextID: 1}
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return *user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return *user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrConflict
	}
	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users[user.ID] = &user
	return user, nil
}

func (r *memUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for _, other := range r.users {
		if other.ID != user.ID && other.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = &user
	return user, nil
}

func (r *memUserRepo) Deactivate(ctx context.Context, id int) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.IsActive = false
	return nil
}

type memBookRepo struct {
	books  map[int]*types.Book
	nextID int
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{books: make(map[int]*types.Book), nextID: 1}
}

func (r *memBookRepo) Search(ctx context.Context, filter store.BookFilter, offset, limit int) ([]types.Book, int, error) {
	matches := make([]types.Book, 0, len(r.books))
	for _, book := range r.books {
		if !filter.IncludeInactive && !book.IsActive {
			continue
		}
		if filter.IsAvailable != nil && book.IsAvailable != *filter.IsAvailable {
			continue
		}
		matches = append(matches, *book)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })

	total := len(matches)
	if offset >= total {
		return []types.Book{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matches[offset:end], total, nil
}

func (r *memBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return *book, nil
}

func (r *memBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	for _, other := range r.books {
		if other.ISBN == book.ISBN {
			return types.Book{}, store.ErrConflict
		}
	}
	now := time.Now()
	book.ID = r.nextID
	book.CreatedAt = now
	book.UpdatedAt = now
	book.AvailableCopies = book.TotalCopies
	book.IsAvailable = book.AvailableCopies > 0
	r.nextID++
	r.books[book.ID] = &book
	return book, nil
}

func (r *memBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if _, ok := r.books[book.ID]; !ok {
		return types.Book{}, store.ErrNotFound
	}
	for _, other := range r.books {
		if other.ID != book.ID && other.ISBN == book.ISBN {
			return types.Book{}, store.ErrConflict
		}
	}
	if book.AvailableCopies > book.TotalCopies {
		book.AvailableCopies = book.TotalCopies
	}
	book.IsAvailable = book.AvailableCopies > 0
	book.UpdatedAt = time.Now()
	r.books[book.ID] = &book
	return book, nil
}

func (r *memBookRepo) Deactivate(ctx context.Context, id int) error {
	book, ok := r.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.IsActive = false
	return nil
}

func (r *memBookRepo) ReserveCopy(ctx context.Context, id int) (types.Book, error) {
	book, ok := r.books[id]
	if !ok || !book.IsActive || book.AvailableCopies < 1 {
		return types.Book{}, store.ErrNotAvailable
	}
	book.AvailableCopies--
	book.IsAvailable = book.AvailableCopies > 0
	return *book, nil
}

func (r *memBookRepo) ReleaseCopy(ctx context.Context, id int) (types.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	book.IsAvailable = book.AvailableCopies > 0
	return *book, nil
}

type memReservationRepo struct {
	reservations map[int]*types.Reservation
	books        *memBookRepo
	nextID       int
}

func newMemReservationRepo(books *memBookRepo) *memReservationRepo {
	return &memReservationRepo{
		reservations: make(map[int]*types.Reservation),
		books:        books,
		nextID:       1,
	}
}

func (r *memReservationRepo) Get(ctx context.Context, id int) (types.Reservation, error) {
	reservation, ok := r.reservations[id]
	if !ok {
		return types.Reservation{}, store.ErrNotFound
	}
	return *reservation, nil
}

func (r *memReservationRepo) Create(ctx context.Context, reservation types.Reservation) (types.Reservation, error) {
	now := time.Now()
	reservation.ID = r.nextID
	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	r.nextID++
	r.reservations[reservation.ID] = &reservation
	return reservation, nil
}

func (r *memReservationRepo) Search(ctx context.Context, filter store.ReservationFilter, offset, limit int) ([]types.Reservation, int, error) {
	matches := make([]types.Reservation, 0, len(r.reservations))
	for _, reservation := range r.reservations {
		if filter.UserID != 0 && reservation.UserID != filter.UserID {
			continue
		}
		if filter.BookID != 0 && reservation.BookID != filter.BookID {
			continue
		}
		if filter.Status != "" && reservation.Status != filter.Status {
			continue
		}
		matches = append(matches, *reservation)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })

	total := len(matches)
	if offset >= total {
		return []types.Reservation{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matches[offset:end], total, nil
}

func (r *memReservationRepo) Complete(ctx context.Context, id int, returnDate time.Time) (types.Reservation, error) {
	reservation, ok := r.reservations[id]
	if !ok {
		return types.Reservation{}, store.ErrNotFound
	}
	if reservation.Status != types.ReservationActive {
		return types.Reservation{}, store.ErrNotActive
	}
	reservation.Status = types.ReservationCompleted
	reservation.ReturnDate = &returnDate
	reservation.UpdatedAt = time.Now()
	if _, err := r.books.ReleaseCopy(ctx, reservation.BookID); err != nil {
		return types.Reservation{}, err
	}
	return *reservation, nil
}

func (r *memReservationRepo) Cancel(ctx context.Context, id int) (types.Reservation, error) {
	reservation, ok := r.reservations[id]
	if !ok {
		return types.Reservation{}, store.ErrNotFound
	}
	if reservation.Status != types.ReservationActive {
		return types.Reservation{}, store.ErrNotActive
	}
	reservation.Status = types.ReservationCancelled
	reservation.UpdatedAt = time.Now()
	if _, err := r.books.ReleaseCopy(ctx, reservation.BookID); err != nil {
		return types.Reservation{}, err
	}
	return *reservation, nil
}

// testEnv bundles a fully wired router and its backing fakes.
type testEnv struct {
	router       *chi.Mux
	users        *memUserRepo
	books        *memBookRepo
	reservations *memReservationRepo
}

func newTestEnv() *testEnv {
	users := newMemUserRepo()
	books := newMemBookRepo()
	reservations := newMemReservationRepo(books)

	userService := services.NewUserService(users)
	bookService := services.NewBookService(books)
	reservationService := services.NewReservationService(reservations, books)

	auth := RequireAuth(testSecret)

	router := chi.NewRouter()
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, userService, testSecret)
	})
	router.Route("/books", func(r chi.Router) {
		BookRouter(r, bookService, auth)
	})
	router.Route("/reservations", func(r chi.Router) {
		ReservationRouter(r, reservationService, auth)
	})

	return &testEnv{
		router:       router,
		users:        users,
		books:        books,
		reservations: reservations,
	}
}

// seedUser creates a user directly in the fake store and returns it with a
// valid token.
func (e *testEnv) seedUser(t *testing.T, email string, perms ...types.Permission) (types.User, string) {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	user, err := e.users.Create(context.Background(), types.User{
		Email:        email,
		Name:         "Test User",
		Permissions:  types.PermissionList(perms),
		PasswordHash: string(hashed),
		IsActive:     true,
	})
	require.NoError(t, err)

	token, err := issueToken(user, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	return user, token
}

func (e *testEnv) seedBook(t *testing.T, isbn string, total, available int) types.Book {
	t.Helper()

	book, err := e.books.Create(context.Background(), types.Book{
		Title:       "Seeded Book",
		Author:      "Seeded Author",
		ISBN:        isbn,
		Genre:       "fiction",
		Publisher:   "Seeded Press",
		PublishDate: time.Date(2001, 6, 1, 0, 0, 0, 0, time.UTC),
		TotalCopies: total,
		IsActive:    true,
	})
	require.NoError(t, err)

	if available != total {
		book.AvailableCopies = available
		book, err = e.books.Update(context.Background(), book)
		require.NoError(t, err)
	}
	return book
}

func authHeader(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

func jsonBody(body string) io.Reader {
	return strings.NewReader(body)
}

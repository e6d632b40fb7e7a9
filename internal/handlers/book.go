package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/libreserve/apiserver/internal/services"
	"github.com/libreserve/apiserver/internal/store"
	"github.com/libreserve/apiserver/types"
)

// BookHandler provides HTTP handlers for the catalog.
type BookHandler struct {
	bookService *services.BookService
}

// NewBookHandler constructs a handler with the provided service.
func NewBookHandler(bookService *services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRouter registers book routes on the given router. Search and fetch
// are public; mutations are gated per permission.
func BookRouter(r chi.Router, bookService *services.BookService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewBookHandler(bookService)

	r.Get("/", handler.SearchBooks)
	r.With(authMiddleware, RequirePermissions(types.PermissionCreateBooks)).
		Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.With(authMiddleware, RequirePermissions(types.PermissionModifyBooks)).
			Put("/", handler.UpdateBook)
		r.With(authMiddleware, RequirePermissions(types.PermissionDisableBooks)).
			Delete("/", handler.DeleteBook)
	})
}

type BookUpsertRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Genre       string `json:"genre"`
	Publisher   string `json:"publisher"`
	PublishDate string `json:"publishDate"`
	Description string `json:"description"`
	TotalCopies int    `json:"totalCopies"`
}

// BookUpdateRequest is the partial-merge payload for book updates.
type BookUpdateRequest struct {
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	ISBN            *string `json:"isbn"`
	Genre           *string `json:"genre"`
	Publisher       *string `json:"publisher"`
	PublishDate     *string `json:"publishDate"`
	Description     *string `json:"description"`
	TotalCopies     *int    `json:"totalCopies"`
	AvailableCopies *int    `json:"availableCopies"`
}

// BookListResponse is the paginated search response payload.
type BookListResponse struct {
	Books      []types.Book `json:"books"`
	Pagination Pagination   `json:"pagination"`
}

// SearchBooks applies the conjunctive filter from the query string and
// returns one page of results. Inactive records are excluded unless
// includeInactive is set.
func (h *BookHandler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter, err := parseBookFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	books, total, err := h.bookService.Search(r.Context(), filter, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search books")
		return
	}

	writeData(w, http.StatusOK, BookListResponse{
		Books:      books,
		Pagination: newPagination(total, page, limit),
	})
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch book")
		return
	}

	writeData(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req BookUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.ISBN = strings.TrimSpace(req.ISBN)
	req.Genre = strings.TrimSpace(req.Genre)
	req.Publisher = strings.TrimSpace(req.Publisher)
	if req.Title == "" || req.Author == "" || req.ISBN == "" || req.Genre == "" || req.Publisher == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if req.TotalCopies < 0 {
		writeError(w, http.StatusBadRequest, "invalid total copies")
		return
	}

	publishDate, err := parseDate(req.PublishDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid publish date")
		return
	}

	created, err := h.bookService.Create(r.Context(), types.Book{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Genre:       req.Genre,
		Publisher:   req.Publisher,
		PublishDate: publishDate,
		Description: req.Description,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "a book with this ISBN already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create book")
		return
	}

	writeData(w, http.StatusCreated, created)
}

// UpdateBook applies a field-level merge. Copy counts are clamped and the
// availability flag re-derived by the store.
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req BookUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch book")
		return
	}

	if req.Title != nil {
		book.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		book.Author = strings.TrimSpace(*req.Author)
	}
	if req.ISBN != nil {
		book.ISBN = strings.TrimSpace(*req.ISBN)
	}
	if req.Genre != nil {
		book.Genre = strings.TrimSpace(*req.Genre)
	}
	if req.Publisher != nil {
		book.Publisher = strings.TrimSpace(*req.Publisher)
	}
	if req.Description != nil {
		book.Description = *req.Description
	}
	if req.PublishDate != nil {
		publishDate, err := parseDate(*req.PublishDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid publish date")
			return
		}
		book.PublishDate = publishDate
	}
	if req.TotalCopies != nil {
		if *req.TotalCopies < 0 {
			writeError(w, http.StatusBadRequest, "invalid total copies")
			return
		}
		book.TotalCopies = *req.TotalCopies
	}
	if req.AvailableCopies != nil {
		if *req.AvailableCopies < 0 {
			writeError(w, http.StatusBadRequest, "invalid available copies")
			return
		}
		book.AvailableCopies = *req.AvailableCopies
	}
	if book.Title == "" || book.Author == "" || book.ISBN == "" || book.Genre == "" || book.Publisher == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	updated, err := h.bookService.Update(r.Context(), book)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "book not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "a book with this ISBN already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update book")
		}
		return
	}

	writeData(w, http.StatusOK, updated)
}

// DeleteBook soft-deletes the book record.
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to deactivate book")
		return
	}

	writeMessage(w, http.StatusOK, "book successfully deactivated")
}

func parseBookFilter(r *http.Request) (store.BookFilter, error) {
	q := r.URL.Query()

	filter := store.BookFilter{
		Title:     strings.TrimSpace(q.Get("title")),
		Author:    strings.TrimSpace(q.Get("author")),
		Genre:     strings.TrimSpace(q.Get("genre")),
		Publisher: strings.TrimSpace(q.Get("publisher")),
		ISBN:      strings.TrimSpace(q.Get("isbn")),
	}

	if raw := strings.TrimSpace(q.Get("isAvailable")); raw != "" {
		switch raw {
		case "true":
			available := true
			filter.IsAvailable = &available
		case "false":
			available := false
			filter.IsAvailable = &available
		default:
			return store.BookFilter{}, errors.New("invalid isAvailable")
		}
	}

	if raw := strings.TrimSpace(q.Get("publishDateStart")); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			return store.BookFilter{}, errors.New("invalid publishDateStart")
		}
		filter.PublishedFrom = &from
	}
	if raw := strings.TrimSpace(q.Get("publishDateEnd")); raw != "" {
		until, err := parseDate(raw)
		if err != nil {
			return store.BookFilter{}, errors.New("invalid publishDateEnd")
		}
		filter.PublishedUntil = &until
	}

	filter.IncludeInactive = strings.TrimSpace(q.Get("includeInactive")) == "true"

	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing date")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

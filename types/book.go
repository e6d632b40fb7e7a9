package types

import "time"

// Book represents a catalog record in the library.
// Copy accounting is the one piece of state with a real invariant:
// 0 <= AvailableCopies <= TotalCopies, and IsAvailable is always
// derived as AvailableCopies > 0.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the book's title.
	Title string `json:"title" db:"title"`

	// Author is the book's author.
	Author string `json:"author" db:"author"`

	// ISBN is the unique identifying number of the edition.
	ISBN string `json:"isbn" db:"isbn"`

	// Genre is a free-form category label.
	Genre string `json:"genre" db:"genre"`

	// Publisher is the publishing house.
	Publisher string `json:"publisher" db:"publisher"`

	// PublishDate is the publication date of this edition.
	PublishDate time.Time `json:"publishDate" db:"publish_date"`

	// Description is an optional synopsis.
	Description string `json:"description" db:"description"`

	// TotalCopies is the number of physical copies the library owns.
	TotalCopies int `json:"totalCopies" db:"total_copies"`

	// AvailableCopies is the number of copies not currently reserved.
	AvailableCopies int `json:"availableCopies" db:"available_copies"`

	// IsAvailable reports whether at least one copy can be reserved.
	// It is derived from AvailableCopies on every write.
	IsAvailable bool `json:"isAvailable" db:"is_available"`

	// IsActive is cleared instead of deleting the record (soft delete).
	IsActive bool `json:"isActive" db:"is_active"`

	// CreatedAt is the timestamp at which the book was catalogued.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

package types

import "time"

// ReservationStatus is the lifecycle state of a reservation.
// Active is the only non-terminal state; completed and cancelled are
// terminal and admit no further transitions.
type ReservationStatus string

// Supported reservation states.
const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Valid reports whether the status is one of the supported states.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationActive, ReservationCompleted, ReservationCancelled:
		return true
	}
	return false
}

// Reservation links a user to a book for one borrowed copy.
// Reservations are never physically deleted.
type Reservation struct {
	// ID is the unique identifier of the reservation.
	ID int `json:"id" db:"id"`

	// UserID identifies the user who holds the reservation.
	UserID int `json:"userId" db:"user_id"`

	// BookID identifies the reserved book.
	BookID int `json:"bookId" db:"book_id"`

	// ReservationDate is when the copy was reserved.
	ReservationDate time.Time `json:"reservationDate" db:"reservation_date"`

	// ReturnDate is when the copy came back. It is nil while the
	// reservation is active and stays nil for cancelled reservations.
	ReturnDate *time.Time `json:"returnDate" db:"return_date"`

	// Status is the lifecycle state of the reservation.
	Status ReservationStatus `json:"status" db:"status"`

	// CreatedAt is the timestamp when the reservation was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp when the reservation was last updated.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

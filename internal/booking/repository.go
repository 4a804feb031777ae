package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("booking not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `booking_id, facility_description, booking_date_from, booking_date_to, booked_by, booking_status`

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (Booking, error) {
	var b Booking
	var description, bookedBy, status sql.NullString
	if err := row.Scan(&b.ID, &description, &b.BookingDateFrom, &b.BookingDateTo, &bookedBy, &status); err != nil {
		return Booking{}, err
	}
	b.FacilityDescription = description.String
	b.BookedBy = bookedBy.String
	b.BookingStatus = status.String
	b.BookingDateFrom = b.BookingDateFrom.UTC()
	b.BookingDateTo = b.BookingDateTo.UTC()
	return b, nil
}

func (r *Repository) List(ctx context.Context) ([]Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM bookings
		ORDER BY booking_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}

	return bookings, nil
}

func (r *Repository) Get(ctx context.Context, id int) (Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM bookings
		WHERE booking_id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, fmt.Errorf("query booking: %w", err)
	}

	return b, nil
}

func (r *Repository) Create(ctx context.Context, input Input) (Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `
		INSERT INTO bookings (facility_description, booking_date_from, booking_date_to, booked_by, booking_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+selectColumns,
		input.FacilityDescription, input.BookingDateFrom.UTC(), input.BookingDateTo.UTC(), input.BookedBy, input.BookingStatus))
	if err != nil {
		return Booking{}, fmt.Errorf("insert booking: %w", err)
	}

	return b, nil
}

func (r *Repository) Update(ctx context.Context, id int, input Input) (Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `
		UPDATE bookings
		SET facility_description = $2, booking_date_from = $3, booking_date_to = $4, booked_by = $5, booking_status = $6
		WHERE booking_id = $1
		RETURNING `+selectColumns,
		id, input.FacilityDescription, input.BookingDateFrom.UTC(), input.BookingDateTo.UTC(), input.BookedBy, input.BookingStatus))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, fmt.Errorf("update booking: %w", err)
	}

	return b, nil
}

// Delete removes the booking and returns the deleted row.
func (r *Repository) Delete(ctx context.Context, id int) (Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `
		DELETE FROM bookings
		WHERE booking_id = $1
		RETURNING `+selectColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, fmt.Errorf("delete booking: %w", err)
	}

	return b, nil
}

// Package model defines the front-desk domain records: patients, intake
// tickets, and the reservation projection derived from scheduled tickets.
package model

import (
	"fmt"
	"strings"
	"time"
)

// State is the processing state of a Ticket. The set is closed: a ticket is
// either awaiting the front desk or scheduled with a confirmed booking.
type State string

const (
	// StateAwaiting marks a ticket that has been received but not yet
	// converted into an appointment.
	StateAwaiting State = "awaiting"
	// StateScheduled marks a ticket with a confirmed booking timestamp.
	StateScheduled State = "scheduled"
)

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	return s == StateAwaiting || s == StateScheduled
}

// User is a patient record. Users are created by intake (matched by email)
// or by explicit front-desk entry, and are never deleted by the engine.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// DisplayName returns the name shown in ticket and reservation lists.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Ticket is a support/appointment request. UserID is a non-owning reference
// that must resolve to a stored User. Booking is nil while the ticket is
// awaiting and set once an appointment slot is confirmed.
type Ticket struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Message         string     `json:"message"`
	LastInteraction time.Time  `json:"last_interaction"`
	Booking         *time.Time `json:"booking,omitempty"`
	State           State      `json:"state"`
}

// Clone returns a copy of the ticket that shares no pointers with the
// original, so callers cannot mutate stored state through the Booking field.
func (t Ticket) Clone() Ticket {
	if t.Booking != nil {
		b := *t.Booking
		t.Booking = &b
	}
	return t
}

// Validate checks the fields the engine refuses to store.
func (t Ticket) Validate() error {
	if t.UserID == "" {
		return fmt.Errorf("ticket %s: missing user reference", t.ID)
	}
	if t.State != "" && !t.State.Valid() {
		return fmt.Errorf("ticket %s: unknown state %q", t.ID, t.State)
	}
	if t.State == StateScheduled && t.Booking == nil {
		return fmt.Errorf("ticket %s: scheduled without a booking", t.ID)
	}
	return nil
}

// Reservation is the scheduling view of a scheduled ticket, joined with the
// owning patient's display name. It is derived, never stored.
type Reservation struct {
	TicketID    string    `json:"ticket_id"`
	UserID      string    `json:"user_id"`
	PatientName string    `json:"patient_name"`
	Booking     time.Time `json:"booking"`
}

// NewReservation projects a scheduled ticket and its owner into a Reservation.
func NewReservation(t Ticket, u User) Reservation {
	var booking time.Time
	if t.Booking != nil {
		booking = *t.Booking
	}
	return Reservation{
		TicketID:    t.ID,
		UserID:      t.UserID,
		PatientName: u.DisplayName(),
		Booking:     booking,
	}
}

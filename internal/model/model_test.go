package model

import (
	"testing"
	"time"
)

func TestDisplayName(t *testing.T) {
	u := User{FirstName: "Ada", LastName: "Rossi"}
	if got := u.DisplayName(); got != "Ada Rossi" {
		t.Errorf("DisplayName() = %q", got)
	}

	u = User{FirstName: "Ada"}
	if got := u.DisplayName(); got != "Ada" {
		t.Errorf("DisplayName() without last name = %q", got)
	}
}

func TestStateValid(t *testing.T) {
	if !StateAwaiting.Valid() || !StateScheduled.Valid() {
		t.Error("known states must be valid")
	}
	if State("closed").Valid() {
		t.Error("unknown state must be invalid")
	}
}

func TestTicketValidate(t *testing.T) {
	booking := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	ok := Ticket{ID: "t1", UserID: "u1", State: StateScheduled, Booking: &booking}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid ticket rejected: %v", err)
	}

	if err := (Ticket{ID: "t1"}).Validate(); err == nil {
		t.Error("expected error for missing user reference")
	}
	if err := (Ticket{ID: "t1", UserID: "u1", State: "closed"}).Validate(); err == nil {
		t.Error("expected error for unknown state")
	}
	if err := (Ticket{ID: "t1", UserID: "u1", State: StateScheduled}).Validate(); err == nil {
		t.Error("expected error for scheduled ticket without booking")
	}
}

func TestTicketCloneIsIndependent(t *testing.T) {
	booking := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	orig := Ticket{ID: "t1", UserID: "u1", Booking: &booking}

	clone := orig.Clone()
	*clone.Booking = booking.Add(time.Hour)

	if !orig.Booking.Equal(booking) {
		t.Error("mutating the clone changed the original booking")
	}
}

func TestNewReservation(t *testing.T) {
	booking := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	tk := Ticket{ID: "t1", UserID: "u1", Booking: &booking, State: StateScheduled}
	u := User{ID: "u1", FirstName: "Ada", LastName: "Rossi"}

	res := NewReservation(tk, u)
	if res.TicketID != "t1" || res.UserID != "u1" {
		t.Errorf("unexpected reservation refs: %+v", res)
	}
	if res.PatientName != "Ada Rossi" {
		t.Errorf("unexpected patient name %q", res.PatientName)
	}
	if !res.Booking.Equal(booking) {
		t.Errorf("unexpected booking %v", res.Booking)
	}
}

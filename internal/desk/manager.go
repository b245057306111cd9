// Package desk implements the coordination core of the front desk: it owns
// the canonical in-memory snapshot of patients and tickets, persists every
// mutation before acknowledging it, runs the background intake poll, and
// notifies subscribed consumers after each committed change.
package desk

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clintariac/frontdesk/internal/intake"
	"github.com/clintariac/frontdesk/internal/model"
	"github.com/clintariac/frontdesk/internal/schedule"
	"github.com/clintariac/frontdesk/internal/store"
)

var (
	// ErrNotLoaded is returned when an operation runs before LoadData.
	ErrNotLoaded = errors.New("dataset not loaded")
	// ErrUnknownUser rejects a ticket whose user reference does not
	// resolve to a stored patient.
	ErrUnknownUser = errors.New("ticket references an unknown user")
	// ErrBookingConflict rejects a booking that collides with an existing
	// reservation held by a different ticket. The call is a no-op.
	ErrBookingConflict = errors.New("booking slot already reserved")
	// ErrNoAvailability is returned when no free slot exists within the
	// configured lookahead horizon.
	ErrNoAvailability = errors.New("no available reservation within the lookahead horizon")
)

// Config is the injected tuning of the manager.
type Config struct {
	PollInterval time.Duration     // cadence of the background intake poll
	Calendar     schedule.Calendar // bookable window and slot granularity
	DedupeIntake bool              // fold repeat messages into the sender's awaiting ticket
}

// Manager is the coordination core. All exported operations are safe for
// concurrent use; mutations and the poll merge serialize on one mutex and
// persist before notifying.
type Manager struct {
	data    store.DataStore
	gateway intake.Gateway
	cfg     Config
	clock   *schedule.Clock
	log     *slog.Logger

	// mu guards the snapshot as a unit: collection mutation plus persist
	// form one critical section, so reads never observe a half-merged
	// snapshot and writers never interleave.
	mu      sync.Mutex
	users   *store.Collection[model.User]
	tickets *store.Collection[model.Ticket]
	loaded  bool

	running bool
	stopCh  chan struct{}

	nextSubID   int
	updateSubs  map[int]func()
	storageSubs map[int]func(error)
	intakeSubs  map[int]func(error)
}

// New creates a manager over the given data store and intake gateway.
func New(data store.DataStore, gw intake.Gateway, cfg Config) *Manager {
	return &Manager{
		data:        data,
		gateway:     gw,
		cfg:         cfg,
		clock:       schedule.NewClock(),
		log:         slog.Default(),
		users:       store.NewCollection[model.User](),
		tickets:     store.NewCollection[model.Ticket](),
		updateSubs:  make(map[int]func()),
		storageSubs: make(map[int]func(error)),
		intakeSubs:  make(map[int]func(error)),
	}
}

// SetLogger replaces the manager's logger. Call before LoadData.
func (m *Manager) SetLogger(l *slog.Logger) {
	if l != nil {
		m.log = l
	}
}

// Clock exposes the manager's time source, used by tests and by callers
// that need "now" to agree with availability scanning.
func (m *Manager) Clock() *schedule.Clock { return m.clock }

// LoadData loads the snapshot from the data store. It must be called once
// before any other operation. A storage failure is reported to the storage
// observers and returned; the session has no safe continuation after it.
func (m *Manager) LoadData() error {
	snap, err := m.data.Load()
	if err != nil {
		m.reportStorage(err)
		return err
	}

	m.mu.Lock()
	m.users.LoadSnapshot(snap.Users)
	m.tickets.LoadSnapshot(snap.Tickets)
	m.loaded = true
	m.mu.Unlock()

	m.log.Info("dataset loaded", slog.Int("users", len(snap.Users)), slog.Int("tickets", len(snap.Tickets)))
	return nil
}

// GetUser returns a snapshot of the patient with the given id.
func (m *Manager) GetUser(id string) (model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users.Get(id)
}

// SetUser upserts a patient record, persists, and notifies.
func (m *Manager) SetUser(u model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	prev, had := m.users.Get(u.ID)
	m.users.Set(u.ID, u)
	err := m.persistLocked()
	if err != nil {
		if had {
			m.users.Set(u.ID, prev)
		} else {
			m.users.Delete(u.ID)
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.reportStorage(err)
		return err
	}
	m.notify()
	return nil
}

// GetTicket returns a snapshot of the ticket with the given id.
func (m *Manager) GetTicket(id string) (model.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets.Get(id)
	return t.Clone(), ok
}

// SetTicket upserts a ticket, persists, and notifies. Supplying a booking
// confirms the appointment and forces the scheduled state; clearing the
// booking re-opens the ticket as awaiting. A booking that collides with a
// reservation held by a different ticket is rejected with
// ErrBookingConflict and changes nothing.
func (m *Manager) SetTicket(t model.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Booking != nil {
		t.State = model.StateScheduled
	} else {
		t.State = model.StateAwaiting
	}
	if t.LastInteraction.IsZero() {
		t.LastInteraction = m.clock.Now()
	}
	if err := t.Validate(); err != nil {
		return err
	}
	t = t.Clone()

	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	if _, ok := m.users.Get(t.UserID); !ok {
		m.mu.Unlock()
		return ErrUnknownUser
	}
	if t.Booking != nil && m.occupiedByOtherLocked(t.ID, *t.Booking) {
		m.mu.Unlock()
		return ErrBookingConflict
	}
	prev, had := m.tickets.Get(t.ID)
	m.tickets.Set(t.ID, t)
	err := m.persistLocked()
	if err != nil {
		if had {
			m.tickets.Set(t.ID, prev)
		} else {
			m.tickets.Delete(t.ID)
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.reportStorage(err)
		return err
	}
	m.notify()
	return nil
}

// DeleteTicket removes a ticket, persists, and notifies. Deleting a ticket
// that does not exist is a no-op: no persistence and no notification.
func (m *Manager) DeleteTicket(id string) error {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	prev, had := m.tickets.Get(id)
	if !had {
		m.mu.Unlock()
		return nil
	}
	m.tickets.Delete(id)
	err := m.persistLocked()
	if err != nil {
		m.tickets.Set(id, prev)
	}
	m.mu.Unlock()

	if err != nil {
		m.reportStorage(err)
		return err
	}
	m.notify()
	return nil
}

// AwaitingTickets returns the awaiting tickets ordered by last interaction,
// oldest first (queue discipline).
func (m *Manager) AwaitingTickets() []model.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()

	awaiting := m.tickets.Filter(func(_ string, t model.Ticket) bool {
		return t.State == model.StateAwaiting
	})
	out := make([]model.Ticket, 0, len(awaiting))
	for _, t := range awaiting {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastInteraction.Equal(out[j].LastInteraction) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastInteraction.Before(out[j].LastInteraction)
	})
	return out
}

// ReservationsForDate returns the reservations whose booking falls on the
// given calendar date, ordered by booking time ascending.
func (m *Manager) ReservationsForDate(date time.Time) []model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()

	y, mo, d := date.Date()
	out := make([]model.Reservation, 0)
	for _, t := range m.tickets.List() {
		if t.State != model.StateScheduled || t.Booking == nil {
			continue
		}
		by, bm, bd := t.Booking.In(date.Location()).Date()
		if by != y || bm != mo || bd != d {
			continue
		}
		owner, _ := m.users.Get(t.UserID)
		out = append(out, model.NewReservation(t, owner))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Booking.Before(out[j].Booking)
	})
	return out
}

// IsValidReservation reports whether the candidate timestamp can hold a new
// appointment: it lies in the future, within business hours, and no
// existing reservation occupies exactly that instant.
func (m *Manager) IsValidReservation(candidate time.Time) bool {
	if !candidate.After(m.clock.Now()) {
		return false
	}
	if !m.cfg.Calendar.WithinHours(candidate) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.occupiedByOtherLocked("", candidate)
}

// FirstAvailableReservation returns the earliest free slot starting from
// "now" rounded up to the next slot boundary, skipping closed hours and
// days. The scan is bounded by the configured lookahead horizon and fails
// with ErrNoAvailability once it is exhausted.
func (m *Manager) FirstAvailableReservation() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, err := m.cfg.Calendar.Scan(m.clock.Now(), func(t time.Time) bool {
		return m.occupiedByOtherLocked("", t)
	})
	if err != nil {
		if errors.Is(err, schedule.ErrHorizonExhausted) {
			return time.Time{}, ErrNoAvailability
		}
		return time.Time{}, err
	}
	return slot, nil
}

// occupiedByOtherLocked reports whether a scheduled ticket other than
// ticketID already holds the exact booking instant.
func (m *Manager) occupiedByOtherLocked(ticketID string, booking time.Time) bool {
	for _, t := range m.tickets.List() {
		if t.ID == ticketID {
			continue
		}
		if t.State == model.StateScheduled && t.Booking != nil && t.Booking.Equal(booking) {
			return true
		}
	}
	return false
}

// persistLocked writes the current snapshot through the data store. The
// caller holds the mutex and rolls back its in-memory change on failure, so
// consumers never observe an unsynchronized snapshot.
func (m *Manager) persistLocked() error {
	return m.data.Save(store.Snapshot{
		Users:   m.users.Snapshot(),
		Tickets: m.tickets.Snapshot(),
	})
}

// Subscribe registers an update observer invoked after every committed
// mutation and every poll that ingests new tickets. The callback carries no
// payload: consumers re-query what they need. The returned function
// deregisters the observer.
func (m *Manager) Subscribe(fn func()) (cancel func()) {
	return m.addObserver(m.updateSubs, fn)
}

// OnStorageError registers an observer for persistence failures. They are
// fatal to the session; the observer decides on termination.
func (m *Manager) OnStorageError(fn func(error)) (cancel func()) {
	return m.addErrObserver(m.storageSubs, fn)
}

// OnIntakeError registers an observer for intake channel failures. They are
// routine and recoverable; the poll loop keeps its cadence.
func (m *Manager) OnIntakeError(fn func(error)) (cancel func()) {
	return m.addErrObserver(m.intakeSubs, fn)
}

func (m *Manager) addObserver(set map[int]func(), fn func()) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	set[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(set, id)
		m.mu.Unlock()
	}
}

func (m *Manager) addErrObserver(set map[int]func(error), fn func(error)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	set[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(set, id)
		m.mu.Unlock()
	}
}

// notify invokes the update observers outside the snapshot lock.
func (m *Manager) notify() {
	m.mu.Lock()
	subs := make([]func(), 0, len(m.updateSubs))
	for _, fn := range m.updateSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (m *Manager) reportStorage(err error) {
	m.log.Error("storage failure", slog.Any("error", err))
	m.reportErr(m.storageSubs, err)
}

func (m *Manager) reportIntake(err error) {
	m.log.Error("intake failure", slog.Any("error", err))
	m.reportErr(m.intakeSubs, err)
}

func (m *Manager) reportErr(set map[int]func(error), err error) {
	m.mu.Lock()
	subs := make([]func(error), 0, len(set))
	for _, fn := range set {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}

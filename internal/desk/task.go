package desk

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clintariac/frontdesk/internal/intake"
	"github.com/clintariac/frontdesk/internal/model"
)

// StartTask starts the background synchronization loop if it is not already
// running. The loop polls the intake gateway at the configured interval and
// merges new messages into the snapshot.
func (m *Manager) StartTask() {
	m.mu.Lock()
	if m.running || !m.loaded {
		m.mu.Unlock()
		return
	}
	m.running = true
	stop := make(chan struct{})
	m.stopCh = stop
	interval := m.cfg.PollInterval
	m.mu.Unlock()

	if interval <= 0 {
		interval = 30 * time.Second
	}
	go m.run(stop, interval)
	m.log.Info("sync task started", slog.Duration("interval", interval))
}

// StopTask pauses the background loop: no new poll starts until StartTask.
// The pause is cooperative — a poll already in flight finishes its cycle
// and may still merge before the pause takes effect.
func (m *Manager) StopTask() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.stopCh = nil
	m.mu.Unlock()

	m.log.Info("sync task stopped")
}

// TaskRunning reports whether the background loop is active.
func (m *Manager) TaskRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.pollOnce(context.Background())
		}
	}
}

// pollOnce performs one poll-and-merge cycle. An intake failure is reported
// and the loop keeps its cadence; a storage failure while persisting the
// merge is fatal and stops the task. Polls that return no messages touch
// neither the snapshot nor the store and fire no notification.
func (m *Manager) pollOnce(ctx context.Context) {
	msgs, err := m.gateway.Poll(ctx)
	if err != nil {
		m.reportIntake(err)
		return
	}
	if len(msgs) == 0 {
		m.log.Debug("poll: no new messages")
		return
	}

	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return
	}
	usersBefore := m.users.Snapshot()
	ticketsBefore := m.tickets.Snapshot()

	ingested := m.mergeLocked(msgs)
	if ingested == 0 {
		m.mu.Unlock()
		return
	}
	err = m.persistLocked()
	if err != nil {
		m.users.LoadSnapshot(usersBefore)
		m.tickets.LoadSnapshot(ticketsBefore)
		// No safe continuation without persistence; stop polling so the
		// failure is reported exactly once.
		if m.running {
			m.running = false
			close(m.stopCh)
			m.stopCh = nil
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.reportStorage(err)
		return
	}
	m.log.Info("intake merged", slog.Int("messages", ingested))
	m.notify()
}

// mergeLocked folds polled messages into the snapshot: the sender is
// resolved to an existing patient by email or a new patient is created, and
// each message becomes a new awaiting ticket. With dedupe enabled a message
// from a sender who already has an awaiting ticket refreshes that ticket
// instead of opening a second one.
func (m *Manager) mergeLocked(msgs []intake.Message) int {
	ingested := 0
	for _, msg := range msgs {
		if msg.Sender == "" {
			m.log.Warn("intake message without sender dropped")
			continue
		}
		user, ok := m.userByEmailLocked(msg.Sender)
		if !ok {
			user = newUserFromMessage(msg)
			m.users.Set(user.ID, user)
		}

		received := msg.ReceivedAt
		if received.IsZero() {
			received = m.clock.Now()
		}

		if m.cfg.DedupeIntake {
			if t, ok := m.awaitingTicketForLocked(user.ID); ok {
				t.Message = msg.Body
				t.LastInteraction = received
				m.tickets.Set(t.ID, t)
				ingested++
				continue
			}
		}

		t := model.Ticket{
			ID:              uuid.NewString(),
			UserID:          user.ID,
			Message:         msg.Body,
			LastInteraction: received,
			State:           model.StateAwaiting,
		}
		m.tickets.Set(t.ID, t)
		ingested++
	}
	return ingested
}

func (m *Manager) userByEmailLocked(email string) (model.User, bool) {
	for _, u := range m.users.List() {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return model.User{}, false
}

func (m *Manager) awaitingTicketForLocked(userID string) (model.Ticket, bool) {
	for _, t := range m.tickets.List() {
		if t.UserID == userID && t.State == model.StateAwaiting {
			return t, true
		}
	}
	return model.Ticket{}, false
}

func newUserFromMessage(msg intake.Message) model.User {
	first, last := splitName(msg.Name)
	return model.User{
		ID:        uuid.NewString(),
		FirstName: first,
		LastName:  last,
		Email:     msg.Sender,
	}
}

func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

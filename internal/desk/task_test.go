package desk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clintariac/frontdesk/internal/intake"
	"github.com/clintariac/frontdesk/internal/model"
)

func TestPollMergeCreatesUserAndTicket(t *testing.T) {
	m, gw, cs := newTestManager(t)

	notifications := 0
	m.Subscribe(func() { notifications++ })

	received := monday(8, 50)
	gw.Push(intake.Message{
		Sender:     "ada@example.com",
		Name:       "Ada Rossi",
		Body:       "tooth ache, need an appointment",
		ReceivedAt: received,
	})
	m.pollOnce(context.Background())

	awaiting := m.AwaitingTickets()
	if len(awaiting) != 1 {
		t.Fatalf("expected 1 awaiting ticket, got %d", len(awaiting))
	}
	tk := awaiting[0]
	if tk.Message != "tooth ache, need an appointment" {
		t.Errorf("unexpected message %q", tk.Message)
	}
	if !tk.LastInteraction.Equal(received) {
		t.Errorf("expected receipt time %v, got %v", received, tk.LastInteraction)
	}

	u, ok := m.GetUser(tk.UserID)
	if !ok {
		t.Fatal("merge did not create the sender's user record")
	}
	if u.FirstName != "Ada" || u.LastName != "Rossi" || u.Email != "ada@example.com" {
		t.Errorf("unexpected user: %+v", u)
	}

	if notifications != 1 {
		t.Errorf("expected 1 notification after merge, got %d", notifications)
	}
	if cs.saves != 1 {
		t.Errorf("expected 1 save after merge, got %d", cs.saves)
	}
}

func TestPollMergeResolvesExistingUserByEmail(t *testing.T) {
	m, gw, _ := newTestManager(t)
	mustSetUser(t, m, model.User{ID: "u1", FirstName: "Ada", LastName: "Rossi", Email: "ada@example.com"})

	gw.Push(intake.Message{Sender: "ADA@example.com", Body: "follow-up", ReceivedAt: monday(9, 5)})
	m.pollOnce(context.Background())

	awaiting := m.AwaitingTickets()
	if len(awaiting) != 1 {
		t.Fatalf("expected 1 awaiting ticket, got %d", len(awaiting))
	}
	if awaiting[0].UserID != "u1" {
		t.Errorf("expected the existing patient, got user %q", awaiting[0].UserID)
	}
}

func TestEmptyPollsAreSilent(t *testing.T) {
	m, _, cs := newTestManager(t)

	notifications := 0
	m.Subscribe(func() { notifications++ })

	savesBefore := cs.saves
	m.pollOnce(context.Background())
	m.pollOnce(context.Background())

	if notifications != 0 {
		t.Errorf("zero-message polls must not notify, got %d", notifications)
	}
	if cs.saves != savesBefore {
		t.Errorf("zero-message polls must not persist, got %d extra saves", cs.saves-savesBefore)
	}
}

func TestIntakeFailureIsReportedAndRecoverable(t *testing.T) {
	m, gw, _ := newTestManager(t)

	var reported []error
	m.OnIntakeError(func(err error) { reported = append(reported, err) })

	gw.FailNext(errors.New("imap: connection reset"))
	m.pollOnce(context.Background())

	if len(reported) != 1 {
		t.Fatalf("expected 1 intake report, got %d", len(reported))
	}
	var intakeErr *intake.IntakeError
	if !errors.As(reported[0], &intakeErr) {
		t.Fatalf("expected *IntakeError, got %T", reported[0])
	}

	// The next poll at the normal cadence works again.
	gw.Push(intake.Message{Sender: "ada@example.com", Body: "hello", ReceivedAt: monday(9, 10)})
	m.pollOnce(context.Background())
	if len(m.AwaitingTickets()) != 1 {
		t.Error("poll after a transient failure should ingest normally")
	}
}

func TestDedupeFoldsRepeatMessages(t *testing.T) {
	m, gw, _ := newTestManager(t)
	m.cfg.DedupeIntake = true

	gw.Push(intake.Message{Sender: "ada@example.com", Name: "Ada Rossi", Body: "first", ReceivedAt: monday(9, 0)})
	m.pollOnce(context.Background())
	gw.Push(intake.Message{Sender: "ada@example.com", Name: "Ada Rossi", Body: "second, resent", ReceivedAt: monday(9, 20)})
	m.pollOnce(context.Background())

	awaiting := m.AwaitingTickets()
	if len(awaiting) != 1 {
		t.Fatalf("dedupe expected 1 awaiting ticket, got %d", len(awaiting))
	}
	if awaiting[0].Message != "second, resent" {
		t.Errorf("dedupe should refresh the message, got %q", awaiting[0].Message)
	}
	if !awaiting[0].LastInteraction.Equal(monday(9, 20)) {
		t.Errorf("dedupe should bump last interaction, got %v", awaiting[0].LastInteraction)
	}
}

func TestDuplicatesAcceptedWithoutDedupe(t *testing.T) {
	m, gw, _ := newTestManager(t)

	gw.Push(
		intake.Message{Sender: "ada@example.com", Body: "first", ReceivedAt: monday(9, 0)},
		intake.Message{Sender: "ada@example.com", Body: "again", ReceivedAt: monday(9, 20)},
	)
	m.pollOnce(context.Background())

	if got := len(m.AwaitingTickets()); got != 2 {
		t.Fatalf("expected 2 awaiting tickets without dedupe, got %d", got)
	}
}

func TestMutationSurvivesQueuedPollMerge(t *testing.T) {
	m, gw, _ := newTestManager(t)

	// An awaiting ticket arrives via intake.
	gw.Push(intake.Message{Sender: "ada@example.com", Name: "Ada Rossi", Body: "tooth ache", ReceivedAt: monday(8, 50)})
	m.pollOnce(context.Background())
	ticketID := m.AwaitingTickets()[0].ID

	// The operator pauses the task, confirms a booking, and a poll that
	// was already in flight merges afterwards.
	m.StartTask()
	m.StopTask()

	tk, _ := m.GetTicket(ticketID)
	slot := monday(10, 0)
	tk.Booking = &slot
	mustSetTicket(t, m, tk)

	gw.Push(intake.Message{Sender: "bo@example.com", Name: "Bo Chen", Body: "checkup", ReceivedAt: monday(9, 1)})
	m.pollOnce(context.Background())
	m.StartTask()

	got, ok := m.GetTicket(ticketID)
	if !ok {
		t.Fatal("edited ticket vanished")
	}
	if got.State != model.StateScheduled || got.Booking == nil || !got.Booking.Equal(slot) {
		t.Errorf("operator mutation was clobbered: %+v", got)
	}
	if got := len(m.AwaitingTickets()); got != 1 {
		t.Errorf("expected only the new intake ticket awaiting, got %d", got)
	}
	m.StopTask()
}

func TestStorageFailureDuringMergeStopsTask(t *testing.T) {
	m, gw, cs := newTestManager(t)

	var reported []error
	m.OnStorageError(func(err error) { reported = append(reported, err) })
	notifications := 0
	m.Subscribe(func() { notifications++ })

	m.StartTask()
	if !m.TaskRunning() {
		t.Fatal("task should be running")
	}

	cs.failSaves = true
	gw.Push(intake.Message{Sender: "ada@example.com", Body: "hello", ReceivedAt: monday(9, 0)})
	m.pollOnce(context.Background())

	if len(reported) != 1 {
		t.Fatalf("expected 1 storage report, got %d", len(reported))
	}
	if notifications != 0 {
		t.Errorf("failed merge must not notify, got %d", notifications)
	}
	if m.TaskRunning() {
		t.Error("task should stop after an unrecoverable storage failure")
	}
	// The merge rolled back: no half-ingested tickets remain.
	if got := len(m.AwaitingTickets()); got != 0 {
		t.Errorf("expected rollback of the merge, got %d tickets", got)
	}
	if _, ok := m.userByEmailLocked("ada@example.com"); ok {
		t.Error("merge user record survived the rollback")
	}
}

func TestStartAndStopTask(t *testing.T) {
	m, _, _ := newTestManager(t)

	if m.TaskRunning() {
		t.Fatal("task must not run before StartTask")
	}
	m.StartTask()
	if !m.TaskRunning() {
		t.Fatal("task should run after StartTask")
	}
	// Starting twice is a no-op.
	m.StartTask()
	if !m.TaskRunning() {
		t.Fatal("double start broke the task")
	}

	m.StopTask()
	if m.TaskRunning() {
		t.Fatal("task should pause after StopTask")
	}
	// Stopping twice is a no-op.
	m.StopTask()

	m.StartTask()
	if !m.TaskRunning() {
		t.Fatal("task should resume after StartTask")
	}
	m.StopTask()
}

func TestTaskLoopPollsOnInterval(t *testing.T) {
	cs := &countingStore{inner: newTestFileStore(t)}
	gw := intake.NewQueueGateway()
	m := New(cs, gw, Config{
		PollInterval: 10 * time.Millisecond,
		Calendar:     weekdayCalendar(),
	})
	if err := m.LoadData(); err != nil {
		t.Fatal(err)
	}

	merged := make(chan struct{}, 1)
	m.Subscribe(func() {
		select {
		case merged <- struct{}{}:
		default:
		}
	})

	gw.Push(intake.Message{Sender: "ada@example.com", Body: "hello", ReceivedAt: monday(9, 0)})
	m.StartTask()
	defer m.StopTask()

	select {
	case <-merged:
	case <-time.After(2 * time.Second):
		t.Fatal("background loop never merged the queued message")
	}
}

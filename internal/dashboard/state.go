// Package dashboard owns the couple's dashboard state. Transitions are pure
// functions over State; Store serializes them behind a single mutex.
package dashboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/align/internal/domain"
	"github.com/dvloznov/align/internal/seed"
)

var (
	// ErrSyncInProgress is returned when a sync is requested while one is running.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNotFound is returned when an intent names an unknown entity.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when an intent carries incomplete or bad data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStaleDraft is returned when an alert draft was superseded by a newer run.
	ErrStaleDraft = errors.New("alert draft superseded")
)

// Phase is the externally visible sync state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseSyncing      Phase = "syncing"
	PhaseAlertPending Phase = "alert_pending"
)

// State is the complete application state. Transactions are newest first.
// Values are treated as immutable: transitions return a new State and never
// write into slices they did not allocate.
type State struct {
	ProfileName  string
	Users        []domain.User
	Transactions []domain.Transaction
	Goals        []domain.Goal
	Tasks        []domain.Task
	Rewards      []domain.Reward
	Alert        *string
	Syncing      bool
	// DraftID names the run whose alert draft is in flight. Only that run
	// may publish; an older draft that finishes late is dropped.
	DraftID string
}

// FromSeed builds the initial state. Seed transactions are sorted newest
// first by the seed file itself.
func FromSeed(d *seed.Data) State {
	return State{
		ProfileName:  d.ProfileName,
		Users:        append([]domain.User(nil), d.Users...),
		Transactions: append([]domain.Transaction(nil), d.Transactions...),
		Goals:        append([]domain.Goal(nil), d.Goals...),
		Tasks:        append([]domain.Task(nil), d.Tasks...),
		Rewards:      append([]domain.Reward(nil), d.Rewards...),
	}
}

// Phase derives the sync phase. Syncing wins over a pending alert.
func (s State) Phase() Phase {
	switch {
	case s.Syncing:
		return PhaseSyncing
	case s.DraftID != "":
		return PhaseAlertPending
	default:
		return PhaseIdle
	}
}

// User looks up a user by ID.
func (s State) User(id string) (domain.User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

// Totals derives the dashboard aggregates.
func (s State) Totals() domain.Totals {
	return domain.ComputeTotals(s.Users, s.Transactions, s.Goals)
}

// Clone returns a deep copy safe to hand out of the store.
func (s State) Clone() State {
	c := s
	c.Users = append([]domain.User(nil), s.Users...)
	c.Transactions = append([]domain.Transaction(nil), s.Transactions...)
	c.Goals = append([]domain.Goal(nil), s.Goals...)
	c.Tasks = make([]domain.Task, len(s.Tasks))
	for i, t := range s.Tasks {
		if t.AssignedToUserID != nil {
			id := *t.AssignedToUserID
			t.AssignedToUserID = &id
		}
		c.Tasks[i] = t
	}
	c.Rewards = append([]domain.Reward(nil), s.Rewards...)
	if s.Alert != nil {
		msg := *s.Alert
		c.Alert = &msg
	}
	return c
}

// BeginSync moves Idle to Syncing.
func BeginSync(s State) (State, error) {
	if s.Syncing {
		return s, ErrSyncInProgress
	}
	s.Syncing = true
	return s, nil
}

// CompleteSync prepends batch, keeping its order, and clears the busy flag.
func CompleteSync(s State, batch []domain.Transaction) State {
	s = PrependTransactions(s, batch)
	s.Syncing = false
	return s
}

// AbortSync clears the busy flag without touching the ledger.
func AbortSync(s State) State {
	s.Syncing = false
	return s
}

// BeginAlert marks draftID's alert draft as the one in flight, superseding
// any older draft.
func BeginAlert(s State, draftID string) State {
	s.DraftID = draftID
	return s
}

// PublishAlert replaces the current alert and ends the draft. It returns
// ErrStaleDraft, leaving s unchanged, when draftID has been superseded.
func PublishAlert(s State, draftID, message string) (State, error) {
	if s.DraftID != draftID {
		return s, ErrStaleDraft
	}
	s.Alert = &message
	s.DraftID = ""
	return s, nil
}

// DismissAlert clears the alert. Nothing else changes.
func DismissAlert(s State) State {
	s.Alert = nil
	return s
}

// PrependTransactions puts batch, in order, ahead of the existing ledger.
func PrependTransactions(s State, batch []domain.Transaction) State {
	if len(batch) == 0 {
		return s
	}
	ledger := make([]domain.Transaction, 0, len(batch)+len(s.Transactions))
	ledger = append(ledger, batch...)
	ledger = append(ledger, s.Transactions...)
	s.Transactions = ledger
	return s
}

// ToggleTask flips the completed flag of one task.
func ToggleTask(s State, id string) (State, error) {
	idx := -1
	for i, t := range s.Tasks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	tasks := append([]domain.Task(nil), s.Tasks...)
	tasks[idx].Completed = !tasks[idx].Completed
	s.Tasks = tasks
	return s, nil
}

// AddTask appends a task to the end of the list.
func AddTask(s State, task domain.Task) (State, error) {
	if strings.TrimSpace(task.Title) == "" {
		return s, fmt.Errorf("task title is required: %w", ErrInvalidInput)
	}
	if task.AssignedToUserID != nil {
		if _, ok := s.User(*task.AssignedToUserID); !ok {
			return s, fmt.Errorf("assignee %q: %w", *task.AssignedToUserID, ErrNotFound)
		}
	}
	tasks := make([]domain.Task, 0, len(s.Tasks)+1)
	tasks = append(tasks, s.Tasks...)
	s.Tasks = append(tasks, task)
	return s, nil
}

// SetSavingsRate updates one user's rate, clamped to the allowed range.
func SetSavingsRate(s State, userID string, rate int) (State, error) {
	idx := -1
	for i, u := range s.Users {
		if u.ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	users := append([]domain.User(nil), s.Users...)
	users[idx].SavingsRate = domain.ClampSavingsRate(rate)
	s.Users = users
	return s, nil
}

// SetProfileName renames the joint profile.
func SetProfileName(s State, name string) (State, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return s, fmt.Errorf("profile name is required: %w", ErrInvalidInput)
	}
	s.ProfileName = name
	return s, nil
}

package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
)

// Store is the single write path for dashboard state.
type Store struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator injects the ID generator for new entities.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates a store holding initial.
func NewStore(initial State, opts ...Option) *Store {
	s := &Store{
		state: initial.Clone(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Syncing reports the busy flag.
func (s *Store) Syncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Syncing
}

// Phase reports the current sync phase.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Phase()
}

// Today is the store clock's current civil date.
func (s *Store) Today() civil.Date {
	return civil.DateOf(s.now())
}

// NewID returns a fresh entity ID.
func (s *Store) NewID() string {
	return s.newID()
}

func (s *Store) apply(fn func(State) (State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) update(fn func(State) State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
}

// BeginSync sets the busy flag, or returns ErrSyncInProgress.
func (s *Store) BeginSync() error {
	return s.apply(BeginSync)
}

// CompleteSync commits a batch and clears the busy flag.
func (s *Store) CompleteSync(batch []domain.Transaction) {
	batch = append([]domain.Transaction(nil), batch...)
	s.update(func(st State) State { return CompleteSync(st, batch) })
}

// AbortSync clears the busy flag, leaving the ledger as it was.
func (s *Store) AbortSync() {
	s.update(AbortSync)
}

// BeginAlert marks draftID's alert draft in flight.
func (s *Store) BeginAlert(draftID string) {
	s.update(func(st State) State { return BeginAlert(st, draftID) })
}

// PublishAlert sets the current alert if draftID is still the latest draft.
func (s *Store) PublishAlert(draftID, message string) error {
	return s.apply(func(st State) (State, error) { return PublishAlert(st, draftID, message) })
}

// DismissAlert clears the current alert.
func (s *Store) DismissAlert() {
	s.update(DismissAlert)
}

// ToggleTask flips a task and returns its new value.
func (s *Store) ToggleTask(id string) (domain.Task, error) {
	var out domain.Task
	err := s.apply(func(st State) (State, error) {
		next, err := ToggleTask(st, id)
		if err != nil {
			return st, err
		}
		for _, t := range next.Tasks {
			if t.ID == id {
				out = t
			}
		}
		return next, nil
	})
	return out, err
}

// NewTaskInput is the addTask intent. A nil AssignedToUserID means anyone.
type NewTaskInput struct {
	Title            string
	AssignedToUserID *string
}

// AddTask appends a new incomplete task due today.
func (s *Store) AddTask(in NewTaskInput) (domain.Task, error) {
	task := domain.Task{
		ID:        s.newID(),
		Title:     strings.TrimSpace(in.Title),
		Completed: false,
		DueDate:   s.Today(),
	}
	if in.AssignedToUserID != nil && *in.AssignedToUserID != "" {
		id := *in.AssignedToUserID
		task.AssignedToUserID = &id
	}
	err := s.apply(func(st State) (State, error) { return AddTask(st, task) })
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// SetSavingsRate clamps and stores a user's savings rate.
func (s *Store) SetSavingsRate(userID string, rate int) (domain.User, error) {
	var out domain.User
	err := s.apply(func(st State) (State, error) {
		next, err := SetSavingsRate(st, userID, rate)
		if err != nil {
			return st, err
		}
		out, _ = next.User(userID)
		return next, nil
	})
	return out, err
}

// SetProfileName renames the joint profile.
func (s *Store) SetProfileName(name string) error {
	return s.apply(func(st State) (State, error) { return SetProfileName(st, name) })
}

// ManualInput is a manually entered transaction. An empty Category means
// Outros; a zero Date means today.
type ManualInput struct {
	UserID      string
	Description string
	Amount      decimal.Decimal
	Date        civil.Date
	Type        domain.TransactionType
	Category    string
}

func (s *Store) buildManual(st State, in ManualInput) (domain.Transaction, error) {
	var problems []string

	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		problems = append(problems, "description is required")
	}
	if in.UserID == "" {
		problems = append(problems, "user_id is required")
	} else if _, ok := st.User(in.UserID); !ok {
		problems = append(problems, fmt.Sprintf("unknown user %q", in.UserID))
	}
	if !in.Type.Valid() {
		problems = append(problems, fmt.Sprintf("type must be %s or %s", domain.TransactionTypeIncome, domain.TransactionTypeExpense))
	}
	if in.Amount.IsNegative() {
		problems = append(problems, "amount must not be negative")
	}

	date := in.Date
	if date.IsZero() {
		date = s.Today()
	} else if !date.IsValid() {
		problems = append(problems, "date is not a valid calendar date")
	}

	category := domain.CategoryUncategorized
	if strings.TrimSpace(in.Category) != "" {
		c, ok := domain.ParseCategory(in.Category)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown category %q", in.Category))
		}
		category = c
	}

	if len(problems) > 0 {
		return domain.Transaction{}, fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrInvalidInput)
	}

	return domain.Transaction{
		ID:          s.newID(),
		UserID:      in.UserID,
		Description: desc,
		Amount:      in.Amount,
		Date:        date,
		Type:        in.Type,
		Category:    category,
		Institution: domain.InstitutionManual,
	}, nil
}

// AddManualTransaction validates and prepends a manual entry. It does not
// categorize and does not evaluate alerts.
func (s *Store) AddManualTransaction(in ManualInput) (domain.Transaction, error) {
	var out domain.Transaction
	err := s.apply(func(st State) (State, error) {
		tx, err := s.buildManual(st, in)
		if err != nil {
			return st, err
		}
		out = tx
		return PrependTransactions(st, []domain.Transaction{tx}), nil
	})
	return out, err
}

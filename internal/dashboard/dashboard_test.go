package dashboard

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
	"github.com/dvloznov/align/internal/seed"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := seed.Default()
	if err != nil {
		t.Fatalf("seed.Default() failed: %v", err)
	}
	n := 0
	return NewStore(FromSeed(d),
		WithClock(func() time.Time { return time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
}

func txn(id string, amount int64) domain.Transaction {
	return domain.Transaction{ID: id, Amount: decimal.NewFromInt(amount), Type: domain.TransactionTypeExpense}
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSyncLifecycle(t *testing.T) {
	s := newTestStore(t)
	before := ids(s.Snapshot().Transactions)

	if err := s.BeginSync(); err != nil {
		t.Fatalf("BeginSync() failed: %v", err)
	}
	if !s.Syncing() || s.Phase() != PhaseSyncing {
		t.Fatal("expected store to be syncing")
	}

	if err := s.BeginSync(); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("second BeginSync() = %v, want ErrSyncInProgress", err)
	}

	s.CompleteSync([]domain.Transaction{txn("n1", 10), txn("n2", 20)})

	if s.Syncing() {
		t.Error("busy flag should be cleared after commit")
	}
	want := append([]string{"n1", "n2"}, before...)
	if got := ids(s.Snapshot().Transactions); !equalStrings(got, want) {
		t.Errorf("ledger = %v, want %v", got, want)
	}
}

func TestAbortSync_LeavesLedger(t *testing.T) {
	s := newTestStore(t)
	before := ids(s.Snapshot().Transactions)

	if err := s.BeginSync(); err != nil {
		t.Fatal(err)
	}
	s.AbortSync()

	if s.Syncing() {
		t.Error("busy flag should be cleared")
	}
	if got := ids(s.Snapshot().Transactions); !equalStrings(got, before) {
		t.Errorf("ledger changed on abort: %v", got)
	}
}

func TestAlertLifecycle(t *testing.T) {
	s := newTestStore(t)

	s.BeginAlert("run-1")
	if s.Phase() != PhaseAlertPending {
		t.Fatalf("Phase() = %q, want alert_pending", s.Phase())
	}
	if err := s.BeginSync(); err != nil {
		t.Fatalf("sync should be allowed while an alert drafts: %v", err)
	}
	if s.Phase() != PhaseSyncing {
		t.Errorf("syncing should win over alert_pending, got %q", s.Phase())
	}
	s.AbortSync()

	if err := s.PublishAlert("run-1", "Vamos conversar?"); err != nil {
		t.Fatalf("PublishAlert() = %v", err)
	}
	snap := s.Snapshot()
	if snap.Alert == nil || *snap.Alert != "Vamos conversar?" || snap.Phase() != PhaseIdle {
		t.Fatalf("unexpected alert state: alert=%v phase=%q", snap.Alert, snap.Phase())
	}
}

func TestPublishAlert_SupersededDraftIsDropped(t *testing.T) {
	s := newTestStore(t)

	s.BeginAlert("run-1")
	s.BeginAlert("run-2")

	if err := s.PublishAlert("run-2", "novo"); err != nil {
		t.Fatalf("PublishAlert(run-2) = %v", err)
	}
	if err := s.PublishAlert("run-1", "antigo"); !errors.Is(err, ErrStaleDraft) {
		t.Errorf("PublishAlert(run-1) = %v, want ErrStaleDraft", err)
	}

	snap := s.Snapshot()
	if snap.Alert == nil || *snap.Alert != "novo" {
		t.Errorf("alert = %v, want the newer draft", snap.Alert)
	}
	if snap.Phase() != PhaseIdle {
		t.Errorf("Phase() = %q, want idle", snap.Phase())
	}
}

func TestPublishAlert_OlderDraftWaitsForNewer(t *testing.T) {
	s := newTestStore(t)

	s.BeginAlert("run-1")
	s.BeginAlert("run-2")
	if err := s.PublishAlert("run-1", "antigo"); !errors.Is(err, ErrStaleDraft) {
		t.Fatalf("PublishAlert(run-1) = %v, want ErrStaleDraft", err)
	}
	if s.Phase() != PhaseAlertPending {
		t.Errorf("newer draft should still be pending, got %q", s.Phase())
	}
}

func TestDismissAlert_OnlyClearsAlert(t *testing.T) {
	s := newTestStore(t)
	s.BeginAlert("run-1")
	if err := s.PublishAlert("run-1", "msg"); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()

	s.DismissAlert()
	after := s.Snapshot()

	if after.Alert != nil {
		t.Fatal("alert should be cleared")
	}
	if !equalStrings(ids(after.Transactions), ids(before.Transactions)) ||
		len(after.Tasks) != len(before.Tasks) ||
		after.Syncing != before.Syncing {
		t.Error("dismiss changed more than the alert")
	}
}

func TestToggleTask_TwiceRestores(t *testing.T) {
	s := newTestStore(t)
	orig := s.Snapshot().Tasks[0]

	first, err := s.ToggleTask(orig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Completed == orig.Completed {
		t.Error("first toggle should flip completed")
	}
	second, err := s.ToggleTask(orig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Completed != orig.Completed {
		t.Error("second toggle should restore completed")
	}

	if _, err := s.ToggleTask("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleTask(missing) = %v, want ErrNotFound", err)
	}
}

func TestAddTask(t *testing.T) {
	s := newTestStore(t)
	n := len(s.Snapshot().Tasks)

	task, err := s.AddTask(NewTaskInput{Title: "  Escolher o bolo  "})
	if err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}
	if task.Title != "Escolher o bolo" || task.Completed || task.AssignedToUserID != nil {
		t.Errorf("unexpected task: %+v", task)
	}
	if want := (civil.Date{Year: 2024, Month: 5, Day: 20}); task.DueDate != want {
		t.Errorf("DueDate = %v, want %v", task.DueDate, want)
	}

	tasks := s.Snapshot().Tasks
	if len(tasks) != n+1 || tasks[len(tasks)-1].ID != task.ID {
		t.Error("new task should be appended at the end")
	}

	u1 := "u1"
	assigned, err := s.AddTask(NewTaskInput{Title: "Buffet", AssignedToUserID: &u1})
	if err != nil || assigned.AssignedToUserID == nil || *assigned.AssignedToUserID != "u1" {
		t.Errorf("assigned task = %+v, err = %v", assigned, err)
	}

	if _, err := s.AddTask(NewTaskInput{Title: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank title: err = %v, want ErrInvalidInput", err)
	}
	ghost := "u9"
	if _, err := s.AddTask(NewTaskInput{Title: "x", AssignedToUserID: &ghost}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown assignee: err = %v, want ErrNotFound", err)
	}
}

func TestSetSavingsRate(t *testing.T) {
	tests := []struct {
		name string
		rate int
		want int
	}{
		{"within range", 15, 15},
		{"above max", 45, 30},
		{"below min", -3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			u, err := s.SetSavingsRate("u1", tt.rate)
			if err != nil {
				t.Fatal(err)
			}
			if u.SavingsRate != tt.want {
				t.Errorf("SavingsRate = %d, want %d", u.SavingsRate, tt.want)
			}
			if got, _ := s.Snapshot().User("u1"); got.SavingsRate != tt.want {
				t.Errorf("stored SavingsRate = %d, want %d", got.SavingsRate, tt.want)
			}
		})
	}

	s := newTestStore(t)
	if _, err := s.SetSavingsRate("nobody", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetProfileName(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetProfileName("  Casa Ana & João "); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().ProfileName; got != "Casa Ana & João" {
		t.Errorf("ProfileName = %q", got)
	}
	if err := s.SetProfileName(""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAddManualTransaction(t *testing.T) {
	valid := ManualInput{
		UserID:      "u2",
		Description: "Presente de aniversário",
		Amount:      decimal.RequireFromString("120.00"),
		Date:        civil.Date{Year: 2024, Month: 5, Day: 18},
		Type:        domain.TransactionTypeExpense,
		Category:    "Compras",
	}

	tests := []struct {
		name    string
		mutate  func(in *ManualInput)
		wantErr bool
	}{
		{"valid", func(in *ManualInput) {}, false},
		{"zero amount allowed", func(in *ManualInput) { in.Amount = decimal.Zero }, false},
		{"default category", func(in *ManualInput) { in.Category = "" }, false},
		{"default date", func(in *ManualInput) { in.Date = civil.Date{} }, false},
		{"missing description", func(in *ManualInput) { in.Description = "  " }, true},
		{"missing user", func(in *ManualInput) { in.UserID = "" }, true},
		{"unknown user", func(in *ManualInput) { in.UserID = "u7" }, true},
		{"bad type", func(in *ManualInput) { in.Type = "TRANSFER" }, true},
		{"negative amount", func(in *ManualInput) { in.Amount = decimal.NewFromInt(-1) }, true},
		{"bad category", func(in *ManualInput) { in.Category = "Pets" }, true},
		{"invalid date", func(in *ManualInput) { in.Date = civil.Date{Year: 2024, Month: 2, Day: 31} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			before := len(s.Snapshot().Transactions)
			in := valid
			tt.mutate(&in)

			tx, err := s.AddManualTransaction(in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("err = %v, want ErrInvalidInput", err)
				}
				if got := len(s.Snapshot().Transactions); got != before {
					t.Errorf("ledger grew on invalid input: %d -> %d", before, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tx.Institution != domain.InstitutionManual {
				t.Errorf("Institution = %q, want Manual", tx.Institution)
			}
			if tx.ID == "" {
				t.Error("expected generated ID")
			}
			ledger := s.Snapshot().Transactions
			if len(ledger) != before+1 || ledger[0].ID != tx.ID {
				t.Error("manual transaction should be prepended")
			}
		})
	}
}

func TestAddManualTransaction_Defaults(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.AddManualTransaction(ManualInput{
		UserID:      "u1",
		Description: "Feira",
		Amount:      decimal.NewFromInt(35),
		Type:        domain.TransactionTypeExpense,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.Category != domain.CategoryUncategorized {
		t.Errorf("Category = %q, want Outros", tx.Category)
	}
	if want := (civil.Date{Year: 2024, Month: 5, Day: 20}); tx.Date != want {
		t.Errorf("Date = %v, want %v", tx.Date, want)
	}
}

func TestSnapshot_IsolatedFromStore(t *testing.T) {
	s := newTestStore(t)
	snap := s.Snapshot()
	snap.Transactions[0].Description = "mutated"
	*snap.Tasks[0].AssignedToUserID = "mutated"

	fresh := s.Snapshot()
	if fresh.Transactions[0].Description == "mutated" || *fresh.Tasks[0].AssignedToUserID == "mutated" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestBuildView(t *testing.T) {
	s := newTestStore(t)
	v := s.View(true)

	if v.ProfileName != "Ana & João" || v.LedgerSize != 5 || len(v.Transactions) != 5 {
		t.Fatalf("unexpected view header: %+v", v)
	}
	if v.Totals.Points != 8800 {
		t.Errorf("Points = %d, want 8800", v.Totals.Points)
	}
	if v.Goals[0].Progress != 70 || v.Goals[2].Progress != 95 {
		t.Errorf("goal progress = %d/%d", v.Goals[0].Progress, v.Goals[2].Progress)
	}
	if !v.Rewards[2].CanUnlock || v.Rewards[0].CanUnlock {
		t.Errorf("reward unlock flags wrong: %+v", v.Rewards)
	}
	if v.Transactions[0].Icon != "🚗" {
		t.Errorf("first icon = %q, want 🚗", v.Transactions[0].Icon)
	}
	if v.Phase != PhaseIdle || v.Syncing {
		t.Error("fresh store should be idle")
	}

	if bare := s.View(false); bare.Transactions != nil {
		t.Error("ledger should be omitted when not requested")
	}
}

func TestStore_ConcurrentBeginSync(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.BeginSync(); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one BeginSync to win, got %d", wins)
	}
}

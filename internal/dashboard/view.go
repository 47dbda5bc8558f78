package dashboard

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
)

// GoalView is a goal with its derived progress.
type GoalView struct {
	domain.Goal
	Progress int  `json:"progress"`
	Reached  bool `json:"reached"`
}

// RewardView is a reward with its derived progress towards the current points.
type RewardView struct {
	domain.Reward
	Progress  decimal.Decimal `json:"progress"`
	CanUnlock bool            `json:"can_unlock"`
}

// TransactionView is a ledger line with its display icon.
type TransactionView struct {
	domain.Transaction
	Icon string `json:"icon"`
}

// View is the read model served to the presentation layer.
type View struct {
	ProfileName  string            `json:"profile_name"`
	Users        []domain.User     `json:"users"`
	Totals       domain.Totals     `json:"totals"`
	Goals        []GoalView        `json:"goals"`
	Rewards      []RewardView      `json:"rewards"`
	Tasks        []domain.Task     `json:"tasks"`
	Alert        *string           `json:"alert"`
	Syncing      bool              `json:"syncing"`
	Phase        Phase             `json:"phase"`
	LedgerSize   int               `json:"ledger_size"`
	Transactions []TransactionView `json:"transactions,omitempty"`
}

// GoalViews derives progress for every goal.
func GoalViews(goals []domain.Goal) []GoalView {
	out := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, GoalView{Goal: g, Progress: g.Progress(), Reached: g.Reached()})
	}
	return out
}

// RewardViews derives progress for every reward given the current points.
func RewardViews(rewards []domain.Reward, points int64) []RewardView {
	out := make([]RewardView, 0, len(rewards))
	for _, r := range rewards {
		out = append(out, RewardView{Reward: r, Progress: r.Progress(points), CanUnlock: r.CanUnlock(points)})
	}
	return out
}

// TransactionViews attaches icons, preserving ledger order.
func TransactionViews(txs []domain.Transaction) []TransactionView {
	out := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, TransactionView{Transaction: t, Icon: t.Icon()})
	}
	return out
}

// BuildView derives the full read model from a state. The ledger itself is
// left out unless withLedger is set.
func BuildView(s State, withLedger bool) View {
	totals := s.Totals()
	v := View{
		ProfileName: s.ProfileName,
		Users:       s.Users,
		Totals:      totals,
		Goals:       GoalViews(s.Goals),
		Rewards:     RewardViews(s.Rewards, totals.Points),
		Tasks:       s.Tasks,
		Alert:       s.Alert,
		Syncing:     s.Syncing,
		Phase:       s.Phase(),
		LedgerSize:  len(s.Transactions),
	}
	if withLedger {
		v.Transactions = TransactionViews(s.Transactions)
	}
	return v
}

// View returns the current read model.
func (s *Store) View(withLedger bool) View {
	return BuildView(s.Snapshot(), withLedger)
}

// Package seed provides the static mock data the dashboard starts from.
package seed

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/align/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// Data is the full starting state plus the records served by the simulated
// bank feed.
type Data struct {
	ProfileName  string               `yaml:"profile_name"`
	Users        []domain.User        `yaml:"users"`
	Goals        []domain.Goal        `yaml:"goals"`
	Tasks        []domain.Task        `yaml:"tasks"`
	Rewards      []domain.Reward      `yaml:"rewards"`
	Transactions []domain.Transaction `yaml:"transactions"`
	BankFeed     []domain.BankRecord  `yaml:"bank_feed"`
}

// Default returns the embedded seed data.
func Default() (*Data, error) {
	return Parse(defaultSeed)
}

// Load reads seed data from path, or the embedded default when path is empty.
func Load(path string) (*Data, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed.Load: read %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates seed YAML.
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("seed.Parse: unmarshal: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("seed.Parse: %w", err)
	}
	return &d, nil
}

func (d *Data) validate() error {
	if len(d.Users) == 0 {
		return fmt.Errorf("at least one user is required")
	}

	users := make(map[string]bool, len(d.Users))
	for _, u := range d.Users {
		if u.ID == "" {
			return fmt.Errorf("user %q has no id", u.Name)
		}
		if users[u.ID] {
			return fmt.Errorf("duplicate user id %q", u.ID)
		}
		if u.MonthlyIncome.IsNegative() {
			return fmt.Errorf("user %q: negative monthly income", u.ID)
		}
		users[u.ID] = true
	}

	for _, tx := range d.Transactions {
		if !users[tx.UserID] {
			return fmt.Errorf("transaction %q references unknown user %q", tx.ID, tx.UserID)
		}
		if !tx.Type.Valid() {
			return fmt.Errorf("transaction %q: invalid type %q", tx.ID, tx.Type)
		}
		if tx.Amount.IsNegative() {
			return fmt.Errorf("transaction %q: negative amount", tx.ID)
		}
	}

	for _, g := range d.Goals {
		if !g.TargetAmount.IsPositive() {
			return fmt.Errorf("goal %q: target amount must be positive", g.ID)
		}
	}

	for _, t := range d.Tasks {
		if t.AssignedToUserID != nil && !users[*t.AssignedToUserID] {
			return fmt.Errorf("task %q assigned to unknown user %q", t.ID, *t.AssignedToUserID)
		}
	}

	for _, r := range d.Rewards {
		if r.Cost <= 0 {
			return fmt.Errorf("reward %q: cost must be positive", r.ID)
		}
	}

	for i, rec := range d.BankFeed {
		if rec.Description == "" {
			return fmt.Errorf("bank feed record %d has no description", i)
		}
		if rec.Amount.IsNegative() {
			return fmt.Errorf("bank feed record %d: negative amount", i)
		}
	}

	return nil
}

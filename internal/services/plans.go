package services

import (
	"fmt"
	"os"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Plan maps an opaque payment-plan identifier (a provider price id) to the pass it
// grants. Exactly one of Credits and DurationDays is set.
type Plan struct {
	ID           string `yaml:"id" validate:"required"`
	PassType     string `yaml:"pass_type" validate:"required"`
	Credits      int    `yaml:"credits" validate:"required_without=DurationDays,excluded_with=DurationDays,gte=0"`
	DurationDays int    `yaml:"duration_days" validate:"required_without=Credits,gte=0"`
	Mode         string `yaml:"mode" validate:"required,oneof=payment subscription"`
}

func (p Plan) GrantType() string {
	if p.Credits > 0 {
		return models.GrantTypeCredits
	}
	return models.GrantTypeUnlimited
}

func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

type PlanTable struct {
	plans map[string]Plan
}

type planFile struct {
	Plans []Plan `yaml:"plans"`
}

func DefaultPlans() []Plan {
	return []Plan{
		{ID: "price_drop_in", PassType: "drop_in", Credits: 1, Mode: models.PlanModePayment},
		{ID: "price_class_pack_5", PassType: "class_pack_5", Credits: 5, Mode: models.PlanModePayment},
		{ID: "price_class_pack_10", PassType: "class_pack_10", Credits: 10, Mode: models.PlanModePayment},
		{ID: "price_unlimited_week", PassType: "unlimited_week", DurationDays: 7, Mode: models.PlanModePayment},
		{ID: "price_unlimited_month", PassType: "unlimited_month", DurationDays: 30, Mode: models.PlanModeSubscription},
	}
}

func NewPlanTable(plans []Plan) (*PlanTable, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	table := &PlanTable{plans: make(map[string]Plan, len(plans))}
	for i, plan := range plans {
		if err := validate.Struct(plan); err != nil {
			return nil, fmt.Errorf("plan %d (%q): %w", i, plan.ID, err)
		}
		if _, exists := table.plans[plan.ID]; exists {
			return nil, fmt.Errorf("plan %q defined twice", plan.ID)
		}
		table.plans[plan.ID] = plan
	}
	return table, nil
}

// LoadPlanTable reads the plan table from a YAML file, or returns the built-in
// table when path is empty.
func LoadPlanTable(path string) (*PlanTable, error) {
	if path == "" {
		return NewPlanTable(DefaultPlans())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan table: %w", err)
	}
	var file planFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse plan table: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("plan table %s has no plans", path)
	}
	return NewPlanTable(file.Plans)
}

func (t *PlanTable) Lookup(planID string) (Plan, bool) {
	plan, ok := t.plans[planID]
	return plan, ok
}

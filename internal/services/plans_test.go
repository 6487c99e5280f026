package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlansAreValid(t *testing.T) {
	table, err := NewPlanTable(DefaultPlans())
	require.NoError(t, err)

	pack, ok := table.Lookup("price_class_pack_10")
	require.True(t, ok)
	assert.Equal(t, models.GrantTypeCredits, pack.GrantType())
	assert.Equal(t, 10, pack.Credits)

	month, ok := table.Lookup("price_unlimited_month")
	require.True(t, ok)
	assert.Equal(t, models.GrantTypeUnlimited, month.GrantType())
	assert.Equal(t, 30*24*time.Hour, month.Duration())

	_, ok = table.Lookup("price_missing")
	assert.False(t, ok)
}

func TestNewPlanTableRejectsBadPlans(t *testing.T) {
	tests := []struct {
		name  string
		plans []Plan
	}{
		{name: "missing id", plans: []Plan{{PassType: "drop_in", Credits: 1, Mode: models.PlanModePayment}}},
		{name: "no grant", plans: []Plan{{ID: "p", PassType: "drop_in", Mode: models.PlanModePayment}}},
		{name: "both grants", plans: []Plan{{ID: "p", PassType: "drop_in", Credits: 1, DurationDays: 7, Mode: models.PlanModePayment}}},
		{name: "bad mode", plans: []Plan{{ID: "p", PassType: "drop_in", Credits: 1, Mode: "gift"}}},
		{name: "duplicate", plans: []Plan{
			{ID: "p", PassType: "drop_in", Credits: 1, Mode: models.PlanModePayment},
			{ID: "p", PassType: "class_pack_5", Credits: 5, Mode: models.PlanModePayment},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlanTable(tt.plans)
			require.Error(t, err)
		})
	}
}

func TestLoadPlanTableFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	content := `plans:
  - id: price_intro
    pass_type: intro_3
    credits: 3
    mode: payment
  - id: price_annual
    pass_type: unlimited_year
    duration_days: 365
    mode: subscription
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadPlanTable(path)
	require.NoError(t, err)

	intro, ok := table.Lookup("price_intro")
	require.True(t, ok)
	assert.Equal(t, "intro_3", intro.PassType)
	assert.Equal(t, 3, intro.Credits)

	annual, ok := table.Lookup("price_annual")
	require.True(t, ok)
	assert.Equal(t, 365*24*time.Hour, annual.Duration())

	_, ok = table.Lookup("price_drop_in")
	assert.False(t, ok)
}

func TestLoadPlanTableDefaultsAndErrors(t *testing.T) {
	table, err := LoadPlanTable("")
	require.NoError(t, err)
	_, ok := table.Lookup("price_drop_in")
	assert.True(t, ok)

	_, err = LoadPlanTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("plans: []\n"), 0o600))
	_, err = LoadPlanTable(empty)
	require.Error(t, err)
}

package jobs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abeeha-baig/ocr/internal/common"
)

func TestMemoryGate_AdmitsBelowHighWater(t *testing.T) {
	g := NewMemoryGate(85, nil)
	g.probe = func() (float64, error) { return 60, nil }
	assert.NoError(t, g.Admit())
}

func TestMemoryGate_RejectsAboveHighWater(t *testing.T) {
	g := NewMemoryGate(85, nil)
	g.probe = func() (float64, error) { return 91.5, nil }

	err := g.Admit()
	require.Error(t, err)
	var rpe *common.ResourcePressureError
	require.ErrorAs(t, err, &rpe)
	assert.Equal(t, 91.5, rpe.UsedPercent)
	assert.Equal(t, 85.0, rpe.HighWater)
}

func TestMemoryGate_RejectsAtExactHighWater(t *testing.T) {
	g := NewMemoryGate(85, nil)
	g.probe = func() (float64, error) { return 85, nil }
	assert.Error(t, g.Admit())
}

func TestMemoryGate_ProbeFailureAdmits(t *testing.T) {
	g := NewMemoryGate(85, nil)
	g.probe = func() (float64, error) { return 0, errors.New("no procfs") }
	assert.NoError(t, g.Admit())
}

func TestMemoryGate_ObserveNeverRefuses(t *testing.T) {
	g := NewMemoryGate(85, nil)

	calls := 0
	g.probe = func() (float64, error) { calls++; return 95, nil }
	g.Observe()

	g.probe = func() (float64, error) { calls++; return 0, errors.New("no procfs") }
	g.Observe()

	assert.Equal(t, 2, calls)
}

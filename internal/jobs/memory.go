package jobs

import (
	"log/slog"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/abeeha-baig/ocr/internal/common"
)

// MemoryGate refuses new submissions while system memory sits above the high
// water mark. Running jobs are never interrupted; admission control only.
type MemoryGate struct {
	HighWaterPercent float64
	logger           *slog.Logger

	// probe is swappable for tests
	probe func() (float64, error)
}

func NewMemoryGate(highWaterPercent float64, logger *slog.Logger) *MemoryGate {
	if logger == nil {
		logger = slog.Default()
	}
	if highWaterPercent <= 0 {
		highWaterPercent = 85
	}
	return &MemoryGate{
		HighWaterPercent: highWaterPercent,
		logger:           logger,
		probe: func() (float64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.UsedPercent, nil
		},
	}
}

// Admit returns a ResourcePressureError when memory is above the mark. A
// failed probe admits: refusing work on a broken metric would wedge the
// whole intake.
func (g *MemoryGate) Admit() error {
	used, err := g.probe()
	if err != nil {
		g.logger.Warn("memory.probe_failed", "err", err)
		return nil
	}
	if used >= g.HighWaterPercent {
		g.logger.Warn("memory.pressure", "used_percent", used, "high_water", g.HighWaterPercent)
		return &common.ResourcePressureError{UsedPercent: used, HighWater: g.HighWaterPercent}
	}
	return nil
}

// Observe logs memory pressure without refusing anything. Called between
// sub-batches so an operator can see a job pushing the host toward the mark.
func (g *MemoryGate) Observe() {
	used, err := g.probe()
	if err != nil {
		g.logger.Warn("memory.probe_failed", "err", err)
		return
	}
	if used >= g.HighWaterPercent {
		g.logger.Warn("memory.pressure", "used_percent", used, "high_water", g.HighWaterPercent)
	}
}

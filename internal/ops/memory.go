package ops

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// memoryUsedPercent reports system memory usage. Swapped in tests.
var memoryUsedPercent = func(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// waitForMemory blocks while memory usage is above highWater. A failing probe
// never blocks.
func waitForMemory(ctx context.Context, logger *zap.SugaredLogger, highWater float64, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	warned := false
	for {
		used, err := memoryUsedPercent(ctx)
		if err != nil {
			logger.Debugw("memory probe failed", "error", err)
			return nil
		}
		if used <= highWater {
			return nil
		}
		if !warned {
			logger.Infow("waiting for memory", "used_percent", used, "high_water", highWater)
			warned = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

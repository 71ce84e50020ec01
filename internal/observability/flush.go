package observability

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daymate-service/internal/traffic"
)

// FlushTelemetry logs a summary of recent plan outcomes and syncs the logger.
// Prometheus is pull-based, so only logs need flushing. Call during graceful
// shutdown after in-flight requests have drained.
func FlushTelemetry(logger *zap.Logger, window time.Duration) error {
	if logger == nil {
		return nil
	}
	failed, total := traffic.FailureRate(window)
	logger.Info("plan outcomes before shutdown",
		zap.Duration("window", window),
		zap.Int("completed", total),
		zap.Int("failed", failed),
		zap.Int("degraded", traffic.Count(traffic.OutcomeDegraded, window)),
		zap.Int("denied", traffic.Count(traffic.OutcomeDenied, window)),
	)
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}

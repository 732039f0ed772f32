package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered logs before process exit and closes any
// extra resources (cache connections) passed in. Prometheus is pull-based so
// there is nothing to push. Errors are joined; every closer is attempted.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	if logger != nil {
		// Sync on a terminal stderr returns ENOTTY/EINVAL; not a real failure.
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.ENOTTY) && !errors.Is(err, syscall.EINVAL) {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}

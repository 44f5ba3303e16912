package mcp

import (
	"log/slog"
	"time"
)

// CoordinatorOption configures a MessageCoordinator at construction, in
// the teacher's functional-options idiom (helpers.go's ToolCallStartOpt
// / ToolCallUpdateOpt pattern generalized from session-update builders
// to construction-time configuration).
type CoordinatorOption func(*coordinatorConfig)

type coordinatorConfig struct {
	logger         *slog.Logger
	defaultTimeout time.Duration
}

func defaultCoordinatorConfig() coordinatorConfig {
	return coordinatorConfig{logger: slog.Default(), defaultTimeout: 30 * time.Second}
}

// WithLogger directs coordinator diagnostics to l, matching the
// teacher's Connection.SetLogger convention applied at construction
// time instead of via a setter.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *coordinatorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDefaultRequestTimeout overrides the 30s default SendRequestToPeer
// waits before resolving a slot with Error{REQUEST_TIMEOUT}.
func WithDefaultRequestTimeout(d time.Duration) CoordinatorOption {
	return func(c *coordinatorConfig) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

package ports

import (
	"context"
)

// Service is a long-running component started and stopped by the daemon
type Service interface {
	// Start starts the service without blocking
	Start(ctx context.Context) error

	// Stop stops the service
	Stop() error
}

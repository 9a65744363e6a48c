package location

import "context"

// Provider interface defines the methods for location providers
type Provider interface {
	GetLocation(ctx context.Context) (Position, error)
	Source() Source
	Close() error
}

// PermissionChecker is implemented by providers able to tell whether they
// may read the device position without trying.
type PermissionChecker interface {
	Permission(ctx context.Context) (PermissionState, error)
}

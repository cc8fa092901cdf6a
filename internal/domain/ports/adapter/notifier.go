package adapter

import "context"

// Notifier is the port for user-visible notifications and audit records.
// Delivery mechanics live outside this core; emission failures are logged by
// callers and never fail the financial operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]interface{}) error
}

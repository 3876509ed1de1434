package ports

import "context"

// Mailer is the outbound email capability. Delivery failures are logged by
// callers and never abort the triggering auth operation.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

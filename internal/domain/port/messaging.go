package port

import "context"

// StatusPublisher announces terminal job transitions to interested services.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

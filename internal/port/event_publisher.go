package port

import "context"

type EventPublisher interface {
	// Publish sends one integration message to topic
	Publish(ctx context.Context, topic string, key string, payload any) error
}

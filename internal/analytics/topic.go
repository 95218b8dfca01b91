package analytics

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// TopicPublisher publishes purchase events to a Pub/Sub topic and waits for the server ack.
type TopicPublisher struct {
	publisher *gcppubsub.Publisher
}

func NewTopicPublisher(publisher *gcppubsub.Publisher) (*TopicPublisher, error) {
	if publisher == nil {
		return nil, errors.New("purchase topic publisher required")
	}
	return &TopicPublisher{publisher: publisher}, nil
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	res := p.publisher.Publish(ctx, &gcppubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	_, err := res.Get(ctx)
	return err
}

// Stop flushes pending messages.
func (p *TopicPublisher) Stop() {
	p.publisher.Stop()
}

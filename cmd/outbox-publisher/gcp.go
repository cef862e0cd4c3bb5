package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type topicPublisher interface {
	Publish(context.Context, *outboundMessage) error
}

// topicPublishers returns nil when no publisher exists for the topic.
type topicPublishers func(topic string) topicPublisher

func clientTopics(client pubSubClient) topicPublishers {
	return func(topic string) topicPublisher {
		pub := client.Publisher(topic)
		if pub == nil {
			return nil
		}
		return gcpTopic{pub: pub}
	}
}

type gcpTopic struct {
	pub *gcppubsub.Publisher
}

// Publish blocks until the server acknowledges the message.
func (t gcpTopic) Publish(ctx context.Context, msg *outboundMessage) error {
	_, err := t.pub.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	}).Get(ctx)
	return err
}

package events

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// NewMemory returns an in-process pub/sub. The GoChannel is returned too so
// in-process consumers (and tests) can subscribe.
func NewMemory(logger *slog.Logger, topic string) (*WatermillPublisher, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger))
	return NewWatermillPublisher(pubSub, topic), pubSub
}

// NewRedisStream publishes onto a Redis stream named after the topic.
func NewRedisStream(client redis.UniversalClient, logger *slog.Logger, topic string) (*WatermillPublisher, error) {
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return NewWatermillPublisher(pub, topic), nil
}

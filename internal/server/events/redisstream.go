package events

import (
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// NewRedisStreamPublisher builds a Redis Streams publisher on an existing client.
func NewRedisStreamPublisher(client redis.UniversalClient, logger logging.Logger) (message.Publisher, error) {
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		NewLoggerAdapter(logger),
	)
}

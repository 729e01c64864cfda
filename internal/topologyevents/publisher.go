package topologyevents

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
)

// NewAMQPPublisher builds a publisher against amqpURI from watermill-amqp's
// durable pub/sub config (one durable exchange per routing key). No
// queue-name generator is passed, so no queue is set up at publish time;
// consumers bind their own queues.
func NewAMQPPublisher(amqpURI string, logger watermill.LoggerAdapter) (*amqp.Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	config := amqp.NewDurablePubSubConfig(amqpURI, nil)
	return amqp.NewPublisher(config, logger)
}

package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/rabbit"
)

const (
	ExchangeDispatchTopic = "dispatch_topic"

	RouteRideMatched = "ride.matched"
)

// DispatchProducer publishes match results for the ride-lifecycle
// consumers on the other side of the broker.
type DispatchProducer struct {
	client *rabbit.RabbitMQ
	l      logger.Logger
}

func NewDispatchProducer(client *rabbit.RabbitMQ, l logger.Logger) (*DispatchProducer, error) {
	p := &DispatchProducer{
		client: client,
		l:      l,
	}

	// Объявляем exchange один раз при старте
	if err := client.Channel.ExchangeDeclare(
		ExchangeDispatchTopic,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", ExchangeDispatchTopic, err)
	}

	return p, nil
}

// PublishRideMatched hands the accepted match to the ride lifecycle.
// The match is already settled in the offer store, so a broker hiccup
// is retried without risking a double match.
func (p *DispatchProducer) PublishRideMatched(ctx context.Context, msg models.RideMatchedMessage) error {
	const op = "DispatchProducer.PublishRideMatched"

	body, err := json.Marshal(msg)
	if err != nil {
		ctx = wrap.WithAction(ctx, "marshal_ride_matched")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal message: %w", op, err))
	}

	publish := func() error {
		return p.client.Channel.PublishWithContext(
			ctx,
			ExchangeDispatchTopic,
			RouteRideMatched,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				Body:          body,
				Timestamp:     time.Now(),
				CorrelationId: msg.CorrelationID,
			},
		)
	}

	if err := retry(3, 200*time.Millisecond, publish); err != nil {
		ctx = wrap.WithAction(ctx, "publish_message")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish with context: %w", op, err))
	}

	p.l.Info(ctx, "published ride.matched",
		"offer_id", msg.OfferID,
		"driver_id", msg.DriverID,
	)
	return nil
}

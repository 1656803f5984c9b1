// Package bus is the engine's Kafka transport (C11, spec.md §6): one
// sarama.ConsumerGroup per ingress topic (each with its own consumer
// group id, so every topic's cursor advances independently) and a
// single sarama.AsyncProducer draining the outbound events.Sink.
package bus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"perpd/internal/config"
	"perpd/internal/events"
	"perpd/internal/ingress"
)

var errUnroutable = errors.New("bus: no topic mapping for event type")

// Handler processes one decoded record's raw bytes. Returning an error
// does not stop consumption — bad records are logged and skipped,
// matching the teacher's log-and-continue worker error handling.
type Handler func(raw []byte) error

// groupHandler adapts a Handler into sarama.ConsumerGroupHandler.
type groupHandler struct {
	topic   string
	process Handler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.process(msg.Value); err != nil {
			log.Error().Err(err).Str("topic", h.topic).Msg("dropping malformed record")
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// Bus owns the consumer groups and producer backing the engine's four
// ingress topics and its outbound delivery loop.
type Bus struct {
	cfg      config.Config
	client   sarama.Client
	producer sarama.AsyncProducer
}

// New dials the Kafka cluster named in cfg.BootstrapServers.
func New(cfg config.Config) (*Bus, error) {
	scfg := sarama.NewConfig()
	scfg.Version = sarama.V2_8_0_0
	scfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	scfg.Producer.Return.Successes = false
	scfg.Producer.Return.Errors = true
	scfg.Producer.RequiredAcks = sarama.WaitForLocal

	client, err := sarama.NewClient([]string{cfg.BootstrapServers}, scfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, err
	}

	go func() {
		for err := range producer.Errors() {
			log.Error().Err(err).Msg("failed to deliver outbound event")
		}
	}()

	return &Bus{cfg: cfg, client: client, producer: producer}, nil
}

// Consume runs a consumer group for topic/groupID until ctx is
// cancelled, dispatching each record's raw value to handle.
func (b *Bus) Consume(ctx context.Context, topic, groupID string, handle Handler) error {
	group, err := sarama.NewConsumerGroupFromClient(groupID, b.client)
	if err != nil {
		return err
	}
	defer group.Close()

	h := &groupHandler{topic: topic, process: handle}
	for ctx.Err() == nil {
		if err := group.Consume(ctx, []string{topic}, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("topic", topic).Msg("consumer group session ended")
		}
	}
	return ctx.Err()
}

// DeliveryLoop drains sink and produces each event to the topic its
// concrete type maps to, until ctx is cancelled. It never blocks the
// engine's writer: the sink is only ever drained here, asynchronously.
func (b *Bus) DeliveryLoop(ctx context.Context, sink *events.Sink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sink.Wakeup():
			b.flush(sink)
		}
	}
}

func (b *Bus) flush(sink *events.Sink) {
	for _, ev := range sink.DrainAll() {
		topic, key, err := b.route(ev)
		if err != nil {
			log.Error().Err(err).Msg("unroutable outbound event")
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode outbound event")
			continue
		}
		b.producer.Input() <- &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(payload),
		}
	}
}

func (b *Bus) route(ev any) (topic, key string, err error) {
	switch e := ev.(type) {
	case events.TradeResponse:
		k := string(e.OrderID)
		if k == "" {
			k = string(e.UserID)
		}
		return b.cfg.TradeResponseTopic, k, nil
	case events.TradeOutcome:
		return b.cfg.TradeOutcomeTopic, string(e.TradeID), nil
	case events.BalanceRequest:
		return b.cfg.BalanceRequestTopic, string(e.UserID), nil
	case events.HoldingsRequest:
		return b.cfg.HoldingsRequestTopic, string(e.UserID), nil
	default:
		return "", "", errUnroutable
	}
}

// Close releases the producer and underlying client.
func (b *Bus) Close() error {
	if err := b.producer.Close(); err != nil {
		return err
	}
	return b.client.Close()
}

// DecodeTradeRequest is the Handler body for the trade-create-request
// topic, exposed here so the entrypoint (cmd/perpd) can wire it without
// importing bus internals.
func DecodeTradeRequest(raw []byte) (*ingress.CreateTradeRequest, error) {
	var req ingress.CreateTradeRequest
	if err := ingress.Decode(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-community/pkg/log"
)

// roomTopic carries every room channel. The room id is the message key, so
// events of one room stay ordered within one partition.
const roomTopic = "chat-to-gateway"

const headerEventType = "event_type"

var (
	roomChannelPrefix = strings.SplitN(ChannelRoomToGateway, "%s", 2)[0]
	roomChannelSuffix = strings.SplitN(ChannelRoomToGateway, "%s", 2)[1]
)

// channelToTopicAndKey maps a room channel onto the room topic.
//
//	"chat:room:42:to_gateway" -> "chat-to-gateway", key "42"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	rest, ok := strings.CutPrefix(channel, roomChannelPrefix)
	if !ok {
		return "", "", fmt.Errorf("not a room channel: %q", channel)
	}
	roomID, ok := strings.CutSuffix(rest, roomChannelSuffix)
	if !ok || roomID == "" {
		return "", "", fmt.Errorf("not a room channel: %q", channel)
	}
	return roomTopic, roomID, nil
}

// patternToTopic maps the all-rooms pattern onto the room topic. Kafka has
// no per-key subscription, so no other pattern can be served.
func patternToTopic(pattern string) (string, error) {
	if pattern != PatternRoomToGateway {
		return "", fmt.Errorf("unsupported pattern: %q", pattern)
	}
	return roomTopic, nil
}

func encodeMessage(channel string, event *Event) (*kafka.Message, error) {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
		Headers:        []kafka.Header{{Key: headerEventType, Value: []byte(event.Type)}},
	}, nil
}

// decodeMessage restores the event. An envelope without a room takes it
// from the key.
func decodeMessage(msg *kafka.Message) (*Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, err
	}
	if event.RoomID == "" {
		event.RoomID = string(msg.Key)
	}
	if event.RoomID == "" {
		return nil, fmt.Errorf("event without room")
	}
	return &event, nil
}

// consumerConfig builds the consumer settings. Each gateway instance needs
// its own group so that every instance sees every room event.
func consumerConfig(cfg KafkaConfig) *kafka.ConfigMap {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "chat-gateway"
	}
	return &kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	}
}

// KafkaPubSub implements PubSub on a single Kafka topic.
type KafkaPubSub struct {
	producer  *kafka.Producer
	config    KafkaConfig
	consumers []*kafka.Consumer
	cancels   []context.CancelFunc
	mu        sync.Mutex
	doneCh    chan struct{}
}

// NewKafkaPubSub connects the producer and makes sure the room topic exists.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kps := &KafkaPubSub{
		producer: p,
		config:   cfg,
		doneCh:   make(chan struct{}),
	}
	go kps.deliveryReports()

	if err := kps.ensureTopic(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", roomTopic).Msg("failed to ensure room topic")
	}
	return kps, nil
}

func (k *KafkaPubSub) ensureTopic() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             roomTopic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return r.Error
		}
	}
	return nil
}

func (k *KafkaPubSub) deliveryReports() {
	defer close(k.doneCh)
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l := log.L()
			l.Error().Err(m.TopicPartition.Error).Str("room_id", string(m.Key)).Msg("room event delivery failed")
		}
	}
}

// Publish produces the event keyed by its room.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	msg, err := encodeMessage(channel, event)
	if err != nil {
		return err
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// SubscribePattern consumes the room topic until ctx is cancelled or the
// bus is closed.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternToTopic(pattern)
	if err != nil {
		return nil, err
	}

	c, err := kafka.NewConsumer(consumerConfig(k.config))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	events := make(chan *Event, 100)

	k.mu.Lock()
	k.consumers = append(k.consumers, c)
	k.cancels = append(k.cancels, cancel)
	k.mu.Unlock()

	go consume(subCtx, c, events)
	return events, nil
}

func consume(ctx context.Context, c *kafka.Consumer, events chan<- *Event) {
	defer close(events)
	l := log.L()

	for ctx.Err() == nil {
		switch e := c.Poll(500).(type) {
		case *kafka.Message:
			event, err := decodeMessage(e)
			if err != nil {
				l.Warn().Err(err).Msg("dropping malformed room event")
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Str("room_id", event.RoomID).Msg("room event consumer full, event dropped")
			}
		case kafka.Error:
			l.Error().Str("error", e.String()).Bool("fatal", e.IsFatal()).Msg("kafka bus error")
			if e.IsFatal() {
				return
			}
		}
	}
}

// Close stops every consumer and flushes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for i, c := range k.consumers {
		k.cancels[i]()
		c.Close()
	}
	k.consumers, k.cancels = nil, nil
	k.mu.Unlock()

	k.producer.Flush(5000)
	k.producer.Close()
	<-k.doneCh
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/logger"
)

// Event 变更通知事件。工单状态、车辆状态、排班的变更都会发一条。
type Event struct {
	EntityType string    `json:"entity_type"` // work_order / vehicle / assignment
	EntityID   string    `json:"entity_id"`
	NewState   string    `json:"new_state"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier 变更通知出口。实现必须是 fire-and-forget：
// 发布失败只能记日志，绝不允许让触发它的业务事务失败。
type Notifier interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// KafkaNotifier 把事件写到 Kafka topic 的 Notifier 实现。
type KafkaNotifier struct {
	writer *kafkago.Writer
	log    logger.Logger
}

// NewKafkaNotifier 创建KafkaNotifier。
func NewKafkaNotifier(brokers []string, topic string, log logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
			Async:        true,
		},
		log: log,
	}
}

func (n *KafkaNotifier) Publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		n.log.Errorf("failed to encode notify event: %v", err)
		return
	}
	if err := n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(e.EntityID),
		Value: payload,
	}); err != nil {
		n.log.Warnf("failed to publish notify event %s/%s: %v", e.EntityType, e.EntityID, err)
	}
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// Nop 丢弃所有事件的 Notifier，供测试或未配置 Kafka 时使用。
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
func (Nop) Close() error                   { return nil }

// Recorder 记录收到的事件，测试断言用。
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"signalflow/pkg/logger"
)

// ConsumerService 定义了消费 Kafka 消息的通用接口
type ConsumerService interface {
	// Consume 启动一个协程消费指定主题，将消息发送到返回的通道。
	// 消息处理完成后必须调用 Commit 提交位移，保证至少一次投递。
	Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
	Close()
}

type kafkaConsumer struct {
	brokerURL string
	reader    *kafka.Reader
}

func NewKafkaConsumer(brokerURL string) ConsumerService {
	return &kafkaConsumer{brokerURL: brokerURL}
}

func (c *kafkaConsumer) Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{c.brokerURL},
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		// 信号消息不能丢，位移由处理方显式提交
		StartOffset: kafka.FirstOffset,
		MaxAttempts: 3,
	})
	c.reader = r

	outputCh := make(chan kafka.Message, 100)

	go func() {
		defer close(outputCh)
		defer r.Close()
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				logger.Errorf("kafka read error on topic %s: %v", topic, err)
				time.Sleep(time.Second)
				continue
			}

			select {
			case outputCh <- m:
			case <-ctx.Done():
				return
			}
		}
		logger.Infof("kafka consumer for topic %s finished", topic)
	}()

	return outputCh, nil
}

func (c *kafkaConsumer) Commit(ctx context.Context, msg kafka.Message) error {
	if c.reader == nil {
		return nil
	}
	return c.reader.CommitMessages(ctx, msg)
}

func (c *kafkaConsumer) Close() {
	logger.Info("kafka consumer service closing")
}

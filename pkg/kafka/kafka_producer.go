package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"signalflow/pkg/logger"
)

// Kafka 生产者服务
// 定义接口，方便测试和替换
type ProducerService interface {
	Produce(ctx context.Context, key []byte, value []byte) error
	Close()
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer 创建指定topic的生产者。
// 消息使用 userId 作为 Key，确保相同用户的信号进入同一个 Partition (每用户有序)
func NewKafkaProducer(brokerURL, topic string) ProducerService {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 按Key哈希，保证同一用户落在同一分区
		RequiredAcks: kafka.RequireOne,
	}
	return &kafkaProducer{writer: writer}
}

func (p *kafkaProducer) Produce(ctx context.Context, key []byte, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *kafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		logger.Errorf("Error closing kafka writer: %v", err)
	}
}

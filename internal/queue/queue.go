package queue

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"signalflow/conf"
	"signalflow/internal/consts"
	"signalflow/internal/model"
	"signalflow/pkg/kafka"
	"signalflow/pkg/logger"
)

// Publisher 过滤后的信号入队。
// redis SETNX 按信号指纹去重，重复入队的信号直接丢弃，
// 配合订单表的唯一索引，同一指纹最多产生一笔订单。
type Publisher struct {
	producer kafka.ProducerService
	rdb      *redis.Client
}

func NewPublisher(cfg conf.KafkaConfig, rdb *redis.Client) *Publisher {
	return &Publisher{
		producer: kafka.NewKafkaProducer(cfg.Broker, cfg.Topic),
		rdb:      rdb,
	}
}

// Publish 返回是否真正入队，重复信号返回false
func (p *Publisher) Publish(ctx context.Context, fs *model.FilteredSignal) (bool, error) {
	// 去重键带userId：同一条原始信号会给多个用户各派发一条
	key := consts.SignalDedupPrefix + fs.RawSignalID + ":" + strconv.FormatInt(fs.UserID, 10)
	ok, err := p.rdb.SetNX(ctx, key, fs.ID, consts.SignalDedupExpiry).Result()
	if err != nil {
		// redis不可用时放行，底线由订单唯一索引兜住
		logger.Warn("signal dedup setnx", logger.Pair("error", err.Error()))
	} else if !ok {
		return false, nil
	}

	msg := model.QueueMessage{FilteredSignalID: fs.ID}
	userKey := []byte(strconv.FormatInt(fs.UserID, 10))
	if err := p.producer.Produce(ctx, userKey, msg.Encode()); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Publisher) Close() {
	p.producer.Close()
}

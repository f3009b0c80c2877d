package pipeline

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"signalflow/conf"
	"signalflow/internal/model"
	"signalflow/internal/risk"
	"signalflow/pkg/kafka"
	"signalflow/pkg/logger"
	"signalflow/pkg/metrics"
)

// 消费端依赖的最小能力集，具体实现是dao层、风控gate和执行器
type SignalSource interface {
	FilteredGet(ctx context.Context, id int64) (*model.FilteredSignal, error)
}

type Admitter interface {
	Admit(ctx context.Context, fs *model.FilteredSignal) (*model.Order, error)
}

type Trader interface {
	Execute(ctx context.Context, order *model.Order) error
}

// 基础设施错误的原地重试退避，消息处理成功之前绝不碰下一条：
// 提交位移是按分区整体推进的，跳过一条就等于永久丢掉它
const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// Pipeline 信号队列消费端：取消息、回表、过风控闸门、交给执行器。
// 风控拒绝是终态，消息照常提交位移不重试；基础设施错误原地退避重试。
type Pipeline struct {
	cfg      conf.KafkaConfig
	consumer kafka.ConsumerService
	signals  SignalSource
	gate     Admitter
	exec     Trader
	rec      *metrics.Recorder

	retryBase time.Duration
	retryMax  time.Duration
}

func NewPipeline(
	cfg conf.KafkaConfig,
	consumer kafka.ConsumerService,
	signals SignalSource,
	gate Admitter,
	exec Trader,
	rec *metrics.Recorder,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		consumer: consumer,
		signals:  signals,
		gate:     gate,
		exec:     exec,
		rec:      rec,

		retryBase: retryBaseDelay,
		retryMax:  retryMaxDelay,
	}
}

func (p *Pipeline) Run(ctx context.Context) error {
	msgCh, err := p.consumer.Consume(ctx, p.cfg.Topic, p.cfg.GroupID)
	if err != nil {
		return err
	}
	logger.Info("signal pipeline started",
		logger.Pair("topic", p.cfg.Topic),
		logger.Pair("group", p.cfg.GroupID))

	for msg := range msgCh {
		if err := p.process(ctx, msg.Value); err != nil {
			// 只有ctx取消才会走到这里，消息没处理完，不提交
			return err
		}
		if err := p.consumer.Commit(ctx, msg); err != nil {
			logger.Error("commit offset", logger.Pair("error", err.Error()))
		}
	}
	return ctx.Err()
}

// process 处理一条消息直到终态。基础设施错误（数据库抖动等）
// 指数退避原地重试，只在ctx取消时放弃。
func (p *Pipeline) process(ctx context.Context, payload []byte) error {
	delay := p.retryBase
	for {
		err := p.handle(ctx, payload)
		if err == nil {
			return nil
		}
		logger.Error("handle signal message, retrying in place",
			logger.Pair("error", err.Error()),
			logger.Pair("delay", delay.String()))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay *= 2; delay > p.retryMax {
			delay = p.retryMax
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, payload []byte) error {
	qm, err := model.DecodeQueueMessage(payload)
	if err != nil {
		// 消息体坏了重试也没用，记录后提交
		logger.Warn("malformed queue message", logger.Pair("error", err.Error()))
		p.rec.SignalDropped("pipeline", "malformed")
		return nil
	}

	fs, err := p.signals.FilteredGet(ctx, qm.FilteredSignalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 回表查不到也是终态，重试不会让记录出现
			logger.Warn("filtered signal not found", logger.Pair("id", qm.FilteredSignalID))
			p.rec.SignalDropped("pipeline", "missing")
			return nil
		}
		return err
	}

	order, err := p.gate.Admit(ctx, fs)
	if err != nil {
		if risk.IsPolicyRejection(err) {
			// 风控拒绝是业务终态，不重试
			logger.Info("signal rejected by risk gate",
				logger.Pair("signalId", fs.ID),
				logger.Pair("userId", fs.UserID),
				logger.Pair("reason", err.Error()))
			p.rec.SignalDropped("risk", risk.RejectionCode(err))
			return nil
		}
		return err
	}

	if err := p.exec.Execute(ctx, order); err != nil {
		// 执行器内部已把订单落到终态，这里只记录
		logger.Warn("order execution finished with error",
			logger.Pair("orderId", order.ID),
			logger.Pair("error", err.Error()))
	}
	return nil
}

func (p *Pipeline) Close() {
	p.consumer.Close()
}

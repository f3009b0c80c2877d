package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"signalflow/conf"
	"signalflow/internal/model"
	"signalflow/internal/risk"
	"signalflow/pkg/metrics"
)

// prometheus默认注册表只能注册一次
var testRec = metrics.New()

type fakeConsumer struct {
	ch      chan kafka.Message
	commits []kafka.Message
}

func newFakeConsumer(msgs ...kafka.Message) *fakeConsumer {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeConsumer{ch: ch}
}

func (f *fakeConsumer) Consume(_ context.Context, _ string, _ string) (<-chan kafka.Message, error) {
	return f.ch, nil
}

func (f *fakeConsumer) Commit(_ context.Context, msg kafka.Message) error {
	f.commits = append(f.commits, msg)
	return nil
}

func (f *fakeConsumer) Close() {}

// fakeSource 按调用次数依次返回预设结果，模拟数据库抖动后恢复；
// 没配置fs时一直失败
type fakeSource struct {
	attempts int
	errs     []error // 前len(errs)次返回对应错误
	fs       *model.FilteredSignal
}

func (f *fakeSource) FilteredGet(_ context.Context, _ int64) (*model.FilteredSignal, error) {
	f.attempts++
	if f.attempts <= len(f.errs) {
		return nil, f.errs[f.attempts-1]
	}
	if f.fs == nil {
		return nil, errors.New("db down")
	}
	return f.fs, nil
}

type fakeGate struct {
	err      error
	admitted int
}

func (f *fakeGate) Admit(_ context.Context, fs *model.FilteredSignal) (*model.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.admitted++
	return &model.Order{ID: 1, FilteredSignalID: fs.ID, UserID: fs.UserID}, nil
}

type fakeTrader struct {
	executed int
}

func (f *fakeTrader) Execute(_ context.Context, _ *model.Order) error {
	f.executed++
	return nil
}

func newTestPipeline(consumer *fakeConsumer, src *fakeSource, gate *fakeGate, exec *fakeTrader) *Pipeline {
	p := NewPipeline(conf.KafkaConfig{Topic: "signals", GroupID: "test"}, consumer, src, gate, exec, testRec)
	p.retryBase = time.Millisecond
	p.retryMax = time.Millisecond
	return p
}

func queueMsg(id int64) kafka.Message {
	return kafka.Message{Value: model.QueueMessage{FilteredSignalID: id}.Encode()}
}

// 数据库抖动时必须原地重试，位移只在处理成功之后提交，
// 绝不能跳过失败消息去提交后面的位移
func TestRunRetriesInfraErrorBeforeCommit(t *testing.T) {
	src := &fakeSource{
		errs: []error{errors.New("db down"), errors.New("db down")},
		fs:   &model.FilteredSignal{ID: 101, UserID: 7, Symbol: "BTC/USDT"},
	}
	gate := &fakeGate{}
	exec := &fakeTrader{}
	consumer := newFakeConsumer(queueMsg(101))

	p := newTestPipeline(consumer, src, gate, exec)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if src.attempts != 3 {
		t.Errorf("attempts = %d, want 3 (two retries then success)", src.attempts)
	}
	if exec.executed != 1 {
		t.Errorf("executed = %d, want 1", exec.executed)
	}
	if len(consumer.commits) != 1 {
		t.Errorf("commits = %d, want exactly 1, after success", len(consumer.commits))
	}
}

// ctx取消时放弃重试，失败消息的位移保持未提交
func TestRunLeavesFailedOffsetUncommitted(t *testing.T) {
	infra := errors.New("db down")
	src := &fakeSource{errs: []error{infra, infra, infra, infra, infra, infra, infra, infra}}
	consumer := newFakeConsumer(queueMsg(101))

	p := newTestPipeline(consumer, src, &fakeGate{}, &fakeTrader{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if len(consumer.commits) != 0 {
		t.Errorf("commits = %d, failed message must stay uncommitted", len(consumer.commits))
	}
}

// 消息体解析失败是终态，提交位移跳过，不会卡死管道
func TestRunCommitsMalformedMessage(t *testing.T) {
	consumer := newFakeConsumer(kafka.Message{Value: []byte("{not json")})
	exec := &fakeTrader{}

	p := newTestPipeline(consumer, &fakeSource{}, &fakeGate{}, exec)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(consumer.commits) != 1 {
		t.Errorf("commits = %d, want 1", len(consumer.commits))
	}
	if exec.executed != 0 {
		t.Errorf("malformed message must not reach the executor")
	}
}

// 回表查不到记录也是终态，提交位移而不是无限重试
func TestRunCommitsMissingSignal(t *testing.T) {
	src := &fakeSource{errs: []error{gorm.ErrRecordNotFound}}
	consumer := newFakeConsumer(queueMsg(404))
	exec := &fakeTrader{}

	p := newTestPipeline(consumer, src, &fakeGate{}, exec)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if src.attempts != 1 {
		t.Errorf("attempts = %d, missing record must not be retried", src.attempts)
	}
	if len(consumer.commits) != 1 {
		t.Errorf("commits = %d, want 1", len(consumer.commits))
	}
	if exec.executed != 0 {
		t.Error("missing signal must not reach the executor")
	}
}

// 风控拒绝是终态：提交位移、不重试、不下单
func TestRunCommitsPolicyRejection(t *testing.T) {
	src := &fakeSource{fs: &model.FilteredSignal{ID: 101, UserID: 7}}
	gate := &fakeGate{err: risk.ErrInsufficientBalance}
	exec := &fakeTrader{}
	consumer := newFakeConsumer(queueMsg(101))

	p := newTestPipeline(consumer, src, gate, exec)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if src.attempts != 1 {
		t.Errorf("attempts = %d, policy rejection must not be retried", src.attempts)
	}
	if len(consumer.commits) != 1 {
		t.Errorf("commits = %d, want 1", len(consumer.commits))
	}
	if exec.executed != 0 {
		t.Error("rejected signal must not reach the executor")
	}
}

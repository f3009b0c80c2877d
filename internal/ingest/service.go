package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cast"

	"signalflow/internal/dao"
	"signalflow/internal/evaluator"
	"signalflow/internal/filter"
	"signalflow/internal/indicator"
	"signalflow/internal/market"
	"signalflow/internal/model"
	"signalflow/internal/queue"
	"signalflow/pkg/errors"
	"signalflow/pkg/errors/ecode"
	"signalflow/pkg/logger"
	"signalflow/pkg/metrics"
	"signalflow/pkg/utils"
)

// Service 信号入口：落库原始信号、跑过滤链、按用户扇出评估、入队。
// 市场环境拿不到时整条信号丢弃（失败闭合），宁可错过不可误开。
type Service struct {
	signals *dao.SignalDao
	risks   *dao.RiskDao
	chain   *filter.Chain
	eval    *evaluator.Evaluator
	market  *market.Provider
	pub     *queue.Publisher
	node    *snowflake.Node
	rec     *metrics.Recorder
}

func NewService(
	signals *dao.SignalDao,
	risks *dao.RiskDao,
	chain *filter.Chain,
	eval *evaluator.Evaluator,
	mkt *market.Provider,
	pub *queue.Publisher,
	node *snowflake.Node,
	rec *metrics.Recorder,
) *Service {
	return &Service{
		signals: signals,
		risks:   risks,
		chain:   chain,
		eval:    eval,
		market:  mkt,
		pub:     pub,
		node:    node,
		rec:     rec,
	}
}

// Handle 处理一条入站信号，返回实际入队的条数。
// 重复信号返回 SignalDuplicateErr，被过滤返回 SignalFilteredErr。
func (s *Service) Handle(ctx context.Context, req *model.WebhookRequest, rawBody []byte) (int, error) {
	s.rec.SignalReceived(req.Source, req.Symbol)
	now := time.Now()

	snap, err := buildSnapshot(req)
	if err != nil {
		s.rec.SignalDropped("ingest", "bad-indicators")
		return 0, errors.Wrap(err, ecode.InvalidParamErr, "invalid indicators")
	}

	raw := &model.RawSignal{
		ID:         req.ID,
		Source:     req.Source,
		Symbol:     utils.FormatSymbol(req.Symbol),
		Timeframe:  req.Timeframe,
		ReceivedAt: now,
		RawPayload: string(rawBody),
	}
	if err := raw.SetSnapshot(snap); err != nil {
		return 0, errors.Wrap(err, ecode.InternalErr, "encode snapshot")
	}

	inserted, err := s.signals.RawCreate(ctx, raw)
	if err != nil {
		return 0, errors.Wrap(err, ecode.InternalErr, "persist raw signal")
	}
	if !inserted {
		// 指纹撞上了已有记录，重放或源端重发，静默丢弃
		s.rec.SignalDropped("ingest", "duplicate")
		return 0, errors.New(ecode.SignalDuplicateErr, "duplicate signal")
	}

	mkt, err := s.market.Context(ctx)
	if err != nil {
		s.rec.SignalDropped("market", "unavailable")
		return 0, errors.Wrap(err, ecode.InternalErr, "market context unavailable")
	}

	if res := s.chain.Evaluate(raw, *mkt, now); !res.Pass {
		s.rec.SignalDropped("filter", res.Code)
		return 0, errors.New(ecode.SignalFilteredErr, res.Reason)
	}

	return s.fanOut(ctx, raw, snap, mkt, now)
}

// buildSnapshot 优先用信号源自带的指标，残缺或缺失时退回K线现算。
// 两样都没有的请求在这里拒绝。
func buildSnapshot(req *model.WebhookRequest) (model.IndicatorSnapshot, error) {
	if len(req.Indicators) > 0 {
		// 指标里没带close时用请求顶层的收盘价补上
		if _, ok := req.Indicators[model.KeyClose]; !ok {
			req.Indicators[model.KeyClose] = req.Close
		}
		snap, err := model.ParseIndicatorSnapshot(req.Indicators)
		if err == nil {
			return snap, nil
		}
		if len(req.Klines) == 0 {
			return nil, err
		}
	}
	if len(req.Klines) == 0 {
		return nil, fmt.Errorf("signal carries neither indicators nor klines")
	}

	// K线现算兜底。fear_greed这类K线推不出来的键从指标里透传
	snap := indicator.FromKlines(req.Klines)
	for k, v := range req.Indicators {
		if _, ok := snap[k]; ok {
			continue
		}
		if f, err := cast.ToFloat64E(v); err == nil {
			snap[k] = f
		}
	}
	return snap, nil
}

// fanOut 每个激活用户独立评估，单个用户失败不影响其他用户
func (s *Service) fanOut(ctx context.Context, raw *model.RawSignal, snap model.IndicatorSnapshot, mkt *model.MarketContext, now time.Time) (int, error) {
	profiles, err := s.risks.ListActive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, ecode.InternalErr, "list active profiles")
	}

	published := 0
	for i := range profiles {
		profile := &profiles[i]

		ev := s.eval.Evaluate(evaluator.Input{
			Snapshot:          snap,
			Market:            *mkt,
			ATRPct:            snap.GetOr("atr_pct", 0),
			VolumeRatio:       snap.GetOr("volume_ratio", 0),
			RequestedLeverage: profile.RequestedLeverage,
		})
		if ev.Decision == model.DecisionNone {
			s.rec.SignalDropped("evaluator", ev.Code)
			continue
		}

		fs := &model.FilteredSignal{
			ID:            s.node.Generate().Int64(),
			RawSignalID:   raw.ID,
			UserID:        profile.UserID,
			Symbol:        raw.Symbol,
			Decision:      ev.Decision,
			Reason:        ev.Reason,
			EntryPrice:    snap.Get("close"),
			TakeProfitPct: ev.TakeProfitPct,
			StopLossPct:   ev.StopLossPct,
			SizeFraction:  ev.SizeFraction,
			Leverage:      ev.Leverage,
			FilteredAt:    now,
		}
		if err := s.signals.FilteredCreate(ctx, fs); err != nil {
			logger.Error("persist filtered signal",
				logger.Pair("userId", profile.UserID),
				logger.Pair("rawId", raw.ID),
				logger.Pair("error", err.Error()))
			continue
		}

		ok, err := s.pub.Publish(ctx, fs)
		if err != nil {
			logger.Error("publish filtered signal",
				logger.Pair("signalId", fs.ID),
				logger.Pair("error", err.Error()))
			continue
		}
		if ok {
			published++
		}
	}

	logger.Info("signal fanned out",
		logger.Pair("rawId", raw.ID),
		logger.Pair("symbol", raw.Symbol),
		logger.Pair("published", published))
	return published, nil
}

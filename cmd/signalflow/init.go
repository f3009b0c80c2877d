package api

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"signalflow/conf"
	"signalflow/internal/dao"
	"signalflow/internal/evaluator"
	"signalflow/internal/exchange"
	"signalflow/internal/executor"
	"signalflow/internal/filter"
	"signalflow/internal/handler/position"
	"signalflow/internal/handler/ticker"
	"signalflow/internal/handler/webhook"
	"signalflow/internal/ingest"
	"signalflow/internal/market"
	"signalflow/internal/monitor"
	"signalflow/internal/pipeline"
	"signalflow/internal/queue"
	"signalflow/internal/risk"
	"signalflow/internal/router"
	kafkapkg "signalflow/pkg/kafka"
	"signalflow/pkg/logger"
	"signalflow/pkg/metrics"
	"signalflow/pkg/push/apns"
	"signalflow/pkg/recorder"
)

// App 持有整条管道，Router给http侧用，后台协程由Start拉起
type App struct {
	router   *router.ApiRouter
	pipe     *pipeline.Pipeline
	mon      *monitor.Monitor
	exec     *executor.Executor
	pub      *queue.Publisher
	cancelFn context.CancelFunc
}

func InitApp(db *gorm.DB, rdb *redis.Client) *App {
	appCfg := conf.AppConfig

	node, err := snowflake.NewNode(1)
	if err != nil {
		logger.Fatalf("snowflake node: %v", err)
	}

	signalDao := dao.NewSignalDao(db)
	orderDao := dao.NewOrderDao(db)
	positionDao := dao.NewPositionDao(db)
	riskDao := dao.NewRiskDao(db)

	rec := metrics.New()

	// 交易所注册表，simulated永远在，方便联调
	exchanges := map[string]exchange.Exchange{
		"simulated": exchange.NewSimulated(),
	}
	if appCfg.Binance.ApiKey != "" {
		exchanges["binance"] = exchange.NewBinance(appCfg.Binance.ApiKey, appCfg.Binance.SecretKey, appCfg.Binance.Testnet)
	}
	if appCfg.Okx.ApiKey != "" {
		exchanges["okx"] = exchange.NewOkx(appCfg.Okx.ApiKey, appCfg.Okx.SecretKey, appCfg.Okx.Password)
	}
	primary, ok := exchanges[appCfg.Exchange]
	if !ok {
		logger.Fatalf("default exchange %s is not configured", appCfg.Exchange)
	}

	var notifier executor.Notifier
	if appCfg.Apns.Enabled {
		n, err := apns.NewTokenApns(appCfg.Apns)
		if err != nil {
			logger.Errorf("apns init: %v", err)
		} else {
			notifier = n
		}
	}

	journal := recorder.NewJSONFileRecorder("logs/order-audit.json")
	exec := executor.NewExecutor(appCfg.Executor, db, exchanges, orderDao, positionDao, riskDao, rec, journal, notifier)

	// 精度跟用户绑定的交易所走，没配置的交易所退回默认
	lotRound := func(name, symbol string, quantity float64) float64 {
		if ex, ok := exchanges[name]; ok {
			return ex.RoundLot(symbol, quantity)
		}
		return primary.RoundLot(symbol, quantity)
	}
	gate := risk.NewGate(db, riskDao, positionDao, orderDao, node, lotRound)

	mktProvider := market.NewProvider(appCfg.Market, rdb)
	pub := queue.NewPublisher(appCfg.Kafka, rdb)
	chain := filter.NewChain(appCfg.Filter)
	eval := evaluator.New(appCfg.Risk)

	ingestSvc := ingest.NewService(signalDao, riskDao, chain, eval, mktProvider, pub, node, rec)

	consumer := kafkapkg.NewKafkaConsumer(appCfg.Kafka.Broker)
	pipe := pipeline.NewPipeline(appCfg.Kafka, consumer, signalDao, gate, exec, rec)

	mon := monitor.NewMonitor(appCfg.Monitor, positionDao, orderDao, exchanges, exec, rec)

	tickerHandler := ticker.NewHandler()
	mon.OnPrice(tickerHandler.Broadcast)

	wh := webhook.NewHandler(appCfg.Webhook, ingestSvc)
	ph := position.NewHandler(positionDao, orderDao, exec)

	return &App{
		router: router.NewApiRouter(wh, ph, tickerHandler),
		pipe:   pipe,
		mon:    mon,
		exec:   exec,
		pub:    pub,
	}
}

func (a *App) Router() Router { return a.router }

// Start 先对账再拉起消费端和监控
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelFn = cancel

	if err := a.exec.Reconcile(ctx); err != nil {
		logger.Errorf("startup reconcile: %v", err)
	}

	go func() {
		if err := a.pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("pipeline stopped: %v", err)
		}
	}()
	go a.mon.Run(ctx)
}

func (a *App) Close() {
	if a.cancelFn != nil {
		a.cancelFn()
	}
	a.pipe.Close()
	a.pub.Close()
}

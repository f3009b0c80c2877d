package main

import (
	"log"
	"os"

	"github.com/nntaoli-project/goex/v2"

	api "signalflow/cmd/signalflow"
	"signalflow/conf"
	"signalflow/internal/middleware"
	"signalflow/internal/model"
	"signalflow/pkg/cache"
	"signalflow/pkg/db"
	"signalflow/pkg/logger"
)

// 启动服务（监听webhook + 消费信号队列 + 仓位监控）

/*
测试

BODY='{"id":"tv-20250901-0001","source":"tradingview","symbol":"BTCUSDT","timeframe":"15m","timestamp":1756700000,"close":45123.45,"indicators":{"ema9":44987.12,"rsi_fast":68,"rsi_slow":70,"momentum":0.02,"crossed_above_ema9":1,"atr_pct":0.4,"volume_ratio":1.2}}'
SECRET="ab12cd34ef56abcdef1234567890abcdef1234567890abcdef1234567890"
SIGNATURE=$(echo -n $BODY | openssl dgst -sha256 -hmac $SECRET | sed 's/^.* //')

curl -X POST "http://localhost:8090/webhook?token=changeme" \
  -H "Content-Type: application/json" \
  -H "X-Signature: $SIGNATURE" \
  -d "$BODY"
*/

func main() {

	// 加载配置文件
	err := conf.LoadConfig("conf/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.Init(appCfg.Log)
	defer logger.Sync()

	if appCfg.Okx.Simulated {
		// 设置为模拟环境
		goex.DefaultHttpCli.SetHeaders("x-simulated-trading", "1")
	}

	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUser == "" || dbPass == "" || dbHost == "" {
		dbUser = appCfg.Db.Username
		dbPass = appCfg.Db.Password
		dbHost = appCfg.Db.Host
		dbPort = appCfg.Db.Port
		dbName = appCfg.Db.DbName
	}

	// 初始化数据库
	datasource, err := db.Open(db.NewConfig(dbUser, dbPass, dbHost, dbPort, dbName))
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	if err := datasource.AutoMigrate(
		&model.RawSignal{},
		&model.FilteredSignal{},
		&model.Order{},
		&model.OrderEvent{},
		&model.Position{},
		&model.RiskProfile{},
	); err != nil {
		logger.Fatalf("Failed to migrate schema: %v", err)
	}

	// 初始化redis
	rdb, err := cache.NewRedis(appCfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect redis: %v", err)
	}

	app := api.InitApp(datasource, rdb)
	app.Start()

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srv.RegisterOnShutdown(func() {
		app.Close()
		if datasource != nil {
			if m, err := datasource.DB(); err == nil {
				_ = m.Close()
			}
		}
		_ = rdb.Close()
	})

	srv.Run(middleware.NewMiddleware(), app.Router())
}

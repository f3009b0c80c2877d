package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signalflow/internal/handler/ping"
	"signalflow/internal/handler/position"
	"signalflow/internal/handler/ticker"
	"signalflow/internal/handler/webhook"
	"signalflow/internal/middleware"
)

type ApiRouter struct {
	webhookHandler  *webhook.Handler
	positionHandler *position.Handler
	tickerHandler   *ticker.Handler
}

func NewApiRouter(wh *webhook.Handler, ph *position.Handler, th *ticker.Handler) *ApiRouter {
	return &ApiRouter{webhookHandler: wh, positionHandler: ph, tickerHandler: th}
}

func (api *ApiRouter) Load(g *gin.Engine) {

	g.GET("/ping", ping.Ping())
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 信号源回调，鉴权在handler内部做（token或HMAC）
	g.POST("/webhook", api.webhookHandler.HandleWebhook())

	base := g.Group("/api/v1")

	p := base.Group("/positions", middleware.AntiDuplicateMiddleware())
	{
		p.GET("/open", api.positionHandler.PositionsGetOpen())
		p.POST("/:id/close", api.positionHandler.PositionClose())
	}

	o := base.Group("/orders", middleware.AntiDuplicateMiddleware())
	{
		o.GET("/:id", api.positionHandler.OrderGet())
	}

	t := base.Group("/ticker")
	{
		t.GET("/ws", api.tickerHandler.ServeWS) // 通过websocket连接获取价格
	}
}

package ticker

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"signalflow/pkg/logger"
)

// 客户端请求的消息格式
type ClientMessage struct {
	Action  string   `json:"action"`  // subscribe | unsubscribe
	Symbols []string `json:"symbols"` // ["BTCUSDT", "ETHUSDT"]
}

// 推给客户端的行情
type PriceUpdate struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"`
}

type ClientConn struct {
	Conn    *websocket.Conn
	Send    chan []byte // 异步发送通道
	Symbols map[string]struct{}
}

// Handler 行情广播。价格由仓位监控的取价回调喂进来，
// 监控扫到哪个交易对，订阅了它的连接就能收到推送。
type Handler struct {
	mu sync.RWMutex
	// 每个币种对应的订阅客户端集合
	symbolSubscribers map[string]map[*ClientConn]struct{}
	upgrader          websocket.Upgrader
}

func NewHandler() *Handler {
	return &Handler{
		symbolSubscribers: make(map[string]map[*ClientConn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // 允许跨域
		},
	}
}

// Broadcast 给监控注册的回调，非阻塞，队列满就丢
func (h *Handler) Broadcast(symbol string, price float64) {
	h.mu.RLock()
	subscribers := h.symbolSubscribers[symbol]
	if len(subscribers) == 0 {
		h.mu.RUnlock()
		return
	}
	data, _ := json.Marshal(PriceUpdate{
		Symbol: symbol,
		Price:  price,
		Time:   time.Now().Unix(),
	})
	for client := range subscribers {
		select {
		case client.Send <- data:
		default:
			// 消费太慢，这一帧丢掉
		}
	}
	h.mu.RUnlock()
}

// ServeWS 升级连接并处理订阅消息
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade", logger.Pair("error", err.Error()))
		return
	}
	client := &ClientConn{
		Conn:    conn,
		Send:    make(chan []byte, 100),
		Symbols: make(map[string]struct{}),
	}

	defer func() {
		h.mu.Lock()
		for s := range client.Symbols {
			delete(h.symbolSubscribers[s], client)
			if len(h.symbolSubscribers[s]) == 0 {
				delete(h.symbolSubscribers, s)
			}
		}
		h.mu.Unlock()
		close(client.Send)
		conn.Close()
	}()

	go client.writePump()
	client.readPump(h)
}

func (h *Handler) subscribe(client *ClientConn, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range symbols {
		if _, ok := h.symbolSubscribers[s]; !ok {
			h.symbolSubscribers[s] = make(map[*ClientConn]struct{})
		}
		h.symbolSubscribers[s][client] = struct{}{}
		client.Symbols[s] = struct{}{}
	}
}

func (h *Handler) unsubscribe(client *ClientConn, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range symbols {
		delete(h.symbolSubscribers[s], client)
		if len(h.symbolSubscribers[s]) == 0 {
			delete(h.symbolSubscribers, s)
		}
		delete(client.Symbols, s)
	}
}

func (c *ClientConn) writePump() {
	for msg := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump 循环读取客户端的订阅指令，连接断开时返回
func (c *ClientConn) readPump(h *Handler) {
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			logger.Warn("ws invalid message", logger.Pair("error", err.Error()))
			continue
		}

		switch clientMsg.Action {
		case "subscribe":
			h.subscribe(c, clientMsg.Symbols)
		case "unsubscribe":
			h.unsubscribe(c, clientMsg.Symbols)
		}
	}
}

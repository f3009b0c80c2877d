package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder 管道各阶段的prometheus埋点
type Recorder struct {
	signalsReceived *prometheus.CounterVec
	signalsDropped  *prometheus.CounterVec
	ordersTotal     *prometheus.CounterVec
	positionsClosed *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	exchangeLatency *prometheus.HistogramVec
}

func New() *Recorder {
	return &Recorder{
		signalsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_signals_received_total",
				Help: "Total number of raw signals accepted at the webhook",
			},
			[]string{"source", "symbol"},
		),
		signalsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_signals_dropped_total",
				Help: "Signals rejected before execution, by stage/reason",
			},
			[]string{"stage", "reason"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_orders_total",
				Help: "Orders by terminal status",
			},
			[]string{"status"},
		),
		positionsClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_positions_closed_total",
				Help: "Positions closed by the monitor, by reason",
			},
			[]string{"reason"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalflow_last_price",
				Help: "Last observed price for a monitored symbol",
			},
			[]string{"symbol"},
		),
		exchangeLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalflow_exchange_call_duration_seconds",
				Help:    "Duration of exchange API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
}

func (r *Recorder) SignalReceived(source, symbol string) {
	r.signalsReceived.WithLabelValues(source, symbol).Inc()
}

func (r *Recorder) SignalDropped(stage, reason string) {
	r.signalsDropped.WithLabelValues(stage, reason).Inc()
}

func (r *Recorder) OrderFinal(status string) {
	r.ordersTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) PositionClosed(reason string) {
	r.positionsClosed.WithLabelValues(reason).Inc()
}

func (r *Recorder) LastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) ExchangeLatency(op string, seconds float64) {
	r.exchangeLatency.WithLabelValues(op).Observe(seconds)
}

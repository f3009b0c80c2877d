package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// 配置加载（API密钥、风控参数等）

type WebhookConfig struct {
	// 共享密钥，请求头 X-Token 或者 query 参数 token 必须携带
	Token string `yaml:"token" validate:"required"`
	// 可选的 HMAC-SHA256 签名密钥，配置后额外校验 X-Signature
	SigningSecret string `yaml:"signing-secret"`
}

type OkxConfig struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Password  string `yaml:"password"`
	Simulated bool   `yaml:"simulated"`
}

type BinanceConfig struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Testnet   bool   `yaml:"testnet"`
}

type DbConfig struct {
	DbName   string `yaml:"dbname" validate:"required"`
	Host     string `yaml:"host" validate:"required"`
	Port     string `yaml:"port" default:"3306"`
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password"`
}

// FilterConfig 信号过滤阈值
type FilterConfig struct {
	WindowMinutes int `yaml:"window-minutes" default:"15"` // 信号时效窗口
	// 恐惧贪婪指数允许区间（闭区间）
	FearGreedMin float64 `yaml:"fear-greed-min" default:"20"`
	FearGreedMax float64 `yaml:"fear-greed-max" default:"80"`
	// 主导率偏离的最小阈值，低于该值的视为噪音
	DominanceThreshold float64 `yaml:"dominance-threshold" default:"0.3"`
}

// RiskConfig 下单的数值策略
type RiskConfig struct {
	MaxLeverage     int     `yaml:"max-leverage" default:"10"`
	DefaultLeverage int     `yaml:"default-leverage" default:"6"`
	SizeFraction    float64 `yaml:"size-fraction" default:"0.3"` // 默认占可用余额的比例
	// 波动率与流动性下限，低于则拒绝进场
	ATRPctFloor      float64 `yaml:"atr-pct-floor" default:"0.1"`
	VolumeRatioFloor float64 `yaml:"volume-ratio-floor" default:"0.5"`
}

// ExecutorConfig 订单执行器
type ExecutorConfig struct {
	CallTimeout    time.Duration `yaml:"call-timeout" default:"10s"`    // 交易所单次调用超时
	FillTimeout    time.Duration `yaml:"fill-timeout" default:"90s"`    // 无成交撤单窗口
	PollInterval   time.Duration `yaml:"poll-interval" default:"3s"`    // 订单状态轮询间隔
	RetryMax       int           `yaml:"retry-max" default:"4"`         // 瞬时错误最大重试次数
	RetryBaseDelay time.Duration `yaml:"retry-base-delay" default:"500ms"`
	ReconcileGrace time.Duration `yaml:"reconcile-grace" default:"2m"` // 启动对账宽限期
}

// MonitorConfig 仓位监控
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval" default:"5s"` // 价格轮询间隔
}

// MarketConfig 市场环境数据源（恐惧贪婪指数、BTC主导率）
type MarketConfig struct {
	FearGreedURL string        `yaml:"fear-greed-url" default:"https://api.alternative.me/fng/"`
	DominanceURL string        `yaml:"dominance-url"`
	CacheTTL     time.Duration `yaml:"cache-ttl" default:"5m"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info"`
	FileName   string `yaml:"file-name" default:"logs/signalflow.log"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size" default:"100"`
	MaxBackups int    `yaml:"max-backups" default:"10"`
	MaxAge     int    `yaml:"max-age" default:"30"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console" default:"true"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address" default:"127.0.0.1:6379"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size" default:"10"`
	MinIdleConns int    `yaml:"min-idle-conns" default:"2"`
}

type KafkaConfig struct {
	Broker  string `yaml:"broker" validate:"required"`
	Topic   string `yaml:"topic" default:"signal.filtered"`
	GroupID string `yaml:"group-id" default:"signalflow-pipeline"`
}

type ApnsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
	KeyID   string `yaml:"key_id"`
	TeamID  string `yaml:"team_id"`
	KeyFile string `yaml:"key_file"` // p8 私钥路径
	IsProd  bool   `yaml:"is_prod"`
}

type Config struct {
	AppName      string `yaml:"app_name" default:"signalflow"`
	Listen       string `yaml:"listen" default:":8090"`
	Mode         string `yaml:"mode" default:"release"`
	Language     string `yaml:"language" default:"en"`
	MaxPingCount int    `yaml:"max-ping-count" default:"10"`

	Webhook  WebhookConfig  `yaml:"webhook"`
	Okx      OkxConfig      `yaml:"okx"`
	Binance  BinanceConfig  `yaml:"binance"`
	Exchange string         `yaml:"exchange" default:"binance"` // 默认交易所：binance / okx / simulated
	Db       DbConfig       `yaml:"database"`
	Filter   FilterConfig   `yaml:"filter"`
	Risk     RiskConfig     `yaml:"risk"`
	Executor ExecutorConfig `yaml:"executor"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Market   MarketConfig   `yaml:"market"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Apns     ApnsConfig     `yaml:"apns"`
}

var AppConfig Config

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file error %w", err)
	}
	return ParseConfig(data, &AppConfig)
}

// ParseConfig 解析配置并填充默认值，校验必填项
func ParseConfig(data []byte, cfg *Config) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("set config defaults error: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml error: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"signalflow/conf"
	"signalflow/internal/consts"
	"signalflow/internal/model"
	"signalflow/pkg/logger"
)

const defaultDominanceURL = "https://api.coingecko.com/api/v3/global"

// Provider 市场环境数据源：恐惧贪婪指数 + BTC主导率变化。
// 结果在内存里按TTL缓存，主导率的上一次取值放redis，重启后还能算出差值。
type Provider struct {
	cfg        conf.MarketConfig
	httpClient *http.Client
	rdb        *redis.Client

	mu      sync.Mutex
	cached  *model.MarketContext
	expires time.Time
}

func NewProvider(cfg conf.MarketConfig, rdb *redis.Client) *Provider {
	if cfg.DominanceURL == "" {
		cfg.DominanceURL = defaultDominanceURL
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		rdb:        rdb,
	}
}

// Context 返回当前市场环境，任何一项数据拿不到都算失败，调用方按失败闭合处理
func (p *Provider) Context(ctx context.Context) (*model.MarketContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Now().Before(p.expires) {
		return p.cached, nil
	}

	fg, err := p.fetchFearGreed(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch fear greed: %w", err)
	}
	diff, err := p.fetchDominanceDiff(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dominance: %w", err)
	}

	mkt := &model.MarketContext{
		FearGreed:     fg,
		DominanceDiff: diff,
		FetchedAt:     time.Now(),
	}
	p.cached = mkt
	p.expires = time.Now().Add(p.cfg.CacheTTL)
	return mkt, nil
}

// fetchFearGreed alternative.me风格的响应: {"data":[{"value":"54",...}]}
func (p *Provider) fetchFearGreed(ctx context.Context) (float64, error) {
	var out struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, p.cfg.FearGreedURL, &out); err != nil {
		return 0, err
	}
	if len(out.Data) == 0 {
		return 0, fmt.Errorf("empty fear greed response")
	}
	return cast.ToFloat64E(out.Data[0].Value)
}

// fetchDominanceDiff 当前BTC主导率减去上一次观测值。
// 第一次观测没有基线，差值按0处理。
func (p *Provider) fetchDominanceDiff(ctx context.Context) (float64, error) {
	var out struct {
		Data struct {
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, p.cfg.DominanceURL, &out); err != nil {
		return 0, err
	}
	current, ok := out.Data.MarketCapPercentage["btc"]
	if !ok {
		return 0, fmt.Errorf("btc dominance missing in response")
	}

	diff := 0.0
	prev, err := p.rdb.Get(ctx, consts.MarketDominanceKey).Float64()
	if err == nil {
		diff = current - prev
	} else if err != redis.Nil {
		logger.Warn("dominance baseline read", logger.Pair("error", err.Error()))
	}
	if err := p.rdb.Set(ctx, consts.MarketDominanceKey, current, 0).Err(); err != nil {
		logger.Warn("dominance baseline write", logger.Pair("error", err.Error()))
	}
	return diff, nil
}

func (p *Provider) getJSON(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

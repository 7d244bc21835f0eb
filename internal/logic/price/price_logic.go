package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"custody/internal/config"
	"custody/internal/constant"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/collection"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpc"
)

// Oracle converts native amounts to USD.
type Oracle interface {
	ConvertToUSD(ctx context.Context, amount decimal.Decimal, network constant.Network) (usd, price decimal.Decimal, err error)
}

var coinGeckoIds = map[constant.Network]string{
	constant.NetworkSolana:   "solana",
	constant.NetworkEthereum: "ethereum",
	constant.NetworkTron:     "tron",
}

// 行情接口不可用时的兜底价格
var fallbackPrices = map[constant.Network]decimal.Decimal{
	constant.NetworkSolana:   decimal.NewFromInt(150),
	constant.NetworkEthereum: decimal.NewFromInt(3000),
	constant.NetworkTron:     decimal.RequireFromString("0.12"),
}

type CoinGeckoOracle struct {
	apiUrl string
	client httpc.Service
	cache  *collection.Cache
}

func NewCoinGeckoOracle(c config.PriceConf) (*CoinGeckoOracle, error) {
	cache, err := collection.NewCache(c.CacheTTL, collection.WithName("usd-price"))
	if err != nil {
		return nil, err
	}
	return &CoinGeckoOracle{
		apiUrl: c.ApiUrl,
		client: httpc.NewServiceWithClient("coingecko", &http.Client{Timeout: c.Timeout}),
		cache:  cache,
	}, nil
}

func (o *CoinGeckoOracle) ConvertToUSD(ctx context.Context, amount decimal.Decimal, network constant.Network) (decimal.Decimal, decimal.Decimal, error) {
	p, err := o.Price(ctx, network)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return amount.Mul(p).Round(8), p, nil
}

// Price returns the cached USD price, refreshing it from the provider when
// stale and falling back to a constant when the provider fails.
func (o *CoinGeckoOracle) Price(ctx context.Context, network constant.Network) (decimal.Decimal, error) {
	id, ok := coinGeckoIds[network]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price source for network %s", network)
	}

	v, err := o.cache.Take(id, func() (any, error) {
		return o.fetch(ctx, id)
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("price lookup for %s failed, using fallback: %v", network, err)
		return fallbackPrices[network], nil
	}
	return v.(decimal.Decimal), nil
}

func (o *CoinGeckoOracle) fetch(ctx context.Context, id string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiUrl+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.DoRequest(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, string(body))
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return decimal.Zero, fmt.Errorf("decode coingecko response: %w", err)
	}
	p, ok := prices[id]["usd"]
	if !ok || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("coingecko returned no usd price for %s", id)
	}
	return p, nil
}

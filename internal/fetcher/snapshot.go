package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"reserveflow/config"
	"reserveflow/internal/auth"
	"reserveflow/internal/normalizer"
	"reserveflow/internal/symbols"
	"reserveflow/internal/transport"
	"reserveflow/logger"
	"reserveflow/models"
)

// midPriceTTL bounds how long a cached order book midpoint may be served
// before a fresh book is fetched.
const midPriceTTL = 2 * time.Second

type restClient interface {
	GetJSON(ctx context.Context, limitID, url string, out interface{}) error
	PostJSON(ctx context.Context, limitID, url string, body []byte, headers map[string]string, out interface{}) error
}

type midEntry struct {
	price   decimal.Decimal
	fetched time.Time
}

// Fetcher pulls full order books and market metadata over REST. The
// authenticator is optional; private endpoints fail with an explicit error
// when no credentials were configured.
type Fetcher struct {
	config  *config.Config
	rest    restClient
	symbols *symbols.Store
	auth    *auth.Authenticator
	log     *logger.Log

	midMu    sync.Mutex
	midCache map[string]midEntry
	now      func() time.Time
}

func NewFetcher(cfg *config.Config, rest restClient, store *symbols.Store, authenticator *auth.Authenticator) *Fetcher {
	return &Fetcher{
		config:   cfg,
		rest:     rest,
		symbols:  store,
		auth:     authenticator,
		log:      logger.GetLogger(),
		midCache: make(map[string]midEntry),
		now:      time.Now,
	}
}

func (f *Fetcher) source() *config.IndependentReserve {
	return &f.config.Source.IndependentReserve
}

// FetchFullBook retrieves the complete order book for a trading pair and
// returns it as a snapshot message with update id 0. The exchange always
// returns the full book; the configured depth is advisory only.
func (f *Fetcher) FetchFullBook(ctx context.Context, pair string) (models.BookMessage, error) {
	src := f.source()
	sym, err := f.symbols.ToExchange(pair, src.Domain)
	if err != nil {
		return models.BookMessage{}, err
	}

	reqURL := transport.PublicURL(src.RestURL, src.Domain, transport.OrderBookPath,
		transport.MarketQuery(sym.Primary, sym.Secondary))

	var raw models.RestOrderBook
	if err := f.rest.GetJSON(ctx, transport.OrderBookPath, reqURL, &raw); err != nil {
		return models.BookMessage{}, fmt.Errorf("fetch order book for %s: %w", pair, err)
	}

	msg, err := normalizer.SnapshotFromRest(raw, float64(f.now().UnixMicro())/1e6, pair)
	if err != nil {
		return models.BookMessage{}, fmt.Errorf("normalize order book for %s: %w", pair, err)
	}
	return msg, nil
}

// FetchRecentTrades retrieves up to count recent public trades for a pair.
func (f *Fetcher) FetchRecentTrades(ctx context.Context, pair string, count int) (models.RestRecentTrades, error) {
	src := f.source()
	sym, err := f.symbols.ToExchange(pair, src.Domain)
	if err != nil {
		return models.RestRecentTrades{}, err
	}

	query := transport.MarketQuery(sym.Primary, sym.Secondary)
	query.Set("numberOfRecentTradesToRetrieve", strconv.Itoa(count))
	reqURL := transport.PublicURL(src.RestURL, src.Domain, transport.RecentTradesPath, query)

	var raw models.RestRecentTrades
	if err := f.rest.GetJSON(ctx, transport.RecentTradesPath, reqURL, &raw); err != nil {
		return models.RestRecentTrades{}, fmt.Errorf("fetch recent trades for %s: %w", pair, err)
	}
	return raw, nil
}

// LastTradedPrice returns the price of the most recent public trade.
func (f *Fetcher) LastTradedPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	trades, err := f.FetchRecentTrades(ctx, pair, 1)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(trades.Trades) == 0 {
		return decimal.Decimal{}, fmt.Errorf("no recent trades for %s", pair)
	}
	price, err := decimal.NewFromString(trades.Trades[0].SecondaryCurrencyTradePrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("last traded price for %s: %w", pair, err)
	}
	return price, nil
}

// LastTradedPrices returns the most recent traded price for each pair.
// A pair with no trade history fails the whole call; partial price maps
// are worse than an explicit error for pricing consumers.
func (f *Fetcher) LastTradedPrices(ctx context.Context, pairs []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		price, err := f.LastTradedPrice(ctx, pair)
		if err != nil {
			return nil, err
		}
		prices[pair] = price
	}
	return prices, nil
}

// MidPrices returns the order book midpoint for each pair, served from
// the TTL cache where possible.
func (f *Fetcher) MidPrices(ctx context.Context, pairs []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		price, err := f.MidPrice(ctx, pair)
		if err != nil {
			return nil, err
		}
		prices[pair] = price
	}
	return prices, nil
}

// MidPrice returns the midpoint of the current best bid and ask. Results
// are cached briefly so pricing-heavy callers do not burn the order book
// rate limit weight on every call.
func (f *Fetcher) MidPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	f.midMu.Lock()
	if entry, ok := f.midCache[pair]; ok && f.now().Sub(entry.fetched) < midPriceTTL {
		f.midMu.Unlock()
		return entry.price, nil
	}
	f.midMu.Unlock()

	book, err := f.FetchFullBook(ctx, pair)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return decimal.Decimal{}, fmt.Errorf("order book for %s has an empty side", pair)
	}

	two := decimal.NewFromInt(2)
	mid := book.Bids[0].Price.Add(book.Asks[0].Price).Div(two)

	f.midMu.Lock()
	f.midCache[pair] = midEntry{price: mid, fetched: f.now()}
	f.midMu.Unlock()
	return mid, nil
}

// OrderMinimumVolumes returns the exchange-wide minimum order volume per
// primary currency code.
func (f *Fetcher) OrderMinimumVolumes(ctx context.Context) (map[string]decimal.Decimal, error) {
	src := f.source()
	reqURL := transport.PublicURL(src.RestURL, src.Domain, transport.MinimumVolumesPath, nil)

	var raw map[string]json.Number
	if err := f.rest.GetJSON(ctx, transport.MinimumVolumesPath, reqURL, &raw); err != nil {
		return nil, fmt.Errorf("fetch minimum volumes: %w", err)
	}

	volumes := make(map[string]decimal.Decimal, len(raw))
	for code, v := range raw {
		vol, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, fmt.Errorf("minimum volume for %s: %w", code, err)
		}
		volumes[code] = vol
	}
	return volumes, nil
}

// Ping verifies REST connectivity using a cheap public endpoint.
func (f *Fetcher) Ping(ctx context.Context) error {
	src := f.source()
	reqURL := transport.PublicURL(src.RestURL, src.Domain, transport.PingPath, nil)
	var out []string
	return f.rest.GetJSON(ctx, transport.PingPath, reqURL, &out)
}

// FetchAccounts returns account balances via the signed private API.
func (f *Fetcher) FetchAccounts(ctx context.Context) ([]models.Account, error) {
	if f.auth == nil {
		return nil, fmt.Errorf("accounts require API credentials")
	}
	src := f.source()
	reqURL := transport.PrivateURL(src.RestURL, src.Domain, transport.AccountsPath)
	body, headers := f.auth.SignRestRequest(reqURL, nil)

	var accounts []models.Account
	if err := f.rest.PostJSON(ctx, transport.AccountsPath, reqURL, body, headers, &accounts); err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}
	return accounts, nil
}

// FetchMyTrades returns a page of the authenticated user's trade history.
func (f *Fetcher) FetchMyTrades(ctx context.Context, pageIndex, pageSize int) (models.MyTradesPage, error) {
	if f.auth == nil {
		return models.MyTradesPage{}, fmt.Errorf("trade history requires API credentials")
	}
	src := f.source()
	reqURL := transport.PrivateURL(src.RestURL, src.Domain, transport.MyTradesPath)
	body, headers := f.auth.SignRestRequest(reqURL, []auth.Param{
		{Key: "pageIndex", Value: strconv.Itoa(pageIndex)},
		{Key: "pageSize", Value: strconv.Itoa(pageSize)},
	})

	var page models.MyTradesPage
	if err := f.rest.PostJSON(ctx, transport.MyTradesPath, reqURL, body, headers, &page); err != nil {
		return models.MyTradesPage{}, fmt.Errorf("fetch trade history: %w", err)
	}
	return page, nil
}

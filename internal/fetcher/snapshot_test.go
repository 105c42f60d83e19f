package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"reserveflow/config"
	"reserveflow/internal/auth"
	"reserveflow/internal/symbols"
	"reserveflow/internal/transport"
)

// fakeRestClient serves canned JSON keyed by endpoint path and records
// every request it sees.
type fakeRestClient struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	getCalls  []string
	postCalls []string
	lastBody  []byte
}

func newFakeRestClient() *fakeRestClient {
	return &fakeRestClient{
		responses: map[string]string{
			transport.PrimaryCurrencyCodesPath:   `["Xbt","Eth"]`,
			transport.SecondaryCurrencyCodesPath: `["Aud","Usd"]`,
		},
		errs: map[string]error{},
	}
}

func (f *fakeRestClient) GetJSON(ctx context.Context, limitID, url string, out interface{}) error {
	f.mu.Lock()
	f.getCalls = append(f.getCalls, url)
	f.mu.Unlock()
	if err := f.errs[limitID]; err != nil {
		return err
	}
	body, ok := f.responses[limitID]
	if !ok {
		return fmt.Errorf("no canned response for %s", limitID)
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeRestClient) PostJSON(ctx context.Context, limitID, url string, body []byte, headers map[string]string, out interface{}) error {
	f.mu.Lock()
	f.postCalls = append(f.postCalls, url)
	f.lastBody = body
	f.mu.Unlock()
	if err := f.errs[limitID]; err != nil {
		return err
	}
	resp, ok := f.responses[limitID]
	if !ok {
		return fmt.Errorf("no canned response for %s", limitID)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(resp), out)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	ir := &cfg.Source.IndependentReserve
	ir.Domain = "com"
	ir.RestURL = transport.DefaultRestURL
	ir.WssURL = transport.DefaultWssURL
	ir.Snapshot.Depth = 2
	return cfg
}

func newTestFetcher(t *testing.T, rest *fakeRestClient, authenticator *auth.Authenticator) *Fetcher {
	t.Helper()
	store := symbols.NewStore(rest, transport.DefaultRestURL)
	if err := store.EnsureInitialized(context.Background(), "com"); err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	return NewFetcher(testConfig(), rest, store, authenticator)
}

func TestFetchFullBook(t *testing.T) {
	rest := newFakeRestClient()
	rest.responses[transport.OrderBookPath] = `{
		"BuyOrders": [
			{"OrderType":"LimitBid","Price":"9890","Volume":"1"},
			{"OrderType":"LimitBid","Price":"9880","Volume":"2"},
			{"OrderType":"LimitBid","Price":"9870","Volume":"3"}
		],
		"SellOrders": [{"OrderType":"LimitOffer","Price":"9900","Volume":"1"}],
		"CreatedTimestampUtc": "2021-05-01T12:00:00.1234567Z",
		"PrimaryCurrencyCode": "Xbt",
		"SecondaryCurrencyCode": "Aud"
	}`
	f := newTestFetcher(t, rest, nil)

	book, err := f.FetchFullBook(context.Background(), "Xbt-Aud")
	if err != nil {
		t.Fatalf("FetchFullBook failed: %v", err)
	}
	if book.UpdateID != 0 {
		t.Errorf("snapshot update id must be 0, got %d", book.UpdateID)
	}
	// Depth is advisory: the full exchange book comes back untouched.
	if len(book.Bids) != 3 || len(book.Asks) != 1 {
		t.Errorf("unexpected level counts: %d bids, %d asks", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(decimal.RequireFromString("9890")) {
		t.Errorf("exchange order not preserved: %v", book.Bids)
	}

	last := rest.getCalls[len(rest.getCalls)-1]
	if !strings.Contains(last, "primaryCurrencyCode=Xbt") || !strings.Contains(last, "secondaryCurrencyCode=Aud") {
		t.Errorf("order book URL missing market query: %s", last)
	}
}

func TestFetchFullBookUnknownPair(t *testing.T) {
	f := newTestFetcher(t, newFakeRestClient(), nil)
	if _, err := f.FetchFullBook(context.Background(), "Doge-Aud"); err == nil {
		t.Fatal("expected error for unmapped pair")
	}
}

func TestLastTradedPrice(t *testing.T) {
	rest := newFakeRestClient()
	rest.responses[transport.RecentTradesPath] = `{
		"Trades": [
			{"PrimaryCurrencyAmount":"0.5","SecondaryCurrencyTradePrice":"9895.50","TradeTimestampUtc":"2021-05-01T12:00:00Z"}
		],
		"CreatedTimestampUtc": "2021-05-01T12:00:01Z"
	}`
	f := newTestFetcher(t, rest, nil)

	price, err := f.LastTradedPrice(context.Background(), "Xbt-Aud")
	if err != nil {
		t.Fatalf("LastTradedPrice failed: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("9895.50")) {
		t.Errorf("unexpected price %s", price)
	}

	last := rest.getCalls[len(rest.getCalls)-1]
	if !strings.Contains(last, "numberOfRecentTradesToRetrieve=1") {
		t.Errorf("trade count missing from URL: %s", last)
	}
}

func TestLastTradedPrices(t *testing.T) {
	rest := newFakeRestClient()
	rest.responses[transport.RecentTradesPath] = `{
		"Trades": [
			{"PrimaryCurrencyAmount":"0.5","SecondaryCurrencyTradePrice":"9895.50","TradeTimestampUtc":"2021-05-01T12:00:00Z"}
		],
		"CreatedTimestampUtc": "2021-05-01T12:00:01Z"
	}`
	f := newTestFetcher(t, rest, nil)

	prices, err := f.LastTradedPrices(context.Background(), []string{"Xbt-Aud", "Eth-Usd"})
	if err != nil {
		t.Fatalf("LastTradedPrices failed: %v", err)
	}
	if len(prices) != 2 || !prices["Eth-Usd"].Equal(decimal.RequireFromString("9895.50")) {
		t.Errorf("unexpected prices: %v", prices)
	}

	if _, err := f.LastTradedPrices(context.Background(), []string{"Doge-Aud"}); err == nil {
		t.Error("expected error for unmapped pair")
	}
}

func TestLastTradedPriceNoTrades(t *testing.T) {
	rest := newFakeRestClient()
	rest.responses[transport.RecentTradesPath] = `{"Trades":[],"CreatedTimestampUtc":"2021-05-01T12:00:01Z"}`
	f := newTestFetcher(t, rest, nil)
	if _, err := f.LastTradedPrice(context.Background(), "Xbt-Aud"); err == nil {
		t.Fatal("expected error when no trades exist")
	}
}

func TestMidPriceCached(t *testing.T) {
	rest := newFakeRestClient()
	rest.responses[transport.OrderBookPath] = `{
		"BuyOrders": [{"OrderType":"LimitBid","Price":"100","Volume":"1"}],
		"SellOrders": [{"OrderType":"LimitOffer","Price":"110","Volume":"1"}],
		"CreatedTimestampUtc": "2021-05-01T12:00:00Z",
		"PrimaryCurrencyCode": "Xbt",
		"SecondaryCurrencyCode": "Aud"
	}`
	f := newTestFetcher(t, rest, nil)

	now := time.Unix(1619870400, 0)
	f.now = func() time.Time { return now }

	mid, err := f.MidPrice(context.Background(), "Xbt-Aud")
	if err != nil {
		t.Fatalf("MidPrice failed: %v", err)
	}
	if !mid.Equal(decimal.RequireFromString("105")) {
		t.Errorf("expected midpoint 105, got %s", mid)
	}
	fetches := len(rest.getCalls)

	// Within the TTL the cached value is served without a REST call.
	now = now.Add(time.Second)
	if _, err := f.MidPrice(context.Background(), "Xbt-Aud"); err != nil {
		t.Fatalf("cached MidPrice failed: %v", err)
	}
	if len(rest.getCalls) != fetches {
		t.Errorf("cached midpoint must not refetch: %d calls", len(rest.getCalls)-fetches)
	}

	// Past the TTL the book is refetched.
	now = now.Add(5 * time.Second)
	if _, err := f.MidPrice(context.Background(), "Xbt-Aud"); err != nil {
		t.Fatalf("refreshed MidPrice failed: %v", err)
	}
	if len(rest.getCalls) != fetches+1 {
		t.Errorf("expired midpoint must refetch, got %d calls", len(rest.getCalls)-fetches)
	}
}

func TestOrderMinimumVolumes(t *testing.T) {
	rest := newFakeRestClient()
	rest.responses[transport.MinimumVolumesPath] = `{"Xbt":0.0001,"Eth":0.001}`
	f := newTestFetcher(t, rest, nil)

	volumes, err := f.OrderMinimumVolumes(context.Background())
	if err != nil {
		t.Fatalf("OrderMinimumVolumes failed: %v", err)
	}
	if !volumes["Xbt"].Equal(decimal.RequireFromString("0.0001")) {
		t.Errorf("unexpected Xbt minimum %s", volumes["Xbt"])
	}
}

func TestFetchAccountsSigned(t *testing.T) {
	rest := newFakeRestClient()
	rest.responses[transport.AccountsPath] = `[
		{"AccountGuid":"g1","AccountStatus":"Active","AvailableBalance":"1.5","CurrencyCode":"Xbt","TotalBalance":"2"}
	]`

	authenticator, err := auth.New("TEST_API_KEY", "TEST_API_SECRET", func() float64 { return 1000 })
	if err != nil {
		t.Fatalf("auth.New failed: %v", err)
	}
	f := newTestFetcher(t, rest, authenticator)

	accounts, err := f.FetchAccounts(context.Background())
	if err != nil {
		t.Fatalf("FetchAccounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].CurrencyCode != "Xbt" {
		t.Errorf("unexpected accounts: %+v", accounts)
	}

	var body map[string]string
	if err := json.Unmarshal(rest.lastBody, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body["apiKey"] != "TEST_API_KEY" || body["signature"] == "" {
		t.Errorf("request body not signed: %s", rest.lastBody)
	}
}

func TestFetchAccountsWithoutCredentials(t *testing.T) {
	f := newTestFetcher(t, newFakeRestClient(), nil)
	if _, err := f.FetchAccounts(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}
}

package symbols

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"reserveflow/internal/transport"
)

// fakeCodesClient serves canned currency code lists and counts fetches.
type fakeCodesClient struct {
	primary   []string
	secondary []string
	fail      bool
	calls     int32
}

func (f *fakeCodesClient) GetJSON(_ context.Context, limitID, _ string, out interface{}) error {
	atomic.AddInt32(&f.calls, 1)
	if f.fail {
		return errors.New("boom")
	}
	codes := out.(*[]string)
	switch limitID {
	case transport.PrimaryCurrencyCodesPath:
		*codes = f.primary
	case transport.SecondaryCurrencyCodesPath:
		*codes = f.secondary
	default:
		return errors.New("unexpected limit id " + limitID)
	}
	return nil
}

func newTestStore(client *fakeCodesClient) *Store {
	return NewStore(client, transport.DefaultRestURL)
}

func TestBijectionRoundTrip(t *testing.T) {
	client := &fakeCodesClient{primary: []string{"Xbt", "Eth"}, secondary: []string{"Aud", "Usd", "Nzd"}}
	store := newTestStore(client)

	if err := store.EnsureInitialized(context.Background(), "com"); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	pairs, err := store.TradingPairs(context.Background(), "com")
	if err != nil {
		t.Fatalf("TradingPairs failed: %v", err)
	}
	if len(pairs) != 6 {
		t.Fatalf("expected 6 pairs from 2x3 product, got %d", len(pairs))
	}

	for _, pair := range pairs {
		sym, err := store.ToExchange(pair, "com")
		if err != nil {
			t.Fatalf("ToExchange(%s) failed: %v", pair, err)
		}
		back, err := store.ToPair(sym, "com")
		if err != nil {
			t.Fatalf("ToPair(%v) failed: %v", sym, err)
		}
		if back != pair {
			t.Errorf("round trip %s -> %v -> %s", pair, sym, back)
		}
	}
}

func TestLookupUnknownKeyFails(t *testing.T) {
	client := &fakeCodesClient{primary: []string{"Xbt"}, secondary: []string{"Aud"}}
	store := newTestStore(client)
	if err := store.EnsureInitialized(context.Background(), "com"); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	if _, err := store.ToExchange("Doge-Aud", "com"); err == nil {
		t.Error("expected error for unknown pair")
	}
	if _, err := store.ToPair(ExchangeSymbol{Primary: "Doge", Secondary: "Aud"}, "com"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

func TestLookupBeforeInitFails(t *testing.T) {
	store := newTestStore(&fakeCodesClient{})
	if _, err := store.ToExchange("Xbt-Aud", "com"); err == nil {
		t.Error("expected error before initialization")
	}
	if store.IsReady("com") {
		t.Error("store must not be ready before initialization")
	}
}

func TestFailedFetchLeavesStoreUnpopulated(t *testing.T) {
	client := &fakeCodesClient{fail: true}
	store := newTestStore(client)

	if err := store.EnsureInitialized(context.Background(), "com"); err == nil {
		t.Fatal("expected initialization error")
	}
	if store.IsReady("com") {
		t.Error("failed init must not publish a partial map")
	}

	// Next caller retries and succeeds
	client.fail = false
	client.primary = []string{"Xbt"}
	client.secondary = []string{"Aud"}
	if err := store.EnsureInitialized(context.Background(), "com"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !store.IsReady("com") {
		t.Error("store should be ready after successful retry")
	}
}

func TestConcurrentInitFetchesOnce(t *testing.T) {
	client := &fakeCodesClient{primary: []string{"Xbt"}, secondary: []string{"Aud"}}
	store := newTestStore(client)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.EnsureInitialized(context.Background(), "com"); err != nil {
				t.Errorf("EnsureInitialized failed: %v", err)
			}
		}()
	}
	wg.Wait()

	// Two endpoints, one fetch each
	if got := atomic.LoadInt32(&client.calls); got != 2 {
		t.Errorf("expected exactly 2 REST calls, got %d", got)
	}
}

func TestDomainsAreIndependent(t *testing.T) {
	client := &fakeCodesClient{primary: []string{"Xbt"}, secondary: []string{"Aud"}}
	store := newTestStore(client)
	if err := store.EnsureInitialized(context.Background(), "com"); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}

	if store.IsReady("us") {
		t.Error("initializing one domain must not populate another")
	}
	if _, err := store.ToExchange("Xbt-Aud", "us"); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not-initialized error for us domain, got %v", err)
	}
}

func TestSplitPair(t *testing.T) {
	cases := []struct {
		pair      string
		primary   string
		secondary string
		wantErr   bool
	}{
		{"Xbt-Aud", "Xbt", "Aud", false},
		{"Eth-Usd", "Eth", "Usd", false},
		{"XbtAud", "", "", true},
		{"-Aud", "", "", true},
	}
	for _, c := range cases {
		primary, secondary, err := SplitPair(c.pair)
		if c.wantErr {
			if err == nil {
				t.Errorf("SplitPair(%q): expected error", c.pair)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitPair(%q): %v", c.pair, err)
			continue
		}
		if primary != c.primary || secondary != c.secondary {
			t.Errorf("SplitPair(%q) = %s,%s want %s,%s", c.pair, primary, secondary, c.primary, c.secondary)
		}
	}
}

package symbols

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"reserveflow/internal/transport"
	"reserveflow/logger"
)

// ExchangeSymbol is a market in exchange notation: a primary (base) and
// secondary (quote) currency code pair.
type ExchangeSymbol struct {
	Primary   string
	Secondary string
}

func (s ExchangeSymbol) String() string {
	return s.Primary + "-" + s.Secondary
}

// codesClient is the slice of the REST client the store needs; satisfied
// by *transport.RestClient.
type codesClient interface {
	GetJSON(ctx context.Context, limitID, url string, out interface{}) error
}

// Store maintains the bidirectional mapping between client trading pairs
// and exchange symbols, one map per deployment domain. Maps are populated
// once via a combinatorial fetch of the valid primary and secondary
// currency code lists and are immutable afterwards; lookups on a populated
// domain take no lock beyond a read lock on the domain registry.
type Store struct {
	rest         codesClient
	restTemplate string
	log          *logger.Log

	initMu sync.Mutex // serialises initialization per store

	mu       sync.RWMutex
	toSymbol map[string]map[string]ExchangeSymbol // domain -> pair -> symbol
	toPair   map[string]map[ExchangeSymbol]string // domain -> symbol -> pair
}

func NewStore(rest codesClient, restTemplate string) *Store {
	return &Store{
		rest:         rest,
		restTemplate: restTemplate,
		log:          logger.GetLogger(),
		toSymbol:     make(map[string]map[string]ExchangeSymbol),
		toPair:       make(map[string]map[ExchangeSymbol]string),
	}
}

// IsReady reports whether the domain's map has been populated.
func (s *Store) IsReady(domain string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.toSymbol[domain]) > 0
}

// EnsureInitialized populates the domain's map if it has not been
// populated yet. Concurrent callers converge on a single fetch; on fetch
// failure no partial map is published and the next caller retries.
func (s *Store) EnsureInitialized(ctx context.Context, domain string) error {
	if s.IsReady(domain) {
		return nil
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	// Re-check: another caller may have populated the map while this one
	// waited for the gate.
	if s.IsReady(domain) {
		return nil
	}

	primaryURL := transport.PublicURL(s.restTemplate, domain, transport.PrimaryCurrencyCodesPath, nil)
	var primary []string
	if err := s.rest.GetJSON(ctx, transport.PrimaryCurrencyCodesPath, primaryURL, &primary); err != nil {
		return fmt.Errorf("fetch primary currency codes: %w", err)
	}

	secondaryURL := transport.PublicURL(s.restTemplate, domain, transport.SecondaryCurrencyCodesPath, nil)
	var secondary []string
	if err := s.rest.GetJSON(ctx, transport.SecondaryCurrencyCodesPath, secondaryURL, &secondary); err != nil {
		return fmt.Errorf("fetch secondary currency codes: %w", err)
	}

	if len(primary) == 0 || len(secondary) == 0 {
		return fmt.Errorf("exchange returned empty currency code list (primary=%d secondary=%d)", len(primary), len(secondary))
	}

	toSymbol := make(map[string]ExchangeSymbol, len(primary)*len(secondary))
	toPair := make(map[ExchangeSymbol]string, len(primary)*len(secondary))
	for _, p := range primary {
		for _, sec := range secondary {
			sym := ExchangeSymbol{Primary: p, Secondary: sec}
			pair := sym.String()
			toSymbol[pair] = sym
			toPair[sym] = pair
		}
	}

	// Single atomic swap: the domain becomes visible fully populated or
	// not at all.
	s.mu.Lock()
	s.toSymbol[domain] = toSymbol
	s.toPair[domain] = toPair
	s.mu.Unlock()

	s.log.WithComponent("symbol_store").WithFields(logger.Fields{
		"domain":  domain,
		"markets": len(toSymbol),
	}).Info("symbol map initialized")

	return nil
}

// ToExchange translates a trading pair in client notation to exchange
// notation. The domain must already be initialized.
func (s *Store) ToExchange(pair, domain string) (ExchangeSymbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.toSymbol[domain]
	if !ok || len(m) == 0 {
		return ExchangeSymbol{}, fmt.Errorf("symbol map for domain %q not initialized", domain)
	}
	sym, ok := m[pair]
	if !ok {
		return ExchangeSymbol{}, fmt.Errorf("unknown trading pair %q in domain %q", pair, domain)
	}
	return sym, nil
}

// ToPair translates an exchange symbol to client notation. The domain must
// already be initialized.
func (s *Store) ToPair(sym ExchangeSymbol, domain string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.toPair[domain]
	if !ok || len(m) == 0 {
		return "", fmt.Errorf("symbol map for domain %q not initialized", domain)
	}
	pair, ok := m[sym]
	if !ok {
		return "", fmt.Errorf("unknown exchange symbol %q in domain %q", sym, domain)
	}
	return pair, nil
}

// TradingPairs returns all known trading pairs for the domain, sorted,
// initializing the map first if needed.
func (s *Store) TradingPairs(ctx context.Context, domain string) ([]string, error) {
	if err := s.EnsureInitialized(ctx, domain); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := make([]string, 0, len(s.toSymbol[domain]))
	for pair := range s.toSymbol[domain] {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs, nil
}

// SplitPair breaks a client trading pair into its primary and secondary
// currency codes without consulting the map. Used where only the primary
// code is needed, e.g. websocket channel names.
func SplitPair(pair string) (primary, secondary string, err error) {
	parts := strings.SplitN(pair, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed trading pair %q", pair)
	}
	return parts[0], parts[1], nil
}

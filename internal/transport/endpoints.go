package transport

import (
	"fmt"
	"net/url"
)

// Endpoint hosts are templates taking the deployment domain ("com" or
// "us").
const (
	DefaultRestURL = "https://api.independentreserve.%s"
	DefaultWssURL  = "wss://websockets.independentreserve.%s"
)

// The API is not versioned; public and private calls live under fixed
// path prefixes.
const (
	PublicPrefix  = "/Public"
	PrivatePrefix = "/Private"
)

// Public API endpoints.
const (
	PrimaryCurrencyCodesPath   = "/GetValidPrimaryCurrencyCodes"
	SecondaryCurrencyCodesPath = "/GetValidSecondaryCurrencyCodes"
	OrderBookPath              = "/GetOrderBook"
	RecentTradesPath           = "/GetRecentTrades"
	MinimumVolumesPath         = "/GetOrderMinimumVolumes"
	PingPath                   = "/GetValidMarketOrderTypes"
)

// Private API endpoints.
const (
	AccountsPath = "/GetAccounts"
	MyTradesPath = "/GetTrades"
)

// PublicURL builds a full public REST URL for the given domain, endpoint
// path and optional query parameters.
func PublicURL(restTemplate, domain, path string, query url.Values) string {
	u := fmt.Sprintf(restTemplate, domain) + PublicPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// PrivateURL builds a full private REST URL for the given domain and
// endpoint path.
func PrivateURL(restTemplate, domain, path string) string {
	return fmt.Sprintf(restTemplate, domain) + PrivatePrefix + path
}

// WsURL builds the websocket endpoint for the given domain.
func WsURL(wssTemplate, domain string) string {
	return fmt.Sprintf(wssTemplate, domain)
}

// MarketQuery builds the primary/secondary currency code query used by the
// order book and recent trades endpoints.
func MarketQuery(primary, secondary string) url.Values {
	return url.Values{
		"primaryCurrencyCode":   []string{primary},
		"secondaryCurrencyCode": []string{secondary},
	}
}

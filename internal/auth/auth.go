package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reserveflow/internal/transport"
)

// Param is one request parameter. Parameters are carried as an ordered
// list because both the signature message and the signed body must
// reproduce the caller's key order byte-exactly.
type Param struct {
	Key   string
	Value string
}

// Authenticator signs private REST requests. The exchange requires an
// HMAC-SHA256 signature over a comma-joined message of the full URL, the
// API key, a millisecond nonce and every request parameter. The websocket
// channel is not authenticated.
type Authenticator struct {
	apiKey string
	secret []byte
	now    transport.Clock
}

// New builds an Authenticator. Missing credentials are a configuration
// error surfaced here, once, rather than at call time.
func New(apiKey, secret string, now transport.Clock) (*Authenticator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is not set")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("api secret is not set")
	}
	if now == nil {
		now = transport.SystemClock
	}
	return &Authenticator{apiKey: apiKey, secret: []byte(secret), now: now}, nil
}

// SignRestRequest produces the signed JSON body and headers for a private
// call to url with the given parameters. The body's key order is fixed:
// apiKey, nonce, signature, then the original parameters.
func (a *Authenticator) SignRestRequest(url string, params []Param) (body []byte, headers map[string]string) {
	nonce := strconv.FormatInt(int64(a.now()*1000), 10)

	parts := make([]string, 0, 3+len(params))
	parts = append(parts, url, "apiKey="+a.apiKey, "nonce="+nonce)
	for _, p := range params {
		parts = append(parts, p.Key+"="+p.Value)
	}
	signature := a.sign(strings.Join(parts, ","))

	ordered := make([]Param, 0, 3+len(params))
	ordered = append(ordered,
		Param{Key: "apiKey", Value: a.apiKey},
		Param{Key: "nonce", Value: nonce},
		Param{Key: "signature", Value: signature},
	)
	ordered = append(ordered, params...)

	return encodeOrdered(ordered), map[string]string{"Content-Type": "application/json"}
}

// SignWsRequest is a pass-through: this exchange does not authenticate
// over the websocket channel.
func (a *Authenticator) SignWsRequest(payload []byte) []byte {
	return payload
}

// MergeHeaders combines signing headers with caller-supplied ones; signing
// headers win on conflict.
func MergeHeaders(caller, signing map[string]string) map[string]string {
	merged := make(map[string]string, len(caller)+len(signing))
	for k, v := range caller {
		merged[k] = v
	}
	for k, v := range signing {
		merged[k] = v
	}
	return merged
}

func (a *Authenticator) sign(message string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(message))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// encodeOrdered serialises params as a JSON object preserving key order,
// which encoding/json maps cannot do.
func encodeOrdered(params []Param) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range params {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(p.Key)
		value, _ := json.Marshal(p.Value)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

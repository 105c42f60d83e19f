package auth

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"
)

const (
	testKey    = "TEST_API_KEY"
	testSecret = "TEST_SECRET"
	testURL    = "https://api.independentreserve.com/Private/GetAccounts"
)

// fixedClock returns 1000 seconds, so the nonce is always 1000000.
func fixedClock() float64 { return 1000 }

func TestSignatureDeterministic(t *testing.T) {
	a, err := New(testKey, testSecret, fixedClock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, _ := a.SignRestRequest(testURL, nil)
	second, _ := a.SignRestRequest(testURL, nil)
	if string(first) != string(second) {
		t.Errorf("signing is not byte-identical across calls:\n%s\n%s", first, second)
	}

	// HMAC-SHA256("TEST_SECRET",
	//   "https://api.independentreserve.com/Private/GetAccounts,apiKey=TEST_API_KEY,nonce=1000000")
	want := `{"apiKey":"TEST_API_KEY","nonce":"1000000","signature":"693AE388865D551DBCEAEBBD6A09DE7EFEE070BE48E9408DB856B1B7A072173D"}`
	if string(first) != want {
		t.Errorf("signed body mismatch:\ngot  %s\nwant %s", first, want)
	}
}

func TestSignatureFormat(t *testing.T) {
	a, err := New(testKey, testSecret, fixedClock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	body, _ := a.SignRestRequest(testURL, nil)
	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("signed body is not valid JSON: %v", err)
	}

	sig := decoded["signature"]
	if !regexp.MustCompile(`^[0-9A-F]{64}$`).MatchString(sig) {
		t.Errorf("signature %q is not 64 upper-case hex chars", sig)
	}
	if decoded["nonce"] != "1000000" {
		t.Errorf("unexpected nonce %q", decoded["nonce"])
	}
}

func TestSignatureCoversParams(t *testing.T) {
	a, err := New(testKey, testSecret, fixedClock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	url := "https://api.independentreserve.com/Private/GetTrades"
	body, _ := a.SignRestRequest(url, []Param{
		{Key: "pageIndex", Value: "1"},
		{Key: "pageSize", Value: "25"},
	})

	want := `{"apiKey":"TEST_API_KEY","nonce":"1000000","signature":"44CF03D803A1DF02B98A082D7A6054B41A939AAC427361D0AF075C2712E69F68","pageIndex":"1","pageSize":"25"}`
	if string(body) != want {
		t.Errorf("signed body mismatch:\ngot  %s\nwant %s", body, want)
	}
}

func TestBodyKeyOrder(t *testing.T) {
	a, err := New(testKey, testSecret, fixedClock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	body, _ := a.SignRestRequest(testURL, []Param{{Key: "zzz", Value: "1"}, {Key: "aaa", Value: "2"}})
	var keys []string
	dec := json.NewDecoder(bytes.NewReader(body))
	if _, err := dec.Token(); err != nil { // {
		t.Fatalf("decode: %v", err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		keys = append(keys, tok.(string))
		if _, err := dec.Token(); err != nil { // value
			t.Fatalf("decode: %v", err)
		}
	}

	want := []string{"apiKey", "nonce", "signature", "zzz", "aaa"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected keys %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %s, want %s (order must be preserved)", i, keys[i], want[i])
		}
	}
}

func TestContentTypeHeader(t *testing.T) {
	a, err := New(testKey, testSecret, fixedClock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, headers := a.SignRestRequest(testURL, nil)
	if headers["Content-Type"] != "application/json" {
		t.Errorf("missing Content-Type header: %v", headers)
	}

	merged := MergeHeaders(map[string]string{"X-Custom": "1", "Content-Type": "text/plain"}, headers)
	if merged["X-Custom"] != "1" {
		t.Error("caller headers must be preserved")
	}
	if merged["Content-Type"] != "application/json" {
		t.Error("signing headers must win on conflict")
	}
}

func TestSignWsRequestPassThrough(t *testing.T) {
	a, err := New(testKey, testSecret, fixedClock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	payload := []byte(`{"Event":"Subscribe"}`)
	if got := a.SignWsRequest(payload); string(got) != string(payload) {
		t.Errorf("ws signing must be a pass-through, got %s", got)
	}
}

func TestMissingCredentials(t *testing.T) {
	if _, err := New("", testSecret, fixedClock); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := New(testKey, "", fixedClock); err == nil {
		t.Error("expected error for missing secret")
	}
	if _, err := New(" ", " ", fixedClock); err == nil {
		t.Error("expected error for blank credentials")
	}
}

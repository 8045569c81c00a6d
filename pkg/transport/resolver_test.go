package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testRelay starts an httptest server acting as a relay and counts requests.
func testRelay(t *testing.T, name string, handler http.HandlerFunc) (Adapter, *atomic.Int32) {
	t.Helper()

	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	adapter, err := ParseTemplate(name, server.URL+"/relay?url={url}")
	if err != nil {
		t.Fatalf("ParseTemplate: %v", err)
	}
	return adapter, &count
}

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func statusHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.BreakerFailures = 0
	return cfg
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, testConfig()); !errors.Is(err, ErrNoRelays) {
		t.Errorf("Expected ErrNoRelays, got %v", err)
	}

	if _, err := New([]Adapter{{Name: "broken"}}, testConfig()); err == nil {
		t.Error("Expected error for adapter without rewrite func")
	}

	if _, err := New([]Adapter{Direct(), Direct()}, testConfig()); err == nil {
		t.Error("Expected error for duplicate relay names")
	}

	r, err := New(DefaultRelays(), testConfig())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []string{"corsproxy", "codetabs", "cors-anywhere", "allorigins"}
	got := r.Relays()
	if len(got) != len(want) {
		t.Fatalf("Relays() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Relays()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseTemplate(t *testing.T) {
	target := "https://api.steampowered.com/x?appid=10&count=1"

	escaped, err := ParseTemplate("escaped", "https://relay.example/?q={url}")
	if err != nil {
		t.Fatalf("ParseTemplate: %v", err)
	}
	if got := escaped.Rewrite(target); got != "https://relay.example/?q="+url.QueryEscape(target) {
		t.Errorf("Rewrite() = %q", got)
	}

	raw, err := ParseTemplate("raw", "https://relay.example/{raw}")
	if err != nil {
		t.Fatalf("ParseTemplate: %v", err)
	}
	if got := raw.Rewrite(target); got != "https://relay.example/"+target {
		t.Errorf("Rewrite() = %q", got)
	}

	for _, tmpl := range []string{"https://relay.example/", "https://x/{url}/{raw}", "https://x/{url}{url}"} {
		if _, err := ParseTemplate("bad", tmpl); err == nil {
			t.Errorf("Expected error for template %q", tmpl)
		}
	}
	if _, err := ParseTemplate("", "https://x/{url}"); err == nil {
		t.Error("Expected error for empty name")
	}
}

func TestResolve_FirstRelayWins(t *testing.T) {
	var gotTarget string
	first, firstCount := testRelay(t, "first", func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.URL.Query().Get("url")
		okHandler(`{"response":{"result":1}}`)(w, r)
	})
	second, secondCount := testRelay(t, "second", okHandler(`{"other":true}`))

	resolver, err := New([]Adapter{first, second}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload, err := resolver.Resolve(context.Background(), "https://upstream.example/api?appid=1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(payload) != `{"response":{"result":1}}` {
		t.Errorf("payload = %s", payload)
	}
	if gotTarget != "https://upstream.example/api?appid=1" {
		t.Errorf("relay saw target %q", gotTarget)
	}
	if firstCount.Load() != 1 || secondCount.Load() != 0 {
		t.Errorf("requests = (%d, %d), want (1, 0)", firstCount.Load(), secondCount.Load())
	}
}

func TestResolve_RateLimitedMovesOnWithoutRetry(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			limited, limitedCount := testRelay(t, "limited", statusHandler(status))
			good, goodCount := testRelay(t, "good", okHandler(`{"ok":1}`))

			cfg := testConfig()
			cfg.Retry = fastRetry(3)
			resolver, err := New([]Adapter{limited, good}, cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			if _, err := resolver.Resolve(context.Background(), "https://upstream.example/"); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if limitedCount.Load() != 1 {
				t.Errorf("limited relay hit %d times, want 1", limitedCount.Load())
			}
			if goodCount.Load() != 1 {
				t.Errorf("good relay hit %d times, want 1", goodCount.Load())
			}
		})
	}
}

func TestResolve_MalformedPayloadMovesOn(t *testing.T) {
	bodies := []string{`[1,2,3]`, `null`, `<html>blocked</html>`, `"string"`, ``}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			bad, badCount := testRelay(t, "bad", okHandler(body))
			good, _ := testRelay(t, "good", okHandler(`{"ok":1}`))

			cfg := testConfig()
			cfg.Retry = fastRetry(3)
			resolver, err := New([]Adapter{bad, good}, cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			payload, err := resolver.Resolve(context.Background(), "https://upstream.example/")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if string(payload) != `{"ok":1}` {
				t.Errorf("payload = %s", payload)
			}
			if badCount.Load() != 1 {
				t.Errorf("malformed relay hit %d times, want 1", badCount.Load())
			}
		})
	}
}

func TestResolve_ExhaustedCarriesLastReason(t *testing.T) {
	broken, _ := testRelay(t, "broken", statusHandler(http.StatusBadGateway))
	limited, _ := testRelay(t, "limited", statusHandler(http.StatusTooManyRequests))

	resolver, err := New([]Adapter{broken, limited}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = resolver.Resolve(context.Background(), "https://upstream.example/")
	if err == nil {
		t.Fatal("Expected error")
	}

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if terr.Kind != KindExhausted {
		t.Errorf("Kind = %q, want %q", terr.Kind, KindExhausted)
	}
	if terr.Last == nil || terr.Last.Relay != "limited" || terr.Last.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Last = %+v, want limited relay 429", terr.Last)
	}
	if Reason(err) != KindRateLimited {
		t.Errorf("Reason() = %q, want %q", Reason(err), KindRateLimited)
	}
}

func TestResolve_TimeoutMovesOn(t *testing.T) {
	slow, _ := testRelay(t, "slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	fast, _ := testRelay(t, "fast", okHandler(`{"ok":1}`))

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	resolver, err := New([]Adapter{slow, fast}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	if _, err := resolver.Resolve(context.Background(), "https://upstream.example/"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Resolve took %v, timeout not applied", elapsed)
	}
}

func TestResolve_RetryVariantRetriesNetworkFailures(t *testing.T) {
	var calls atomic.Int32
	flaky, flakyCount := testRelay(t, "flaky", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		okHandler(`{"ok":1}`)(w, r)
	})
	backup, backupCount := testRelay(t, "backup", okHandler(`{"backup":1}`))

	cfg := testConfig()
	cfg.Retry = fastRetry(3)
	resolver, err := New([]Adapter{flaky, backup}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload, err := resolver.Resolve(context.Background(), "https://upstream.example/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(payload) != `{"ok":1}` {
		t.Errorf("payload = %s, want flaky relay's payload", payload)
	}
	if flakyCount.Load() != 3 || backupCount.Load() != 0 {
		t.Errorf("requests = (%d, %d), want (3, 0)", flakyCount.Load(), backupCount.Load())
	}
}

func TestResolve_MinimalPolicyDoesNotRetry(t *testing.T) {
	flaky, flakyCount := testRelay(t, "flaky", statusHandler(http.StatusServiceUnavailable))
	backup, _ := testRelay(t, "backup", okHandler(`{"backup":1}`))

	resolver, err := New([]Adapter{flaky, backup}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), "https://upstream.example/"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if flakyCount.Load() != 1 {
		t.Errorf("flaky relay hit %d times, want 1", flakyCount.Load())
	}
}

func TestResolve_BreakerSkipsFailingRelay(t *testing.T) {
	broken, brokenCount := testRelay(t, "broken", statusHandler(http.StatusInternalServerError))
	good, _ := testRelay(t, "good", okHandler(`{"ok":1}`))

	cfg := testConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	resolver, err := New([]Adapter{broken, good}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := resolver.Resolve(context.Background(), "https://upstream.example/"); err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}

	if brokenCount.Load() != 2 {
		t.Errorf("broken relay hit %d times, want 2 before the circuit opened", brokenCount.Load())
	}
}

// statsHandler answers like the player-count endpoint: apps without stats get
// a 404 carrying a JSON body, everything else a normal payload.
func statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if strings.Contains(r.URL.Query().Get("url"), "appid=999") {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"response":{"result":42}}`))
		return
	}
	w.Write([]byte(`{"response":{"result":1,"player_count":300}}`))
}

func TestResolve_UpstreamNotFoundKeepsBreakerClosed(t *testing.T) {
	first, firstCount := testRelay(t, "r1", statsHandler)
	second, secondCount := testRelay(t, "r2", statsHandler)

	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.Retry = PersistentRetryConfig()
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = time.Millisecond
	resolver, err := New([]Adapter{first, second}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	missing := "https://api.example/players?appid=999"
	for i := 0; i < 2*int(cfg.BreakerFailures); i++ {
		_, err := resolver.Resolve(context.Background(), missing)
		var terr *Error
		if !errors.As(err, &terr) || terr.Kind != KindExhausted || terr.Last == nil {
			t.Fatalf("Resolve #%d: error = %v, want exhausted", i, err)
		}
		if !terr.Last.Upstream || terr.Last.StatusCode != http.StatusNotFound {
			t.Fatalf("Resolve #%d: last = %+v, want upstream 404", i, terr.Last)
		}
		if errors.Is(err, ErrRelayOpen) {
			t.Fatalf("Resolve #%d: breaker opened on an upstream answer", i)
		}
	}

	payload, err := resolver.Resolve(context.Background(), "https://api.example/players?appid=570")
	if err != nil {
		t.Fatalf("Resolve(570): %v", err)
	}
	if !strings.Contains(string(payload), "player_count") {
		t.Errorf("payload = %s", payload)
	}

	// One request per relay per lookup: upstream answers are not retried.
	lookups := int32(2 * cfg.BreakerFailures)
	if got := firstCount.Load(); got != lookups+1 {
		t.Errorf("r1 hit %d times, want %d", got, lookups+1)
	}
	if got := secondCount.Load(); got != lookups {
		t.Errorf("r2 hit %d times, want %d", got, lookups)
	}
}

func TestResolve_RelayErrorStillTripsBreaker(t *testing.T) {
	gateway, gatewayCount := testRelay(t, "gateway", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such route"))
	})
	good, _ := testRelay(t, "good", okHandler(`{"ok":1}`))

	cfg := testConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Minute
	resolver, err := New([]Adapter{gateway, good}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := resolver.Resolve(context.Background(), "https://upstream.example/"); err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}
	if gatewayCount.Load() != 2 {
		t.Errorf("gateway relay hit %d times, want 2 before the circuit opened", gatewayCount.Load())
	}
}

type fakeCooldowns struct {
	mu       sync.Mutex
	cooling  map[string]bool
	recorded []string
}

func (f *fakeCooldowns) CoolingDown(ctx context.Context, relay string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooling[relay], nil
}

func (f *fakeCooldowns) RecordRateLimited(ctx context.Context, relay string, headers http.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, relay)
	f.cooling[relay] = true
	return nil
}

func TestResolve_CooldownSkipsRelay(t *testing.T) {
	limited, limitedCount := testRelay(t, "limited", statusHandler(http.StatusTooManyRequests))
	good, goodCount := testRelay(t, "good", okHandler(`{"ok":1}`))

	resolver, err := New([]Adapter{limited, good}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cooldowns := &fakeCooldowns{cooling: map[string]bool{}}
	resolver.SetCooldownTracker(cooldowns)

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "https://upstream.example/"); err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}

	if limitedCount.Load() != 1 {
		t.Errorf("limited relay hit %d times, want 1", limitedCount.Load())
	}
	if goodCount.Load() != 3 {
		t.Errorf("good relay hit %d times, want 3", goodCount.Load())
	}
	if len(cooldowns.recorded) != 1 || cooldowns.recorded[0] != "limited" {
		t.Errorf("recorded = %v, want [limited]", cooldowns.recorded)
	}
}

func TestResolve_AllRelaysCoolingDown(t *testing.T) {
	only, onlyCount := testRelay(t, "only", okHandler(`{"ok":1}`))

	resolver, err := New([]Adapter{only}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resolver.SetCooldownTracker(&fakeCooldowns{cooling: map[string]bool{"only": true}})

	_, err = resolver.Resolve(context.Background(), "https://upstream.example/")
	if Reason(err) != KindRateLimited {
		t.Errorf("Reason() = %q, want %q", Reason(err), KindRateLimited)
	}
	if !errors.Is(err, ErrCoolingDown) {
		t.Errorf("Expected ErrCoolingDown in chain, got %v", err)
	}
	if onlyCount.Load() != 0 {
		t.Errorf("cooling relay hit %d times, want 0", onlyCount.Load())
	}
}

func TestDecodeInto(t *testing.T) {
	relay, _ := testRelay(t, "relay", okHandler(`{"response":{"player_count":42,"result":1}}`))
	resolver, err := New([]Adapter{relay}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var out struct {
		Response struct {
			PlayerCount int `json:"player_count"`
		} `json:"response"`
	}
	if err := DecodeInto(context.Background(), resolver, "https://upstream.example/", &out); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if out.Response.PlayerCount != 42 {
		t.Errorf("PlayerCount = %d, want 42", out.Response.PlayerCount)
	}
}

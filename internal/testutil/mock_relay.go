// Package testutil provides testing utilities for steam-monitor.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Sternrassler/steam-monitor/pkg/transport"
)

// Upstream base URLs understood by MockRelay. Pass them to steamapi.Config.
const (
	MockStoreBaseURL = "http://store.mock"
	MockAPIBaseURL   = "http://api.mock"
)

// MockRelayResponse defines a scripted relay answer.
type MockRelayResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockApp is an app known to the simulated upstream.
type MockApp struct {
	ID       string
	Name     string
	ImageURL string
	NewsDate int64
	Players  int
}

// MockRelay is an httptest server that acts as any number of relays in
// front of a simulated Steam upstream. Relay "<name>" is served at
// /relay/<name>?url=<target>.
type MockRelay struct {
	server *httptest.Server
	mu     sync.RWMutex

	apps map[string]MockApp

	// relayFailures holds queued answers per relay; relayDown fails every request.
	relayFailures map[string][]MockRelayResponse
	relayDown     map[string]MockRelayResponse

	// appFailures makes the next n upstream requests for an app fail with 429.
	appFailures map[string]int

	// Tracking
	RequestCount  int
	RelayRequests map[string]int
	AppRequests   map[string]int
}

// NewMockRelay creates a new mock relay server.
func NewMockRelay() *MockRelay {
	mock := &MockRelay{
		apps:          make(map[string]MockApp),
		relayFailures: make(map[string][]MockRelayResponse),
		relayDown:     make(map[string]MockRelayResponse),
		appFailures:   make(map[string]int),
		RelayRequests: make(map[string]int),
		AppRequests:   make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockRelay) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRelay) Close() {
	m.server.Close()
}

// Adapter returns a transport adapter for the named relay.
func (m *MockRelay) Adapter(name string) transport.Adapter {
	a, err := transport.ParseTemplate(name, m.server.URL+"/relay/"+name+"?url={url}")
	if err != nil {
		panic(err)
	}
	return a
}

// Adapters returns adapters for the named relays, in order.
func (m *MockRelay) Adapters(names ...string) []transport.Adapter {
	adapters := make([]transport.Adapter, len(names))
	for i, name := range names {
		adapters[i] = m.Adapter(name)
	}
	return adapters
}

// SetApp registers or replaces an app in the simulated upstream.
func (m *MockRelay) SetApp(app MockApp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[app.ID] = app
}

// SetNewsDate changes an app's newest news timestamp.
func (m *MockRelay) SetNewsDate(id string, date int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app := m.apps[id]
	app.NewsDate = date
	m.apps[id] = app
}

// FailApp makes the next n upstream requests for id fail with 429 on every relay.
func (m *MockRelay) FailApp(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appFailures[id] = n
}

// QueueRelayResponse makes the next request through relay answer resp.
func (m *MockRelay) QueueRelayResponse(relay string, resp MockRelayResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayFailures[relay] = append(m.relayFailures[relay], resp)
}

// SetRelayDown makes every request through relay answer resp.
func (m *MockRelay) SetRelayDown(relay string, resp MockRelayResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayDown[relay] = resp
}

// SetRelayUp clears SetRelayDown for relay.
func (m *MockRelay) SetRelayUp(relay string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.relayDown, relay)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockRelay) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRelayRequests returns the number of requests made through relay.
func (m *MockRelay) GetRelayRequests(relay string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RelayRequests[relay]
}

// GetAppRequests returns the number of upstream requests made for app id.
func (m *MockRelay) GetAppRequests(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.AppRequests[id]
}

func (m *MockRelay) handle(w http.ResponseWriter, r *http.Request) {
	relay := strings.TrimPrefix(r.URL.Path, "/relay/")
	if relay == r.URL.Path || relay == "" {
		http.NotFound(w, r)
		return
	}

	target, err := url.Parse(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, "bad target", http.StatusBadRequest)
		return
	}
	id := target.Query().Get("appid")
	if id == "" {
		id = target.Query().Get("appids")
	}

	m.mu.Lock()
	m.RequestCount++
	m.RelayRequests[relay]++
	m.AppRequests[id]++

	var scripted *MockRelayResponse
	if resp, down := m.relayDown[relay]; down {
		scripted = &resp
	} else if queue := m.relayFailures[relay]; len(queue) > 0 {
		scripted = &queue[0]
		m.relayFailures[relay] = queue[1:]
	} else if m.appFailures[id] > 0 {
		m.appFailures[id]--
		scripted = &MockRelayResponse{StatusCode: http.StatusTooManyRequests}
	}
	app, known := m.apps[id]
	m.mu.Unlock()

	if scripted != nil {
		writeResponse(w, *scripted)
		return
	}

	body, status := upstreamBody(target, id, app, known)
	writeResponse(w, MockRelayResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	})
}

// upstreamBody renders the simulated Steam answer for target.
func upstreamBody(target *url.URL, id string, app MockApp, known bool) (string, int) {
	var payload any

	switch {
	case strings.HasSuffix(target.Path, "/api/appdetails"):
		if !known {
			payload = map[string]any{id: map[string]any{"success": false}}
			break
		}
		payload = map[string]any{id: map[string]any{
			"success": true,
			"data": map[string]any{
				"steam_appid":  id,
				"name":         app.Name,
				"header_image": app.ImageURL,
			},
		}}

	case strings.Contains(target.Path, "/ISteamNews/GetNewsForApp/"):
		items := []map[string]any{}
		if known && app.NewsDate > 0 {
			items = append(items, map[string]any{"gid": fmt.Sprintf("%s-%d", id, app.NewsDate), "date": app.NewsDate})
		}
		payload = map[string]any{"appnews": map[string]any{"appid": id, "newsitems": items}}

	case strings.Contains(target.Path, "/ISteamUserStats/GetNumberOfCurrentPlayers/"):
		if !known {
			payload = map[string]any{"response": map[string]any{"result": 42}}
			break
		}
		payload = map[string]any{"response": map[string]any{"player_count": app.Players, "result": 1}}

	default:
		return `{"error":"unknown endpoint"}`, http.StatusNotFound
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return `{"error":"marshal"}`, http.StatusInternalServerError
	}
	return string(data), http.StatusOK
}

func writeResponse(w http.ResponseWriter, resp MockRelayResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockRelayResponse {
	resp := MockRelayResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter > 0 {
		resp.Headers["Retry-After"] = fmt.Sprint(retryAfter)
	}
	return resp
}

// NewForbiddenResponse creates a 403 response as sent by relays that want a manual unlock.
func NewForbiddenResponse() MockRelayResponse {
	return MockRelayResponse{
		StatusCode: http.StatusForbidden,
		Body:       "Missing required request header. Must specify one of: origin,x-requested-with",
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockRelayResponse {
	return MockRelayResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewHTMLResponse creates a 200 response whose body is not JSON.
func NewHTMLResponse() MockRelayResponse {
	return MockRelayResponse{
		StatusCode: http.StatusOK,
		Body:       "<html><body>Please verify you are human</body></html>",
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}

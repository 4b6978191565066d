package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/zwennaf/dhaniverse/internal/config"
	"github.com/zwennaf/dhaniverse/internal/market"
	"github.com/zwennaf/dhaniverse/internal/runtime"
)

func newServerForTest(t *testing.T, mutate func(*cfgpkg.Config)) (*httptest.Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Provider.Synthetic = true
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Config: cfg})
	if err != nil {
		t.Fatalf("runtime.Open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	srv := httptest.NewServer(New(rt, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, rt
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return res
}

func TestHealth(t *testing.T) {
	srv, _ := newServerForTest(t, nil)
	res, err := http.Get(srv.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestPublishAndStats(t *testing.T) {
	srv, _ := newServerForTest(t, nil)

	res := postJSON(t, srv.URL+"/v1/rooms/publish", map[string]any{
		"roomId": "lobby", "kind": "offer", "from": "p1",
		"payload": map[string]string{"to": "p2", "sdp": "x"},
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("publish status = %d", res.StatusCode)
	}
	var pub struct {
		ID uint64 `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&pub); err != nil {
		t.Fatal(err)
	}
	if pub.ID == 0 {
		t.Fatal("publish returned zero id")
	}

	stats, err := http.Get(srv.URL + "/v1/rooms/stats?room=lobby")
	if err != nil {
		t.Fatal(err)
	}
	defer stats.Body.Close()
	var st struct {
		BufferedEvents int `json:"bufferedEvents"`
	}
	if err := json.NewDecoder(stats.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.BufferedEvents != 1 {
		t.Fatalf("bufferedEvents = %d, want 1", st.BufferedEvents)
	}
}

func TestPublishValidation(t *testing.T) {
	srv, _ := newServerForTest(t, nil)

	res := postJSON(t, srv.URL+"/v1/rooms/publish", map[string]any{"roomId": "lobby"})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing kind status = %d, want 400", res.StatusCode)
	}

	res = postJSON(t, srv.URL+"/v1/rooms/publish", map[string]any{"roomId": "a/b", "kind": "offer"})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad room id status = %d, want 400", res.StatusCode)
	}
}

func TestGlobalStatsEndpoint(t *testing.T) {
	srv, rt := newServerForTest(t, nil)
	if _, err := rt.Registry().Broadcast("lobby", "offer", "p", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Registry().Broadcast("stock_AAPL", "price-update", "", nil); err != nil {
		t.Fatal(err)
	}

	res, err := http.Get(srv.URL + "/v1/rooms/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var st struct {
		Rooms          []string `json:"rooms"`
		BufferedEvents int      `json:"bufferedEvents"`
		LastEventID    uint64   `json:"lastEventId"`
	}
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if len(st.Rooms) != 2 || st.BufferedEvents != 2 || st.LastEventID == 0 {
		t.Fatalf("global stats = %+v", st)
	}
}

func TestStatsUnknownRoom(t *testing.T) {
	srv, _ := newServerForTest(t, nil)
	res, err := http.Get(srv.URL + "/v1/rooms/stats?room=ghost")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

// sseFrame is one parsed SSE event.
type sseFrame struct {
	ID    string
	Event string
	Data  string
}

// readFrames reads id-bearing SSE frames until n arrive or ctx ends.
// Cursor-less snapshot frames are skipped. Safe to call from helper
// goroutines; failures come back as errors.
func readFrames(ctx context.Context, url string, n int) ([]sseFrame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subscribe status = %d", res.StatusCode)
	}

	var frames []sseFrame
	var cur sseFrame
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			cur.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.Event != "" && cur.ID != "" {
				frames = append(frames, cur)
				if len(frames) >= n {
					return frames, nil
				}
			}
			cur = sseFrame{}
		}
	}
	return frames, sc.Err()
}

func TestSubscribeReplaysBufferThenLive(t *testing.T) {
	srv, rt := newServerForTest(t, nil)

	// three events before anyone subscribes
	for i := 0; i < 3; i++ {
		res := postJSON(t, srv.URL+"/v1/rooms/publish", map[string]any{
			"roomId": "lobby", "kind": "offer", "from": "p1",
			"payload": map[string]int{"n": i},
		})
		res.Body.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		frames []sseFrame
		err    error
	}
	framesCh := make(chan result, 1)
	go func() {
		// peer-joined + 3 replayed offers + 1 live offer
		fr, err := readFrames(ctx, srv.URL+"/v1/rooms/subscribe?room=lobby", 5)
		framesCh <- result{fr, err}
	}()

	// wait for the subscriber's own join event to land, then publish live
	deadline := time.Now().Add(5 * time.Second)
	for {
		evs, _ := rt.Registry().EventsSince("lobby", 0, 0)
		if len(evs) >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("join event never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
	res := postJSON(t, srv.URL+"/v1/rooms/publish", map[string]any{
		"roomId": "lobby", "kind": "offer", "from": "p1", "payload": map[string]int{"n": 99},
	})
	res.Body.Close()

	var frames []sseFrame
	select {
	case got := <-framesCh:
		if got.err != nil {
			t.Fatalf("readFrames: %v", got.err)
		}
		frames = got.frames
	case <-time.After(8 * time.Second):
		t.Fatal("timed out reading frames")
	}
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	offers := 0
	for _, f := range frames {
		if f.Event == "offer" {
			offers++
		}
	}
	if offers != 4 {
		t.Fatalf("offers = %d, want 4 (3 replayed + 1 live)", offers)
	}
	// ids strictly ascending
	var prev uint64
	for _, f := range frames {
		var id uint64
		if _, err := fmt.Sscanf(f.ID, "%d", &id); err != nil {
			t.Fatalf("bad id %q", f.ID)
		}
		if id <= prev {
			t.Fatalf("ids not ascending: %v", frames)
		}
		prev = id
	}
}

func TestSubscribeCursorSkipsReplayed(t *testing.T) {
	srv, rt := newServerForTest(t, nil)

	var lastID uint64
	for i := 0; i < 3; i++ {
		ev, err := rt.Registry().Broadcast("lobby", "offer", "p", nil)
		if err != nil {
			t.Fatal(err)
		}
		lastID = ev.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := fmt.Sprintf("%s/v1/rooms/subscribe?room=lobby&lastEventId=%d", srv.URL, lastID)
	frames, err := readFrames(ctx, url, 1)
	if err != nil {
		t.Fatalf("readFrames: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	// the only event past the cursor is the subscriber's own join
	if frames[0].Event != "peer-joined" {
		t.Fatalf("frame = %+v, want peer-joined", frames[0])
	}
}

func TestSubscribeMalformedCursorReplaysAll(t *testing.T) {
	srv, rt := newServerForTest(t, nil)
	if _, err := rt.Registry().Broadcast("lobby", "offer", "p", nil); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frames, err := readFrames(ctx, srv.URL+"/v1/rooms/subscribe?room=lobby&lastEventId=not-a-number", 2)
	if err != nil {
		t.Fatalf("readFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want full replay plus join", len(frames))
	}
	if frames[0].Event != "offer" {
		t.Fatalf("first frame = %+v, want replayed offer", frames[0])
	}
}

func TestSubscribeFilter(t *testing.T) {
	srv, rt := newServerForTest(t, nil)
	if _, err := rt.Registry().Broadcast("lobby", "offer", "p", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Registry().Broadcast("lobby", "answer", "p", nil); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := srv.URL + `/v1/rooms/subscribe?room=lobby&filter=` + `kind%20%3D%3D%20%22answer%22`
	frames, err := readFrames(ctx, url, 1)
	if err != nil {
		t.Fatalf("readFrames: %v", err)
	}
	if len(frames) != 1 || frames[0].Event != "answer" {
		t.Fatalf("frames = %+v, want only the answer", frames)
	}
}

func TestSubscribeSendsRoomStateSnapshot(t *testing.T) {
	srv, rt := newServerForTest(t, nil)
	if _, err := rt.Registry().AddConnection("lobby", "c1", "alice"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/rooms/subscribe?room=lobby", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	// the room-state frame carries no id so it never shifts the cursor
	sawID := false
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "id: ") {
			sawID = true
		}
		if line == "event: room-state" {
			if sawID {
				t.Fatal("room-state frame carried an id")
			}
			if !sc.Scan() || !strings.HasPrefix(sc.Text(), "data: ") {
				t.Fatalf("room-state frame missing data line")
			}
			var state struct {
				Peers []string `json:"peers"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(sc.Text(), "data: ")), &state); err != nil {
				t.Fatalf("room-state payload: %v", err)
			}
			if len(state.Peers) == 0 {
				t.Fatalf("room-state peers = %v, want alice present", state.Peers)
			}
			return
		}
	}
	t.Fatal("room-state frame never arrived")
}

func TestSubscribeBadFilter(t *testing.T) {
	srv, _ := newServerForTest(t, nil)
	res, err := http.Get(srv.URL + "/v1/rooms/subscribe?room=lobby&filter=kind%20%3D%3D")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestSubscribeAdmissionLimit(t *testing.T) {
	srv, _ := newServerForTest(t, func(c *cfgpkg.Config) {
		c.Rooms.MaxConnectionsPerRoom = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = readFrames(ctx, srv.URL+"/v1/rooms/subscribe?room=lobby", 100) }()

	// wait until the first subscriber holds the slot
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := http.Get(srv.URL + "/v1/rooms/stats?room=lobby")
		if err == nil {
			var st struct {
				Connections int `json:"connections"`
			}
			_ = json.NewDecoder(res.Body).Decode(&st)
			res.Body.Close()
			if st.Connections == 1 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("first subscriber never admitted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	res, err := http.Get(srv.URL + "/v1/rooms/subscribe?room=lobby")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", res.StatusCode)
	}
}

func TestSubscribeRequiresValidToken(t *testing.T) {
	srv, _ := newServerForTest(t, func(c *cfgpkg.Config) {
		c.AuthTokens = map[string]string{"secret": "alice"}
	})

	res, err := http.Get(srv.URL + "/v1/rooms/subscribe?room=lobby&token=wrong")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/rooms/subscribe?room=lobby", nil)
	req.Header.Set("Authorization", "Bearer secret")
	good, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer good.Body.Close()
	if good.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for valid token", good.StatusCode)
	}
}

func TestStockEndpoint(t *testing.T) {
	srv, rt := newServerForTest(t, nil)

	res, err := http.Get(srv.URL + "/v1/stocks?symbol=aapl")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var st market.Stock
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Symbol != "AAPL" || st.CurrentPrice <= 0 {
		t.Fatalf("stock = %+v", st)
	}

	// fetch also broadcast into the symbol room
	evs, err := rt.Registry().EventsSince("stock_AAPL", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) == 0 {
		t.Fatal("no events in stock room after fetch")
	}
}

func TestStockEndpointUnknownSymbol(t *testing.T) {
	srv, _ := newServerForTest(t, nil)
	res, err := http.Get(srv.URL + "/v1/stocks?symbol=NOPE")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestSummaryEndpointStartsScheduler(t *testing.T) {
	srv, rt := newServerForTest(t, nil)

	res, err := http.Get(srv.URL + "/v1/market/summary")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var sum market.Summary
	if err := json.NewDecoder(res.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if len(sum.Stocks) == 0 {
		t.Fatal("summary has no stocks")
	}
	if !rt.Scheduler().Running() {
		t.Fatal("scheduler should run after summary access")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, rt := newServerForTest(t, nil)
	rt.History().Record(market.PriceSnapshot{TimestampMs: 1, Prices: map[string]float64{"AAPL": 2}})

	res, err := http.Get(srv.URL + "/v1/market/history")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var out struct {
		Capacity  int                    `json:"capacity"`
		Snapshots []market.PriceSnapshot `json:"snapshots"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Capacity != 144 || len(out.Snapshots) != 1 {
		t.Fatalf("history = %+v", out)
	}
}

func TestLeaveEndpoint(t *testing.T) {
	srv, rt := newServerForTest(t, nil)
	if _, err := rt.Registry().AddConnection("lobby", "c1", "alice"); err != nil {
		t.Fatal(err)
	}

	res := postJSON(t, srv.URL+"/v1/rooms/leave", map[string]string{
		"roomId": "lobby", "connectionId": "c1", "peerId": "alice",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", res.StatusCode)
	}

	evs, err := rt.Registry().EventsSince("lobby", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ev := range evs {
		if ev.Kind == "peer-left" {
			found = true
		}
	}
	if !found {
		t.Fatal("leave did not broadcast peer-left")
	}

	// leaving twice is harmless
	res = postJSON(t, srv.URL+"/v1/rooms/leave", map[string]string{
		"roomId": "lobby", "connectionId": "c1",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("repeat leave status = %d, want 204", res.StatusCode)
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stereocast/internal/stereo"
	"stereocast/internal/viewer"
)

func testServer(t *testing.T) (*Server, *stereo.Store, *httptest.Server) {
	t.Helper()
	store := stereo.NewStore(stereo.SideBySideParallel, 50)
	loop := viewer.NewLoop(viewer.Config{Addr: "unused"}, store, nil)
	s := NewServer(store, loop, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, store, srv
}

func putParams(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url+"/api/params", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestGetParams(t *testing.T) {
	_, _, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/params")
	if err != nil {
		t.Fatalf("GET /api/params: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}

	var p stereo.Params
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Mode != stereo.SideBySideParallel || p.Offset != 50 {
		t.Errorf("params = %+v; want parallel/50", p)
	}
}

func TestUpdateMode(t *testing.T) {
	_, store, srv := testServer(t)

	resp := putParams(t, srv.URL, `{"mode":"anaglyph_red_cyan"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	if got := store.Snapshot().Mode; got != stereo.AnaglyphRedCyan {
		t.Errorf("mode = %v; want anaglyph_red_cyan", got)
	}
}

func TestUpdateInvalidModeLeavesStoreUnchanged(t *testing.T) {
	_, store, srv := testServer(t)

	resp := putParams(t, srv.URL, `{"mode":"invalid"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", resp.StatusCode)
	}

	var errBody map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] != "invalid_parameter" {
		t.Errorf("error = %q; want invalid_parameter", errBody["error"])
	}

	if got := store.Snapshot(); got.Mode != stereo.SideBySideParallel || got.Offset != 50 {
		t.Errorf("store changed after rejected update: %+v", got)
	}
}

func TestUpdateOffsetClamps(t *testing.T) {
	_, store, srv := testServer(t)

	cases := []struct {
		body string
		want int
	}{
		{`{"offset":5}`, 10},
		{`{"offset":500}`, 100},
		{`{"offset":50}`, 50},
	}
	for _, tc := range cases {
		resp := putParams(t, srv.URL, tc.body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status for %s = %d; want 200", tc.body, resp.StatusCode)
		}
		resp.Body.Close()
		if got := store.Snapshot().Offset; got != tc.want {
			t.Errorf("offset after %s = %d; want %d", tc.body, got, tc.want)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, _, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	var status struct {
		State    string `json:"state"`
		QueueLen int    `json:"queue_len"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != viewer.StateIdle.String() {
		t.Errorf("state = %q; want idle before Run", status.State)
	}
}

func TestControlPageServed(t *testing.T) {
	_, _, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("content type = %q; want html", ct)
	}
}

func TestParamsStreamPushesUpdates(t *testing.T) {
	_, _, srv := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/params/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Initial snapshot event.
	var initial struct {
		State  string         `json:"state"`
		Params *stereo.Params `json:"params"`
	}
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial event: %v", err)
	}
	if initial.State != "idle" || initial.Params == nil {
		t.Fatalf("initial event = %+v; want idle state with params", initial)
	}

	// A parameter update arrives on the feed.
	resp := putParams(t, srv.URL, `{"offset":77}`)
	resp.Body.Close()

	var update struct {
		Params *stereo.Params `json:"params"`
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update event: %v", err)
	}
	if update.Params == nil || update.Params.Offset != 77 {
		t.Errorf("update event = %+v; want offset 77", update)
	}
}

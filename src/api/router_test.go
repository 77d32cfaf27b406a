package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deepgram/wsh/src/handler"
	"github.com/deepgram/wsh/src/session"
)

func testServer(t *testing.T) (*gin.Engine, *session.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := session.NewRegistry(0)
	t.Cleanup(registry.Drain)
	state := &handler.State{
		Ctx:      context.Background(),
		Registry: registry,
		Hostname: "test-host",
		ServerID: "test-server-id",
	}
	router, _ := SetupRouter(state, Options{DisableRequestLogging: true})
	return router, registry
}

func request(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	router, _ := testServer(t)
	w := request(t, router, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServerInfo(t *testing.T) {
	router, _ := testServer(t)
	w := request(t, router, http.MethodGet, "/server/info", "")
	var body map[string]string
	decode(t, w, &body)
	if body["hostname"] != "test-host" || body["server_id"] != "test-server-id" {
		t.Errorf("body = %v", body)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, registry := testServer(t)

	w := request(t, router, http.MethodPost, "/sessions", `{"name":"work","command":"sleep 60"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body = %s", w.Code, w.Body.String())
	}
	var created map[string]any
	decode(t, w, &created)
	if created["name"] != "work" || created["server"] != "test-host" {
		t.Errorf("created = %v", created)
	}

	// Duplicate name conflicts.
	w = request(t, router, http.MethodPost, "/sessions", `{"name":"work","command":"sleep 60"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d", w.Code)
	}
	var errBody map[string]map[string]string
	decode(t, w, &errBody)
	if errBody["error"]["code"] != "session_name_conflict" {
		t.Errorf("code = %q", errBody["error"]["code"])
	}

	w = request(t, router, http.MethodGet, "/sessions", "")
	var list []map[string]any
	decode(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("list = %v", list)
	}

	w = request(t, router, http.MethodDelete, "/sessions/work", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d", w.Code)
	}
	if registry.Len() != 0 {
		t.Error("registry not empty after delete")
	}

	w = request(t, router, http.MethodGet, "/sessions/work", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d", w.Code)
	}
	decode(t, w, &errBody)
	if errBody["error"]["code"] != "session_not_found" {
		t.Errorf("code = %q", errBody["error"]["code"])
	}
}

func TestUnknownServerParamIs404(t *testing.T) {
	router, _ := testServer(t)
	w := request(t, router, http.MethodGet, "/sessions?server=nowhere", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var errBody map[string]map[string]string
	decode(t, w, &errBody)
	if errBody["error"]["code"] != "server_not_found" {
		t.Errorf("code = %q", errBody["error"]["code"])
	}
}

// Normal-mode overlays hide while in alt mode;
// alt overlays are destroyed on exit.
func TestOverlayAltScreenFilter(t *testing.T) {
	router, _ := testServer(t)
	request(t, router, http.MethodPost, "/sessions", `{"name":"s","command":"sleep 60"}`)

	w := request(t, router, http.MethodPost, "/sessions/s/overlay",
		`{"x":0,"y":0,"width":10,"height":1,"spans":[{"text":"X"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create X: %d %s", w.Code, w.Body.String())
	}
	var x map[string]any
	decode(t, w, &x)
	xid := x["id"].(string)

	if w := request(t, router, http.MethodPost, "/sessions/s/screen_mode/enter_alt", ""); w.Code != http.StatusNoContent {
		t.Fatalf("enter_alt: %d", w.Code)
	}
	// Entering again conflicts.
	if w := request(t, router, http.MethodPost, "/sessions/s/screen_mode/enter_alt", ""); w.Code != http.StatusConflict {
		t.Errorf("double enter_alt: %d", w.Code)
	}

	var list []map[string]any
	w = request(t, router, http.MethodGet, "/sessions/s/overlay", "")
	decode(t, w, &list)
	if len(list) != 0 {
		t.Errorf("alt-mode list should be empty, got %v", list)
	}

	w = request(t, router, http.MethodPost, "/sessions/s/overlay",
		`{"x":0,"y":0,"width":10,"height":1,"spans":[{"text":"Y"}]}`)
	var y map[string]any
	decode(t, w, &y)
	yid := y["id"].(string)

	w = request(t, router, http.MethodGet, "/sessions/s/overlay", "")
	decode(t, w, &list)
	if len(list) != 1 || list[0]["id"] != yid {
		t.Errorf("alt list = %v", list)
	}

	if w := request(t, router, http.MethodPost, "/sessions/s/screen_mode/exit_alt", ""); w.Code != http.StatusNoContent {
		t.Fatalf("exit_alt: %d", w.Code)
	}
	if w := request(t, router, http.MethodGet, "/sessions/s/overlay/"+yid, ""); w.Code != http.StatusNotFound {
		t.Errorf("Y after exit: %d, want 404", w.Code)
	}
	w = request(t, router, http.MethodGet, "/sessions/s/overlay", "")
	decode(t, w, &list)
	if len(list) != 1 || list[0]["id"] != xid {
		t.Errorf("normal list after exit = %v", list)
	}
}

func TestInputCaptureOwnership(t *testing.T) {
	router, _ := testServer(t)
	request(t, router, http.MethodPost, "/sessions", `{"name":"cap","command":"sleep 60"}`)

	w := request(t, router, http.MethodPost, "/sessions/cap/input/capture", `{"owner":"A"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("capture A: %d", w.Code)
	}
	w = request(t, router, http.MethodPost, "/sessions/cap/input/capture", `{"owner":"B"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("capture B: %d", w.Code)
	}
	var errBody map[string]map[string]string
	decode(t, w, &errBody)
	if errBody["error"]["code"] != "invalid_input_mode" {
		t.Errorf("code = %q", errBody["error"]["code"])
	}
	if !strings.Contains(errBody["error"]["message"], "A") {
		t.Errorf("message %q should name the owner", errBody["error"]["message"])
	}

	w = request(t, router, http.MethodPost, "/sessions/cap/input/release", `{"owner":"B"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("release B: %d", w.Code)
	}
	w = request(t, router, http.MethodPost, "/sessions/cap/input/release", `{"owner":"A"}`)
	if w.Code != http.StatusOK {
		t.Errorf("release A: %d", w.Code)
	}

	var mode map[string]any
	w = request(t, router, http.MethodGet, "/sessions/cap/input/mode", "")
	decode(t, w, &mode)
	if mode["mode"] != "passthrough" {
		t.Errorf("mode = %v", mode)
	}
}

// Echo into the session, then quiesce with
// a 200 ms window.
func TestQuiesceAfterEcho(t *testing.T) {
	router, _ := testServer(t)
	w := request(t, router, http.MethodPost, "/sessions", `{"name":"s","command":"sh"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}

	w = request(t, router, http.MethodPost, "/sessions/s/input", "echo hello\n")
	if w.Code != http.StatusNoContent {
		t.Fatalf("input: %d", w.Code)
	}

	start := time.Now()
	w = request(t, router, http.MethodGet, "/sessions/s/quiesce?timeout_ms=200&max_wait_ms=5000&format=plain", "")
	elapsed := time.Since(start)
	if w.Code != http.StatusOK {
		t.Fatalf("quiesce: %d %s", w.Code, w.Body.String())
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("quiesce returned after %v, want >= 200ms", elapsed)
	}
	var body struct {
		Screen struct {
			Lines []string `json:"lines"`
			Cols  int      `json:"cols"`
			Rows  int      `json:"rows"`
		} `json:"screen"`
		ScrollbackLines int `json:"scrollback_lines"`
	}
	decode(t, w, &body)
	if body.Screen.Cols != 80 || body.Screen.Rows != 24 {
		t.Errorf("size = %dx%d", body.Screen.Cols, body.Screen.Rows)
	}
	found := false
	for _, line := range body.Screen.Lines {
		if strings.Contains(line, "hello") {
			found = true
		}
	}
	if !found {
		t.Errorf("no line contains 'hello': %v", body.Screen.Lines)
	}
}

func TestQuiesceDeadlineIs408(t *testing.T) {
	router, registry := testServer(t)
	request(t, router, http.MethodPost, "/sessions", `{"name":"busy","command":"sleep 60"}`)

	// Keep touching the tracker so quiescence never happens.
	s, _ := registry.Get("busy")
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
				s.Activity().Touch()
			}
		}
	}()

	w := request(t, router, http.MethodGet, "/sessions/busy/quiesce?timeout_ms=200&max_wait_ms=300", "")
	if w.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want 408", w.Code)
	}
	var errBody map[string]map[string]string
	decode(t, w, &errBody)
	if errBody["error"]["code"] != "quiesce_timeout" {
		t.Errorf("code = %q", errBody["error"]["code"])
	}
}

// Panel allocation under pressure on a 5x80 terminal.
func TestPanelLayoutUnderPressure(t *testing.T) {
	router, registry := testServer(t)
	request(t, router, http.MethodPost, "/sessions", `{"name":"p","command":"sleep 60","rows":5,"cols":80}`)
	if _, ok := registry.Get("p"); !ok {
		t.Fatal("session missing")
	}

	mk := func(pos string, height, z int) string {
		w := request(t, router, http.MethodPost, "/sessions/p/panel",
			fmt.Sprintf(`{"position":%q,"height":%d,"z":%d}`, pos, height, z))
		if w.Code != http.StatusCreated {
			t.Fatalf("panel create: %d %s", w.Code, w.Body.String())
		}
		var p map[string]any
		decode(t, w, &p)
		return p["id"].(string)
	}
	high := mk("top", 2, 10)
	mid := mk("bottom", 2, 5)
	low := mk("top", 2, 1)

	w := request(t, router, http.MethodGet, "/sessions/p/panel_layout", "")
	var layout struct {
		TopPanels          []map[string]any `json:"top_panels"`
		BottomPanels       []map[string]any `json:"bottom_panels"`
		HiddenPanels       []string         `json:"hidden_panels"`
		ScrollRegionTop    int              `json:"scroll_region_top"`
		ScrollRegionBottom int              `json:"scroll_region_bottom"`
		PtyRows            int              `json:"pty_rows"`
	}
	decode(t, w, &layout)

	if len(layout.TopPanels) != 1 || layout.TopPanels[0]["id"] != high {
		t.Errorf("top = %v", layout.TopPanels)
	}
	if len(layout.BottomPanels) != 1 || layout.BottomPanels[0]["id"] != mid {
		t.Errorf("bottom = %v", layout.BottomPanels)
	}
	if len(layout.HiddenPanels) != 1 || layout.HiddenPanels[0] != low {
		t.Errorf("hidden = %v", layout.HiddenPanels)
	}
	if layout.PtyRows != 1 || layout.ScrollRegionTop != 3 || layout.ScrollRegionBottom != 3 {
		t.Errorf("layout = %+v", layout)
	}
}

func TestTicketExchangeRequiresBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := session.NewRegistry(0)
	t.Cleanup(registry.Drain)
	state := &handler.State{Ctx: context.Background(), Registry: registry, Hostname: "h", ServerID: "id"}
	router, _ := SetupRouter(state, Options{Token: "secret", DisableRequestLogging: true})

	// Without Bearer: 401.
	w := request(t, router, http.MethodPost, "/auth/ws-ticket", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}

	// With Bearer: a 32-char ticket.
	req := httptest.NewRequest(http.MethodPost, "/auth/ws-ticket", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if len(body["ticket"]) != 32 {
		t.Errorf("ticket = %q", body["ticket"])
	}
}

func TestServersListLocalFirst(t *testing.T) {
	router, _ := testServer(t)
	w := request(t, router, http.MethodGet, "/servers", "")
	var servers []map[string]any
	decode(t, w, &servers)
	if len(servers) == 0 || servers[0]["address"] != "local" {
		t.Errorf("servers = %v", servers)
	}
	if servers[0]["hostname"] != "test-host" {
		t.Errorf("local entry = %v", servers[0])
	}
}

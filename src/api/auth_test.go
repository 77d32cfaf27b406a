package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func authApp(token string, tickets *TicketStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireAuth(token, tickets))
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func doRequest(t *testing.T, app *gin.Engine, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func TestBearerValidTokenPasses(t *testing.T) {
	app := authApp("secret", nil)
	w := doRequest(t, app, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer secret")
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestBearerWrongTokenIs403(t *testing.T) {
	app := authApp("secret", nil)
	w := doRequest(t, app, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer wrong")
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestMissingAuthIs401(t *testing.T) {
	app := authApp("secret", nil)
	w := doRequest(t, app, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestNoTokenConfiguredPassesAll(t *testing.T) {
	app := authApp("", nil)
	w := doRequest(t, app, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTicketOnWSUpgradePasses(t *testing.T) {
	tickets := NewTicketStore()
	nonce, err := tickets.Create()
	if err != nil {
		t.Fatal(err)
	}
	app := authApp("secret", tickets)
	w := doRequest(t, app, func(r *http.Request) {
		r.URL.RawQuery = "ticket=" + nonce
		r.Header.Set("Upgrade", "websocket")
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTicketOnNonWSRequestIs401(t *testing.T) {
	tickets := NewTicketStore()
	nonce, err := tickets.Create()
	if err != nil {
		t.Fatal(err)
	}
	app := authApp("secret", tickets)
	w := doRequest(t, app, func(r *http.Request) {
		r.URL.RawQuery = "ticket=" + nonce
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for ticket without upgrade", w.Code)
	}
	// The failed attempt must not have consumed the ticket path for WS use?
	// Tickets are single-use only when actually validated; a non-WS request
	// never reaches validation.
	w = doRequest(t, app, func(r *http.Request) {
		r.URL.RawQuery = "ticket=" + nonce
		r.Header.Set("Upgrade", "websocket")
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, ticket should still be usable on a real upgrade", w.Code)
	}
}

func TestTicketSingleUse(t *testing.T) {
	tickets := NewTicketStore()
	nonce, err := tickets.Create()
	if err != nil {
		t.Fatal(err)
	}
	app := authApp("secret", tickets)
	upgrade := func(r *http.Request) {
		r.URL.RawQuery = "ticket=" + nonce
		r.Header.Set("Upgrade", "websocket")
	}
	if w := doRequest(t, app, upgrade); w.Code != http.StatusOK {
		t.Fatalf("first use: status = %d", w.Code)
	}
	if w := doRequest(t, app, upgrade); w.Code != http.StatusUnauthorized {
		t.Errorf("second use: status = %d, want 401", w.Code)
	}
}

func wsOriginApp(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CheckWSOrigin(origins))
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestOriginRejectedOnWSUpgrade(t *testing.T) {
	app := wsOriginApp([]string{"http://127.0.0.1:8080"})
	w := doRequest(t, app, func(r *http.Request) {
		r.Header.Set("Upgrade", "websocket")
		r.Header.Set("Origin", "http://evil.com")
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestOriginAllowedExactMatch(t *testing.T) {
	app := wsOriginApp([]string{"http://127.0.0.1:8080"})
	w := doRequest(t, app, func(r *http.Request) {
		r.Header.Set("Upgrade", "websocket")
		r.Header.Set("Origin", "http://127.0.0.1:8080")
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestNoOriginHeaderPasses(t *testing.T) {
	app := wsOriginApp([]string{"http://127.0.0.1:8080"})
	w := doRequest(t, app, func(r *http.Request) {
		r.Header.Set("Upgrade", "websocket")
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestNonWSRequestSkipsOriginCheck(t *testing.T) {
	app := wsOriginApp([]string{"http://127.0.0.1:8080"})
	w := doRequest(t, app, func(r *http.Request) {
		r.Header.Set("Origin", "http://evil.com")
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRedactSecrets(t *testing.T) {
	got := redactSecrets("/sessions?token=abc&format=plain")
	if got != "/sessions?token=REDACTED&format=plain" {
		t.Errorf("got %q", got)
	}
	if got := redactSecrets("/sessions"); got != "/sessions" {
		t.Errorf("got %q", got)
	}
	got = redactSecrets("/ws?ticket=abcd1234")
	if got != "/ws?ticket=REDACTED" {
		t.Errorf("got %q", got)
	}
}

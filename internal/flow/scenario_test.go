package flow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/formflow/form-app/internal/session"
	"github.com/formflow/form-app/internal/web"
)

// newRedisFlow wires the controller to a Redis-backed store and the real
// HTML renderer.
func newRedisFlow(t *testing.T, opts Options) (http.Handler, *session.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := session.NewStoreWithClient(client, time.Hour)

	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	logger, _ := test.NewNullLogger()
	opts.Logger = logger

	r := chi.NewRouter()
	NewController(store, renderer, opts).Register(r)
	return r, store
}

func serve(h http.Handler, method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScenario_NameAgeResult(t *testing.T) {
	const id = "1700000000000"
	h, store := newRedisFlow(t, Options{NewID: func() string { return id }, SessionTTL: time.Hour})

	rec := serve(h, http.MethodPost, "/form", url.Values{"name": {"Alice"}})
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/age/"+id {
		t.Fatalf("name submit: code=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}

	rec = serve(h, http.MethodGet, "/age/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("age view: code=%d", rec.Code)
	}
	page := rec.Body.String()
	if !strings.Contains(page, `action="/age/`+id+`"`) || !strings.Contains(page, `value="25-34"`) {
		t.Errorf("age page missing form action or options:\n%s", page)
	}

	rec = serve(h, http.MethodPost, "/age/"+id, url.Values{"age": {"25-34"}})
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/result/"+id {
		t.Fatalf("age submit: code=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}

	fields, err := store.GetFields(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFields() error: %v", err)
	}
	if fields[session.FieldName] != "Alice" || fields[session.FieldAge] != "25-34" {
		t.Errorf("stored fields = %v", fields)
	}

	rec = serve(h, http.MethodGet, "/result/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("result: code=%d", rec.Code)
	}
	page = rec.Body.String()
	if !strings.Contains(page, "Alice") || !strings.Contains(page, "25-34") {
		t.Errorf("result page missing answers:\n%s", page)
	}
}

func TestScenario_InvalidNameRendersInlineError(t *testing.T) {
	h, _ := newRedisFlow(t, Options{})

	rec := serve(h, http.MethodPost, "/form", url.Values{"name": {"   "}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	page := rec.Body.String()
	for _, want := range []string{"There is a problem", `href="#name"`, MsgEnterName, "Error: What is your name?"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestScenario_NameIsEscaped(t *testing.T) {
	h, _ := newRedisFlow(t, Options{NewID: func() string { return "x" }})

	serve(h, http.MethodPost, "/form", url.Values{"name": {"<script>alert(1)</script>"}})
	rec := serve(h, http.MethodGet, "/result/x", nil)

	if strings.Contains(rec.Body.String(), "<script>alert(1)</script>") {
		t.Error("name rendered without escaping")
	}
}

func TestScenario_ClearAllOnEntryEmptiesStore(t *testing.T) {
	h, store := newRedisFlow(t, Options{ClearAllOnEntry: true})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		serve(h, http.MethodPost, "/form", url.Values{"name": {"user"}})
	}
	if all, _ := store.ListAll(ctx); len(all) != 5 {
		t.Fatalf("expected 5 sessions before reset, got %d", len(all))
	}

	rec := serve(h, http.MethodGet, "/form", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty store after visiting /form, got %d sessions", len(all))
	}
}

func TestScenario_ScopedResetUsesCookie(t *testing.T) {
	h, store := newRedisFlow(t, Options{SessionTTL: time.Hour})
	ctx := context.Background()

	first := serve(h, http.MethodPost, "/form", url.Values{"name": {"Alice"}})
	serve(h, http.MethodPost, "/form", url.Values{"name": {"Bob"}})

	var cookie *http.Cookie
	for _, c := range first.Result().Cookies() {
		if c.Name == CookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie from first submission")
	}

	serve(h, http.MethodGet, "/form", nil, cookie)

	all, _ := store.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 remaining session, got %d", len(all))
	}
	if _, ok := all[cookie.Value]; ok {
		t.Error("caller's session survived the reset")
	}
	for _, fields := range all {
		if fields[session.FieldName] != "Bob" {
			t.Errorf("unexpected surviving session %v", fields)
		}
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/age/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/result/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("/age/{id}", http.MethodGet, "200"))
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/age/"+id, nil))
	}
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("/age/{id}", http.MethodGet, "200"))
	if after-before != 3 {
		t.Errorf("expected 3 requests counted under the route pattern, got %v", after-before)
	}

	before = testutil.ToFloat64(RequestsTotal.WithLabelValues("/result/{id}", http.MethodGet, "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/result/x", nil))
	after = testutil.ToFloat64(RequestsTotal.WithLabelValues("/result/{id}", http.MethodGet, "404"))
	if after-before != 1 {
		t.Errorf("expected 404 counted once, got %v", after-before)
	}
}

func TestHandler_ExposesFormMetrics(t *testing.T) {
	SubmissionsTotal.WithLabelValues("name", "valid").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "form_submissions_total") {
		t.Error("expected form_submissions_total in exposition")
	}
}

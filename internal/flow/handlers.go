package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/formflow/form-app/internal/metrics"
	"github.com/formflow/form-app/internal/session"
)

const maxFormBytes = 64 << 10

// Index renders the landing page.
func (c *Controller) Index(w http.ResponseWriter, r *http.Request) {
	c.renderView(w, r, http.StatusOK, ViewIndex, nil)
}

// ShowName resets the caller's flow and renders the name step. By default
// only the session named by the cookie is removed; with ClearAllOnEntry
// every stored session is.
func (c *Controller) ShowName(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := c.storeCtx(r)
	defer cancel()

	cookie, _ := r.Cookie(CookieName)

	switch {
	case c.clearAllOnEntry:
		n, err := c.store.ClearAll(ctx)
		if err != nil {
			c.storeFailure(w, r, "clear_all", err)
			return
		}
		metrics.SessionsCleared.Add(float64(n))
		c.logFor(r).WithField("count", n).Debug("cleared all sessions")

	case cookie != nil && cookie.Value != "":
		if err := c.store.Delete(ctx, cookie.Value); err != nil {
			c.storeFailure(w, r, "delete", err)
			return
		}
		metrics.SessionsCleared.Inc()
		c.logFor(r).WithField("session", cookie.Value).Debug("cleared session")
	}

	if cookie != nil {
		http.SetCookie(w, c.expiredCookie())
	}
	c.renderView(w, r, http.StatusOK, ViewName, NameView{})
}

// SubmitName validates the name and starts a new session.
func (c *Controller) SubmitName(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	raw := r.PostFormValue("name")

	name, verr := validateName(raw)
	if verr != nil {
		metrics.SubmissionsTotal.WithLabelValues("name", "invalid").Inc()
		c.renderView(w, r, http.StatusOK, ViewName, NameView{Name: raw, Error: verr})
		return
	}

	ctx, cancel := c.storeCtx(r)
	defer cancel()

	id := c.newID()
	if err := c.store.SetField(ctx, id, session.FieldName, name); err != nil {
		c.storeFailure(w, r, "set_field", err)
		return
	}
	metrics.SubmissionsTotal.WithLabelValues("name", "valid").Inc()
	c.logFor(r).WithField("session", id).Info("session started")

	c.publish(r, FormEvent{Type: EventStarted, SessionID: id})

	http.SetCookie(w, c.sessionCookie(id))
	http.Redirect(w, r, "/age/"+url.PathEscape(id), http.StatusFound)
}

// ShowAge renders the age step. The id is not checked against the store.
func (c *Controller) ShowAge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c.renderView(w, r, http.StatusOK, ViewAge, AgeView{ID: id, Options: AgeOptions})
}

// SubmitAge validates the age selection and records it.
func (c *Controller) SubmitAge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !parseForm(w, r) {
		return
	}
	age := r.PostFormValue("age")

	if verr := validateAge(age); verr != nil {
		metrics.SubmissionsTotal.WithLabelValues("age", "invalid").Inc()
		c.renderView(w, r, http.StatusOK, ViewAge, AgeView{ID: id, Options: AgeOptions, Error: verr})
		return
	}

	ctx, cancel := c.storeCtx(r)
	defer cancel()

	if err := c.store.SetField(ctx, id, session.FieldAge, age); err != nil {
		c.storeFailure(w, r, "set_field", err)
		return
	}
	metrics.SubmissionsTotal.WithLabelValues("age", "valid").Inc()
	c.logFor(r).WithField("session", id).Info("session completed")

	c.publish(r, FormEvent{Type: EventCompleted, SessionID: id, Age: age})

	http.Redirect(w, r, "/result/"+url.PathEscape(id), http.StatusFound)
}

// ShowResult renders the summary, or 404 when no name was recorded.
func (c *Controller) ShowResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := c.storeCtx(r)
	defer cancel()

	if c.dumpSessions {
		c.logSessions(ctx, r)
	}

	fields, err := c.store.GetFields(ctx, id)
	if err != nil {
		c.storeFailure(w, r, "get_fields", err)
		return
	}
	s := session.FromFields(id, fields)
	if s.Name == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	c.renderView(w, r, http.StatusOK, ViewResult, ResultView{Name: s.Name, Age: s.Age})
}

// DebugSessions writes every stored session as JSON. It is meant to be
// mounted only when debug endpoints are enabled.
func (c *Controller) DebugSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := c.storeCtx(r)
	defer cancel()

	all, err := c.store.ListAll(ctx)
	if err != nil {
		c.storeFailure(w, r, "list_all", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(all); err != nil {
		c.logFor(r).WithError(err).Debug("write debug sessions")
	}
}

func (c *Controller) logSessions(ctx context.Context, r *http.Request) {
	all, err := c.store.ListAll(ctx)
	if err != nil {
		c.logFor(r).WithError(err).Debug("list sessions")
		return
	}
	for id, fields := range all {
		c.logFor(r).WithField("session", id).WithField("fields", fields).Debug("stored session")
	}
}

// parseForm reads a bounded urlencoded body, answering 400 on failure.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return false
	}
	return true
}

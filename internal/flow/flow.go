// Package flow implements the three-step form: a name step, an age step and a
// result page. The controller validates each submission, writes answers to
// the session store and decides where the browser goes next. It never holds
// session state between requests.
package flow

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/formflow/form-app/internal/metrics"
)

// View names understood by the Renderer.
const (
	ViewIndex  = "index"
	ViewName   = "form"
	ViewAge    = "age"
	ViewResult = "result"
)

// CookieName carries the caller's session id so the name step can reset
// only that session.
const CookieName = "form_session"

const defaultStoreTimeout = 3 * time.Second

// Store is the session storage the flow reads and writes.
type Store interface {
	SetField(ctx context.Context, id, field, value string) error
	GetFields(ctx context.Context, id string) (map[string]string, error)
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) (int, error)
	ListAll(ctx context.Context) (map[string]map[string]string, error)
}

// Renderer renders a named view with a data payload.
type Renderer interface {
	Render(w http.ResponseWriter, status int, view string, data any) error
}

// Publisher announces flow progress to other services.
type Publisher interface {
	PublishFormStarted(data []byte) error
	PublishFormCompleted(data []byte) error
}

// Options tunes a Controller. The zero value is usable.
type Options struct {
	Logger logrus.FieldLogger
	Events Publisher // nil disables events

	StoreTimeout time.Duration // bound on each store call
	SessionTTL   time.Duration // session cookie lifetime; 0 makes it a browser-session cookie
	CookieSecure bool

	// ClearAllOnEntry restores the legacy behaviour of wiping every stored
	// session when the name step is viewed.
	ClearAllOnEntry bool

	// DumpSessions logs every stored session at debug level before the
	// result page is rendered.
	DumpSessions bool

	NewID func() string
	Now   func() time.Time
}

// Controller serves the form flow.
type Controller struct {
	store  Store
	render Renderer
	events Publisher
	log    logrus.FieldLogger

	storeTimeout    time.Duration
	sessionTTL      time.Duration
	cookieSecure    bool
	clearAllOnEntry bool
	dumpSessions    bool

	newID func() string
	now   func() time.Time
}

// NewController creates a Controller backed by store and render.
func NewController(store Store, render Renderer, opts Options) *Controller {
	c := &Controller{
		store:           store,
		render:          render,
		events:          opts.Events,
		log:             opts.Logger,
		storeTimeout:    opts.StoreTimeout,
		sessionTTL:      opts.SessionTTL,
		cookieSecure:    opts.CookieSecure,
		clearAllOnEntry: opts.ClearAllOnEntry,
		dumpSessions:    opts.DumpSessions,
		newID:           opts.NewID,
		now:             opts.Now,
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.log = c.log.WithField("component", "flow")
	if c.storeTimeout <= 0 {
		c.storeTimeout = defaultStoreTimeout
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Register mounts the flow routes on r. The submit middlewares wrap only the
// POST handlers.
func (c *Controller) Register(r chi.Router, submit ...func(http.Handler) http.Handler) {
	r.Get("/", c.Index)
	r.Get("/form", c.ShowName)
	r.Get("/age/{id}", c.ShowAge)
	r.Get("/result/{id}", c.ShowResult)

	r.Group(func(r chi.Router) {
		r.Use(submit...)
		r.Post("/form", c.SubmitName)
		r.Post("/age/{id}", c.SubmitAge)
	})
}

func (c *Controller) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), c.storeTimeout)
}

func (c *Controller) logFor(r *http.Request) logrus.FieldLogger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return c.log.WithField("request_id", id)
	}
	return c.log
}

// storeFailure reports an unavailable store as 503, keeping it distinct from
// a missing session.
func (c *Controller) storeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	c.logFor(r).WithError(err).WithField("op", op).Error("session store unavailable")
	http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
}

func (c *Controller) renderView(w http.ResponseWriter, r *http.Request, status int, view string, data any) {
	if err := c.render.Render(w, status, view, data); err != nil {
		c.logFor(r).WithError(err).WithField("view", view).Error("render failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (c *Controller) sessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(c.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Controller) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

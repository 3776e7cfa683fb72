// Package harness boots the BI service in-process and gives tests a flat
// surface for logging in, creating fixtures, asserting on API calls and their
// stats, running SQL Lab queries and building import bundles.
package harness

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bi-demo/internal/app"
	"bi-demo/internal/config"
	"bi-demo/internal/db"
	"bi-demo/internal/domain"
	"bi-demo/internal/testutil"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "general"

// AdminUsername is the seeded administrator.
const AdminUsername = "admin"

// Harness is one in-process server plus the client and fixture helpers bound
// to it. It belongs to a single test.
type Harness struct {
	t      testing.TB
	req    *require.Assertions
	App    *app.App
	Server *httptest.Server
	Client *resty.Client
	// Stats sees every IncrStats call the API makes.
	Stats *testutil.StatsSpy

	ctx      context.Context
	identity *domain.User
	loggedIn string
}

type options struct {
	logger   *slog.Logger
	seed     bool
	examples bool
}

// Option configures New.
type Option func(*options)

// WithLogger routes server logs to logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithoutSeed skips creating the admin, alpha and gamma users and the
// examples database.
func WithoutSeed() Option {
	return func(o *options) { o.seed = false }
}

// WithoutExamples seeds the users but not the examples database.
func WithoutExamples() Option {
	return func(o *options) { o.examples = false }
}

// New starts a server over a fresh metastore in t.TempDir(). Cleanup logs out
// and shuts everything down.
func New(t testing.TB, opts ...Option) *Harness {
	t.Helper()
	o := options{
		logger:   slog.New(slog.DiscardHandler),
		seed:     true,
		examples: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	writeDB, readDB := db.OpenTestSQLite(t)
	spy := &testutil.StatsSpy{}
	a, err := app.New(ctx, app.Deps{
		Cfg:     testConfig(),
		WriteDB: writeDB,
		ReadDB:  readDB,
		Stats:   spy,
		Logger:  o.logger,
	})
	require.NoError(t, err)

	if o.seed {
		seed := app.SeedOptions{Password: DefaultPassword}
		if o.examples {
			seed.ExamplesPath = filepath.Join(t.TempDir(), "examples.sqlite")
		}
		require.NoError(t, a.Seed(ctx, seed))
	}

	srv := httptest.NewServer(a.Router())
	h := &Harness{
		t:      t,
		req:    require.New(t),
		App:    a,
		Server: srv,
		Client: newClient(t, srv.URL),
		Stats:  spy,
		ctx:    ctx,
	}
	t.Cleanup(func() {
		if h.loggedIn != "" {
			h.Logout()
		}
		srv.Close()
		_ = a.Close()
	})
	return h
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                "test",
		CORSAllowedOrigins: []string{"*"},
		Auth: config.AuthConfig{
			JWTSecret:  "harness-secret",
			SessionTTL: time.Hour,
			CookieName: "session",
			BcryptCost: bcrypt.MinCost,
		},
	}
}

// newClient builds a resty client with its own cookie jar so the session
// cookie follows the client across requests.
func newClient(t testing.TB, baseURL string) *resty.Client {
	jar, err := cookiejar.New(&cookiejar.Options{})
	require.NoError(t, err)
	httpClient := &http.Client{Jar: jar, Timeout: 30 * time.Second}
	return resty.NewWithClient(httpClient).SetBaseURL(baseURL)
}

// T returns the test the harness belongs to.
func (h *Harness) T() testing.TB { return h.t }

// Context returns a context carrying the acting identity, if one is attached.
// In-process service calls made with it run as that user.
func (h *Harness) Context() context.Context {
	if h.identity == nil {
		return h.ctx
	}
	return domain.WithUser(h.ctx, h.identity)
}

// AttachIdentity makes u the acting identity of Context and returns the
// identity it replaces. A nil u detaches.
func (h *Harness) AttachIdentity(u *domain.User) (previous *domain.User) {
	previous, h.identity = h.identity, u
	return previous
}

// Identity returns the acting identity, or nil.
func (h *Harness) Identity() *domain.User { return h.identity }

// AsAdmin returns a context acting as the seeded admin. Fixture helpers use
// it to bypass permission checks.
func (h *Harness) AsAdmin() context.Context {
	h.t.Helper()
	u, err := h.App.Services.Security.FindUser(h.ctx, AdminUsername)
	h.req.NoError(err, "admin user is not seeded")
	return domain.WithUser(h.ctx, u)
}

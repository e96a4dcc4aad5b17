// Package router wires the PromptVault REST routes and applies the
// middleware chain.
package router

import (
	"net/http"
	"time"

	apihandler "github.com/Adithya-Monish-Kumar-K/promptvault/internal/api/handler"
	apimw "github.com/Adithya-Monish-Kumar-K/promptvault/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/ratelimit"
	prompthandler "github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/handler"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/waitlist"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/promptvault/pkg/middleware"
)

// Deps are the handlers and guards the router needs. Metrics may be nil.
type Deps struct {
	Prompts        *prompthandler.Handler
	API            *apihandler.Handler
	Waitlist       *waitlist.Handler
	Health         *health.Checker
	Verifier       apimw.TokenVerifier
	Keys           apimw.KeyValidator
	Limiter        ratelimit.Limiter
	WriteRateLimit int
	AllowOrigins   []string
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
}

// New builds the API handler.
//
// Route table:
//
//	GET    /api/v1/prompts                  public listing (cached)
//	GET    /api/v1/prompts/search           fuzzy search
//	GET    /api/v1/prompts/{id}             one prompt
//	POST   /api/v1/prompts                  create (optional bearer, rate limited)
//	PUT    /api/v1/prompts/{id}             update (bearer, rate limited)
//	DELETE /api/v1/prompts/{id}             delete (bearer, rate limited)
//	POST   /api/v1/prompts/copy             copy counter (rate limited)
//	GET    /api/v1/me/prompts               caller's prompts (bearer)
//	POST   /api/v1/waitlist                 waitlist signup (rate limited)
//	GET    /api/v1/analytics                analytics proxy (admin key)
//	GET    /api/v1/analytics/history        snapshot history proxy (admin key)
//	POST   /api/v1/admin/cache/invalidate   drop caches (admin key)
//	GET    /api/v1/admin/cache/stats        cache counters (admin key)
//	POST   /api/v1/admin/keys               create admin key (admin key)
//	GET    /api/v1/admin/keys               list admin keys (admin key)
//	POST   /api/v1/admin/keys/revoke        revoke admin key (admin key)
//	GET    /explore                         HTML explore page
//	GET    /health/live, /health/ready      probes
//
// Middleware chain (outermost first):
//
//	RequestID -> Metrics -> CORS -> Identity -> Timeout -> mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	limited := func(h http.HandlerFunc) http.Handler {
		return apimw.RateLimit(d.Limiter, d.WriteRateLimit)(h)
	}
	user := func(h http.HandlerFunc) http.Handler {
		return apimw.RequireUser(limited(h))
	}
	admin := apimw.AdminKey(d.Keys, d.Metrics)

	mux.HandleFunc("GET /health/live", d.Health.LiveHandler("api"))
	mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())

	mux.HandleFunc("GET /api/v1/prompts", d.Prompts.ListPrompts)
	mux.HandleFunc("GET /api/v1/prompts/search", d.Prompts.SearchPrompts)
	mux.HandleFunc("GET /api/v1/prompts/{id}", d.Prompts.GetPrompt)
	mux.Handle("POST /api/v1/prompts", limited(d.Prompts.CreatePrompt))
	mux.Handle("PUT /api/v1/prompts/{id}", user(d.Prompts.UpdatePrompt))
	mux.Handle("DELETE /api/v1/prompts/{id}", user(d.Prompts.DeletePrompt))
	mux.Handle("POST /api/v1/prompts/copy", limited(d.Prompts.CopyPrompt))
	mux.Handle("GET /api/v1/me/prompts", apimw.RequireUser(http.HandlerFunc(d.Prompts.MyPrompts)))

	mux.Handle("POST /api/v1/waitlist", limited(d.Waitlist.Join))

	mux.Handle("GET /api/v1/analytics", admin(http.HandlerFunc(d.API.ProxyAnalytics)))
	mux.Handle("GET /api/v1/analytics/history", admin(http.HandlerFunc(d.API.ProxyAnalytics)))
	mux.Handle("POST /api/v1/admin/cache/invalidate", admin(http.HandlerFunc(d.Prompts.CacheInvalidate)))
	mux.Handle("GET /api/v1/admin/cache/stats", admin(http.HandlerFunc(d.Prompts.CacheStats)))
	mux.Handle("POST /api/v1/admin/keys", admin(http.HandlerFunc(d.API.CreateAPIKey)))
	mux.Handle("GET /api/v1/admin/keys", admin(http.HandlerFunc(d.API.ListAPIKeys)))
	mux.Handle("POST /api/v1/admin/keys/revoke", admin(http.HandlerFunc(d.API.RevokeAPIKey)))

	mux.HandleFunc("GET /explore", d.API.Explore)

	var chain http.Handler = mux
	if d.RequestTimeout > 0 {
		chain = pkgmw.Timeout(d.RequestTimeout)(chain)
	}
	chain = apimw.Identity(d.Verifier, d.Metrics)(chain)
	chain = apimw.CORS(apimw.NewCORSConfig(d.AllowOrigins))(chain)
	if d.Metrics != nil {
		chain = pkgmw.Metrics(d.Metrics, pkgmw.MuxRoute(mux))(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// passthrough leaves the handler chain unchanged. Middlewares return it
// when their feature is switched off.
func passthrough(next http.Handler) http.Handler { return next }

// CORSConfig controls the cross-origin policy in front of the GraphQL
// endpoint.
type CORSConfig struct {
	// Enabled turns the middleware on. When false the chain is untouched.
	Enabled bool

	// AllowedOrigins lists exact origins, or "*" to accept any.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string

	// ExposeHeaders names response headers browser scripts may read.
	ExposeHeaders []string

	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// corsPolicy is the precomputed form of CORSConfig: origin set resolved and
// joined header values built once.
type corsPolicy struct {
	allowAll         bool
	origins          map[string]struct{}
	methods          string
	headers          string
	expose           string
	maxAge           string
	allowCredentials bool
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	policy := &corsPolicy{
		origins:          make(map[string]struct{}),
		methods:          strings.Join(cfg.AllowedMethods, ", "),
		headers:          strings.Join(cfg.AllowedHeaders, ", "),
		expose:           strings.Join(cfg.ExposeHeaders, ", "),
		allowCredentials: cfg.AllowCredentials,
	}
	if cfg.MaxAge > 0 {
		policy.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			policy.allowAll = true
		default:
			policy.origins[origin] = struct{}{}
		}
	}
	return policy
}

func (p *corsPolicy) allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// stamp writes the response headers the policy grants to the request's
// origin and reports whether r was a preflight that must not reach the
// next handler.
func (p *corsPolicy) stamp(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	preflight := r.Method == http.MethodOptions
	if !p.allows(origin) {
		return preflight
	}

	h := w.Header()
	if p.allowAll {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		// Credentials cannot be combined with the wildcard origin.
		if p.allowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
	}
	if p.expose != "" {
		h.Set("Access-Control-Expose-Headers", p.expose)
	}
	if preflight {
		p.stampPreflight(h)
	}
	return preflight
}

func (p *corsPolicy) stampPreflight(h http.Header) {
	if p.methods != "" {
		h.Set("Access-Control-Allow-Methods", p.methods)
	}
	if p.headers != "" {
		h.Set("Access-Control-Allow-Headers", p.headers)
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}
}

// CORSMiddleware answers preflight requests and stamps allow headers onto
// cross-origin responses.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return passthrough
	}

	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.stamp(w, r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

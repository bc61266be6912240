package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ispyb-graphql/internal/logging"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// OIDCAuthConfig controls OIDC/JWKS validation behavior.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration
}

type authContextKey struct{}

// AuthContext carries the identity of a verified bearer token.
type AuthContext struct {
	// Subject is the sub claim, the facility login of the caller.
	Subject string
	Issuer  string
	// Audience lists every aud value the token was minted for.
	Audience []string
	// Claims holds the full decoded token payload, for claims the
	// typed fields above do not cover.
	Claims map[string]interface{}
}

// AuthFromContext returns the verified identity, if the request carried one.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// OIDCAuthMiddleware validates Bearer tokens when enabled. Discovery runs at
// construction time, so a misconfigured or unreachable issuer fails startup
// rather than the first request.
func OIDCAuthMiddleware(cfg OIDCAuthConfig, logger *logging.Logger) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return passthrough, nil
	}

	verifier, err := newTokenVerifier(&cfg, logger)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logging.FromContext(r.Context())
			deny := func(public, reason string, cause error) {
				if logger != nil {
					attrs := []any{
						slog.String("endpoint", r.URL.Path),
						slog.String("remote_addr", r.RemoteAddr),
					}
					if cause != nil {
						attrs = append(attrs, slog.String("error", cause.Error()))
					}
					reqLogger.Warn(reason, attrs...)
				}
				writeUnauthorized(w, public)
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				deny("missing bearer token", "authentication failed: missing bearer token", nil)
				return
			}

			idToken, err := verifier.Verify(r.Context(), token)
			if err != nil {
				deny("invalid token", "oidc token validation failed", err)
				return
			}

			var claims map[string]interface{}
			if err := idToken.Claims(&claims); err != nil {
				deny("invalid token claims", "oidc token claims parse failed", err)
				return
			}
			if err := validateTimeClaims(claims, cfg.ClockSkew); err != nil {
				deny("invalid token", "oidc token time validation failed", err)
				return
			}

			subject, _ := claims["sub"].(string)
			audience := extractAudience(claims)

			if logger != nil {
				reqLogger.Debug("authentication successful",
					slog.String("issuer", cfg.IssuerURL),
					slog.String("subject", subject),
					slog.String("endpoint", r.URL.Path),
				)
			}
			markSpanAuthenticated(r.Context(), subject, cfg.IssuerURL, audience)

			ctx := context.WithValue(r.Context(), authContextKey{}, AuthContext{
				Issuer:   cfg.IssuerURL,
				Subject:  subject,
				Audience: audience,
				Claims:   claims,
			})
			r = r.WithContext(ctx)
			next.ServeHTTP(w, r)
		})
	}, nil
}

// newTokenVerifier runs OIDC discovery against the configured issuer and
// fills in the clock skew default.
func newTokenVerifier(cfg *OIDCAuthConfig, logger *logging.Logger) (*oidc.IDTokenVerifier, error) {
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}

	issuer, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	switch issuer.Scheme {
	case "https":
	case "http":
		if logger != nil {
			logger.Warn("oidc issuer uses plain http; tokens and keys travel unencrypted",
				"issuer", cfg.IssuerURL,
			)
		}
	default:
		return nil, fmt.Errorf("oidc issuer url must be http(s), got %q", cfg.IssuerURL)
	}

	discoveryCtx := context.WithValue(context.Background(), oauth2.HTTPClient,
		&http.Client{Timeout: 10 * time.Second})
	provider, err := oidc.NewProvider(discoveryCtx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}

	return provider.Verifier(&oidc.Config{ClientID: cfg.Audience}), nil
}

func markSpanAuthenticated(ctx context.Context, subject, issuer string, audience []string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("auth.subject", subject),
		attribute.String("auth.issuer", issuer),
		attribute.Bool("auth.authenticated", true),
	)
	if len(audience) > 0 {
		span.SetAttributes(attribute.StringSlice("auth.audience", audience))
	}
}

func bearerToken(header string) string {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

// validateTimeClaims re-checks exp and nbf with an explicit leeway.
// The verifier already enforces exact expiry; facility clocks drift.
func validateTimeClaims(claims map[string]interface{}, leeway time.Duration) error {
	if leeway <= 0 {
		return nil
	}

	now := time.Now()
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(leeway)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(leeway).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

// numericDate tolerates the value types different token minters emit for
// RFC 7519 NumericDate claims.
func numericDate(value interface{}) (time.Time, bool) {
	var seconds int64
	switch v := value.(type) {
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case int:
		seconds = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		seconds = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		seconds = n
	default:
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}

func extractAudience(claims map[string]interface{}) []string {
	switch aud := claims["aud"].(type) {
	case string:
		return []string{aud}
	case []string:
		return aud
	case []interface{}:
		out := make([]string, 0, len(aud))
		for _, item := range aud {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

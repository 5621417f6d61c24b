package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists the origins allowed to make cross-origin requests.
	// Matching is case-insensitive and the configured spelling is echoed.
	// An empty list or a "*" entry accepts any origin.
	AllowOrigins []string

	// AllowMethods lists the methods a preflight may approve. Defaults to
	// GET, POST, PUT, PATCH, DELETE and OPTIONS, the methods the API routes.
	AllowMethods []string

	// AllowHeaders lists the request headers a preflight may approve. When
	// empty the headers named in Access-Control-Request-Headers are echoed,
	// which admits the Authorization header the API relies on.
	AllowHeaders []string

	// ExposeHeaders lists response headers readable by browser scripts, for
	// example X-Request-ID or the X-RateLimit-* family.
	ExposeHeaders []string

	// AllowCredentials sends Access-Control-Allow-Credentials. Browsers
	// refuse a wildcard origin together with credentials, so with any-origin
	// configured the request origin is echoed instead of "*".
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	// Zero omits the header.
	MaxAge int
}

// corsPolicy is CORSConfig with the header values computed once.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]string
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		anyOrigin:   len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.ToLower(o)] = o
	}
	if p.methods == "" {
		p.methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// an empty string when the origin is rejected.
func (p corsPolicy) allowOrigin(origin string) string {
	if p.anyOrigin {
		if p.credentials {
			return origin
		}
		return "*"
	}
	return p.origins[strings.ToLower(origin)]
}

// CORS answers preflight requests and decorates cross-origin responses.
//
// A request without an Origin header is passed through untouched apart from
// Vary: Origin, so a shared cache never serves it to a cross-origin caller.
// A preflight (OPTIONS carrying Access-Control-Request-Method) is answered
// with 204 and never reaches the router; a rejected origin gets the 204
// without any Access-Control-* headers and the browser blocks the call.
// Actual requests from an allowed origin get Allow-Origin, and when
// configured Allow-Credentials and Expose-Headers, before the handler runs.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allow := p.allowOrigin(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allow != "" {
					h.Set("Access-Control-Allow-Origin", allow)
					h.Set("Access-Control-Allow-Methods", p.methods)
					if hdrs := p.headers; hdrs != "" {
						h.Set("Access-Control-Allow-Headers", hdrs)
					} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
						h.Set("Access-Control-Allow-Headers", req)
					}
					if p.credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if p.maxAge != "" {
						h.Set("Access-Control-Max-Age", p.maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if p.expose != "" {
					h.Set("Access-Control-Expose-Headers", p.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. Empty, or a "*" entry, permits
	// every origin. Matching is case-insensitive; the configured spelling is
	// echoed back.
	AllowOrigins []string

	// AllowMethods is sent on preflight responses. Empty defaults to the
	// methods the API actually serves.
	AllowMethods []string

	// AllowHeaders is sent on preflight responses. When empty, the headers
	// the client asked for are echoed back.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and Authorization headers. The
	// wildcard origin is never sent with credentials; the matched origin is
	// echoed instead.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header.
	MaxAge int
}

type cors struct {
	wildcard    bool
	origins     map[string]string // lowercased origin -> configured spelling
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

// CORS returns a middleware applying cfg to every request. Requests without
// an Origin header pass through untouched apart from a Vary entry, so caches
// keep browser and non-browser responses apart.
func CORS(cfg CORSConfig) Middleware {
	c := &cors{
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	if c.methods == "" {
		c.methods = "GET, POST, PATCH, DELETE, OPTIONS"
	}
	if cfg.MaxAge > 0 {
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	}

	c.wildcard = len(cfg.AllowOrigins) == 0
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			c.wildcard = true
			continue
		}
		c.origins[strings.ToLower(origin)] = origin
	}
	if c.credentials {
		// Browsers reject "*" together with credentials.
		c.wildcard = false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !c.wildcard {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.preflight(w, r, origin)
				return
			}

			c.actual(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}

func (c *cors) allowValue(origin string) string {
	if c.wildcard {
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}

func (c *cors) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allow := c.allowValue(origin)
	if allow == "" {
		// Disallowed origin: answer the preflight without CORS headers and
		// let the browser block the call.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", c.methods)
	switch {
	case c.headers != "":
		h.Set("Access-Control-Allow-Headers", c.headers)
	default:
		if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
			h.Set("Access-Control-Allow-Headers", req)
		}
	}
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.maxAge != "" {
		h.Set("Access-Control-Max-Age", c.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *cors) actual(w http.ResponseWriter, origin string) {
	h := w.Header()
	if !c.wildcard {
		h.Add("Vary", "Origin")
	}

	allow := c.allowValue(origin)
	if allow == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allow)
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.expose != "" {
		h.Set("Access-Control-Expose-Headers", c.expose)
	}
}

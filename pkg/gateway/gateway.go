// Package gateway meters calls to the analysis service: each request is
// charged against the caller's daily budget before it is proxied upstream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"strconv"

	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/ledger"
	"github.com/resumeassist/usagegate/pkg/router"
)

// HeaderUserID identifies the caller on gateway requests.
const HeaderUserID = "X-User-ID"

// Consumer is the ledger operation the gateway charges against.
type Consumer interface {
	CheckAndConsume(ctx context.Context, userID string, cost int64) (bool, error)
}

// Gateway is a metered reverse proxy in front of the analysis service.
type Gateway struct {
	router    *router.Router
	ledger    Consumer
	logger    *zap.Logger
	transport http.RoundTripper
}

// New creates a Gateway. A nil transport uses http.DefaultTransport.
func New(r *router.Router, l Consumer, logger *zap.Logger, transport http.RoundTripper) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{router: r, ledger: l, logger: logger, transport: transport}
}

// ServeHTTP routes /{feature} style requests using the request's "feature"
// path value.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.ServeFeature(w, r, r.PathValue("feature"))
}

// ServeFeature charges the feature's cost to the caller and proxies the
// request on approval. Units stay consumed if the upstream call fails.
func (g *Gateway) ServeFeature(w http.ResponseWriter, r *http.Request, feature string) {
	route, err := g.router.Resolve(feature)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+HeaderUserID+" header")
		return
	}

	allowed, err := g.ledger.CheckAndConsume(r.Context(), userID, route.Cost)
	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, ledger.InvalidReason(err))
		return
	case err != nil:
		writeJSONError(w, http.StatusServiceUnavailable, "usage store unavailable")
		return
	case !allowed:
		w.Header().Set("Retry-After", "86400")
		writeJSONError(w, http.StatusTooManyRequests, "daily usage limit reached")
		return
	}

	target := route.Target
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = target.Path
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		Transport: g.transport,
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Set("X-Usage-Cost", strconv.FormatInt(route.Cost, 10))
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.logger.Warn("upstream request failed",
				zap.String("feature", route.Feature),
				zap.String("user_id", userID),
				zap.Error(err))
			writeJSONError(w, http.StatusBadGateway, "upstream request failed")
		},
	}
	proxy.ServeHTTP(w, r)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

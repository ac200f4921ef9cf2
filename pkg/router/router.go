package router

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/resumeassist/usagegate/pkg/config"
	"github.com/resumeassist/usagegate/pkg/models"
)

// ErrUnknownFeature is returned for a feature name with no configured route.
var ErrUnknownFeature = errors.New("unknown feature")

// Route is a resolved metered feature.
type Route struct {
	Feature string
	Cost    int64
	// Target is the upstream URL including the feature path.
	Target *url.URL
}

// Router resolves feature names to upstream targets and costs.
type Router struct {
	upstream *url.URL
	features map[string]models.Feature
}

// New builds a Router from the gateway configuration.
func New(cfg config.GatewayConfig) (*Router, error) {
	if cfg.Upstream == "" {
		return nil, fmt.Errorf("no upstream configured")
	}
	u, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", cfg.Upstream)
	}

	features := make(map[string]models.Feature, len(cfg.Features))
	for _, f := range cfg.Features {
		features[f.Name] = f
	}
	return &Router{upstream: u, features: features}, nil
}

// Resolve returns the route for feature.
func (r *Router) Resolve(feature string) (Route, error) {
	f, ok := r.features[feature]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	path := f.Path
	if path == "" {
		path = "/" + f.Name
	}
	target := *r.upstream
	target.Path = strings.TrimSuffix(r.upstream.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return Route{Feature: f.Name, Cost: f.Cost, Target: &target}, nil
}

// Features returns the configured features.
func (r *Router) Features() []models.Feature {
	out := make([]models.Feature, 0, len(r.features))
	for _, f := range r.features {
		out = append(out, f)
	}
	return out
}

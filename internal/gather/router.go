package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"stratlab/internal/domain"
)

var _ Provider = (*Router)(nil)

// Router dispatches queries to a provider per market, falling through a
// chain when a provider has no data.
type Router struct {
	routes   map[string][]Provider
	fallback []Provider
	log      *slog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{routes: make(map[string][]Provider), log: log.With("component", "gather-router")}
}

// Route appends providers for market. An empty market sets the fallback
// chain used for markets without a route.
func (r *Router) Route(market string, providers ...Provider) *Router {
	market = strings.ToLower(market)
	if market == "" {
		r.fallback = append(r.fallback, providers...)
		return r
	}
	r.routes[market] = append(r.routes[market], providers...)
	return r
}

func (r *Router) Name() string {
	names := make([]string, 0, len(r.routes))
	for m, ps := range r.routes {
		for _, p := range ps {
			names = append(names, m+":"+p.Name())
		}
	}
	sort.Strings(names)
	return "router(" + strings.Join(names, ",") + ")"
}

// FetchBars tries each provider for q.Market in order and returns the first
// non-empty series. ErrNoData from one provider moves on to the next; any
// other error stops the chain.
func (r *Router) FetchBars(ctx context.Context, q Query) ([]domain.Bar, error) {
	chain := r.routes[strings.ToLower(q.Market)]
	if len(chain) == 0 {
		chain = r.fallback
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no provider for market %q", q.Market)
	}
	for _, p := range chain {
		bars, err := p.FetchBars(ctx, q)
		if errors.Is(err, ErrNoData) || (err == nil && len(bars) == 0) {
			r.log.Debug("provider has no data", "provider", p.Name(), "symbol", q.Symbol)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		return bars, nil
	}
	return nil, NoData(q)
}

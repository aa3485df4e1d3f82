// Package pathfinding prices a conversion between two ledger assets by walking the
// decentralized exchange order books, directly or through a bridge asset.
package pathfinding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"YONASettlement/internal/currency"
	"YONASettlement/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoRoute = errors.New("no route found")

var (
	tracer = otel.Tracer("YONASettlement/pathfinding")

	analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yona_pathfinding_analyses_total",
		Help: "Market analyses by winning route kind",
	}, []string{"outcome"})
)

type RouteKind string

const (
	RouteDirect   RouteKind = "direct"
	RouteMultiHop RouteKind = "multi-hop"
)

const pathSeparator = " → "

type OrderBooks interface {
	GetOrderBook(ctx context.Context, pair models.BookPair) ([]models.Offer, error)
}

type IssuerResolver interface {
	IssuerFor(ctx context.Context, code, memberID string) (string, error)
}

// Bridge is an intermediate asset for two-hop routes. An empty issuer is resolved
// through the engine's IssuerResolver.
type Bridge struct {
	Code   string `yaml:"code"`
	Issuer string `yaml:"issuer"`
}

var DefaultBridges = []Bridge{{Code: "XRP"}, {Code: "USDC"}, {Code: "RLUSD"}}

type Engine struct {
	Books   OrderBooks
	Issuers IssuerResolver
	Bridges []Bridge
	Logger  *zap.Logger
}

type MarketRequest struct {
	From           models.Issue
	To             models.Issue
	Amount         float64
	SlippageBuffer float64
}

type Hop struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	AmountIn       float64 `json:"amount_in"`
	AmountOut      float64 `json:"amount_out"`
	Rate           float64 `json:"rate"`
	OffersConsumed int     `json:"offers_consumed"`
	BookDepth      int     `json:"book_depth"`
}

type Route struct {
	Kind         RouteKind      `json:"kind"`
	Path         string         `json:"path"`
	Issues       []models.Issue `json:"issues"`
	Hops         []Hop          `json:"hops"`
	AmountIn     float64        `json:"amount_in"`
	AmountOut    float64        `json:"amount_out"`
	Rate         float64        `json:"rate"`
	MinAmountOut float64        `json:"min_amount_out"`
	BookDepth    int            `json:"book_depth"`
}

type Analysis struct {
	From           models.Issue `json:"from"`
	To             models.Issue `json:"to"`
	Amount         float64      `json:"amount"`
	SlippageBuffer float64      `json:"slippage_buffer"`
	Best           Route        `json:"best"`
	Candidates     []Route      `json:"candidates"`
	BookDepth      int          `json:"book_depth"`
	AnalyzedAt     time.Time    `json:"analyzed_at"`
}

// AnalyzeMarket evaluates the direct route and every viable bridge concurrently and
// returns the route with the highest realized rate.
func (e *Engine) AnalyzeMarket(ctx context.Context, req MarketRequest) (*Analysis, error) {
	ctx, span := tracer.Start(ctx, "pathfinding.AnalyzeMarket")
	defer span.End()
	span.SetAttributes(
		attribute.String("from", req.From.Currency),
		attribute.String("to", req.To.Currency),
		attribute.Float64("amount", req.Amount),
	)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %v", req.Amount)
	}
	if currency.Equal(req.From.Currency, req.To.Currency) && req.From.Issuer == req.To.Issuer {
		return nil, fmt.Errorf("source and destination asset are the same: %s", req.From.Currency)
	}

	bridges := e.bridges(ctx, req)
	candidates := make([]*Route, len(bridges)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.directRoute(gctx, req)
		if err != nil {
			e.logger().Debug("direct route unavailable", zap.String("from", req.From.Currency), zap.String("to", req.To.Currency), zap.Error(err))
			return nil
		}
		candidates[0] = r
		return nil
	})
	for i, b := range bridges {
		i, b := i, b
		g.Go(func() error {
			r, err := e.bridgeRoute(gctx, req, b)
			if err != nil {
				e.logger().Debug("bridge route unavailable", zap.String("bridge", b.Currency), zap.Error(err))
				return nil
			}
			candidates[i+1] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Analysis{
		From:           req.From,
		To:             req.To,
		Amount:         req.Amount,
		SlippageBuffer: req.SlippageBuffer,
		AnalyzedAt:     time.Now().UTC(),
	}
	var best *Route
	for _, r := range candidates {
		if r == nil {
			continue
		}
		out.Candidates = append(out.Candidates, *r)
		out.BookDepth += r.BookDepth
		if best == nil || r.Rate > best.Rate {
			best = r
		}
	}
	if best == nil {
		analyses.WithLabelValues("no_route").Inc()
		return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, currency.Decode(req.From.Currency), currency.Decode(req.To.Currency))
	}
	out.Best = *best
	analyses.WithLabelValues(string(best.Kind)).Inc()
	span.SetAttributes(attribute.String("route", best.Path), attribute.Float64("rate", best.Rate))
	return out, nil
}

func (e *Engine) directRoute(ctx context.Context, req MarketRequest) (*Route, error) {
	hop, err := e.leg(ctx, req.From, req.To, req.Amount)
	if err != nil {
		return nil, err
	}
	return buildRoute(RouteDirect, []models.Issue{req.From, req.To}, []Hop{hop}, req), nil
}

func (e *Engine) bridgeRoute(ctx context.Context, req MarketRequest, bridge models.Issue) (*Route, error) {
	first, err := e.leg(ctx, req.From, bridge, req.Amount)
	if err != nil {
		return nil, err
	}
	second, err := e.leg(ctx, bridge, req.To, first.AmountOut)
	if err != nil {
		return nil, err
	}
	return buildRoute(RouteMultiHop, []models.Issue{req.From, bridge, req.To}, []Hop{first, second}, req), nil
}

// leg fetches both book directions for from/to and walks them.
func (e *Engine) leg(ctx context.Context, from, to models.Issue, amount float64) (Hop, error) {
	forward, errF := e.Books.GetOrderBook(ctx, models.BookPair{TakerGets: from, TakerPays: to})
	reverse, errR := e.Books.GetOrderBook(ctx, models.BookPair{TakerGets: to, TakerPays: from})
	if errF != nil && errR != nil {
		return Hop{}, errF
	}
	offers := append(forward, reverse...)
	w := walkBook(offers, from, amount)
	if w.out <= 0 {
		return Hop{}, fmt.Errorf("no liquidity %s to %s", currency.Decode(from.Currency), currency.Decode(to.Currency))
	}
	return Hop{
		From:           currency.Decode(from.Currency),
		To:             currency.Decode(to.Currency),
		AmountIn:       amount,
		AmountOut:      w.out,
		Rate:           w.out / amount,
		OffersConsumed: w.used,
		BookDepth:      len(offers),
	}, nil
}

func (e *Engine) bridges(ctx context.Context, req MarketRequest) []models.Issue {
	list := e.Bridges
	if len(list) == 0 {
		list = DefaultBridges
	}
	out := make([]models.Issue, 0, len(list))
	for _, b := range list {
		if currency.Equal(b.Code, req.From.Currency) || currency.Equal(b.Code, req.To.Currency) {
			continue
		}
		issue := models.Issue{Currency: strings.ToUpper(b.Code), Issuer: b.Issuer}
		if !issue.IsNative() && issue.Issuer == "" {
			if e.Issuers == nil {
				continue
			}
			issuer, err := e.Issuers.IssuerFor(ctx, b.Code, "")
			if err != nil || issuer == "" {
				e.logger().Warn("bridge issuer unknown", zap.String("bridge", b.Code), zap.Error(err))
				continue
			}
			issue.Issuer = issuer
		}
		out = append(out, issue)
	}
	return out
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func buildRoute(kind RouteKind, issues []models.Issue, hops []Hop, req MarketRequest) *Route {
	names := make([]string, len(issues))
	for i, is := range issues {
		names[i] = currency.Decode(is.Currency)
	}
	r := &Route{
		Kind:     kind,
		Path:     strings.Join(names, pathSeparator),
		Issues:   issues,
		Hops:     hops,
		AmountIn: req.Amount,
	}
	for _, h := range hops {
		r.BookDepth += h.BookDepth
	}
	r.AmountOut = hops[len(hops)-1].AmountOut
	r.Rate = r.AmountOut / req.Amount
	r.MinAmountOut = r.AmountOut * (1 - req.SlippageBuffer)
	return r
}

// PathSteps converts the intermediate assets of a route into a single ledger path.
// A direct route has no path and yields nil.
func PathSteps(r Route) [][]models.PathStep {
	if len(r.Issues) <= 2 {
		return nil
	}
	steps := make([]models.PathStep, 0, len(r.Issues)-2)
	for _, is := range r.Issues[1 : len(r.Issues)-1] {
		if is.IsNative() {
			steps = append(steps, models.PathStep{Currency: currency.Native})
			continue
		}
		code, err := currency.Encode(is.Currency)
		if err != nil {
			code = is.Currency
		}
		steps = append(steps, models.PathStep{Currency: code, Issuer: is.Issuer})
	}
	return [][]models.PathStep{steps}
}

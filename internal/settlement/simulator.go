// Package settlement builds payment templates from priced routes and checks submitted payments
// against them.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"YONASettlement/internal/currency"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/models"
	"YONASettlement/internal/pathfinding"
	"YONASettlement/internal/pricing"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubmissionGraceLedgers is how many ledgers past the simulated index a template stays submittable.
const SubmissionGraceLedgers = 10

const paymentType = "Payment"

var (
	ErrMissingIssuer = errors.New("issuer required for non-native asset")
	ErrDryRunFailed  = errors.New("dry run failed")
)

var tracer = otel.Tracer("YONASettlement/settlement")

type RouteFinder interface {
	AnalyzeMarket(ctx context.Context, req pathfinding.MarketRequest) (*pathfinding.Analysis, error)
}

type DryRunner interface {
	DryRun(ctx context.Context, tx ledger.PaymentTx) (*ledger.DryRunResult, error)
}

type SimulationRequest struct {
	SendAsset      models.Asset
	SendAmount     decimal.Decimal
	ReceiveAsset   models.Asset
	ReceiveAmount  decimal.Decimal
	Policy         pricing.Policy
	Account        string
	Destination    string
	DestinationTag *uint32
	InvoiceID      string
}

type Simulation struct {
	Template     models.PaymentTemplate
	Route        pathfinding.Route
	Fee          string
	EngineResult string
	LedgerIndex  uint32
}

type Simulator struct {
	Routes RouteFinder
	Ledger DryRunner
	Logger *zap.Logger
}

// Simulate prices the conversion, builds the payment and dry-runs it against the ledger.
// The returned template has no id yet.
func (s *Simulator) Simulate(ctx context.Context, req SimulationRequest) (*Simulation, error) {
	ctx, span := tracer.Start(ctx, "settlement.Simulate")
	defer span.End()

	if !req.SendAsset.IsNative() && req.SendAsset.Issuer == "" {
		return nil, fmt.Errorf("%w: send asset %s", ErrMissingIssuer, req.SendAsset.Code)
	}
	if !req.ReceiveAsset.IsNative() && req.ReceiveAsset.Issuer == "" {
		return nil, fmt.Errorf("%w: receive asset %s", ErrMissingIssuer, req.ReceiveAsset.Code)
	}

	route, err := s.route(ctx, req)
	if err != nil {
		return nil, err
	}

	amount, err := LedgerAmount(req.ReceiveAsset, req.ReceiveAmount)
	if err != nil {
		return nil, err
	}
	tmpl := models.PaymentTemplate{
		TransactionType: paymentType,
		Account:         req.Account,
		Destination:     req.Destination,
		DestinationTag:  req.DestinationTag,
		Amount:          amount,
		Paths:           pathfinding.PathSteps(route),
		Flags:           0,
		InvoiceID:       req.InvoiceID,
	}
	// native to native payments carry no SendMax
	if !(req.SendAsset.IsNative() && req.ReceiveAsset.IsNative()) {
		tmpl.SendMax, err = LedgerAmount(req.SendAsset, req.Policy.SendMax(req.SendAmount))
		if err != nil {
			return nil, err
		}
	}

	res, err := s.Ledger.DryRun(ctx, PaymentTx(tmpl))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrDryRunFailed, err)
	}
	span.SetAttributes(attribute.String("engine_result", res.EngineResult))
	if !res.WouldSucceed {
		s.logger().Warn("simulated payment would fail",
			zap.String("account", req.Account),
			zap.String("engine_result", res.EngineResult),
			zap.String("message", res.Message),
		)
		return nil, fmt.Errorf("%w: %s %s", ErrDryRunFailed, res.EngineResult, res.Message)
	}

	tmpl.LedgerIndex = res.LedgerIndex
	return &Simulation{
		Template:     tmpl,
		Route:        route,
		Fee:          res.Fee,
		EngineResult: res.EngineResult,
		LedgerIndex:  res.LedgerIndex,
	}, nil
}

func (s *Simulator) route(ctx context.Context, req SimulationRequest) (pathfinding.Route, error) {
	from := models.Issue{Currency: req.SendAsset.Code, Issuer: req.SendAsset.Issuer}
	to := models.Issue{Currency: req.ReceiveAsset.Code, Issuer: req.ReceiveAsset.Issuer}
	amount := req.SendAmount.InexactFloat64()

	if currency.Equal(from.Currency, to.Currency) && from.Issuer == to.Issuer {
		return pathfinding.Route{
			Kind:         pathfinding.RouteDirect,
			Path:         currency.Decode(from.Currency),
			Issues:       []models.Issue{from, to},
			AmountIn:     amount,
			AmountOut:    amount,
			Rate:         1,
			MinAmountOut: amount,
		}, nil
	}

	analysis, err := s.Routes.AnalyzeMarket(ctx, pathfinding.MarketRequest{
		From:           from,
		To:             to,
		Amount:         amount,
		SlippageBuffer: req.Policy.SlippageBuffer(),
	})
	if err != nil {
		return pathfinding.Route{}, err
	}
	s.logger().Info("route selected",
		zap.String("path", analysis.Best.Path),
		zap.Float64("rate", analysis.Best.Rate),
		zap.Int("candidates", len(analysis.Candidates)),
	)
	return analysis.Best, nil
}

func (s *Simulator) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// LedgerAmount encodes value of asset the way the ledger expects it: XRP as a drops string
// rounded to six decimals, issued assets as an object with the encoded currency code.
func LedgerAmount(asset models.Asset, value decimal.Decimal) (models.Amount, error) {
	if asset.IsNative() {
		return models.NativeAmount(value.Round(6).Shift(6).StringFixed(0)), nil
	}
	code, err := currency.Encode(asset.Code)
	if err != nil {
		return models.Amount{}, err
	}
	return models.IssuedValue(code, asset.Issuer, value.StringFixed(6)), nil
}

// PaymentTx converts a stored template to its unsigned transaction form.
func PaymentTx(t models.PaymentTemplate) ledger.PaymentTx {
	tx := ledger.PaymentTx{
		TransactionType: t.TransactionType,
		Account:         t.Account,
		Destination:     t.Destination,
		DestinationTag:  t.DestinationTag,
		Amount:          t.Amount,
		Paths:           t.Paths,
		Flags:           t.Flags,
		InvoiceID:       t.InvoiceID,
	}
	if !t.SendMax.IsZero() {
		sendMax := t.SendMax
		tx.SendMax = &sendMax
	}
	return tx
}

// DeliveryTemplate is the transaction handed to the originator: it expires
// SubmissionGraceLedgers after the simulated ledger and leaves the sequence to the signer.
func DeliveryTemplate(t models.PaymentTemplate) ledger.PaymentTx {
	tx := PaymentTx(t)
	seq := uint32(0)
	tx.Sequence = &seq
	tx.LastLedgerSequence = t.LedgerIndex + SubmissionGraceLedgers
	return tx
}

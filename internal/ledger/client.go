package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"YONASettlement/internal/currency"
	"YONASettlement/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("YONASettlement/ledger")

// Backend is the raw node surface, served by RPCClient and MultiRPCClient.
type Backend interface {
	BookOffers(ctx context.Context, pair models.BookPair, limit int) ([]models.Offer, error)
	AccountInfo(ctx context.Context, account string) (*AccountInfo, error)
	Fee(ctx context.Context) (*FeeInfo, error)
	LedgerCurrent(ctx context.Context) (uint32, error)
	Simulate(ctx context.Context, tx PaymentTx) (*SimulateResult, error)
	Tx(ctx context.Context, hash string) (*models.LedgerTransaction, error)
	AccountTx(ctx context.Context, account string, limit int, marker json.RawMessage) (*AccountTxPage, error)
}

// Client is the ledger view used by the settlement engine.
type Client struct {
	Backend   Backend
	BookLimit int
	Logger    *zap.Logger
}

func NewClient(backend Backend, bookLimit int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{Backend: backend, BookLimit: bookLimit, Logger: logger}
}

// GetOrderBook returns the resting offers for pair, best quality first as ranked by the node.
func (c *Client) GetOrderBook(ctx context.Context, pair models.BookPair) ([]models.Offer, error) {
	ctx, span := tracer.Start(ctx, "ledger.GetOrderBook")
	defer span.End()

	pair.TakerGets = encodeIssue(pair.TakerGets)
	pair.TakerPays = encodeIssue(pair.TakerPays)
	span.SetAttributes(
		attribute.String("taker_gets", pair.TakerGets.Currency),
		attribute.String("taker_pays", pair.TakerPays.Currency),
	)
	offers, err := c.Backend.BookOffers(ctx, pair, c.BookLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("book_offers %s/%s: %w", pair.TakerGets.Currency, pair.TakerPays.Currency, err)
	}
	span.SetAttributes(attribute.Int("offers", len(offers)))
	return offers, nil
}

// DryRun auto-fills sequence, fee and LastLedgerSequence and asks the node to simulate tx
// without submitting it.
func (c *Client) DryRun(ctx context.Context, tx PaymentTx) (*DryRunResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.DryRun")
	defer span.End()

	info, err := c.Backend.AccountInfo(ctx, tx.Account)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("account_info %s: %w", tx.Account, err)
	}
	fee, err := c.Backend.Fee(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fee: %w", err)
	}
	current := info.LedgerCurrentIndex
	if current == 0 {
		current, err = c.Backend.LedgerCurrent(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("ledger_current: %w", err)
		}
	}

	filled := tx
	seq := info.Sequence
	filled.Sequence = &seq
	filled.Fee = fee.Recommended()
	filled.LastLedgerSequence = current + autofillLedgerOffset

	sim, err := c.Backend.Simulate(ctx, filled)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("simulate: %w", err)
	}

	idx := sim.LedgerIndex
	if idx == 0 {
		idx = filled.LastLedgerSequence
	}
	out := &DryRunResult{
		WouldSucceed: sim.EngineResult == ResultSuccess,
		EngineResult: sim.EngineResult,
		Message:      sim.EngineResultMessage,
		LedgerIndex:  idx,
		Fee:          filled.Fee,
		Sequence:     seq,
	}
	span.SetAttributes(
		attribute.String("engine_result", out.EngineResult),
		attribute.Int64("ledger_index", int64(out.LedgerIndex)),
	)
	c.Logger.Debug("dry run",
		zap.String("account", tx.Account),
		zap.String("engine_result", out.EngineResult),
		zap.Uint32("ledger_index", out.LedgerIndex),
	)
	return out, nil
}

func (c *Client) GetTransaction(ctx context.Context, hash string) (*models.LedgerTransaction, error) {
	ctx, span := tracer.Start(ctx, "ledger.GetTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("tx_hash", hash))

	tx, err := c.Backend.Tx(ctx, hash)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("tx %s: %w", hash, err)
	}
	if tx.Paths == nil {
		tx.Paths = [][]models.PathStep{}
	}
	return tx, nil
}

// AccountHistory pages backwards through account_tx, up to maxPages pages.
func (c *Client) AccountHistory(ctx context.Context, account string, maxPages int) ([]HistoryEntry, error) {
	if err := ValidateAddress(account); err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		maxPages = 5
	}
	var out []HistoryEntry
	var marker json.RawMessage
	for page := 0; page < maxPages; page++ {
		resp, err := c.Backend.AccountTx(ctx, account, 400, marker)
		if err != nil {
			return nil, fmt.Errorf("account_tx %s: %w", account, err)
		}
		if len(resp.Transactions) == 0 {
			break
		}
		for _, tx := range resp.Transactions {
			out = append(out, historyEntry(account, tx))
		}
		if len(resp.Marker) == 0 || string(resp.Marker) == "null" {
			break
		}
		marker = resp.Marker
	}
	return out, nil
}

func historyEntry(account string, tx models.LedgerTransaction) HistoryEntry {
	e := HistoryEntry{
		Hash:        tx.Hash,
		LedgerIndex: tx.LedgerIndex,
		Date:        tx.Date,
		Type:        tx.TransactionType,
		Fee:         dropsToXRP(tx.Fee),
		Validated:   tx.Validated,
		Result:      tx.Result,
		Account:     tx.Account,
		Destination: tx.Destination,
	}
	if e.Type == "" {
		e.Type = "Unknown"
	}
	if tx.TransactionType != "Payment" {
		return e
	}
	if tx.Account == account {
		e.Direction = "sent"
		e.Counterparty = tx.Destination
	} else {
		e.Direction = "received"
		e.Counterparty = tx.Account
	}
	amount := tx.Amount
	if tx.DeliveredAmount != nil {
		amount = *tx.DeliveredAmount
	}
	e.Amount, e.Currency = displayAmount(amount)
	if tx.SendMax != nil {
		v, cur := displayAmount(*tx.SendMax)
		e.SendMax = v + " " + cur
	}
	return e
}

func displayAmount(a models.Amount) (string, string) {
	if a.IsZero() {
		return "", ""
	}
	if a.IsNative() {
		return dropsToXRP(a.Drops), currency.Native
	}
	return a.Issued.Value, currency.Decode(a.Issued.Currency)
}

func dropsToXRP(drops string) string {
	v, err := strconv.ParseFloat(drops, 64)
	if err != nil {
		return drops
	}
	return strconv.FormatFloat(v/models.DropsPerXRP, 'f', -1, 64)
}

func encodeIssue(i models.Issue) models.Issue {
	if i.IsNative() {
		return models.Issue{Currency: currency.Native}
	}
	code, err := currency.Encode(i.Currency)
	if err != nil {
		return i
	}
	return models.Issue{Currency: code, Issuer: i.Issuer}
}

// Package worker watches the ledger for settlement payments of in-flight intents. It only
// observes: intents are advanced by the originator's payment-complete callback.
package worker

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"YONASettlement/internal/events"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// WatchedStatuses are the intents whose originator may submit the payment.
var WatchedStatuses = []models.IntentStatus{models.StatusTemplateReceived, models.StatusTRAccepted}

var observed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yona_worker_payments_observed_total",
	Help: "Ledger payments matched to an in-flight intent",
}, []string{"source", "result"})

type IntentLister interface {
	ListIntentsByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]models.PaymentIntent, error)
}

type AccountTxLister interface {
	AccountTx(ctx context.Context, account string, limit int, marker json.RawMessage) (*ledger.AccountTxPage, error)
}

type Worker struct {
	Store               IntentLister
	History             AccountTxLister
	Events              events.Publisher
	WSEndpoints         []string
	WSFailoverThreshold int
	RefreshInterval     time.Duration
	ReconnectDelay      time.Duration
	MaxIntents          int
	BackfillLimit       int
	Logger              *zap.Logger

	mu      sync.Mutex
	watched map[string]models.PaymentIntent
	seen    map[string]string
}

// Refresh reloads the watched intents and returns the originator accounts to subscribe to.
func (w *Worker) Refresh(ctx context.Context) ([]string, error) {
	byInvoice := make(map[string]models.PaymentIntent)
	for _, st := range WatchedStatuses {
		intents, err := w.Store.ListIntentsByStatus(ctx, st, w.MaxIntents)
		if err != nil {
			return nil, err
		}
		for _, intent := range intents {
			if intent.InvoiceID == nil || *intent.InvoiceID == "" {
				continue
			}
			byInvoice[strings.ToUpper(*intent.InvoiceID)] = intent
		}
	}

	w.mu.Lock()
	w.watched = byInvoice
	for id := range w.seen {
		if !w.watchesIntent(id) {
			delete(w.seen, id)
		}
	}
	w.mu.Unlock()

	return accountsOf(byInvoice), nil
}

func (w *Worker) watchesIntent(id string) bool {
	for _, intent := range w.watched {
		if intent.IntentID == id {
			return true
		}
	}
	return false
}

func accountsOf(byInvoice map[string]models.PaymentIntent) []string {
	set := make(map[string]struct{})
	for _, intent := range byInvoice {
		if intent.OriginatorAccount != "" {
			set[intent.OriginatorAccount] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Observe matches a ledger transaction to a watched intent by invoice id and publishes a
// payment-observed event once per intent and hash. It reports whether the transaction matched.
func (w *Worker) Observe(ctx context.Context, tx models.LedgerTransaction, source string) bool {
	if tx.TransactionType != "Payment" || tx.InvoiceID == "" || !tx.Validated {
		return false
	}

	w.mu.Lock()
	intent, ok := w.watched[strings.ToUpper(tx.InvoiceID)]
	if ok {
		if w.seen == nil {
			w.seen = make(map[string]string)
		}
		if w.seen[intent.IntentID] == tx.Hash {
			w.mu.Unlock()
			return true
		}
		w.seen[intent.IntentID] = tx.Hash
	}
	w.mu.Unlock()
	if !ok {
		return false
	}

	if tx.Account != intent.OriginatorAccount {
		w.logger().Warn("invoice id submitted from unexpected account",
			zap.String("intent_id", intent.IntentID),
			zap.String("tx_hash", tx.Hash),
			zap.String("account", tx.Account),
			zap.String("expected", intent.OriginatorAccount),
		)
	}
	w.logger().Info("settlement payment observed",
		zap.String("intent_id", intent.IntentID),
		zap.String("status", string(intent.Status)),
		zap.String("tx_hash", tx.Hash),
		zap.String("result", tx.Result),
		zap.Uint32("ledger_index", tx.LedgerIndex),
		zap.String("source", source),
	)
	observed.WithLabelValues(source, tx.Result).Inc()

	e := events.Event{
		Type:      events.TypePaymentObserved,
		IntentID:  intent.IntentID,
		Status:    intent.Status,
		TxHash:    tx.Hash,
		Timestamp: time.Now().UTC(),
	}
	if tx.Result != "" && tx.Result != "tesSUCCESS" {
		e.Reason = tx.Result
	}
	if w.Events != nil {
		if err := w.Events.Publish(ctx, e); err != nil {
			w.logger().Warn("publish payment observed failed", zap.String("intent_id", intent.IntentID), zap.Error(err))
		}
	}
	return true
}

// Backfill scans the latest account transactions so payments made while the stream was down
// are still observed.
func (w *Worker) Backfill(ctx context.Context, accounts []string) {
	if w.History == nil {
		return
	}
	limit := w.BackfillLimit
	if limit <= 0 {
		limit = 50
	}
	for _, account := range accounts {
		page, err := w.History.AccountTx(ctx, account, limit, nil)
		if err != nil {
			w.logger().Warn("backfill account_tx failed", zap.String("account", account), zap.Error(err))
			continue
		}
		for _, tx := range page.Transactions {
			w.Observe(ctx, tx, "backfill")
		}
	}
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"YONASettlement/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "yona_ledger_rpc_duration_seconds",
	Help:    "Ledger JSON-RPC call latency",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "outcome"})

// RPCClient speaks the ledger's JSON-RPC over HTTP to a single node.
type RPCClient struct {
	baseURL string
	client  *http.Client
}

func NewRPCClient(baseURL string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *RPCClient) BaseURL() string {
	return c.baseURL
}

func (c *RPCClient) BookOffers(ctx context.Context, pair models.BookPair, limit int) ([]models.Offer, error) {
	if limit <= 0 {
		limit = 50
	}
	params := map[string]any{
		"taker_gets":   pair.TakerGets,
		"taker_pays":   pair.TakerPays,
		"limit":        limit,
		"ledger_index": "validated",
	}
	var resp bookOffersResponse
	if err := c.call(ctx, "book_offers", params, &resp); err != nil {
		return nil, err
	}
	return resp.Offers, nil
}

func (c *RPCClient) AccountInfo(ctx context.Context, account string) (*AccountInfo, error) {
	params := map[string]any{
		"account":      account,
		"ledger_index": "current",
	}
	var resp accountInfoResponse
	if err := c.call(ctx, "account_info", params, &resp); err != nil {
		return nil, err
	}
	return &AccountInfo{
		Account:            resp.AccountData.Account,
		Sequence:           resp.AccountData.Sequence,
		Balance:            resp.AccountData.Balance,
		LedgerCurrentIndex: resp.LedgerCurrentIndex,
	}, nil
}

func (c *RPCClient) Fee(ctx context.Context) (*FeeInfo, error) {
	var resp feeResponse
	if err := c.call(ctx, "fee", map[string]any{}, &resp); err != nil {
		return nil, err
	}
	return &FeeInfo{BaseFee: resp.Drops.BaseFee, OpenLedgerFee: resp.Drops.OpenLedgerFee}, nil
}

func (c *RPCClient) LedgerCurrent(ctx context.Context) (uint32, error) {
	var resp ledgerCurrentResponse
	if err := c.call(ctx, "ledger_current", map[string]any{}, &resp); err != nil {
		return 0, err
	}
	return resp.LedgerCurrentIndex, nil
}

func (c *RPCClient) Simulate(ctx context.Context, tx PaymentTx) (*SimulateResult, error) {
	params := map[string]any{
		"tx_json": tx,
		"binary":  false,
	}
	var resp simulateResponse
	if err := c.call(ctx, "simulate", params, &resp); err != nil {
		return nil, err
	}
	return &SimulateResult{
		EngineResult:        resp.EngineResult,
		EngineResultMessage: resp.EngineResultMessage,
		LedgerIndex:         resp.LedgerIndex,
		Applied:             resp.Applied,
	}, nil
}

func (c *RPCClient) Tx(ctx context.Context, hash string) (*models.LedgerTransaction, error) {
	params := map[string]any{
		"transaction": hash,
		"binary":      false,
	}
	var raw json.RawMessage
	if err := c.call(ctx, "tx", params, &raw); err != nil {
		return nil, err
	}
	tx, err := decodeTx(raw)
	if err != nil {
		return nil, err
	}
	if tx.TransactionType == "" {
		return nil, ErrTxNotFound
	}
	return tx, nil
}

func (c *RPCClient) AccountTx(ctx context.Context, account string, limit int, marker json.RawMessage) (*AccountTxPage, error) {
	if limit <= 0 {
		limit = 400
	}
	params := map[string]any{
		"account": account,
		"limit":   limit,
		"forward": false,
	}
	if len(marker) > 0 {
		params["marker"] = marker
	}
	var resp accountTxResponse
	if err := c.call(ctx, "account_tx", params, &resp); err != nil {
		return nil, err
	}
	page := &AccountTxPage{Marker: resp.Marker}
	for _, item := range resp.Transactions {
		tx, err := decodeTx(item)
		if err != nil || tx.TransactionType == "" {
			continue
		}
		page.Transactions = append(page.Transactions, *tx)
	}
	return page, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params any, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		rpcDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("rpc http status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("rpc http status %d", resp.StatusCode)
	}

	var env rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if len(env.Result) == 0 {
		return errors.New("rpc response has no result")
	}
	var st rpcStatus
	if err := json.Unmarshal(env.Result, &st); err != nil {
		return err
	}
	if st.Status == "error" || st.Error != "" {
		return &RPCError{Method: method, Code: st.Error, Message: st.ErrorMessage}
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = env.Result
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func decodeTx(data []byte) (*models.LedgerTransaction, error) {
	var env txEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	body := data
	switch {
	case len(env.TxJSON) > 0:
		body = env.TxJSON
	case len(env.Tx) > 0:
		body = env.Tx
	}
	var raw rawTx
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	tx := &models.LedgerTransaction{
		Hash:            firstNonEmpty(env.Hash, raw.Hash),
		TransactionType: raw.TransactionType,
		Account:         raw.Account,
		Destination:     raw.Destination,
		DestinationTag:  raw.DestinationTag,
		Flags:           raw.Flags,
		Paths:           raw.Paths,
		InvoiceID:       raw.InvoiceID,
		Amount:          raw.Amount,
		SendMax:         raw.SendMax,
		Fee:             raw.Fee,
		Validated:       env.Validated,
	}
	if tx.Amount.IsZero() {
		tx.Amount = raw.DeliverMax
	}
	tx.LedgerIndex = env.LedgerIndex
	if tx.LedgerIndex == 0 {
		tx.LedgerIndex = raw.LedgerIndex
	}
	if tx.LedgerIndex == 0 {
		tx.LedgerIndex = raw.InLedger
	}
	date := env.Date
	if date == 0 {
		date = raw.Date
	}
	if date > 0 {
		tx.Date = time.Unix(date+rippleEpoch, 0).UTC()
	}

	if len(env.Meta) > 0 && env.Meta[0] == '{' {
		var meta txMeta
		if err := json.Unmarshal(env.Meta, &meta); err == nil {
			tx.Result = meta.TransactionResult
			if len(meta.DeliveredAmount) > 0 {
				var delivered models.Amount
				if err := json.Unmarshal(meta.DeliveredAmount, &delivered); err == nil && delivered.Drops != "unavailable" && !delivered.IsZero() {
					tx.DeliveredAmount = &delivered
				}
			}
		}
	}
	return tx, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"

	"YONASettlement/internal/models"

	"github.com/gorilla/websocket"
)

// WSClient is a ledger websocket connection used for the transaction stream.
type WSClient struct {
	Endpoint string
	Conn     *websocket.Conn
	nextID   atomic.Int64
}

func NewWSClient(endpoint string) *WSClient {
	return &WSClient{Endpoint: endpoint}
}

func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.Conn = conn
	return nil
}

func (c *WSClient) Close() {
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// Subscribe adds accounts to the validated transaction stream of this connection.
func (c *WSClient) Subscribe(ctx context.Context, accounts []string) error {
	return c.command("subscribe", accounts)
}

func (c *WSClient) Unsubscribe(ctx context.Context, accounts []string) error {
	return c.command("unsubscribe", accounts)
}

func (c *WSClient) command(name string, accounts []string) error {
	if c.Conn == nil {
		return errors.New("ws not connected")
	}
	if len(accounts) == 0 {
		return nil
	}
	payload := map[string]any{
		"id":       c.nextID.Add(1),
		"command":  name,
		"accounts": accounts,
	}
	return c.Conn.WriteJSON(payload)
}

func (c *WSClient) Read(ctx context.Context) ([]byte, error) {
	_, msg, err := c.Conn.ReadMessage()
	return msg, err
}

// ParseStreamTx decodes a transaction stream message. ok is false for command
// responses and other stream types.
func ParseStreamTx(msg []byte) (*models.LedgerTransaction, bool, error) {
	var head struct {
		Type         string `json:"type"`
		Status       string `json:"status"`
		Error        string `json:"error"`
		ErrorMessage string `json:"error_message"`
		EngineResult string `json:"engine_result"`
		Validated    bool   `json:"validated"`
		LedgerIndex  uint32 `json:"ledger_index"`
		Hash         string `json:"hash"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return nil, false, err
	}
	if head.Status == "error" || head.Error != "" {
		if head.ErrorMessage != "" {
			return nil, false, errors.New(head.ErrorMessage)
		}
		return nil, false, errors.New(head.Error)
	}
	if head.Type != "transaction" {
		return nil, false, nil
	}

	var env struct {
		Transaction json.RawMessage `json:"transaction"`
		TxJSON      json.RawMessage `json:"tx_json"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, false, err
	}
	body := env.TxJSON
	if len(body) == 0 {
		body = env.Transaction
	}
	if len(body) == 0 {
		return nil, false, nil
	}
	var raw rawTx
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, err
	}

	tx := &models.LedgerTransaction{
		Hash:            strings.ToUpper(firstNonEmpty(head.Hash, raw.Hash)),
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
		LedgerIndex:     head.LedgerIndex,
		Result:          head.EngineResult,
		Validated:       head.Validated,
	}
	if tx.Amount.IsZero() {
		tx.Amount = raw.DeliverMax
	}
	return tx, true, nil
}

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"YONASettlement/internal/models"
)

const (
	// rippleEpoch is 2000-01-01T00:00:00Z in unix seconds.
	rippleEpoch = 946684800

	ResultSuccess = "tesSUCCESS"

	// autofillLedgerOffset matches the LastLedgerSequence headroom used by standard ledger tooling.
	autofillLedgerOffset = 20
)

var (
	ErrTxNotFound      = errors.New("transaction not found")
	ErrAccountNotFound = errors.New("account not found")
)

// RPCError is an error reported by the ledger node itself, not by the transport.
type RPCError struct {
	Method  string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ledger %s: %s: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger %s: %s", e.Method, e.Code)
}

func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrTxNotFound:
		return e.Code == "txnNotFound"
	case ErrAccountNotFound:
		return e.Code == "actNotFound"
	}
	return false
}

// PaymentTx is the JSON form of an unsigned Payment transaction.
type PaymentTx struct {
	TransactionType    string              `json:"TransactionType"`
	Account            string              `json:"Account"`
	Destination        string              `json:"Destination"`
	DestinationTag     *uint32             `json:"DestinationTag,omitempty"`
	Amount             models.Amount       `json:"Amount"`
	SendMax            *models.Amount      `json:"SendMax,omitempty"`
	Paths              [][]models.PathStep `json:"Paths,omitempty"`
	Flags              uint32              `json:"Flags"`
	InvoiceID          string              `json:"InvoiceID,omitempty"`
	Fee                string              `json:"Fee,omitempty"`
	Sequence           *uint32             `json:"Sequence,omitempty"`
	LastLedgerSequence uint32              `json:"LastLedgerSequence,omitempty"`
}

type AccountInfo struct {
	Account            string
	Sequence           uint32
	Balance            string
	LedgerCurrentIndex uint32
}

type FeeInfo struct {
	BaseFee       string
	OpenLedgerFee string
}

// Recommended is the fee used when auto-filling a transaction.
func (f FeeInfo) Recommended() string {
	if f.OpenLedgerFee != "" {
		return f.OpenLedgerFee
	}
	if f.BaseFee != "" {
		return f.BaseFee
	}
	return "12"
}

type SimulateResult struct {
	EngineResult        string
	EngineResultMessage string
	LedgerIndex         uint32
	Applied             bool
}

type DryRunResult struct {
	WouldSucceed bool
	EngineResult string
	Message      string
	LedgerIndex  uint32
	Fee          string
	Sequence     uint32
}

type AccountTxPage struct {
	Transactions []models.LedgerTransaction
	Marker       json.RawMessage
}

// HistoryEntry is one account transaction prepared for display.
type HistoryEntry struct {
	Hash         string    `json:"hash"`
	LedgerIndex  uint32    `json:"ledger_index"`
	Date         time.Time `json:"date"`
	Type         string    `json:"type"`
	Direction    string    `json:"direction,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	SendMax      string    `json:"send_max,omitempty"`
	Fee          string    `json:"fee"`
	Validated    bool      `json:"validated"`
	Result       string    `json:"result"`
	Account      string    `json:"account"`
	Destination  string    `json:"destination,omitempty"`
}

// RPC wire types

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
}

type rpcStatus struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

type bookOffersResponse struct {
	Offers []models.Offer `json:"offers"`
}

type accountInfoResponse struct {
	AccountData struct {
		Account  string `json:"Account"`
		Balance  string `json:"Balance"`
		Sequence uint32 `json:"Sequence"`
	} `json:"account_data"`
	LedgerCurrentIndex uint32 `json:"ledger_current_index"`
}

type feeResponse struct {
	Drops struct {
		BaseFee       string `json:"base_fee"`
		OpenLedgerFee string `json:"open_ledger_fee"`
	} `json:"drops"`
}

type ledgerCurrentResponse struct {
	LedgerCurrentIndex uint32 `json:"ledger_current_index"`
}

type simulateResponse struct {
	Applied             bool   `json:"applied"`
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	LedgerIndex         uint32 `json:"ledger_index"`
}

type rawTx struct {
	TransactionType string              `json:"TransactionType"`
	Account         string              `json:"Account"`
	Destination     string              `json:"Destination"`
	DestinationTag  *uint32             `json:"DestinationTag"`
	Flags           *uint32             `json:"Flags"`
	Paths           [][]models.PathStep `json:"Paths"`
	InvoiceID       string              `json:"InvoiceID"`
	Amount          models.Amount       `json:"Amount"`
	DeliverMax      models.Amount       `json:"DeliverMax"`
	SendMax         *models.Amount      `json:"SendMax"`
	Fee             string              `json:"Fee"`
	Hash            string              `json:"hash"`
	LedgerIndex     uint32              `json:"ledger_index"`
	InLedger        uint32              `json:"inLedger"`
	Date            int64               `json:"date"`
}

type txMeta struct {
	TransactionResult string          `json:"TransactionResult"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
}

// txEnvelope covers both the flat (API v1) and tx_json (API v2) response layouts.
type txEnvelope struct {
	TxJSON      json.RawMessage `json:"tx_json"`
	Tx          json.RawMessage `json:"tx"`
	Hash        string          `json:"hash"`
	LedgerIndex uint32          `json:"ledger_index"`
	Validated   bool            `json:"validated"`
	Date        int64           `json:"date"`
	Meta        json.RawMessage `json:"meta"`
}

type accountTxResponse struct {
	Transactions []json.RawMessage `json:"transactions"`
	Marker       json.RawMessage   `json:"marker"`
}

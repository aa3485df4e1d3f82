package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"YONASettlement/internal/models"

	"github.com/stretchr/testify/require"
)

// newNode serves canned JSON-RPC results keyed by method.
func newNode(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := results[req.Method]
		if !ok {
			result = `{"status":"error","error":"unknownCmd"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCClientBookOffers(t *testing.T) {
	srv := newNode(t, map[string]string{
		"book_offers": `{"status":"success","offers":[
			{"Account":"rA","TakerGets":"100000000","TakerPays":{"currency":"USD","issuer":"rI","value":"50"},"quality":"0.0000005"}
		]}`,
	})
	c := NewRPCClient(srv.URL, time.Second)

	offers, err := c.BookOffers(context.Background(), models.BookPair{
		TakerGets: models.Issue{Currency: "XRP"},
		TakerPays: models.Issue{Currency: "USD", Issuer: "rI"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.True(t, offers[0].TakerGets.IsNative())
	units, err := offers[0].TakerGets.Units()
	require.NoError(t, err)
	require.Equal(t, 100.0, units)
	require.Equal(t, "50", offers[0].TakerPays.Issued.Value)
}

func TestRPCClientTx(t *testing.T) {
	t.Run("ok, api v1 layout", func(t *testing.T) {
		srv := newNode(t, map[string]string{
			"tx": `{"status":"success","TransactionType":"Payment","Account":"rA","Destination":"rB",
				"DestinationTag":7,"Amount":{"currency":"USD","issuer":"rI","value":"10"},
				"SendMax":"11000000","Flags":0,"InvoiceID":"AB","hash":"H1","ledger_index":120,
				"validated":true,"date":1,"meta":{"TransactionResult":"tesSUCCESS","delivered_amount":{"currency":"USD","issuer":"rI","value":"10"}}}`,
		})
		tx, err := NewRPCClient(srv.URL, time.Second).Tx(context.Background(), "H1")
		require.NoError(t, err)
		require.Equal(t, "Payment", tx.TransactionType)
		require.Equal(t, uint32(7), *tx.DestinationTag)
		require.Equal(t, uint32(120), tx.LedgerIndex)
		require.Equal(t, "11000000", tx.SendMax.Drops)
		require.Equal(t, "tesSUCCESS", tx.Result)
		require.NotNil(t, tx.DeliveredAmount)
		require.True(t, tx.Validated)
		require.Equal(t, time.Unix(rippleEpoch+1, 0).UTC(), tx.Date)
	})

	t.Run("ok, api v2 layout with DeliverMax", func(t *testing.T) {
		srv := newNode(t, map[string]string{
			"tx": `{"status":"success","hash":"H2","ledger_index":99,"validated":true,
				"tx_json":{"TransactionType":"Payment","Account":"rA","Destination":"rB","DeliverMax":"5000000"},
				"meta":{"TransactionResult":"tesSUCCESS","delivered_amount":"unavailable"}}`,
		})
		tx, err := NewRPCClient(srv.URL, time.Second).Tx(context.Background(), "H2")
		require.NoError(t, err)
		require.Equal(t, "H2", tx.Hash)
		require.Equal(t, "5000000", tx.Amount.Drops)
		require.Equal(t, uint32(99), tx.LedgerIndex)
		require.Nil(t, tx.DeliveredAmount)
	})

	t.Run("fail, not found", func(t *testing.T) {
		srv := newNode(t, map[string]string{
			"tx": `{"status":"error","error":"txnNotFound","error_message":"Transaction not found."}`,
		})
		_, err := NewRPCClient(srv.URL, time.Second).Tx(context.Background(), "H3")
		require.ErrorIs(t, err, ErrTxNotFound)
	})
}

func TestMultiRPCClientFailover(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)
	up := newNode(t, map[string]string{
		"ledger_current": `{"status":"success","ledger_current_index":1234}`,
		"tx":             `{"status":"error","error":"txnNotFound"}`,
	})

	m, err := NewMultiRPCClient([]string{down.URL, up.URL, up.URL + "/"}, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, m.clients, 2)

	idx, err := m.LedgerCurrent(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(1234), idx)
	require.Equal(t, up.URL, m.BaseURL())

	t.Run("fail, node errors do not rotate", func(t *testing.T) {
		_, err := m.Tx(context.Background(), "H")
		require.ErrorIs(t, err, ErrTxNotFound)
		require.Equal(t, up.URL, m.BaseURL())
	})

	t.Run("fail, empty endpoints", func(t *testing.T) {
		_, err := NewMultiRPCClient([]string{" ", ""}, 1, time.Second)
		require.Error(t, err)
	})
}

func TestClientDryRun(t *testing.T) {
	base := map[string]string{
		"account_info": `{"status":"success","account_data":{"Account":"rA","Sequence":42,"Balance":"1000"},"ledger_current_index":500}`,
		"fee":          `{"status":"success","drops":{"base_fee":"10","open_ledger_fee":"12"}}`,
	}

	t.Run("ok, predicted success records simulate ledger index", func(t *testing.T) {
		results := map[string]string{"simulate": `{"status":"success","engine_result":"tesSUCCESS","ledger_index":501,"applied":false}`}
		for k, v := range base {
			results[k] = v
		}
		c := NewClient(NewRPCClient(newNode(t, results).URL, time.Second), 20, nil)
		res, err := c.DryRun(context.Background(), PaymentTx{TransactionType: "Payment", Account: "rA", Destination: "rB", Amount: models.NativeAmount("1")})
		require.NoError(t, err)
		require.True(t, res.WouldSucceed)
		require.Equal(t, uint32(501), res.LedgerIndex)
		require.Equal(t, "12", res.Fee)
		require.Equal(t, uint32(42), res.Sequence)
	})

	t.Run("ok, falls back to autofilled LastLedgerSequence", func(t *testing.T) {
		results := map[string]string{"simulate": `{"status":"success","engine_result":"tecPATH_DRY","engine_result_message":"Path could not send partial amount."}`}
		for k, v := range base {
			results[k] = v
		}
		c := NewClient(NewRPCClient(newNode(t, results).URL, time.Second), 20, nil)
		res, err := c.DryRun(context.Background(), PaymentTx{TransactionType: "Payment", Account: "rA", Destination: "rB", Amount: models.NativeAmount("1")})
		require.NoError(t, err)
		require.False(t, res.WouldSucceed)
		require.Equal(t, uint32(500+autofillLedgerOffset), res.LedgerIndex)
		require.Equal(t, "tecPATH_DRY", res.EngineResult)
	})
}

func TestPaymentTxJSON(t *testing.T) {
	seq := uint32(0)
	b, err := json.Marshal(PaymentTx{
		TransactionType:    "Payment",
		Account:            "rA",
		Destination:        "rB",
		Amount:             models.IssuedValue("USD", "rI", "1.000000"),
		Flags:              0,
		Sequence:           &seq,
		LastLedgerSequence: 10,
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.NotContains(t, m, "Paths")
	require.NotContains(t, m, "DestinationTag")
	require.Contains(t, m, "Flags")
	require.Equal(t, 0.0, m["Sequence"])
}

func TestDefaultWSEndpoint(t *testing.T) {
	require.Equal(t, "wss://s.altnet.rippletest.net:51233", DefaultWSEndpoint("https://s.altnet.rippletest.net:51234"))
	require.Equal(t, "ws://localhost:6006", DefaultWSEndpoint("http://localhost:6006/"))
	require.Equal(t, "wss://node", DefaultWSEndpoint("wss://node/"))
	require.Equal(t, "", DefaultWSEndpoint("node"))
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"YONASettlement/internal/ledger"
	"YONASettlement/internal/members"
	"YONASettlement/internal/models"
	"YONASettlement/internal/services"
	"YONASettlement/internal/store"

	"github.com/stretchr/testify/require"
)

type fakePayments struct {
	initiate    services.InitiateRequest
	descriptor  services.DescriptorCallback
	ack         [2]string
	accepted    [3]string
	completed   [4]string
	err         error
	duplicate   bool
	statusViews map[string]services.StatusView
}

func (f *fakePayments) result(id string, st models.IntentStatus) (*services.TransitionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.TransitionResult{IntentID: id, Status: st, Duplicate: f.duplicate}, nil
}

func (f *fakePayments) Initiate(_ context.Context, req services.InitiateRequest) (*services.InitiateResult, error) {
	f.initiate = req
	if f.err != nil {
		return nil, f.err
	}
	return &services.InitiateResult{IntentID: "INTENT_1_abc", Status: models.StatusPaymentInitiated, TransactionType: models.TxP2PInterVASP}, nil
}

func (f *fakePayments) GetStatus(_ context.Context, id string) (*services.StatusView, error) {
	v, ok := f.statusViews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", services.ErrIntentNotFound, id)
	}
	return &v, nil
}

func (f *fakePayments) ListUserIntents(_ context.Context, yonaID string) ([]services.StatusView, error) {
	if yonaID == "ghost" {
		return nil, services.ErrUserNotFound
	}
	return []services.StatusView{f.statusViews["INTENT_1_abc"]}, nil
}

func (f *fakePayments) OnDescriptorReceived(_ context.Context, cb services.DescriptorCallback) (*services.TransitionResult, error) {
	f.descriptor = cb
	return f.result(cb.IntentID, models.StatusDescriptorReceived)
}

func (f *fakePayments) OnTemplateAcknowledged(_ context.Context, id, corr string) (*services.TransitionResult, error) {
	f.ack = [2]string{id, corr}
	return f.result(id, models.StatusTemplateReceived)
}

func (f *fakePayments) OnTemplateAccepted(_ context.Context, id, corr, status string) (*services.TransitionResult, error) {
	f.accepted = [3]string{id, corr, status}
	return f.result(id, models.StatusTRAccepted)
}

func (f *fakePayments) OnPaymentComplete(_ context.Context, id, status, hash, msg string) (*services.TransitionResult, error) {
	f.completed = [4]string{id, status, hash, msg}
	if status == services.PaymentFailed {
		return f.result(id, models.StatusFailed)
	}
	return f.result(id, models.StatusPaymentComplete)
}

type fakeDirectory map[string]models.Member

func (d fakeDirectory) Member(_ context.Context, id string) (*models.Member, error) {
	m, ok := d[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

type fakeAddresses struct {
	member string
	err    error
}

func (f *fakeAddresses) GetUserAddresses(_ context.Context, m models.Member, yonaID string) ([]string, error) {
	f.member = m.MemberID
	if f.err != nil {
		return nil, f.err
	}
	return []string{"r" + yonaID}, nil
}

type fakeHistory struct{}

func (fakeHistory) AccountHistory(_ context.Context, account string, _ int) ([]ledger.HistoryEntry, error) {
	if err := ledger.ValidateAddress(account); err != nil {
		return nil, err
	}
	return []ledger.HistoryEntry{{Hash: "ABC", Type: "Payment", Account: account}}, nil
}

type reply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(p *fakePayments, addr *fakeAddresses) *Server {
	h := NewHandler(p, fakeDirectory{"m1": {MemberID: "m1"}}, addr, fakeHistory{}, nil)
	return NewServer(h, nil, nil)
}

func do(t *testing.T, s *Server, method, path string, body any) (int, reply) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	var out reply
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestInitiateEndpoint(t *testing.T) {
	t.Run("ok, decimal amount passed through", func(t *testing.T) {
		p := &fakePayments{}
		code, out := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/payment/initiate", map[string]any{
			"sender_username": "alice", "recipient_username": "bob", "currency": "USD", "amount": 100.25,
		})
		require.Equal(t, http.StatusOK, code)
		require.True(t, out.Success)
		require.Equal(t, "alice", p.initiate.SenderUsername)
		require.Equal(t, "100.25", p.initiate.Amount.String())

		var data initiateResponse
		require.NoError(t, json.Unmarshal(out.Data, &data))
		require.Equal(t, "INTENT_1_abc", data.IntentID)
		require.Equal(t, models.StatusPaymentInitiated, data.Status)
	})

	t.Run("fail, malformed json", func(t *testing.T) {
		code, out := do(t, newTestServer(&fakePayments{}, &fakeAddresses{}), http.MethodPost, "/api/payment/initiate", "{nope")
		require.Equal(t, http.StatusBadRequest, code)
		require.False(t, out.Success)
	})

	errCases := []struct {
		name string
		err  error
		code int
	}{
		{"fail, validation", fmt.Errorf("%w: amount must be positive", services.ErrValidation), http.StatusBadRequest},
		{"fail, funding denied", services.ErrFundingDenied, http.StatusBadRequest},
		{"fail, unknown user", services.ErrUserNotFound, http.StatusNotFound},
		{"fail, member rejected", &members.RejectedError{Member: "m", Path: "/x", Status: 403, Message: "no"}, http.StatusBadGateway},
		{"fail, member unreachable", fmt.Errorf("call: %w", members.ErrMemberUnreachable), http.StatusServiceUnavailable},
		{"fail, member unavailable", services.ErrMemberUnavailable, http.StatusServiceUnavailable},
		{"fail, internal", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePayments{err: tc.err}
			code, out := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/payment/initiate", map[string]any{
				"sender_username": "alice", "recipient_username": "bob", "currency": "USD", "amount": "1",
			})
			require.Equal(t, tc.code, code)
			require.False(t, out.Success)
			require.NotEmpty(t, out.Message)
			require.Empty(t, out.Data)
		})
	}
}

func TestStatusEndpoints(t *testing.T) {
	hash := "ABC"
	p := &fakePayments{statusViews: map[string]services.StatusView{
		"INTENT_1_abc": {IntentID: "INTENT_1_abc", Status: models.StatusPaymentComplete, TxHash: &hash},
	}}
	s := newTestServer(p, &fakeAddresses{})

	t.Run("ok, status", func(t *testing.T) {
		code, out := do(t, s, http.MethodGet, "/api/payment/status/INTENT_1_abc", nil)
		require.Equal(t, http.StatusOK, code)
		var v services.StatusView
		require.NoError(t, json.Unmarshal(out.Data, &v))
		require.Equal(t, models.StatusPaymentComplete, v.Status)
		require.Equal(t, "ABC", *v.TxHash)
	})

	t.Run("fail, unknown intent", func(t *testing.T) {
		code, _ := do(t, s, http.MethodGet, "/api/payment/status/INTENT_9_zzz", nil)
		require.Equal(t, http.StatusNotFound, code)
	})

	t.Run("ok, user intents", func(t *testing.T) {
		code, out := do(t, s, http.MethodGet, "/api/users/alice/intents", nil)
		require.Equal(t, http.StatusOK, code)
		var v []services.StatusView
		require.NoError(t, json.Unmarshal(out.Data, &v))
		require.Len(t, v, 1)
	})

	t.Run("fail, user intents unknown user", func(t *testing.T) {
		code, _ := do(t, s, http.MethodGet, "/api/users/ghost/intents", nil)
		require.Equal(t, http.StatusNotFound, code)
	})
}

func TestWebhookEndpoints(t *testing.T) {
	t.Run("ok, descriptor accepts jws field", func(t *testing.T) {
		p := &fakePayments{}
		code, out := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/descriptor-response", map[string]any{
			"intent_id": "I1", "descriptor_compact_jws": "a.b.c", "originator_member_name": "Alpha",
		})
		require.Equal(t, http.StatusOK, code)
		require.True(t, out.Success)
		require.Equal(t, "a.b.c", p.descriptor.Token)
		require.Equal(t, "Alpha", p.descriptor.OriginatorMemberName)
	})

	t.Run("ok, descriptor accepts token field", func(t *testing.T) {
		p := &fakePayments{}
		code, _ := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/descriptor-response", map[string]any{
			"intent_id": "I1", "descriptor_compact_token": "x.y.z", "originator_member_name": "Alpha",
		})
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "x.y.z", p.descriptor.Token)
	})

	t.Run("fail, descriptor without token never reaches the service", func(t *testing.T) {
		p := &fakePayments{}
		code, _ := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/descriptor-response", map[string]any{
			"intent_id": "I1", "originator_member_name": "Alpha",
		})
		require.Equal(t, http.StatusBadRequest, code)
		require.Empty(t, p.descriptor.IntentID)
	})

	t.Run("fail, descriptor trust failure", func(t *testing.T) {
		p := &fakePayments{err: fmt.Errorf("%w: bad signature", services.ErrTrust)}
		code, _ := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/descriptor-response", map[string]any{
			"intent_id": "I1", "descriptor_compact_jws": "a.b.c", "originator_member_name": "Alpha",
		})
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("ok, template received", func(t *testing.T) {
		p := &fakePayments{}
		code, _ := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/template-received-by-originator", map[string]any{
			"intent_id": "I1", "tr_correlation_id": "TR1", "status": "template_received",
		})
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, [2]string{"I1", "TR1"}, p.ack)
	})

	t.Run("fail, template received with wrong status", func(t *testing.T) {
		p := &fakePayments{}
		code, _ := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/template-received-by-originator", map[string]any{
			"intent_id": "I1", "tr_correlation_id": "TR1", "status": "accepted",
		})
		require.Equal(t, http.StatusBadRequest, code)
		require.Empty(t, p.ack[0])
	})

	t.Run("fail, tr accepted stale", func(t *testing.T) {
		p := &fakePayments{err: services.ErrStaleTransition}
		code, _ := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/tr-accepted", map[string]any{
			"intent_id": "I1", "tr_correlation_id": "TR1", "status": "accepted",
		})
		require.Equal(t, http.StatusConflict, code)
	})

	t.Run("ok, payment complete duplicate", func(t *testing.T) {
		p := &fakePayments{duplicate: true}
		code, out := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/payment-complete", map[string]any{
			"intent_id": "I1", "status": "completed", "transaction_hash": "H",
		})
		require.Equal(t, http.StatusOK, code)
		var data transitionResponse
		require.NoError(t, json.Unmarshal(out.Data, &data))
		require.True(t, data.Duplicate)
		require.Equal(t, models.StatusPaymentComplete, data.Status)
	})

	t.Run("ok, payment failed carries message", func(t *testing.T) {
		p := &fakePayments{}
		code, out := do(t, newTestServer(p, &fakeAddresses{}), http.MethodPost, "/api/webhooks/payment-complete", map[string]any{
			"intent_id": "I1", "status": "failed", "message": "insufficient liquidity",
		})
		require.Equal(t, http.StatusOK, code)
		var data transitionResponse
		require.NoError(t, json.Unmarshal(out.Data, &data))
		require.Equal(t, "insufficient liquidity", data.Error)
		require.Equal(t, [4]string{"I1", "failed", "", "insufficient liquidity"}, p.completed)
	})
}

func TestMemberAndLedgerEndpoints(t *testing.T) {
	t.Run("ok, addresses proxied", func(t *testing.T) {
		addr := &fakeAddresses{}
		code, out := do(t, newTestServer(&fakePayments{}, addr), http.MethodPost, "/api/member/get-user-addresses", map[string]any{
			"member_id": "m1", "yona_id": "alice",
		})
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "m1", addr.member)
		var data userAddressesResponse
		require.NoError(t, json.Unmarshal(out.Data, &data))
		require.Equal(t, []string{"ralice"}, data.Addresses)
	})

	t.Run("fail, unknown member", func(t *testing.T) {
		code, _ := do(t, newTestServer(&fakePayments{}, &fakeAddresses{}), http.MethodPost, "/api/member/get-user-addresses", map[string]any{
			"member_id": "nope", "yona_id": "alice",
		})
		require.Equal(t, http.StatusNotFound, code)
	})

	t.Run("fail, missing fields", func(t *testing.T) {
		code, _ := do(t, newTestServer(&fakePayments{}, &fakeAddresses{}), http.MethodPost, "/api/member/get-user-addresses", map[string]any{
			"member_id": "m1",
		})
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("ok, account history", func(t *testing.T) {
		code, out := do(t, newTestServer(&fakePayments{}, &fakeAddresses{}), http.MethodGet,
			"/api/ledger/accounts/rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh/transactions", nil)
		require.Equal(t, http.StatusOK, code)
		var data historyResponse
		require.NoError(t, json.Unmarshal(out.Data, &data))
		require.Len(t, data.Transactions, 1)
	})

	t.Run("fail, account history bad address", func(t *testing.T) {
		code, _ := do(t, newTestServer(&fakePayments{}, &fakeAddresses{}), http.MethodGet, "/api/ledger/accounts/xyz/transactions", nil)
		require.Equal(t, http.StatusBadRequest, code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&fakePayments{}, &fakeAddresses{})

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "yona_http_requests_total")
}

func TestCORS(t *testing.T) {
	s := NewServer(NewHandler(&fakePayments{}, fakeDirectory{}, &fakeAddresses{}, fakeHistory{}, nil), []string{"https://app.yona.example"}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/payment/initiate", nil)
	req.Header.Set("Origin", "https://app.yona.example")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.yona.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

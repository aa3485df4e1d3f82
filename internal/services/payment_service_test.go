package services

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"YONASettlement/internal/descriptor"
	"YONASettlement/internal/events"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/locks"
	"YONASettlement/internal/members"
	"YONASettlement/internal/models"
	"YONASettlement/internal/settlement"
	"YONASettlement/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	senderAccount      = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	beneficiaryAccount = "rrrrrrrrrrrrrrrrrrrrrhoLvTp"
	usdIssuer          = "rUSDIssuer"
)

// memberServer plays both member institutions.
type memberServer struct {
	mu          sync.Mutex
	descriptors []members.DescriptorRequest
	pushes      []members.TemplatePush
	denyFunding bool
	rejectDesc  bool
	srv         *httptest.Server
}

func newMemberServer(t *testing.T) *memberServer {
	ms := &memberServer{}
	ms.srv = httptest.NewServer(http.HandlerFunc(ms.handle))
	t.Cleanup(ms.srv.Close)
	return ms
}

func (ms *memberServer) handle(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	switch r.URL.Path {
	case "/api/member/funding-decision":
		if ms.denyFunding {
			_, _ = w.Write([]byte(`{"success":false,"message":"insufficient balance"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"send_asset":{"code":"USD","issuer":"` + usdIssuer + `"},"send_account":"` + senderAccount + `"}`))
	case "/api/member/request-descriptor":
		if ms.rejectDesc {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"message":"unknown beneficiary"}`))
			return
		}
		var req members.DescriptorRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		ms.descriptors = append(ms.descriptors, req)
		_, _ = w.Write([]byte(`{"success":true}`))
	case "/api/member/receive-template":
		var push members.TemplatePush
		_ = json.NewDecoder(r.Body).Decode(&push)
		ms.pushes = append(ms.pushes, push)
		_, _ = w.Write([]byte(`{"success":true,"data":{"intent_id":"` + push.IntentID + `","tr_correlation_id":"corr-1"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (ms *memberServer) pushCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.pushes)
}

type fakeDryRun struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeDryRun) DryRun(_ context.Context, tx ledger.PaymentTx) (*ledger.DryRunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return &ledger.DryRunResult{WouldSucceed: false, EngineResult: "tecPATH_DRY"}, nil
	}
	return &ledger.DryRunResult{WouldSucceed: true, EngineResult: ledger.ResultSuccess, LedgerIndex: 1000, Fee: "12"}, nil
}

func (f *fakeDryRun) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

type fakeTxs struct {
	txs   map[string]models.LedgerTransaction
	calls int
}

func (f *fakeTxs) GetTransaction(_ context.Context, hash string) (*models.LedgerTransaction, error) {
	f.calls++
	tx, ok := f.txs[hash]
	if !ok {
		return nil, ledger.ErrTxNotFound
	}
	return &tx, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	svc     *PaymentService
	store   *store.Memory
	members *memberServer
	dryRun  *fakeDryRun
	txs     *fakeTxs
	events  *recordingPublisher
	key     ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	keys, err := descriptor.PublicKeySet(pub, "beta-1")
	require.NoError(t, err)

	ms := newMemberServer(t)
	st := store.NewMemory()
	st.AddUser(models.User{ID: "u1", YonaID: "YONA-ALICE", Username: "alice", MemberID: "m-alpha", AccountType: models.AccountUser})
	st.AddUser(models.User{ID: "u2", YonaID: "YONA-BOB", Username: "bob", MemberID: "m-beta", AccountType: models.AccountUser})
	st.AddUser(models.User{ID: "u3", YonaID: "YONA-EVE", Username: "eve", AccountType: models.AccountUser})
	st.AddMember(models.Member{MemberID: "m-alpha", MemberName: "Alpha", APIEndpoint: ms.srv.URL, BusinessType: models.BusinessVASP, BpsPolicy: 50})
	st.AddMember(models.Member{MemberID: "m-beta", MemberName: "Beta", APIEndpoint: ms.srv.URL, BusinessType: models.BusinessVASP, BpsPolicy: 25, JWKS: keys})
	st.AddSupportedAsset(models.SupportedAsset{MemberID: "m-alpha", Currency: "USD", AssetCode: "USD", Issuer: usdIssuer})
	st.AddSupportedAsset(models.SupportedAsset{MemberID: "m-beta", Currency: "USD", AssetCode: "USD", Issuer: usdIssuer})

	dry := &fakeDryRun{}
	txs := &fakeTxs{txs: map[string]models.LedgerTransaction{}}
	pub2 := &recordingPublisher{}
	svc := &PaymentService{
		Store:     st,
		Directory: st,
		Members:   members.NewClient(2*time.Second, nil),
		Verifier:  descriptor.NewVerifier(),
		Simulator: &settlement.Simulator{Ledger: dry},
		Ledger:    txs,
		Locks:     locks.NewLocalLocker(),
		Events:    pub2,
		PublicURL: "https://yona.example",
	}
	return &fixture{svc: svc, store: st, members: ms, dryRun: dry, txs: txs, events: pub2, key: priv}
}

func (f *fixture) initiate(t *testing.T) string {
	t.Helper()
	res, err := f.svc.Initiate(context.Background(), InitiateRequest{
		SenderUsername:    "alice",
		RecipientUsername: "bob",
		Currency:          "USD",
		Amount:            decimal.RequireFromString("100"),
	})
	require.NoError(t, err)
	return res.IntentID
}

func (f *fixture) token(t *testing.T, intentID, descriptorID string) string {
	t.Helper()
	tok, err := descriptor.Sign(descriptor.Payload{
		IntentID:           intentID,
		InvoiceID:          "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789",
		BeneficiaryAccount: beneficiaryAccount,
		DestinationTag:     0,
		DescriptorID:       descriptorID,
		ReceiveAsset:       models.Asset{Code: "USD", Issuer: usdIssuer},
		ReceiveAmount:      decimal.RequireFromString("100"),
	}, f.key, "beta-1")
	require.NoError(t, err)
	return tok
}

func (f *fixture) status(t *testing.T, intentID string) *models.PaymentIntent {
	t.Helper()
	intent, err := f.store.GetIntent(context.Background(), intentID)
	require.NoError(t, err)
	return intent
}

func TestPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.initiate(t)
	require.True(t, strings.HasPrefix(id, "INTENT_"))
	require.Equal(t, models.StatusPaymentInitiated, f.status(t, id).Status)
	require.Len(t, f.members.descriptors, 1)
	require.Equal(t, "https://yona.example/api/webhooks/descriptor-response", f.members.descriptors[0].CallbackURL)
	require.Equal(t, "Alpha", f.members.descriptors[0].OriginatorMemberName)
	require.Equal(t, models.TxP2PInterVASP, f.members.descriptors[0].TransactionType)

	tok := f.token(t, id, "desc-1")
	res, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: tok, OriginatorMemberName: "Alpha"})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Equal(t, models.StatusDescriptorReceived, res.Status)

	intent := f.status(t, id)
	require.NotNil(t, intent.TemplateID)
	require.Equal(t, beneficiaryAccount, *intent.BeneficiaryAccount)
	require.NotNil(t, intent.DestinationTag)
	require.Equal(t, uint32(0), *intent.DestinationTag)

	require.Equal(t, 1, f.members.pushCount())
	push := f.members.pushes[0]
	require.Equal(t, tok, push.DescriptorCompactJWS)
	require.Equal(t, uint32(1010), push.Template.LastLedgerSequence)
	require.NotNil(t, push.Template.Sequence)
	require.Zero(t, *push.Template.Sequence)
	require.Equal(t, "100.500000", push.Template.SendMax.Issued.Value)
	require.Equal(t, "https://yona.example/api/webhooks/template-received-by-originator", push.CallbackURL)

	t.Run("ok, descriptor redelivery pushes the same template", func(t *testing.T) {
		res, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: tok, OriginatorMemberName: "Alpha"})
		require.NoError(t, err)
		require.True(t, res.Duplicate)
		require.Equal(t, 2, f.members.pushCount())
		require.Equal(t, *intent.TemplateID, *f.status(t, id).TemplateID)
	})

	res, err = f.svc.OnTemplateAcknowledged(ctx, id, "corr-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusTemplateReceived, res.Status)

	res, err = f.svc.OnTemplateAcknowledged(ctx, id, "corr-1")
	require.NoError(t, err)
	require.True(t, res.Duplicate)

	res, err = f.svc.OnTemplateAccepted(ctx, id, "corr-1", "accepted")
	require.NoError(t, err)
	require.Equal(t, models.StatusTRAccepted, res.Status)

	tmpl, err := f.store.GetTemplate(ctx, *intent.TemplateID)
	require.NoError(t, err)
	flags := uint32(0)
	sendMax := tmpl.SendMax
	f.txs.txs["HASH1"] = models.LedgerTransaction{
		Hash:            "HASH1",
		TransactionType: "Payment",
		Account:         tmpl.Account,
		Destination:     tmpl.Destination,
		DestinationTag:  tmpl.DestinationTag,
		Flags:           &flags,
		LedgerIndex:     1003,
		InvoiceID:       strings.ToLower(tmpl.InvoiceID),
		Amount:          tmpl.Amount,
		SendMax:         &sendMax,
		Validated:       true,
	}

	res, err = f.svc.OnPaymentComplete(ctx, id, "completed", "HASH1", "")
	require.NoError(t, err)
	require.Equal(t, models.StatusPaymentComplete, res.Status)

	view, err := f.svc.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StatusPaymentComplete, view.Status)
	require.Equal(t, "HASH1", *view.TxHash)
	require.NotNil(t, view.MatchTemplate)
	require.True(t, *view.MatchTemplate)

	t.Run("ok, completion redelivery changes nothing", func(t *testing.T) {
		res, err := f.svc.OnPaymentComplete(ctx, id, "completed", "HASH2", "")
		require.NoError(t, err)
		require.True(t, res.Duplicate)
		require.Equal(t, 1, f.txs.calls)
		require.Equal(t, "HASH1", *f.status(t, id).TxHash)
	})

	t.Run("fail, failed after completion", func(t *testing.T) {
		_, err := f.svc.OnPaymentComplete(ctx, id, "failed", "", "late")
		require.ErrorIs(t, err, ErrStaleTransition)
	})

	t.Run("ok, listed for both parties", func(t *testing.T) {
		for _, who := range []string{"YONA-ALICE", "YONA-BOB"} {
			list, err := f.svc.ListUserIntents(ctx, who)
			require.NoError(t, err)
			require.Len(t, list, 1)
			require.Equal(t, id, list[0].IntentID)
		}
	})

	var statuses []models.IntentStatus
	for _, e := range f.events.events {
		statuses = append(statuses, e.Status)
	}
	require.Equal(t, []models.IntentStatus{
		models.StatusPaymentInitiated,
		models.StatusDescriptorReceived,
		models.StatusTemplateReceived,
		models.StatusTRAccepted,
		models.StatusPaymentComplete,
	}, statuses)
}

func TestInitiateValidation(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("10")

	cases := []struct {
		name string
		req  InitiateRequest
		want error
	}{
		{"fail, missing currency", InitiateRequest{SenderUsername: "alice", RecipientUsername: "bob", Amount: amount}, ErrValidation},
		{"fail, zero amount", InitiateRequest{SenderUsername: "alice", RecipientUsername: "bob", Currency: "USD"}, ErrValidation},
		{"fail, self payment", InitiateRequest{SenderUsername: "alice", RecipientUsername: "alice", Currency: "USD", Amount: amount}, ErrValidation},
		{"fail, unknown recipient", InitiateRequest{SenderUsername: "alice", RecipientUsername: "zed", Currency: "USD", Amount: amount}, ErrUserNotFound},
		{"fail, recipient without member", InitiateRequest{SenderUsername: "alice", RecipientUsername: "eve", Currency: "USD", Amount: amount}, ErrValidation},
		{"fail, unsupported currency", InitiateRequest{SenderUsername: "alice", RecipientUsername: "bob", Currency: "EUR", Amount: amount}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Initiate(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, f.members.descriptors)
		})
	}
}

func TestInitiateCounterpartyFailures(t *testing.T) {
	ctx := context.Background()
	req := InitiateRequest{SenderUsername: "alice", RecipientUsername: "bob", Currency: "USD", Amount: decimal.RequireFromString("5")}

	t.Run("fail, funding denied", func(t *testing.T) {
		f := newFixture(t)
		f.members.denyFunding = true
		_, err := f.svc.Initiate(ctx, req)
		require.ErrorIs(t, err, ErrFundingDenied)
		require.Contains(t, err.Error(), "insufficient balance")
	})

	t.Run("fail, descriptor rejected leaves no intent", func(t *testing.T) {
		f := newFixture(t)
		f.members.rejectDesc = true
		_, err := f.svc.Initiate(ctx, req)
		require.ErrorIs(t, err, members.ErrMemberRejected)
		list, err := f.svc.ListUserIntents(ctx, "YONA-ALICE")
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("fail, beneficiary unreachable", func(t *testing.T) {
		f := newFixture(t)
		f.members.srv.Close()
		_, err := f.svc.Initiate(ctx, req)
		require.True(t, errors.Is(err, members.ErrMemberUnreachable))
	})
}

func TestDescriptorTrust(t *testing.T) {
	ctx := context.Background()

	t.Run("fail, originator name mismatch", func(t *testing.T) {
		f := newFixture(t)
		id := f.initiate(t)
		_, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: f.token(t, id, "d1"), OriginatorMemberName: "Mallory"})
		require.ErrorIs(t, err, ErrTrust)
		require.Equal(t, models.StatusPaymentInitiated, f.status(t, id).Status)
	})

	t.Run("fail, signed by another key", func(t *testing.T) {
		f := newFixture(t)
		id := f.initiate(t)
		_, other, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		f.key = other
		_, err = f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: f.token(t, id, "d1"), OriginatorMemberName: "Alpha"})
		require.ErrorIs(t, err, ErrTrust)
		require.ErrorIs(t, err, descriptor.ErrInvalidToken)
		require.Equal(t, models.StatusPaymentInitiated, f.status(t, id).Status)
	})

	t.Run("fail, token for another intent", func(t *testing.T) {
		f := newFixture(t)
		id := f.initiate(t)
		_, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: f.token(t, "INTENT_1_other", "d1"), OriginatorMemberName: "Alpha"})
		require.ErrorIs(t, err, ErrTrust)
	})

	t.Run("fail, unknown intent", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: "INTENT_0_x", Token: "a.b.c", OriginatorMemberName: "Alpha"})
		require.ErrorIs(t, err, ErrIntentNotFound)
	})
}

func TestDescriptorSimulationRecovery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.initiate(t)
	tok := f.token(t, id, "d1")

	f.dryRun.setFail(true)
	_, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: tok, OriginatorMemberName: "Alpha"})
	require.ErrorIs(t, err, settlement.ErrDryRunFailed)
	intent := f.status(t, id)
	require.Equal(t, models.StatusDescriptorReceived, intent.Status)
	require.Nil(t, intent.TemplateID)
	require.Zero(t, f.members.pushCount())

	f.dryRun.setFail(false)
	res, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: tok, OriginatorMemberName: "Alpha"})
	require.NoError(t, err)
	require.Equal(t, models.StatusDescriptorReceived, res.Status)
	require.NotNil(t, f.status(t, id).TemplateID)
	require.Equal(t, 1, f.members.pushCount())

	t.Run("fail, different descriptor after the first", func(t *testing.T) {
		_, err := f.svc.OnDescriptorReceived(ctx, DescriptorCallback{IntentID: id, Token: f.token(t, id, "d2"), OriginatorMemberName: "Alpha"})
		require.ErrorIs(t, err, ErrStaleTransition)
	})
}

func (f *fixture) toTemplateReceived(t *testing.T) string {
	t.Helper()
	id := f.initiate(t)
	_, err := f.svc.OnDescriptorReceived(context.Background(), DescriptorCallback{IntentID: id, Token: f.token(t, id, "d1"), OriginatorMemberName: "Alpha"})
	require.NoError(t, err)
	_, err = f.svc.OnTemplateAcknowledged(context.Background(), id, "corr-1")
	require.NoError(t, err)
	return id
}

func TestOutOfOrderCallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("fail, acceptance before template", func(t *testing.T) {
		f := newFixture(t)
		id := f.initiate(t)
		_, err := f.svc.OnTemplateAccepted(ctx, id, "corr-1", "accepted")
		require.ErrorIs(t, err, ErrStaleTransition)
		_, err = f.svc.OnTemplateAcknowledged(ctx, id, "corr-1")
		require.ErrorIs(t, err, ErrStaleTransition)
		_, err = f.svc.OnPaymentComplete(ctx, id, "completed", "H", "")
		require.ErrorIs(t, err, ErrStaleTransition)
		require.Equal(t, models.StatusPaymentInitiated, f.status(t, id).Status)
	})

	t.Run("fail, acceptance with wrong status value", func(t *testing.T) {
		f := newFixture(t)
		id := f.toTemplateReceived(t)
		_, err := f.svc.OnTemplateAccepted(ctx, id, "corr-1", "rejected")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("fail, completed without hash", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.OnPaymentComplete(ctx, "INTENT_1_a", "completed", "", "")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("fail, unknown completion status", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.OnPaymentComplete(ctx, "INTENT_1_a", "pending", "", "")
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestCorrelationMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("ok, overwritten by default", func(t *testing.T) {
		f := newFixture(t)
		id := f.toTemplateReceived(t)
		_, err := f.svc.OnTemplateAccepted(ctx, id, "corr-2", "accepted")
		require.NoError(t, err)
		require.Equal(t, "corr-2", *f.status(t, id).TRCorrelationID)
	})

	t.Run("fail, rejected when strict", func(t *testing.T) {
		f := newFixture(t)
		f.svc.StrictCorrelation = true
		id := f.toTemplateReceived(t)
		_, err := f.svc.OnTemplateAccepted(ctx, id, "corr-2", "accepted")
		require.ErrorIs(t, err, ErrCorrelationMismatch)
		require.Equal(t, models.StatusTemplateReceived, f.status(t, id).Status)
	})
}

func TestPaymentFailureAndUnknownMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("ok, failure recorded once", func(t *testing.T) {
		f := newFixture(t)
		id := f.toTemplateReceived(t)
		res, err := f.svc.OnPaymentComplete(ctx, id, "failed", "", "tecUNFUNDED_PAYMENT")
		require.NoError(t, err)
		require.Equal(t, models.StatusFailed, res.Status)
		require.Equal(t, "tecUNFUNDED_PAYMENT", *f.status(t, id).FailureReason)

		res, err = f.svc.OnPaymentComplete(ctx, id, "failed", "", "again")
		require.NoError(t, err)
		require.True(t, res.Duplicate)
		require.Equal(t, "tecUNFUNDED_PAYMENT", *f.status(t, id).FailureReason)
	})

	t.Run("ok, ledger lookup failure leaves match unknown", func(t *testing.T) {
		f := newFixture(t)
		id := f.toTemplateReceived(t)
		_, err := f.svc.OnTemplateAccepted(ctx, id, "corr-1", "accepted")
		require.NoError(t, err)

		res, err := f.svc.OnPaymentComplete(ctx, id, "completed", "MISSING", "")
		require.NoError(t, err)
		require.Equal(t, models.StatusPaymentComplete, res.Status)
		intent := f.status(t, id)
		require.Nil(t, intent.MatchTemplate)
		require.Equal(t, "MISSING", *intent.TxHash)
	})

	t.Run("ok, mismatching payment still completes with reasons", func(t *testing.T) {
		f := newFixture(t)
		id := f.toTemplateReceived(t)
		_, err := f.svc.OnTemplateAccepted(ctx, id, "corr-1", "accepted")
		require.NoError(t, err)

		tmpl, err := f.store.GetTemplate(ctx, *f.status(t, id).TemplateID)
		require.NoError(t, err)
		sendMax := tmpl.SendMax
		f.txs.txs["HASH3"] = models.LedgerTransaction{
			Hash:            "HASH3",
			TransactionType: "Payment",
			Account:         tmpl.Account,
			Destination:     "rOtherDestination",
			DestinationTag:  tmpl.DestinationTag,
			LedgerIndex:     tmpl.LedgerIndex + 1,
			InvoiceID:       tmpl.InvoiceID,
			Amount:          tmpl.Amount,
			SendMax:         &sendMax,
			Validated:       true,
		}

		res, err := f.svc.OnPaymentComplete(ctx, id, "completed", "HASH3", "")
		require.NoError(t, err)
		require.Equal(t, models.StatusPaymentComplete, res.Status)

		view, err := f.svc.GetStatus(ctx, id)
		require.NoError(t, err)
		require.Equal(t, models.StatusPaymentComplete, view.Status)
		require.NotNil(t, view.MatchTemplate)
		require.False(t, *view.MatchTemplate)
		require.Len(t, view.MismatchReasons, 1)
		require.Contains(t, view.MismatchReasons[0], "destination rOtherDestination")
		require.Equal(t, view.MismatchReasons, f.status(t, id).MismatchReasons)
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"YONASettlement/internal/descriptor"
	"YONASettlement/internal/events"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/locks"
	"YONASettlement/internal/members"
	"YONASettlement/internal/models"
	"YONASettlement/internal/settlement"
	"YONASettlement/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrValidation          = errors.New("invalid request")
	ErrTrust               = errors.New("untrusted callback")
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberUnavailable   = errors.New("member unavailable")
	ErrFundingDenied       = errors.New("funding denied")
	ErrStaleTransition     = errors.New("stale transition")
	ErrCorrelationMismatch = errors.New("tr correlation id mismatch")
)

const (
	webhookDescriptor       = "descriptor-response"
	webhookTemplateReceived = "template-received-by-originator"
)

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yona_intent_transitions_total",
		Help: "Payment intent status transitions",
	}, []string{"from", "to"})
	matchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yona_template_matches_total",
		Help: "Completed payments compared against their template",
	}, []string{"outcome"})
)

var tracer = otel.Tracer("YONASettlement/services")

type MemberAPI interface {
	CheckAvailability(ctx context.Context, m models.Member) error
	RequestFundingDecision(ctx context.Context, m models.Member, req members.FundingDecisionRequest) (*members.FundingDecision, error)
	RequestDescriptor(ctx context.Context, m models.Member, req members.DescriptorRequest) error
	SendTemplate(ctx context.Context, m models.Member, push members.TemplatePush) (*members.TemplateAck, error)
}

type TokenVerifier interface {
	Verify(token string, keys models.KeySet) (*descriptor.Payload, error)
}

type TemplateSimulator interface {
	Simulate(ctx context.Context, req settlement.SimulationRequest) (*settlement.Simulation, error)
}

type TransactionFetcher interface {
	GetTransaction(ctx context.Context, hash string) (*models.LedgerTransaction, error)
}

type IssuerResolver interface {
	IssuerFor(ctx context.Context, code, memberID string) (string, error)
}

// PaymentService owns every payment intent mutation.
type PaymentService struct {
	Store             store.IntentStore
	Directory         store.Directory
	Members           MemberAPI
	Verifier          TokenVerifier
	Simulator         TemplateSimulator
	Ledger            TransactionFetcher
	Issuers           IssuerResolver
	Locks             locks.Locker
	Events            events.Publisher
	PublicURL         string
	StrictCorrelation bool
	Logger            *zap.Logger
}

type InitiateRequest struct {
	SenderUsername    string
	RecipientUsername string
	Currency          string
	Amount            decimal.Decimal
}

type InitiateResult struct {
	IntentID        string
	Status          models.IntentStatus
	TransactionType models.TransactionType
}

// TransitionResult reports where an intent ended up. Duplicate is set when the callback
// had already been applied and nothing changed.
type TransitionResult struct {
	IntentID  string
	Status    models.IntentStatus
	Duplicate bool
}

type StatusView struct {
	IntentID        string              `json:"intent_id"`
	Status          models.IntentStatus `json:"status"`
	TxHash          *string             `json:"tx_hash"`
	CreatedAt       time.Time           `json:"created_at"`
	MatchTemplate   *bool               `json:"match_template"`
	MismatchReasons []string            `json:"template_mismatch_reasons,omitempty"`
	FailureReason   *string             `json:"failure_reason,omitempty"`
}

// Initiate validates both parties, obtains the originator's funding decision, records the
// intent and asks the beneficiary for a descriptor. The descriptor arrives asynchronously.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	ctx, span := tracer.Start(ctx, "services.Initiate")
	defer span.End()

	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.SenderUsername == "" || req.RecipientUsername == "" || req.Currency == "" {
		return nil, fmt.Errorf("%w: sender, recipient and currency are required", ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.SenderUsername == req.RecipientUsername {
		return nil, fmt.Errorf("%w: cannot send to yourself", ErrValidation)
	}

	sender, err := s.user(ctx, req.SenderUsername)
	if err != nil {
		return nil, err
	}
	recipient, err := s.user(ctx, req.RecipientUsername)
	if err != nil {
		return nil, err
	}
	if sender.MemberID == "" || recipient.MemberID == "" {
		return nil, fmt.Errorf("%w: both users need a member institution", ErrValidation)
	}

	originator, err := s.member(ctx, sender.MemberID)
	if err != nil {
		return nil, err
	}
	beneficiary, err := s.member(ctx, recipient.MemberID)
	if err != nil {
		return nil, err
	}
	for _, m := range []*models.Member{originator, beneficiary} {
		ok, err := s.Directory.SupportsCurrency(ctx, m.MemberID, req.Currency)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: member %s does not support %s", ErrValidation, m.MemberName, req.Currency)
		}
		if err := s.Members.CheckAvailability(ctx, *m); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMemberUnavailable, err)
		}
	}

	txType := Classify(*sender, *recipient, *originator, *beneficiary)
	span.SetAttributes(attribute.String("transaction_type", string(txType)))

	decision, err := s.Members.RequestFundingDecision(ctx, *originator, members.FundingDecisionRequest{
		OriginatorYonaID: sender.YonaID,
		Currency:         req.Currency,
		Amount:           req.Amount.String(),
		Chain:            models.ChainXRPL,
		TransactionType:  txType,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Success || decision.SendAsset == nil || decision.SendAsset.Code == "" || decision.SendAccount == "" {
		msg := decision.Message
		if msg == "" {
			msg = "originator declined to fund the payment"
		}
		return nil, fmt.Errorf("%w: %s", ErrFundingDenied, msg)
	}
	if err := ledger.ValidateAddress(decision.SendAccount); err != nil {
		return nil, fmt.Errorf("%w: send account: %w", ErrFundingDenied, err)
	}
	sendAsset, err := s.withIssuer(ctx, *decision.SendAsset, originator.MemberID)
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		IntentID:            newIntentID(time.Now()),
		OriginatorYonaID:    sender.YonaID,
		OriginatorMemberID:  originator.MemberID,
		OriginatorAccount:   decision.SendAccount,
		BeneficiaryYonaID:   recipient.YonaID,
		BeneficiaryMemberID: beneficiary.MemberID,
		Currency:            req.Currency,
		SendAmount:          req.Amount,
		SendAsset:           sendAsset,
		Chain:               models.ChainXRPL,
		TransactionType:     txType,
		Status:              models.StatusPaymentInitiated,
	}
	if err := s.Store.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}
	span.SetAttributes(attribute.String("intent_id", intent.IntentID))
	s.publish(ctx, events.StatusChanged(intent.IntentID, "", models.StatusPaymentInitiated))
	transitions.WithLabelValues("", string(models.StatusPaymentInitiated)).Inc()

	err = s.Members.RequestDescriptor(ctx, *beneficiary, members.DescriptorRequest{
		IntentID:             intent.IntentID,
		OriginatorMemberName: originator.MemberName,
		BeneficiaryYonaID:    recipient.YonaID,
		Currency:             req.Currency,
		Amount:               req.Amount.String(),
		TransactionType:      txType,
		Chain:                models.ChainXRPL,
		CallbackURL:          members.CallbackURL(s.PublicURL, webhookDescriptor),
	})
	if err != nil {
		s.discard(ctx, intent.IntentID, err)
		return nil, err
	}

	s.logger().Info("payment initiated",
		zap.String("intent_id", intent.IntentID),
		zap.String("transaction_type", string(txType)),
		zap.String("originator_member", originator.MemberName),
		zap.String("beneficiary_member", beneficiary.MemberName),
	)
	return &InitiateResult{IntentID: intent.IntentID, Status: intent.Status, TransactionType: txType}, nil
}

// discard removes an intent whose descriptor request failed, unless a callback already moved it on.
func (s *PaymentService) discard(ctx context.Context, intentID string, cause error) {
	unlock, err := s.Locks.Lock(ctx, intentID)
	if err != nil {
		s.logger().Error("lock for intent cleanup failed", zap.String("intent_id", intentID), zap.Error(err))
		return
	}
	defer unlock()

	err = s.Store.DeleteIntent(ctx, intentID, models.StatusPaymentInitiated)
	switch {
	case err == nil:
		s.logger().Warn("descriptor request failed, intent removed", zap.String("intent_id", intentID), zap.Error(cause))
	case errors.Is(err, store.ErrConflict):
		s.logger().Warn("descriptor request failed after intent advanced, keeping it", zap.String("intent_id", intentID), zap.Error(cause))
	default:
		s.logger().Error("intent cleanup failed", zap.String("intent_id", intentID), zap.Error(err))
	}
}

func (s *PaymentService) GetStatus(ctx context.Context, intentID string) (*StatusView, error) {
	if intentID == "" {
		return nil, fmt.Errorf("%w: intent id is required", ErrValidation)
	}
	intent, err := s.intent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	v := statusView(*intent)
	return &v, nil
}

// ListUserIntents returns intents where yonaID is either party, newest first.
func (s *PaymentService) ListUserIntents(ctx context.Context, yonaID string) ([]StatusView, error) {
	if yonaID == "" {
		return nil, fmt.Errorf("%w: yona id is required", ErrValidation)
	}
	intents, err := s.Store.ListUserIntents(ctx, yonaID)
	if err != nil {
		return nil, err
	}
	out := make([]StatusView, 0, len(intents))
	for _, i := range intents {
		out = append(out, statusView(i))
	}
	return out, nil
}

func statusView(i models.PaymentIntent) StatusView {
	return StatusView{
		IntentID:        i.IntentID,
		Status:          i.Status,
		TxHash:          i.TxHash,
		CreatedAt:       i.CreatedAt,
		MatchTemplate:   i.MatchTemplate,
		MismatchReasons: i.MismatchReasons,
		FailureReason:   i.FailureReason,
	}
}

func (s *PaymentService) user(ctx context.Context, username string) (*models.User, error) {
	u, err := s.Directory.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return u, err
}

func (s *PaymentService) member(ctx context.Context, memberID string) (*models.Member, error) {
	m, err := s.Directory.Member(ctx, memberID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	return m, err
}

func (s *PaymentService) intent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	i, err := s.Store.GetIntent(ctx, intentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
	}
	return i, err
}

// withIssuer fills a missing issuer for an issued asset from the member's supported assets.
func (s *PaymentService) withIssuer(ctx context.Context, a models.Asset, memberID string) (models.Asset, error) {
	if a.IsNative() || a.Issuer != "" {
		return a, nil
	}
	if s.Issuers == nil {
		return a, fmt.Errorf("%w: %s", settlement.ErrMissingIssuer, a.Code)
	}
	issuer, err := s.Issuers.IssuerFor(ctx, a.Code, memberID)
	if err != nil {
		return a, fmt.Errorf("%w: %w", settlement.ErrMissingIssuer, err)
	}
	a.Issuer = issuer
	return a, nil
}

func (s *PaymentService) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		s.logger().Warn("publish intent event failed",
			zap.String("intent_id", e.IntentID),
			zap.String("type", e.Type),
			zap.Error(err),
		)
	}
}

func (s *PaymentService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"YONASettlement/internal/descriptor"
	"YONASettlement/internal/events"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/members"
	"YONASettlement/internal/models"
	"YONASettlement/internal/pricing"
	"YONASettlement/internal/settlement"
	"YONASettlement/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	TRStatusAccepted = "accepted"
)

type DescriptorCallback struct {
	IntentID             string
	Token                string
	OriginatorMemberName string
}

// templateDelivery is a push to the originator prepared under the intent lock and sent after it.
type templateDelivery struct {
	intent      models.PaymentIntent
	template    models.PaymentTemplate
	originator  models.Member
	beneficiary models.Member
}

// locked runs fn with the intent lock held.
func (s *PaymentService) locked(ctx context.Context, intentID string, fn func(*models.PaymentIntent) error) error {
	unlock, err := s.Locks.Lock(ctx, intentID)
	if err != nil {
		return fmt.Errorf("lock intent %s: %w", intentID, err)
	}
	defer unlock()

	intent, err := s.intent(ctx, intentID)
	if err != nil {
		return err
	}
	return fn(intent)
}

// advance writes u and moves intent to status, guarded by the status it was read at.
func (s *PaymentService) advance(ctx context.Context, intent *models.PaymentIntent, to models.IntentStatus, u store.IntentUpdate) error {
	from := intent.Status
	u.Status = &to
	if err := s.Store.UpdateIntent(ctx, intent.IntentID, from, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: %w", ErrStaleTransition, err)
		}
		return err
	}
	u.Apply(intent)
	transitions.WithLabelValues(string(from), string(to)).Inc()
	s.publish(ctx, events.StatusChanged(intent.IntentID, from, to))
	s.logger().Info("intent advanced",
		zap.String("intent_id", intent.IntentID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func stale(intent *models.PaymentIntent, want models.IntentStatus) error {
	return fmt.Errorf("%w: intent %s is %s, expected %s", ErrStaleTransition, intent.IntentID, intent.Status, want)
}

// OnDescriptorReceived verifies the beneficiary's signed descriptor, prices and simulates the
// payment and hands the resulting template to the originator.
func (s *PaymentService) OnDescriptorReceived(ctx context.Context, cb DescriptorCallback) (*TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "services.OnDescriptorReceived")
	defer span.End()
	span.SetAttributes(attribute.String("intent_id", cb.IntentID))

	if cb.IntentID == "" || cb.Token == "" || cb.OriginatorMemberName == "" {
		return nil, fmt.Errorf("%w: intent_id, descriptor token and originator_member_name are required", ErrValidation)
	}

	var (
		result   *TransitionResult
		delivery *templateDelivery
	)
	err := s.locked(ctx, cb.IntentID, func(intent *models.PaymentIntent) error {
		originator, err := s.member(ctx, intent.OriginatorMemberID)
		if err != nil {
			return err
		}
		if originator.MemberName != cb.OriginatorMemberName {
			return fmt.Errorf("%w: originator member name mismatch", ErrTrust)
		}
		beneficiary, err := s.member(ctx, intent.BeneficiaryMemberID)
		if err != nil {
			return err
		}
		if beneficiary.JWKS.IsEmpty() {
			return fmt.Errorf("%w: beneficiary member has no key set", ErrTrust)
		}
		payload, err := s.Verifier.Verify(cb.Token, beneficiary.JWKS)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTrust, err)
		}
		if payload.IntentID != cb.IntentID {
			return fmt.Errorf("%w: descriptor intent_id does not match", ErrTrust)
		}
		if err := ledger.ValidateAddress(payload.BeneficiaryAccount); err != nil {
			return fmt.Errorf("%w: beneficiary account: %w", ErrTrust, err)
		}

		switch {
		case intent.Status == models.StatusPaymentInitiated:
			if err := s.recordDescriptor(ctx, intent, cb.Token, payload); err != nil {
				return err
			}
		case intent.Status == models.StatusDescriptorReceived && sameDescriptor(intent, payload):
			if intent.TemplateID != nil {
				tmpl, err := s.Store.GetTemplate(ctx, *intent.TemplateID)
				if err != nil {
					return err
				}
				s.logger().Info("descriptor redelivered, pushing stored template", zap.String("intent_id", intent.IntentID))
				result = &TransitionResult{IntentID: intent.IntentID, Status: intent.Status, Duplicate: true}
				delivery = &templateDelivery{intent: *intent, template: *tmpl, originator: *originator, beneficiary: *beneficiary}
				return nil
			}
			s.logger().Info("descriptor redelivered without template, simulating again", zap.String("intent_id", intent.IntentID))
		case intent.Status.AtLeast(models.StatusTemplateReceived) && sameDescriptor(intent, payload):
			result = &TransitionResult{IntentID: intent.IntentID, Status: intent.Status, Duplicate: true}
			return nil
		default:
			return stale(intent, models.StatusPaymentInitiated)
		}

		tmpl, err := s.buildTemplate(ctx, intent, payload, *originator, *beneficiary)
		if err != nil {
			return err
		}
		result = &TransitionResult{IntentID: intent.IntentID, Status: intent.Status}
		delivery = &templateDelivery{intent: *intent, template: *tmpl, originator: *originator, beneficiary: *beneficiary}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if delivery != nil {
		if err := s.deliver(ctx, *delivery); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func sameDescriptor(intent *models.PaymentIntent, p *descriptor.Payload) bool {
	return intent.DescriptorID != nil && *intent.DescriptorID == p.DescriptorID
}

func (s *PaymentService) recordDescriptor(ctx context.Context, intent *models.PaymentIntent, token string, p *descriptor.Payload) error {
	receiveAsset, err := s.withIssuer(ctx, p.ReceiveAsset, intent.BeneficiaryMemberID)
	if err != nil {
		return err
	}
	account := p.BeneficiaryAccount
	tag := p.DestinationTag
	amount := p.ReceiveAmount
	return s.advance(ctx, intent, models.StatusDescriptorReceived, store.IntentUpdate{
		BeneficiaryAccount: &account,
		DestinationTag:     &tag,
		ReceiveAsset:       &receiveAsset,
		ReceiveAmount:      &amount,
		DescriptorID:       &p.DescriptorID,
		DescriptorJWS:      &token,
		InvoiceID:          &p.InvoiceID,
	})
}

// buildTemplate simulates the payment described by intent and stores the resulting template.
// A failure leaves the intent at DESCRIPTOR_RECEIVED.
func (s *PaymentService) buildTemplate(ctx context.Context, intent *models.PaymentIntent, p *descriptor.Payload, originator, beneficiary models.Member) (*models.PaymentTemplate, error) {
	policy, err := pricing.NewPolicy(originator.BpsPolicy)
	if err != nil {
		return nil, fmt.Errorf("member %s: %w", originator.MemberName, err)
	}
	if intent.ReceiveAsset == nil || intent.ReceiveAmount == nil || intent.BeneficiaryAccount == nil {
		return nil, fmt.Errorf("intent %s has no descriptor details", intent.IntentID)
	}

	sim, err := s.Simulator.Simulate(ctx, settlement.SimulationRequest{
		SendAsset:      intent.SendAsset,
		SendAmount:     intent.SendAmount,
		ReceiveAsset:   *intent.ReceiveAsset,
		ReceiveAmount:  *intent.ReceiveAmount,
		Policy:         policy,
		Account:        intent.OriginatorAccount,
		Destination:    *intent.BeneficiaryAccount,
		DestinationTag: intent.DestinationTag,
		InvoiceID:      p.InvoiceID,
	})
	if err != nil {
		s.logger().Warn("template simulation failed",
			zap.String("intent_id", intent.IntentID),
			zap.String("beneficiary_member", beneficiary.MemberName),
			zap.Error(err),
		)
		return nil, err
	}

	tmpl := sim.Template
	tmpl.TemplateID = newTemplateID()
	tmpl.IntentID = intent.IntentID
	if err := s.Store.SaveTemplate(ctx, tmpl, models.StatusDescriptorReceived); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrStaleTransition, err)
		}
		return nil, fmt.Errorf("save template: %w", err)
	}
	intent.TemplateID = &tmpl.TemplateID
	s.logger().Info("payment template created",
		zap.String("intent_id", intent.IntentID),
		zap.String("template_id", tmpl.TemplateID),
		zap.String("route", sim.Route.Path),
		zap.Uint32("ledger_index", sim.LedgerIndex),
	)
	return &tmpl, nil
}

func (s *PaymentService) deliver(ctx context.Context, d templateDelivery) error {
	ack, err := s.Members.SendTemplate(ctx, d.originator, members.TemplatePush{
		IntentID:              d.intent.IntentID,
		TransactionType:       d.intent.TransactionType,
		BeneficiaryMemberName: d.beneficiary.MemberName,
		OriginatorYonaID:      d.intent.OriginatorYonaID,
		DescriptorCompactJWS:  deref(d.intent.DescriptorJWS),
		BeneficiaryJWKS:       d.beneficiary.JWKS,
		Template:              settlement.DeliveryTemplate(d.template),
		CallbackURL:           members.CallbackURL(s.PublicURL, webhookTemplateReceived),
	})
	if err != nil {
		s.logger().Error("template push failed",
			zap.String("intent_id", d.intent.IntentID),
			zap.String("originator_member", d.originator.MemberName),
			zap.Error(err),
		)
		return err
	}
	s.logger().Info("template pushed to originator",
		zap.String("intent_id", d.intent.IntentID),
		zap.String("template_id", d.template.TemplateID),
		zap.String("tr_correlation_id", ack.TRCorrelationID),
	)
	return nil
}

// OnTemplateAcknowledged records that the originator received the template.
func (s *PaymentService) OnTemplateAcknowledged(ctx context.Context, intentID, correlationID string) (*TransitionResult, error) {
	if intentID == "" || correlationID == "" {
		return nil, fmt.Errorf("%w: intent_id and tr_correlation_id are required", ErrValidation)
	}
	var result *TransitionResult
	err := s.locked(ctx, intentID, func(intent *models.PaymentIntent) error {
		switch {
		case intent.Status == models.StatusDescriptorReceived && intent.TemplateID != nil:
			if err := s.advance(ctx, intent, models.StatusTemplateReceived, store.IntentUpdate{TRCorrelationID: &correlationID}); err != nil {
				return err
			}
			result = &TransitionResult{IntentID: intentID, Status: intent.Status}
		case intent.Status.AtLeast(models.StatusTemplateReceived):
			result = &TransitionResult{IntentID: intentID, Status: intent.Status, Duplicate: true}
		default:
			return stale(intent, models.StatusDescriptorReceived)
		}
		return nil
	})
	return result, err
}

// OnTemplateAccepted records the originator's acceptance of the travel rule exchange.
func (s *PaymentService) OnTemplateAccepted(ctx context.Context, intentID, correlationID, status string) (*TransitionResult, error) {
	if intentID == "" || correlationID == "" || status == "" {
		return nil, fmt.Errorf("%w: intent_id, tr_correlation_id and status are required", ErrValidation)
	}
	if status != TRStatusAccepted {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}
	var result *TransitionResult
	err := s.locked(ctx, intentID, func(intent *models.PaymentIntent) error {
		switch {
		case intent.Status == models.StatusTemplateReceived:
			if stored := deref(intent.TRCorrelationID); stored != "" && stored != correlationID {
				if s.StrictCorrelation {
					return fmt.Errorf("%w: stored %s, received %s", ErrCorrelationMismatch, stored, correlationID)
				}
				s.logger().Warn("tr correlation id mismatch, overwriting",
					zap.String("intent_id", intentID),
					zap.String("stored", stored),
					zap.String("received", correlationID),
				)
			}
			if err := s.advance(ctx, intent, models.StatusTRAccepted, store.IntentUpdate{TRCorrelationID: &correlationID}); err != nil {
				return err
			}
			result = &TransitionResult{IntentID: intentID, Status: intent.Status}
		case intent.Status.AtLeast(models.StatusTRAccepted):
			result = &TransitionResult{IntentID: intentID, Status: intent.Status, Duplicate: true}
		default:
			return stale(intent, models.StatusTemplateReceived)
		}
		return nil
	})
	return result, err
}

// OnPaymentComplete closes the intent. A completed payment is compared with its template before
// the single commit that marks it PAYMENT_COMPLETE.
func (s *PaymentService) OnPaymentComplete(ctx context.Context, intentID, status, txHash, message string) (*TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "services.OnPaymentComplete")
	defer span.End()

	if intentID == "" || status == "" {
		return nil, fmt.Errorf("%w: intent_id and status are required", ErrValidation)
	}
	switch status {
	case PaymentCompleted:
		if txHash == "" {
			return nil, fmt.Errorf("%w: transaction_hash is required for a completed payment", ErrValidation)
		}
	case PaymentFailed:
	default:
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}

	var result *TransitionResult
	err := s.locked(ctx, intentID, func(intent *models.PaymentIntent) error {
		if status == PaymentFailed {
			var err error
			result, err = s.fail(ctx, intent, message)
			return err
		}
		switch intent.Status {
		case models.StatusTRAccepted:
		case models.StatusPaymentComplete:
			result = &TransitionResult{IntentID: intentID, Status: intent.Status, Duplicate: true}
			return nil
		default:
			return stale(intent, models.StatusTRAccepted)
		}

		u := store.IntentUpdate{TxHash: &txHash}
		match, reasons := s.compare(ctx, intent, txHash)
		u.MatchTemplate = match
		u.MismatchReasons = reasons
		if err := s.advance(ctx, intent, models.StatusPaymentComplete, u); err != nil {
			return err
		}
		result = &TransitionResult{IntentID: intentID, Status: intent.Status}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (s *PaymentService) fail(ctx context.Context, intent *models.PaymentIntent, message string) (*TransitionResult, error) {
	switch intent.Status {
	case models.StatusFailed:
		return &TransitionResult{IntentID: intent.IntentID, Status: intent.Status, Duplicate: true}, nil
	case models.StatusPaymentComplete:
		return nil, fmt.Errorf("%w: intent %s already completed", ErrStaleTransition, intent.IntentID)
	}
	if message == "" {
		message = "payment failed"
	}
	if err := s.advance(ctx, intent, models.StatusFailed, store.IntentUpdate{FailureReason: &message}); err != nil {
		return nil, err
	}
	return &TransitionResult{IntentID: intent.IntentID, Status: intent.Status}, nil
}

// compare matches the ledger transaction against the stored template. A nil match means the
// comparison could not be made.
func (s *PaymentService) compare(ctx context.Context, intent *models.PaymentIntent, txHash string) (*bool, []string) {
	if intent.TemplateID == nil {
		matchOutcomes.WithLabelValues("unknown").Inc()
		return nil, nil
	}
	tmpl, err := s.Store.GetTemplate(ctx, *intent.TemplateID)
	if err != nil {
		s.logger().Warn("template lookup failed", zap.String("intent_id", intent.IntentID), zap.Error(err))
		matchOutcomes.WithLabelValues("unknown").Inc()
		return nil, nil
	}
	tx, err := s.Ledger.GetTransaction(ctx, txHash)
	if err != nil {
		s.logger().Warn("ledger transaction lookup failed",
			zap.String("intent_id", intent.IntentID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		matchOutcomes.WithLabelValues("unknown").Inc()
		return nil, nil
	}
	res := settlement.MatchTemplate(*tx, *tmpl)
	if res.Matches {
		matchOutcomes.WithLabelValues("match").Inc()
		return &res.Matches, nil
	}
	matchOutcomes.WithLabelValues("mismatch").Inc()
	s.logger().Warn("payment does not match template",
		zap.String("intent_id", intent.IntentID),
		zap.String("tx_hash", txHash),
		zap.String("reasons", strings.Join(res.Reasons, "; ")),
	)
	return &res.Matches, res.Reasons
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

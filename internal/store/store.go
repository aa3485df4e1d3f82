package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"YONASettlement/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the row exists but is not in the expected status.
	ErrConflict = errors.New("status precondition failed")
)

// IntentStore persists payment intents and their templates.
type IntentStore interface {
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	UpdateIntent(ctx context.Context, intentID string, expected models.IntentStatus, u IntentUpdate) error
	DeleteIntent(ctx context.Context, intentID string, expected models.IntentStatus) error
	SaveTemplate(ctx context.Context, tmpl models.PaymentTemplate, expected models.IntentStatus) error
	GetTemplate(ctx context.Context, templateID string) (*models.PaymentTemplate, error)
	ListIntentsByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]models.PaymentIntent, error)
	ListUserIntents(ctx context.Context, yonaID string) ([]models.PaymentIntent, error)
}

// Directory is the read side for users, members and their supported assets.
type Directory interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	Member(ctx context.Context, memberID string) (*models.Member, error)
	SupportsCurrency(ctx context.Context, memberID, currency string) (bool, error)
	IssuerForCurrency(ctx context.Context, code, memberID string) (string, error)
}

// IntentUpdate lists the columns to change. Nil fields are left untouched.
type IntentUpdate struct {
	Status             *models.IntentStatus
	FailureReason      *string
	BeneficiaryAccount *string
	DestinationTag     *uint32
	ReceiveAsset       *models.Asset
	ReceiveAmount      *decimal.Decimal
	DescriptorID       *string
	DescriptorJWS      *string
	InvoiceID          *string
	TRCorrelationID    *string
	TxHash             *string
	MatchTemplate      *bool
	MismatchReasons    []string
}

// Apply copies the set fields onto intent.
func (u IntentUpdate) Apply(intent *models.PaymentIntent) {
	if u.Status != nil {
		intent.Status = *u.Status
	}
	if u.FailureReason != nil {
		intent.FailureReason = u.FailureReason
	}
	if u.BeneficiaryAccount != nil {
		intent.BeneficiaryAccount = u.BeneficiaryAccount
	}
	if u.DestinationTag != nil {
		intent.DestinationTag = u.DestinationTag
	}
	if u.ReceiveAsset != nil {
		intent.ReceiveAsset = u.ReceiveAsset
	}
	if u.ReceiveAmount != nil {
		intent.ReceiveAmount = u.ReceiveAmount
	}
	if u.DescriptorID != nil {
		intent.DescriptorID = u.DescriptorID
	}
	if u.DescriptorJWS != nil {
		intent.DescriptorJWS = u.DescriptorJWS
	}
	if u.InvoiceID != nil {
		intent.InvoiceID = u.InvoiceID
	}
	if u.TRCorrelationID != nil {
		intent.TRCorrelationID = u.TRCorrelationID
	}
	if u.TxHash != nil {
		intent.TxHash = u.TxHash
	}
	if u.MatchTemplate != nil {
		intent.MatchTemplate = u.MatchTemplate
	}
	if u.MismatchReasons != nil {
		intent.MismatchReasons = u.MismatchReasons
	}
}

func (u IntentUpdate) columns() ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.FailureReason != nil {
		add("failure_reason", *u.FailureReason)
	}
	if u.BeneficiaryAccount != nil {
		add("beneficiary_account", *u.BeneficiaryAccount)
	}
	if u.DestinationTag != nil {
		add("destination_tag", int64(*u.DestinationTag))
	}
	if u.ReceiveAsset != nil {
		add("receive_asset_code", u.ReceiveAsset.Code)
		add("receive_asset_issuer", u.ReceiveAsset.Issuer)
	}
	if u.ReceiveAmount != nil {
		add("receive_amount", u.ReceiveAmount.String())
	}
	if u.DescriptorID != nil {
		add("descriptor_id", *u.DescriptorID)
	}
	if u.DescriptorJWS != nil {
		add("descriptor_jws", *u.DescriptorJWS)
	}
	if u.InvoiceID != nil {
		add("invoice_id", *u.InvoiceID)
	}
	if u.TRCorrelationID != nil {
		add("tr_correlation_id", *u.TRCorrelationID)
	}
	if u.TxHash != nil {
		add("tx_hash", *u.TxHash)
	}
	if u.MatchTemplate != nil {
		add("match_template", *u.MatchTemplate)
	}
	if u.MismatchReasons != nil {
		add("mismatch_reasons", u.MismatchReasons)
	}
	return cols, args
}

// Store is the Postgres implementation of IntentStore and Directory.
type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const intentColumns = `
	intent_id, originator_yona_id, originator_member_id, originator_account,
	beneficiary_yona_id, beneficiary_member_id, beneficiary_account, destination_tag,
	currency, send_amount::text, send_asset_code, send_asset_issuer,
	receive_asset_code, receive_asset_issuer, receive_amount::text,
	chain, transaction_type, status, failure_reason,
	descriptor_id, descriptor_jws, invoice_id, template_id, tr_correlation_id,
	tx_hash, match_template, mismatch_reasons, created_at, updated_at`

func (s *Store) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payment_intents (
			intent_id, originator_yona_id, originator_member_id, originator_account,
			beneficiary_yona_id, beneficiary_member_id, currency, send_amount,
			send_asset_code, send_asset_issuer, chain, transaction_type, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		intent.IntentID,
		intent.OriginatorYonaID,
		intent.OriginatorMemberID,
		intent.OriginatorAccount,
		intent.BeneficiaryYonaID,
		intent.BeneficiaryMemberID,
		intent.Currency,
		intent.SendAmount.String(),
		intent.SendAsset.Code,
		intent.SendAsset.Issuer,
		intent.Chain,
		string(intent.TransactionType),
		string(intent.Status),
	)
	return err
}

func (s *Store) GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE intent_id=$1`, intentID)
	intent, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("intent %s: %w", intentID, ErrNotFound)
	}
	return intent, err
}

// UpdateIntent applies u only while the row is still at expected.
func (s *Store) UpdateIntent(ctx context.Context, intentID string, expected models.IntentStatus, u IntentUpdate) error {
	cols, args := u.columns()
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s=$%d", c, i+1))
	}
	sets = append(sets, "updated_at=now()")
	args = append(args, intentID, string(expected))
	query := fmt.Sprintf(`UPDATE payment_intents SET %s WHERE intent_id=$%d AND status=$%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	tag, err := s.Pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, tag, intentID)
}

func (s *Store) DeleteIntent(ctx context.Context, intentID string, expected models.IntentStatus) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM payment_intents WHERE intent_id=$1 AND status=$2`, intentID, string(expected))
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, tag, intentID)
}

func (s *Store) checkAffected(ctx context.Context, tag pgconn.CommandTag, intentID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_intents WHERE intent_id=$1)`, intentID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("intent %s: %w", intentID, ErrNotFound)
	}
	return fmt.Errorf("intent %s: %w", intentID, ErrConflict)
}

// SaveTemplate inserts the template and links it to its intent in one transaction.
func (s *Store) SaveTemplate(ctx context.Context, tmpl models.PaymentTemplate, expected models.IntentStatus) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row, err := templateRow(tmpl)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO payment_templates (
			template_id, intent_id, transaction_type, account, destination, destination_tag,
			amount, send_max, paths, flags, ledger_index, invoice_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, row...); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE payment_intents SET template_id=$1, updated_at=now()
		WHERE intent_id=$2 AND status=$3 AND template_id IS NULL
	`, tmpl.TemplateID, tmpl.IntentID, string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("intent %s: %w", tmpl.IntentID, ErrConflict)
	}
	return tx.Commit(ctx)
}

func (s *Store) GetTemplate(ctx context.Context, templateID string) (*models.PaymentTemplate, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT template_id, intent_id, transaction_type, account, destination, destination_tag,
			amount, send_max, paths, flags, ledger_index, invoice_id, created_at
		FROM payment_templates WHERE template_id=$1
	`, templateID)
	tmpl, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}
	return tmpl, err
}

func (s *Store) ListIntentsByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]models.PaymentIntent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+intentColumns+` FROM payment_intents
		WHERE status=$1 ORDER BY created_at ASC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	return collectIntents(rows)
}

func (s *Store) ListUserIntents(ctx context.Context, yonaID string) ([]models.PaymentIntent, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+intentColumns+` FROM payment_intents
		WHERE originator_yona_id=$1 OR beneficiary_yona_id=$1 ORDER BY created_at DESC`, yonaID)
	if err != nil {
		return nil, err
	}
	return collectIntents(rows)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, yona_id, username, COALESCE(member_id, ''), COALESCE(email, ''), account_type
		FROM users WHERE username=$1
	`, username)
	var u models.User
	var accountType string
	if err := row.Scan(&u.ID, &u.YonaID, &u.Username, &u.MemberID, &u.Email, &accountType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return nil, err
	}
	u.AccountType = models.AccountType(accountType)
	return &u, nil
}

func (s *Store) Member(ctx context.Context, memberID string) (*models.Member, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT member_id, member_name, COALESCE(api_endpoint, ''), COALESCE(tr_provider, ''),
			COALESCE(tr_endpoint, ''), business_type, bps_policy, jwks, created_at
		FROM members WHERE member_id=$1
	`, memberID)
	var m models.Member
	var business string
	var jwks []byte
	err := row.Scan(&m.MemberID, &m.MemberName, &m.APIEndpoint, &m.TRProvider,
		&m.TREndpoint, &business, &m.BpsPolicy, &jwks, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
		}
		return nil, err
	}
	m.BusinessType = models.BusinessType(business)
	if len(jwks) > 0 {
		ks, err := models.ParseKeySet(jwks)
		if err != nil {
			return nil, fmt.Errorf("member %s jwks: %w", memberID, err)
		}
		m.JWKS = ks
	}
	return &m, nil
}

func (s *Store) SupportsCurrency(ctx context.Context, memberID, currency string) (bool, error) {
	var ok bool
	err := s.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM supported_assets WHERE member_id=$1 AND upper(currency)=upper($2))
	`, memberID, currency).Scan(&ok)
	return ok, err
}

// IssuerForCurrency looks the issuer up by asset code. An empty memberID matches any member.
func (s *Store) IssuerForCurrency(ctx context.Context, code, memberID string) (string, error) {
	var issuer string
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(issuer, '') FROM supported_assets
		WHERE asset_code=$1 AND ($2 = '' OR member_id=$2)
		ORDER BY member_id LIMIT 1
	`, code, memberID).Scan(&issuer)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("issuer for %s: %w", code, ErrNotFound)
	}
	return issuer, err
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"YONASettlement/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func scanIntent(row pgx.Row) (*models.PaymentIntent, error) {
	var (
		intent          models.PaymentIntent
		sendAmount      string
		txType, status  string
		beneficiary     sql.NullString
		destinationTag  sql.NullInt64
		receiveCode     sql.NullString
		receiveIssuer   sql.NullString
		receiveAmount   sql.NullString
		failureReason   sql.NullString
		descriptorID    sql.NullString
		descriptorJWS   sql.NullString
		invoiceID       sql.NullString
		templateID      sql.NullString
		correlationID   sql.NullString
		txHash          sql.NullString
		matchTemplate   sql.NullBool
		mismatchReasons []string
	)
	err := row.Scan(
		&intent.IntentID,
		&intent.OriginatorYonaID,
		&intent.OriginatorMemberID,
		&intent.OriginatorAccount,
		&intent.BeneficiaryYonaID,
		&intent.BeneficiaryMemberID,
		&beneficiary,
		&destinationTag,
		&intent.Currency,
		&sendAmount,
		&intent.SendAsset.Code,
		&intent.SendAsset.Issuer,
		&receiveCode,
		&receiveIssuer,
		&receiveAmount,
		&intent.Chain,
		&txType,
		&status,
		&failureReason,
		&descriptorID,
		&descriptorJWS,
		&invoiceID,
		&templateID,
		&correlationID,
		&txHash,
		&matchTemplate,
		&mismatchReasons,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	intent.SendAmount, err = decimal.NewFromString(sendAmount)
	if err != nil {
		return nil, fmt.Errorf("intent %s send_amount: %w", intent.IntentID, err)
	}
	intent.TransactionType = models.TransactionType(txType)
	intent.Status = models.IntentStatus(status)
	intent.BeneficiaryAccount = nullString(beneficiary)
	if destinationTag.Valid {
		tag := uint32(destinationTag.Int64)
		intent.DestinationTag = &tag
	}
	if receiveCode.Valid && receiveCode.String != "" {
		intent.ReceiveAsset = &models.Asset{Code: receiveCode.String, Issuer: receiveIssuer.String}
	}
	if receiveAmount.Valid {
		amt, err := decimal.NewFromString(receiveAmount.String)
		if err != nil {
			return nil, fmt.Errorf("intent %s receive_amount: %w", intent.IntentID, err)
		}
		intent.ReceiveAmount = &amt
	}
	intent.FailureReason = nullString(failureReason)
	intent.DescriptorID = nullString(descriptorID)
	intent.DescriptorJWS = nullString(descriptorJWS)
	intent.InvoiceID = nullString(invoiceID)
	intent.TemplateID = nullString(templateID)
	intent.TRCorrelationID = nullString(correlationID)
	intent.TxHash = nullString(txHash)
	if matchTemplate.Valid {
		intent.MatchTemplate = &matchTemplate.Bool
	}
	intent.MismatchReasons = mismatchReasons
	return &intent, nil
}

func collectIntents(rows pgx.Rows) ([]models.PaymentIntent, error) {
	defer rows.Close()
	var out []models.PaymentIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *intent)
	}
	return out, rows.Err()
}

func templateRow(t models.PaymentTemplate) ([]any, error) {
	amount, err := json.Marshal(t.Amount)
	if err != nil {
		return nil, err
	}
	var sendMax []byte
	if !t.SendMax.IsZero() {
		if sendMax, err = json.Marshal(t.SendMax); err != nil {
			return nil, err
		}
	}
	paths, err := json.Marshal(t.Paths)
	if err != nil {
		return nil, err
	}
	var tag *int64
	if t.DestinationTag != nil {
		v := int64(*t.DestinationTag)
		tag = &v
	}
	return []any{
		t.TemplateID,
		t.IntentID,
		t.TransactionType,
		t.Account,
		t.Destination,
		tag,
		amount,
		sendMax,
		paths,
		int64(t.Flags),
		int64(t.LedgerIndex),
		t.InvoiceID,
	}, nil
}

func scanTemplate(row pgx.Row) (*models.PaymentTemplate, error) {
	var (
		t           models.PaymentTemplate
		tag         sql.NullInt64
		amount      []byte
		sendMax     []byte
		paths       []byte
		flags       int64
		ledgerIndex int64
		invoiceID   sql.NullString
	)
	err := row.Scan(&t.TemplateID, &t.IntentID, &t.TransactionType, &t.Account, &t.Destination,
		&tag, &amount, &sendMax, &paths, &flags, &ledgerIndex, &invoiceID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if tag.Valid {
		v := uint32(tag.Int64)
		t.DestinationTag = &v
	}
	if err := json.Unmarshal(amount, &t.Amount); err != nil {
		return nil, fmt.Errorf("template %s amount: %w", t.TemplateID, err)
	}
	if len(sendMax) > 0 {
		if err := json.Unmarshal(sendMax, &t.SendMax); err != nil {
			return nil, fmt.Errorf("template %s send_max: %w", t.TemplateID, err)
		}
	}
	if len(paths) > 0 {
		if err := json.Unmarshal(paths, &t.Paths); err != nil {
			return nil, fmt.Errorf("template %s paths: %w", t.TemplateID, err)
		}
	}
	t.Flags = uint32(flags)
	t.LedgerIndex = uint32(ledgerIndex)
	t.InvoiceID = invoiceID.String
	return &t, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

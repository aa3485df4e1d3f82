package settlement

import (
	"fmt"
	"strconv"
	"strings"

	"YONASettlement/internal/currency"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/models"
)

// ConfirmationWindowLedgers is how far past the template's ledger a payment may validate.
const ConfirmationWindowLedgers = 5

type MatchResult struct {
	Matches bool     `json:"matches"`
	Reasons []string `json:"reasons,omitempty"`
}

// MatchTemplate compares a validated ledger payment with the template it should follow.
// Every difference is reported.
func MatchTemplate(tx models.LedgerTransaction, tmpl models.PaymentTemplate) MatchResult {
	var reasons []string
	add := func(format string, args ...any) {
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	if tx.Result != "" && tx.Result != ledger.ResultSuccess {
		add("transaction result %s is not %s", tx.Result, ledger.ResultSuccess)
	}
	if tx.TransactionType != paymentType {
		add("transaction type %q is not %s", tx.TransactionType, paymentType)
	}
	if tmpl.TransactionType != paymentType {
		add("template type %q is not %s", tmpl.TransactionType, paymentType)
	}
	if tx.Account != tmpl.Account {
		add("account %s does not match template %s", tx.Account, tmpl.Account)
	}
	if tx.Destination != tmpl.Destination {
		add("destination %s does not match template %s", tx.Destination, tmpl.Destination)
	}
	if !tagsEqual(tx.DestinationTag, tmpl.DestinationTag) {
		add("destination tag %s does not match template %s", tagString(tx.DestinationTag), tagString(tmpl.DestinationTag))
	}

	var flags uint32
	if tx.Flags != nil {
		flags = *tx.Flags
	}
	if flags != tmpl.Flags {
		add("flags %d do not match template %d", flags, tmpl.Flags)
	}

	if !pathsEqual(tx.Paths, tmpl.Paths) {
		add("paths do not match template")
	}

	if limit := tmpl.LedgerIndex + ConfirmationWindowLedgers; tx.LedgerIndex > limit {
		add("ledger index %d is past the confirmation window ending at %d", tx.LedgerIndex, limit)
	}

	if !strings.EqualFold(tx.InvoiceID, tmpl.InvoiceID) {
		add("invoice id %s does not match template %s", tx.InvoiceID, tmpl.InvoiceID)
	}

	if reason := compareAmounts(tx.Amount, tmpl.Amount); reason != "" {
		add("amount: %s", reason)
	}
	switch {
	case tmpl.SendMax.IsZero() && tx.SendMax == nil:
	case tx.SendMax == nil:
		add("send max missing")
	case tmpl.SendMax.IsZero():
		add("send max present but template has none")
	default:
		if reason := compareAmounts(*tx.SendMax, tmpl.SendMax); reason != "" {
			add("send max: %s", reason)
		}
	}

	return MatchResult{Matches: len(reasons) == 0, Reasons: reasons}
}

func tagsEqual(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func tagString(t *uint32) string {
	if t == nil {
		return "none"
	}
	return strconv.FormatUint(uint64(*t), 10)
}

// pathsEqual treats nil and empty path sets alike. Steps are already stripped of ledger type metadata.
func pathsEqual(got, want [][]models.PathStep) bool {
	got, want = nonEmptyPaths(got), nonEmptyPaths(want)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if len(got[i]) != len(want[i]) {
			return false
		}
		for j := range got[i] {
			if !stepEqual(got[i][j], want[i][j]) {
				return false
			}
		}
	}
	return true
}

func stepEqual(a, b models.PathStep) bool {
	if a.Account != b.Account || a.Issuer != b.Issuer {
		return false
	}
	return a.Currency == b.Currency || currency.Equal(a.Currency, b.Currency)
}

func nonEmptyPaths(p [][]models.PathStep) [][]models.PathStep {
	out := make([][]models.PathStep, 0, len(p))
	for _, path := range p {
		if len(path) > 0 {
			out = append(out, path)
		}
	}
	return out
}

// compareAmounts returns an empty string when a and b denote the same amount.
func compareAmounts(got, want models.Amount) string {
	if got.IsNative() != want.IsNative() {
		return fmt.Sprintf("%s does not match template %s", kind(got), kind(want))
	}
	gv, err := got.Float()
	if err != nil {
		return fmt.Sprintf("unreadable value: %v", err)
	}
	wv, err := want.Float()
	if err != nil {
		return fmt.Sprintf("unreadable template value: %v", err)
	}
	if got.IsNative() {
		if gv != wv {
			return fmt.Sprintf("%s drops does not match template %s drops", got.Drops, want.Drops)
		}
		return ""
	}
	var diffs []string
	if !currency.Equal(got.Issued.Currency, want.Issued.Currency) {
		diffs = append(diffs, fmt.Sprintf("currency %s vs %s", got.Issued.Currency, want.Issued.Currency))
	}
	if got.Issued.Issuer != want.Issued.Issuer {
		diffs = append(diffs, fmt.Sprintf("issuer %s vs %s", got.Issued.Issuer, want.Issued.Issuer))
	}
	if gv != wv {
		diffs = append(diffs, fmt.Sprintf("value %s vs %s", got.Issued.Value, want.Issued.Value))
	}
	return strings.Join(diffs, ", ")
}

func kind(a models.Amount) string {
	if a.IsNative() {
		return "native amount"
	}
	return "issued amount"
}

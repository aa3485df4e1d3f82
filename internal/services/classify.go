package services

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"YONASettlement/internal/models"

	"github.com/google/uuid"
)

// Classify derives the transaction type from the parties and their member institutions.
func Classify(sender, recipient models.User, originator, beneficiary models.Member) models.TransactionType {
	if sender.AccountType != models.AccountUser {
		return models.TxP2PInterVASP
	}
	prefix := "P2P"
	if recipient.AccountType == models.AccountMerchant {
		prefix = "POS"
	}

	var suffix string
	switch {
	case originator.BusinessType == models.BusinessVASP && beneficiary.BusinessType == models.BusinessVASP:
		if originator.MemberID == beneficiary.MemberID {
			suffix = "INTRAVASP"
		} else {
			suffix = "INTERVASP"
		}
	case originator.BusinessType == models.BusinessKYCProvider && beneficiary.BusinessType == models.BusinessVASP:
		suffix = "SELF_HOST_TO_VASP"
	case originator.BusinessType == models.BusinessVASP && beneficiary.BusinessType == models.BusinessKYCProvider:
		suffix = "VASP_TO_SELF_HOST"
	default:
		return models.TxP2PInterVASP
	}

	t, err := models.ParseTransactionType(prefix + "_" + suffix)
	if err != nil {
		return models.TxP2PInterVASP
	}
	return t
}

// newIntentID formats INTENT_{unix millis}_{random base36}.
func newIntentID(now time.Time) string {
	return fmt.Sprintf("INTENT_%d_%s", now.UnixMilli(), randomBase36())
}

func newTemplateID() string {
	return "template_" + randomBase36() + randomBase36()
}

func randomBase36() string {
	id := uuid.New()
	return strconv.FormatUint(binary.BigEndian.Uint64(id[:8]), 36)
}

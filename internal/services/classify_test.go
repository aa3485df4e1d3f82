package services

import (
	"regexp"
	"testing"
	"time"

	"YONASettlement/internal/models"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	user := models.User{AccountType: models.AccountUser}
	merchant := models.User{AccountType: models.AccountMerchant}
	vaspA := models.Member{MemberID: "a", BusinessType: models.BusinessVASP}
	vaspB := models.Member{MemberID: "b", BusinessType: models.BusinessVASP}
	kyc := models.Member{MemberID: "k", BusinessType: models.BusinessKYCProvider}
	other := models.Member{MemberID: "o", BusinessType: "BANK"}

	cases := []struct {
		name                    string
		sender, recipient       models.User
		originator, beneficiary models.Member
		want                    models.TransactionType
	}{
		{"ok, p2p same vasp", user, user, vaspA, vaspA, models.TxP2PIntraVASP},
		{"ok, p2p across vasps", user, user, vaspA, vaspB, models.TxP2PInterVASP},
		{"ok, p2p self hosted to vasp", user, user, kyc, vaspB, models.TxP2PSelfHostToVASP},
		{"ok, p2p vasp to self hosted", user, user, vaspA, kyc, models.TxP2PVASPToSelfHost},
		{"ok, pos same vasp", user, merchant, vaspA, vaspA, models.TxPOSIntraVASP},
		{"ok, pos across vasps", user, merchant, vaspA, vaspB, models.TxPOSInterVASP},
		{"ok, pos self hosted to vasp", user, merchant, kyc, vaspA, models.TxPOSSelfHostToVASP},
		{"ok, pos vasp to self hosted", user, merchant, vaspA, kyc, models.TxPOSVASPToSelfHost},
		{"ok, merchant paying merchant falls back", merchant, merchant, vaspA, vaspB, models.TxP2PInterVASP},
		{"ok, merchant paying user falls back", merchant, user, vaspA, vaspA, models.TxP2PInterVASP},
		{"ok, unknown business type falls back", user, user, other, vaspA, models.TxP2PInterVASP},
		{"ok, two kyc providers fall back", user, user, kyc, kyc, models.TxP2PInterVASP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.sender, tc.recipient, tc.originator, tc.beneficiary))
		})
	}
}

func TestIDs(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := newIntentID(now)
	require.Regexp(t, regexp.MustCompile(`^INTENT_1700000000123_[0-9a-z]+$`), id)
	require.NotEqual(t, id, newIntentID(now))

	require.Regexp(t, regexp.MustCompile(`^template_[0-9a-z]+$`), newTemplateID())
}

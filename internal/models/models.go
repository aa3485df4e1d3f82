package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type IntentStatus string

const (
	StatusPaymentInitiated   IntentStatus = "PAYMENT_INITIATED"
	StatusDescriptorReceived IntentStatus = "DESCRIPTOR_RECEIVED"
	StatusTemplateReceived   IntentStatus = "TEMPLATE_RECEIVED"
	StatusTRAccepted         IntentStatus = "TR_ACCEPTED"
	StatusPaymentComplete    IntentStatus = "PAYMENT_COMPLETE"
	StatusFailed             IntentStatus = "FAILED"
)

var statusRank = map[IntentStatus]int{
	StatusPaymentInitiated:   1,
	StatusDescriptorReceived: 2,
	StatusTemplateReceived:   3,
	StatusTRAccepted:         4,
	StatusPaymentComplete:    5,
}

// Rank orders the linear statuses. FAILED and unknown values rank 0.
func (s IntentStatus) Rank() int {
	return statusRank[s]
}

func (s IntentStatus) Terminal() bool {
	return s == StatusPaymentComplete || s == StatusFailed
}

// AtLeast reports whether s has reached other on the linear sequence.
func (s IntentStatus) AtLeast(other IntentStatus) bool {
	return s.Rank() != 0 && s.Rank() >= other.Rank()
}

func ParseIntentStatus(v string) (IntentStatus, error) {
	s := IntentStatus(v)
	if s == StatusFailed || statusRank[s] != 0 {
		return s, nil
	}
	return "", fmt.Errorf("unknown intent status %q", v)
}

type TransactionType string

const (
	TxP2PIntraVASP      TransactionType = "P2P_INTRAVASP"
	TxP2PInterVASP      TransactionType = "P2P_INTERVASP"
	TxP2PSelfHostToVASP TransactionType = "P2P_SELF_HOST_TO_VASP"
	TxP2PVASPToSelfHost TransactionType = "P2P_VASP_TO_SELF_HOST"
	TxPOSIntraVASP      TransactionType = "POS_INTRAVASP"
	TxPOSInterVASP      TransactionType = "POS_INTERVASP"
	TxPOSSelfHostToVASP TransactionType = "POS_SELF_HOST_TO_VASP"
	TxPOSVASPToSelfHost TransactionType = "POS_VASP_TO_SELF_HOST"
)

var transactionTypes = map[TransactionType]struct{}{
	TxP2PIntraVASP:      {},
	TxP2PInterVASP:      {},
	TxP2PSelfHostToVASP: {},
	TxP2PVASPToSelfHost: {},
	TxPOSIntraVASP:      {},
	TxPOSInterVASP:      {},
	TxPOSSelfHostToVASP: {},
	TxPOSVASPToSelfHost: {},
}

func ParseTransactionType(v string) (TransactionType, error) {
	t := TransactionType(v)
	if _, ok := transactionTypes[t]; !ok {
		return "", fmt.Errorf("unknown transaction type %q", v)
	}
	return t, nil
}

type BusinessType string

const (
	BusinessVASP        BusinessType = "VASP"
	BusinessKYCProvider BusinessType = "KYC_PROVIDER"
)

type AccountType string

const (
	AccountUser     AccountType = "USER"
	AccountMerchant AccountType = "MERCHANT"
)

const ChainXRPL = "XRPL"

// Asset is a currency code plus the issuing account. XRP has no issuer.
type Asset struct {
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

func (a Asset) IsNative() bool {
	return a.Code == "XRP"
}

type PaymentIntent struct {
	IntentID            string
	OriginatorYonaID    string
	OriginatorMemberID  string
	OriginatorAccount   string
	BeneficiaryYonaID   string
	BeneficiaryMemberID string
	BeneficiaryAccount  *string
	DestinationTag      *uint32
	Currency            string
	SendAmount          decimal.Decimal
	SendAsset           Asset
	ReceiveAsset        *Asset
	ReceiveAmount       *decimal.Decimal
	Chain               string
	TransactionType     TransactionType
	Status              IntentStatus
	FailureReason       *string
	DescriptorID        *string
	DescriptorJWS       *string
	InvoiceID           *string
	TemplateID          *string
	TRCorrelationID     *string
	TxHash              *string
	MatchTemplate       *bool
	MismatchReasons     []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type PaymentTemplate struct {
	TemplateID      string
	IntentID        string
	TransactionType string
	Account         string
	Destination     string
	DestinationTag  *uint32
	Amount          Amount
	SendMax         Amount
	Paths           [][]PathStep
	Flags           uint32
	LedgerIndex     uint32
	InvoiceID       string
	CreatedAt       time.Time
}

type Member struct {
	MemberID     string
	MemberName   string
	APIEndpoint  string
	TRProvider   string
	TREndpoint   string
	BusinessType BusinessType
	BpsPolicy    int
	JWKS         KeySet
	CreatedAt    time.Time
}

type User struct {
	ID          string
	YonaID      string
	Username    string
	MemberID    string
	Email       string
	AccountType AccountType
}

type SupportedAsset struct {
	MemberID  string
	Currency  string
	AssetCode string
	Issuer    string
}

// LedgerTransaction is the subset of a validated ledger payment used for template matching.
type LedgerTransaction struct {
	Hash            string
	TransactionType string
	Account         string
	Destination     string
	DestinationTag  *uint32
	Flags           *uint32
	Paths           [][]PathStep
	LedgerIndex     uint32
	InvoiceID       string
	Amount          Amount
	SendMax         *Amount
	DeliveredAmount *Amount
	Fee             string
	Result          string
	Validated       bool
	Date            time.Time
}

// Package descriptor verifies the signed payment descriptor a beneficiary member returns for an intent.
package descriptor

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"YONASettlement/internal/models"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrNoEd25519Key = errors.New("no Ed25519 key in key set")
	ErrInvalidToken = errors.New("descriptor token invalid")
	ErrMissingClaim = errors.New("descriptor claim missing")
	ErrInvalidClaim = errors.New("descriptor claim invalid")
)

const signingAlgorithm = "EdDSA"

// Payload is the verified content of a descriptor.
type Payload struct {
	IntentID           string          `json:"intent_id"`
	InvoiceID          string          `json:"invoice_id"`
	BeneficiaryAccount string          `json:"beneficiary_account"`
	DestinationTag     uint32          `json:"destination_tag"`
	DescriptorID       string          `json:"descriptor_id"`
	ReceiveAsset       models.Asset    `json:"receive_asset"`
	ReceiveAmount      decimal.Decimal `json:"receive_amount"`
}

// claims keeps the loosely typed fields raw until they are checked.
type claims struct {
	IntentID           string          `json:"intent_id,omitempty"`
	InvoiceID          string          `json:"invoice_id,omitempty"`
	BeneficiaryAccount string          `json:"beneficiary_account,omitempty"`
	DestinationTag     json.RawMessage `json:"destination_tag,omitempty"`
	DescriptorID       string          `json:"descriptor_id,omitempty"`
	ReceiveAsset       *models.Asset   `json:"receive_asset,omitempty"`
	ReceiveAmount      json.RawMessage `json:"receive_amount,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	parser *jwt.Parser
}

func NewVerifier() *Verifier {
	return &Verifier{parser: jwt.NewParser(jwt.WithValidMethods([]string{signingAlgorithm}))}
}

// Verify checks the compact token against the first Ed25519 key of keys and returns its payload.
func (v *Verifier) Verify(token string, keys models.KeySet) (*Payload, error) {
	pub, err := PublicKey(keys)
	if err != nil {
		return nil, err
	}

	var c claims
	_, err = v.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return c.payload()
}

// PublicKey extracts the first Ed25519 public key of a member key set.
func PublicKey(keys models.KeySet) (ed25519.PublicKey, error) {
	m, ok := keys.FirstEd25519()
	if !ok {
		return nil, ErrNoEd25519Key
	}
	jwk, err := jwkset.NewJWKFromMarshal(m, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEd25519Key, err)
	}
	pub, ok := jwk.Key().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is %T", ErrNoEd25519Key, jwk.Key())
	}
	return pub, nil
}

func (c claims) payload() (*Payload, error) {
	switch {
	case c.IntentID == "":
		return nil, missing("intent_id")
	case c.InvoiceID == "":
		return nil, missing("invoice_id")
	case c.BeneficiaryAccount == "":
		return nil, missing("beneficiary_account")
	case isNull(c.DestinationTag):
		return nil, missing("destination_tag")
	case c.DescriptorID == "":
		return nil, missing("descriptor_id")
	case c.ReceiveAsset == nil || c.ReceiveAsset.Code == "":
		return nil, missing("receive_asset")
	case isNull(c.ReceiveAmount):
		return nil, missing("receive_amount")
	}

	tag, err := parseTag(c.DestinationTag)
	if err != nil {
		return nil, err
	}
	if c.ReceiveAmount[0] == '"' {
		return nil, fmt.Errorf("%w: receive_amount must be a number", ErrInvalidClaim)
	}
	amount, err := decimal.NewFromString(string(c.ReceiveAmount))
	if err != nil {
		return nil, fmt.Errorf("%w: receive_amount: %w", ErrInvalidClaim, err)
	}

	return &Payload{
		IntentID:           c.IntentID,
		InvoiceID:          c.InvoiceID,
		BeneficiaryAccount: c.BeneficiaryAccount,
		DestinationTag:     tag,
		DescriptorID:       c.DescriptorID,
		ReceiveAsset:       *c.ReceiveAsset,
		ReceiveAmount:      amount,
	}, nil
}

// parseTag accepts a JSON number or a numeric string.
func parseTag(raw json.RawMessage) (uint32, error) {
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: destination_tag: %w", ErrInvalidClaim, err)
		}
	}
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: destination_tag %q", ErrInvalidClaim, text)
	}
	return uint32(n), nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingClaim, name)
}

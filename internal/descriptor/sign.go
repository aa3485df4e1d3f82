package descriptor

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"YONASettlement/internal/models"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
)

// Sign produces a compact EdDSA token for p. Members sign their own descriptors; this is
// used by tooling and tests.
func Sign(p Payload, key ed25519.PrivateKey, kid string) (string, error) {
	asset := p.ReceiveAsset
	c := claims{
		IntentID:           p.IntentID,
		InvoiceID:          p.InvoiceID,
		BeneficiaryAccount: p.BeneficiaryAccount,
		DestinationTag:     json.RawMessage(strconv.FormatUint(uint64(p.DestinationTag), 10)),
		DescriptorID:       p.DescriptorID,
		ReceiveAsset:       &asset,
		ReceiveAmount:      json.RawMessage(p.ReceiveAmount.String()),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign descriptor: %w", err)
	}
	return s, nil
}

// PublicKeySet publishes pub as a single-key set suitable for a member directory record.
func PublicKeySet(pub ed25519.PublicKey, kid string) (models.KeySet, error) {
	jwk, err := jwkset.NewJWKFromKey(pub, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			KID: kid,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return models.KeySet{}, fmt.Errorf("build jwk: %w", err)
	}
	return models.KeySet{Keys: []jwkset.JWKMarshal{jwk.Marshal()}}, nil
}

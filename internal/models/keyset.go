package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MicahParks/jwkset"
)

// KeySet is a member's published JWKS, normalized on ingress.
type KeySet struct {
	Keys []jwkset.JWKMarshal `json:"keys"`
}

// ParseKeySet accepts the key set as a JSON object or as a JSON string holding that object.
func ParseKeySet(raw []byte) (KeySet, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return KeySet{}, errors.New("key set is empty")
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return KeySet{}, fmt.Errorf("decode key set text: %w", err)
		}
		raw = []byte(text)
	}
	var ks KeySet
	if err := json.Unmarshal(raw, &ks); err != nil {
		return KeySet{}, fmt.Errorf("decode key set: %w", err)
	}
	return ks, nil
}

// FirstEd25519 returns the first OKP key on the Ed25519 curve.
func (k KeySet) FirstEd25519() (jwkset.JWKMarshal, bool) {
	for _, key := range k.Keys {
		if key.KTY == jwkset.KtyOKP && key.CRV == jwkset.CrvEd25519 {
			return key, true
		}
	}
	return jwkset.JWKMarshal{}, false
}

func (k KeySet) IsEmpty() bool {
	return len(k.Keys) == 0
}

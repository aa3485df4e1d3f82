// Package currency converts between currency symbols and the ledger's on-wire currency field.
//
// Three-character symbols travel as-is. Longer symbols (up to 20 characters) are ASCII-encoded
// into a 20-byte field, zero padded, and written as 40 uppercase hex characters.
package currency

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"YONASettlement/internal/models"
)

const (
	Native      = "XRP"
	hexCodeLen  = 40
	maxASCIILen = 20
)

var ErrInvalidCode = errors.New("invalid currency code")

// Encode returns the on-wire form of symbol.
func Encode(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	switch {
	case symbol == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidCode)
	case strings.EqualFold(symbol, Native):
		return Native, nil
	case len(symbol) == 3:
		return strings.ToUpper(symbol), nil
	case len(symbol) == hexCodeLen && isHex(symbol):
		return strings.ToUpper(symbol), nil
	case len(symbol) < 3:
		return "", fmt.Errorf("%w: %q is too short", ErrInvalidCode, symbol)
	case len(symbol) > maxASCIILen:
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidCode, symbol, maxASCIILen)
	}

	buf := make([]byte, maxASCIILen)
	copy(buf, strings.ToUpper(symbol))
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// Decode returns the display symbol for an on-wire currency field.
// Non-hex input is returned unchanged.
func Decode(code string) string {
	if len(code) != hexCodeLen || !isHex(code) {
		return code
	}
	raw, err := hex.DecodeString(code)
	if err != nil {
		return code
	}
	end := len(raw)
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
	}
	if end > 0 {
		raw = raw[:end]
	}
	out := strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", ""))
	if out == "" {
		return code
	}
	return out
}

// Canonical is the symbol a code decodes to after encoding.
func Canonical(symbol string) (string, error) {
	enc, err := Encode(symbol)
	if err != nil {
		return "", err
	}
	return Decode(enc), nil
}

// Equal compares two codes in any accepted form.
func Equal(a, b string) bool {
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return ca == cb
}

// IsValid reports whether code is XRP, a three-character symbol or a 40-hex field.
func IsValid(code string) bool {
	if code == Native || len(code) == 3 {
		return true
	}
	return len(code) == hexCodeLen && isHex(code)
}

// ConvertAmount encodes the currency field of an issued amount.
func ConvertAmount(a models.Amount) (models.Amount, error) {
	if a.Issued == nil {
		return a, nil
	}
	code, err := Encode(a.Issued.Currency)
	if err != nil {
		return models.Amount{}, err
	}
	return models.IssuedValue(code, a.Issued.Issuer, a.Issued.Value), nil
}

func isHex(v string) bool {
	for _, c := range v {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

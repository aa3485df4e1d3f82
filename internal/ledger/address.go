package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/ripemd160"
)

const (
	accountIDVersion = 0x00
	accountIDLen     = 20

	rippleAlphabet  = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
	bitcoinAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

var ErrInvalidAddress = errors.New("invalid classic address")

var (
	toBitcoin = strings.NewReplacer(pairs(rippleAlphabet, bitcoinAlphabet)...)
	toRipple  = strings.NewReplacer(pairs(bitcoinAlphabet, rippleAlphabet)...)
)

// ValidateAddress checks a classic r-address: alphabet, checksum, version byte and length.
func ValidateAddress(addr string) error {
	_, err := DecodeAccountID(addr)
	return err
}

func DecodeAccountID(addr string) ([]byte, error) {
	if addr == "" || addr[0] != 'r' {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	for _, c := range addr {
		if !strings.ContainsRune(rippleAlphabet, c) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
	}
	payload, version, err := base58.CheckDecode(toBitcoin.Replace(addr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if version != accountIDVersion || len(payload) != accountIDLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return payload, nil
}

func EncodeAccountID(id []byte) (string, error) {
	if len(id) != accountIDLen {
		return "", fmt.Errorf("account id must be %d bytes", accountIDLen)
	}
	return toRipple.Replace(base58.CheckEncode(id, accountIDVersion)), nil
}

// AddressFromPublicKey derives the classic address of a 33-byte ledger public key
// (0xED-prefixed for Ed25519).
func AddressFromPublicKey(pub []byte) (string, error) {
	if len(pub) != 33 {
		return "", fmt.Errorf("public key must be 33 bytes, got %d", len(pub))
	}
	sum := sha256.Sum256(pub)
	h := ripemd160.New()
	_, _ = h.Write(sum[:])
	return EncodeAccountID(h.Sum(nil))
}

// pairs builds a single-character substitution table for strings.NewReplacer.
func pairs(from, to string) []string {
	out := make([]string, 0, len(from)*2)
	for i := 0; i < len(from); i++ {
		out = append(out, from[i:i+1], to[i:i+1])
	}
	return out
}

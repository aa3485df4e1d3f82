package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

const DropsPerXRP = 1_000_000

type IssuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

// Amount is a ledger amount: XRP drops as a bare string, or an issued currency object.
type Amount struct {
	Drops  string
	Issued *IssuedAmount
}

func NativeAmount(drops string) Amount {
	return Amount{Drops: drops}
}

func IssuedValue(currency, issuer, value string) Amount {
	return Amount{Issued: &IssuedAmount{Currency: currency, Issuer: issuer, Value: value}}
}

func (a Amount) IsNative() bool {
	return a.Issued == nil
}

func (a Amount) IsZero() bool {
	return a.Issued == nil && a.Drops == ""
}

func (a Amount) CurrencyCode() string {
	if a.Issued == nil {
		return "XRP"
	}
	return a.Issued.Currency
}

func (a Amount) IssuerAddress() string {
	if a.Issued == nil {
		return ""
	}
	return a.Issued.Issuer
}

// Float parses the raw numeric value: drops for XRP, value for issued currencies.
func (a Amount) Float() (float64, error) {
	if a.Issued != nil {
		return strconv.ParseFloat(a.Issued.Value, 64)
	}
	if a.Drops == "" {
		return 0, errors.New("empty amount")
	}
	return strconv.ParseFloat(a.Drops, 64)
}

// Units is the human denomination: XRP for native amounts, value otherwise.
func (a Amount) Units() (float64, error) {
	v, err := a.Float()
	if err != nil {
		return 0, err
	}
	if a.Issued == nil {
		return v / DropsPerXRP, nil
	}
	return v, nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Issued != nil {
		return json.Marshal(a.Issued)
	}
	return json.Marshal(a.Drops)
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if b[0] == '"' {
		var drops string
		if err := json.Unmarshal(b, &drops); err != nil {
			return err
		}
		*a = Amount{Drops: drops}
		return nil
	}
	var issued IssuedAmount
	if err := json.Unmarshal(b, &issued); err != nil {
		return err
	}
	*a = Amount{Issued: &issued}
	return nil
}

// PathStep is one hop hint of a ledger payment path. Ledger-assigned type metadata is not kept.
type PathStep struct {
	Account  string `json:"account,omitempty"`
	Currency string `json:"currency,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
}

// Issue identifies one side of an order book.
type Issue struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
}

func (i Issue) IsNative() bool {
	return i.Currency == "XRP"
}

type BookPair struct {
	TakerGets Issue
	TakerPays Issue
}

// Offer is a resting order: its owner gives TakerGets and wants TakerPays.
type Offer struct {
	Account   string `json:"Account"`
	Sequence  uint32 `json:"Sequence"`
	TakerGets Amount `json:"TakerGets"`
	TakerPays Amount `json:"TakerPays"`
	Quality   string `json:"quality"`
}

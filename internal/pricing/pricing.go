package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const bpsDenominator = 10_000

var denominator = decimal.NewFromInt(bpsDenominator)

// Policy is a member's basis-point allowance over the quoted amount.
type Policy struct {
	Bps int
}

func NewPolicy(bps int) (Policy, error) {
	if bps < 0 || bps > bpsDenominator {
		return Policy{}, fmt.Errorf("bps policy out of range: %d", bps)
	}
	return Policy{Bps: bps}, nil
}

// SendMax is amount * (1 + bps/10000).
func (p Policy) SendMax(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Add(p.fraction()))
}

// SlippageBuffer is bps/10000 as a fraction.
func (p Policy) SlippageBuffer() float64 {
	return p.fraction().InexactFloat64()
}

type Snapshot struct {
	Bps            int     `json:"bps"`
	SlippageBuffer float64 `json:"slippage_buffer"`
	Source         string  `json:"source"`
}

func (p Policy) Snapshot(source string) Snapshot {
	return Snapshot{
		Bps:            p.Bps,
		SlippageBuffer: p.SlippageBuffer(),
		Source:         source,
	}
}

func (p Policy) fraction() decimal.Decimal {
	return decimal.NewFromInt(int64(p.Bps)).Div(denominator)
}

package pivot

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Cell is the value at one (entity, column) intersection. Distribution reports
// use Sent and Received; progress reports use Count. The zero Cell is the
// additive identity for both shapes.
type Cell struct {
	Sent     decimal.Decimal
	Received decimal.Decimal
	Count    decimal.Decimal
}

func (c Cell) Add(o Cell) Cell {
	return Cell{
		Sent:     c.Sent.Add(o.Sent),
		Received: c.Received.Add(o.Received),
		Count:    c.Count.Add(o.Count),
	}
}

func (c Cell) IsZero() bool {
	return c.Sent.IsZero() && c.Received.IsZero() && c.Count.IsZero()
}

// Equal compares cells by numeric value, so 5 and 5.00 are equal.
func (c Cell) Equal(o Cell) bool {
	return c.Sent.Equal(o.Sent) && c.Received.Equal(o.Received) && c.Count.Equal(o.Count)
}

// SentReceived builds a distribution cell.
func SentReceived(sent, received int64) Cell {
	return Cell{Sent: decimal.NewFromInt(sent), Received: decimal.NewFromInt(received)}
}

// Count builds a progress cell.
func Count(n int64) Cell {
	return Cell{Count: decimal.NewFromInt(n)}
}

// resolveCell coerces a raw source value into the cell shape of mode. Values
// that cannot be read as numbers resolve to zero.
func resolveCell(raw any, mode Mode) Cell {
	if mode == Progress {
		switch v := raw.(type) {
		case Cell:
			return Cell{Count: v.Count}
		case map[string]any:
			return Cell{Count: Number(v["total_records"])}
		default:
			return Cell{Count: Number(raw)}
		}
	}

	switch v := raw.(type) {
	case Cell:
		return Cell{Sent: v.Sent, Received: v.Received}
	case map[string]any:
		return Cell{Sent: Number(v["sent"]), Received: Number(v["received"])}
	default:
		return Cell{}
	}
}

// maxExponent bounds the decimal exponent of a readable number. Adding a
// value like 1e900000000 would rescale it into a huge integer.
const maxExponent = 64

// Number reads v as an exact decimal, returning zero for anything that is not
// a finite number or a numeric string. Numbers whose exponent lies outside
// ±maxExponent count as malformed.
func Number(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return bounded(x)
	case json.Number:
		return parseDecimal(string(x))
	case string:
		return parseDecimal(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(x)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat32(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int32:
		return decimal.NewFromInt32(x)
	case int64:
		return decimal.NewFromInt(x)
	case uint32:
		return decimal.NewFromInt(int64(x))
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
	default:
		return decimal.Zero
	}
}

func parseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return bounded(d)
}

func bounded(d decimal.Decimal) decimal.Decimal {
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero
	}
	return d
}

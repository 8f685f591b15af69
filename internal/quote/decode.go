package quote

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/quote-relay/internal/external"
	"github.com/kjannette/quote-relay/internal/models"
)

// PricePolicy names how a quote's price is resolved from a feed entry.
type PricePolicy string

const (
	// Fallback walks v.lp, v.price, lp, price, v.close_price, last_price.
	Fallback PricePolicy = "fallback"
	// Strict requires v.lp and only falls back to the bid/ask midpoint.
	Strict PricePolicy = "strict"
)

var symbolKeys = []string{"n", "s", "symbol"}

type Decoder struct {
	Symbol string
	Policy PricePolicy
	// Now stamps the capture time; defaults to time.Now.
	Now func() time.Time
}

// Decode extracts the first quote for d.Symbol carried by evt. Events that are
// not quote data, entries for other symbols and entries without a finite price
// produce nothing.
func (d Decoder) Decode(evt external.Event) (models.Quote, bool) {
	if evt.Name != external.EventQuoteData || evt.Params == nil {
		return models.Quote{}, false
	}

	for _, entry := range flatten(evt.Params, nil) {
		p, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if resolveSymbol(p) != d.Symbol {
			continue
		}
		v, _ := p["v"].(map[string]any)

		price, ok := d.resolvePrice(p, v)
		if !ok {
			continue
		}
		return d.build(price, v), true
	}
	return models.Quote{}, false
}

func (d Decoder) resolvePrice(p, v map[string]any) (float64, bool) {
	if d.Policy == Strict {
		if lp, ok := toFloat(v["lp"]); ok {
			return lp, true
		}
		bid, okBid := toDecimal(v["bid"])
		ask, okAsk := toDecimal(v["ask"])
		if okBid && okAsk {
			mid, _ := bid.Add(ask).Div(decimal.NewFromInt(2)).Float64()
			return mid, finite(mid)
		}
		return 0, false
	}

	candidates := []any{v["lp"], v["price"], p["lp"], p["price"], v["close_price"], p["last_price"]}
	for _, c := range candidates {
		if f, ok := toFloat(c); ok {
			return f, true
		}
	}
	return 0, false
}

func (d Decoder) build(price float64, v map[string]any) models.Quote {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return models.Quote{
		Symbol: d.Symbol,
		Price:  price,
		Bid:    optional(v["bid"]),
		Ask:    optional(v["ask"]),
		Open:   optional(v["open_price"]),
		Close:  optional(v["close_price"]),
		High:   optional(v["high_price"]),
		Low:    optional(v["low_price"]),
		Volume: optional(v["volume"]),
		Time:   now(),
		Source: models.SourceTradingView,
	}
}

// flatten walks arbitrarily nested slices and returns the leaves in order.
func flatten(x any, out []any) []any {
	list, ok := x.([]any)
	if !ok {
		return append(out, x)
	}
	for _, item := range list {
		out = flatten(item, out)
	}
	return out
}

func resolveSymbol(p map[string]any) string {
	for _, k := range symbolKeys {
		if s, ok := p[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func optional(x any) *float64 {
	f, ok := toFloat(x)
	if !ok {
		return nil
	}
	return &f
}

func toFloat(x any) (float64, bool) {
	if f, ok := x.(float64); ok {
		return f, finite(f)
	}
	d, ok := toDecimal(x)
	if !ok {
		return 0, false
	}
	// Values beyond the float64 range come back as ±Inf.
	f, _ := d.Float64()
	return f, finite(f)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toDecimal accepts the numeric shapes the feed is known to send: JSON
// numbers, Go numbers and numeric strings.
func toDecimal(x any) (decimal.Decimal, bool) {
	switch n := x.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		if !finite(n) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

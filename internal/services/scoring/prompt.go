package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	dsvc "RegimeTrader/internal/domain/service"
)

const systemPrompt = "You are a quantitative market analyst. Output ONLY numeric values."

// Prompt renders the fixed regime question for one period.
func Prompt(in dsvc.RegimeContext) string {
	var b strings.Builder
	if math.IsNaN(in.VIX) || in.VIX <= 0 {
		b.WriteString("VIX is unavailable")
	} else {
		fmt.Fprintf(&b, "VIX is %.2f", in.VIX)
	}
	fmt.Fprintf(&b, ", %s price change last week was %.2f%%.", in.Symbol, in.ChangePct)
	if in.ATRPct > 0 {
		fmt.Fprintf(&b, " 14-day ATR is %.2f%% of price.", in.ATRPct)
	}
	b.WriteString(`
Classify the market regime as a float:
- -1.0 = Crash/Bear market
- 0.0 = Neutral/Sideways
- 1.0 = Bull/Rally

Return ONLY the number (e.g., -1.0, 0.0, or 1.0). No explanation.`)
	return b.String()
}

// ParseScore reads the model reply and clamps it to [-1, 1].
func ParseScore(reply string) (float64, error) {
	s := strings.TrimSpace(reply)
	s = strings.Trim(s, "`\"' ")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", reply, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse score %q: not finite", reply)
	}
	return clamp(v), nil
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// RuleScore is the offline classification: +1 above a 2% weekly gain, -1
// below a 2% loss, 0 otherwise.
func RuleScore(changePct float64) float64 {
	switch {
	case changePct > 2:
		return 1
	case changePct < -2:
		return -1
	default:
		return 0
	}
}

package stats

import (
	"math"
	"strconv"
)

// Bold renders a number as markdown bold. Whole numbers print without
// decimals when decimals is 0; NaN and infinities print as 0.
func Bold(val float64, decimals int, percent bool) string {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		val = 0
	}
	suffix := ""
	if percent {
		suffix = "%"
	}
	var s string
	if decimals == 0 && val == math.Trunc(val) {
		s = strconv.FormatInt(int64(val), 10)
	} else {
		s = strconv.FormatFloat(val, 'f', decimals, 64)
	}
	return "**" + s + "**" + suffix
}

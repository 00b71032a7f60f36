package alloc

import (
	"math"
	"sort"
)

const roundEps = 1e-9

// discretize snaps a continuous allocation to multiples of unit using
// largest-remainder rounding. No quantity ever exceeds its cap, the total
// never exceeds maxTotal, and the total never drops below the continuous
// total floored to the unit. unit <= 0 returns the input untouched.
func discretize(x, caps []float64, unit, maxTotal float64) []float64 {
	if unit <= 0 {
		return x
	}

	total := 0.0
	for _, v := range x {
		total += v
	}
	targetUnits := int64(math.Floor(total/unit + roundEps))
	if maxUnits := int64(math.Floor(maxTotal/unit + roundEps)); targetUnits > maxUnits {
		targetUnits = maxUnits
	}

	out := make([]float64, len(x))
	rem := make([]float64, len(x))
	capUnits := make([]int64, len(x))
	var baseUnits int64
	for i, v := range x {
		u := int64(math.Floor(v/unit + roundEps))
		capUnits[i] = int64(math.Floor(caps[i]/unit + roundEps))
		if u > capUnits[i] {
			u = capUnits[i]
		}
		out[i] = float64(u)
		rem[i] = v/unit - float64(u)
		baseUnits += u
	}

	// Hand out the leftover units to the largest remainders first,
	// skipping entries already at their cap.
	leftover := targetUnits - baseUnits
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for _, i := range order {
		if leftover <= 0 {
			break
		}
		if int64(out[i]) >= capUnits[i] {
			continue
		}
		out[i]++
		leftover--
	}

	for i := range out {
		out[i] *= unit
	}
	return out
}

package alloc

import "sort"

// greedyAllocate fills demand from the cheapest unit cost upward. For the
// single-sink transportation shape (one order line, independent lot caps)
// the greedy exchange argument makes this optimal, so it is the primary
// solver for single-line runs and the fallback when the LP solver fails.
//
// caps and costs are aligned slices; the result is aligned with them.
// The returned total is min(demand, sum of caps).
func greedyAllocate(demand float64, caps, costs []float64) ([]float64, float64) {
	x := make([]float64, len(caps))
	order := make([]int, len(caps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return costs[order[a]] < costs[order[b]] })

	remaining := demand
	total := 0.0
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		take := caps[i]
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		x[i] = take
		remaining -= take
		total += take
	}
	return x, total
}

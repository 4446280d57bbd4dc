package mcts

import "math"

// PWGrowth is the progressive-widening growth base.
const PWGrowth = 1.8

// wideningSchedule holds pw[i] = pw[i-1] + floor(40*PWGrowth^(i-1)),
// saturating at math.MaxInt32, precomputed once so the selection hot
// path never calls math.Pow.
var wideningSchedule = computeWideningSchedule(MaxChildSlots + 1)

func computeWideningSchedule(n int) []int32 {
	sched := make([]int32, n)
	saturated := false
	for i := 1; i < n; i++ {
		if saturated {
			sched[i] = math.MaxInt32
			continue
		}
		step := math.Floor(40 * math.Pow(PWGrowth, float64(i-1)))
		// Saturate in float space: converting an over-range float to
		// int32 directly is undefined.
		if next := float64(sched[i-1]) + step; next >= math.MaxInt32 {
			sched[i] = math.MaxInt32
			saturated = true
		} else {
			sched[i] = int32(next)
		}
	}
	return sched
}

// pwThreshold returns the visit count at which width should advance
// past width, saturating at the end of the precomputed table.
func pwThreshold(width uint32) int32 {
	if int(width) >= len(wideningSchedule) {
		return math.MaxInt32
	}
	return wideningSchedule[width]
}

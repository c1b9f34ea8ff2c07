package scoring

// Proportional scales achieved against target onto [0, maxPoints]. A zero
// target awards full points for any achievement. Negative inputs count as 0.
func Proportional(achieved, target int, maxPoints float64) float64 {
	if maxPoints <= 0 || achieved <= 0 {
		return 0
	}
	if target <= 0 {
		return maxPoints
	}
	score := float64(achieved) * maxPoints / float64(target)
	if score > maxPoints {
		return maxPoints
	}
	return score
}

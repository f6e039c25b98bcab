package payroll

// RoundMinutes rounds m to the nearest multiple of granularity. A remainder
// of at least half the granularity (integer half) rounds up, so 532 at 15
// gives 540 and 9560 at 30 gives 9570.
func RoundMinutes(m, granularity int) int {
	if granularity <= 0 || m <= 0 {
		return max(m, 0)
	}
	rem := m % granularity
	if rem == 0 {
		return m
	}
	if rem >= granularity/2 {
		return m - rem + granularity
	}
	return m - rem
}

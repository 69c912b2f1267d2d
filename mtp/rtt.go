package mtp

// round-trip estimation, the standard EWMA pair over virtual milliseconds

const (
	// probe timeout before any sample exists
	initialPTO int64 = 1000

	// floor on the variance contribution to the probe timeout
	minPTOVar int64 = 1

	timerGranularity int64 = 1
)

type rttStats struct {
	latest   int64
	smoothed int64
	rttvar   int64
	minRTT   int64

	hasSample bool
}

// update folds one new sample in
func (rtt *rttStats) update(sample int64) {
	if sample < 0 {
		return
	}
	rtt.latest = sample
	if !rtt.hasSample {
		rtt.smoothed = sample
		rtt.rttvar = sample / 2
		rtt.minRTT = sample
		rtt.hasSample = true
		return
	}
	if sample < rtt.minRTT {
		rtt.minRTT = sample
	}
	diff := rtt.smoothed - sample
	if diff < 0 {
		diff = -diff
	}
	rtt.rttvar = (3*rtt.rttvar + diff) / 4
	rtt.smoothed = (7*rtt.smoothed + sample) / 8
}

// pto returns the base probe timeout
func (rtt *rttStats) pto() int64 {
	if !rtt.hasSample {
		return initialPTO
	}
	v := 4 * rtt.rttvar
	if v < minPTOVar {
		v = minPTOVar
	}
	return rtt.smoothed + v + timerGranularity
}

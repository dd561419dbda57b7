package circuitflow

import "time"

// TotalTokens sums tokenCost.totalTokens over every stage that has reported
// usage.
func (s Snapshot) TotalTokens() int64 {
	var total int64
	for _, st := range s.Stages {
		if st.TokenCost != nil {
			total += st.TokenCost.TotalTokens
		}
	}
	return total
}

// TotalCost sums the estimated dollar cost over every stage that has reported
// usage.
func (s Snapshot) TotalCost() float64 {
	var total float64
	for _, st := range s.Stages {
		if st.TokenCost != nil {
			total += st.TokenCost.EstimatedCost
		}
	}
	return total
}

// TotalDuration is the time from the run start to the latest stage end, or
// zero when no stage has finished or no run start is recorded.
func (s Snapshot) TotalDuration() time.Duration {
	if s.RunStart.IsZero() {
		return 0
	}
	var latest time.Time
	for _, st := range s.Stages {
		if st.Status.IsTerminal() && st.EndTime.After(latest) {
			latest = st.EndTime
		}
	}
	if latest.IsZero() {
		return 0
	}
	return latest.Sub(s.RunStart)
}

// Progress is the percentage of stages that reached terminal success,
// in [0, 100].
func (s Snapshot) Progress() float64 {
	if len(s.Stages) == 0 {
		return 0
	}
	done := 0
	for _, st := range s.Stages {
		if st.Status.IsSuccess() {
			done++
		}
	}
	return 100 * float64(done) / float64(len(s.Stages))
}

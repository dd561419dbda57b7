package circuitflow

import "time"

// timingTable records provisional start instants for stages whose running
// transition carried no server timing. It exists outside the stage records on
// purpose: observers may coalesce rapid snapshots, so a fast running-to-
// terminal transition could otherwise lose its start instant. The table is
// written synchronously the moment a running transition is recognized and is
// cleared whenever a run starts or resets.
type timingTable struct {
	started map[string]time.Time
}

func newTimingTable() *timingTable {
	return &timingTable{started: make(map[string]time.Time)}
}

// markStarted captures now as the provisional start for the stage. Re-marking
// an already-started stage is a no-op, so replayed running events cannot move
// the start instant.
func (t *timingTable) markStarted(stageID string, now time.Time) {
	if _, ok := t.started[stageID]; ok {
		return
	}
	t.started[stageID] = now
}

func (t *timingTable) startFor(stageID string) (time.Time, bool) {
	ts, ok := t.started[stageID]
	return ts, ok
}

func (t *timingTable) reset() {
	clear(t.started)
}

// reconcileStart stamps timing for a running transition. Server-supplied
// timing takes priority; otherwise the wall clock is captured in both the
// side-table and the stage record.
func (s *Store) reconcileStart(stage *Stage, now time.Time) {
	s.timing.markStarted(stage.ID, now)
	if stage.StartTime.IsZero() {
		stage.StartTime = now
	}
}

// reconcileEnd stamps timing for a terminal transition. When the event
// carried an authoritative duration, the start is back-dated from it so that
// duration always equals end minus start. Otherwise the start is recovered
// from, in order: the side-table, the stage's own recorded start, the run
// start, and finally the current wall clock.
func (s *Store) reconcileEnd(stage *Stage, a actionTiming, now time.Time) {
	if a.hasDuration {
		dur := a.durationMS
		if dur < 0 {
			dur = 0
		}
		stage.EndTime = now
		stage.StartTime = now.Add(-time.Duration(dur) * time.Millisecond)
		stage.DurationMS = dur
		return
	}

	start, ok := s.timing.startFor(stage.ID)
	if !ok {
		switch {
		case !stage.StartTime.IsZero():
			start = stage.StartTime
		case !s.runStart.IsZero():
			start = s.runStart
		default:
			start = now
		}
	}

	stage.StartTime = start
	stage.EndTime = now
	stage.DurationMS = max(now.Sub(start).Milliseconds(), 0)
}

// actionTiming is the timing-relevant slice of a stage action.
type actionTiming struct {
	durationMS  int64
	hasDuration bool
}

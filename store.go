package circuitflow

import (
	"log/slog"
	"time"

	"github.com/impromptu-ai/circuitflow/event"
)

// Store is the mutable view of one pipeline run: the ordered stage list plus
// the timing side-table. It assumes a single logical writer — the run's
// stream-consumption loop — submitting actions strictly in arrival order, so
// it carries no lock of its own.
type Store struct {
	stages   []*Stage
	index    map[string]*Stage
	focused  string
	runStart time.Time
	running  bool

	timing  *timingTable
	now     func() time.Time
	onApply func(Snapshot)
	logger  *slog.Logger
}

// Snapshot is an immutable copy of the store taken after an action was
// applied. Aggregate queries are defined on it, see aggregate.go.
type Snapshot struct {
	Stages []Stage `json:"stages"`
	// Focused is the id of the stage most recently touched by a
	// stage-level action. It is a presentation hint for observers, not
	// part of the stage state itself.
	Focused  string    `json:"focused,omitempty"`
	RunStart time.Time `json:"runStart,omitzero"`
	Running  bool      `json:"running"`
}

// NewStore builds a store over a copy of the given stage definitions. The
// definition order is the pipeline order and never changes at runtime.
func NewStore(defs []Stage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		index:  make(map[string]*Stage, len(defs)),
		timing: newTimingTable(),
		now:    time.Now,
		logger: logger,
	}
	for _, def := range defs {
		st := def
		st.Substages = append([]Substage(nil), def.Substages...)
		st.Status = event.StatusPending
		s.stages = append(s.stages, &st)
		s.index[st.ID] = &st
	}
	return s
}

// Observe registers the observer called with a fresh snapshot after every
// successfully applied action. Must be set before the run loop starts.
func (s *Store) Observe(fn func(Snapshot)) {
	s.onApply = fn
}

// Begin resets every stage and substage to pending, clears results, costs,
// timing and the side-table, and marks the run as started.
func (s *Store) Begin() {
	s.timing.reset()
	s.runStart = s.now()
	s.running = true
	s.focused = ""
	for _, st := range s.stages {
		st.Status = event.StatusPending
		st.Result = nil
		st.TokenCost = nil
		st.StartTime = time.Time{}
		st.EndTime = time.Time{}
		st.DurationMS = 0
		for i := range st.Substages {
			st.Substages[i].Status = event.StatusPending
		}
	}
}

// Apply mutates exactly one stage (and at most one of its substages) per
// call. Actions referencing an unknown stage or substage id are ignored.
// Every applied action publishes a snapshot to the observer.
func (s *Store) Apply(a event.Action) {
	switch a := a.(type) {
	case event.StageAction:
		s.applyStage(a)
	case event.SubstageAction:
		s.applySubstage(a)
	}
}

func (s *Store) applyStage(a event.StageAction) {
	st, ok := s.index[a.StageID]
	if !ok {
		s.logger.Debug("ignoring event for unknown stage", "stage", a.StageID)
		return
	}

	now := s.now()
	switch {
	case a.Status == event.StatusRunning:
		// Capture the start instant before anything becomes visible to
		// observers, so a coalesced fast transition cannot lose it.
		if !a.HasDuration {
			s.reconcileStart(st, now)
		}
	case a.Status.IsTerminal():
		s.reconcileEnd(st, actionTiming{durationMS: a.DurationMS, hasDuration: a.HasDuration}, now)
	}

	st.Status = a.Status
	if a.Result != nil {
		st.Result = a.Result
	}
	if a.TokenCost != nil {
		st.TokenCost = a.TokenCost
	}
	s.focused = st.ID

	s.publish()
}

func (s *Store) applySubstage(a event.SubstageAction) {
	st, ok := s.index[a.StageID]
	if !ok {
		s.logger.Debug("ignoring event for unknown stage", "stage", a.StageID)
		return
	}
	for i := range st.Substages {
		if st.Substages[i].ID == a.SubstageID {
			st.Substages[i].Status = a.Status
			s.publish()
			return
		}
	}
	s.logger.Debug("ignoring event for unknown substage", "stage", a.StageID, "substage", a.SubstageID)
}

// AbortRunning forces every stage currently running into the error state,
// finalizing its timing. Stages that never started stay pending. Called when
// the stream ends abnormally; already-accumulated history is preserved.
func (s *Store) AbortRunning() {
	now := s.now()
	changed := false
	for _, st := range s.stages {
		if st.Status != event.StatusRunning {
			continue
		}
		s.reconcileEnd(st, actionTiming{}, now)
		st.Status = event.StatusError
		changed = true
	}
	s.running = false
	if changed {
		s.publish()
	}
}

// End marks the run as no longer running without touching stage state.
func (s *Store) End() {
	s.running = false
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Stages:   make([]Stage, 0, len(s.stages)),
		Focused:  s.focused,
		RunStart: s.runStart,
		Running:  s.running,
	}
	for _, st := range s.stages {
		cp := *st
		cp.Substages = append([]Substage(nil), st.Substages...)
		if st.TokenCost != nil {
			tc := *st.TokenCost
			cp.TokenCost = &tc
		}
		snap.Stages = append(snap.Stages, cp)
	}
	return snap
}

func (s *Store) publish() {
	if s.onApply != nil {
		s.onApply(s.Snapshot())
	}
}

// Package offset tracks, per partition, the highest contiguous offset
// that has been acknowledged ("finished") while acknowledgements arrive
// out of order. It also produces the immutable ConsumerState snapshot
// used to persist and restore that bookkeeping across restarts.
package offset

import (
	"sort"

	"github.com/downfa11-org/sideline-consumer/internal/metrics"
	"github.com/downfa11-org/sideline-consumer/util"
)

// Manager tracks started-but-unfinished offsets and the out-of-order
// finished ones for a single partition, collapsing them into
// lastFinished as contiguous runs complete. A Manager is not safe for
// concurrent use from more than one goroutine; the Consumer serializes
// all calls against a given partition (spec §4.1, §5).
type Manager struct {
	label string // diagnostic namespace, e.g. "<topic>-<partition>"

	tracked        map[int64]struct{}
	finishedOOO    []int64 // kept sorted ascending; see I1/I2
	lastFinished   int64
	lastStarted    int64
	highWaterWarned bool
}

// HighWaterMark is the finishedOOO size above which FinishOffset logs a
// warning, once per crossing: it warns again only after the size has
// dropped back to HighWaterMark or below and then exceeded it — an unbounded gap
// between started and finished offsets is an upstream bug to surface,
// not silently absorb (spec §9).
const HighWaterMark = 10_000

// New creates a manager for one partition, seeded with the starting
// offset (the last persisted committed offset, or types.NoOffset when
// none existed). label is used only for diagnostics.
func New(label string, startingOffset int64) *Manager {
	return &Manager{
		label:        label,
		tracked:      make(map[int64]struct{}),
		lastFinished: startingOffset,
		lastStarted:  startingOffset,
	}
}

// StartOffset records that offset o has been handed to the caller and is
// now outstanding. Idempotent: starting the same offset twice is a no-op
// beyond the set insertion.
func (m *Manager) StartOffset(o int64) {
	m.tracked[o] = struct{}{}
	if o >= m.lastStarted {
		m.lastStarted = o
	} else {
		util.Warn("offset manager %s: start_offset(%d) is behind last_started=%d", m.label, o, m.lastStarted)
	}
	metrics.TrackedSize.WithLabelValues(m.label).Set(float64(len(m.tracked)))
}

// FinishOffset acknowledges offset o. If o was never started it is
// logged and ignored — the broker log is the source of truth and will
// redeliver. Otherwise it either collapses the contiguous prefix
// (o == earliest outstanding) or is parked in the out-of-order set.
func (m *Manager) FinishOffset(o int64) {
	if _, ok := m.tracked[o]; !ok {
		util.Warn("offset manager %s: finish_offset(%d) for an offset not tracked", m.label, o)
		return
	}

	earliest := m.minTracked()
	delete(m.tracked, o)

	if o == earliest {
		m.collapseFrom(o)
	} else {
		m.insertOutOfOrder(o)
	}

	metrics.TrackedSize.WithLabelValues(m.label).Set(float64(len(m.tracked)))
	metrics.OutOfOrderSize.WithLabelValues(m.label).Set(float64(len(m.finishedOOO)))
	metrics.LastFinishedOffset.WithLabelValues(m.label).Set(float64(m.lastFinished))

	if len(m.finishedOOO) > HighWaterMark {
		if !m.highWaterWarned {
			util.Warn("offset manager %s: finished_out_of_order has grown past %d entries (last_finished=%d); downstream acks are not catching up with the contiguous prefix", m.label, HighWaterMark, m.lastFinished)
			m.highWaterWarned = true
		}
	} else {
		m.highWaterWarned = false
	}
}

// collapseFrom advances lastFinished starting at o, walking the
// out-of-order set while it continues contiguously.
func (m *Manager) collapseFrom(o int64) {
	if len(m.finishedOOO) == 0 {
		m.lastFinished = o
		return
	}

	m.lastFinished = o
	next := o + 1
	i := 0
	for i < len(m.finishedOOO) && m.finishedOOO[i] == next {
		m.lastFinished = next
		next++
		i++
	}
	if i > 0 {
		m.finishedOOO = m.finishedOOO[i:]
	}
}

// insertOutOfOrder inserts o into the sorted finishedOOO slice,
// maintaining invariant I2 (every member is strictly > lastFinished+1).
func (m *Manager) insertOutOfOrder(o int64) {
	idx := sort.Search(len(m.finishedOOO), func(i int) bool { return m.finishedOOO[i] >= o })
	if idx < len(m.finishedOOO) && m.finishedOOO[idx] == o {
		return // already recorded; finish_offset is idempotent
	}
	m.finishedOOO = append(m.finishedOOO, 0)
	copy(m.finishedOOO[idx+1:], m.finishedOOO[idx:])
	m.finishedOOO[idx] = o
}

func (m *Manager) minTracked() int64 {
	min := int64(0)
	first := true
	for o := range m.tracked {
		if first || o < min {
			min = o
			first = false
		}
	}
	return min
}

// LastFinishedOffset returns the highest offset X such that every offset
// in [earliest_started, X] has been finished.
func (m *Manager) LastFinishedOffset() int64 {
	return m.lastFinished
}

// LastStartedOffset answers "what offset would I seek to next": the
// highest offset ever started, or one past the last finished offset when
// nothing has been started yet.
func (m *Manager) LastStartedOffset() int64 {
	next := m.lastFinished + 1
	if m.lastStarted > next {
		return m.lastStarted
	}
	return next
}

// OutOfOrderSize reports how many acknowledged offsets are parked behind
// a gap, for tests and observability.
func (m *Manager) OutOfOrderSize() int {
	return len(m.finishedOOO)
}

package journal

import (
	"sync"
	"time"

	"gridrun/server/internal/sim"
)

// Telemetry captures the metrics adapter used by the journal to report drops.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

// Patch is the diff entry staged by the simulation between broadcasts.
type Patch = sim.Patch

// Keyframe pairs a full state snapshot with the broadcast sequence it shipped
// under. Clients that lose the patch stream ask for one by sequence.
type Keyframe struct {
	Sequence   uint64
	Frame      sim.FrameNumber
	Snapshot   sim.Snapshot
	RecordedAt time.Time
}

// KeyframeEviction names a keyframe dropped from the retention window and the
// reason it went.
type KeyframeEviction struct {
	Sequence uint64
	Frame    sim.FrameNumber
	Reason   string
}

// KeyframeRecordResult summarises the retention window after a record call.
type KeyframeRecordResult struct {
	Size           int
	OldestSequence uint64
	NewestSequence uint64
	Evicted        []KeyframeEviction
}

// Journal accumulates the patches generated between broadcasts and keeps a
// rolling buffer of recent keyframes so clients can recover from gaps in the
// patch stream without a full reconnect.
type Journal struct {
	mu        sync.RWMutex
	patches   []Patch
	keyframes []Keyframe
	maxFrames int
	maxAge    time.Duration
	lastSeq   uint64
	telemetry Telemetry
	resync    *Policy
}

// New constructs a journal with storage for the configured number of
// keyframes and retention window.
func New(keyframeCapacity int, maxAge time.Duration) Journal {
	if keyframeCapacity < 0 {
		keyframeCapacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return Journal{
		patches:   make([]Patch, 0),
		keyframes: make([]Keyframe, 0, keyframeCapacity),
		maxFrames: keyframeCapacity,
		maxAge:    maxAge,
		resync:    NewPolicy(),
	}
}

// AppendPatch stages a patch for the next broadcast.
func (j *Journal) AppendPatch(p Patch) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.patches = append(j.patches, p)
	j.resync.NoteEvent()
}

// AppendPatches stages a whole frame's worth of patches in order.
func (j *Journal) AppendPatches(batch []Patch) {
	if len(batch) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.patches = append(j.patches, batch...)
	for range batch {
		j.resync.NoteEvent()
	}
}

// DrainPatches returns all staged patches and clears the in-memory slice.
func (j *Journal) DrainPatches() []Patch {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.patches) == 0 {
		return nil
	}
	drained := make([]Patch, len(j.patches))
	copy(drained, j.patches)
	j.patches = j.patches[:0]
	return drained
}

// SnapshotPatches returns a copy of the staged patches without clearing the
// journal.
func (j *Journal) SnapshotPatches() []Patch {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.patches) == 0 {
		return nil
	}
	snapshot := make([]Patch, len(j.patches))
	copy(snapshot, j.patches)
	return snapshot
}

// RestorePatches prepends the provided patches back into the journal. It is
// used when a caller drains the journal but later needs to roll the operation
// back (for example, if encoding fails and the state message cannot be sent).
func (j *Journal) RestorePatches(p []Patch) {
	if len(p) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	restored := make([]Patch, 0, len(p)+len(j.patches))
	restored = append(restored, p...)
	restored = append(restored, j.patches...)
	j.patches = restored
}

// RecordKeyframe stores a keyframe in the buffer enforcing retention limits
// by count and age. Sequences must grow monotonically; a stale or repeated
// sequence is dropped and reported through telemetry, never stored.
func (j *Journal) RecordKeyframe(frame Keyframe) KeyframeRecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxFrames == 0 {
		j.keyframes = j.keyframes[:0]
		return KeyframeRecordResult{}
	}

	if frame.Sequence <= j.lastSeq {
		j.recordJournalDropLocked(metricJournalNonMonotonicSeq)
		return j.windowResultLocked(nil)
	}
	j.lastSeq = frame.Sequence

	frame.RecordedAt = time.Now()
	frame.Snapshot = frame.Snapshot.Clone()
	j.keyframes = append(j.keyframes, frame)
	j.resync.NoteEvent()

	cutoff := time.Time{}
	if j.maxAge > 0 {
		cutoff = frame.RecordedAt.Add(-j.maxAge)
	}

	evicted := make([]KeyframeEviction, 0)
	if !cutoff.IsZero() {
		idx := 0
		for idx < len(j.keyframes) {
			if !j.keyframes[idx].RecordedAt.Before(cutoff) {
				break
			}
			evicted = append(evicted, KeyframeEviction{
				Sequence: j.keyframes[idx].Sequence,
				Frame:    j.keyframes[idx].Frame,
				Reason:   "expired",
			})
			idx++
		}
		if idx > 0 {
			copy(j.keyframes, j.keyframes[idx:])
			j.keyframes = j.keyframes[:len(j.keyframes)-idx]
		}
	}

	if j.maxFrames > 0 && len(j.keyframes) > j.maxFrames {
		overflow := len(j.keyframes) - j.maxFrames
		for i := 0; i < overflow; i++ {
			stale := j.keyframes[i]
			evicted = append(evicted, KeyframeEviction{
				Sequence: stale.Sequence,
				Frame:    stale.Frame,
				Reason:   "count",
			})
		}
		copy(j.keyframes, j.keyframes[overflow:])
		j.keyframes = j.keyframes[:len(j.keyframes)-overflow]
	}

	return j.windowResultLocked(evicted)
}

func (j *Journal) windowResultLocked(evicted []KeyframeEviction) KeyframeRecordResult {
	size := len(j.keyframes)
	result := KeyframeRecordResult{Size: size, Evicted: evicted}
	if size > 0 {
		result.OldestSequence = j.keyframes[0].Sequence
		result.NewestSequence = j.keyframes[size-1].Sequence
	}
	return result
}

// Keyframes exposes the current keyframe buffer contents in chronological
// order. Callers receive deep copies to avoid holding references into the
// buffer.
func (j *Journal) Keyframes() []Keyframe {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.keyframes) == 0 {
		return nil
	}
	frames := make([]Keyframe, len(j.keyframes))
	copy(frames, j.keyframes)
	for i := range frames {
		frames[i].Snapshot = frames[i].Snapshot.Clone()
	}
	return frames
}

// KeyframeBySequence returns the keyframe matching the provided sequence.
func (j *Journal) KeyframeBySequence(sequence uint64) (Keyframe, bool) {
	if sequence == 0 {
		return Keyframe{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, frame := range j.keyframes {
		if frame.Sequence == sequence {
			frame.Snapshot = frame.Snapshot.Clone()
			return frame, true
		}
	}
	return Keyframe{}, false
}

// KeyframeWindow reports the current retention window.
func (j *Journal) KeyframeWindow() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.keyframes)
	if size == 0 {
		return size, 0, 0
	}
	oldest = j.keyframes[0].Sequence
	newest = j.keyframes[size-1].Sequence
	return size, oldest, newest
}

// NoteKeyframeMiss records that a client asked for a keyframe the retention
// window no longer holds. Enough misses relative to journal traffic raise a
// resync hint.
func (j *Journal) NoteKeyframeMiss(sequence uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recordJournalDropLocked(metricJournalKeyframeMiss)
	j.resync.NoteMiss(metricJournalKeyframeMiss, sequence)
}

// ConsumeResyncHint reports whether the journal observed a miss pattern that
// should trigger a fresh keyframe broadcast. Counters reset after each
// consumption so the caller can re-evaluate on subsequent frames.
func (j *Journal) ConsumeResyncHint() (ResyncSignal, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.resync == nil {
		return ResyncSignal{}, false
	}
	return j.resync.Consume()
}

const (
	metricJournalNonMonotonicSeq = "journal_nonmonotonic_seq"
	metricJournalKeyframeMiss    = "journal_keyframe_miss"
)

func (j *Journal) recordJournalDropLocked(metric string) {
	if j.telemetry == nil || metric == "" {
		return
	}
	j.telemetry.RecordJournalDrop(metric)
}

func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}

package journal

import (
	"fmt"
)

// ResyncReason records one recovery miss and the keyframe sequence involved.
type ResyncReason struct {
	Kind     string
	Sequence uint64
}

// ResyncSignal summarises the miss pattern that raised a resync hint.
type ResyncSignal struct {
	Misses      uint64
	TotalEvents uint64
	Reasons     []ResyncReason
}

// Policy decides when the volume of recovery misses warrants pushing a fresh
// keyframe to everyone instead of serving lookups one by one.
type Policy struct {
	totalEvents uint64
	misses      uint64
	pending     bool
	reasons     []ResyncReason
}

const missThresholdPerTenThousand = 1
const resyncReasonLimit = 8

func NewPolicy() *Policy {
	return &Policy{reasons: make([]ResyncReason, 0, resyncReasonLimit)}
}

func (p *Policy) NoteEvent() {
	if p == nil {
		return
	}
	if p.totalEvents == ^uint64(0) {
		p.totalEvents = p.totalEvents / 2
		p.misses = p.misses / 2
	}
	p.totalEvents++
}

func (p *Policy) NoteMiss(kind string, sequence uint64) {
	if p == nil {
		return
	}
	p.misses++
	if len(p.reasons) < resyncReasonLimit {
		p.reasons = append(p.reasons, ResyncReason{Kind: kind, Sequence: sequence})
	}
	p.evaluate()
}

func (p *Policy) evaluate() {
	if p == nil || p.pending || p.misses == 0 {
		return
	}
	total := p.totalEvents
	if total == 0 {
		total = 1
	}
	if p.misses*10000 >= total*missThresholdPerTenThousand {
		p.pending = true
	}
}

func (p *Policy) Consume() (ResyncSignal, bool) {
	if p == nil || !p.pending {
		return ResyncSignal{}, false
	}
	signal := ResyncSignal{
		Misses:      p.misses,
		TotalEvents: p.totalEvents,
		Reasons:     append([]ResyncReason(nil), p.reasons...),
	}
	p.pending = false
	p.totalEvents = 0
	p.misses = 0
	if len(p.reasons) > 0 {
		p.reasons = p.reasons[:0]
	}
	return signal, true
}

func (s ResyncSignal) Summary() string {
	if s.Misses == 0 && s.TotalEvents == 0 {
		return ""
	}
	return fmt.Sprintf("misses=%d total_events=%d reasons=%v", s.Misses, s.TotalEvents, s.Reasons)
}

// Package height locates a node's authoritative photo and reads attachment
// heights from its measurement channels.
package height

import (
	"math"
	"sort"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/pkg/katapult"
)

// Measurement channels inside photofirst_data.
const (
	ChannelWire   = "wire"
	ChannelGuying = "guying"
)

// FromMeasured converts a raw measured value in fractional inches to whole
// inches by floor. Negative and non-finite values yield nil.
func FromMeasured(inches float64) *model.Height {
	if inches < 0 || math.IsNaN(inches) || math.IsInf(inches, 0) {
		return nil
	}
	return &model.Height{TotalInches: int(math.Floor(inches))}
}

// Criteria selects the traces a caller accepts within one channel. Empty
// string fields match anything.
type Criteria struct {
	Channel   string
	Company   string
	TraceType string
	CableType string
	Proposed  bool // require the trace to be a proposed attachment
}

// Match reports whether t satisfies c.
func (c Criteria) Match(t katapult.Trace) bool {
	if c.Proposed && !t.Proposed.True() {
		return false
	}
	if c.Company != "" && !t.Company.Is(c.Company) {
		return false
	}
	if c.TraceType != "" && !t.TraceType.Is(c.TraceType) {
		return false
	}
	if c.CableType != "" && !t.CableType.Is(c.CableType) {
		return false
	}
	return true
}

// Filter is an ordered list of criteria; earlier entries win.
type Filter []Criteria

// PoleAttachment is the point-of-attachment filter: the company's proposed
// fiber cable on the wire channel, falling back to its proposed down guy.
func PoleAttachment(company string) Filter {
	return Filter{
		{Channel: ChannelWire, Company: company, TraceType: "cable", CableType: "Fiber Optic Com", Proposed: true},
		{Channel: ChannelGuying, Company: company, TraceType: "down_guy", Proposed: true},
	}
}

// MidspanAttachment is the mid-span filter for aerial cable: any proposed
// wire owned by company.
func MidspanAttachment(company string) Filter {
	return Filter{{Channel: ChannelWire, Company: company, Proposed: true}}
}

// DownGuy matches any down guy trace on the guying channel.
var DownGuy = Criteria{Channel: ChannelGuying, TraceType: "down_guy"}

// MainPhoto returns the id of the photo associated as "main". When several
// are, the smallest id wins.
func MainPhoto(refs map[string]katapult.PhotoRef) (string, bool) {
	var best string
	for id, ref := range refs {
		if !ref.Association.Is("main") {
			continue
		}
		if best == "" || id < best {
			best = id
		}
	}
	return best, best != ""
}

// Source is the job-level photo and trace tables that node photo refs point into.
type Source struct {
	Photos map[string]katapult.Photo
	Traces map[string]katapult.Trace
}

// FromJob builds a Source over a raw job.
func FromJob(j *katapult.Job) Source {
	return Source{Photos: j.Photos, Traces: j.Traces.TraceData}
}

// Extract scans the main photo's channels in filter order and returns the
// first matching entry's height. Channel entries are visited in sorted id
// order. No match, or no main photo, yields nil.
func (s Source) Extract(refs map[string]katapult.PhotoRef, f Filter) *model.Height {
	photo, ok := s.mainPhoto(refs)
	if !ok {
		return nil
	}
	for _, c := range f {
		ch := photo.Channel(c.Channel)
		for _, id := range sortedKeys(ch) {
			m := ch[id]
			tr, ok := s.Traces[string(m.Trace)]
			if !ok || !c.Match(tr) || !m.MeasuredHeight.Valid {
				continue
			}
			if h := FromMeasured(m.MeasuredHeight.Value); h != nil {
				return h
			}
		}
	}
	return nil
}

// Has reports whether the main photo carries any trace matching c.
func (s Source) Has(refs map[string]katapult.PhotoRef, c Criteria) bool {
	photo, ok := s.mainPhoto(refs)
	if !ok {
		return false
	}
	for _, m := range photo.Channel(c.Channel) {
		if tr, ok := s.Traces[string(m.Trace)]; ok && c.Match(tr) {
			return true
		}
	}
	return false
}

func (s Source) mainPhoto(refs map[string]katapult.PhotoRef) (katapult.Photo, bool) {
	id, ok := MainPhoto(refs)
	if !ok {
		return katapult.Photo{}, false
	}
	p, ok := s.Photos[id]
	return p, ok
}

func sortedKeys(m map[string]katapult.Measurement) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package extract walks a raw job graph and produces canonical nodes,
// connections and anchors.
package extract

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/height"
	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/internal/resolve"
	"github.com/deeplydigital/pole-burndown/pkg/katapult"
)

// DefaultAttachmentCompany owns the proposed attachments whose heights are read.
const DefaultAttachmentCompany = "Clearnetworx"

// Skipped counts raw entities left out of a Result.
type Skipped struct {
	MissingCoordinates int `json:"missing_coordinates"`
	References         int `json:"references"`
	Unclassified       int `json:"unclassified"`
	Connections        int `json:"connections"`
}

// Result is the canonical view of one job.
type Result struct {
	Utility     string             `json:"utility"`
	Nodes       []model.Node       `json:"nodes"`
	Connections []model.Connection `json:"connections"`
	Anchors     []model.Anchor     `json:"anchors"`
	Skipped     Skipped            `json:"skipped"`
}

// Poles returns the nodes classified as poles.
func (r Result) Poles() []model.Node {
	var out []model.Node
	for _, n := range r.Nodes {
		if n.IsPole() {
			out = append(out, n)
		}
	}
	return out
}

// Extractor converts raw jobs. It holds no per-job state and is safe for
// concurrent use.
type Extractor struct {
	priorities resolve.Priorities
	company    string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPriorities overrides the attribute source priorities.
func WithPriorities(p resolve.Priorities) Option {
	return func(e *Extractor) { e.priorities = p }
}

// WithAttachmentCompany sets the company whose proposed attachments are measured.
func WithAttachmentCompany(company string) Option {
	return func(e *Extractor) {
		if company != "" {
			e.company = company
		}
	}
}

// New creates an Extractor with the documented priorities.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		priorities: resolve.DefaultPriorities(),
		company:    DefaultAttachmentCompany,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract normalizes one raw job. Nodes and connections are visited in
// sorted id order so output order is stable.
func (e *Extractor) Extract(job *katapult.Job) Result {
	var r Result
	src := height.FromJob(job)
	log := zap.L().With(zap.String("job_id", job.ID))

	for _, id := range job.NodeIDs() {
		raw := job.Nodes[id]
		logMalformed(log, "node", id, raw.Attributes)

		typ := e.classify(id, raw.Attributes)
		switch typ {
		case model.NodeTypeReference:
			r.Skipped.References++
			continue
		case model.NodeTypeUnknown:
			r.Skipped.Unclassified++
			continue
		}

		if !raw.Latitude.Valid || !raw.Longitude.Valid {
			r.Skipped.MissingCoordinates++
			log.Debug("extract: skipping node without coordinates",
				zap.String("node_id", id),
				zap.String("type", string(typ)),
			)
			continue
		}

		n := e.node(job, id, raw, typ, src)
		r.Nodes = append(r.Nodes, n)

		if typ == model.NodeTypeAnchor {
			r.Anchors = append(r.Anchors, model.Anchor{
				ID:         id,
				JobID:      job.ID,
				Latitude:   n.Latitude,
				Longitude:  n.Longitude,
				AnchorSpec: resolve.Resolve(raw.Attributes, "anchor_spec", e.priorities.AnchorSpec).String(),
			})
		}
	}

	r.Utility = jobUtility(job, r.Nodes)
	for i := range r.Nodes {
		if r.Nodes[i].Utility == model.Unknown {
			r.Nodes[i].Utility = r.Utility
		}
	}

	for _, id := range job.ConnectionIDs() {
		c, ok := e.connection(job, id, src)
		if !ok {
			r.Skipped.Connections++
			continue
		}
		r.Connections = append(r.Connections, c)
	}

	log.Debug("extract: job normalized",
		zap.Int("nodes", len(r.Nodes)),
		zap.Int("connections", len(r.Connections)),
		zap.Int("anchors", len(r.Anchors)),
		zap.Int("skipped_missing_coordinates", r.Skipped.MissingCoordinates),
	)
	return r
}

// classify applies reference exclusion before pole inclusion.
func (e *Extractor) classify(id string, b resolve.Bag) model.NodeType {
	p := e.priorities.Type
	isRef := resolve.Matches(b, "node_type", p, resolve.Equals("reference"))
	isPole := resolve.Matches(b, "node_type", p, resolve.Equals("pole")) ||
		strings.Contains(strings.ToLower(id), "pole")

	switch {
	case isPole && !isRef:
		return model.NodeTypePole
	case resolve.Matches(b, "node_type", p, resolve.Equals("new anchor")):
		return model.NodeTypeAnchor
	case isRef:
		return model.NodeTypeReference
	}
	return model.NodeTypeUnknown
}

func (e *Extractor) node(job *katapult.Job, id string, raw katapult.Node, typ model.NodeType, src height.Source) model.Node {
	b := raw.Attributes
	p := e.priorities
	done, _ := resolve.Completion(b, p)

	n := model.Node{
		ID:                 id,
		JobID:              job.ID,
		JobName:            job.Name,
		Latitude:           raw.Latitude.Value,
		Longitude:          raw.Longitude.Value,
		Type:               typ,
		Utility:            resolve.Utility(b, p).String(),
		FieldCompleted:     done,
		BackOfficeComplete: resolve.BackOfficeDone(b, p),
		MRStatus:           mrStatus(b, p),
		PoleClass:          resolve.Resolve(b, "pole_class", p.PoleClass).String(),
		PoleHeight:         resolve.Resolve(b, "pole_height", p.PoleHeight).String(),
		PoleSpec:           resolve.Resolve(b, "pole_spec", p.PoleSpec).String(),
		Tag:                resolve.ResolveKey(b, "pole_tag", p.Utility, "tagtext").String(),
		SCID:               resolve.Resolve(b, "scid", p.SCID).String(),
	}
	if typ == model.NodeTypePole {
		n.POAHeight = src.Extract(raw.Photos, height.PoleAttachment(e.company))
	}
	n.Editors = Editors(job, raw.Photos)
	if len(n.Editors) > 0 {
		last := n.Editors[0]
		n.LastEditor = &last
	}
	return n
}

// mrStatus: a proposed pole spec means a pole change-out; otherwise the
// calculated MR state plus the presence of a warning decides comm vs electric.
func mrStatus(b resolve.Bag, p resolve.Priorities) model.MRStatus {
	if b.Has("proposed_pole_spec") {
		return model.MRStatusPCORequired
	}
	state := resolve.Resolve(b, "mr_state", p.MR)
	warning := b.Has("warning")
	switch {
	case state.Is("No MR") && !warning:
		return model.MRStatusNone
	case state.Is("MR Resolved") && !warning:
		return model.MRStatusComm
	case state.Is("MR Resolved") && warning:
		return model.MRStatusElectric
	}
	return model.MRStatusUnknown
}

func (e *Extractor) connection(job *katapult.Job, id string, src height.Source) (model.Connection, bool) {
	raw := job.Connections[id]
	logMalformed(zap.L().With(zap.String("job_id", job.ID)), "connection", id, raw.Attributes)

	typ := resolve.Resolve(raw.Attributes, "connection_type", e.priorities.Connection).String()
	if strings.EqualFold(typ, "reference") {
		return model.Connection{}, false
	}

	start, okStart := job.Nodes[raw.NodeID1]
	end, okEnd := job.Nodes[raw.NodeID2]
	if raw.NodeID1 == "" || raw.NodeID2 == "" || !okStart || !okEnd ||
		!hasCoordinates(start) || !hasCoordinates(end) {
		zap.L().Debug("extract: dropping connection without endpoint coordinates",
			zap.String("job_id", job.ID),
			zap.String("connection_id", id),
		)
		return model.Connection{}, false
	}

	c := model.Connection{
		ID:        id,
		JobID:     job.ID,
		JobName:   job.Name,
		Type:      typ,
		StartNode: raw.NodeID1,
		EndNode:   raw.NodeID2,
		StartLat:  start.Latitude.Value,
		StartLng:  start.Longitude.Value,
		EndLat:    end.Latitude.Value,
		EndLng:    end.Longitude.Value,
	}
	if mid, ok := raw.Midpoint(); ok {
		c.DownGuy = src.Has(mid.Photos, height.DownGuy)
		if strings.EqualFold(typ, "aerial cable") {
			c.MidHeight = src.Extract(mid.Photos, height.MidspanAttachment(e.company))
		}
	}
	return c, true
}

func hasCoordinates(n katapult.Node) bool {
	return n.Latitude.Valid && n.Longitude.Valid
}

// Editors reduces the edit histories of every photo on a node to the newest
// edit per editor, newest first. Ties order by editor id.
func Editors(job *katapult.Job, refs map[string]katapult.PhotoRef) []model.Edit {
	latest := make(map[string]int64)
	for photoID := range refs {
		for editor, ts := range job.Photos[photoID].Editors {
			if !ts.Valid || editor == "" {
				continue
			}
			ms := int64(ts.Value)
			if cur, ok := latest[editor]; !ok || ms > cur {
				latest[editor] = ms
			}
		}
	}
	if len(latest) == 0 {
		return nil
	}

	edits := make([]model.Edit, 0, len(latest))
	for editor, ms := range latest {
		edits = append(edits, model.Edit{Editor: editor, At: time.UnixMilli(ms).UTC()})
	}
	sort.Slice(edits, func(i, j int) bool {
		if !edits[i].At.Equal(edits[j].At) {
			return edits[i].At.After(edits[j].At)
		}
		return edits[i].Editor < edits[j].Editor
	})
	return edits
}

// jobUtility prefers the job metadata and otherwise takes a majority vote over
// resolved node utilities. Ties go to the lexicographically smallest name.
func jobUtility(job *katapult.Job, nodes []model.Node) string {
	if u := job.Metadata.String("utility"); u != "" {
		return u
	}
	votes := make(map[string]int)
	for _, n := range nodes {
		if n.Utility != model.Unknown {
			votes[n.Utility]++
		}
	}
	best, bestVotes := model.Unknown, 0
	for u, v := range votes {
		if v > bestVotes || (v == bestVotes && u < best) {
			best, bestVotes = u, v
		}
	}
	return best
}

func logMalformed(log *zap.Logger, kind, id string, b resolve.Bag) {
	for _, attr := range b.Malformed() {
		log.Warn("extract: malformed attribute resolved as unknown",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.String("attribute", attr),
		)
	}
}

package katapult

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/deeplydigital/pole-burndown/internal/resolve"
)

// JobSummary is one entry of the job list.
type JobSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// UpdatedJob is one entry of the incremental job list.
type UpdatedJob struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// User is a provider account, used to label editors in reports.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Job is the full raw job graph.
type Job struct {
	ID          string                `json:"-"`
	Name        string                `json:"name"`
	Metadata    Metadata              `json:"metadata"`
	Nodes       map[string]Node       `json:"nodes"`
	Connections map[string]Connection `json:"connections"`
	Photos      PhotoTable            `json:"photos"`
	Traces      Traces                `json:"traces"`
}

// Status returns the job's workflow status.
func (j *Job) Status() string {
	if s := j.Metadata.String("job_status"); s != "" {
		return s
	}
	return j.Metadata.String("status")
}

// NodeIDs returns node ids in sorted order.
func (j *Job) NodeIDs() []string {
	ids := make([]string, 0, len(j.Nodes))
	for id := range j.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionIDs returns connection ids in sorted order.
func (j *Job) ConnectionIDs() []string {
	ids := make([]string, 0, len(j.Connections))
	for id := range j.Connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Node is a raw pole, anchor or reference point.
type Node struct {
	Latitude   Number              `json:"latitude"`
	Longitude  Number              `json:"longitude"`
	Attributes resolve.Bag `json:"attributes"`
	Photos     PhotoRefs   `json:"photos"`
}

// UnmarshalJSON decodes a node. A node that is not an object decodes with a
// malformed attribute bag so extraction logs and skips it.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*n = Node{}
		return n.Attributes.UnmarshalJSON([]byte("[]"))
	}
	*n = Node(p)
	return nil
}

// PhotoRefs maps photo ids to their association with a node or section.
type PhotoRefs map[string]PhotoRef

func (r *PhotoRefs) UnmarshalJSON(data []byte) error {
	*r = decodeObject[PhotoRef](data)
	return nil
}

// PhotoRef links a node or section to a photo in the job photo table.
type PhotoRef struct {
	Association Text `json:"association"`
}

// PhotoTable is the job-level photo table keyed by photo id.
type PhotoTable map[string]Photo

func (t *PhotoTable) UnmarshalJSON(data []byte) error {
	*t = decodeObject[Photo](data)
	return nil
}

// Photo is a raw photo with its measurement data.
type Photo struct {
	PhotofirstData map[string]json.RawMessage `json:"photofirst_data"`
	Editors        EditTimes                  `json:"_editors"`
}

// UnmarshalJSON decodes a photo; a photo that is not an object, or whose
// photofirst_data is not an object, decodes with no measurements.
func (p *Photo) UnmarshalJSON(data []byte) error {
	var raw struct {
		PhotofirstData json.RawMessage `json:"photofirst_data"`
		Editors        EditTimes       `json:"_editors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*p = Photo{}
		return nil
	}
	*p = Photo{
		PhotofirstData: decodeObject[json.RawMessage](raw.PhotofirstData),
		Editors:        raw.Editors,
	}
	return nil
}

// EditTimes maps editor id to the unix millis of their newest edit.
type EditTimes map[string]Number

func (e *EditTimes) UnmarshalJSON(data []byte) error {
	*e = decodeObject[Number](data)
	return nil
}

// Measurement is one measured entry inside a photo channel.
type Measurement struct {
	Trace          Text   `json:"_trace"`
	MeasuredHeight Number `json:"_measured_height"`
}

// Channel decodes one photofirst_data channel ("wire", "guying", ...).
// A channel that is not an object of measurements yields nil.
func (p Photo) Channel(name string) map[string]Measurement {
	raw, ok := p.PhotofirstData[name]
	if !ok {
		return nil
	}
	var out map[string]Measurement
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Traces holds the job trace table.
type Traces struct {
	TraceData map[string]Trace `json:"trace_data"`
}

// Trace describes a cable, wire or guy drawn across photos.
type Trace struct {
	Company   Text `json:"company"`
	Proposed  Text `json:"proposed"`
	TraceType Text `json:"_trace_type"`
	CableType Text `json:"cable_type"`
}

// Connection is a raw span between two nodes.
type Connection struct {
	NodeID1    string             `json:"node_id_1"`
	NodeID2    string             `json:"node_id_2"`
	Attributes resolve.Bag        `json:"attributes"`
	Sections   map[string]Section `json:"sections"`
}

// UnmarshalJSON decodes a connection. Sections that are not objects are
// dropped; a connection that is not an object decodes with a malformed bag.
func (c *Connection) UnmarshalJSON(data []byte) error {
	var raw struct {
		NodeID1    Text            `json:"node_id_1"`
		NodeID2    Text            `json:"node_id_2"`
		Attributes resolve.Bag     `json:"attributes"`
		Sections   json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*c = Connection{}
		return c.Attributes.UnmarshalJSON([]byte("[]"))
	}
	*c = Connection{
		NodeID1:    string(raw.NodeID1),
		NodeID2:    string(raw.NodeID2),
		Attributes: raw.Attributes,
		Sections:   decodeObject[Section](raw.Sections),
	}
	return nil
}

// Section is a point along a connection that carries photos.
type Section struct {
	Photos PhotoRefs `json:"photos"`
}

// Midpoint returns the midpoint section, if present.
func (c Connection) Midpoint() (Section, bool) {
	s, ok := c.Sections["midpoint_section"]
	return s, ok
}

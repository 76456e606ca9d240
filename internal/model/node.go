package model

import (
	"fmt"
	"time"
)

// Unknown is the sentinel for any attribute that could not be resolved.
const Unknown = "Unknown"

// NodeType classifies a job node.
type NodeType string

const (
	NodeTypePole      NodeType = "pole"
	NodeTypeAnchor    NodeType = "anchor"
	NodeTypeReference NodeType = "reference"
	NodeTypeUnknown   NodeType = "unknown"
)

// MRStatus is the make-ready classification of a pole.
type MRStatus string

const (
	MRStatusNone        MRStatus = "No MR"
	MRStatusComm        MRStatus = "Comm MR"
	MRStatusElectric    MRStatus = "Electric MR"
	MRStatusPCORequired MRStatus = "PCO Required"
	MRStatusUnknown     MRStatus = "Unknown"
)

// MRStatuses lists every make-ready status in report column order.
var MRStatuses = []MRStatus{
	MRStatusNone,
	MRStatusComm,
	MRStatusElectric,
	MRStatusPCORequired,
	MRStatusUnknown,
}

// Height is an attachment height stored as signed whole inches.
type Height struct {
	TotalInches int `json:"total_inches"`
}

// Feet returns the whole-feet component.
func (h Height) Feet() int { return h.TotalInches / 12 }

// Inches returns the remainder inches after whole feet.
func (h Height) Inches() int { return h.TotalInches % 12 }

// String renders the height as feet and inches, e.g. 11' 0".
func (h Height) String() string {
	return fmt.Sprintf("%d' %d\"", h.Feet(), h.Inches())
}

// Edit is the most recent edit attributed to one editor.
type Edit struct {
	Editor string    `json:"editor"`
	At     time.Time `json:"at"`
}

// Node is a canonical pole or anchor extracted from a job.
type Node struct {
	ID                 string   `json:"id"`
	JobID              string   `json:"job_id"`
	JobName            string   `json:"job_name"`
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
	Type               NodeType `json:"type"`
	Utility            string   `json:"utility"`
	FieldCompleted     bool     `json:"field_completed"`
	BackOfficeComplete bool     `json:"back_office_complete"`
	MRStatus           MRStatus `json:"mr_status"`
	PoleClass          string   `json:"pole_class"`
	PoleHeight         string   `json:"pole_height"`
	PoleSpec           string   `json:"pole_spec"`
	Tag                string   `json:"tag"`
	SCID               string   `json:"scid"`
	POAHeight          *Height  `json:"poa_height,omitempty"`
	LastEditor         *Edit    `json:"last_editor,omitempty"`
	Editors            []Edit   `json:"editors,omitempty"` // one entry per editor, newest first
}

// IsPole reports whether the node counts toward pole totals.
func (n Node) IsPole() bool { return n.Type == NodeTypePole }

// FieldCompletedBy returns the editor credited with field completion, if any.
func (n Node) FieldCompletedBy() string {
	if !n.FieldCompleted || n.LastEditor == nil {
		return ""
	}
	return n.LastEditor.Editor
}

// Connection is a canonical span between two extracted nodes.
type Connection struct {
	ID        string  `json:"id"`
	JobID     string  `json:"job_id"`
	JobName   string  `json:"job_name"`
	Type      string  `json:"type"`
	StartNode string  `json:"start_node"`
	EndNode   string  `json:"end_node"`
	StartLat  float64 `json:"start_lat"`
	StartLng  float64 `json:"start_lng"`
	EndLat    float64 `json:"end_lat"`
	EndLng    float64 `json:"end_lng"`
	DownGuy   bool    `json:"down_guy"`
	MidHeight *Height `json:"mid_height,omitempty"`
}

// DisplayType is the connection type shown on maps; down guys override the raw type.
func (c Connection) DisplayType() string {
	if c.DownGuy {
		return "Down Guy"
	}
	return c.Type
}

// Anchor is a proposed new anchor.
type Anchor struct {
	ID         string  `json:"id"`
	JobID      string  `json:"job_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AnchorSpec string  `json:"anchor_spec"`
}

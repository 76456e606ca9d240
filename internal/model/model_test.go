package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleForStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status string
		role   Role
		ok     bool
	}{
		{StatusPendingPhotoAnnotation, RoleBackOffice, true},
		{StatusPhotoAnnotationProgress, RoleBackOffice, true},
		{StatusQAReview, RoleBackOffice, true},
		{StatusFieldCollectionProgress, RoleField, true},
		{StatusPendingFieldCollection, RoleField, true},
		{StatusFieldCollection, "", false},
		{StatusDelivered, "", false},
		{"Archived", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			role, ok := RoleForStatus(tt.status)
			assert.Equal(t, tt.role, role)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CategoryFieldCollection, CategoryOf(StatusFieldCollection))
	assert.Equal(t, CategoryAnnotation, CategoryOf(StatusPendingPhotoAnnotation))
	assert.Equal(t, CategoryApproved, CategoryOf(StatusApprovedForConstruction))
	assert.Equal(t, StatusCategory(""), CategoryOf(StatusQAReview))
	assert.Len(t, StatusCategories, 6)
}

func TestHeight(t *testing.T) {
	t.Parallel()

	h := Height{TotalInches: 134}
	assert.Equal(t, 11, h.Feet())
	assert.Equal(t, 2, h.Inches())
	assert.Equal(t, `11' 2"`, h.String())
	assert.Equal(t, `11' 0"`, Height{TotalInches: 132}.String())
}

func TestUtilityMetrics_RemainingAndProgress(t *testing.T) {
	t.Parallel()

	m := UtilityMetrics{TotalPoles: 8, CompletedPoles: 2}
	assert.Equal(t, 6, m.Remaining())
	assert.InDelta(t, 25.0, m.Progress(), 0.001)

	over := UtilityMetrics{TotalPoles: 3, CompletedPoles: 5}
	assert.Zero(t, over.Remaining())

	assert.Zero(t, UtilityMetrics{}.Progress())
}

func TestNode_FieldCompletedBy(t *testing.T) {
	t.Parallel()

	n := Node{Type: NodeTypePole, FieldCompleted: true, LastEditor: &Edit{Editor: "alice"}}
	assert.True(t, n.IsPole())
	assert.Equal(t, "alice", n.FieldCompletedBy())

	n.FieldCompleted = false
	assert.Empty(t, n.FieldCompletedBy())

	assert.Empty(t, Node{FieldCompleted: true}.FieldCompletedBy())
}

func TestConnection_DisplayType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Aerial", Connection{Type: "Aerial"}.DisplayType())
	assert.Equal(t, "Down Guy", Connection{Type: "Aerial", DownGuy: true}.DisplayType())
}

func TestBacklog_Add(t *testing.T) {
	t.Parallel()

	b := Backlog{Field: 1, BackOffice: 2}
	b.Add(Backlog{Field: 3, ApproveConstruction: 4})
	assert.Equal(t, Backlog{Field: 4, BackOffice: 2, ApproveConstruction: 4}, b)
}

func TestStatusChange_IsOrigin(t *testing.T) {
	t.Parallel()

	prev := StatusDelivered
	assert.True(t, StatusChange{NewStatus: StatusFieldCollection}.IsOrigin())
	assert.False(t, StatusChange{PreviousStatus: &prev}.IsOrigin())
}

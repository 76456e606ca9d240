package burndown

import "github.com/deeplydigital/pole-burndown/internal/model"

// BacklogFor places one job's poles into the workflow stages still ahead of
// it. A job can sit in several stages at once.
func BacklogFor(status string, totalPoles, completedPoles int) model.Backlog {
	var b model.Backlog
	incomplete := totalPoles - completedPoles
	if incomplete < 0 {
		incomplete = 0
	}
	if status == model.StatusPendingFieldCollection || incomplete > 0 {
		b.Field = incomplete
	}
	switch status {
	case model.StatusPendingPhotoAnnotation, model.StatusSentToPE:
		b.BackOffice = totalPoles
	}
	if status != model.StatusApprovedForConstruction {
		b.ApproveConstruction = totalPoles
	}
	return b
}

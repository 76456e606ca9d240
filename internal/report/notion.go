package report

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/model"
	"github.com/deeplydigital/pole-burndown/pkg/notion"
)

// KeyProperty is the rich text property that identifies a burndown page.
const KeyProperty = "Key"

// NotionPublisher mirrors burndown records into a Notion database, one page
// per (entity type, entity, date).
type NotionPublisher struct {
	client notion.Client
	dbID   string
}

// NewNotionPublisher creates a publisher writing to database dbID.
func NewNotionPublisher(client notion.Client, dbID string) *NotionPublisher {
	return &NotionPublisher{client: client, dbID: dbID}
}

// PublishResult counts pages written.
type PublishResult struct {
	Created int
	Updated int
}

// Publish upserts every record. It stops at the first failure.
func (p *NotionPublisher) Publish(ctx context.Context, records []model.BurndownRecord) (PublishResult, error) {
	var res PublishResult
	for _, r := range records {
		key := RecordKey(r)
		created, err := notion.Upsert(ctx, p.client, p.dbID, KeyProperty, key, RecordProperties(r))
		if err != nil {
			return res, eris.Wrapf(err, "report: publish %s", key)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	zap.L().Info("report: published burndown to notion",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
	)
	return res, nil
}

// RecordKey is the stable page key for a record.
func RecordKey(r model.BurndownRecord) string {
	return string(r.EntityType) + "/" + r.Entity + "/" + r.Date.Format(dateLayout)
}

// RecordProperties maps a record to page properties.
func RecordProperties(r model.BurndownRecord) notionapi.Properties {
	date := r.Date
	props := notionapi.Properties{
		"Name":                  notion.Title(r.Entity),
		KeyProperty:             notion.Text(RecordKey(r)),
		"Type":                  notion.Select(string(r.EntityType)),
		"Date":                  notion.Date(&date),
		"Total Poles":           notion.Number(float64(r.TotalPoles)),
		"Completed Poles":       notion.Number(float64(r.CompletedPoles)),
		"Run Rate":              notion.Number(r.RunRate),
		"Field Resources":       notion.Number(float64(r.FieldResources)),
		"Back Office Resources": notion.Number(float64(r.BackOfficeResources)),
		"Est. Completion":       notion.Date(r.EstimatedCompletion),
	}
	if r.ScheduleStatus != "" {
		props["Schedule"] = notion.Select(r.ScheduleStatus)
	}
	return props
}

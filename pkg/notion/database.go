package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page matching filter, following cursors.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// FindByText returns the first page whose rich text property equals value,
// or nil when none does.
func FindByText(ctx context.Context, c Client, dbID, property, value string) (*notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{Equals: value},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find %s=%s", property, value)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// Upsert updates the page keyed by keyProperty=key, or creates it in dbID.
// props must include the key property. It reports whether a page was created.
func Upsert(ctx context.Context, c Client, dbID, keyProperty, key string, props notionapi.Properties) (bool, error) {
	existing, err := FindByText(ctx, c, dbID, keyProperty, key)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if _, err := c.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return false, eris.Wrapf(err, "notion: upsert %s", key)
		}
		return false, nil
	}
	_, err = c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return false, eris.Wrapf(err, "notion: upsert %s", key)
	}
	return true, nil
}

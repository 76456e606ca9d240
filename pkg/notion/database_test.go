package notion

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryAll_SinglePage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: "p1"}, {ID: "p2"}},
		}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryAll_FollowsCursor(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-abc"),
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-abc") && req.PageSize == 50
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", &notionapi.DatabaseQueryRequest{PageSize: 50})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, notionapi.ObjectID("p2"), pages[1].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-err", mock.Anything).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-err", nil)
	require.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: query all")
}

func keyFilter(value string) interface{} {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == "Key" && pf.RichText != nil && pf.RichText.Equals == value
	})
}

func TestUpsert_Creates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", keyFilter("utility/Ameren/2026-03-02")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		return req.Parent.DatabaseID == "db-1" && req.Properties["Key"] != nil
	})).Return(&notionapi.Page{ID: "new"}, nil).Once()

	created, err := Upsert(ctx, mc, "db-1", "Key", "utility/Ameren/2026-03-02", notionapi.Properties{
		"Key": Text("utility/Ameren/2026-03-02"),
	})
	require.NoError(t, err)
	assert.True(t, created)
	mc.AssertExpectations(t)
}

func TestUpsert_Updates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", keyFilter("k1")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "p9"}}}, nil).Once()
	mc.On("UpdatePage", ctx, "p9", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Return(&notionapi.Page{ID: "p9"}, nil).Once()

	created, err := Upsert(ctx, mc, "db-1", "Key", "k1", notionapi.Properties{"Key": Text("k1")})
	require.NoError(t, err)
	assert.False(t, created)
	mc.AssertExpectations(t)
}

func TestUpsert_UpdateError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "p9"}}}, nil).Once()
	mc.On("UpdatePage", ctx, "p9", mock.Anything).Return(nil, assert.AnError).Once()

	_, err := Upsert(ctx, mc, "db-1", "Key", "k1", notionapi.Properties{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: upsert k1")
}

func TestProperties(t *testing.T) {
	assert.Equal(t, "North Loop", Title("North Loop").Title[0].Text.Content)
	assert.Equal(t, 12.5, Number(12.5).Number)
	assert.Equal(t, "On Track", Select("On Track").Select.Name)
	assert.Nil(t, Date(nil).Date)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	d := Date(&day)
	require.NotNil(t, d.Date)
	assert.True(t, time.Time(*d.Date.Start).Equal(day))
}

package notion

import (
	"time"

	"github.com/jomei/notionapi"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// Title builds a title property.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: richText(s)}
}

// Text builds a rich text property.
func Text(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(s)}
}

// Number builds a number property.
func Number(f float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: f}
}

// Select builds a select property.
func Select(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

// Date builds a date property; a nil t clears the date.
func Date(t *time.Time) notionapi.DateProperty {
	if t == nil {
		return notionapi.DateProperty{Type: notionapi.PropertyTypeDate}
	}
	d := notionapi.Date(*t)
	return notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: &notionapi.DateObject{Start: &d}}
}

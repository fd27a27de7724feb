package enrich

import (
	"github.com/ppiankov/boardharvest/internal/api"
	"github.com/ppiankov/boardharvest/internal/model"
)

// Extract keeps the parts of a detail response selected by the comment field set.
// The content flag covers both the item body and each comment's text.
func Extract(d *api.Detail, fields model.FieldSet) *model.Enrichment {
	enr := &model.Enrichment{}

	if fields.Includes(model.CommentFieldTotalComments) {
		enr.TotalComments = intPtr(d.Total)
	}
	if fields.Includes(model.CommentFieldLikeCount) {
		enr.LikeCount = intPtr(d.Like)
	}
	if fields.Includes(model.CommentFieldDislikeCount) {
		enr.DislikeCount = intPtr(d.Dislike)
	}
	if fields.Includes(model.CommentFieldNeutralCount) {
		enr.NeutralCount = intPtr(d.Neutral)
	}

	withTag := fields.Includes(model.CommentFieldTag)
	withContent := fields.Includes(model.CommentFieldContent)

	if withContent {
		content := ""
		if d.Content != nil {
			content = *d.Content
		}
		enr.Content = &content
	}

	if d.Comments != nil {
		enr.Comments = make([]model.Comment, 0, len(d.Comments))
		for _, c := range d.Comments {
			var out model.Comment
			if withTag {
				out.Tag = c.Tag
			}
			if withContent {
				out.Content = c.Content
			}
			enr.Comments = append(enr.Comments, out)
		}
	}

	return enr
}

func intPtr(n int) *int {
	return &n
}

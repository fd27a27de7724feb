package model

import "strings"

// Record represents one harvested listing item
type Record struct {
	ID       string         `json:"id"`                  // Source identifier, the dedup key
	Sequence int64          `json:"sequence"`            // Assigned at first sight, never reused
	SortTime string         `json:"sort_time,omitempty"` // timestamp, falling back to acceptedDate
	URL      string         `json:"url,omitempty"`       // Listing URL, source of the detail endpoint
	Fields   map[string]any `json:"fields,omitempty"`    // Configured subset of source scalar fields

	Enriched   bool        `json:"enriched"`
	Enrichment *Enrichment `json:"enrichment,omitempty"` // nil until the detail fetch succeeds
}

// HasSortTime reports whether the record can take part in the stop heuristic
func (r *Record) HasSortTime() bool {
	return r.SortTime != ""
}

// Enrichment contains per-item detail data fetched after the listing
type Enrichment struct {
	TotalComments *int      `json:"total_comments,omitempty"`
	LikeCount     *int      `json:"like_count,omitempty"`
	DislikeCount  *int      `json:"dislike_count,omitempty"`
	NeutralCount  *int      `json:"neutral_count,omitempty"`
	Content       *string   `json:"content,omitempty"` // Item body text
	Comments      []Comment `json:"comments,omitempty"`
}

// Comment is a single reaction attached to an item
type Comment struct {
	Tag     string `json:"tag,omitempty"`     // Reaction marker (推/噓/→ on PTT)
	Content string `json:"content,omitempty"` // Reaction text
}

// FieldSet is a declarative inclusion set; a missing key means exclude
type FieldSet map[string]bool

// Includes reports whether the named field should be kept
func (f FieldSet) Includes(name string) bool {
	return f[name]
}

// Clone returns an independent copy of the set
func (f FieldSet) Clone() FieldSet {
	out := make(FieldSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Canonical rewrites keys that match a known name case-insensitively to that name.
// Config loaders lowercase map keys, which would otherwise hide camelCase source keys.
func (f FieldSet) Canonical(known ...string) FieldSet {
	out := make(FieldSet, len(f))
	for k, v := range f {
		name := k
		for _, kn := range known {
			if strings.EqualFold(k, kn) {
				name = kn
				break
			}
		}
		out[name] = v
	}
	return out
}

// Post field names understood by the harvester
const (
	PostFieldTitle        = "title"
	PostFieldURL          = "url"
	PostFieldHits         = "hits"
	PostFieldAcceptedDate = "acceptedDate"
	PostFieldID           = "id"
	PostFieldTimestamp    = "timestamp"
	PostFieldNumber       = "number" // emits Sequence, never read from the wire
)

// Comment field names understood by the enricher
const (
	CommentFieldTag           = "tag"
	CommentFieldContent       = "content"
	CommentFieldTotalComments = "total_comments"
	CommentFieldLikeCount     = "like_count"
	CommentFieldDislikeCount  = "dislike_count"
	CommentFieldNeutralCount  = "neutral_count"
)

// PostFieldNames lists the known post fields
var PostFieldNames = []string{
	PostFieldTitle, PostFieldURL, PostFieldHits, PostFieldAcceptedDate,
	PostFieldID, PostFieldTimestamp, PostFieldNumber,
}

// CommentFieldNames lists the known comment fields
var CommentFieldNames = []string{
	CommentFieldTag, CommentFieldContent, CommentFieldTotalComments,
	CommentFieldLikeCount, CommentFieldDislikeCount, CommentFieldNeutralCount,
}

// DefaultPostFields returns the inclusion set used when none is configured
func DefaultPostFields() FieldSet {
	return FieldSet{
		PostFieldTitle:        true,
		PostFieldURL:          true,
		PostFieldHits:         true,
		PostFieldAcceptedDate: true,
		PostFieldID:           false,
		PostFieldTimestamp:    false,
		PostFieldNumber:       true,
	}
}

// DefaultCommentFields returns the enrichment inclusion set used when none is configured
func DefaultCommentFields() FieldSet {
	return FieldSet{
		CommentFieldTag:           true,
		CommentFieldContent:       true,
		CommentFieldTotalComments: true,
		CommentFieldLikeCount:     true,
		CommentFieldDislikeCount:  true,
		CommentFieldNeutralCount:  true,
	}
}

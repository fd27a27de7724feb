package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ppiankov/boardharvest/internal/retry"
)

// Item is one raw listing entry
type Item struct {
	ID           string                     // _id when it is a non-empty string
	Timestamp    string                     // timestamp when it is a string
	AcceptedDate string                     // acceptedDate when it is a string
	Raw          map[string]json.RawMessage // every key of the entry; nil when the entry is not an object
}

// Page is one decoded listing response
type Page struct {
	Items []Item
	Next  string // opaque cursor for the next request; empty on the last page
}

// FetchPage requests one listing page for board. An empty cursor requests the first page.
func (c *Client) FetchPage(ctx context.Context, board, cursor string) (*Page, error) {
	pageURL, err := ListingURL(c.listingURL, board, cursor)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	body, err := c.get(ctx, pageURL, c.listTimeout)
	if err != nil {
		return nil, err
	}

	page, err := DecodePage(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("listing page fetched",
		"board", board,
		"items", len(page.Items),
		"last", page.Next == "",
		"duration", time.Since(started))

	return page, nil
}

// ListingURL builds the listing request URL: ?b=<board>[&page=<cursor>]
func ListingURL(base, board, cursor string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: bad listing URL %q", retry.ErrInvalidInput, base)
	}

	q := u.Query()
	q.Set("b", board)
	if cursor != "" {
		q.Set("page", cursor)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// DecodePage parses a listing body. A missing or non-array posts key is a schema error.
func DecodePage(body []byte) (*Page, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &retry.SchemaError{Reason: "listing body is not a JSON object", Err: err}
	}

	rawPosts, ok := envelope["posts"]
	if !ok {
		return nil, &retry.SchemaError{Reason: "listing has no posts"}
	}
	var posts []json.RawMessage
	if err := json.Unmarshal(rawPosts, &posts); err != nil || posts == nil {
		return nil, &retry.SchemaError{Reason: "listing posts is not an array", Err: err}
	}

	page := &Page{Items: make([]Item, 0, len(posts))}
	for _, raw := range posts {
		page.Items = append(page.Items, decodeItem(raw))
	}
	page.Next = nextCursor(envelope["nextPage"])

	return page, nil
}

func decodeItem(raw json.RawMessage) Item {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Item{}
	}
	return Item{
		ID:           stringField(fields, "_id"),
		Timestamp:    stringField(fields, "timestamp"),
		AcceptedDate: stringField(fields, "acceptedDate"),
		Raw:          fields,
	}
}

// nextCursor returns the compact {"skip":...} cursor, or "" when paging is over
func nextCursor(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var next map[string]json.RawMessage
	if err := json.Unmarshal(raw, &next); err != nil || next == nil {
		return ""
	}
	skip, ok := next["skip"]
	if !ok || bytes.Equal(bytes.TrimSpace(skip), []byte("null")) {
		return ""
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, skip); err != nil {
		return ""
	}
	return `{"skip":` + buf.String() + `}`
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

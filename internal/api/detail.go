package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/boardharvest/internal/cache"
	"github.com/ppiankov/boardharvest/internal/model"
	"github.com/ppiankov/boardharvest/internal/retry"
)

// Detail is a decoded detail response
type Detail struct {
	Total    int
	Like     int
	Dislike  int
	Neutral  int
	Comments []model.Comment // nil when the source items value is not a list
	Content  *string
	Cached   bool // served from the detail cache
}

// FetchDetail requests the detail body at endpoint
func (c *Client) FetchDetail(ctx context.Context, endpoint string) (*Detail, error) {
	key := cache.CacheKey(endpoint)
	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			if detail, err := DecodeDetail(body); err == nil {
				detail.Cached = true
				return detail, nil
			}
			_ = c.cache.Delete(key)
		}
	}

	body, err := c.get(ctx, endpoint, c.detailTimeout)
	if err != nil {
		return nil, err
	}

	detail, err := DecodeDetail(body)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(key, body, c.cacheTTL); err != nil {
			c.logger.Warn("detail cache write failed", "endpoint", endpoint, "error", err)
		}
	}

	return detail, nil
}

// DecodeDetail parses a detail body. The comments value must be a non-empty object.
func DecodeDetail(body []byte) (*Detail, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &retry.SchemaError{Reason: "detail body is not a JSON object", Err: err}
	}

	var comments map[string]json.RawMessage
	rawComments, ok := envelope["comments"]
	if !ok {
		return nil, &retry.SchemaError{Reason: "detail has no comments"}
	}
	if err := json.Unmarshal(rawComments, &comments); err != nil {
		return nil, &retry.SchemaError{Reason: "detail comments is not an object", Err: err}
	}
	if len(comments) == 0 {
		return nil, &retry.SchemaError{Reason: "detail comments is empty"}
	}

	detail := &Detail{
		Total:   intField(comments, "total"),
		Like:    intField(comments, "like"),
		Dislike: intField(comments, "dislike"),
		Neutral: intField(comments, "neutral"),
	}

	// A missing items key means no comments; a non-list value means no comment list at all
	var items []json.RawMessage
	raw, hasItems := comments["items"]
	if !hasItems {
		detail.Comments = []model.Comment{}
	} else if json.Unmarshal(raw, &items) == nil && items != nil {
		detail.Comments = make([]model.Comment, 0, len(items))
		for _, rawItem := range items {
			var item map[string]json.RawMessage
			if err := json.Unmarshal(rawItem, &item); err != nil || item == nil {
				continue
			}
			detail.Comments = append(detail.Comments, model.Comment{
				Tag:     stringField(item, "tag"),
				Content: stringField(item, "content"),
			})
		}
	}

	if raw, ok := envelope["content"]; ok {
		var content string
		if json.Unmarshal(raw, &content) == nil {
			detail.Content = &content
		}
	}

	return detail, nil
}

// DetailEndpoint derives the detail endpoint from a listing URL:
// .../bbs/<board>/<item>.html becomes <base><board>.<item>
func DetailEndpoint(base, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: parse item URL: %v", retry.ErrInvalidInput, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg != "bbs" || i+2 >= len(segments) {
			continue
		}
		board := segments[i+1]
		item := strings.TrimSuffix(segments[i+2], ".html")
		if board == "" || item == "" {
			break
		}
		return base + board + "." + item, nil
	}

	return "", fmt.Errorf("%w: item URL %q has no /bbs/<board>/<item> path", retry.ErrInvalidInput, rawURL)
}

func intField(fields map[string]json.RawMessage, key string) int {
	raw, ok := fields[key]
	if !ok {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return int(n)
}

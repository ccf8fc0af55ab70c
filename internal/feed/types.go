// Package feed defines the vertical video feed's data model and the remote
// gateway contract the feed engine consumes.
//
// This package enables reelcast to:
// - Describe feed items, their authors and engagement counters
// - Carry fetched pages and merge them into a running list without duplicates
// - Classify gateway failures (network, auth, decode, resource)
package feed

import "time"

// Author is the summary of the account that posted an item.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Counters holds engagement counts for a feed item. Every count is >= 0.
type Counters struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}

// Item is one unit of content in the vertical feed.
//
// Items are passed around by value. Collaborators receive snapshots and never
// mutate counters or the liked flag directly; the engagement store owns those.
type Item struct {
	ID           string   `json:"id"`
	MediaURL     string   `json:"media_url"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Author       Author   `json:"author"`
	Caption      string   `json:"caption"`
	Counters     Counters `json:"counters"`
	Liked        bool     `json:"liked"`
	AudioTitle   string   `json:"audio_title,omitempty"`
}

// Page is the result of a single fetch. It is immutable after creation.
type Page struct {
	Items   []Item
	Offset  int
	HasMore bool

	// Skipped counts malformed items dropped while decoding the page.
	Skipped int
}

// Comment is a canonical comment as created by the remote service.
type Comment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Author    Author    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

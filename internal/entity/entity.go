// Package entity defines the canonical record shape shared by every
// platform collector: one entity per post/video/product, identified by
// a stable natural key, carrying volatile metrics and stable attributes.
package entity

import (
	"errors"
	"math"
)

// Platform names used as the first half of every natural key.
const (
	PlatformFacebook = "facebook"
	PlatformShopee   = "shopee"
	PlatformTikTok   = "tiktok"
	PlatformYouTube  = "youtube"
)

// Metrics holds the volatile values observed for an entity at one point
// in time. Monetary values are integer minor units (e.g. VND), counts
// are whole numbers, ratings are floats in [0, 5].
type Metrics map[string]float64

// Common metric keys. Platforms use the subset that applies to them.
const (
	MetricPrice       = "price"
	MetricPriceBefore = "price_before_discount"
	MetricViews       = "views"
	MetricLikes       = "likes"
	MetricComments    = "comments"
	MetricShares      = "shares"
	MetricReactions   = "reactions"
	MetricSoldRecent  = "sold_recent"
	MetricSoldTotal   = "sold_total"
	MetricRating      = "rating"
	MetricRatingCount = "rating_count"
)

// Entity is a normalized record produced by a platform normalizer.
type Entity struct {
	Platform string            `json:"platform"`
	Key      string            `json:"key"`
	Title    string            `json:"title"`
	Keyword  string            `json:"keyword"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Metrics  Metrics           `json:"metrics"`
}

// ErrMissingIdentity marks a record without a usable natural key.
var ErrMissingIdentity = errors.New("entity: missing platform or natural key")

// Validate checks the identity fields every entity must carry.
func (e Entity) Validate() error {
	if e.Platform == "" || e.Key == "" {
		return ErrMissingIdentity
	}
	return nil
}

// Clone returns a deep copy of the metrics map.
func (m Metrics) Clone() Metrics {
	if m == nil {
		return nil
	}
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether two metric sets carry identical keys and values.
func (m Metrics) Equal(other Metrics) bool {
	return m.Changed(other, 0) == false
}

// Changed reports whether any metric differs from other by more than
// minDelta. A key present on one side only always counts as a change.
func (m Metrics) Changed(other Metrics, minDelta float64) bool {
	if len(m) != len(other) {
		return true
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok {
			return true
		}
		if math.Abs(v-ov) > minDelta {
			return true
		}
	}
	return false
}

package shopee

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/hqnguyen/trendwatch/internal/entity"
	"github.com/hqnguyen/trendwatch/internal/platform/jsonwalk"
)

// Shopee quotes prices scaled by 100000; dividing restores whole VND.
const priceScale = 100000

// Normalizer parses search_items payloads into product entities.
type Normalizer struct{}

// Normalize extracts item_basic records. Records without an item id are
// reported as rejections; everything else degrades field by field.
func (Normalizer) Normalize(payload []byte, keyword string) ([]entity.Entity, []string) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, []string{fmt.Sprintf("undecodable payload: %v", err)}
	}

	items := jsonwalk.DigSlice(doc, "items")
	if items == nil {
		return nil, nil
	}

	var (
		entities []entity.Entity
		rejects  []string
	)
	for i, raw := range items {
		item := jsonwalk.Dig(raw, "item_basic")
		if item == nil {
			item = raw
		}

		itemID := jsonwalk.DigNumber(item, "itemid")
		shopID := jsonwalk.DigNumber(item, "shopid")
		if itemID == 0 {
			rejects = append(rejects, fmt.Sprintf("item %d: missing itemid", i))
			continue
		}

		price := jsonwalk.DigNumber(item, "price")
		if price == 0 {
			price = jsonwalk.DigNumber(item, "price_min")
		}
		priceVND := math.Round(price / priceScale)

		priceBefore := jsonwalk.DigNumber(item, "price_before_discount")
		priceBeforeVND := math.Round(priceBefore / priceScale)
		if priceBeforeVND == 0 {
			priceBeforeVND = priceVND
		}

		rating := jsonwalk.DigNumber(item, "item_rating", "rating_star")
		rating = math.Round(rating*100) / 100
		ratingCount := jsonwalk.DigNumber(item, "item_rating", "rating_count", 0)

		ent := entity.Entity{
			Platform: entity.PlatformShopee,
			Key:      fmt.Sprintf("%d:%d", int64(itemID), int64(shopID)),
			Title:    jsonwalk.DigString(item, "name"),
			Keyword:  keyword,
			Attrs: map[string]string{
				"shop_id": fmt.Sprintf("%d", int64(shopID)),
			},
			Metrics: entity.Metrics{
				entity.MetricPrice:       priceVND,
				entity.MetricPriceBefore: priceBeforeVND,
				entity.MetricSoldRecent:  jsonwalk.DigNumber(item, "sold"),
				entity.MetricSoldTotal:   jsonwalk.DigNumber(item, "historical_sold"),
				entity.MetricRating:      rating,
				entity.MetricRatingCount: ratingCount,
			},
		}
		entities = append(entities, ent)
	}
	return entities, rejects
}

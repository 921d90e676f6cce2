// Package related computes and stores the scored list of variants similar to
// a given variant.
package related

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Version tags every related set written by this package.
const Version = "related-v1"

// Scores per strategy and tier.
const (
	ScoreGrapeVariety  = 90
	ScoreWinerySame    = 80
	ScoreRegionSame    = 70
	ScoreWineryRelated = 60
	ScoreRegionRelated = 50
	ScorePriceMax      = 50
	ScoreStyle         = 40
	ScorePriceMin      = 30
)

// Entry types stored in a related set.
const (
	TypeWinerySame    = "winery_same"
	TypeWineryRelated = "winery_related"
	TypeRegionSame    = "region_same"
	TypeRegionRelated = "region_related"
	TypeGrape         = "grape"
	TypePrice         = "price"
	TypeStyle         = "style"
)

// Reasons reported by the matchers.
const (
	ReasonSameWinery       = "same winery"
	ReasonRelatedWinery    = "related winery"
	ReasonSameRegion       = "same region"
	ReasonRelatedRegion    = "related region"
	ReasonSimilarPrice     = "similar price"
	ReasonSameStyle        = "same style"
	ReasonSameVarietal     = "same varietal"
	ReasonBlendWithGrape   = "blend with the same grape"
	ReasonSameComposition  = "identical composition"
	ReasonSharedBlendGrape = "shares a blend grape"
	ReasonVarietalOfBlend  = "varietal of a blend grape"
)

// Entry is one related variant in a related set.
type Entry struct {
	Type             string `json:"type"`
	Score            int    `json:"score"`
	Reason           string `json:"reason"`
	RelatedVariantID string `json:"relatedVariantId"`
}

// Set is the persisted related list of one source variant.
type Set struct {
	VariantID    string                     `gorm:"column:variant_id;primaryKey;size:64" json:"variantId"`
	Entries      datatypes.JSONSlice[Entry] `gorm:"column:entries;not null" json:"relatedVariants"`
	Count        int                        `gorm:"column:count;not null;default:0" json:"count"`
	LastComputed time.Time                  `gorm:"column:last_computed;not null" json:"lastComputed"`
	Version      string                     `gorm:"column:version;size:32;not null" json:"version"`
}

// TableName provides the explicit table binding for GORM.
func (Set) TableName() string {
	return "related_sets"
}

// Models lists the related tables for schema migration.
func Models() []any {
	return []any{&Set{}}
}

// IDSet is a set of original variant ids.
type IDSet map[string]struct{}

// NewIDSet returns a set holding the given ids.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the ids in ascending order.
func (s IDSet) Slice() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

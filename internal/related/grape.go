package related

import (
	"context"
	"sort"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
)

const (
	blendTierPenalty         = 2
	varietalOfBlendPenalty   = 3
	minimumBlendGrapeEntries = 2
)

type grapeMatcher struct {
	finder CandidateFinder
	limit  int
}

// NewGrapeMatcher matches variants by grape composition.
func NewGrapeMatcher(finder CandidateFinder, limit int) Matcher {
	return &grapeMatcher{finder: finder, limit: limit}
}

func (m *grapeMatcher) Match(ctx context.Context, source flat.Variant, excluded IDSet) ([]Match, error) {
	composition := SortComposition(source.Grapes)
	sink := newMatchSink(m.limit, excluded)
	switch len(composition) {
	case 0:
		return nil, nil
	case 1:
		if err := m.matchVarietal(ctx, source, composition[0], sink); err != nil {
			return nil, err
		}
	default:
		if err := m.matchBlend(ctx, source, composition, sink); err != nil {
			return nil, err
		}
	}
	return sink.matches, nil
}

func (m *grapeMatcher) matchVarietal(ctx context.Context, source flat.Variant, grape flat.Grape, sink *matchSink) error {
	varietals, err := m.varietals(ctx, grape.GrapeID, sink.excluded)
	if err != nil {
		return err
	}
	sink.add(sameStyleFirst(varietals, source.StyleID), ScoreGrapeVariety, ReasonSameVarietal)
	if sink.full() {
		return nil
	}

	blends, err := m.blendsContaining(ctx, grape.GrapeID, sink.excluded)
	if err != nil {
		return err
	}
	sort.SliceStable(blends, func(i, j int) bool {
		left, right := blends[i], blends[j]
		if leftSame, rightSame := left.StyleID == source.StyleID, right.StyleID == source.StyleID; leftSame != rightSame {
			return leftSame
		}
		leftShare, rightShare := left.PercentageOf(grape.GrapeID), right.PercentageOf(grape.GrapeID)
		if leftShare != rightShare {
			return leftShare > rightShare
		}
		return left.OriginalVariantID < right.OriginalVariantID
	})
	sink.add(blends, ScoreGrapeVariety-blendTierPenalty, ReasonBlendWithGrape)
	return nil
}

func (m *grapeMatcher) matchBlend(ctx context.Context, source flat.Variant, composition []flat.Grape, sink *matchSink) error {
	sameSize, err := m.finder.Find(ctx, flat.Query{
		OnlyAvailable:      true,
		ExcludeOriginalIDs: sink.excluded.Slice(),
		GrapeID:            composition[0].GrapeID,
		GrapeCount:         len(composition),
	})
	if err != nil {
		return err
	}
	var identical []flat.Variant
	for _, candidate := range sameSize {
		if SameComposition(composition, candidate.Grapes) {
			identical = append(identical, candidate)
		}
	}
	sink.add(sameStyleFirst(identical, source.StyleID), ScoreGrapeVariety, ReasonSameComposition)

	for index, grape := range composition {
		if sink.full() {
			return nil
		}
		blends, err := m.blendsContaining(ctx, grape.GrapeID, sink.excluded)
		if err != nil {
			return err
		}
		sortByShareDistance(blends, grape, source.StyleID)
		sink.add(blends, ScoreGrapeVariety-index, ReasonSharedBlendGrape)
	}

	for index, grape := range composition {
		if sink.full() {
			return nil
		}
		varietals, err := m.varietals(ctx, grape.GrapeID, sink.excluded)
		if err != nil {
			return err
		}
		sink.add(sameStyleFirst(varietals, source.StyleID), ScoreGrapeVariety-varietalOfBlendPenalty-index, ReasonVarietalOfBlend)
	}
	return nil
}

func (m *grapeMatcher) varietals(ctx context.Context, grapeID string, excluded IDSet) ([]flat.Variant, error) {
	return m.finder.Find(ctx, flat.Query{
		OnlyAvailable:      true,
		ExcludeOriginalIDs: excluded.Slice(),
		GrapeID:            grapeID,
		GrapeCount:         1,
	})
}

func (m *grapeMatcher) blendsContaining(ctx context.Context, grapeID string, excluded IDSet) ([]flat.Variant, error) {
	return m.finder.Find(ctx, flat.Query{
		OnlyAvailable:      true,
		ExcludeOriginalIDs: excluded.Slice(),
		GrapeID:            grapeID,
		MinGrapeCount:      minimumBlendGrapeEntries,
	})
}

// sortByShareDistance orders blends same style first, then by the distance
// between their share of the grape and the source share, largest distance
// first.
func sortByShareDistance(blends []flat.Variant, grape flat.Grape, styleID string) {
	distance := func(candidate flat.Variant) int {
		delta := candidate.PercentageOf(grape.GrapeID) - grape.Percentage
		if delta < 0 {
			return -delta
		}
		return delta
	}
	sort.SliceStable(blends, func(i, j int) bool {
		left, right := blends[i], blends[j]
		if leftSame, rightSame := left.StyleID == styleID, right.StyleID == styleID; leftSame != rightSame {
			return leftSame
		}
		// TODO: confirm with merchandising whether the closest share should rank first.
		if leftDistance, rightDistance := distance(left), distance(right); leftDistance != rightDistance {
			return leftDistance > rightDistance
		}
		return left.OriginalVariantID < right.OriginalVariantID
	})
}

func sameStyleFirst(candidates []flat.Variant, styleID string) []flat.Variant {
	sorted := append([]flat.Variant(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		leftSame, rightSame := sorted[i].StyleID == styleID, sorted[j].StyleID == styleID
		if leftSame != rightSame {
			return leftSame
		}
		return sorted[i].OriginalVariantID < sorted[j].OriginalVariantID
	})
	return sorted
}

// SortComposition returns the composition ordered by percentage descending,
// ties by grape id.
func SortComposition(grapes []flat.Grape) []flat.Grape {
	sorted := append([]flat.Grape(nil), grapes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Percentage != sorted[j].Percentage {
			return sorted[i].Percentage > sorted[j].Percentage
		}
		return sorted[i].GrapeID < sorted[j].GrapeID
	})
	return sorted
}

// SameComposition reports whether two compositions hold the same multiset of
// (grape, percentage) pairs.
func SameComposition(left, right []flat.Grape) bool {
	if len(left) != len(right) {
		return false
	}
	sortedLeft, sortedRight := SortComposition(left), SortComposition(right)
	for index := range sortedLeft {
		if sortedLeft[index].GrapeID != sortedRight[index].GrapeID ||
			sortedLeft[index].Percentage != sortedRight[index].Percentage {
			return false
		}
	}
	return true
}

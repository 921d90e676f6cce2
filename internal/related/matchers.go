package related

import (
	"context"
	"math"
	"sort"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
)

// CandidateFinder queries the flat store for candidate variants.
type CandidateFinder interface {
	Find(ctx context.Context, query flat.Query) ([]flat.Variant, error)
}

// Match is one scored candidate returned by a matcher.
type Match struct {
	Candidate flat.Variant
	Score     int
	Reason    string
}

// Matcher scores candidates for a source variant by a single criterion.
// Ids in excluded are never returned; returned ids are added to it.
type Matcher interface {
	Match(ctx context.Context, source flat.Variant, excluded IDSet) ([]Match, error)
}

// matchSink collects matches up to a cap and records every selected id.
type matchSink struct {
	limit    int
	excluded IDSet
	matches  []Match
}

func newMatchSink(limit int, excluded IDSet) *matchSink {
	return &matchSink{limit: limit, excluded: excluded}
}

func (s *matchSink) full() bool {
	return len(s.matches) >= s.limit
}

func (s *matchSink) remaining() int {
	return s.limit - len(s.matches)
}

func (s *matchSink) add(candidates []flat.Variant, score int, reason string) {
	for _, candidate := range candidates {
		if s.full() {
			return
		}
		if s.excluded.Has(candidate.OriginalVariantID) {
			continue
		}
		s.excluded.Add(candidate.OriginalVariantID)
		s.matches = append(s.matches, Match{Candidate: candidate, Score: score, Reason: reason})
	}
}

// tieredMatcher matches on identity first and on backlinks second, used by
// the winery and region strategies.
type tieredMatcher struct {
	finder        CandidateFinder
	limit         int
	identity      func(source flat.Variant) string
	related       func(source flat.Variant) []string
	filter        func(query *flat.Query, ids []string)
	sameScore     int
	sameReason    string
	relatedScore  int
	relatedReason string
}

func (m *tieredMatcher) Match(ctx context.Context, source flat.Variant, excluded IDSet) ([]Match, error) {
	sink := newMatchSink(m.limit, excluded)
	identity := m.identity(source)
	if identity == "" {
		return nil, nil
	}

	same, err := m.find(ctx, []string{identity}, excluded, sink.remaining())
	if err != nil {
		return nil, err
	}
	sink.add(same, m.sameScore, m.sameReason)

	relatedIDs := m.related(source)
	if sink.full() || len(relatedIDs) == 0 {
		return sink.matches, nil
	}
	backlinked, err := m.find(ctx, relatedIDs, excluded, sink.remaining())
	if err != nil {
		return nil, err
	}
	sink.add(backlinked, m.relatedScore, m.relatedReason)
	return sink.matches, nil
}

func (m *tieredMatcher) find(ctx context.Context, ids []string, excluded IDSet, limit int) ([]flat.Variant, error) {
	query := flat.Query{
		OnlyAvailable:      true,
		ExcludeOriginalIDs: excluded.Slice(),
		Limit:              limit,
	}
	m.filter(&query, ids)
	return m.finder.Find(ctx, query)
}

// NewWineryMatcher matches variants of the same winery, then of its related wineries.
func NewWineryMatcher(finder CandidateFinder, limit int) Matcher {
	return &tieredMatcher{
		finder:   finder,
		limit:    limit,
		identity: func(source flat.Variant) string { return source.WineryID },
		related:  func(source flat.Variant) []string { return source.RelatedWineries() },
		filter: func(query *flat.Query, ids []string) {
			query.WineryIDs = ids
		},
		sameScore:     ScoreWinerySame,
		sameReason:    ReasonSameWinery,
		relatedScore:  ScoreWineryRelated,
		relatedReason: ReasonRelatedWinery,
	}
}

// NewRegionMatcher matches variants of the same region, then of its related regions.
func NewRegionMatcher(finder CandidateFinder, limit int) Matcher {
	return &tieredMatcher{
		finder:   finder,
		limit:    limit,
		identity: func(source flat.Variant) string { return source.RegionID },
		related:  func(source flat.Variant) []string { return source.RelatedRegions() },
		filter: func(query *flat.Query, ids []string) {
			query.RegionIDs = ids
		},
		sameScore:     ScoreRegionSame,
		sameReason:    ReasonSameRegion,
		relatedScore:  ScoreRegionRelated,
		relatedReason: ReasonRelatedRegion,
	}
}

type styleMatcher struct {
	finder CandidateFinder
	limit  int
}

// NewStyleMatcher matches variants sharing the source style.
func NewStyleMatcher(finder CandidateFinder, limit int) Matcher {
	return &styleMatcher{finder: finder, limit: limit}
}

func (m *styleMatcher) Match(ctx context.Context, source flat.Variant, excluded IDSet) ([]Match, error) {
	if source.StyleID == "" {
		return nil, nil
	}
	candidates, err := m.finder.Find(ctx, flat.Query{
		OnlyAvailable:      true,
		ExcludeOriginalIDs: excluded.Slice(),
		StyleID:            source.StyleID,
		Limit:              m.limit,
	})
	if err != nil {
		return nil, err
	}
	sink := newMatchSink(m.limit, excluded)
	sink.add(candidates, ScoreStyle, ReasonSameStyle)
	return sink.matches, nil
}

type priceMatcher struct {
	finder CandidateFinder
	limit  int
	minPct float64
	maxPct float64
}

// NewPriceMatcher matches variants priced within [price*minPct, price*maxPct],
// closest first.
func NewPriceMatcher(finder CandidateFinder, limit int, minPct, maxPct float64) Matcher {
	return &priceMatcher{finder: finder, limit: limit, minPct: minPct, maxPct: maxPct}
}

func (m *priceMatcher) Match(ctx context.Context, source flat.Variant, excluded IDSet) ([]Match, error) {
	if source.Price == nil || *source.Price <= 0 {
		return nil, nil
	}
	price := *source.Price
	low := price * m.minPct
	high := price * m.maxPct
	candidates, err := m.finder.Find(ctx, flat.Query{
		OnlyAvailable:      true,
		ExcludeOriginalIDs: excluded.Slice(),
		MinPrice:           &low,
		MaxPrice:           &high,
	})
	if err != nil {
		return nil, err
	}

	distance := func(candidate flat.Variant) float64 {
		return math.Abs(*candidate.Price - price)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		left, right := distance(candidates[i]), distance(candidates[j])
		if left != right {
			return left < right
		}
		return candidates[i].OriginalVariantID < candidates[j].OriginalVariantID
	})

	sink := newMatchSink(m.limit, excluded)
	for _, candidate := range candidates {
		sink.add([]flat.Variant{candidate}, PriceScore(price, *candidate.Price), ReasonSimilarPrice)
	}
	return sink.matches, nil
}

// PriceScore decreases with the relative price distance and never drops
// below ScorePriceMin.
func PriceScore(sourcePrice, candidatePrice float64) int {
	penalty := int(math.Round(100 * math.Abs(candidatePrice-sourcePrice) / sourcePrice))
	score := ScorePriceMax - penalty
	if score < ScorePriceMin {
		return ScorePriceMin
	}
	return score
}

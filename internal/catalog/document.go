package catalog

import "strings"

// Ref is a relationship that is either an unresolved id or a resolved value.
type Ref[T any] struct {
	id    string
	value *T
}

// Unresolved returns a reference carrying only the target id.
func Unresolved[T any](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Resolved returns a reference carrying the loaded target.
func Resolved[T any](id string, value T) Ref[T] {
	return Ref[T]{id: id, value: &value}
}

// ID returns the referenced id; it may be empty for an absent relation.
func (r Ref[T]) ID() string {
	return r.id
}

// Get returns the resolved value.
func (r Ref[T]) Get() (T, bool) {
	if r.value == nil {
		var zero T
		return zero, false
	}
	return *r.value, true
}

// IsResolved reports whether the reference carries a value.
func (r Ref[T]) IsResolved() bool {
	return r.value != nil
}

// Entity is a titled lookup record (country, style, tag, mood, dish, grape variety).
type Entity struct {
	ID    string
	Title string
}

// WineryDoc is a resolved winery with its sibling brand ids.
type WineryDoc struct {
	ID         string
	Title      string
	RelatedIDs []string
}

// RegionDoc is a resolved region.
type RegionDoc struct {
	ID         string
	Title      string
	Country    Ref[Entity]
	RelatedIDs []string
}

// WineDoc is a resolved wine.
type WineDoc struct {
	ID     string
	Title  string
	Winery Ref[WineryDoc]
	Region Ref[RegionDoc]
	Style  Ref[Entity]
}

// GrapeShare is one composition entry.
type GrapeShare struct {
	Variety    Ref[Entity]
	Percentage int
}

// TastingNotes holds the ten scored tasting axes.
type TastingNotes struct {
	Acidity    *int `json:"acidity,omitempty"`
	Alcohol    *int `json:"alcohol,omitempty"`
	Body       *int `json:"body,omitempty"`
	Complexity *int `json:"complexity,omitempty"`
	Finish     *int `json:"finish,omitempty"`
	Fruit      *int `json:"fruit,omitempty"`
	Minerality *int `json:"minerality,omitempty"`
	Oak        *int `json:"oak,omitempty"`
	Sweetness  *int `json:"sweetness,omitempty"`
	Tannin     *int `json:"tannin,omitempty"`
}

// IsEmpty reports whether every axis is unset.
func (n TastingNotes) IsEmpty() bool {
	for _, axis := range []*int{n.Acidity, n.Alcohol, n.Body, n.Complexity, n.Finish,
		n.Fruit, n.Minerality, n.Oak, n.Sweetness, n.Tannin} {
		if axis != nil {
			return false
		}
	}
	return true
}

// Media is an image attached to a variant.
type Media struct {
	URL string
	Alt string
}

// VariantDoc is a source variant loaded at full relational depth.
type VariantDoc struct {
	ID                 string
	Wine               Ref[WineDoc]
	Vintage            *int
	Size               string
	Price              *float64
	StockOnHand        *int
	CanBackorder       *bool
	MaxBackorder       *int
	ServingTemperature string
	Decanting          *bool
	TastingProfile     string
	TastingNotes       TastingNotes
	Grapes             []GrapeShare
	Aromas             []Ref[Entity]
	Tags               []Ref[Entity]
	Moods              []Ref[Entity]
	Dishes             []Ref[Entity]
	Media              []Media
	Status             string
}

func composeAromaTitle(adjective, flavour string) string {
	return strings.TrimSpace(strings.TrimSpace(adjective) + " " + strings.TrimSpace(flavour))
}

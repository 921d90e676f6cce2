package slug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intPointer(value int) *int {
	return &value
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "diacritics", input: "Goriška Brda", expected: "goriska-brda"},
		{name: "non-decomposing letters", input: "Đakovo Œuvre & Straße", expected: "dakovo-oeuvre-strasse"},
		{name: "punctuation runs", input: "  Château -- d'Yquem!! ", expected: "chateau-d-yquem"},
		{name: "numbers", input: "0.75 l", expected: "0-75-l"},
		{name: "empty", input: "", expected: ""},
		{name: "only symbols", input: "***", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestVariantSlug(t *testing.T) {
	slug := Variant("Movia", "Veliko Rdeče", "Goriška Brda", "Slovenija", intPointer(2019), "0.75 l")
	require.Equal(t, "movia-veliko-rdece-goriska-brda-slovenija-2019-0-75-l", slug)

	nonVintage := Variant("Movia", "Puro", "Goriška Brda", "Slovenija", nil, "")
	require.Equal(t, "movia-puro-goriska-brda-slovenija-nv", nonVintage)
}

func TestVariantSlugIsStable(t *testing.T) {
	first := Variant("Simčič", "Opoka Rebula", "Brda", "Slovenija", intPointer(2017), "1.5 l")
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Variant("Simčič", "Opoka Rebula", "Brda", "Slovenija", intPointer(2017), "1.5 l"))
	}
	require.NotEqual(t, first, Variant("Simčič", "Opoka Rebula", "Brda", "Slovenija", intPointer(2018), "1.5 l"))
}

func TestSKU(t *testing.T) {
	tests := []struct {
		name     string
		winery   string
		vintage  *int
		size     string
		wine     string
		expected string
	}{
		{name: "full", winery: "Movia", vintage: intPointer(2019), size: "0.75 l", wine: "Veliko Rdeče", expected: "MOV-VEL-19-075"},
		{name: "early vintage", winery: "Batič", vintage: intPointer(2005), size: "1.5 l", wine: "Angel", expected: "BAT-ANG-05-15"},
		{name: "padded", winery: "Ta", vintage: nil, size: "", wine: "X", expected: "TAX-XXX-NV-XXX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, SKU(tt.winery, tt.vintage, tt.size, tt.wine))
		})
	}
}

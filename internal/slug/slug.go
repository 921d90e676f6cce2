// Package slug derives stable storefront identifiers from catalog names.
package slug

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	separator       = "-"
	nonVintage      = "nv"
	skuCodeLength   = 3
	skuPadCharacter = "X"
)

// Letters that do not decompose under NFD.
var transliterations = strings.NewReplacer(
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"ø", "o", "Ø", "O",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ß", "ss",
)

// Normalize lowercases the value, strips diacritics and collapses every run of
// characters outside [a-z0-9] into a single separator.
func Normalize(value string) string {
	folded := foldDiacritics(transliterations.Replace(value))
	var builder strings.Builder
	pendingSeparator := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSeparator && builder.Len() > 0 {
				builder.WriteString(separator)
			}
			pendingSeparator = false
			builder.WriteRune(r)
			continue
		}
		pendingSeparator = true
	}
	return builder.String()
}

func foldDiacritics(value string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(chain, value)
	if err != nil {
		return value
	}
	return folded
}

// Variant builds the storefront slug of a variant from its naming context.
// Empty parts are skipped; a missing vintage renders as "nv".
func Variant(winery, wine, region, country string, vintage *int, size string) string {
	parts := []string{
		Normalize(winery),
		Normalize(wine),
		Normalize(region),
		Normalize(country),
		vintagePart(vintage),
		Normalize(size),
	}
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, separator)
}

// SKU builds an upper-case stock keeping unit such as "MOV-VEL-19-075".
func SKU(winery string, vintage *int, size, wine string) string {
	vintageCode := strings.ToUpper(nonVintage)
	if vintage != nil {
		vintageCode = strconv.Itoa(*vintage % 100)
		if len(vintageCode) < 2 {
			vintageCode = "0" + vintageCode
		}
	}
	sizeCode := digitsOf(size)
	if sizeCode == "" {
		sizeCode = strings.Repeat(skuPadCharacter, skuCodeLength)
	}
	return strings.Join([]string{
		code(winery),
		code(wine),
		vintageCode,
		sizeCode,
	}, separator)
}

func vintagePart(vintage *int) string {
	if vintage == nil {
		return nonVintage
	}
	return strconv.Itoa(*vintage)
}

func code(value string) string {
	compact := strings.ReplaceAll(Normalize(value), separator, "")
	if len(compact) > skuCodeLength {
		compact = compact[:skuCodeLength]
	}
	for len(compact) < skuCodeLength {
		compact += strings.ToLower(skuPadCharacter)
	}
	return strings.ToUpper(compact)
}

func digitsOf(value string) string {
	var builder strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

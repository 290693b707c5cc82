package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"evently/internal/types"
)

var (
	amountPattern    = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	donationKeywords = []string{"donation", "donate", "pay what you", "pay-what-you", "suggested", "pwyc"}
)

// InferPrice resolves the tier and amount. An explicit tier wins, then an
// explicit amount, then the free text. Zero or absent prices are FREE.
func InferPrice(tier string, amount *float64, text string) (types.PriceTier, *float64) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "free":
		return types.PriceFree, nil
	case "donation":
		return types.PriceDonation, positive(firstAmount(amount, text))
	case "paid":
		return types.PricePaid, positive(firstAmount(amount, text))
	}

	if amount != nil {
		if *amount <= 0 {
			return types.PriceFree, nil
		}
		v := *amount
		return types.PricePaid, &v
	}

	lower := strings.ToLower(text)
	for _, kw := range donationKeywords {
		if strings.Contains(lower, kw) {
			return types.PriceDonation, positive(ParseAmount(text))
		}
	}

	if a := positive(ParseAmount(text)); a != nil {
		return types.PricePaid, a
	}

	return types.PriceFree, nil
}

// ParseAmount returns the first number in text, ignoring thousands
// separators.
func ParseAmount(text string) *float64 {
	match := amountPattern.FindString(text)
	if match == "" {
		return nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

func firstAmount(amount *float64, text string) *float64 {
	if amount != nil {
		return amount
	}
	return ParseAmount(text)
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}

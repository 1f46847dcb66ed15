package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

// Symbol order is fixed so parsing stays deterministic when a token carries
// more than one recognizable symbol.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"€", "EUR"},
	{"$", "USD"},
	{"£", "GBP"},
	{"¥", "JPY"},
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePrice normalizes a raw price token like "€200,00" into an amount and
// ISO currency code. Unrecognized symbols default to EUR. When no numeric
// substring exists the amount is 0 and ok is false; callers must treat that
// as "unparseable", never as a legitimate zero price.
func ParsePrice(text string) (amount float64, currency string, ok bool) {
	currency = "EUR"
	cleaned := strings.TrimSpace(text)

	for _, c := range currencySymbols {
		if strings.Contains(cleaned, c.symbol) {
			currency = c.code
			cleaned = strings.ReplaceAll(cleaned, c.symbol, "")
			break
		}
	}

	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	match := numberPattern.FindString(cleaned)
	if match == "" {
		return 0, currency, false
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, currency, false
	}
	return value, currency, true
}

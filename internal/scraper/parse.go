package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gridwatch/internal/models"
)

// Every assumption about the origin's markup lives in this file. If the
// origin changes its pages, this is the only place that needs updating.

// minListingCells is the column count an offers-table row must yield:
// id link, date, price, module, seller, region, detail link.
const minListingCells = 7

const minSearchCells = 3

// parseLoginForm collects the hidden inputs of the login form so they can
// be echoed back verbatim, anti-forgery tokens included.
func parseLoginForm(doc *goquery.Document) url.Values {
	form := url.Values{}
	doc.Find("form[action$='/e/login'] input[type='hidden']").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		form.Set(name, input.AttrOr("value", ""))
	})
	return form
}

// parseListingTable extracts every well-formed row of the offers table.
// A missing table yields an empty slice, which callers treat as the
// end-of-pagination signal.
func parseListingTable(baseURL string, doc *goquery.Document) []models.ListingRecord {
	records := []models.ListingRecord{}

	table := doc.Find("table.offers").First()
	if table.Length() == 0 {
		return records
	}

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// header row
			return
		}
		if record, ok := parseListingRow(baseURL, row); ok {
			records = append(records, record)
		}
	})

	return records
}

// parseListingRow extracts one offers-table row. Malformed rows (too few
// cells, no id or module link) report ok=false and are skipped.
func parseListingRow(baseURL string, row *goquery.Selection) (models.ListingRecord, bool) {
	cells := row.Find("td")
	if cells.Length() < minListingCells {
		return models.ListingRecord{}, false
	}

	idHref, ok := cells.Eq(0).Find("a").First().Attr("href")
	if !ok {
		return models.ListingRecord{}, false
	}

	moduleLink := cells.Eq(3).Find("a").First()
	moduleHref, ok := moduleLink.Attr("href")
	if !ok {
		return models.ListingRecord{}, false
	}
	moduleURL := absURL(baseURL, moduleHref)

	record := models.ListingRecord{
		ExternalID: lastPathSegment(idHref),
		DateListed: strings.TrimSpace(cells.Eq(1).Text()),
		ModuleName: strings.TrimSpace(moduleLink.Text()),
		ModuleURL:  moduleURL,
		ModuleID:   lastPathSegment(moduleURL),
		Seller:     strings.TrimSpace(cells.Eq(4).Find("a").First().Text()),
		Region:     strings.TrimSpace(cells.Eq(5).Text()),
	}

	record.Price, record.Currency, record.PriceOK = ParsePrice(cells.Eq(2).Text())

	if desc := cells.Eq(3).Find("div.description").First(); desc.Length() > 0 {
		record.Description = strings.TrimSpace(desc.Text())
	}

	if viewHref, ok := cells.Eq(6).Find("a").First().Attr("href"); ok {
		record.URL = absURL(baseURL, viewHref)
	}

	return record, true
}

// parseDetailPage extracts the label/value pairs of a listing detail page
// plus the optional price-history table.
func parseDetailPage(doc *goquery.Document) models.ListingDetail {
	detail := models.ListingDetail{
		Condition: strings.TrimSpace(doc.Find("div.description").First().Text()),
		Seller:    labelValue(doc, "Seller"),
		Region:    labelValue(doc, "Region"),
		History:   parsePriceHistory(doc),
	}

	detail.Name = strings.TrimSpace(doc.Find("h1").First().Text())

	if priceText := labelValue(doc, "Price"); priceText != "" {
		detail.Price, detail.Currency, detail.PriceOK = ParsePrice(priceText)
	}

	return detail
}

// parsePriceHistory reads the table following a "Price History" heading.
// The section is account-tier-gated at the origin; absence is normal.
func parsePriceHistory(doc *goquery.Document) []models.HistoryRecord {
	var history []models.HistoryRecord

	heading := doc.Find("h2").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return strings.Contains(h.Text(), "Price History")
	}).First()
	if heading.Length() == 0 {
		return history
	}

	table := heading.NextAllFiltered("table").First()
	if table.Length() == 0 {
		return history
	}

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		entry := models.HistoryRecord{
			DateSold: strings.TrimSpace(cells.Eq(0).Text()),
			Cond:     strings.TrimSpace(cells.Eq(2).Text()),
		}
		entry.Price, entry.Currency, _ = ParsePrice(cells.Eq(1).Text())
		history = append(history, entry)
	})

	return history
}

// parseSearchResults extracts rows of the module browser's results table.
func parseSearchResults(baseURL string, doc *goquery.Document) []models.ModuleResult {
	results := []models.ModuleResult{}

	table := doc.Find("table.modules").First()
	if table.Length() == 0 {
		return results
	}

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < minSearchCells {
			return
		}

		link := cells.Eq(1).Find("a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		moduleURL := absURL(baseURL, href)

		results = append(results, models.ModuleResult{
			ExternalID:   lastPathSegment(moduleURL),
			Name:         strings.TrimSpace(link.Text()),
			Manufacturer: strings.TrimSpace(cells.Eq(0).Text()),
			URL:          moduleURL,
		})
	})

	return results
}

// labelValue finds the first table row whose label cell contains the given
// text and returns the adjacent value cell.
func labelValue(doc *goquery.Document, label string) string {
	var value string
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return true
		}
		if strings.Contains(strings.TrimSpace(cells.First().Text()), label) {
			value = strings.TrimSpace(cells.Eq(1).Text())
			return false
		}
		return true
	})
	return value
}

func absURL(base, href string) string {
	baseParsed, err := url.Parse(base)
	if err != nil {
		return href
	}
	hrefParsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseParsed.ResolveReference(hrefParsed).String()
}

func lastPathSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

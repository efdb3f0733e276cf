package gamestop

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

const noEstimateDetail = "GameStop did not provide an estimate for this cert."

// Extract reads the estimate out of a rendered page. A "no offer" notice
// yields estimate.ErrNotFound; a page with neither notice nor result
// container yields estimate.ErrSiteChanged.
func Extract(page Page, sel Selectors, cert, currency string, now time.Time) (estimate.Estimate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return estimate.Estimate{}, estimate.Unexpected(fmt.Errorf("parse page html: %w", err))
	}

	if noOffer := doc.Find(sel.NoOffer).First(); noOffer.Length() > 0 {
		detail := strings.TrimSpace(noOffer.Text())
		// An empty notice still means no offer; the body-text sentence keeps
		// the API detail non-empty.
		if detail == "" {
			detail = noEstimateDetail
		}
		return estimate.Estimate{}, estimate.NotFound(detail)
	}

	bodyText := page.BodyText
	if bodyText == "" {
		bodyText = doc.Find("body").Text()
	}
	if strings.Contains(strings.ToLower(bodyText), strings.ToLower(sel.NoOfferText)) {
		return estimate.Estimate{}, estimate.NotFound(noEstimateDetail)
	}

	if doc.Find(sel.ResultContainer).Length() == 0 {
		return estimate.Estimate{}, estimate.SiteChanged("Result container missing; markup may have changed.", nil)
	}

	cardName := textOf(doc, sel.scoped(sel.CardName))
	grade := textOf(doc, sel.scoped(sel.CardGrade))
	cashRaw := textOf(doc, sel.scoped(sel.CashOffer))
	creditRaw := textOf(doc, sel.scoped(sel.CreditOffer))

	if currency == "" {
		currency = estimate.DefaultCurrency
	}
	return estimate.Estimate{
		PSACert:     cert,
		CardName:    cardName,
		Grade:       grade,
		CashOffer:   parseOptionalPrice(cashRaw),
		CreditOffer: parseOptionalPrice(creditRaw),
		Currency:    currency,
		FetchedAt:   estimate.FormatFetchedAt(now),
		RawFields: map[string]any{
			"card_name_raw":    cardName,
			"grade_raw":        grade,
			"cash_offer_raw":   cashRaw,
			"credit_offer_raw": creditRaw,
		},
	}, nil
}

// textOf returns the trimmed text of the first match, or nil when absent.
func textOf(doc *goquery.Document, selector string) *string {
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(node.Text())
	return &text
}

func parseOptionalPrice(text *string) *float64 {
	if text == nil {
		return nil
	}
	return estimate.ParsePrice(*text)
}

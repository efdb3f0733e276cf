package gamestop

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultEstimateURL is GameStop's graded card estimate tool.
const DefaultEstimateURL = "https://www.gamestop.com/graded-trading-cards/estimate"

// Selectors locates the elements of the estimate page. CSS selectors are
// evaluated with document.querySelector in the browser and with goquery when
// extracting; the submit button is matched by tag and visible text.
type Selectors struct {
	PSAInput        string `mapstructure:"psa_input"`
	SubmitTag       string `mapstructure:"submit_tag"`
	SubmitText      string `mapstructure:"submit_text"`
	ResultContainer string `mapstructure:"result_container"`
	NoOffer         string `mapstructure:"no_offer"`
	NoOfferText     string `mapstructure:"no_offer_text"`
	CardName        string `mapstructure:"card_name"`
	CardGrade       string `mapstructure:"card_grade"`
	CashOffer       string `mapstructure:"cash_offer"`
	CreditOffer     string `mapstructure:"credit_offer"`
}

// DefaultSelectors returns the selectors matching the current page markup.
func DefaultSelectors() Selectors {
	return Selectors{
		PSAInput:        "input[name='psaCert']",
		SubmitTag:       "button",
		SubmitText:      "Get Estimate",
		ResultContainer: "[data-testid='psa-estimate-result']",
		NoOffer:         "[data-testid='psa-estimate-no-offer']",
		NoOfferText:     "no estimate",
		CardName:        ".card-name",
		CardGrade:       ".card-grade",
		CashOffer:       ".cash-offer",
		CreditOffer:     ".credit-offer",
	}
}

// Validate reports the first empty selector.
func (s Selectors) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"psa_input", s.PSAInput},
		{"submit_tag", s.SubmitTag},
		{"submit_text", s.SubmitText},
		{"result_container", s.ResultContainer},
		{"no_offer", s.NoOffer},
		{"no_offer_text", s.NoOfferText},
		{"card_name", s.CardName},
		{"card_grade", s.CardGrade},
		{"cash_offer", s.CashOffer},
		{"credit_offer", s.CreditOffer},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("selector %s must not be empty", f.name)
		}
	}
	if strings.ContainsAny(s.SubmitTag, " []/()'\"") {
		return errors.New("selector submit_tag must be a bare tag name")
	}
	return nil
}

// SubmitXPath matches the submit button by tag and contained text.
func (s Selectors) SubmitXPath() string {
	return fmt.Sprintf("//%s[contains(normalize-space(.), %s)]", s.SubmitTag, xpathLiteral(s.SubmitText))
}

// SubmitCSS matches the submit button with cascadia's :contains extension.
func (s Selectors) SubmitCSS() string {
	return fmt.Sprintf("%s:contains(%q)", s.SubmitTag, s.SubmitText)
}

// scoped returns child nested under the result container.
func (s Selectors) scoped(child string) string {
	return s.ResultContainer + " " + child
}

// xpathLiteral quotes v for XPath 1.0, which has no escape sequences.
func xpathLiteral(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

package usecase

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Link maps a keyword to an official reference page.
type Link struct {
	Keyword string
	URL     string
}

// LinkTable is matched in order; the first keyword found wins.
type LinkTable []Link

func DefaultLinks() LinkTable {
	return LinkTable{
		{Keyword: "bank", URL: "https://rbi.org.in/Scripts/FAQView.aspx?Id=28"},
		{Keyword: "investment", URL: "https://www.sebi.gov.in/investor_education.html"},
		{Keyword: "budget", URL: "https://financialplanning.nism.ac.in/"},
		{Keyword: "credit", URL: "https://www.cibil.com/"},
	}
}

// NewLinkTable validates links and lowercases their keywords, keeping order.
func NewLinkTable(links []Link) (LinkTable, error) {
	if len(links) == 0 {
		return nil, errors.New("usecase: link table must not be empty")
	}
	out := make(LinkTable, 0, len(links))
	for i, l := range links {
		kw := strings.ToLower(strings.TrimSpace(l.Keyword))
		if kw == "" {
			return nil, fmt.Errorf("usecase: link %d: keyword must not be empty", i)
		}
		u, err := url.Parse(strings.TrimSpace(l.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("usecase: link %d (%s): url %q must be absolute", i, kw, l.URL)
		}
		out = append(out, Link{Keyword: kw, URL: u.String()})
	}
	return out, nil
}

// Match returns the first link whose keyword occurs in the lowercased text.
func (t LinkTable) Match(text string) (Link, bool) {
	lower := strings.ToLower(text)
	for _, l := range t {
		if strings.Contains(lower, l.Keyword) {
			return l, true
		}
	}
	return Link{}, false
}

func referenceLine(l Link) string {
	return fmt.Sprintf("\n\n🔗 **Official Resource**: [Verify here](%s)", l.URL)
}

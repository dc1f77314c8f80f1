package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		switch {
		case unicode.IsSpace(c):
			newStr.WriteRune(' ')
		case unicode.IsPrint(c):
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText removes non-printable characters and collapses all whitespace
// runs into a single space.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	return innerWhitespace.ReplaceAllString(s, " ")
}

// Text returns the cleaned text of the first element matching selector within sel.
func Text(sel *goquery.Selection, selector string) string {
	return CleanText(sel.Find(selector).First().Text())
}

// Attr returns the trimmed value of an attribute of the first element matching
// selector within sel.
func Attr(sel *goquery.Selection, selector, attr string) string {
	value, _ := sel.Find(selector).First().Attr(attr)
	return strings.TrimSpace(value)
}

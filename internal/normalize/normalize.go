// Package normalize canonicalizes company and person names into stable join
// keys and email-safe slugs. Every other component keys on its output, so the
// rules here must stay deterministic.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalForms are company legal-form tokens stripped during key derivation
// (French and international).
var legalForms = map[string]struct{}{
	"sas": {}, "sasu": {}, "sarl": {}, "eurl": {}, "sa": {}, "sci": {},
	"snc": {}, "sccv": {}, "selarl": {}, "selas": {}, "gmbh": {}, "ltd": {},
	"llc": {}, "inc": {}, "bv": {}, "nv": {}, "spa": {}, "plc": {}, "ag": {},
	"co": {}, "corp": {},
}

var (
	nonWordRe   = regexp.MustCompile(`[^\w\s]`)
	nameCleanRe = regexp.MustCompile(`[\s\-]+`)
	nonAlnumRe  = regexp.MustCompile(`\W`)
)

// accentStripper decomposes to NFKD and drops combining marks, so "é" -> "e".
var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func stripAccents(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		return s
	}
	return out
}

// CompanyKey derives the join key for a company name: lowercase, accents
// stripped, "&" spelled out, punctuation removed, legal forms dropped,
// whitespace collapsed.
func CompanyKey(name string) string {
	if name == "" {
		return ""
	}
	s := stripAccents(strings.ToLower(strings.TrimSpace(name)))
	s = strings.ReplaceAll(s, "&", " et ")
	s = nonWordRe.ReplaceAllString(s, " ")

	var kept []string
	for _, tok := range strings.Fields(s) {
		if _, legal := legalForms[tok]; legal {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// CompanySlug collapses the company key to a single token suitable for
// domain guessing: "Acme Corp" -> "acme".
func CompanySlug(name string) string {
	return strings.ReplaceAll(CompanyKey(name), " ", "")
}

// NamePart normalizes a first or last name for email building: lowercase,
// accents stripped, spaces and hyphens removed. "Jean-Pierre" -> "jeanpierre".
func NamePart(name string) string {
	if name == "" {
		return ""
	}
	s := stripAccents(strings.ToLower(strings.TrimSpace(name)))
	s = nameCleanRe.ReplaceAllString(s, "")
	return nonAlnumRe.ReplaceAllString(s, "")
}

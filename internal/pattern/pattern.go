// Package pattern classifies corporate email address formats and infers
// the dominant format for a company from discovered addresses.
package pattern

import (
	"fmt"
	"strings"

	"github.com/Rabiegha/b2b-email-campaign/internal/normalize"
)

// Pattern is an email local-part format. The vocabulary is closed: an
// address that fits none of these formats is left unclassified.
type Pattern string

const (
	FirstDotLast   Pattern = "first.last"
	FirstLast      Pattern = "firstlast"
	FLast          Pattern = "flast"
	FDotLast       Pattern = "f.last"
	First          Pattern = "first"
	LastDotFirst   Pattern = "last.first"
	Last           Pattern = "last"
	LastF          Pattern = "lastf"
	FirstUnderLast Pattern = "first_last"
)

// Priority orders patterns from most to least common. Classification
// tries them in this order so ambiguous locals land on the likelier
// format, and inference ties break the same way.
var Priority = []Pattern{
	FirstDotLast,
	FirstLast,
	FLast,
	FDotLast,
	First,
	LastDotFirst,
	Last,
	LastF,
	FirstUnderLast,
}

// Valid reports whether p belongs to the vocabulary.
func (p Pattern) Valid() bool {
	for _, known := range Priority {
		if p == known {
			return true
		}
	}
	return false
}

// Local builds the local part for a person. First and last must already
// be normalized name parts (lowercase, no accents, no separators).
func (p Pattern) Local(first, last string) string {
	switch p {
	case FirstDotLast:
		return first + "." + last
	case FirstLast:
		return first + last
	case FLast:
		if first == "" {
			return last
		}
		return first[:1] + last
	case FDotLast:
		if first == "" {
			return last
		}
		return first[:1] + "." + last
	case First:
		return first
	case LastDotFirst:
		return last + "." + first
	case Last:
		return last
	case LastF:
		if first == "" {
			return last
		}
		return last + first[:1]
	case FirstUnderLast:
		return first + "_" + last
	}
	return ""
}

// Address builds the full address for a person at a domain.
func (p Pattern) Address(firstname, lastname, domain string) string {
	first := normalize.NamePart(firstname)
	last := normalize.NamePart(lastname)
	return fmt.Sprintf("%s@%s", p.Local(first, last), domain)
}

// hunterPatterns maps Hunter.io pattern notation to the vocabulary.
var hunterPatterns = map[string]Pattern{
	"{first}.{last}": FirstDotLast,
	"{first}{last}":  FirstLast,
	"{f}{last}":      FLast,
	"{f}.{last}":     FDotLast,
	"{first}":        First,
	"{last}.{first}": LastDotFirst,
	"{last}":         Last,
	"{last}{f}":      LastF,
	"{first}_{last}": FirstUnderLast,
}

// FromHunter converts a Hunter.io pattern string. Returns false when the
// notation has no equivalent in the vocabulary.
func FromHunter(notation string) (Pattern, bool) {
	p, ok := hunterPatterns[strings.ToLower(strings.TrimSpace(notation))]
	return p, ok
}

// Person is one roster entry used as classification evidence.
type Person struct {
	Firstname string
	Lastname  string
}

// roleAccounts lists generic local parts that carry no format signal.
var roleAccounts = map[string]struct{}{
	"contact":     {},
	"info":        {},
	"hello":       {},
	"bonjour":     {},
	"support":     {},
	"admin":       {},
	"sales":       {},
	"commercial":  {},
	"rh":          {},
	"recrutement": {},
	"jobs":        {},
	"press":       {},
	"presse":      {},
	"marketing":   {},
	"accueil":     {},
	"direction":   {},
	"service":     {},
	"noreply":     {},
	"no-reply":    {},
	"newsletter":  {},
	"postmaster":  {},
	"webmaster":   {},
	"abuse":       {},
}

// Classify determines which pattern a local part follows. Roster matches
// are authoritative; without one the local is classified by shape, which
// only works for separator-bearing formats. Role accounts and
// unclassifiable locals return false.
func Classify(local string, roster []Person) (Pattern, bool) {
	local = strings.ToLower(strings.TrimSpace(local))
	if local == "" {
		return "", false
	}
	if _, ok := roleAccounts[local]; ok {
		return "", false
	}

	for _, person := range roster {
		first := normalize.NamePart(person.Firstname)
		last := normalize.NamePart(person.Lastname)
		if first == "" && last == "" {
			continue
		}
		for _, p := range Priority {
			if p.Local(first, last) == local {
				return p, true
			}
		}
	}

	return classifyByShape(local)
}

func classifyByShape(local string) (Pattern, bool) {
	switch {
	case strings.Contains(local, "_"):
		parts := strings.SplitN(local, "_", 2)
		if nameLike(parts[0]) && nameLike(parts[1]) {
			return FirstUnderLast, true
		}
	case strings.Contains(local, "."):
		parts := strings.SplitN(local, ".", 2)
		if !nameLike(parts[0]) || !nameLike(parts[1]) {
			return "", false
		}
		if len(parts[0]) == 1 {
			return FDotLast, true
		}
		return FirstDotLast, true
	}
	// A bare token could be any of firstlast, flast, first, last or
	// lastf. Without a roster hit there is nothing to separate them.
	return "", false
}

func nameLike(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '-' {
			return false
		}
	}
	return true
}

package guardrail

import (
	"sort"
	"strings"
)

// stemSuffixes are stripped from a normalized keyword to form its naive
// stem. Longer suffixes are tried first.
var stemSuffixes = []string{"mentes", "caoes", "ments", "mente", "coes", "cao", "ing", "es", "ed", "s"}

// minStemLength is the shortest stem kept in an expanded set.
const minStemLength = 4

// KeywordSet is an immutable set of normalized keywords.
type KeywordSet struct {
	words map[string]struct{}
}

// Contains reports whether keyword is a member of the set.
func (s KeywordSet) Contains(keyword string) bool {
	_, ok := s.words[keyword]
	return ok
}

// Len returns the number of keywords in the set.
func (s KeywordSet) Len() int {
	return len(s.words)
}

// Words returns the keywords in lexical order.
func (s KeywordSet) Words() []string {
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Match returns the first keyword that occurs as a whole word in the
// normalized message.
func (s KeywordSet) Match(normalized string) (string, bool) {
	if normalized == "" || len(s.words) == 0 {
		return "", false
	}
	padded := " " + normalized + " "
	for w := range s.words {
		if strings.Contains(padded, " "+w+" ") {
			return w, true
		}
	}
	return "", false
}

// ExpandKeywords expands base keywords into their normalized variants:
// the normalized form, its whitespace-collapsed form, its plural or
// singular form, and its naive stem.
func ExpandKeywords(keywords []string) KeywordSet {
	words := make(map[string]struct{}, len(keywords)*3)
	for _, keyword := range keywords {
		normalized := Normalize(keyword)
		if normalized == "" {
			continue
		}
		words[normalized] = struct{}{}

		if collapsed := strings.ReplaceAll(normalized, " ", ""); collapsed != normalized {
			words[collapsed] = struct{}{}
		}

		if !strings.HasSuffix(normalized, "s") && len(normalized) > 3 {
			words[normalized+"s"] = struct{}{}
		} else if strings.HasSuffix(normalized, "s") {
			if singular := strings.TrimSuffix(normalized, "s"); singular != "" {
				words[singular] = struct{}{}
			}
		}

		if stem := stemOf(normalized); len(stem) >= minStemLength {
			words[stem] = struct{}{}
		}
	}
	return KeywordSet{words: words}
}

func stemOf(word string) string {
	for _, suffix := range stemSuffixes {
		if strings.HasSuffix(word, suffix) {
			return strings.TrimSuffix(word, suffix)
		}
	}
	return word
}

// ExpandDictionary expands every subject's keyword list.
func ExpandDictionary(base map[string][]string) map[string]KeywordSet {
	out := make(map[string]KeywordSet, len(base))
	for subject, keywords := range base {
		out[subject] = ExpandKeywords(keywords)
	}
	return out
}

// Dictionary holds the expanded keyword sets the evaluator matches
// against. It is built once and never modified.
type Dictionary struct {
	subjects map[string]KeywordSet
	offTopic KeywordSet
}

// NewDictionary expands the per-subject base lists and the off-topic list.
func NewDictionary(base map[string][]string, offTopic []string) Dictionary {
	return Dictionary{
		subjects: ExpandDictionary(base),
		offTopic: ExpandKeywords(offTopic),
	}
}

// DefaultDictionary returns the dictionary built from the built-in
// keyword library.
func DefaultDictionary() Dictionary {
	return NewDictionary(DefaultSubjectKeywords(), DefaultOffTopicKeywords())
}

// Subject returns the expanded set for subject. Unknown subjects yield an
// empty set.
func (d Dictionary) Subject(subject string) KeywordSet {
	return d.subjects[subject]
}

// OffTopic returns the expanded off-topic set.
func (d Dictionary) OffTopic() KeywordSet {
	return d.offTopic
}

// Subjects returns the subject names known to the dictionary, sorted.
func (d Dictionary) Subjects() []string {
	out := make([]string, 0, len(d.subjects))
	for s := range d.subjects {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

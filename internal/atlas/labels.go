package atlas

import (
	"regexp"
	"sort"
	"strings"
)

// titleStopWords are skipped when extracting label keywords from paper titles.
var titleStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "for": {}, "and": {}, "or": {},
	"in": {}, "on": {}, "with": {}, "to": {}, "via": {}, "from": {}, "by": {},
	"using": {}, "towards": {}, "toward": {}, "is": {}, "are": {}, "at": {},
	"as": {}, "its": {}, "their": {}, "based": {}, "new": {}, "novel": {},
	"approach": {}, "method": {}, "methods": {}, "paper": {}, "study": {},
}

var wordRe = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9-]+`)

// ClusterLabel derives a human-readable label from the titles of a cluster's
// papers: the three most frequent non-stop-word title tokens, title-cased and
// joined with " & ". Frequency ties break alphabetically.
func ClusterLabel(titles []string) string {
	counts := make(map[string]int)

	for _, title := range titles {
		seen := make(map[string]struct{})

		for _, word := range wordRe.FindAllString(strings.ToLower(title), -1) {
			if len(word) < 3 {
				continue
			}

			if _, stop := titleStopWords[word]; stop {
				continue
			}

			// Count each word once per title so one verbose title
			// cannot dominate the label.
			if _, dup := seen[word]; dup {
				continue
			}

			seen[word] = struct{}{}
			counts[word]++
		}
	}

	if len(counts) == 0 {
		return "Miscellaneous"
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}

	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}

		return words[i] < words[j]
	})

	if len(words) > 3 {
		words = words[:3]
	}

	for i, w := range words {
		words[i] = titleCase(w)
	}

	return strings.Join(words, " & ")
}

func titleCase(w string) string {
	if w == "" {
		return w
	}

	return strings.ToUpper(w[:1]) + w[1:]
}

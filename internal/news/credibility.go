package news

import (
	"sort"
	"strings"
)

// tierLow is the floor given to unrecognized sources. Unknown sources are
// never an error.
const tierLow = 0.40

// sourceTiers weights trust in a news source on a [0,1] scale: premium wire
// and financial outlets at the top, recognized general outlets in the middle.
var sourceTiers = map[string]float64{
	"reuters":                   0.95,
	"bloomberg":                 0.95,
	"the wall street journal":   0.93,
	"financial times":           0.93,
	"associated press":          0.92,
	"the new york times":        0.88,
	"cnbc":                      0.85,
	"barron's":                  0.85,
	"marketwatch":               0.82,
	"forbes":                    0.80,
	"investor's business daily": 0.78,
	"yahoo finance":             0.75,
	"seeking alpha":             0.70,
}

// tierNames holds the tier table keys in sorted order so partial matching is
// deterministic when a source name contains several known outlets.
var tierNames = func() []string {
	names := make([]string, 0, len(sourceTiers))
	for name := range sourceTiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// Credibility looks a source up in the tier table, falling back to a partial
// match and then to the lowest tier.
func Credibility(source string) float64 {
	name := strings.ToLower(strings.TrimSpace(source))
	if name == "" {
		return tierLow
	}
	if score, ok := sourceTiers[name]; ok {
		return score
	}
	for _, known := range tierNames {
		if strings.Contains(name, known) {
			return sourceTiers[known]
		}
	}
	return tierLow
}

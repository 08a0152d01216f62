package features

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category describes a merchant category in the lexicon.
type Category struct {
	Name     string   `yaml:"name"`
	Ordinal  int      `yaml:"ordinal"` // 0 = lowest concern
	Risk     float64  `yaml:"risk"`    // [0,1]
	Keywords []string `yaml:"keywords"`
}

// Lexicon maps merchant names to categories via case-insensitive keyword
// matching. It backs the merchant band of the feature vector and the
// recent-venue sequence flags.
type Lexicon struct {
	Categories []Category `yaml:"categories"`

	maxOrdinal float64
}

const (
	CategoryGambling = "gambling"
	CategoryAlcohol  = "alcohol"
	CategoryATM      = "atm"
	CategoryUnknown  = "unknown"
)

// DefaultLexicon returns the compiled-in merchant lexicon used when no YAML
// file is configured. Keyword lists cover common Australian merchants.
func DefaultLexicon() *Lexicon {
	l := &Lexicon{
		Categories: []Category{
			{Name: "groceries", Ordinal: 0, Risk: 0.02, Keywords: []string{
				"woolworths", "coles", "aldi", "iga", "foodworks",
			}},
			{Name: "utilities", Ordinal: 1, Risk: 0.02, Keywords: []string{
				"origin energy", "agl", "telstra", "optus", "sydney water",
			}},
			{Name: "transport", Ordinal: 2, Risk: 0.05, Keywords: []string{
				"opal", "myki", "uber", "bp ", "caltex", "shell",
			}},
			{Name: "retail", Ordinal: 3, Risk: 0.05, Keywords: []string{
				"kmart", "target", "big w", "bunnings", "jb hi-fi", "amazon",
			}},
			{Name: "dining", Ordinal: 4, Risk: 0.1, Keywords: []string{
				"mcdonald", "kfc", "dominos", "cafe", "restaurant", "menulog", "uber eats",
			}},
			{Name: "entertainment", Ordinal: 5, Risk: 0.2, Keywords: []string{
				"netflix", "spotify", "cinema", "hoyts", "event cinemas", "steam",
			}},
			{Name: CategoryATM, Ordinal: 6, Risk: 0.4, Keywords: []string{
				"atm", "cash withdrawal", "wdl", "cashout",
			}},
			{Name: CategoryAlcohol, Ordinal: 7, Risk: 0.5, Keywords: []string{
				"liquorland", "dan murphy", "bws", "bottle", "hotel", "pub", "tavern", "bar ",
			}},
			{Name: CategoryGambling, Ordinal: 8, Risk: 1.0, Keywords: []string{
				"sportsbet", "bet365", "ladbrokes", "tab ", "tabcorp", "neds",
				"pointsbet", "unibet", "betfair", "bluebet", "casino", "pokies",
				"lotto", "lotteries", "lottery", "keno", "bingo", "poker",
			}},
		},
	}
	l.index()
	return l
}

// LoadLexicon reads a lexicon from a YAML file. An empty path returns the
// compiled-in default.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return DefaultLexicon(), nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var l Lexicon
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file: %w", err)
	}
	if len(l.Categories) == 0 {
		return nil, fmt.Errorf("lexicon file %s defines no categories", path)
	}
	l.index()
	return &l, nil
}

func (l *Lexicon) index() {
	for _, c := range l.Categories {
		if float64(c.Ordinal) > l.maxOrdinal {
			l.maxOrdinal = float64(c.Ordinal)
		}
	}
	if l.maxOrdinal == 0 {
		l.maxOrdinal = 1
	}
}

// Classify returns the best-matching category for a merchant description.
// The payee field and raw transaction text are both searched; the highest
// ordinal match wins so a "Casino Hotel" classifies as gambling, not alcohol.
func (l *Lexicon) Classify(payee, rawText string) Category {
	haystack := strings.ToLower(payee + " " + rawText)

	best := Category{Name: CategoryUnknown, Ordinal: 0, Risk: 0.1}
	found := false
	for _, c := range l.Categories {
		for _, kw := range c.Keywords {
			if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
				if !found || c.Ordinal > best.Ordinal {
					best = c
					found = true
				}
				break
			}
		}
	}
	return best
}

// OrdinalScale normalizes a category ordinal to [0,1].
func (l *Lexicon) OrdinalScale(c Category) float64 {
	return unit(float64(c.Ordinal) / l.maxOrdinal)
}

// IsGambling reports whether the merchant matches a known gambling venue.
func (l *Lexicon) IsGambling(payee, rawText string) bool {
	return l.Classify(payee, rawText).Name == CategoryGambling
}

// IsDrinkingVenue reports whether the merchant matches a known drinking venue.
func (l *Lexicon) IsDrinkingVenue(payee, rawText string) bool {
	return l.Classify(payee, rawText).Name == CategoryAlcohol
}

// IsATM reports whether the merchant looks like a cash withdrawal.
func (l *Lexicon) IsATM(payee, rawText string) bool {
	return l.Classify(payee, rawText).Name == CategoryATM
}

package segment

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/MrWong99/renoquote/internal/textnorm"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

// Language holds the function words a [Rules] segmenter splits on. All
// words are folded (lower case, no accents).
type Language struct {
	Name string

	// Conjunctions separate two material mentions ("and", "et").
	Conjunctions []string

	// Purpose markers introduce what a material is for ("for", "pour").
	Purpose []string

	// Fillers are verbs and quantifiers dropped from search phrases.
	Fillers []string

	// Markers are frequent words that identify the language for [Auto].
	Markers []string

	// HeadLast is true when the last noun of a compound is its head.
	HeadLast bool
}

// EnglishLanguage returns the English function words.
func EnglishLanguage() Language {
	return Language{
		Name:         "en",
		Conjunctions: []string{"and", "with", "plus", "also", "then"},
		Purpose:      []string{"for"},
		Fillers: []string{
			"need", "needs", "install", "buy", "replace", "fix", "repair", "apply",
			"lay", "fit", "approximately", "roughly", "about", "around", "some",
			"bit", "lot", "lots", "new", "good", "quality", "cheap",
		},
		Markers:  []string{"the", "and", "for", "with", "need", "some", "walls", "of", "a"},
		HeadLast: true,
	}
}

// FrenchLanguage returns the French function words.
func FrenchLanguage() Language {
	return Language{
		Name:         "fr",
		Conjunctions: []string{"et", "avec", "plus", "puis", "ainsi"},
		Purpose:      []string{"pour"},
		Fillers: []string{
			"besoin", "installer", "acheter", "remplacer", "changer", "reparer",
			"appliquer", "poser", "refaire", "environ", "quelques", "peu",
			"neuf", "neuve", "bonne", "qualite",
		},
		Markers: []string{"le", "la", "les", "des", "du", "de", "pour", "et", "avec", "un", "une", "besoin"},
	}
}

// unitWords are measurement words stripped from search phrases.
var unitWords = map[string]struct{}{
	"m2": {}, "sqm": {}, "kg": {}, "kilo": {}, "kilos": {}, "litre": {}, "litres": {}, "liter": {},
	"liters": {}, "metre": {}, "metres": {}, "meter": {}, "meters": {}, "ml": {},
	"piece": {}, "pieces": {}, "unit": {}, "units": {}, "roll": {}, "rolls": {},
	"rouleau": {}, "rouleaux": {}, "sac": {}, "sacs": {}, "bag": {}, "bags": {},
	"pot": {}, "pots": {}, "box": {}, "boxes": {}, "boite": {}, "boites": {},
	"square": {}, "carre": {}, "carres": {},
}

// sentenceBreak splits on sentence punctuation, and on commas or full stops
// followed by whitespace so decimals such as "2.5" or "2,5" survive.
var sentenceBreak = regexp.MustCompile(`[;!?\n]+|[.,](?:\s+|$)`)

// Rules is a lexicon-driven [Segmenter] for one language.
type Rules struct {
	lang         Language
	conjunctions map[string]struct{}
	purpose      map[string]struct{}
	fillers      map[string]struct{}
}

var _ Segmenter = (*Rules)(nil)

// NewRules returns a segmenter for lang.
func NewRules(lang Language) *Rules {
	return &Rules{
		lang:         lang,
		conjunctions: set(lang.Conjunctions),
		purpose:      set(lang.Purpose),
		fillers:      set(lang.Fillers),
	}
}

// English returns the English segmenter.
func English() *Rules { return NewRules(EnglishLanguage()) }

// French returns the French segmenter.
func French() *Rules { return NewRules(FrenchLanguage()) }

// Language returns the segmenter's language.
func (r *Rules) Language() Language { return r.lang }

// Segment implements [Segmenter].
func (r *Rules) Segment(transcript string) []Need {
	var (
		needs []Need
		seen  = make(map[string]struct{})
	)
	for _, sentence := range sentenceBreak.Split(transcript, -1) {
		for _, clause := range r.clauses(sentence) {
			n, ok := r.need(clause)
			if !ok {
				continue
			}
			key := string(n.Task) + "|" + n.Text
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			needs = append(needs, n)
		}
	}
	return needs
}

// clauses splits a sentence on conjunctions, keeping the original words.
func (r *Rules) clauses(sentence string) [][]string {
	var (
		out [][]string
		cur []string
	)
	for _, w := range strings.Fields(sentence) {
		if _, ok := r.conjunctions[foldWord(w)]; ok {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, w)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// need reads one clause. The words before the first purpose marker name the
// material; the words after it say what the material is for.
func (r *Rules) need(words []string) (Need, bool) {
	head, purpose := words, []string(nil)
	for i, w := range words {
		if _, ok := r.purpose[foldWord(w)]; ok {
			head, purpose = words[:i], words[i+1:]
			break
		}
	}

	headText := strings.Join(head, " ")
	purposeText := strings.Join(purpose, " ")
	headTokens := textnorm.Tokens(headText)

	category := categorize(headTokens, r.lang.HeadLast)
	task := taskFor(textnorm.Tokens(purposeText))
	switch {
	case task != "":
	case category != "":
		task = DefaultTask(category)
	default:
		task = taskFor(headTokens)
	}
	if category == "" && task == "" {
		return Need{}, false
	}
	if category == "" {
		category = catalog.CategoryOther
	}

	text := r.searchPhrase(headText)
	if text == "" {
		return Need{}, false
	}
	return Need{
		Text:     text,
		Raw:      strings.Join(words, " "),
		Head:     headText,
		Purpose:  purposeText,
		Category: category,
		Task:     task,
	}, true
}

// searchPhrase keeps the content words of s.
func (r *Rules) searchPhrase(s string) string {
	var kept []string
	for _, tok := range textnorm.Keywords(s) {
		if _, ok := r.fillers[tok]; ok {
			continue
		}
		if _, ok := unitWords[tok]; ok {
			continue
		}
		if isNumeric(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// foldWord folds w and trims surrounding punctuation.
func foldWord(w string) string {
	return strings.TrimFunc(textnorm.Fold(w), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}

func set(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

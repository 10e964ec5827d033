// Package segment splits a free-form job transcript into material needs.
//
// A transcript such as
//
//	"Need waterproof glue for bathroom tiles and white paint for the walls"
//
// yields one [Need] per material mention: {"waterproof glue", adhesives,
// tiling} and {"white paint", paints, painting}. The words after a purpose
// marker ("for", "pour") describe what the material is for and steer the
// task type without becoming needs of their own.
//
// Segmenters are rule based and language specific. [English] and [French]
// share the bilingual material lexicon and differ in their function words;
// [Auto] picks one by counting language markers and falls back to the
// other when the first finds nothing.
package segment

import (
	"strings"

	"github.com/MrWong99/renoquote/pkg/catalog"
)

// Task is the kind of work a need belongs to.
type Task string

const (
	TaskTiling     Task = "tiling"
	TaskPainting   Task = "painting"
	TaskPlumbing   Task = "plumbing"
	TaskElectrical Task = "electrical"
	TaskCarpentry  Task = "carpentry"
	TaskGeneral    Task = "general"
)

// Tasks lists every task type in presentation order.
var Tasks = []Task{TaskTiling, TaskPainting, TaskPlumbing, TaskElectrical, TaskCarpentry, TaskGeneral}

// Need is one material mention extracted from a transcript.
type Need struct {
	// Text is the search phrase: the folded content words of the mention,
	// without quantities, units or filler verbs.
	Text string

	// Raw is the clause the need was read from, as written.
	Raw string

	// Head holds the words of Raw before the first purpose marker, as
	// written. Quantity estimation parses it.
	Head string

	// Purpose holds the words after a purpose marker, if any.
	Purpose string

	Category catalog.Category
	Task     Task
}

// Segmenter extracts needs from a transcript. Implementations are pure and
// safe for concurrent use. An empty result is not an error.
type Segmenter interface {
	Segment(transcript string) []Need
}

// ── Lexicon ───────────────────────────────────────────────────────────────────

// categoryWords maps folded material words, English and French, to their
// catalog category. Order matters: the first category with a match wins.
var categoryWords = []struct {
	category catalog.Category
	words    []string
}{
	{catalog.CategoryAdhesives, []string{"glue", "adhesive", "adhesif", "mortar", "mortier", "colle", "ciment", "cement", "grout", "joint", "sealant", "mastic"}},
	{catalog.CategoryTiles, []string{"tile", "carrelage", "carreau", "ceramic", "ceramique", "porcelain", "porcelaine", "mosaic", "mosaique", "faience"}},
	{catalog.CategoryPaints, []string{"paint", "peinture", "primer", "undercoat", "varnish", "vernis", "couche", "enduit", "lasure"}},
	{catalog.CategoryPlumbing, []string{"pipe", "fitting", "valve", "tuyau", "robinet", "sink", "evier", "faucet", "tap", "raccord", "siphon", "lavabo"}},
	{catalog.CategoryElectrical, []string{"wire", "cable", "switch", "outlet", "socket", "fil", "prise", "interrupteur", "disjoncteur", "breaker"}},
	{catalog.CategoryWood, []string{"wood", "timber", "board", "bois", "planche", "parquet", "plank", "plywood", "contreplaque", "lambris"}},
}

// taskHints maps folded words that describe where or on what the work
// happens to a task type. They are consulted before material categories.
var taskHints = []struct {
	task  Task
	words []string
}{
	{TaskTiling, []string{"tile", "carrelage", "carreau", "faience", "shower", "douche", "credence", "splashback", "backsplash"}},
	{TaskPainting, []string{"wall", "mur", "ceiling", "plafond", "facade", "paint", "peinture", "repaint"}},
	{TaskPlumbing, []string{"pipe", "tuyau", "plumbing", "plomberie", "sink", "evier", "toilet", "wc", "bathtub", "baignoire"}},
	{TaskElectrical, []string{"wire", "wiring", "electric", "electrical", "electricite", "switch", "outlet", "prise", "lighting", "eclairage"}},
	{TaskCarpentry, []string{"wood", "bois", "door", "porte", "window", "fenetre", "cabinet", "placard", "stairs", "escalier"}},
}

// defaultTask is the task a material category implies on its own.
var defaultTask = map[catalog.Category]Task{
	catalog.CategoryTiles:      TaskTiling,
	catalog.CategoryAdhesives:  TaskTiling,
	catalog.CategoryPaints:     TaskPainting,
	catalog.CategoryPlumbing:   TaskPlumbing,
	catalog.CategoryElectrical: TaskElectrical,
	catalog.CategoryWood:       TaskCarpentry,
	catalog.CategoryOther:      TaskGeneral,
}

// DefaultTask returns the task implied by category alone.
func DefaultTask(category catalog.Category) Task {
	if t, ok := defaultTask[category]; ok {
		return t
	}
	return TaskGeneral
}

// categorize returns the category named by tokens, or "" when none is.
// With headLast set the last material word wins, as in English compounds
// ("tile adhesive"); otherwise the first does, as in French ("colle
// carrelage").
func categorize(tokens []string, headLast bool) catalog.Category {
	for i := range tokens {
		tok := tokens[i]
		if headLast {
			tok = tokens[len(tokens)-1-i]
		}
		for _, c := range categoryWords {
			if matchesAny(tok, c.words) {
				return c.category
			}
		}
	}
	return ""
}

// taskFor returns the task hinted by tokens, or "".
func taskFor(tokens []string) Task {
	for _, tok := range tokens {
		for _, h := range taskHints {
			if matchesAny(tok, h.words) {
				return h.task
			}
		}
	}
	return ""
}

func matchesAny(tok string, words []string) bool {
	for _, w := range words {
		if matchWord(tok, w) {
			return true
		}
	}
	return false
}

// matchWord reports whether the folded token is the lexicon word, its
// plural, or a longer inflection of a word of five letters or more
// ("ceramique" for "ceramic", "peintures" for "peinture").
func matchWord(tok, word string) bool {
	switch {
	case tok == word, tok == word+"s", tok == word+"x", tok == word+"es":
		return true
	case len(word) >= 5 && strings.HasPrefix(tok, word):
		return true
	}
	return false
}

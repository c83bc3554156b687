package recognition

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/harun/alexandria/pkg/compositor"
	"github.com/jdkato/prose/v2"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/cases"
)

// Size buckets by window area in pixels.
const (
	sizeSmall  = 300_000
	sizeMedium = 1_000_000
	sizeLarge  = 2_000_000

	titleKeywords = 5
	minWordLen    = 3
)

// Tagger derives keyword tags from text and window context.
type Tagger struct {
	maxKeywords int
}

// NewTagger creates a tagger returning at most maxKeywords text keywords
// (0 means no limit).
func NewTagger(maxKeywords int) *Tagger {
	return &Tagger{maxKeywords: maxKeywords}
}

// ContextTags returns the tags derived from the window context alone.
func (t *Tagger) ContextTags(wc *compositor.WindowContext) []string {
	if wc == nil {
		return nil
	}

	set := map[string]struct{}{}
	if wc.AppID != nil {
		if app := normalizeTag(*wc.AppID); app != "" {
			set["app:"+app] = struct{}{}
			if short := cleanAppName(*wc.AppID); short != "" && short != app {
				set["app:"+short] = struct{}{}
			}
		}
	}
	if wc.Class != nil && (wc.AppID == nil || !strings.EqualFold(*wc.Class, *wc.AppID)) {
		if class := cleanAppName(*wc.Class); class != "" {
			set["class:"+class] = struct{}{}
		}
	}
	if wc.Workspace != nil {
		if ws := normalizeTag(*wc.Workspace); ws != "" {
			set["workspace:"+ws] = struct{}{}
		}
	}
	if wc.Title != nil {
		for _, kw := range t.extract(*wc.Title, titleKeywords) {
			set["title:"+kw] = struct{}{}
		}
	}
	if wc.Geometry != nil && wc.Geometry.Area() > 0 {
		set["size:"+sizeCategory(wc.Geometry.Area())] = struct{}{}
	}

	return sortedKeys(set)
}

// TextTags returns keyword and entity tags for recognised text.
func (t *Tagger) TextTags(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	a, ok := analyze(text)
	if !ok {
		a = analysis{words: plainWords(text)}
	}

	set := map[string]struct{}{}
	for _, kw := range rank(a.words, t.maxKeywords) {
		set[kw] = struct{}{}
	}
	for _, ent := range a.entities {
		set["entity:"+ent] = struct{}{}
	}
	return sortedKeys(set)
}

// Tags is the union of text and context tags.
func (t *Tagger) Tags(text string, wc *compositor.WindowContext) []string {
	return Union(t.TextTags(text), t.ContextTags(wc))
}

func (t *Tagger) extract(text string, limit int) []string {
	a, ok := analyze(text)
	if !ok {
		a = analysis{words: plainWords(text)}
	}
	return rank(a.words, limit)
}

type analysis struct {
	words    []string // nouns, verbs and adjectives
	entities []string // normalised named entities
}

// analyze runs the POS tagger and entity extractor over text.
func analyze(text string) (a analysis, ok bool) {
	defer func() {
		// the tagger has panicked on binary-looking OCR noise
		if recover() != nil {
			a, ok = analysis{}, false
		}
	}()

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return analysis{}, false
	}

	for _, tok := range doc.Tokens() {
		switch {
		case strings.HasPrefix(tok.Tag, "NN"),
			strings.HasPrefix(tok.Tag, "VB"),
			strings.HasPrefix(tok.Tag, "JJ"):
			a.words = append(a.words, tok.Text)
		}
	}

	seen := map[string]struct{}{}
	for _, ent := range doc.Entities() {
		name := normalizeTag(ent.Text)
		if len(name) < minWordLen {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		a.entities = append(a.entities, name)
	}

	return a, true
}

var plainWordPattern = regexp.MustCompile(`\b[\p{L}]{3,}\b`)

func plainWords(text string) []string {
	return plainWordPattern.FindAllString(text, -1)
}

// rank orders stemmed content words by frequency, first occurrence
// breaking ties, and keeps at most limit of them.
func rank(words []string, limit int) []string {
	fold := cases.Fold()
	counts := map[string]int{}
	var order []string
	for _, w := range words {
		w = fold.String(w)
		if !isKeywordCandidate(w) {
			continue
		}
		stem := english.Stem(w, false)
		if len(stem) < minWordLen {
			continue
		}
		if _, seen := counts[stem]; !seen {
			order = append(order, stem)
		}
		counts[stem]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	return order
}

func isKeywordCandidate(w string) bool {
	if len([]rune(w)) < minWordLen {
		return false
	}
	if _, stop := stopWords[w]; stop {
		return false
	}
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// normalizeTag folds case and joins whitespace-separated words with "-".
func normalizeTag(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), "-")
}

var (
	appSuffixes    = []string{".exe", ".app", ".desktop"}
	appPrefixes    = []string{"org.", "com.", "net.", "io.", "dev."}
	versionPattern = regexp.MustCompile(`[-_ ]?v?\d+(\.\d+)*$`)
)

// cleanAppName reduces an application id to a short, human name:
// org.mozilla.firefox -> firefox, Code-1.85 -> code.
func cleanAppName(appID string) string {
	name := cases.Fold().String(strings.TrimSpace(appID))
	for _, s := range appSuffixes {
		name = strings.TrimSuffix(name, s)
	}
	for _, p := range appPrefixes {
		if strings.HasPrefix(name, p) {
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			break
		}
	}
	name = versionPattern.ReplaceAllString(name, "")

	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func sizeCategory(area int) string {
	switch {
	case area < sizeSmall:
		return "small"
	case area < sizeMedium:
		return "medium"
	case area < sizeLarge:
		return "large"
	default:
		return "xlarge"
	}
}

// Union merges tag lists into a sorted set.
func Union(lists ...[]string) []string {
	set := map[string]struct{}{}
	for _, l := range lists {
		for _, tag := range l {
			if tag != "" {
				set[tag] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

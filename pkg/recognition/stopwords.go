package recognition

// stopWords are dropped before stemming. Besides common English function
// words the list covers UI chrome that appears on nearly every capture.
var stopWords = toSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
	"had", "her", "was", "one", "our", "out", "day", "get", "has", "him",
	"his", "how", "its", "may", "new", "now", "old", "see", "two", "who",
	"boy", "did", "she", "use", "way", "too", "this", "that", "with",
	"have", "from", "they", "know", "want", "been", "good", "much", "some",
	"time", "very", "when", "come", "here", "just", "like", "long", "make",
	"many", "over", "such", "take", "than", "them", "well", "were", "will",
	"your", "what", "which", "their", "there", "these", "those", "would",
	"could", "should", "about", "into", "then", "also", "only", "other",
	"more", "most", "each", "does", "doing", "done", "being", "because",
	// interface chrome
	"file", "edit", "view", "help", "menu", "window", "tab", "tabs", "close",
	"open", "save", "cancel", "search", "settings", "tools", "home", "back",
	"forward", "reload", "untitled", "page", "ok", "yes", "no",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

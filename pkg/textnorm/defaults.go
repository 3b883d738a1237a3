package textnorm

// Default vocabularies. Operators replace or extend these through the config
// file; the config package copies them so callers never share the slices.

// DefaultStopwords is the function-word set: determiners, prepositions,
// pronouns, auxiliaries, conjunctions and contraction fragments.
var DefaultStopwords = []string{ //nolint:gochecknoglobals // static config
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and", "any",
	"are", "aren", "around", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "cannot", "could", "couldn", "did", "didn", "do",
	"does", "doesn", "doing", "don", "down", "during", "each", "either", "else", "ever", "every",
	"few", "for", "from", "further", "had", "hadn", "has", "hasn", "have", "haven", "having",
	"he", "her", "here", "hers", "herself", "him", "himself", "his", "how", "i", "if", "in",
	"into", "is", "isn", "it", "its", "itself", "just", "let", "ll", "may", "me", "might",
	"mine", "more", "most", "must", "my", "myself", "neither", "no", "nor", "not", "nothing",
	"now", "of", "off", "on", "once", "one", "only", "or", "other", "ought", "our", "ours",
	"ourselves", "out", "over", "own", "per", "re", "same", "shall", "shan", "she", "should",
	"shouldn", "so", "some", "such", "than", "that", "the", "their", "theirs", "them",
	"themselves", "then", "there", "these", "they", "this", "those", "though", "through", "thus",
	"to", "too", "toward", "towards", "under", "until", "up", "upon", "us", "ve", "very", "via",
	"was", "wasn", "we", "were", "weren", "what", "when", "where", "whether", "which", "while",
	"who", "whom", "whose", "why", "will", "with", "within", "without", "won", "would",
	"wouldn", "yet", "you", "your", "yours", "yourself", "yourselves",
}

// DefaultIrregularLemmas maps irregular inflections to their lemma.
var DefaultIrregularLemmas = map[string]string{ //nolint:gochecknoglobals // static config
	"felt":     "feel",
	"went":     "go",
	"gone":     "go",
	"thought":  "think",
	"gave":     "give",
	"given":    "give",
	"made":     "make",
	"said":     "say",
	"kept":     "keep",
	"lost":     "lose",
	"left":     "leave",
	"broke":    "break",
	"broken":   "break",
	"knew":     "know",
	"known":    "know",
	"found":    "find",
	"held":     "hold",
	"told":     "tell",
	"children": "child",
	"people":   "person",
	"men":      "man",
	"women":    "woman",
	"lives":    "life",
	"selves":   "self",
	"wolves":   "wolf",
	"griefs":   "grief",
}

// DefaultDictionary is the known-lemma list used by the fragment filter and to
// prefer dictionary forms during lemmatization. Ingestion and retrieval extend
// it with the keywords already in the lexicon.
var DefaultDictionary = []string{ //nolint:gochecknoglobals // static config
	"ache", "acceptance", "alone", "anger", "angry", "anxiety", "anxious", "ashamed", "awe",
	"belonging", "betrayal", "bitter", "blessing", "body", "boundary", "brave", "breath",
	"burden", "calm", "care", "clarity", "closeness", "comfort", "compassion",
	"confusion", "connection", "containment", "courage", "curious", "delight", "depleted",
	"despair", "devotion", "dread", "embrace", "empty", "exhausted", "faith", "fear", "feel",
	"forgiveness", "fragment", "freedom", "frustrated", "gentle", "grace", "gratitude", "grief",
	"grounded", "guilt", "happy", "heal", "heart", "heavy", "home", "honor", "hope", "hurt",
	"insight", "joy", "kindness", "lonely", "longing", "loss", "love", "mourning", "need",
	"numb", "overwhelmed", "pain", "panic", "patience", "peace", "presence", "quiet", "rage",
	"recognition", "relief", "remembrance", "resentment", "rest", "revelation", "sacred", "sad",
	"safe", "scare", "seen", "shame", "sorrow", "stillness", "still", "stress",
	"surrender", "tender", "tension", "tire", "trust", "truth",
	"vulnerable", "warmth", "weary", "wholeness", "wonder", "worry", "yearning",
}

// DefaultAdjectives seeds the POS tagger's adjective class.
var DefaultAdjectives = []string{ //nolint:gochecknoglobals // static config
	"alone", "angry", "anxious", "ashamed", "bitter", "brave", "broken", "calm", "curious",
	"deep", "depleted", "empty", "exhausted", "fragile", "frustrated", "gentle", "grounded",
	"happy", "heavy", "hollow", "lonely", "lost", "numb", "open", "overwhelmed", "quiet", "raw",
	"sacred", "sad", "safe", "scared", "seen", "soft", "still", "stressed", "tender", "tired",
	"unseen", "vulnerable", "warm", "weary", "whole", "wild",
}

// DefaultVerbs seeds the POS tagger's verb class.
var DefaultVerbs = []string{ //nolint:gochecknoglobals // static config
	"be", "become", "break", "bring", "carry", "come", "cry", "feel", "find", "get", "give",
	"go", "hold", "keep", "know", "leave", "let", "like", "look", "lose", "make", "need",
	"say", "see", "seem", "set", "take", "tell", "think", "try", "want", "work",
}

// DefaultBoilerplatePatterns flag publisher, URL, license, chapter and
// file-path noise. Patterns are case-insensitive regular expressions.
var DefaultBoilerplatePatterns = []string{ //nolint:gochecknoglobals // static config
	`https?://`,
	`\bwww\.`,
	`\.(com|org|net|io|pdf|txt|html?|docx?)\b`,
	`\b(copyright|licen[cs]e[ds]?|all rights reserved|isbn|publisher|gutenberg|ebook)\b`,
	`\bchapter\s+([0-9]+|[ivxlc]+)\b`,
	`(^|\s)([a-z]:)?[\\/][\w.-]+[\\/]`,
}

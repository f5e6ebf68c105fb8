package conversation

import (
	"regexp"
	"strings"
)

// ---------- package-level compiled regexes ----------

var (
	namePhraseRE    = regexp.MustCompile(`(?i)\b(?:my name is|my name's|this is|i am|i'm|it's)\s+([a-z]+(?:[ '-][a-z]+){0,2})`)
	leadingNameRE   = regexp.MustCompile(`^\s*([A-Z][a-z]+(?:[ '-][A-Z][a-z]+){1,2})\s*[,.]`)
	dobNumericRE    = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})\b`)
	dobDayFirstRE   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	dobMonthFirstRE = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

// nameStopwords end a captured name: "my name is John and my date..."
var nameStopwords = map[string]bool{
	"and": true, "my": true, "born": true, "calling": true, "date": true,
	"dob": true, "birthday": true, "here": true, "speaking": true,
}

// ExtractIdentityHeuristic is the deterministic identity extractor, used
// by the scripted collaborator and as the engines' recovery path when the
// generative extractor fails.
func ExtractIdentityHeuristic(message string) Identity {
	var id Identity

	if m := namePhraseRE.FindStringSubmatch(message); m != nil {
		id.Name = cleanName(m[1])
	} else if m := leadingNameRE.FindStringSubmatch(message); m != nil {
		id.Name = cleanName(m[1])
	}

	if m := dobNumericRE.FindString(message); m != "" {
		id.DOB = m
	} else if m := dobDayFirstRE.FindString(message); m != "" {
		id.DOB = m
	} else if m := dobMonthFirstRE.FindString(message); m != "" {
		id.DOB = m
	}

	return id
}

func cleanName(raw string) string {
	words := strings.Fields(raw)
	var kept []string
	for _, w := range words {
		if nameStopwords[strings.ToLower(w)] {
			break
		}
		kept = append(kept, titleWord(w))
	}
	return strings.Join(kept, " ")
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}

// identityRefusalPhrases mark an explicit refusal to identify. Message
// taking does not require identity, so refusal routes to MESSAGE_FLOW.
var identityRefusalPhrases = []string{
	"rather not", "won't give", "will not give", "don't want to give",
	"not giving", "don't want to say", "not saying", "prefer not",
	"why do you need", "none of your business", "not comfortable",
}

func isIdentityRefusal(message string) bool {
	return matchesAny(strings.ToLower(message), identityRefusalPhrases)
}

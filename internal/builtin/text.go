package builtin

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"modbot/internal/session"
)

type textArgs struct {
	Text     string `json:"text" jsonschema:"description=Text to analyze"`
	Analysis string `json:"analysis,omitempty" jsonschema:"description=One of basic detailed sentiment keywords,default=basic"`
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

const wordTrim = `.,!?;:"()[]{}`

func textStats(ctx context.Context, sc *session.Context, args textArgs) (string, error) {
	if strings.TrimSpace(args.Text) == "" {
		return "", fmt.Errorf("text is empty")
	}
	switch args.Analysis {
	case "", "basic":
		return basicAnalysis(args.Text), nil
	case "detailed":
		return detailedAnalysis(args.Text), nil
	case "sentiment":
		return sentimentAnalysis(args.Text), nil
	case "keywords":
		return keywordAnalysis(args.Text), nil
	}
	return "", fmt.Errorf("unknown analysis %q: use basic, detailed, sentiment or keywords", args.Analysis)
}

func basicAnalysis(text string) string {
	words := strings.Fields(text)
	sentences := 0
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	return fmt.Sprintf("Characters: %d\nCharacters (no spaces): %d\nWords: %d\nSentences: %d\nParagraphs: %d\nReading time: ~%d min",
		len([]rune(text)),
		len([]rune(strings.ReplaceAll(text, " ", ""))),
		len(words), sentences, paragraphs,
		max(1, len(words)/200),
	)
}

func detailedAnalysis(text string) string {
	var letters, digits, spaces, punct int
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
			spaces++
		case strings.ContainsRune(wordTrim, r):
			punct++
		}
	}

	words := strings.Fields(text)
	var total, longest int
	for _, w := range words {
		n := len([]rune(strings.Trim(w, wordTrim)))
		total += n
		longest = max(longest, n)
	}
	avg := 0.0
	if len(words) > 0 {
		avg = float64(total) / float64(len(words))
	}

	top := topWords(words, 3, 0)
	return fmt.Sprintf("Letters: %d\nDigits: %d\nSpaces: %d\nPunctuation: %d\nWords: %d\nAverage word length: %.1f\nLongest word: %d chars\nMost frequent: %s",
		letters, digits, spaces, punct, len(words), avg, longest, strings.Join(top, ", "))
}

var (
	positiveWords = wordSet("good great excellent wonderful fantastic amazing perfect love loved happy glad satisfied positive success win awesome nice")
	negativeWords = wordSet("bad terrible awful horrible hate hated sad upset frustrated negative failure lose problem error difficult impossible")
)

func wordSet(s string) map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		m[w] = true
	}
	return m
}

func sentimentAnalysis(text string) string {
	words := strings.Fields(text)
	var pos, neg int
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, wordTrim))
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}

	sentiment, confidence := "neutral", 50.0
	switch {
	case pos > neg:
		sentiment = "positive"
		confidence = min(90, float64(pos)/float64(len(words))*100+60)
	case neg > pos:
		sentiment = "negative"
		confidence = min(90, float64(neg)/float64(len(words))*100+60)
	}
	return fmt.Sprintf("Sentiment: %s\nConfidence: %.0f%%\nPositive words: %d\nNegative words: %d",
		sentiment, confidence, pos, neg)
}

func keywordAnalysis(text string) string {
	top := topWords(strings.Fields(text), 10, 4)
	if len(top) == 0 {
		return "No keywords found"
	}
	return "Keywords: " + strings.Join(top, ", ")
}

// topWords returns the n most frequent words as "word(count)", ignoring
// words shorter than minLen runes. Ties keep first-seen order.
func topWords(words []string, n, minLen int) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, wordTrim))
		if w == "" || len([]rune(w)) < minLen {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	out := make([]string, len(order))
	for i, w := range order {
		out[i] = fmt.Sprintf("%s(%d)", w, counts[w])
	}
	return out
}

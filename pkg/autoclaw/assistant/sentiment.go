package assistant

import "strings"

// SentimentResult is the outcome of a sentiment analysis.
type SentimentResult struct {
	Sentiment     string  `json:"sentiment"` // positive, negative, neutral
	Score         float64 `json:"score"`     // 0..1, 0.5 is neutral
	PositiveWords int     `json:"positive_words"`
	NegativeWords int     `json:"negative_words"`
}

var positiveWords = []string{
	"good", "great", "excellent", "amazing", "wonderful",
	"fantastic", "love", "like", "happy", "pleased",
}

var negativeWords = []string{
	"bad", "terrible", "awful", "hate", "dislike",
	"angry", "sad", "disappointed", "frustrated", "annoyed",
}

// AnalyzeSentiment classifies text with a simple word-list count.
func AnalyzeSentiment(text string) SentimentResult {
	lower := strings.ToLower(text)

	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}

	result := SentimentResult{PositiveWords: pos, NegativeWords: neg}
	switch {
	case pos > neg:
		result.Sentiment = "positive"
		result.Score = clamp(0.5 + float64(pos-neg)*0.1)
	case neg > pos:
		result.Sentiment = "negative"
		result.Score = clamp(0.5 - float64(neg-pos)*0.1)
	default:
		result.Sentiment = "neutral"
		result.Score = 0.5
	}
	return result
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

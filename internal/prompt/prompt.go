// Package prompt builds the question-answering prompt sent to the LLM.
package prompt

import (
	"strings"
	"unicode/utf8"
)

// Template is the fixed prompt. Placeholders are replaced verbatim.
const Template = `You are an AI model with access to both an image containing specific information (such as a recent bill) and historical household energy data. Answer the user's question by combining information from both sources if needed:

1. Use Image Data for specific details directly extracted from the image, like recent bills or usage information.
2. Use Data Summary for general patterns, trends, and predictions based on historical data.

If the question requires, cross-reference information from both Image Data and Data Summary to provide a more comprehensive answer.

Image Data (if available):
{image_data}

Data Summary:
{documents}

Conversation History: {context}

User's Question: {question}

Your Answer:
`

// Fields are the four values substituted into Template
type Fields struct {
	ImageData string
	Documents string
	Context   string
	Question  string
}

// Compose fills Template with f. Substitution is single pass, so
// placeholder text inside a field is left alone.
func Compose(f Fields) string {
	r := strings.NewReplacer(
		"{image_data}", f.ImageData,
		"{documents}", f.Documents,
		"{context}", f.Context,
		"{question}", f.Question,
	)
	return r.Replace(Template)
}

// Composer bounds the conversation history placed in the prompt.
// MaxContextChars of zero or less keeps the full history.
type Composer struct {
	MaxContextChars int
}

// Compose fills the template after trimming the context to its most
// recent MaxContextChars bytes
func (c Composer) Compose(f Fields) string {
	f.Context = TailBytes(f.Context, c.MaxContextChars)
	return Compose(f)
}

// TailBytes returns at most n trailing bytes of s without splitting a rune
func TailBytes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

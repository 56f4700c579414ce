package ranking

import (
	"strings"
)

// rankingPrompt is the per-item scoring prompt. Placeholders of the form
// {name} are replaced by FillPrompt.
const rankingPrompt = `Assign a score between 0 and 100 to the following {site.itemType} based on how relevant it is to the user's question. Use your knowledge from other sources, about the item, to make a judgement.
If the score is above 50, provide a short description of the item highlighting the relevance to the user's question, without mentioning the user's question.
Provide an explanation of the relevance of the item to the user's question, without mentioning the user's question or the score or explicitly mentioning the term relevance.
If the score is below 75, in the description, include the reason why it is still relevant.
The user's question is: {request.query}. The item's description is {item.description}`

// rankingSchema is the shape the scoring call must return.
var rankingSchema = map[string]string{
	"score":       "integer between 0 and 100",
	"description": "short description of the item",
}

// maxDescriptionChars bounds the amount of schema JSON pasted into the
// ranking prompt.
const maxDescriptionChars = 4096

// FillPrompt replaces {name} placeholders in the template with the given
// variables. Unknown placeholders are left as is.
func FillPrompt(template string, vars map[string]string) string {
	out := template
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// trimDescription truncates s to at most max bytes, cutting at a rune
// boundary.
func trimDescription(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

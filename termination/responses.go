package termination

import "strings"

// defaultResponse is spoken when no phrase-specific farewell is configured.
const defaultResponse = "Thank you! Goodbye."

// farewells maps termination phrases to the acknowledgment spoken before
// the call is torn down.
var farewells = map[string]string{
	"goodbye":    "Goodbye! It was nice talking with you.",
	"bye":        "Bye! Take care.",
	"thank you":  "You're welcome! Have a great day.",
	"end call":   "Ending the call now. Goodbye!",
	"that's all": "Understood. Thank you for the conversation!",
}

// Response returns the contextual farewell for a detected termination
// phrase. Lookup is exact first, then by substring, then a generic fallback.
func Response(phrase string) string {
	lower := strings.ToLower(phrase)
	if resp, ok := farewells[lower]; ok {
		return resp
	}
	for p, resp := range farewells {
		if strings.Contains(lower, p) {
			return resp
		}
	}
	return defaultResponse
}

package llm

import (
	"fmt"
	"strings"
)

const titlePrompt = `Generate a short 3-5 word chat title summarizing this conversation.
User: %s
Assistant: %s
Title:`

// TitlePrompt asks for a short title for the first exchange of a chat.
func TitlePrompt(userText, reply string) string {
	return fmt.Sprintf(titlePrompt, userText, reply)
}

// CleanTitle keeps the first non-empty line of raw and strips surrounding
// whitespace and quotes.
func CleanTitle(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.Trim(line, `"'`))
		if line != "" {
			return line
		}
	}
	return ""
}

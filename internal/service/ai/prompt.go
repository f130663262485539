package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/agent-chat/internal/model/agent"
)

// BuildSystemPrompt renders the system instructions for a profile.
func BuildSystemPrompt(profile agent.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", profile.Name, strings.ToLower(profile.Title))
	if profile.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", profile.Tone)
	}
	if profile.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(profile.Instructions)
		b.WriteString("\n")
	}
	if len(profile.Topics) > 0 {
		fmt.Fprintf(&b, "\nTopics you cover: %s.\n", strings.Join(profile.Topics, ", "))
	}
	if profile.OpeningLine != "" {
		fmt.Fprintf(&b, "\nWhen the user greets you, answer with something close to: %q\n", profile.OpeningLine)
	}
	b.WriteString("\nReply in plain text. Keep each reply to a few sentences.")
	return b.String()
}

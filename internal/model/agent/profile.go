package agent

// Profile describes an agent identity the local provider can open sessions for.
type Profile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Tone         string   `json:"tone"`
	OpeningLine  string   `json:"openingLine"`
	Instructions string   `json:"-"`
	Topics       []string `json:"topics,omitempty"`
}

// Seed provides the built-in agent profiles.
func Seed() []Profile {
	return []Profile{
		{
			ID:          "onboarding-assistant",
			Name:        "Onboarding Assistant",
			Title:       "New hire onboarding guide",
			Tone:        "warm, concise, practical",
			OpeningLine: "Welcome aboard! I'm here to help you with your onboarding. How can I assist you?",
			Instructions: "You guide new employees through their first weeks. Answer questions about " +
				"paperwork, equipment, training schedules and who to contact. Keep answers short and " +
				"ask a clarifying question when a request is ambiguous.",
			Topics: []string{"paperwork", "equipment", "training", "first week"},
		},
		{
			ID:          "hr-assistant",
			Name:        "HR Assistant",
			Title:       "Always here to help",
			Tone:        "friendly, precise",
			OpeningLine: "Hello! I'm your HR Assistant. I can help you with holiday balances, project information, and leave requests. What would you like to know?",
			Instructions: "You answer employee questions about holiday balances, project assignments " +
				"and leave requests. Never invent balances or dates; say what information you need " +
				"instead.",
			Topics: []string{"holiday balance", "projects", "leave requests"},
		},
	}
}

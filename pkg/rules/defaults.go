package rules

// DefaultRules is the rule set installed when no persisted rules exist:
// everyday conversational coverage so the agent is useful before anyone
// writes a rules file.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			Name:      "greeting",
			Patterns:  []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"},
			MatchType: MatchContains,
			Responses: []string{
				"Hello! How can I help you today?",
				"Hi there! What can I do for you?",
				"Hey! How can I assist you?",
			},
			Priority: 50,
			Enabled:  true,
		},
		{
			Name:      "thanks",
			Patterns:  []string{"thank you", "thanks", "thx", "appreciate"},
			MatchType: MatchContains,
			Responses: []string{
				"You're welcome!",
				"Happy to help!",
				"No problem at all!",
			},
			Priority: 40,
			Enabled:  true,
		},
		{
			Name:      "goodbye",
			Patterns:  []string{"bye", "goodbye", "see you", "later", "take care"},
			MatchType: MatchContains,
			Responses: []string{
				"Goodbye! Have a great day!",
				"Take care!",
				"See you later!",
			},
			Priority: 40,
			Enabled:  true,
		},
		{
			Name:      "help",
			Patterns:  []string{"help", "support", "assist"},
			MatchType: MatchContains,
			Responses: []string{
				"I'm here to help! What do you need?",
				"Sure, I'd be happy to assist. What's your question?",
				"How can I help you today?",
			},
			Priority: 60,
			Enabled:  true,
		},
		{
			Name:      "status",
			Patterns:  []string{"status", "how are you", "how's it going"},
			MatchType: MatchContains,
			Responses: []string{
				"I'm doing well, thanks for asking!",
				"All systems running smoothly!",
				"Everything is working great on my end!",
			},
			Priority: 30,
			Enabled:  true,
		},
		{
			Name:      "yes",
			Patterns:  []string{"yes", "yeah", "yep", "sure", "ok", "okay"},
			MatchType: MatchExact,
			Responses: []string{
				"Got it!",
				"Understood!",
				"Alright!",
			},
			Priority: 20,
			Enabled:  true,
		},
		{
			Name:      "no",
			Patterns:  []string{"no", "nope", "nah"},
			MatchType: MatchExact,
			Responses: []string{
				"Okay, no problem.",
				"Understood.",
				"Got it.",
			},
			Priority: 20,
			Enabled:  true,
		},
		{
			Name:      "question",
			Patterns:  []string{`\?$`},
			MatchType: MatchRegex,
			Responses: []string{
				"That's a good question! Let me think...",
				"Interesting question! Here's what I think...",
				"Great question! I'll do my best to help.",
			},
			Priority: 10,
			Enabled:  true,
		},
	}
}

package usecase

import (
	"strings"

	"finlitbot/internal/domain"
)

func buildPromptMessages(message string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: systemPrompt()},
		{Role: "user", Content: message},
	}
}

func systemPrompt() string {
	return strings.Join([]string{
		"You are FinLit Bot, a financial literacy AI. Always provide:",
		"1. Beginner-friendly explanations",
		"2. Step-by-step guidance",
		"3. Links to official websites (RBI, SEBI, bank sites)",
		"4. Document analysis tips if asked",
		"5. Never give personalized financial advice",
		"Focus on: budgeting, investing, banking, debt, insurance in India.",
	}, "\n")
}

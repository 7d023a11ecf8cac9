package models

// GenerationRequest is a single system + user exchange with a text model.
type GenerationRequest struct {
	System string
	Prompt string
}

type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

func (c Completion) TotalTokens() int {
	return c.PromptTokens + c.CompletionTokens
}

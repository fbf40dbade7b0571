package chat

import _ "embed"

var (
	//go:embed prompts/logo.md
	logoPrompt string

	//go:embed prompts/artifacts.md
	artifactsPrompt string

	//go:embed prompts/title.md
	titlePrompt string

	//go:embed prompts/suggestions.md
	suggestionsPrompt string
)

// systemPrompt returns the system prompt for a chat model. The reasoning
// model has no tools, so it is not told about them.
func systemPrompt(model string) string {
	if model == ModelReasoning {
		return logoPrompt
	}
	return logoPrompt + "\n\n" + artifactsPrompt
}

package artifact

import (
	_ "embed"
	"strings"
	"text/template"
)

var (
	//go:embed prompts/text.md
	textPrompt string

	//go:embed prompts/code.md
	codePrompt string

	//go:embed prompts/sheet.md
	sheetPrompt string

	//go:embed prompts/update.md
	updatePromptText string

	updatePromptTmpl = template.Must(template.New("update").Parse(updatePromptText))
)

var subjects = map[Kind]string{
	KindText:  "contents of the document",
	KindCode:  "code snippet",
	KindSheet: "spreadsheet",
}

// updatePrompt renders the system prompt for revising content of kind k.
func updatePrompt(k Kind, content string) string {
	var sb strings.Builder
	err := updatePromptTmpl.Execute(&sb, struct {
		Subject string
		Content string
	}{subjects[k], content})
	if err != nil {
		// The template only interpolates strings.
		panic(err)
	}
	return sb.String()
}

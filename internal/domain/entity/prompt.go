package entity

const (
	promptPreamble = "You are a Python programming assistant. Based on the following description, " +
		"generate the Python code. Ensure the code is clear, well-commented, and includes necessary imports.\n\n" +
		"Description: "
	promptTrailer = "\n\nGenerated Python Code:"
)

// BuildPrompt wraps a user description into the instruction template sent to the model.
// The description is inserted verbatim; validation is the caller's job.
func BuildPrompt(description string) string {
	return promptPreamble + description + promptTrailer
}

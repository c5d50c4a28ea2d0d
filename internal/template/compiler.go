// Package template compiles PromptForge prompt templates: extracting {{var}}
// placeholders, validating variable coverage, and substituting values into
// plain text or chat message sequences.
package template

import (
	"encoding/json"
	"regexp"
)

// variablePattern matches {{name}} placeholders where name is alphanumeric/underscore.
var variablePattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

const (
	// TypeText is a single-string prompt template.
	TypeText = "text"
	// TypeChat is an ordered sequence of role/content messages.
	TypeChat = "chat"
)

// Message is one entry of a chat-style prompt template.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DryRunResult is the outcome of compiling a template without persisting anything.
type DryRunResult struct {
	Type               string            `json:"type"`
	CompiledText       *string           `json:"compiled_text,omitempty"`
	CompiledMessages   []Message         `json:"compiled_messages,omitempty"`
	RequiredVariables  []string          `json:"required_variables"`
	ProvidedVariables  []string          `json:"provided_variables"`
	MissingVariables   []string          `json:"missing_variables"`
	IsValid            bool              `json:"is_valid"`
}

// Extract returns the deduplicated set of variable names referenced in template.
func Extract(tpl string) []string {
	matches := variablePattern.FindAllStringSubmatch(tpl, -1)

	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))

	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}

		seen[name] = true

		names = append(names, name)
	}

	return names
}

// ExtractFromMessages returns the deduplicated set of variable names referenced
// across all message contents.
func ExtractFromMessages(messages []Message) []string {
	seen := make(map[string]bool)
	names := make([]string, 0)

	for _, msg := range messages {
		for _, name := range Extract(msg.Content) {
			if seen[name] {
				continue
			}

			seen[name] = true

			names = append(names, name)
		}
	}

	return names
}

// Validate checks that every name in required is present in provided.
// Returns true and an empty (non-nil) slice when nothing is missing.
func Validate(required []string, provided map[string]any) (bool, []string) {
	missing := make([]string, 0)

	for _, name := range required {
		if _, ok := provided[name]; !ok {
			missing = append(missing, name)
		}
	}

	return len(missing) == 0, missing
}

// Compile substitutes every {{name}} occurrence in tpl with its string form from vars.
// Substitution is single-pass over the original template text: a substituted value
// that itself contains "{{...}}" is never re-expanded.
func Compile(tpl string, vars map[string]any) string {
	return variablePattern.ReplaceAllStringFunc(tpl, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]

		value, ok := vars[name]
		if !ok {
			return match
		}

		return stringify(value)
	})
}

// CompileMessages applies Compile to every message's content, preserving role and order.
func CompileMessages(messages []Message, vars map[string]any) []Message {
	compiled := make([]Message, len(messages))

	for i, msg := range messages {
		compiled[i] = Message{
			Role:    msg.Role,
			Content: Compile(msg.Content, vars),
		}
	}

	return compiled
}

// DryRun compiles a template (text or chat) without side effects, reporting
// required/provided/missing variables alongside the compiled form.
// The compiled field is absent whenever IsValid is false.
func DryRun(templateType string, templateText string, messages []Message, vars map[string]any) DryRunResult {
	if templateType == TypeChat {
		required := ExtractFromMessages(messages)
		isValid, missing := Validate(required, vars)

		result := DryRunResult{
			Type:               TypeChat,
			RequiredVariables:  required,
			ProvidedVariables:  providedNames(vars),
			MissingVariables:   missing,
			IsValid:            isValid,
		}

		if isValid {
			result.CompiledMessages = CompileMessages(messages, vars)
		}

		return result
	}

	required := Extract(templateText)
	isValid, missing := Validate(required, vars)

	result := DryRunResult{
		Type:               TypeText,
		RequiredVariables:  required,
		ProvidedVariables:  providedNames(vars),
		MissingVariables:   missing,
		IsValid:            isValid,
	}

	if isValid {
		compiled := Compile(templateText, vars)
		result.CompiledText = &compiled
	}

	return result
}

// providedNames returns the keys of vars, in map iteration order (unsorted), for reporting purposes.
func providedNames(vars map[string]any) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}

	return names
}

// stringify renders a substitution value as the literal text that replaces a
// placeholder. Scalars render via their natural string form; anything else
// renders as its canonical JSON encoding.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(data)
	}
}

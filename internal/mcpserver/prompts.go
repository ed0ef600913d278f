package mcpserver

import (
	"fmt"
	"strings"
)

// promptArgument describes one named argument a prompt accepts.
type promptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// promptDescriptor is one entry in prompts/list's result.
type promptDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []promptArgument `json:"arguments"`
}

// promptMessage is one entry in prompts/get's messages[] array, in the
// same {role, content} shape chat messages use.
type promptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// listPrompts enumerates the fixed prompt set from spec.md §4.9.
func listPrompts() []promptDescriptor {
	return []promptDescriptor{
		{
			Name:        "summarize_portfolio",
			Description: "Summarize the portfolio for a specific audience",
			Arguments: []promptArgument{
				{Name: "audience", Description: "recruiter | technical | general", Required: true},
			},
		},
		{
			Name:        "explain_project",
			Description: "Explain one project in more or less depth",
			Arguments: []promptArgument{
				{Name: "slug", Description: "project content slug", Required: true},
				{Name: "depth", Description: "overview | detailed | deep-dive", Required: true},
			},
		},
		{
			Name:        "compare_skills",
			Description: "Compare the portfolio owner's skills against a requirement list",
			Arguments: []promptArgument{
				{Name: "requiredSkills", Description: "comma-separated required skills", Required: true},
				{Name: "niceToHave", Description: "comma-separated nice-to-have skills", Required: false},
			},
		},
	}
}

// getPrompt renders name with args into a message sequence the client can
// feed straight to a model, using the shared tool set (via `get_content` /
// `list_content` / `search_content`) to ground the answer rather than
// embedding portfolio data directly in the prompt text.
func getPrompt(name string, args map[string]string) (*promptMessage, *Error) {
	switch name {
	case "summarize_portfolio":
		audience := args["audience"]
		if audience == "" {
			return nil, &Error{Code: CodeValidationFailed, Message: "audience is required"}
		}
		return &promptMessage{Role: "user", Content: fmt.Sprintf(
			"Use list_content and search_content to gather the portfolio's projects, "+
				"experience, education, and skills, then write a summary tailored to a "+
				"%s audience. Keep it factual and grounded only in tool results.", audience,
		)}, nil

	case "explain_project":
		slug := args["slug"]
		depth := args["depth"]
		if slug == "" || depth == "" {
			return nil, &Error{Code: CodeValidationFailed, Message: "slug and depth are required"}
		}
		return &promptMessage{Role: "user", Content: fmt.Sprintf(
			"Call get_content with type=project and slug=%q, then explain the project "+
				"at %q depth. Ground every claim in the fetched content; do not invent details.",
			slug, depth,
		)}, nil

	case "compare_skills":
		required := args["requiredSkills"]
		if required == "" {
			return nil, &Error{Code: CodeValidationFailed, Message: "requiredSkills is required"}
		}
		niceToHave := args["niceToHave"]
		prompt := fmt.Sprintf(
			"Call list_content with type=skill, then compare the portfolio owner's skills "+
				"against this required list: %s.", strings.TrimSpace(required),
		)
		if niceToHave != "" {
			prompt += fmt.Sprintf(" Also note overlap with these nice-to-have skills: %s.", strings.TrimSpace(niceToHave))
		}
		return &promptMessage{Role: "user", Content: prompt}, nil

	default:
		return nil, &Error{Code: CodeResourceNotFound, Message: "unknown prompt: " + name}
	}
}

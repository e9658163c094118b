// Package tools defines the local capabilities the remote assistant may
// request, a registry for them, and the dispatcher the conversation state
// machine calls to resolve tool calls.
package tools

import "context"

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema defines the JSON schema for tool arguments, as declared to the
// remote assistant.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution. The returned string is
// fed back to the remote assistant verbatim; tool-level failures should be
// reported inside the string so the conversation can self-correct.
type ExecuteFunc func(ctx context.Context, args map[string]any) string

// Tool defines a named local capability.
type Tool struct {
	// Name is the unique identifier the remote assistant calls the tool by.
	Name string

	// Description explains what the tool does; sent to the remote assistant.
	Description string

	// Schema declares the expected arguments.
	Schema Schema

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// DeclarationParameters is the parameter block of a wire declaration.
type DeclarationParameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// DeclarationFunction is the function block of a wire declaration.
type DeclarationFunction struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Parameters  DeclarationParameters `json:"parameters"`
}

// Declaration is the OpenAI-style function declaration shape the remote
// assistant consumes.
type Declaration struct {
	Type     string              `json:"type"`
	Function DeclarationFunction `json:"function"`
}

// Declare converts a tool to its wire declaration.
func (t *Tool) Declare() Declaration {
	props := t.Schema.Properties
	if props == nil {
		props = map[string]Property{}
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return Declaration{
		Type: "function",
		Function: DeclarationFunction{
			Name:        t.Name,
			Description: t.Description,
			Parameters: DeclarationParameters{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}

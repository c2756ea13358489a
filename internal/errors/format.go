package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display: the message, then
// the suggestion when one exists, then the code for reference.
func FormatForCLI(err error, debug bool) string {
	if err == nil {
		return ""
	}

	ke, ok := err.(*KdexError)
	if !ok {
		return "Error: " + err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(ke.Message)

	if ke.Suggestion != "" {
		sb.WriteString("\n  hint: ")
		sb.WriteString(ke.Suggestion)
	}

	if debug {
		if ke.Cause != nil {
			sb.WriteString(fmt.Sprintf("\n  cause: %v", ke.Cause))
		}
		for k, v := range ke.Details {
			sb.WriteString(fmt.Sprintf("\n  %s: %s", k, v))
		}
	}

	sb.WriteString(fmt.Sprintf("\n  [%s]", ke.Code))
	return sb.String()
}

// FormatForJSON renders an error as a JSON object for --json output.
func FormatForJSON(err error) string {
	if err == nil {
		return "{}"
	}

	type jsonError struct {
		Error      string            `json:"error"`
		Code       string            `json:"code,omitempty"`
		Suggestion string            `json:"suggestion,omitempty"`
		Details    map[string]string `json:"details,omitempty"`
	}

	je := jsonError{Error: err.Error()}
	if ke, ok := err.(*KdexError); ok {
		je.Error = ke.Message
		je.Code = string(ke.Code)
		je.Suggestion = ke.Suggestion
		je.Details = ke.Details
	}

	data, merr := json.Marshal(je)
	if merr != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// Package conversation runs one user turn against a language model and
// applies the action returned by each tool the model calls.
package conversation

import "github.com/harunnryd/pluma/pkg/plugin"

// Outcome is what the loop does with a tool's ActionResponse.
type Outcome int

const (
	// OutcomeRequery feeds the tool result back to the model.
	OutcomeRequery Outcome = iota + 1
	// OutcomeSpeak delivers the tool result to the user as the reply.
	OutcomeSpeak
	// OutcomeApologize replies with a short apology.
	OutcomeApologize
	// OutcomeSilent ends the turn with nothing to say.
	OutcomeSilent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRequery:
		return "requery"
	case OutcomeSpeak:
		return "speak"
	case OutcomeApologize:
		return "apologize"
	case OutcomeSilent:
		return "silent"
	}
	return "unknown"
}

// Interpret maps an action onto an Outcome. Anything unrecognized is
// treated as a failure.
func Interpret(resp plugin.ActionResponse) Outcome {
	switch resp.Action {
	case plugin.ActionReqLLM:
		return OutcomeRequery
	case plugin.ActionRespond:
		return OutcomeSpeak
	case plugin.ActionNone:
		return OutcomeSilent
	}
	return OutcomeApologize
}

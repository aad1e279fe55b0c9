package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/todomesh/core"
)

// Call builds a FunctionCall with JSON encoded args. Passing nil args yields
// an empty argument string.
func Call(id, name string, args map[string]any) core.FunctionCall {
	fc := core.FunctionCall{ID: id, Name: name}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal args: %v", err))
		}
		fc.Arguments = string(b)
	}
	return fc
}

// ToolCalls builds an assistant turn requesting the given calls in order.
func ToolCalls(calls ...core.FunctionCall) core.Content {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return core.Content{Role: core.RoleAssistant, Parts: parts}
}

// Answer builds a plain assistant text turn.
func Answer(text string) core.Content {
	return core.NewTextContent(core.RoleAssistant, text)
}

// ToolResults extracts the tool turn payloads of turns in order.
func ToolResults(turns []core.Content) []string {
	var out []string
	for _, t := range turns {
		if t.Role != core.RoleTool {
			continue
		}
		for _, r := range t.FunctionResponses() {
			out = append(out, r.Response)
		}
	}
	return out
}

package llm

import (
	"strings"

	"github.com/charmbracelet/log"
)

// NormalizeStrictAdjacency rewrites a message sequence so that every tool
// result immediately follows the assistant turn that invoked it. Providers
// with strict causality rules (Azure, Anthropic) reject anything else.
//
// The pass indexes tool results by tool call id, drops the raw tool-role
// messages, collapses duplicate assistant turns, then splices each result
// back in directly after its call. A tool call with no indexed result is
// logged as a gap and never fabricated. A result whose call was pruned from
// the visible window is dropped: sending it would fail the whole request.
//
// The output may legitimately be shorter than the input.
func NormalizeStrictAdjacency(messages []Message) []Message {
	results := make(map[string]ContentBlock)
	for _, msg := range messages {
		for _, block := range msg.ToolResults() {
			if _, seen := results[block.ToolUseID]; !seen {
				results[block.ToolUseID] = block
			}
		}
	}

	out := make([]Message, 0, len(messages))
	for i := 0; i < len(messages); i++ {
		msg := messages[i]

		// Raw tool messages are re-inserted next to their calls below.
		if len(msg.ToolResults()) > 0 {
			continue
		}

		if dropDuplicateAssistant(messages, i) {
			continue
		}

		out = append(out, msg)

		if msg.Role != RoleAssistant {
			continue
		}
		for _, call := range msg.ToolUses() {
			block, ok := results[call.ID]
			if !ok {
				log.Warn("tool call has no result in visible window",
					"tool_call_id", call.ID,
					"tool", call.Name)
				continue
			}
			delete(results, call.ID)
			out = append(out, Message{Role: RoleTool, Content: []ContentBlock{block}})
		}
	}

	for id := range results {
		// Orphan: its call was pruned from the window.
		log.Debug("dropping orphan tool result", "tool_call_id", id)
	}

	return out
}

// dropDuplicateAssistant reports whether messages[i] is the text-only half
// of a logical assistant turn that also produced a tool-call entry. When a
// single turn lands in history as two entries, only the tool-call version
// is sent — unless the text replies to an intervention notice, in which
// case both are kept for learning continuity.
func dropDuplicateAssistant(messages []Message, i int) bool {
	msg := messages[i]
	if msg.Role != RoleAssistant || msg.HasToolUse() {
		return false
	}
	next, ok := nextNonResult(messages, i)
	if !ok {
		return false
	}
	if next.Role != RoleAssistant || !next.HasToolUse() {
		return false
	}
	if i > 0 && mentionsIntervention(messages[i-1]) {
		return false
	}
	return true
}

func nextNonResult(messages []Message, i int) (Message, bool) {
	for j := i + 1; j < len(messages); j++ {
		if len(messages[j].ToolResults()) > 0 {
			continue
		}
		return messages[j], true
	}
	return Message{}, false
}

// mentionsIntervention is the observed substring heuristic for flagged
// intervention notices. TODO: replace with an explicit metadata flag once
// the runtime tags interventions.
func mentionsIntervention(msg Message) bool {
	return strings.Contains(strings.ToLower(msg.Text()), "intervention")
}

package llm

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// StructureContext renders an AgentContext as an ordered canonical message
// sequence:
//
//  1. one system message: the system prompt plus an identity block
//  2. the dialogue turns of the history, filtered by context layer
//  3. the current task as a trailing user turn
//  4. optionally, a synthesized recent-actions user turn
//
// The layer filter is what keeps framework content from leaking into every
// turn: entries tagged system/identity/task/action are already folded into
// the system message and are excluded; conversation and tool-result entries
// (and untagged non-system entries) are genuine dialogue and are kept.
func StructureContext(agentCtx *AgentContext, includeActions bool) []Message {
	messages := []Message{SystemMessage(buildSystemPrompt(agentCtx))}

	for _, entry := range agentCtx.ConversationHistory {
		if !includeInDialogue(entry) {
			continue
		}
		messages = append(messages, fromHistory(entry))
	}

	if agentCtx.CurrentTask != nil && strings.TrimSpace(agentCtx.CurrentTask.Description) != "" {
		// Appended after existing history so a task issued mid-conversation
		// keeps chronological order.
		messages = append(messages, UserMessage("Current task: "+agentCtx.CurrentTask.Description))
	}

	if includeActions && len(agentCtx.RecentActions) > 0 {
		messages = append(messages, UserMessage(summarizeActions(agentCtx.RecentActions)))
	}

	log.Debug("structured agent context",
		"history", len(agentCtx.ConversationHistory),
		"rendered", len(messages),
		"tools", len(agentCtx.AvailableTools))
	return messages
}

func buildSystemPrompt(agentCtx *AgentContext) string {
	var b strings.Builder
	b.WriteString(agentCtx.SystemPrompt)

	cfg := agentCtx.AgentConfig
	if cfg.ID != "" || cfg.Purpose != "" || len(cfg.Capabilities) > 0 {
		b.WriteString("\n\n## Identity\n")
		if cfg.Purpose != "" {
			fmt.Fprintf(&b, "Purpose: %s\n", cfg.Purpose)
		}
		if cfg.ID != "" {
			fmt.Fprintf(&b, "Agent ID: %s\n", cfg.ID)
		}
		if len(cfg.Capabilities) > 0 {
			fmt.Fprintf(&b, "Capabilities: %s\n", strings.Join(cfg.Capabilities, ", "))
		}
	}
	return b.String()
}

// includeInDialogue applies the context-layer filter.
func includeInDialogue(entry ConversationMessage) bool {
	switch entry.Metadata.ContextLayer {
	case LayerConversation, LayerToolResult:
		return true
	case LayerSystem, LayerIdentity, LayerTask, LayerAction:
		return false
	}
	if entry.Role == RoleTool {
		return true
	}
	// Untagged entries predate layer tagging; keep everything except
	// system turns, which the system message already covers.
	return entry.Role != RoleSystem
}

// fromHistory converts one history entry into a canonical message. Tool
// calls recorded in metadata become ToolUse blocks; tool-role entries
// become ToolResult blocks keyed by their tool call id.
func fromHistory(entry ConversationMessage) Message {
	if entry.Role == RoleTool || entry.Metadata.ContextLayer == LayerToolResult {
		return ToolResultMessage(entry.Metadata.ToolCallID, entry.Content)
	}

	msg := Message{Role: entry.Role}
	if entry.Content != "" {
		msg.Content = append(msg.Content, TextBlock(entry.Content))
	}
	for _, call := range entry.Metadata.ToolCalls {
		msg.Content = append(msg.Content, ToolUseBlock(call.ID, call.Name, call.Input))
	}
	if len(msg.Content) == 0 {
		// Text is never emitted as null at the wire boundary.
		msg.Content = []ContentBlock{TextBlock("")}
	}
	return msg
}

func summarizeActions(actions []Action) string {
	var b strings.Builder
	b.WriteString("Recent actions:\n")
	for _, a := range actions {
		b.WriteString("- ")
		b.WriteString(a.Name)
		if a.Result != "" {
			b.WriteString(": ")
			b.WriteString(a.Result)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

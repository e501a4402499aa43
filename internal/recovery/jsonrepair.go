package recovery

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
)

// ParseWithRecovery decodes raw into v. A strict parse is tried first; on
// failure a fixed chain of repair stages runs, re-parsing after each:
//
//  1. close an unterminated string
//  2. strip a trailing comma
//  3. append missing closing brackets and braces in stack order
//  4. drop a dangling, incomplete trailing member
//
// Repair only completes a truncated structure, never invents field values.
// The returned flag reports whether a repair stage was needed. On terminal
// failure the original strict-parse error is returned; callers keep the raw
// bytes for diagnostics.
func ParseWithRecovery(raw []byte, v any) (recovered bool, err error) {
	strictErr := sonic.Unmarshal(raw, v)
	if strictErr == nil {
		return false, nil
	}
	if gjson.ValidBytes(raw) {
		// Well-formed JSON that still fails to decode is a shape mismatch,
		// not truncation; repair cannot help.
		return false, strictErr
	}

	body := strings.TrimSpace(string(raw))
	if body == "" {
		return false, fmt.Errorf("empty response body")
	}

	stages := []func(string) string{
		closeUnterminatedString,
		stripTrailingComma,
		closeOpenBrackets,
		dropDanglingMember,
	}

	for i, stage := range stages {
		body = stage(body)
		if !gjson.Valid(body) {
			continue
		}
		if err := sonic.UnmarshalString(body, v); err == nil {
			log.Debug("recovered malformed JSON body", "stage", i+1, "bytes", len(raw))
			return true, nil
		}
	}

	return false, strictErr
}

// scanState is the result of a single pass over a JSON prefix: the stack of
// unclosed containers and whether the prefix ends inside a string literal.
type scanState struct {
	stack    []byte
	inString bool
}

func scan(s string) scanState {
	var st scanState
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{', '[':
			st.stack = append(st.stack, c)
		case '}':
			if n := len(st.stack); n > 0 && st.stack[n-1] == '{' {
				st.stack = st.stack[:n-1]
			}
		case ']':
			if n := len(st.stack); n > 0 && st.stack[n-1] == '[' {
				st.stack = st.stack[:n-1]
			}
		}
	}
	return st
}

func closeUnterminatedString(s string) string {
	if scan(s).inString {
		return s + `"`
	}
	return s
}

func stripTrailingComma(s string) string {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		return strings.TrimRight(trimmed[:len(trimmed)-1], " \t\r\n")
	}
	return trimmed
}

func closeOpenBrackets(s string) string {
	st := scan(s)
	if st.inString {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	for i := len(st.stack) - 1; i >= 0; i-- {
		switch st.stack[i] {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}
	return b.String()
}

// dropDanglingMember removes an incomplete trailing member such as a key
// with no value, then re-closes the structure. It backtracks to the last
// comma or container opening outside any string.
func dropDanglingMember(s string) string {
	st := scan(s)
	if st.inString {
		return s
	}

	cut := -1
	escaped := false
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',', '{', '[':
			cut = i
		}
	}
	if cut < 0 {
		return s
	}

	head := s[:cut]
	if s[cut] == '{' || s[cut] == '[' {
		head = s[:cut+1]
	}
	return closeOpenBrackets(head)
}

// Package extraction derives candidate memories from conversation turns.
//
// Each memory subtype (profile, facts, commitments, style) has its own
// extraction prompt; an LLM reads the transcript and returns short candidate
// strings that the reconciliation engine then merges into the store.
package extraction

import (
	"fmt"
	"strings"
	"time"
)

// Subtype classifies what kind of memory an extraction pass produces.
type Subtype string

const (
	// SubtypeProfile covers stable identity facts: name, age, location.
	SubtypeProfile Subtype = "profile"

	// SubtypeFacts covers memorable events and emotional moments.
	SubtypeFacts Subtype = "facts"

	// SubtypeCommitments covers tasks and plans the user committed to.
	SubtypeCommitments Subtype = "commitments"

	// SubtypeStyle covers communication style preferences.
	SubtypeStyle Subtype = "style"

	// SubtypeSummary holds session summaries. It is written directly,
	// never produced by an extraction pass.
	SubtypeSummary Subtype = "summary"
)

// Subtypes lists every valid memory subtype.
var Subtypes = []Subtype{SubtypeProfile, SubtypeFacts, SubtypeCommitments, SubtypeStyle, SubtypeSummary}

// Valid reports whether s is a known subtype.
func (s Subtype) Valid() bool {
	for _, v := range Subtypes {
		if s == v {
			return true
		}
	}
	return false
}

// Turn is one message of a conversation.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Name    string    `json:"name,omitempty"`
	Time    time.Time `json:"time,omitempty"`
}

// DisplayRole maps chat roles to the labels the prompts use: the human is
// the Player and the assistant character is the NPC.
func DisplayRole(role string) string {
	switch strings.ToLower(role) {
	case "user":
		return "Player"
	case "assistant":
		return "NPC"
	default:
		return role
	}
}

// BuildTranscript renders turns in the "[date] role: content" form the
// extraction prompts expect. Turns without a timestamp omit the bracket.
func BuildTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		if !t.Time.IsZero() {
			fmt.Fprintf(&b, "[%s] ", t.Time.UTC().Format("2006-01-02"))
		}
		fmt.Fprintf(&b, "%s: %s", DisplayRole(t.Role), t.Content)
	}
	return b.String()
}

// normalizeRoles rewrites raw chat-role vocabulary that leaks into
// extracted memories into the Player/NPC labels used everywhere else.
func normalizeRoles(s string) string {
	s = strings.ReplaceAll(s, "user", "Player")
	s = strings.ReplaceAll(s, "assistant", "NPC")
	return s
}

// StripCodeFence removes a surrounding markdown code fence from an LLM
// response, tolerating a language tag after the opening backticks.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		// Drop a language tag like "json" on the opening fence line.
		if first != "" && !strings.ContainsAny(first, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

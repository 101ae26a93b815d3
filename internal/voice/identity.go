package voice

import "strings"

// AgentMatcher decides whether a transport participant identity belongs to
// the agent. Attribution is a heuristic over the identity string — the
// transport exposes no authoritative role field — so it stays a pluggable
// predicate that a future role field can replace.
type AgentMatcher func(identity string) bool

// NewAgentMatcher builds a matcher that treats an identity as the agent
// when it starts with any of the given prefixes or contains the marker
// substring.
func NewAgentMatcher(prefixes []string, marker string) AgentMatcher {
	return func(identity string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(identity, p) {
				return true
			}
		}
		return marker != "" && strings.Contains(identity, marker)
	}
}

// DefaultAgentMatcher recognizes the identities LiveKit agent workers use
// in practice.
var DefaultAgentMatcher = NewAgentMatcher([]string{"agent", "assistant", "livekit"}, "agent")

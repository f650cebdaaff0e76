package agent

import (
	"regexp"
	"strings"
)

const (
	nudgeLimit           = 2
	nudgeShortTextLimit  = 60
	nudgeLongTextLimit   = 800
	nudgeEarlyIterations = 2
	nudgeText            = "Do not describe what you are about to do. Use the available tools and act now."
)

var commitmentPattern = regexp.MustCompile(`(?i)\b(i (will|shall|am going to|can now)|i'll|let me|one moment|give me a (moment|minute|second)|shortly|hang on)\b`)

// maybeNudge pushes a synthetic follow-up when the model stops with text
// that reads like a plan rather than an answer. Capped at nudgeLimit per
// turn so an evasive model cannot burn the whole iteration budget here.
func (l *Loop) maybeNudge(r *runner, turn *turnState) bool {
	if turn.nudges >= nudgeLimit {
		return false
	}
	available := l.registry.Len() > 0 && !r.toolsUnsupported
	if !shouldNudge(turn.lastText, turn.iterations, turn.toolUsed, available) {
		return false
	}
	turn.nudges++
	r.history = append(r.history, userMessage(r.session.ID, nudgeText))
	return true
}

func shouldNudge(text string, iteration int, toolUsed, toolsAvailable bool) bool {
	if toolUsed || !toolsAvailable {
		return false
	}
	t := strings.TrimSpace(text)
	if commitmentPattern.MatchString(t) {
		return true
	}
	if iteration <= nudgeEarlyIterations && len(t) < nudgeShortTextLimit {
		return true
	}
	return len(t) >= nudgeLongTextLimit
}

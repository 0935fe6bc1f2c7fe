package orchestrator

import (
	"fmt"
	"strings"
)

// DecisionPhase is the phase name passed to the provider when a participant
// decides whether to invite someone to a private chat.
const DecisionPhase = "PRIVATE_CHAT_DECISION"

// NoInvitation is the reply a provider gives to decline inviting anyone.
const NoInvitation = "NONE"

func statementHint(round int) string {
	return fmt.Sprintf("Round %d statement: introduce what you know and what you suspect.", round)
}

func discussionHint(round int) string {
	return fmt.Sprintf("Round %d open discussion: respond to the statements so far.", round)
}

func decisionHint(candidates []string, remaining int) string {
	return fmt.Sprintf(
		"You may invite one participant to a private chat (%d invitations left). Reply with one of [%s], or %s.",
		remaining, strings.Join(candidates, ", "), NoInvitation,
	)
}

func privateChatHint(partnerName string) string {
	return fmt.Sprintf("Private chat with %s: say what you would not say in public.", partnerName)
}

func answerHint(round int) string {
	return fmt.Sprintf("Round %d answer: give your final answer to the moderator.", round)
}

// parseInvitee returns the first participant id other than sender that
// appears in text as a whole word. Where ids overlap the longest match wins,
// so "p10" is never read as "p1", and an id inside a longer word ("C" in
// "Considering") does not count. It returns "" when no other participant is
// named.
func parseInvitee(text, sender string, participantIDs []string) string {
	for i := 0; i < len(text); {
		if i > 0 && isWordByte(text[i-1]) {
			i++
			continue
		}
		match := ""
		for _, id := range participantIDs {
			end := i + len(id)
			if id == "" || len(id) <= len(match) || !strings.HasPrefix(text[i:], id) {
				continue
			}
			if end < len(text) && isWordByte(text[end]) {
				continue
			}
			match = id
		}
		switch match {
		case "":
			i++
		case sender:
			i += len(match)
		default:
			return match
		}
	}
	return ""
}

// isWordByte reports whether b can continue a word. Bytes of multi-byte
// runes count as word bytes.
func isWordByte(b byte) bool {
	return b == '_' || b >= 0x80 ||
		('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func others(participantIDs []string, self string) []string {
	out := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

package session

import (
	"maps"
	"slices"
	"time"
)

// Summary is the finalized view of a session handed to completion callbacks.
type Summary struct {
	GameID         string            `json:"game_id"`
	ModeratorID    string            `json:"moderator_id"`
	ParticipantIDs []string          `json:"participant_ids"`
	Answers        map[string]string `json:"answers"`
	Rounds         int               `json:"rounds"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time,omitempty"`
	Completed      bool              `json:"completed"`
}

// Duration returns the time between start and end, or since start for a
// session that has not finished.
func (s Summary) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Missing returns the participants that have not submitted an answer, in
// participant order.
func (s Summary) Missing() []string {
	var out []string
	for _, id := range s.ParticipantIDs {
		if _, ok := s.Answers[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// SortedAnswerIDs returns the IDs of participants with answers, sorted.
func (s Summary) SortedAnswerIDs() []string {
	return slices.Sorted(maps.Keys(s.Answers))
}

package engine

import "time"

type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndHostLeft  EndReason = "host_left"
	EndAbandoned EndReason = "abandoned"
)

type ResultParticipant struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Score    *float64 `json:"score,omitempty"`
}

// Results is built once, at finalize, and handed to the registry.
type Results struct {
	ArenaID      string              `json:"arenaId"`
	EndReason    EndReason           `json:"endReason"`
	Duration     int                 `json:"duration"` // seconds
	Participants []ResultParticipant `json:"participants"`
	FinalData    Data                `json:"finalData,omitempty"`
}

func BuildResults(s Session, reason EndReason, participants []ResultParticipant, now time.Time) (Results, error) {
	if s.Config == nil {
		return Results{}, ErrNotInitialized
	}
	if participants == nil {
		participants = []ResultParticipant{}
	}
	return Results{
		ArenaID:      s.Config.ArenaID,
		EndReason:    reason,
		Duration:     Elapsed(s, now),
		Participants: participants,
		FinalData:    s.Data,
	}, nil
}

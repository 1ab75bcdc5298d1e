package dashboard

import (
	"encoding/json"
	"time"

	"github.com/epicsync/epicsync/internal/sync"
)

// PassSummary is the JSON shape served by /api/status and broadcast on
// pass completion.
type PassSummary struct {
	CompletedAt   time.Time     `json:"completed_at"`
	Duration      string        `json:"duration"`
	Created       int           `json:"created"`
	Updated       int           `json:"updated"`
	UpToDate      int           `json:"up_to_date"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	ParseFailures []string      `json:"parse_failures,omitempty"`
	Epics         []epicPayload `json:"epics,omitempty"`
}

type passStartedPayload struct {
	Files int `json:"files"`
}

type epicPayload struct {
	LocalID string `json:"local_id"`
	Key     string `json:"key,omitempty"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Notifier bridges sync pass events onto the dashboard's broadcast
// channel and keeps the snapshot served by /api/status current.
type Notifier struct {
	server *Server
}

// NewNotifier wraps a server in the notifier interface the sync engine
// accepts.
func NewNotifier(server *Server) *Notifier {
	return &Notifier{server: server}
}

// PassStarted broadcasts the beginning of a pass.
func (n *Notifier) PassStarted(files int) {
	n.send(MessageTypePassStarted, passStartedPayload{Files: files})
}

// EpicSynced broadcasts the outcome of one epic.
func (n *Notifier) EpicSynced(outcome sync.EpicOutcome) {
	n.send(MessageTypeEpicSynced, toEpicPayload(outcome))
}

// PassCompleted broadcasts the pass summary and updates the snapshot.
func (n *Notifier) PassCompleted(result *sync.Result) {
	summary := toSummary(result)
	n.server.setSnapshot(summary)
	n.send(MessageTypePassCompleted, summary)
}

func (n *Notifier) send(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.server.logger.Error().Err(err).Str("type", string(typ)).Msg("marshaling event payload")
		return
	}
	n.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func toEpicPayload(o sync.EpicOutcome) epicPayload {
	p := epicPayload{
		LocalID: o.LocalID,
		Key:     o.Key,
		Outcome: o.Outcome.String(),
	}
	if o.Err != nil {
		p.Error = o.Err.Error()
	}
	return p
}

func toSummary(r *sync.Result) *PassSummary {
	summary := &PassSummary{
		CompletedAt:   time.Now(),
		Duration:      r.Duration.String(),
		Created:       r.Created,
		Updated:       r.Updated,
		UpToDate:      r.UpToDate,
		Skipped:       r.Skipped,
		Failed:        r.Failed,
		ParseFailures: r.ParseFailures,
	}
	for _, o := range r.Outcomes {
		summary.Epics = append(summary.Epics, toEpicPayload(o))
	}
	return summary
}

package broadcast

import (
	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/orchestrator"
	"github.com/roundtable-games/roundtable/internal/util"
)

// maxLoggedText bounds the text attribute of each log record.
const maxLoggedText = 500

// LogSink writes every message to a logger at info level.
type LogSink struct {
	logger *logging.Logger
}

var _ orchestrator.MessageSink = (*LogSink)(nil)

// NewLogSink creates a sink over logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LogSink{logger: logger.WithPhase("messages")}
}

// Broadcast logs a table message.
func (s *LogSink) Broadcast(gameID, text string, recipients []string) {
	s.logger.Info("broadcast", "game_id", gameID, "recipients", len(recipients), "text", logText(text))
}

// SendDirect logs a direct message.
func (s *LogSink) SendDirect(gameID, sender, receiver, text string) {
	s.logger.Info("direct message", "game_id", gameID, "sender", sender, "receiver", receiver, "text", logText(text))
}

func logText(s string) string {
	return util.Truncate(util.OneLine(s), maxLoggedText)
}

// Fanout delivers every message to each of its sinks in order.
type Fanout []orchestrator.MessageSink

// Broadcast forwards to every sink.
func (f Fanout) Broadcast(gameID, text string, recipients []string) {
	for _, s := range f {
		s.Broadcast(gameID, text, recipients)
	}
}

// SendDirect forwards to every sink.
func (f Fanout) SendDirect(gameID, sender, receiver, text string) {
	for _, s := range f {
		s.SendDirect(gameID, sender, receiver, text)
	}
}

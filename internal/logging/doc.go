// Package logging provides structured logging for roundtable games.
//
// The package wraps Go's log/slog with a JSON handler and adds context
// propagation so that every entry emitted while a game is running carries
// the game ID, the participant it concerns, and the phase or component that
// produced it.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying handler and file.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/roundtable", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	gameLogger := logger.WithGame("game-42").WithPhase("STATEMENT")
//	gameLogger.Info("turn started", "speaker", "alice")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"turn started","game_id":"game-42","phase":"STATEMENT","speaker":"alice"}
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewLoggerWithWriter] with a
// bytes.Buffer to assert on emitted entries.
//
// # Configuration
//
//	logging:
//	  level: info
//	  dir: ""        # empty logs to stderr
package logging

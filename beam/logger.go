package beam

import (
	"fmt"
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// Logger is used by the runtime and the behaviours built on it. Replace it
// before spawning processes; the level is controlled by [SetDebugLog].
var Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})).
	With("component", "beam")

func DebugLogEnabled() bool {
	return logLevel.Level() <= slog.LevelDebug
}

func SetDebugLog(v bool) {
	if v {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
}

func DebugPrintln(v ...any) {
	if DebugLogEnabled() {
		Logger.Debug(fmt.Sprint(v...))
	}
}

func DebugPrintf(format string, v ...any) {
	if DebugLogEnabled() {
		Logger.Debug(fmt.Sprintf(format, v...))
	}
}

package util

import (
	"encoding/hex"
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05.000"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging backed by pterm's default logger (stderr).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// LogFrame dumps a raw frame at debug level. The hex encoding is skipped
// unless debug output is enabled.
func LogFrame(dir string, frame []byte) {
	if pterm.DefaultLogger.Level > pterm.LogLevelDebug {
		return
	}
	pterm.DefaultLogger.Debug(fmt.Sprintf("%s %s", dir, hex.EncodeToString(frame)))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

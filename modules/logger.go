package modules

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
)

// NewLogger builds the component logger from the logLevel setting.
// "silent" disables output entirely.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if level == "silent" {
		lvl = zerolog.Disabled
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(lvl).
		With().Timestamp().Logger()
}

// LogMemUsage dumps heap stats; handy after big queue drains.
func LogMemUsage(log zerolog.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Debug().
		Float64("heapAllocMB", float64(m.HeapAlloc)/1024/1024).
		Float64("sysMB", float64(m.Sys)/1024/1024).
		Uint32("numGC", m.NumGC).
		Msg("💾 mem usage")
}

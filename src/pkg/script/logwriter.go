package script

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// logWriter forwards interpreter output to the logger, one entry per write.
type logWriter struct {
	entry *log.Entry
	level log.Level
}

func (w logWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimRight(string(p), "\n"); msg != "" {
		w.entry.Log(w.level, msg)
	}
	return len(p), nil
}

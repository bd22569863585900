// Package logging sets up level-filtered stdlib loggers.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/logutils"
)

// Levels are the recognized message tags, lowest first.
var Levels = []logutils.LogLevel{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

var filter = &logutils.LevelFilter{
	Levels:   Levels,
	MinLevel: logutils.LogLevel("INFO"),
	Writer:   os.Stdout,
}

// Setup routes the standard logger through the level filter.
// Messages carry their level as a "[LEVEL]" tag.
func Setup(level string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	filter = &logutils.LevelFilter{
		Levels:   Levels,
		MinLevel: normalize(level),
		Writer:   w,
	}
	log.SetOutput(filter)
}

// New returns a logger for one component, sharing the level filter.
func New(component string) *log.Logger {
	return log.New(filter, "portal "+component+" ", log.LstdFlags)
}

func normalize(level string) logutils.LogLevel {
	l := logutils.LogLevel(strings.ToUpper(strings.TrimSpace(level)))
	for _, known := range Levels {
		if known == l {
			return l
		}
	}
	return logutils.LogLevel("INFO")
}

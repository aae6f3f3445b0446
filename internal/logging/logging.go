package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger at the named level. "off" and "none" discard every
// entry; unknown levels log at info.
func New(levelName string) *logrus.Logger {
	logger := logrus.New()

	if levelName == "off" || levelName == "none" {
		logger.SetOutput(io.Discard)
	} else {
		level, err := logrus.ParseLevel(levelName)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
		logger.SetOutput(os.Stderr)
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return logger
}

package logutils

import "github.com/sirupsen/logrus"

var log = logrus.StandardLogger()

// SetLoggerLevel sets the level of the standard logger, falling back to
// info for names logrus does not know.
func SetLoggerLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	if lvl >= logrus.DebugLevel {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

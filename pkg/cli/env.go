package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger().WithField("package", "cli")

// LoadDotEnv loads the given env files (".env" when none is given) into the
// process environment. Missing files are ignored, variables that are already
// set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		log.Debugf("loaded environment from %s", p)
	}
	return nil
}

package archive

import "codeberg.org/farowl/co2mond/internal/errors"

const defaultDirPerm = 0o755

// Config holds the archive settings.
type Config struct {
	Enabled bool
	DBPath  string
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}

	return nil
}

package config

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// checkUnknownKeys inspects TOML decode metadata for keys that were present
// in the file but never landed on the Config struct, and reports them as a
// fatal error rather than silently ignoring a typo.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, fmt.Errorf("unknown config key %q", key.String()))
	}

	return errors.Join(errs...)
}

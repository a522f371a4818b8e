package config

import (
	"bytes"
	"errors"
	"fmt"
)

// Validate reports every setting the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if len(c.AccessSecret) == 0 {
		errs = append(errs, missing("JWT_ACCESS_SECRET"))
	}
	if len(c.RefreshSecret) == 0 {
		errs = append(errs, missing("JWT_REFRESH_SECRET"))
	}
	if len(c.AccessSecret) > 0 && bytes.Equal(c.AccessSecret, c.RefreshSecret) {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, missing("DATABASE_URL"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}

func missing(env string) error {
	return fmt.Errorf("missing required env %s", env)
}

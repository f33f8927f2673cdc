package config

import (
	"errors"
)

// Sentinel error kinds for this package, for errors.Is at call sites.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

package config

import "os"

const (
	// Key is the environment variable naming which settings profile to load.
	Key = "APP_ENV"
	// DefaultEnv is used when Key is unset.
	DefaultEnv = "dev001"
)

// GetAppEnv returns the active settings profile name.
func GetAppEnv() (string, error) {
	env := os.Getenv(Key)
	if env == "" {
		return DefaultEnv, nil
	}
	return env, nil
}

package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotenv reads a .env file and sets environment variables that are not already defined.
// Missing file is silently ignored. Existing env vars are never overridden.
func LoadDotenv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ReloadDotenv re-reads a .env file, overriding variables it defines.
func ReloadDotenv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Overload(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

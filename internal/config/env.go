package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv overlays a .env file onto the process environment. Existing
// variables win, and a missing file is fine.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

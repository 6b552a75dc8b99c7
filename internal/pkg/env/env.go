// Package env reads process settings from a .env file with the OS
// environment as fallback. Services read them through config.Load.
package env

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds the values read from the .env file. Tests replace it directly.
var Env map[string]string

// GetEnv prefers the .env value, then the OS environment, then def. An empty
// OS variable counts as unset.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env found. Outside of dev a missing file is
// fine because containers receive their configuration via the environment.
func SetupEnvFile() {
	envFiles := []string{
		".env",
		"../../.env",    // started from cmd/budgetfox or cmd/migrate
		"../../../.env", // package tests
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	Env = map[string]string{}
	if IsDev() {
		panic("APP_ENV=dev but no .env file was found next to the binary or the repo root")
	}
}

// IsDev reports APP_ENV=dev before config.Load has run.
func IsDev() bool {
	return strings.EqualFold(GetEnv("APP_ENV", "prod"), "dev")
}

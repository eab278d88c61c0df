package os

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// GetEnvVar retrieves the value of an environment variable having the specified
// name. If that value is the empty string, a specified default is returned
// instead.
func GetEnvVar(name, defaultValue string) string {
	val := os.Getenv(name)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetRequiredEnvVar retrieves the value of an environment variable having the
// specified name. If that value is the empty string, an error is returned.
func GetRequiredEnvVar(name string) (string, error) {
	val := os.Getenv(name)
	if val == "" {
		return "", errors.Errorf(
			"value not found for required environment variable %s",
			name,
		)
	}
	return val, nil
}

// GetEnvVarOrFile retrieves the value of the environment variable having the
// specified name. If that is empty and the environment variable named by
// pathName holds a path, the contents of that file are returned instead. This
// is how multi-line values such as PEM-encoded keys are usually mounted.
func GetEnvVarOrFile(name, pathName string) (string, error) {
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	path := os.Getenv(pathName)
	if path == "" {
		return "", nil
	}
	bytes, err := ioutil.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(
			err,
			"error reading file %s named by environment variable %s",
			path,
			pathName,
		)
	}
	return string(bytes), nil
}

// GetStringSliceFromEnvVar retrieves comma-delimited values from an environment
// variable having the specified name and populates a string slice. Surrounding
// whitespace is trimmed from each value and empty values are dropped.
func GetStringSliceFromEnvVar(name string, defaultValue []string) []string {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultValue
	}
	vals := []string{}
	for _, val := range strings.Split(valStr, ",") {
		if val = strings.TrimSpace(val); val != "" {
			vals = append(vals, val)
		}
	}
	return vals
}

// GetIntFromEnvVar attempts to parse an integer from a string value retrieved
// from the specified environment variable. An error is returned if the string
// value cannot successfully be parsed as an integer.
func GetIntFromEnvVar(name string, defaultValue int) (int, error) {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, errors.Errorf(
			"value %q for environment variable %s was not parsable as an int",
			valStr,
			name,
		)
	}
	return val, nil
}

// GetRequiredInt64FromEnvVar attempts to parse an int64 from a string value
// retrieved from the specified environment variable. An error is returned if
// the value is the empty string or cannot be parsed. GitHub App and
// installation IDs are int64 throughout the GitHub API.
func GetRequiredInt64FromEnvVar(name string) (int64, error) {
	valStr, err := GetRequiredEnvVar(name)
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return 0, errors.Errorf(
			"value %q for environment variable %s was not parsable as an int64",
			valStr,
			name,
		)
	}
	return val, nil
}

// GetBoolFromEnvVar attempts to parse a bool from a string value retrieved from
// the specified environment variable. An error is returned if the string value
// cannot successfully be parsed as a bool.
func GetBoolFromEnvVar(name string, defaultValue bool) (bool, error) {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return false, errors.Errorf(
			"value %q for environment variable %s was not parsable as a bool",
			valStr,
			name,
		)
	}
	return val, nil
}

// GetDurationFromEnvVar attempts to parse a time.Duration from a string value
// retrieved from the specified environment variable. An error is returned if
// the string value cannot successfully be parsed as a time.Duration.
func GetDurationFromEnvVar(
	name string,
	defaultValue time.Duration,
) (time.Duration, error) {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, errors.Errorf(
			"value %q for environment variable %s was not parsable as a duration",
			valStr,
			name,
		)
	}
	return val, nil
}

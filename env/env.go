package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func Env(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}

func EnvInt(k string, d int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return d, fmt.Errorf("env %s must be int", k)
	}
	return n, nil
}

func EnvFloat(k string, d float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return d, fmt.Errorf("env %s must be a number", k)
	}
	return f, nil
}

func EnvBool(k string, d bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	default:
		return d, fmt.Errorf("env %s must be boolean", k)
	}
}

func EnvDuration(k string, d time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return d, fmt.Errorf("env %s must be a duration (e.g. 15m)", k)
	}
	return dur, nil
}

// EnvList splits a comma-separated variable, dropping empty entries.
func EnvList(k string) []string {
	return SplitList(os.Getenv(k))
}

func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

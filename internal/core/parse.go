package core

import (
	"strconv"
	"strings"
	"time"
)

// ParseDurationMS parses "90s", "1m30s", "250ms" or a bare millisecond count.
func ParseDurationMS(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "duration required"}
	}
	if strings.HasSuffix(arg, "ms") || strings.HasSuffix(arg, "s") || strings.HasSuffix(arg, "m") || strings.HasSuffix(arg, "h") {
		dur, err := time.ParseDuration(arg)
		if err != nil {
			return 0, &CLIError{Code: ExitUsage, Msg: "invalid duration"}
		}
		return int64(dur / time.Millisecond), nil
	}
	value, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid duration"}
	}
	return value, nil
}

// ResolveSeek turns a seek argument into an absolute position. A leading
// "+" or "-" is relative to currentMS.
func ResolveSeek(arg string, currentMS int64) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "seek position required"}
	}

	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		delta, err := ParseDurationMS(arg)
		if err != nil {
			return 0, err
		}
		pos := currentMS + delta
		if pos < 0 {
			pos = 0
		}
		return pos, nil
	}
	return ParseDurationMS(arg)
}

// ResolveVolume parses a volume in percent (0..100). A leading "+" or "-"
// is relative to current, which is 0..1.
func ResolveVolume(arg string, current float64) (float64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "volume argument required"}
	}

	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		delta, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume delta"}
		}
		return clampVolume((current*100 + delta) / 100), nil
	}

	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume"}
	}
	return clampVolume(value / 100), nil
}

func clampVolume(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

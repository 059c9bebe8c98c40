package logger

import "strings"

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// levelOf derives the level from the category name: "error" and "warning"
// are their own levels and any "debug" prefixed category is debug.
func levelOf(category string) Level {
	switch {
	case category == "error":
		return LevelError
	case category == "warning":
		return LevelWarning
	case strings.HasPrefix(category, "debug"):
		return LevelDebug
	}
	return LevelInfo
}

func validCategory(category string) bool {
	if category == "" {
		return false
	}
	for _, r := range category {
		if r >= 'A' && r <= 'Z' || r == ' ' {
			return false
		}
	}
	return true
}

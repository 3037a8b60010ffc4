package protocol

// LogLevel is one of the eight RFC 5424 syslog levels the logging
// capability exposes (spec.md §4.4.7), ordered from least to most severe.
type LogLevel string

const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelNotice    LogLevel = "notice"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug:     0,
	LogLevelInfo:      1,
	LogLevelNotice:    2,
	LogLevelWarning:   3,
	LogLevelError:     4,
	LogLevelCritical:  5,
	LogLevelAlert:     6,
	LogLevelEmergency: 7,
}

// Valid reports whether l is one of the eight recognized levels.
func (l LogLevel) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// meetsMinimum reports whether l is at or above min in severity. An unknown
// min is treated as LogLevelDebug (everything passes).
func (l LogLevel) meetsMinimum(min LogLevel) bool {
	lr, ok := levelRank[l]
	if !ok {
		return false
	}
	mr, ok := levelRank[min]
	if !ok {
		return true
	}
	return lr >= mr
}

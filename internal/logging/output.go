package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// errorOutput receives ERROR and FATAL lines.
var errorOutput io.Writer = os.Stderr

// writeLog formats one line and routes it: ERROR and FATAL to errorOutput,
// everything else through the standard log package.
func (l *Logger) writeLog(level LogLevel, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}

	if level >= ERROR {
		fmt.Fprintln(errorOutput, b.String())
		return
	}
	log.Println(b.String())
}

func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	l.writeLog(level, fmt.Sprintf(msg, args...), l.mergeFields(nil))
}

// GetTimestamp returns the current time in RFC3339, or the LOG_TIMESTAMP
// override when set.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}

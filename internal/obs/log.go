// Package obs carries the shared logger and prometheus metrics for the
// settlement service. Every component logs through one destination so
// request, audit, and settlement lines interleave in order.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line-oriented logger. Entries are written as
// single JSON objects to stdout with no prefix or flags.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one structured JSON line. A marshal failure still
// produces a valid JSON entry naming the error.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"log entry marshal failed","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(data))
}

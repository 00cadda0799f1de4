package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/vaultbackend/internal/observability"
)

// cronLogger adapts observability.Logger to cron.Logger. Cron's own
// bookkeeping messages are logged at debug level.
type cronLogger struct {
	logger observability.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(fields(keysAndValues), observability.Error(err))...)
}

func fields(keysAndValues []interface{}) []observability.Field {
	out := make([]observability.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, observability.Any(key, keysAndValues[i+1]))
	}
	return out
}

package stunnat

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runLogger wraps a *zap.Logger with the run id every log line for a single
// discovery run should carry, the way
// _examples/other_examples/98b51e03_avatar29A-midgard-ro's network client
// attaches connection identity to every zap field. The STUN transaction id
// is wire protocol state; RunID exists purely so a human reading logs can
// follow one discovery run across probes without decoding hex transaction
// ids.
type runLogger struct {
	base  *zap.Logger
	runID string
}

// NewRunLogger wraps base with a fresh, random RunID.
func NewRunLogger(base *zap.Logger) *runLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &runLogger{base: base, runID: uuid.NewString()}
}

func newNopRunLogger() *runLogger {
	return &runLogger{base: zap.NewNop(), runID: uuid.NewString()}
}

func (l *runLogger) probe(event string, fields ...zap.Field) {
	l.base.Debug(event, append([]zap.Field{zap.String("run_id", l.runID)}, fields...)...)
}

func (l *runLogger) verdict(event string, fields ...zap.Field) {
	l.base.Info(event, append([]zap.Field{zap.String("run_id", l.runID)}, fields...)...)
}

func (l *runLogger) RunID() string {
	return l.runID
}

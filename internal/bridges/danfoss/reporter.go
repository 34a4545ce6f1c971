package danfoss

// Reporter receives messages and exceptions worth surfacing beyond the
// local log, such as restart attempts and transport failures.
type Reporter interface {
	CaptureMessage(msg string, fields map[string]any)
	CaptureException(err error, fields map[string]any)
}

// LogReporter reports through the structured logger and counts reports.
type LogReporter struct {
	logger  Logger
	metrics *Metrics
}

// NewLogReporter creates a reporter. Both arguments may be nil.
func NewLogReporter(logger Logger, metrics *Metrics) *LogReporter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogReporter{logger: logger, metrics: metrics}
}

// CaptureMessage logs msg at warn level with fields.
func (r *LogReporter) CaptureMessage(msg string, fields map[string]any) {
	r.logger.Warn(msg, flatten(fields)...)
	r.metrics.reported("message")
}

// CaptureException logs err at error level with fields.
func (r *LogReporter) CaptureException(err error, fields map[string]any) {
	if err == nil {
		return
	}
	args := append([]any{"error", err}, flatten(fields)...)
	r.logger.Error("captured exception", args...)
	r.metrics.reported("exception")
}

func flatten(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

type noopReporter struct{}

func (noopReporter) CaptureMessage(string, map[string]any)  {}
func (noopReporter) CaptureException(error, map[string]any) {}

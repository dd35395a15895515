package convert

import "log/slog"

// ProgressEvent reports pipeline advancement. Percent runs 0 to 100 over the
// whole conversion; Level is "info" or "warn".
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

// ProgressFunc receives events fire-and-forget; implementations must not
// block and must not fail the conversion.
type ProgressFunc func(ProgressEvent)

type progressReporter struct {
	fn ProgressFunc
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (r *progressReporter) emit(stage string, percent int, message string) {
	r.send(ProgressEvent{Stage: stage, Percent: percent, Message: message, Level: "info"})
}

func (r *progressReporter) warn(stage string, percent int, message string) {
	r.send(ProgressEvent{Stage: stage, Percent: percent, Message: message, Level: "warn"})
}

func (r *progressReporter) send(ev ProgressEvent) {
	slog.Debug("convert progress", "stage", ev.Stage, "percent", ev.Percent, "message", ev.Message)
	if r == nil || r.fn == nil {
		return
	}
	defer func() { _ = recover() }()
	r.fn(ev)
}

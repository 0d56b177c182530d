package scenario

import (
	"time"

	"go.uber.org/zap"
)

// Report is what a scenario observed.
type Report struct {
	Scenario string

	ReaderEntries  int64
	ReaderRefusals int64
	WriterEntries  int64

	// Starvation only. The writer always gets in once the run stops, so
	// WriterEntries is 1; WriterAdmitted tells whether that happened before
	// the deadline, and WriterWait is set only in that case.
	WriterAdmitted bool
	WriterWait     time.Duration

	Elapsed time.Duration
}

func (r Report) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("scenario", r.Scenario),
		zap.Int64("reader_entries", r.ReaderEntries),
		zap.Int64("reader_refusals", r.ReaderRefusals),
		zap.Int64("writer_entries", r.WriterEntries),
		zap.Duration("elapsed", r.Elapsed),
	}
	if r.Scenario == "starvation" {
		fields = append(fields,
			zap.Bool("writer_admitted", r.WriterAdmitted),
			zap.Duration("writer_wait", r.WriterWait),
		)
	}
	return fields
}

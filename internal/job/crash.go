// SPDX-License-Identifier: MPL-2.0

package job

import (
	"fmt"
	"log/slog"
)

type (
	// CrashReporter receives panics recovered at a job boundary.
	CrashReporter interface {
		ReportCrash(info Info, recovered any, stack []byte)
	}

	// Info identifies a job.
	Info struct {
		ID     string
		Kind   Kind
		Module string
	}

	// LogReporter reports crashes through a structured logger.
	LogReporter struct {
		Logger *slog.Logger
	}
)

// ReportCrash logs the panic value and stack at error level.
func (r LogReporter) ReportCrash(info Info, recovered any, stack []byte) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("job crashed",
		"job", info.ID,
		"kind", info.Kind,
		"module", info.Module,
		"panic", fmt.Sprint(recovered),
		"stack", string(stack),
	)
}

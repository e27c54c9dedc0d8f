// Package telemetry reports the trace spans opened by the castor odometry movement sensor.
package telemetry

import (
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/utils/perf"
)

// ReportingInterval is how often collected spans and stats are exported.
const ReportingInterval = 5 * time.Second

// SetupTelemetry starts a development exporter so spans and stats can be reported.
// The caller stops the returned exporter.
func SetupTelemetry(logger logging.Logger) (perf.Exporter, error) {
	exporter := perf.NewDevelopmentExporterWithOptions(perf.DevelopmentExporterOptions{
		ReportingInterval: ReportingInterval,
	})
	if err := exporter.Start(); err != nil {
		return nil, err
	}

	logger.Debugw("telemetry exporter started", "reporting_interval", ReportingInterval)
	return exporter, nil
}

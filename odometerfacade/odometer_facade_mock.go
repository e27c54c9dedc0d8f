package odometerfacade

import (
	"context"
	"sync"
	"time"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
	"github.com/viam-modules/viam-castor-odometry/odometer"
)

// Mock represents a fake instance of the odometer facade.
type Mock struct {
	Facade

	StartFunc func(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)
	IngestFunc func(
		ctx context.Context,
		timeout time.Duration,
		sample odometer.JointSample,
	) (bool, error)
	OdometryFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (odometer.OdometryRecord, error)
	TransformFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (odometer.TransformRecord, error)
	ResetFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
	ParametersFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (kinematics.Parameters, error)
	SetParametersFunc func(
		ctx context.Context,
		timeout time.Duration,
		params kinematics.Parameters,
	) error
	SetIterationsFunc func(
		ctx context.Context,
		timeout time.Duration,
		iterations int,
	) error
	SetWrapHeadingFunc func(
		ctx context.Context,
		timeout time.Duration,
		wrap bool,
	) error
}

// Start calls the injected StartFunc or the real version.
func (f *Mock) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	if f.StartFunc == nil {
		f.Facade.Start(ctx, activeBackgroundWorkers)
		return
	}
	f.StartFunc(ctx, activeBackgroundWorkers)
}

// Ingest calls the injected IngestFunc or the real version.
func (f *Mock) Ingest(
	ctx context.Context,
	timeout time.Duration,
	sample odometer.JointSample,
) (bool, error) {
	if f.IngestFunc == nil {
		return f.Facade.Ingest(ctx, timeout, sample)
	}
	return f.IngestFunc(ctx, timeout, sample)
}

// Odometry calls the injected OdometryFunc or the real version.
func (f *Mock) Odometry(
	ctx context.Context,
	timeout time.Duration,
) (odometer.OdometryRecord, error) {
	if f.OdometryFunc == nil {
		return f.Facade.Odometry(ctx, timeout)
	}
	return f.OdometryFunc(ctx, timeout)
}

// Transform calls the injected TransformFunc or the real version.
func (f *Mock) Transform(
	ctx context.Context,
	timeout time.Duration,
) (odometer.TransformRecord, error) {
	if f.TransformFunc == nil {
		return f.Facade.Transform(ctx, timeout)
	}
	return f.TransformFunc(ctx, timeout)
}

// Reset calls the injected ResetFunc or the real version.
func (f *Mock) Reset(
	ctx context.Context,
	timeout time.Duration,
) error {
	if f.ResetFunc == nil {
		return f.Facade.Reset(ctx, timeout)
	}
	return f.ResetFunc(ctx, timeout)
}

// Parameters calls the injected ParametersFunc or the real version.
func (f *Mock) Parameters(
	ctx context.Context,
	timeout time.Duration,
) (kinematics.Parameters, error) {
	if f.ParametersFunc == nil {
		return f.Facade.Parameters(ctx, timeout)
	}
	return f.ParametersFunc(ctx, timeout)
}

// SetParameters calls the injected SetParametersFunc or the real version.
func (f *Mock) SetParameters(
	ctx context.Context,
	timeout time.Duration,
	params kinematics.Parameters,
) error {
	if f.SetParametersFunc == nil {
		return f.Facade.SetParameters(ctx, timeout, params)
	}
	return f.SetParametersFunc(ctx, timeout, params)
}

// SetIterations calls the injected SetIterationsFunc or the real version.
func (f *Mock) SetIterations(
	ctx context.Context,
	timeout time.Duration,
	iterations int,
) error {
	if f.SetIterationsFunc == nil {
		return f.Facade.SetIterations(ctx, timeout, iterations)
	}
	return f.SetIterationsFunc(ctx, timeout, iterations)
}

// SetWrapHeading calls the injected SetWrapHeadingFunc or the real version.
func (f *Mock) SetWrapHeading(
	ctx context.Context,
	timeout time.Duration,
	wrap bool,
) error {
	if f.SetWrapHeadingFunc == nil {
		return f.Facade.SetWrapHeading(ctx, timeout, wrap)
	}
	return f.SetWrapHeadingFunc(ctx, timeout, wrap)
}

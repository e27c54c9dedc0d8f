// Package odometerfacade serializes all access to an odometer onto a single goroutine.
package odometerfacade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
	"github.com/viam-modules/viam-castor-odometry/odometer"
)

var emptyRequestParams = map[RequestParamType]interface{}{}

// Start launches the goroutine that owns the odometer. It exits when ctx is done.
func (f *Facade) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	f.startWorker(ctx, activeBackgroundWorkers)
}

// Ingest integrates a joint sample. It returns true when the pose was updated.
func (f *Facade) Ingest(ctx context.Context, timeout time.Duration, sample odometer.JointSample) (bool, error) {
	requestParams := map[RequestParamType]interface{}{
		jointSample: sample,
	}

	untyped, err := f.request(ctx, ingest, requestParams, timeout)
	if err != nil {
		return false, err
	}

	updated, ok := untyped.(bool)
	if !ok {
		return false, errors.New("unable to cast response from odometer facade to a bool")
	}

	return updated, nil
}

// Odometry returns the latest odometry record.
func (f *Facade) Odometry(ctx context.Context, timeout time.Duration) (odometer.OdometryRecord, error) {
	untyped, err := f.request(ctx, odometry, emptyRequestParams, timeout)
	if err != nil {
		return odometer.OdometryRecord{}, err
	}

	record, ok := untyped.(odometer.OdometryRecord)
	if !ok {
		return odometer.OdometryRecord{}, errors.New("unable to cast response from odometer facade to an odometry record")
	}

	return record, nil
}

// Transform returns the latest frame transform record.
func (f *Facade) Transform(ctx context.Context, timeout time.Duration) (odometer.TransformRecord, error) {
	untyped, err := f.request(ctx, transform, emptyRequestParams, timeout)
	if err != nil {
		return odometer.TransformRecord{}, err
	}

	record, ok := untyped.(odometer.TransformRecord)
	if !ok {
		return odometer.TransformRecord{}, errors.New("unable to cast response from odometer facade to a transform record")
	}

	return record, nil
}

// Reset clears the pose and starts a new odometry session.
func (f *Facade) Reset(ctx context.Context, timeout time.Duration) error {
	_, err := f.request(ctx, reset, emptyRequestParams, timeout)
	return err
}

// Parameters returns the kinematic parameters in use.
func (f *Facade) Parameters(ctx context.Context, timeout time.Duration) (kinematics.Parameters, error) {
	untyped, err := f.request(ctx, parameters, emptyRequestParams, timeout)
	if err != nil {
		return kinematics.Parameters{}, err
	}

	params, ok := untyped.(kinematics.Parameters)
	if !ok {
		return kinematics.Parameters{}, errors.New("unable to cast response from odometer facade to kinematic parameters")
	}

	return params, nil
}

// SetParameters replaces the kinematic parameters.
func (f *Facade) SetParameters(ctx context.Context, timeout time.Duration, params kinematics.Parameters) error {
	requestParams := map[RequestParamType]interface{}{
		kinematicParameters: params,
	}
	_, err := f.request(ctx, setParameters, requestParams, timeout)
	return err
}

// SetIterations sets the number of chords per integration interval.
func (f *Facade) SetIterations(ctx context.Context, timeout time.Duration, iterations int) error {
	requestParams := map[RequestParamType]interface{}{
		iterationCount: iterations,
	}
	_, err := f.request(ctx, setIterations, requestParams, timeout)
	return err
}

// SetWrapHeading selects whether the heading is wrapped into (-pi, pi].
func (f *Facade) SetWrapHeading(ctx context.Context, timeout time.Duration, wrap bool) error {
	requestParams := map[RequestParamType]interface{}{
		wrapHeading: wrap,
	}
	_, err := f.request(ctx, setWrapHeading, requestParams, timeout)
	return err
}

// RequestType defines the odometer operation that is being requested.
type RequestType int64

const (
	// ingest represents Odometer.Ingest.
	ingest RequestType = iota
	// odometry represents Odometer.Odometry.
	odometry
	// transform represents Odometer.Transform.
	transform
	// reset represents Odometer.Reset.
	reset
	// parameters represents Odometer.Parameters.
	parameters
	// setParameters represents Odometer.SetParameters.
	setParameters
	// setIterations represents Odometer.SetIterations.
	setIterations
	// setWrapHeading represents Odometer.SetWrapHeading.
	setWrapHeading
)

// RequestParamType defines the type being provided as input to the work.
type RequestParamType int64

const (
	// jointSample represents a joint sample to ingest.
	jointSample RequestParamType = iota
	// kinematicParameters represents replacement kinematic parameters.
	kinematicParameters
	// iterationCount represents a number of integration chords.
	iterationCount
	// wrapHeading represents the heading wrap toggle.
	wrapHeading
)

// Response defines the result of one piece of work that can be put on the result channel.
type Response struct {
	result interface{}
	err    error
}

/*
Facade exists to ensure that exactly one goroutine touches the odometer, so joint samples and
queries are applied in the order they arrive.
*/
type Facade struct {
	odometer    *odometer.Odometer
	requestChan chan Request
}

// Interface defines the functionality of a Facade instance.
// It should not be used outside of this package but needs to be public for testing purposes.
type Interface interface {
	request(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{},
		timeout time.Duration,
	) (interface{}, error)
	startWorker(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	Start(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)
	Ingest(
		ctx context.Context,
		timeout time.Duration,
		sample odometer.JointSample,
	) (bool, error)
	Odometry(
		ctx context.Context,
		timeout time.Duration,
	) (odometer.OdometryRecord, error)
	Transform(
		ctx context.Context,
		timeout time.Duration,
	) (odometer.TransformRecord, error)
	Reset(
		ctx context.Context,
		timeout time.Duration,
	) error
	Parameters(
		ctx context.Context,
		timeout time.Duration,
	) (kinematics.Parameters, error)
	SetParameters(
		ctx context.Context,
		timeout time.Duration,
		params kinematics.Parameters,
	) error
	SetIterations(
		ctx context.Context,
		timeout time.Duration,
		iterations int,
	) error
	SetWrapHeading(
		ctx context.Context,
		timeout time.Duration,
		wrap bool,
	) error
}

// Request defines all of the necessary pieces to run one operation against the odometer.
type Request struct {
	responseChan  chan Response
	requestType   RequestType
	requestParams map[RequestParamType]interface{}
}

// New instantiates the Facade struct which serializes calls into the odometer.
func New(odom *odometer.Odometer) Facade {
	return Facade{
		odometer:    odom,
		requestChan: make(chan Request),
	}
}

// doWork runs the requested operation against the odometer.
func (r *Request) doWork(f *Facade) (interface{}, error) {
	switch r.requestType {
	case ingest:
		sample, ok := r.requestParams[jointSample].(odometer.JointSample)
		if !ok {
			return nil, errors.New("could not cast inputted sample to type odometer.JointSample")
		}
		return f.odometer.Ingest(sample)
	case odometry:
		return f.odometer.Odometry()
	case transform:
		return f.odometer.Transform()
	case reset:
		f.odometer.Reset()
		return nil, nil
	case parameters:
		return f.odometer.Parameters(), nil
	case setParameters:
		params, ok := r.requestParams[kinematicParameters].(kinematics.Parameters)
		if !ok {
			return nil, errors.New("could not cast inputted parameters to type kinematics.Parameters")
		}
		return nil, f.odometer.SetParameters(params)
	case setIterations:
		iterations, ok := r.requestParams[iterationCount].(int)
		if !ok {
			return nil, errors.New("could not cast inputted iterations to int")
		}
		return nil, f.odometer.SetIterations(iterations)
	case setWrapHeading:
		wrap, ok := r.requestParams[wrapHeading].(bool)
		if !ok {
			return nil, errors.New("could not cast inputted wrap heading to bool")
		}
		f.odometer.SetWrapHeading(wrap)
		return nil, nil
	}
	return nil, fmt.Errorf("no worktype found for: %v", r.requestType)
}

// request hands work to the odometer goroutine. The caller must know which RequestTypes
// return which response values.
func (f *Facade) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctxParent, timeout)
	defer cancel()

	req := Request{
		responseChan:  make(chan Response, 1),
		requestType:   requestType,
		requestParams: inputs,
	}

	select {
	case f.requestChan <- req:
		select {
		case response := <-req.responseChan:
			return response.result, response.err
		case <-ctx.Done():
			msg := "timeout reading from odometer"
			return nil, multierr.Combine(errors.New(msg), ctx.Err())
		}
	case <-ctx.Done():
		msg := "timeout writing to odometer"
		return nil, multierr.Combine(errors.New(msg), ctx.Err())
	}
}

// startWorker starts the background goroutine that is the only caller of the odometer.
func (f *Facade) startWorker(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case workToDo := <-f.requestChan:
				result, err := workToDo.doWork(f)
				workToDo.responseChan <- Response{result: result, err: err}
			}
		}
	}()
}

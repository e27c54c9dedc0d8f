package odometerfacade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
	"github.com/viam-modules/viam-castor-odometry/odometer"
)

const testTimeout = 5 * time.Second

var (
	testParams = kinematics.Parameters{
		Wheelbase:         0.5,
		WheelOffset:       0.1,
		VelocityTolerance: 1e-6,
		SteeringTolerance: 1e-6,
	}
	start = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
)

func straightSample(seconds, velocity float64) odometer.JointSample {
	return odometer.JointSample{
		Time: start.Add(time.Duration(seconds * float64(time.Second))),
		State: kinematics.WheelState{
			Velocity: kinematics.PerSide{Left: velocity, Right: velocity},
		},
	}
}

func newTestFacade(t *testing.T) Facade {
	t.Helper()
	odom, err := odometer.New(odometer.Config{Parameters: testParams}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return New(odom)
}

func TestRequest(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		f := newTestFacade(t)
		f.startWorker(cancelCtx, &activeBackgroundWorkers)

		res, err := f.request(cancelCtx, parameters, emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res, test.ShouldResemble, testParams)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("failed request", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		f := newTestFacade(t)
		f.startWorker(cancelCtx, &activeBackgroundWorkers)

		_, err := f.request(cancelCtx, odometry, emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeError, odometer.ErrNotInitialized)

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("request with mistyped inputs", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		f := newTestFacade(t)
		f.startWorker(cancelCtx, &activeBackgroundWorkers)

		inputs := map[RequestParamType]interface{}{iterationCount: "ten"}
		_, err := f.request(cancelCtx, setIterations, inputs, testTimeout)
		test.That(t, err, test.ShouldBeError, errors.New("could not cast inputted iterations to int"))

		_, err = f.request(cancelCtx, RequestType(99), emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeError, errors.New("no worktype found for: 99"))

		cancelFunc()
		activeBackgroundWorkers.Wait()
	})

	t.Run("request with a cancelled context", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}

		f := newTestFacade(t)
		f.startWorker(cancelCtx, &activeBackgroundWorkers)
		cancelFunc()
		activeBackgroundWorkers.Wait()

		_, err := f.request(cancelCtx, reset, emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeError)
		expectedErr := multierr.Combine(errors.New("timeout writing to odometer"), context.Canceled)
		test.That(t, err, test.ShouldResemble, expectedErr)
	})

	t.Run("request with no worker running times out", func(t *testing.T) {
		f := newTestFacade(t)

		_, err := f.request(context.Background(), reset, emptyRequestParams, 10*time.Millisecond)
		test.That(t, err, test.ShouldBeError)
		expectedErr := multierr.Combine(errors.New("timeout writing to odometer"), context.DeadlineExceeded)
		test.That(t, err, test.ShouldResemble, expectedErr)
	})
}

func TestFacade(t *testing.T) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	activeBackgroundWorkers := sync.WaitGroup{}

	f := newTestFacade(t)
	f.Start(cancelCtx, &activeBackgroundWorkers)

	t.Run("ingest and query", func(t *testing.T) {
		updated, err := f.Ingest(cancelCtx, testTimeout, straightSample(0, 0))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, updated, test.ShouldBeFalse)

		_, err = f.Odometry(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeError, odometer.ErrNotInitialized)

		updated, err = f.Ingest(cancelCtx, testTimeout, straightSample(2, 0.5))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, updated, test.ShouldBeTrue)

		record, err := f.Odometry(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, record.Pose.X, test.ShouldAlmostEqual, 1.0, 1e-9)

		tf, err := f.Transform(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tf.Translation.X, test.ShouldAlmostEqual, 1.0, 1e-9)
		test.That(t, tf.ParentFrame, test.ShouldEqual, odometer.DefaultParentFrame)
	})

	t.Run("rejected samples surface their error", func(t *testing.T) {
		updated, err := f.Ingest(cancelCtx, testTimeout, straightSample(1, 0.5))
		test.That(t, updated, test.ShouldBeFalse)
		test.That(t, errors.Is(err, odometer.ErrNonMonotonicTime), test.ShouldBeTrue)
	})

	t.Run("setters", func(t *testing.T) {
		wider := testParams
		wider.Wheelbase = 2
		test.That(t, f.SetParameters(cancelCtx, testTimeout, wider), test.ShouldBeNil)
		params, err := f.Parameters(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params, test.ShouldResemble, wider)

		test.That(t, f.SetParameters(cancelCtx, testTimeout, kinematics.Parameters{}), test.ShouldNotBeNil)
		test.That(t, f.SetIterations(cancelCtx, testTimeout, 0), test.ShouldNotBeNil)
		test.That(t, f.SetIterations(cancelCtx, testTimeout, 25), test.ShouldBeNil)
		test.That(t, f.SetWrapHeading(cancelCtx, testTimeout, true), test.ShouldBeNil)
	})

	t.Run("reset", func(t *testing.T) {
		before, err := f.Odometry(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeNil)

		test.That(t, f.Reset(cancelCtx, testTimeout), test.ShouldBeNil)
		_, err = f.Odometry(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeError, odometer.ErrNotInitialized)

		_, err = f.Ingest(cancelCtx, testTimeout, straightSample(0, 0))
		test.That(t, err, test.ShouldBeNil)
		_, err = f.Ingest(cancelCtx, testTimeout, straightSample(1, 1))
		test.That(t, err, test.ShouldBeNil)
		after, err := f.Odometry(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, after.Session, test.ShouldNotEqual, before.Session)
	})

	t.Run("concurrent callers are serialized", func(t *testing.T) {
		test.That(t, f.Reset(cancelCtx, testTimeout), test.ShouldBeNil)
		_, err := f.Ingest(cancelCtx, testTimeout, straightSample(0, 0))
		test.That(t, err, test.ShouldBeNil)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = f.Odometry(cancelCtx, testTimeout)
			}()
		}
		for i := 1; i <= 20; i++ {
			_, err := f.Ingest(cancelCtx, testTimeout, straightSample(float64(i)*0.1, 1))
			test.That(t, err, test.ShouldBeNil)
		}
		wg.Wait()

		record, err := f.Odometry(cancelCtx, testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, record.Pose.X, test.ShouldAlmostEqual, 2.0, 1e-9)
		test.That(t, record.Sequence, test.ShouldEqual, uint64(20))
	})

	cancelFunc()
	activeBackgroundWorkers.Wait()
}

func TestMock(t *testing.T) {
	expectedErr := errors.New("ingest failed")
	mock := Mock{
		IngestFunc: func(ctx context.Context, timeout time.Duration, sample odometer.JointSample) (bool, error) {
			return false, expectedErr
		},
		OdometryFunc: func(ctx context.Context, timeout time.Duration) (odometer.OdometryRecord, error) {
			return odometer.OdometryRecord{Sequence: 7}, nil
		},
	}
	var iface Interface = &mock

	_, err := iface.Ingest(context.Background(), testTimeout, straightSample(0, 0))
	test.That(t, err, test.ShouldBeError, expectedErr)

	record, err := iface.Odometry(context.Background(), testTimeout)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, record.Sequence, test.ShouldEqual, uint64(7))
}

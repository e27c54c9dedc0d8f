// Package main is a module with a castor odometry movement sensor model.
package main

import (
	"context"
	"strings"

	"go.uber.org/zap/zapcore"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/utils"

	viamcastorodometry "github.com/viam-modules/viam-castor-odometry"
	"github.com/viam-modules/viam-castor-odometry/telemetry"
)

// Versioning variables which are replaced by LD flags.
var (
	Version     = "development"
	GitRevision = ""
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("castorOdometryModule"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var versionFields []interface{}
	if Version != "" {
		versionFields = append(versionFields, "version", Version)
	}
	if GitRevision != "" {
		versionFields = append(versionFields, "git_rev", GitRevision)
	}
	if len(versionFields) != 0 {
		logger.Infow(viamcastorodometry.Model.String(), versionFields...)
	} else {
		logger.Info(viamcastorodometry.Model.String() + " built from source; version unknown")
	}

	if len(args) == 2 && strings.HasSuffix(args[1], "-version") {
		return nil
	}

	if logger.Level() == zapcore.DebugLevel {
		exporter, err := telemetry.SetupTelemetry(logger)
		if err != nil {
			return err
		}
		defer exporter.Stop()
	}

	// Instantiate the module
	odometryModule, err := module.NewModuleFromArgs(ctx)
	if err != nil {
		return err
	}

	// Add the castor odometry model to the module
	if err = odometryModule.AddModelFromRegistry(ctx, movementsensor.API, viamcastorodometry.Model); err != nil {
		return err
	}

	// Start the module
	err = odometryModule.Start(ctx)
	defer odometryModule.Close(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

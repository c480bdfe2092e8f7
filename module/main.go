// Package main runs the pose graph SLAM service over a recorded or streamed dataset.
package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	viamposegraph "github.com/viam-modules/viam-posegraph"
	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/telemetry"
)

// Versioning variables which are replaced by LD flags.
var (
	Version     = "development"
	GitRevision = ""
)

const (
	configFlag      = "config"
	datasetFlag     = "dataset"
	dataDirFlag     = "data-dir"
	metricsAddrFlag = "metrics-addr"
	debugFlag       = "debug"
	timeoutFlag     = "facade-timeout"

	jobDonePollInterval = 500 * time.Millisecond
	metricsReadTimeout  = 10 * time.Second
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("posegraph"))
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
		logger.Infow(viamposegraph.ServiceName, versionFields...)
	} else {
		logger.Info(viamposegraph.ServiceName + " built from source; version unknown")
	}

	if len(args) == 2 && strings.HasSuffix(args[1], "-version") {
		return nil
	}

	app := &cli.App{
		Name:  "viam-posegraph",
		Usage: "build a 2D pose graph map from laser and odometry data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     configFlag,
				Usage:    "path to the YAML service config",
				Required: true,
			},
			&cli.StringFlag{
				Name:  datasetFlag,
				Usage: "dataset to replay, overrides the config",
			},
			&cli.StringFlag{
				Name:  dataDirFlag,
				Usage: "directory for exported poses and maps, overrides the config",
			},
			&cli.StringFlag{
				Name:  metricsAddrFlag,
				Usage: "address to serve prometheus metrics on, disabled when empty",
			},
			&cli.DurationFlag{
				Name:  timeoutFlag,
				Usage: "bound on every call into the pose graph",
				Value: viamposegraph.DefaultFacadeTimeout,
			},
			&cli.BoolFlag{
				Name:  debugFlag,
				Usage: "enable debug logging",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, c, logger)
		},
	}
	return app.RunContext(ctx, args)
}

func run(ctx context.Context, c *cli.Context, logger logging.Logger) error {
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	}

	svcConfig, err := loadConfig(c)
	if err != nil {
		return err
	}

	exporter, err := telemetry.SetupTelemetry()
	if err != nil {
		return err
	}
	defer exporter.Stop()

	if addr := c.String(metricsAddrFlag); addr != "" {
		server := &http.Server{
			Addr:              addr,
			Handler:           telemetry.MetricsHandler(),
			ReadHeaderTimeout: metricsReadTimeout,
		}
		utils.PanicCapturingGo(func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("metrics server stopped", "error", err)
			}
		})
		defer utils.UncheckedErrorFunc(server.Close)
		logger.Infow("serving metrics", "addr", addr)
	}

	svc, err := viamposegraph.New(ctx, svcConfig, logger, c.Duration(timeoutFlag), nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Errorw("error closing service", "error", err)
		}
	}()

	waitForJobDone(ctx, svc, logger)
	return nil
}

// loadConfig reads the config file and applies the command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	svcConfig, err := config.LoadFile(c.String(configFlag))
	if err != nil {
		return nil, err
	}
	if dataset := c.String(datasetFlag); dataset != "" {
		svcConfig.Dataset = dataset
	}
	if dataDir := c.String(dataDirFlag); dataDir != "" {
		svcConfig.DataDirectory = dataDir
	}
	if _, err := svcConfig.Validate(c.String(configFlag)); err != nil {
		return nil, err
	}
	return svcConfig, nil
}

// waitForJobDone blocks until an offline replay has been finalized or ctx is cancelled.
func waitForJobDone(ctx context.Context, svc *viamposegraph.PoseGraphService, logger logging.Logger) {
	for utils.SelectContextOrWait(ctx, jobDonePollInterval) {
		resp, err := svc.DoCommand(ctx, map[string]interface{}{"job_done": ""})
		if err != nil {
			logger.Warnw("could not read job state", "error", err)
			continue
		}
		if done, ok := resp["job_done"].(bool); ok && done {
			nodes, err := svc.Nodes(ctx)
			if err != nil {
				logger.Warnw("could not read final graph", "error", err)
				return
			}
			logger.Infow("dataset processed", "nodes", len(nodes))
			return
		}
	}
}

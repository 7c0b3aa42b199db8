package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	la "github.com/alanbriolat/lecture-archiver"
	"github.com/alanbriolat/lecture-archiver/async"
	"github.com/alanbriolat/lecture-archiver/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Name:  "lecture-archiver",
		Usage: "download, validate and transcribe open course lecture videos",
		Flags: globalFlags(),
		Action: func(c *cli.Context) error {
			return sweepAction(ctx, c, nil)
		},
		Commands: []*cli.Command{
			{
				Name:  "sweep",
				Usage: "process every course in the catalog",
				Action: func(c *cli.Context) error {
					return sweepAction(ctx, c, nil)
				},
			},
			{
				Name:      "course",
				Usage:     "process only the named courses",
				ArgsUsage: "COURSE...",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("at least one course is required", 2)
					}
					courses := make([]la.CourseID, 0, c.NArg())
					for _, arg := range c.Args().Slice() {
						course, err := la.ParseCourseID(arg)
						if err != nil {
							return err
						}
						courses = append(courses, course)
					}
					return sweepAction(ctx, c, courses)
				},
			},
			{
				Name:      "fetch",
				Usage:     "download and validate a single file",
				ArgsUsage: "URL PATH",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return cli.Exit("expected URL and PATH", 2)
					}
					return fetchAction(ctx, c, c.Args().Get(0), c.Args().Get(1))
				},
			},
			{
				Name:  "status",
				Usage: "summarize stored item outcomes and the last run of each named course",
				Action: func(c *cli.Context) error {
					return statusAction(c)
				},
			},
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err := <-result:
		if err != nil {
			log.Fatal(err)
		}
	case <-ctx.Done():
		// Restore default handling so a second interrupt kills the process while in-flight work finishes
		stop()
		zap.S().Warn("Interrupted, waiting for in-flight work to finish")
		if err := <-result; err != nil {
			log.Fatal(err)
		}
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "lecture-archiver.yaml",
			Usage:   "load settings from YAML `FILE` if it exists",
		},
		&cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: "load environment variables from `FILE` if it exists",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  "log-dir",
			Usage: "also write logs to a timestamped file in `DIR`",
		},
		&cli.StringFlag{
			Name:  "root",
			Usage: "store course directories under `DIR`",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "download up to `N` items of a course at once",
		},
		&cli.StringFlag{
			Name:  "course-budget",
			Usage: "stop scheduling a course after `SIZE` downloaded, e.g. 15GiB or unlimited",
		},
		&cli.StringFlag{
			Name:  "total-budget",
			Usage: "stop the sweep after `SIZE` downloaded in total",
		},
		&cli.StringFlag{
			Name:  "prober",
			Usage: "check decodability with `NAME` (mp4 or ffprobe)",
		},
		&cli.StringFlag{
			Name:  "redis-url",
			Usage: "keep the validation log in the redis set at `URL`",
		},
		&cli.Float64Flag{
			Name:  "rps",
			Usage: "send at most `N` requests per second",
		},
		&cli.BoolFlag{
			Name:  "no-transcribe",
			Usage: "skip transcription of validated videos",
		},
	}
}

type runtime struct {
	config config.Config
	logger *zap.Logger
	fs     afero.Fs
}

// setup loads configuration, applies command line overrides, and installs the global logger.
func setup(c *cli.Context) (*runtime, error) {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if err := applyFlags(c, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := buildLogger(c.Bool("verbose"), cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("can't initialize zap logger: %w", err)
	}
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)
	return &runtime{config: cfg, logger: logger, fs: fs}, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("log-dir") {
		cfg.LogDir = c.String("log-dir")
	}
	if c.IsSet("root") {
		cfg.Root = c.String("root")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("course-budget") {
		if err := cfg.CourseBudget.Set(c.String("course-budget")); err != nil {
			return err
		}
	}
	if c.IsSet("total-budget") {
		if err := cfg.TotalBudget.Set(c.String("total-budget")); err != nil {
			return err
		}
	}
	if c.IsSet("prober") {
		cfg.Prober = c.String("prober")
	}
	if c.IsSet("redis-url") {
		cfg.RedisURL = c.String("redis-url")
	}
	if c.IsSet("rps") {
		cfg.RequestsPerSecond = c.Float64("rps")
	}
	if c.Bool("no-transcribe") {
		cfg.Transcripts.Enabled = false
	}
	return nil
}

func buildLogger(verbose bool, logDir string) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verbose {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0775); err != nil {
			return nil, err
		}
		// Colour codes would end up in the file
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.OutputPaths = append(config.OutputPaths, filepath.Join(logDir, time.Now().Format("log_20060102_150405.txt")))
	}
	return config.Build()
}

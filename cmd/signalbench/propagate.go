package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/delaneyj/cascade/reactive"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

const (
	iterationsKey = "iterations"
	widthKey      = "width"
	heightKey     = "height"
)

func propagateCommand() *cli.Command {
	return &cli.Command{
		Name:  "propagate",
		Usage: "Time writes to a source feeding width chains of height computeds",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:  widthKey,
				Usage: "Chain counts to try",
			},
			&cli.IntSliceFlag{
				Name:  heightKey,
				Usage: "Chain lengths to try",
			},
			&cli.IntFlag{
				Name:  iterationsKey,
				Usage: "Writes timed per size",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := configFrom(ctx).Propagate
			if cmd.IsSet(widthKey) {
				cfg.Widths = ints(cmd.IntSlice(widthKey))
			}
			if cmd.IsSet(heightKey) {
				cfg.Heights = ints(cmd.IntSlice(heightKey))
			}
			if cmd.IsSet(iterationsKey) {
				cfg.Iterations = int(cmd.Int(iterationsKey))
			}
			return runPropagate(ctx, os.Stdout, loggerFrom(ctx), cfg)
		},
	}
}

func ints(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

type propagateResult struct {
	width, height int
	calc          *tachymeter.Metrics
}

func runPropagate(ctx context.Context, w io.Writer, logger *slog.Logger, cfg PropagateConfig) error {
	tbl := table.NewWriter()
	tbl.SetTitle("cascade propagate")
	tbl.SetOutputMirror(w)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, width := range cfg.Widths {
		for _, height := range cfg.Heights {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := propagate(logger, width, height, cfg.Iterations)
			if err != nil {
				return err
			}
			tbl.AppendRow(table.Row{
				fmt.Sprintf("propagate: %d * %d", width, height),
				res.calc.Time.Avg,
				res.calc.Time.Min,
				res.calc.Time.P75,
				res.calc.Time.P99,
				res.calc.Time.Max,
			})
		}
	}

	tbl.Render()
	return nil
}

// propagate builds the graph for one size and times iterations writes. Each
// write must run every effect exactly once.
func propagate(logger *slog.Logger, width, height, iterations int) (*propagateResult, error) {
	rs := reactive.CreateReactiveSystem(reactive.WithLogger(logger))
	tach := tachymeter.New(&tachymeter.Config{Size: iterations})

	src := reactive.Signal(rs, 1).Named("src")
	runs := 0
	for i := 0; i < width; i++ {
		read := src.Get
		for j := 0; j < height; j++ {
			prev := read
			read = reactive.MustComputed(rs, func() int {
				return prev() + 1
			}).Get
		}

		last := read
		if _, err := reactive.Effect(rs, func() (reactive.Cleanup, error) {
			last()
			runs++
			return nil, nil
		}); err != nil {
			return nil, err
		}
	}

	for i := 0; i < iterations; i++ {
		start := time.Now()
		if err := src.Set(src.Peek() + 1); err != nil {
			return nil, err
		}
		tach.AddTime(time.Since(start))
	}

	if want := width * (iterations + 1); runs != want {
		return nil, fmt.Errorf("propagate %dx%d: effects ran %d times, want %d", width, height, runs, want)
	}
	logger.Debug("propagate finished",
		"width", width,
		"height", height,
		"effect_runs", runs,
	)
	return &propagateResult{width: width, height: height, calc: tach.Calc()}, nil
}

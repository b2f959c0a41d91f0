package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/delaneyj/cascade/reactive"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

const (
	repeatsKey = "repeats"
	testKey    = "test"
	scaleKey   = "scale"
)

func layersCommand() *cli.Command {
	return &cli.Command{
		Name:  "layers",
		Usage: "Run layered graphs of static and dynamic computeds",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  repeatsKey,
				Usage: "Timed runs per test, the best one is reported",
			},
			&cli.StringSliceFlag{
				Name:  testKey,
				Usage: "Only run the named tests",
			},
			&cli.FloatFlag{
				Name:  scaleKey,
				Usage: "Multiply every test's iteration count",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := configFrom(ctx).Layers
			if cmd.IsSet(repeatsKey) {
				cfg.Repeats = int(cmd.Int(repeatsKey))
			}
			if cmd.IsSet(testKey) {
				cfg.Tests = cmd.StringSlice(testKey)
			}
			if cmd.IsSet(scaleKey) {
				cfg.Scale = cmd.Float(scaleKey)
			}
			return runLayers(ctx, os.Stdout, loggerFrom(ctx), cfg)
		},
	}
}

type layersTestConfig struct {
	name           string  // friendly name for the test, should be unique
	width          int     // width of dependency graph to construct
	totalLayers    int     // depth of dependency graph to construct
	staticFraction float64 // fraction of nodes that are static
	nSources       int     // construct a graph with number of sources in each node
	readFraction   float64 // fraction of [0, 1] elements in the last layer from which to read values in each test iteration
	iterations     int     // number of test iterations
}

var layersTests = []layersTestConfig{
	{
		name:           "simple component",
		width:          10,
		staticFraction: 1,
		nSources:       2,
		totalLayers:    5,
		readFraction:   0.2,
		iterations:     600000,
	},
	{
		name:           "dynamic component",
		width:          10,
		totalLayers:    10,
		staticFraction: 0.75,
		nSources:       6,
		readFraction:   0.2,
		iterations:     15000,
	},
	{
		name:           "large web app",
		width:          1000,
		totalLayers:    12,
		staticFraction: 0.95,
		nSources:       4,
		readFraction:   1,
		iterations:     7000,
	},
	{
		name:           "wide dense",
		width:          1000,
		totalLayers:    5,
		staticFraction: 1,
		nSources:       25,
		readFraction:   1,
		iterations:     3000,
	},
	{
		name:           "deep",
		width:          5,
		totalLayers:    500,
		staticFraction: 1,
		nSources:       3,
		readFraction:   1,
		iterations:     500,
	},
	{
		name:           "very dynamic",
		width:          100,
		totalLayers:    15,
		staticFraction: 0.5,
		nSources:       6,
		readFraction:   1,
		iterations:     2000,
	},
}

type layersResult struct {
	sum      int
	count    int64
	duration time.Duration
}

func runLayers(ctx context.Context, w io.Writer, logger *slog.Logger, cfg LayersConfig) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"size", "nSources", "read%", "static%",
		"nTimes", "test", "time", "updateRate", "title",
	})

	for _, test := range layersTests {
		if len(cfg.Tests) > 0 && !slices.Contains(cfg.Tests, test.name) {
			continue
		}
		test.iterations = max(1, int(float64(test.iterations)*cfg.Scale))

		best, err := bestLayersRun(ctx, logger, test, cfg.Repeats)
		if err != nil {
			return err
		}

		updateRate := float64(best.count) / (float64(best.duration) / float64(time.Millisecond))
		table.Append([]string{
			fmt.Sprintf("%dx%d", test.width, test.totalLayers),
			fmt.Sprint(test.nSources),
			fmt.Sprint(test.readFraction),
			fmt.Sprint(test.staticFraction),
			humanize.Comma(int64(test.iterations)),
			test.name,
			fmt.Sprint(best.duration),
			humanize.Comma(int64(updateRate)),
			layersTitle(test),
		})
	}

	table.Render()
	return nil
}

func bestLayersRun(ctx context.Context, logger *slog.Logger, test layersTestConfig, repeats int) (*layersResult, error) {
	logger.Info("running layers test", "test", test.name)

	counter := new(int64)
	rs := reactive.CreateReactiveSystem(reactive.WithLogger(logger))
	graph := makeLayersGraph(rs, counter, test)

	// warm up
	if _, err := runLayersGraph(rs, graph, test); err != nil {
		return nil, err
	}

	best := &layersResult{duration: time.Hour}
	for i := 0; i < repeats; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Debug("layers iteration",
			"test", test.name,
			"run", i+1,
			"of", repeats,
		)

		*counter = 0
		start := time.Now()
		sum, err := runLayersGraph(rs, graph, test)
		if err != nil {
			return nil, err
		}
		duration := time.Since(start)

		if duration < best.duration {
			best.duration = duration
			best.sum = sum
			best.count = *counter
		}
	}

	logger.Info("layers test finished",
		"test", test.name,
		"best", best.duration,
		"sum", best.sum,
		"recomputations", humanize.Comma(best.count),
	)
	return best, nil
}

func layersTitle(test layersTestConfig) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%dx%d %d sources", test.width, test.totalLayers, test.nSources))
	if test.staticFraction < 1 {
		sb.WriteString(" dynamic")
	}
	if test.readFraction < 1 {
		sb.WriteString(fmt.Sprintf(" read %0.2f%%", 100*test.readFraction))
	}
	return sb.String()
}

type layersGraph struct {
	sources []*reactive.WriteableSignal[int]
	layers  [][]*reactive.ReadonlySignal[int]
}

type node interface {
	Get() int
}

// makeLayersGraph builds width sources followed by totalLayers-1 rows of
// computeds, each reading nSources neighbours in the row above. Dynamic
// nodes skip one of their sources depending on the parity of the first.
func makeLayersGraph(rs *reactive.ReactiveSystem, counter *int64, test layersTestConfig) *layersGraph {
	sources := make([]*reactive.WriteableSignal[int], test.width)
	prevRow := make([]node, test.width)
	for i := range sources {
		sources[i] = reactive.Signal(rs, i)
		prevRow[i] = sources[i]
	}

	graph := &layersGraph{sources: sources}
	random := rand.New(rand.NewSource(0))
	for l := 0; l < test.totalLayers-1; l++ {
		row := makeLayersRow(rs, prevRow, counter, test, random)
		graph.layers = append(graph.layers, row)

		prevRow = make([]node, len(row))
		for i, c := range row {
			prevRow[i] = c
		}
	}
	return graph
}

func makeLayersRow(rs *reactive.ReactiveSystem, sources []node, counter *int64, test layersTestConfig, random *rand.Rand) []*reactive.ReadonlySignal[int] {
	row := make([]*reactive.ReadonlySignal[int], len(sources))

	for myDex := range sources {
		mySources := make([]node, 0, test.nSources)
		for sourceDex := 0; sourceDex < test.nSources; sourceDex++ {
			mySources = append(mySources, sources[(myDex+sourceDex)%len(sources)])
		}

		if random.Float64() < test.staticFraction {
			// static node, always reference sources
			row[myDex] = reactive.MustComputed(rs, func() int {
				*counter++
				sum := 0
				for _, source := range mySources {
					sum += source.Get()
				}
				return sum
			})
			continue
		}

		first := mySources[0]
		tail := mySources[1:]
		row[myDex] = reactive.MustComputed(rs, func() int {
			*counter++
			sum := first.Get()
			shouldDrop := sum&0x1 > 0
			dropDex := 0
			if len(tail) > 0 {
				dropDex = sum % len(tail)
			}

			for i := 0; i < len(tail); i++ {
				if shouldDrop && i == dropDex {
					continue
				}
				sum += tail[i].Get()
			}
			return sum
		})
	}

	return row
}

// runLayersGraph writes one source per iteration and reads some or all of the
// leaves, returning the sum of the read leaves.
func runLayersGraph(rs *reactive.ReactiveSystem, graph *layersGraph, test layersTestConfig) (int, error) {
	random := rand.New(rand.NewSource(0))

	var readLeaves []node
	if len(graph.layers) == 0 {
		for _, s := range graph.sources {
			readLeaves = append(readLeaves, s)
		}
	} else {
		for _, c := range graph.layers[len(graph.layers)-1] {
			readLeaves = append(readLeaves, c)
		}
	}
	skipCount := int(math.Round(float64(len(readLeaves)) * (1 - test.readFraction)))
	readLeaves = removeElems(readLeaves, skipCount, random)

	for i := 0; i < test.iterations; i++ {
		sourceDex := i % len(graph.sources)
		_, err := reactive.Batch(rs, func() (struct{}, error) {
			return struct{}{}, graph.sources[sourceDex].Set(i + sourceDex)
		})
		if err != nil {
			return 0, err
		}

		for _, leaf := range readLeaves {
			leaf.Get()
		}
	}

	sum := 0
	for _, leaf := range readLeaves {
		sum += leaf.Get()
	}
	return sum, nil
}

func removeElems[T any](src []T, rmCount int, random *rand.Rand) []T {
	out := slices.Clone(src)
	for i := 0; i < rmCount && len(out) > 0; i++ {
		rmDex := random.Intn(len(out))
		out[rmDex] = out[len(out)-1]
		out = out[:len(out)-1]
	}
	return out
}

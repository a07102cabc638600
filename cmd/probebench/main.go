// Copyright 2025 The Probekit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// probebench measures the probekit engines against the builtin map.
//
// A single run is selected with flags:
//
//	probebench -engine linear -type number -numKeys 100000 -load 1.0
//
// or a whole matrix is described in a TOML file:
//
//	probebench -config runs.toml
//
// Each run writes a report to the output directory, named
// time_<engine>_<type>_<numKeys>_<load>.txt, or
// space_<engine>_<type>_<numKeys>.txt for space runs.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/probelab/probekit"
	"github.com/probelab/probekit/internal/bench"
	"go.uber.org/zap"
)

// runtimeMapName selects the builtin-map baseline instead of a probekit
// engine.
const runtimeMapName = "runtime_map"

type runSpec struct {
	Engine  string   `toml:"engine"`
	Type    string   `toml:"type"`
	NumKeys int      `toml:"num_keys"`
	Load    float64  `toml:"load"`
	Delta   float64  `toml:"delta"`
	C       *float64 `toml:"c"`
	Space   bool     `toml:"space"`
}

type runMatrix struct {
	Run []runSpec `toml:"run"`
}

func main() {
	var (
		engine     = flag.String("engine", runtimeMapName, "engine to measure: "+engineNames())
		typ        = flag.String("type", "number", "key type: number or string")
		numKeys    = flag.Int("numKeys", 100_000, "number of keys")
		load       = flag.Float64("load", 1.0, "target load factor in (0, 100]; capacity = numKeys/load")
		delta      = flag.Float64("delta", 0, "free fraction for elastic and funnel (0 = engine default)")
		partitionC = flag.Float64("c", -1, "head-room constant for indexed_partition (-1 = engine default)")
		space      = flag.Bool("space", false, "measure resident-set growth instead of time")
		outDir     = flag.String("out", "output", "report directory")
		configPath = flag.String("config", "", "TOML run matrix; overrides the single-run flags")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	runs := []runSpec{{
		Engine:  *engine,
		Type:    *typ,
		NumKeys: *numKeys,
		Load:    *load,
		Delta:   *delta,
		Space:   *space,
	}}
	if *partitionC >= 0 {
		runs[0].C = partitionC
	}
	if *configPath != "" {
		var matrix runMatrix
		if _, err := toml.DecodeFile(*configPath, &matrix); err != nil {
			logger.Fatal("decoding run matrix", zap.String("path", *configPath), zap.Error(err))
		}
		runs = matrix.Run
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal("creating report directory", zap.Error(err))
	}

	failed := false
	for _, spec := range runs {
		if err := execute(logger, spec, *outDir); err != nil {
			logger.Error("run failed",
				zap.String("engine", spec.Engine),
				zap.String("type", spec.Type),
				zap.Error(err))
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func engineNames() string {
	names := []string{runtimeMapName}
	for _, kind := range probekit.Kinds() {
		names = append(names, kind.String())
	}
	return strings.Join(names, ", ")
}

func (s runSpec) normalize() (runSpec, error) {
	if s.NumKeys <= 0 {
		return s, errors.Errorf("numKeys %d must be positive", s.NumKeys)
	}
	if s.Load <= 0 || s.Load > 100 {
		return s, errors.Errorf("load factor %v outside (0, 100]", s.Load)
	}
	if s.Type != "number" && s.Type != "string" {
		return s, errors.Errorf("unknown key type %q", s.Type)
	}
	return s, nil
}

// capacity is the initial engine capacity realizing the target load
// factor for the dataset size.
func (s runSpec) capacity() int {
	return int(float64(s.NumKeys) / s.Load)
}

func (s runSpec) reportPath(outDir string) string {
	if s.Space {
		return filepath.Join(outDir, fmt.Sprintf("space_%s_%s_%d.txt", s.Engine, s.Type, s.NumKeys))
	}
	return filepath.Join(outDir, fmt.Sprintf("time_%s_%s_%d_%g.txt", s.Engine, s.Type, s.NumKeys, s.Load))
}

func execute(logger *zap.Logger, spec runSpec, outDir string) error {
	spec, err := spec.normalize()
	if err != nil {
		return err
	}
	logger.Info("starting run",
		zap.String("engine", spec.Engine),
		zap.String("type", spec.Type),
		zap.Int("numKeys", spec.NumKeys),
		zap.Float64("load", spec.Load),
		zap.Int("capacity", spec.capacity()),
		zap.Bool("space", spec.Space))

	switch spec.Type {
	case "number":
		dataset := bench.Numbers(spec.NumKeys, bench.DefaultKeyRange)
		mutate := func(p bench.Pair[uint64, uint64]) uint64 { return p.Key + p.Value }
		table, err := newTable[uint64, uint64](spec)
		if err != nil {
			return err
		}
		return measure(logger, spec, outDir, table, dataset, mutate)
	default:
		dataset := bench.Strings(spec.NumKeys, bench.DefaultKeyRange)
		mutate := func(p bench.Pair[string, string]) string { return p.Key + p.Value }
		table, err := newTable[string, string](spec)
		if err != nil {
			return err
		}
		return measure(logger, spec, outDir, table, dataset, mutate)
	}
}

func newTable[K comparable, V comparable](spec runSpec) (bench.Table[K, V], error) {
	if spec.Engine == runtimeMapName {
		return make(bench.RuntimeMap[K, V]), nil
	}
	kind, err := probekit.ParseKind(spec.Engine)
	if err != nil {
		return nil, err
	}
	var e probekit.Engine[K, V]
	switch {
	case spec.Delta > 0 && (kind == probekit.Elastic || kind == probekit.Funnel):
		e, err = probekit.New[K, V](kind, spec.capacity(), probekit.WithDelta[K, V](spec.Delta))
	case spec.C != nil && kind == probekit.IndexedPartition:
		e, err = probekit.New[K, V](kind, spec.capacity(), probekit.WithPartitionConstant[K, V](*spec.C))
	default:
		e, err = probekit.New[K, V](kind, spec.capacity())
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func measure[K comparable, V comparable](
	logger *zap.Logger, spec runSpec, outDir string,
	table bench.Table[K, V], dataset []bench.Pair[K, V], mutate func(bench.Pair[K, V]) V,
) error {
	report, err := os.Create(spec.reportPath(outDir))
	if err != nil {
		return errors.Wrap(err, "creating report")
	}
	defer report.Close()

	fmt.Fprintf(report, "=== Benchmark Configuration: engine=%s, type=%s, capacity=%d, load_factor=%g, num_keys=%d ===\n\n",
		spec.Engine, spec.Type, spec.capacity(), spec.Load, spec.NumKeys)

	if spec.Space {
		kb, err := bench.Space(table, dataset)
		if err != nil {
			return err
		}
		peak, err := bench.PeakResidentSetKB()
		if err != nil {
			return err
		}
		fmt.Fprintf(report, "[%s]\nMemory usage: %d KB\nPeak RSS: %d KB\n", spec.Engine, kb, peak)
		logger.Info("space run complete",
			zap.String("engine", spec.Engine),
			zap.Uint64("memoryKB", kb),
			zap.Uint64("peakKB", peak))
		return nil
	}

	result, err := bench.Run(table, dataset, mutate)
	if err != nil {
		return err
	}
	if err := result.Report(report, spec.Engine); err != nil {
		return err
	}
	logger.Info("time run complete",
		zap.String("engine", spec.Engine),
		zap.Duration("insert", result.Insert),
		zap.Duration("lookup", result.Lookup),
		zap.Duration("update", result.Update),
		zap.Duration("delete", result.Delete),
		zap.String("report", spec.reportPath(outDir)))
	return nil
}

// Package distribution produces per-participant message-size data for
// benchmark workers. Every generator is a pure function of its parameters
// and seed; Generate additionally persists the result as a delimited file.
package distribution

import (
	"math/rand/v2"
	"path/filepath"
	"sort"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/util"
	"github.com/mitchellh/mapstructure"
)

// generator produces one value per cell of a layout, in row-major order.
type generator interface {
	// required lists the parameter keys that have no default.
	required() []string
	validate() error
	values(l layout, r *rand.Rand) []int64
}

type generatorFactory func() generator

// registry is closed: generator names are fixed at compile time.
var registry = map[string]generatorFactory{
	"equal":       func() generator { return &equalGenerator{} },
	"normal":      func() generator { return &normalGenerator{Mean: 10, StdDev: 15} },
	"exponential": func() generator { return &exponentialGenerator{Scale: 50} },
	"zipfian":     func() generator { return &zipfianGenerator{Exponent: 2, Max: 1 << 20} },
	"uniform":     func() generator { return &uniformGenerator{} },
	"bucket":      func() generator { return &bucketGenerator{Buckets: 4} },
	"increasing":  func() generator { return &rampGenerator{} },
	"decreasing":  func() generator { return &rampGenerator{reverse: true} },
	"spikes":      func() generator { return &spikesGenerator{Rho: 10} },
	"alternating": func() generator { return &alternatingGenerator{} },
	"two_blocks":  func() generator { return &twoBlocksGenerator{} },
}

// Names returns the supported generator names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsDeterministic reports whether a generator's output depends only on its
// parameters and never on the seed.
func IsDeterministic(name string) bool {
	switch name {
	case "equal", "increasing", "decreasing", "alternating", "two_blocks":
		return true
	default:
		return false
	}
}

// Params are the parameters shared by every generator.
type Params struct {
	NProc    int    `mapstructure:"nproc"`
	M2M      bool   `mapstructure:"m2m"`
	Seed     int64  `mapstructure:"seed"`
	SaveDir  string `mapstructure:"savedir"`
	Filename string `mapstructure:"filename"`
}

type request struct {
	name   string
	common Params
	gen    generator
}

// Validate checks that name is a known generator and that params carry
// every field it requires with acceptable values. Failures are
// *collbench.ConfigError values, since they are detectable before a run.
func Validate(name string, params map[string]interface{}) error {
	_, err := parse(name, params)
	return err
}

// Generate produces, persists and returns the data described by name and
// params. Parameter problems are *collbench.ConfigError; failures to
// persist are *collbench.GenerationError.
func Generate(name string, params map[string]interface{}) (*Dataset, error) {
	req, err := parse(name, params)
	if err != nil {
		return nil, err
	}

	ds := req.build()
	path, err := ds.persist(req.common)
	if err != nil {
		return nil, &collbench.GenerationError{Generator: name, Err: err}
	}
	ds.Path = path

	return ds, nil
}

func (req *request) build() *Dataset {
	l := newLayout(req.common.NProc, req.common.M2M)
	src := rand.New(rand.NewPCG(uint64(req.common.Seed), uint64(req.common.Seed)))
	flat := req.gen.values(l, src)

	ds := &Dataset{Name: req.name, Shape: ShapeVector, NProc: l.nproc}
	if l.matrix {
		ds.Shape = ShapeMatrix
	}
	for row := 0; row < l.rows(); row++ {
		ds.Rows = append(ds.Rows, flat[row*l.nproc:(row+1)*l.nproc])
	}
	return ds
}

func parse(name string, params map[string]interface{}) (*request, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, collbench.NewConfigError("generator", "unknown generator '%s', must be one of %v", name, Names())
	}

	req := &request{
		name:   name,
		common: Params{Seed: collbench.DefaultSeed},
		gen:    factory(),
	}

	verr := &collbench.ConfigError{}
	if _, ok := params["nproc"]; !ok {
		verr.Add("params.nproc", "is required by generator '%s'", name)
	}
	for _, key := range req.gen.required() {
		if _, ok := params[key]; !ok {
			verr.Add("params."+key, "is required by generator '%s'", name)
		}
	}
	if verr.HasViolations() {
		return nil, verr
	}

	var md mapstructure.Metadata
	if err := util.WeakDecode(params, &req.common, util.DecodeOptions{Metadata: &md}); err != nil {
		return nil, collbench.NewConfigError("params", "decoding %s params: %s", name, err.Error())
	}
	specific := make(map[string]interface{}, len(md.Unused))
	for _, key := range md.Unused {
		specific[key] = params[key]
	}
	if err := util.WeakDecode(specific, req.gen, util.DecodeOptions{ErrorUnused: true}); err != nil {
		return nil, collbench.NewConfigError("params", "decoding %s params: %s", name, err.Error())
	}

	verr.AddWhen(req.common.NProc < collbench.MinProcesses, "params.nproc",
		"must be >= %d, got %d", collbench.MinProcesses, req.common.NProc)
	if f := req.common.Filename; f != "" {
		verr.AddWhen(filepath.Base(f) != f || f == "." || f == "..", "params.filename",
			"must be a file name without directories, got '%s'", f)
	}
	if err := req.gen.validate(); err != nil {
		verr.Add("params", "%s: %s", name, err.Error())
	}
	if verr.HasViolations() {
		return nil, verr
	}

	return req, nil
}

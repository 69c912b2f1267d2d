package bnsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// ScenarioCfg describes one experiment: the bottleneck link's shape,
// the congestion controller the client engine uses, and the span of
// virtual time simulated.  Serializable to yaml or json.
type ScenarioCfg struct {
	// name of experiment
	Name string `json:"name" yaml:"name"`

	// bottleneck emission rate, bytes per second
	Bandwidth float64 `json:"bandwidth" yaml:"bandwidth"`

	// propagation delay of the bottleneck, seconds
	Delay float64 `json:"delay" yaml:"delay"`

	// queue depth, seconds of buffering at the bottleneck rate
	Depth float64 `json:"depth" yaml:"depth"`

	// congestion controller name, resolved through the engine's registry
	CC string `json:"cc" yaml:"cc"`

	// virtual time origin and the seconds simulated past it
	StartTime float64 `json:"starttime" yaml:"starttime"`
	Horizon   float64 `json:"horizon" yaml:"horizon"`

	// optional output files; empty means not written
	TraceFile string `json:"tracefile" yaml:"tracefile"`
	StatsFile string `json:"statsfile" yaml:"statsfile"`
}

// DefaultScenarioCfg returns the canonical experiment: a 1 MB/s link
// with 100 ms of propagation delay and 100 ms of buffering, driven by
// reno for 50 seconds of virtual time
func DefaultScenarioCfg() *ScenarioCfg {
	cfg := new(ScenarioCfg)
	cfg.Name = "bottleneck"
	cfg.Bandwidth = 1e6
	cfg.Delay = 0.1
	cfg.Depth = 0.1
	cfg.CC = "reno"
	cfg.StartTime = 1000.0
	cfg.Horizon = 50.0
	return cfg
}

// Validate checks the numeric shape of the scenario.  Controller names
// are the engine's business and are checked where the engine is built.
func (cfg *ScenarioCfg) Validate() error {
	errs := make([]string, 0)
	if !(cfg.Bandwidth > 0.0) {
		errs = append(errs, fmt.Sprintf("bandwidth %v is not positive", cfg.Bandwidth))
	}
	if cfg.Delay < 0.0 {
		errs = append(errs, fmt.Sprintf("delay %v is negative", cfg.Delay))
	}
	if cfg.Depth < 0.0 {
		errs = append(errs, fmt.Sprintf("depth %v is negative", cfg.Depth))
	}
	if !(cfg.Horizon > 0.0) {
		errs = append(errs, fmt.Sprintf("horizon %v is not positive", cfg.Horizon))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// WriteToFile stores the ScenarioCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *ScenarioCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if slices.Contains([]string{".yaml", ".YAML", ".yml"}, pathExt) {
		bytes, merr = yaml.Marshal(*cfg)
	} else if slices.Contains([]string{".json", ".JSON"}, pathExt) {
		bytes, merr = json.MarshalIndent(*cfg, "", "\t")
	} else {
		return fmt.Errorf("scenario file %s has unrecognized extension", filename)
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return nil
}

// ReadScenarioCfg deserializes a byte slice holding a representation of
// a ScenarioCfg struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them.  Unset fields take
// the default scenario's values.
func ReadScenarioCfg(filename string, useYAML bool, dict []byte) (*ScenarioCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := *DefaultScenarioCfg()
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}
	return &example, nil
}

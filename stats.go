package bnsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// LinkStats accumulates per-queue counters and an occupancy sample at
// every event, for the post-run summary
type LinkStats struct {
	Enqueues int
	Drops    int
	Shifts   int

	occupancy []float64
}

func (ls *LinkStats) sample(queuedBytes float64) {
	ls.occupancy = append(ls.occupancy, queuedBytes)
}

// RunSummary is the post-run digest of one queue's behavior,
// serializable to yaml or json
type RunSummary struct {
	ExpName string `json:"expname" yaml:"expname"`

	Enqueues int `json:"enqueues" yaml:"enqueues"`
	Drops    int `json:"drops" yaml:"drops"`
	Shifts   int `json:"shifts" yaml:"shifts"`

	// fraction of arrivals dropped
	DropRate float64 `json:"droprate" yaml:"droprate"`

	// occupancy in bytes, over the per-event samples
	MeanOccupancy float64 `json:"meanoccupancy" yaml:"meanoccupancy"`
	PeakOccupancy float64 `json:"peakoccupancy" yaml:"peakoccupancy"`
	StdDev        float64 `json:"stddev" yaml:"stddev"`
	Median        float64 `json:"median" yaml:"median"`
	P90           float64 `json:"p90" yaml:"p90"`
	P99           float64 `json:"p99" yaml:"p99"`
}

// SummarizeRun digests a queue's gathered statistics.  Quantiles are
// empirical over the per-event occupancy samples.
func SummarizeRun(expName string, ls *LinkStats) *RunSummary {
	rs := new(RunSummary)
	rs.ExpName = expName
	rs.Enqueues = ls.Enqueues
	rs.Drops = ls.Drops
	rs.Shifts = ls.Shifts

	arrivals := ls.Enqueues + ls.Drops
	if arrivals > 0 {
		rs.DropRate = float64(ls.Drops) / float64(arrivals)
	}

	if len(ls.occupancy) == 0 {
		return rs
	}

	sorted := make([]float64, len(ls.occupancy))
	copy(sorted, ls.occupancy)
	slices.Sort(sorted)

	rs.MeanOccupancy = stat.Mean(sorted, nil)
	rs.PeakOccupancy = sorted[len(sorted)-1]
	rs.StdDev = stat.StdDev(sorted, nil)
	rs.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	rs.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	rs.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return rs
}

// WriteToFile stores the RunSummary struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (rs *RunSummary) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if slices.Contains([]string{".yaml", ".YAML", ".yml"}, pathExt) {
		bytes, merr = yaml.Marshal(*rs)
	} else if slices.Contains([]string{".json", ".JSON"}, pathExt) {
		bytes, merr = json.MarshalIndent(*rs, "", "\t")
	} else {
		return fmt.Errorf("summary file %s has unrecognized extension", filename)
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

package bnsim

import (
	"encoding/json"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

type TraceInst struct {
	TraceTime string
	TraceType string
	TraceStr  string
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string
	Type string
}

// TraceManager gathers information about a simulation model and an
// execution of that model, for post-run analysis
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, keyed by object id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace creates a record of the trace using its calling arguments, and stores it
func (tm *TraceManager) AddTrace(vrt vrtime.Time, objID int, trace TraceInst) {
	if !tm.InUse {
		return
	}

	_, present := tm.Traces[objID]
	if !present {
		tm.Traces[objID] = make([]TraceInst, 0)
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
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
	return true
}

// LinkTrace records one event at the bottleneck queue: a packet
// admitted, dropped, or emitted.  Saved for post-run analysis.
type LinkTrace struct {
	Time        float64 // time in float64
	Ticks       int64   // ticks variable of time
	Priority    int64   // priority field of time-stamp
	ObjID       int     // integer id for the queue being referenced
	Op          string  // "enqueue", "drop", "shift"
	QueuedBytes int     // bytes held by the queue when the record was made
}

func (lt *LinkTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*lt)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddLinkTrace creates a record of the trace using its calling arguments, and stores it
func AddLinkTrace(tm *TraceManager, vrt vrtime.Time, objID int, op string, queuedBytes int) {
	if !tm.Active() {
		return
	}
	lt := new(LinkTrace)
	lt.Time = vrt.Seconds()
	lt.Ticks = vrt.Ticks()
	lt.Priority = vrt.Pri()
	lt.ObjID = objID
	lt.Op = op
	lt.QueuedBytes = queuedBytes

	ltStr := lt.Serialize()
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)

	trcInst := TraceInst{TraceTime: traceTime, TraceType: "link", TraceStr: ltStr}
	tm.AddTrace(vrt, objID, trcInst)
}

package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/rolltune/internal/dynamo"
	"github.com/san-kum/rolltune/internal/experiment"
)

const (
	metadataFile  = "metadata.json"
	historyFile   = "history.csv"
	snapshotsFile = "snapshots.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Kind         string             `json:"kind"`
	Preset       string             `json:"preset,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Integrator   string             `json:"integrator"`
	Controller   string             `json:"controller"`
	Dt           float64            `json:"dt"`
	Duration     float64            `json:"duration"`
	SetpointDeg  float64            `json:"setpoint_deg"`
	Iterations   int                `json:"iterations"`
	InitialGains dynamo.GainVector  `json:"initial_gains"`
	FinalGains   dynamo.GainVector  `json:"final_gains"`
	Completed    int                `json:"completed"`
	Skipped      []int              `json:"skipped,omitempty"`
	Saturations  int                `json:"saturations"`
	Error        string             `json:"error,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// NewRunID returns a unique, sortable-by-prefix run identifier.
func NewRunID(kind string) string {
	return fmt.Sprintf("%s_%d_%s", kind, time.Now().Unix(), strings.SplitN(uuid.NewString(), "-", 2)[0])
}

// Create allocates a run directory and writes its initial metadata.
func (s *Store) Create(meta RunMetadata) (string, error) {
	if meta.ID == "" {
		meta.ID = NewRunID(meta.Kind)
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if err := os.MkdirAll(s.runDir(meta.ID), 0755); err != nil {
		return "", err
	}
	if err := s.writeMetadata(meta); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// Finish records the outcome of a tuning run: final gains in the metadata
// and one history row per iteration.
func (s *Store) Finish(runID string, res experiment.Result, runErr error) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	meta.FinalGains = res.Gains
	meta.Completed = res.Completed
	meta.Skipped = res.Skipped
	meta.Saturations = res.Saturations
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	if err := s.writeMetadata(*meta); err != nil {
		return err
	}

	skipped := make(map[int]bool, len(res.Skipped))
	for _, i := range res.Skipped {
		skipped[i] = true
	}

	rows := [][]string{{"iteration", "kp", "ki", "kd", "skipped"}}
	for i, g := range res.History {
		rows = append(rows, []string{
			strconv.Itoa(i), formatFloat(g.Kp), formatFloat(g.Ki), formatFloat(g.Kd), strconv.FormatBool(skipped[i]),
		})
	}
	rows = append(rows, []string{
		strconv.Itoa(len(res.History)), formatFloat(res.Gains.Kp), formatFloat(res.Gains.Ki), formatFloat(res.Gains.Kd), "final",
	})
	return writeCSV(filepath.Join(s.runDir(runID), historyFile), rows)
}

// SaveTrace writes a flight trace into the run directory.
func (s *Store) SaveTrace(runID string, iteration int, trace *dynamo.FlightTrace) error {
	rows := [][]string{{"time", "roll_rate", "velocity", "canard1", "canard2", "roll"}}
	for _, smp := range trace.Samples() {
		rows = append(rows, []string{
			formatFloat(smp.Time), formatFloat(smp.RollRate), formatFloat(smp.Velocity),
			formatFloat(smp.Canard1), formatFloat(smp.Canard2), formatFloat(smp.Roll),
		})
	}
	return writeCSV(filepath.Join(s.runDir(runID), traceFile(iteration)), rows)
}

// Reporter returns an experiment.Reporter that appends each snapshot to the
// run's snapshots.csv and stores its trace.
func (s *Store) Reporter(runID string) experiment.Reporter {
	return experiment.ReporterFunc(func(_ context.Context, snap experiment.Snapshot) error {
		path := filepath.Join(s.runDir(runID), snapshotsFile)
		_, statErr := os.Stat(path)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if os.IsNotExist(statErr) {
			if err := w.Write(snapshotHeader); err != nil {
				return err
			}
		}
		if err := w.Write(snapshotRow(snap)); err != nil {
			return err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}

		if snap.Trace != nil {
			return s.SaveTrace(runID, snap.Iteration, snap.Trace)
		}
		return nil
	})
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadHistory returns the gains flown at each iteration followed by the
// final gains.
func (s *Store) LoadHistory(runID string) ([]dynamo.GainVector, error) {
	records, err := readCSV(filepath.Join(s.runDir(runID), historyFile))
	if err != nil {
		return nil, err
	}

	history := make([]dynamo.GainVector, 0, len(records))
	for _, rec := range records {
		if len(rec) < 4 {
			continue
		}
		vals, err := parseFloats(rec[1:4])
		if err != nil {
			return nil, err
		}
		history = append(history, dynamo.GainVector{Kp: vals[0], Ki: vals[1], Kd: vals[2]})
	}
	return history, nil
}

func (s *Store) LoadTrace(runID string, iteration int) (*dynamo.FlightTrace, error) {
	records, err := readCSV(filepath.Join(s.runDir(runID), traceFile(iteration)))
	if err != nil {
		return nil, err
	}

	trace := dynamo.NewFlightTrace(len(records))
	for _, rec := range records {
		vals, err := parseFloats(rec)
		if err != nil {
			return nil, err
		}
		if len(vals) < 6 {
			continue
		}
		trace.Append(dynamo.Sample{
			Time: vals[0], RollRate: vals[1], Velocity: vals[2],
			Canard1: vals[3], Canard2: vals[4], Roll: vals[5],
		})
	}
	return trace, nil
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *Store) writeMetadata(meta RunMetadata) error {
	f, err := os.Create(filepath.Join(s.runDir(meta.ID), metadataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

var snapshotHeader = []string{"iteration", "kp", "ki", "kd", "overshoot_percent", "oscillations", "sse_percent", "saturations"}

func snapshotRow(s experiment.Snapshot) []string {
	return []string{
		strconv.Itoa(s.Iteration),
		formatFloat(s.Gains.Kp), formatFloat(s.Gains.Ki), formatFloat(s.Gains.Kd),
		formatFloat(s.OvershootPercent),
		strconv.Itoa(s.OscillationCount),
		formatFloat(s.SteadyStateErrorPercent),
		strconv.Itoa(s.Saturations),
	}
}

func traceFile(iteration int) string {
	return fmt.Sprintf("trace_%03d.csv", iteration)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

// readCSV returns every record after the header.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return [][]string{}, nil
	}
	return records[1:], nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

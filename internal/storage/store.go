// Package storage keeps headless runs on disk: a metadata.json, the scene
// that was played and a triggers.csv of every accepted collision.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/sim"
)

const (
	metadataFile = "metadata.json"
	triggersFile = "triggers.csv"
	sceneFile    = "scene.yaml"
)

var triggerHeader = []string{"time", "geometry", "voice", "midi", "note", "frequency", "intensity", "bound"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID        string             `json:"id"`
	Scene     string             `json:"scene"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Tempo     int                `json:"tempo"`
	Timbre    string             `json:"timbre"`
	Duration  float64            `json:"duration"`
	FPS       int                `json:"fps"`
	Frames    int                `json:"frames"`
	Triggers  int                `json:"triggers"`
	Metrics   map[string]float64 `json:"metrics"`
	Stats     sim.Stats          `json:"stats"`
}

func (s *Store) Save(cfg *config.Config, result *sim.Result) (string, error) {
	name := cfg.Scene.Name
	if name == "" {
		name = "scene"
	}
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", name, now.UnixMilli())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Scene:     name,
		Timestamp: now,
		Seed:      cfg.Sequencer.Seed,
		Tempo:     cfg.Scene.Tempo,
		Timbre:    cfg.Audio.Timbre,
		Duration:  cfg.Run.Duration,
		FPS:       cfg.Run.FPS,
		Frames:    result.Frames,
		Triggers:  len(result.Triggers),
		Metrics:   result.Metrics,
		Stats:     result.Stats,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	sceneData, err := yaml.Marshal(cfg.Scene)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, sceneFile), sceneData, 0644); err != nil {
		return "", err
	}

	if err := writeTriggers(filepath.Join(runDir, triggersFile), result.Triggers); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTriggers(path string, triggers []sim.TriggerRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(triggerHeader); err != nil {
		return err
	}
	for _, tr := range triggers {
		row := []string{
			strconv.FormatFloat(tr.Time, 'f', 6, 64),
			strconv.FormatUint(uint64(tr.Geometry), 10),
			strconv.Itoa(tr.Voice),
			strconv.Itoa(tr.Midi),
			tr.Note,
			strconv.FormatFloat(tr.Frequency, 'f', 3, 64),
			strconv.FormatFloat(tr.Intensity, 'f', 6, 64),
			strconv.FormatBool(tr.Bound),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
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

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadScene returns the scene a run was played with.
func (s *Store) LoadScene(runID string) (config.Scene, error) {
	return config.LoadScene(filepath.Join(s.baseDir, runID, sceneFile))
}

// LoadTriggers reads triggers.csv back. Malformed rows are skipped.
func (s *Store) LoadTriggers(runID string) ([]sim.TriggerRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, triggersFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.TriggerRecord{}, nil
	}

	out := make([]sim.TriggerRecord, 0, len(records)-1)
	for _, rec := range records[1:] {
		tr, ok := parseTrigger(rec)
		if !ok {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func parseTrigger(rec []string) (sim.TriggerRecord, bool) {
	if len(rec) != len(triggerHeader) {
		return sim.TriggerRecord{}, false
	}
	t, err1 := strconv.ParseFloat(rec[0], 64)
	geom, err2 := strconv.ParseUint(rec[1], 10, 32)
	v, err3 := strconv.Atoi(rec[2])
	midi, err4 := strconv.Atoi(rec[3])
	freq, err5 := strconv.ParseFloat(rec[5], 64)
	intensity, err6 := strconv.ParseFloat(rec[6], 64)
	bound, err7 := strconv.ParseBool(rec[7])
	for _, err := range []error{err1, err2, err3, err4, err5, err6, err7} {
		if err != nil {
			return sim.TriggerRecord{}, false
		}
	}
	return sim.TriggerRecord{
		Time:      t,
		Geometry:  dynamo.BodyID(geom),
		Voice:     v,
		Midi:      midi,
		Note:      rec[4],
		Frequency: freq,
		Intensity: intensity,
		Bound:     bound,
	}, true
}

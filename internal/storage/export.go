package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/sim"
)

type ExportData struct {
	Scene    config.Scene        `json:"scene"`
	Tempo    int                 `json:"tempo"`
	Duration float64             `json:"duration"`
	FPS      int                 `json:"fps"`
	Frames   int                 `json:"frames"`
	Triggers []sim.TriggerRecord `json:"triggers"`
	Steps    []sim.StepRecord    `json:"steps"`
	Metrics  map[string]float64  `json:"metrics"`
	Stats    sim.Stats           `json:"stats"`
}

func exportData(cfg *config.Config, result *sim.Result) ExportData {
	return ExportData{
		Scene:    cfg.Scene,
		Tempo:    cfg.Scene.Tempo,
		Duration: cfg.Run.Duration,
		FPS:      cfg.Run.FPS,
		Frames:   result.Frames,
		Triggers: result.Triggers,
		Steps:    result.Steps,
		Metrics:  result.Metrics,
		Stats:    result.Stats,
	}
}

func ExportJSON(path string, cfg *config.Config, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, cfg, result)
}

func WriteJSON(w io.Writer, cfg *config.Config, result *sim.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(cfg, result))
}

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/pitch"
	"github.com/your-org/pitchtrack/internal/threat"
)

func runHomography(args []string) error {
	fs := flag.NewFlagSet("homography", flag.ContinueOnError)
	points := fs.String("points", "", "CSV with columns image_x,image_y,pitch_x,pitch_y")
	out := fs.String("out", "", "YAML file to store the 3x3 homography")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "points", "out"); err != nil {
		return err
	}

	f, err := os.Open(*points)
	if err != nil {
		return err
	}
	defer f.Close()

	pairs, err := pitch.LoadPointPairs(f)
	if err != nil {
		return err
	}
	h, err := pitch.Estimate(pairs)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := h.Save(&buf); err != nil {
		return err
	}
	if err := writeFile(*out, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("homography saved", "out", *out, "points", len(pairs))
	return nil
}

func runWarp(args []string) error {
	fs := flag.NewFlagSet("warp", flag.ContinueOnError)
	tracksPath := fs.String("tracks", "", "JSON produced by the track command")
	hPath := fs.String("H", "", "YAML homography file")
	out := fs.String("out", "", "output CSV path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "tracks", "H", "out"); err != nil {
		return err
	}

	data, err := os.ReadFile(*tracksPath)
	if err != nil {
		return err
	}
	var tf models.TrackFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parse %s: %w", *tracksPath, err)
	}
	// Centroids are derived from the box; older files may not carry them.
	for i, r := range tf.Tracks {
		tf.Tracks[i] = models.NewTrackRecord(r.TrackID, r.FrameIndex, r.BBox, r.Score)
	}

	hf, err := os.Open(*hPath)
	if err != nil {
		return err
	}
	defer hf.Close()
	h, err := pitch.LoadHomography(hf)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := pitch.WriteSamplesCSV(&buf, h.ProjectRecords(tf.Tracks)); err != nil {
		return err
	}
	if err := writeFile(*out, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("projected coordinates saved", "out", *out, "records", len(tf.Tracks))
	return nil
}

func runXT(args []string) error {
	fs := flag.NewFlagSet("xt", flag.ContinueOnError)
	xyPath := fs.String("xy", "", "CSV with projected pitch coordinates")
	tablePath := fs.String("table", "", "CSV containing x_bin,y_bin,value columns")
	out := fs.String("out", "", "output CSV for per-track xT scores")
	length := fs.Float64("pitch-length", 105.0, "pitch length in meters")
	width := fs.Float64("pitch-width", 68.0, "pitch width in meters")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "xy", "table", "out"); err != nil {
		return err
	}

	xy, err := os.Open(*xyPath)
	if err != nil {
		return err
	}
	defer xy.Close()
	samples, err := pitch.ReadSamplesCSV(xy)
	if err != nil {
		return err
	}

	tf, err := os.Open(*tablePath)
	if err != nil {
		return err
	}
	defer tf.Close()
	table, err := threat.LoadTable(tf, *length, *width)
	if err != nil {
		return err
	}

	scores := threat.Compute(samples, table)

	var buf bytes.Buffer
	if err := threat.WriteScoresCSV(&buf, scores); err != nil {
		return err
	}
	if err := writeFile(*out, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("xT scores saved", "out", *out, "tracks", len(scores))
	return nil
}

package main

import (
	"compress/bzip2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

type model struct {
	Name string
	URL  string
}

// dlib models used by go-face, and the pigo cascade.
var models = []model{
	{
		Name: "shape_predictor_5_face_landmarks.dat",
		URL:  "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
	},
	{
		Name: "dlib_face_recognition_resnet_model_v1.dat",
		URL:  "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
	},
	{
		Name: "mmod_human_face_detector.dat",
		URL:  "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
	},
	{
		Name: "facefinder",
		URL:  "https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder",
	},
}

func cmdDownloadModels(args []string) error {
	modelDir := cfg.Detector.ModelPath
	if len(args) > 0 {
		modelDir = args[0]
	}

	logging.Infof("Downloading models to: %s", modelDir)

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, m := range models {
		targetPath := filepath.Join(modelDir, m.Name)
		if _, err := os.Stat(targetPath); err == nil {
			logging.Infof("Model %s already exists, skipping", m.Name)
			continue
		}

		logging.Infof("Downloading %s...", m.Name)
		if err := download(m.URL, targetPath); err != nil {
			return fmt.Errorf("failed to download %s: %w", m.Name, err)
		}
		logging.Infof("Successfully downloaded %s", m.Name)
	}

	logging.Info("All models downloaded successfully!")
	return nil
}

// download fetches url into targetPath, decompressing .bz2 payloads. The file
// is written under a temporary name and renamed once complete.
func download(url, targetPath string) error {
	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmpPath := targetPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	var src io.Reader = resp.Body
	if strings.HasSuffix(url, ".bz2") {
		src = bzip2.NewReader(resp.Body)
	}

	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, targetPath)
}

package embedding

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knights-analytics/hugot"
)

// modelCacheDir returns the directory models are downloaded into, under the
// user's cache directory so it survives across working directories.
func modelCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./models"
	}
	return filepath.Join(dir, "lorekeeper", "models")
}

// PrepareModel downloads modelName into the local model cache if it isn't
// already present, and returns the path to load it from.
func PrepareModel(modelName string) (string, error) {
	modelDir := modelCacheDir()
	slug := filepath.Base(modelName)
	// Mirror hugot's own naming: org_name-style directory under modelDir.
	modelPath := filepath.Join(modelDir, filepath.Dir(modelName)+"_"+slug)

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0o755); err != nil {
			return "", fmt.Errorf("create model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("download model %q: %w", modelName, err)
		}
		modelPath = downloadedPath
	}

	return modelPath, nil
}

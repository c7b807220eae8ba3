package main

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agriscan/internal/disease"
	"agriscan/internal/dto"
	"agriscan/internal/model"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.New(4, 4, color.NRGBA{0, 128, 0, 255})); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"))
	writePNG(t, filepath.Join(dir, "a.jpg")) // content wins over extension
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0644)
	os.Mkdir(filepath.Join(dir, "sub"), 0755)

	files, skipped, err := collectImages(dir)
	if err != nil {
		t.Fatalf("collectImages failed: %v", err)
	}
	if len(files) != 2 || skipped != 1 {
		t.Fatalf("Expected 2 images and 1 skipped, got %d and %d", len(files), skipped)
	}
	if files[0].Name != "a.jpg" || files[1].Name != "b.png" {
		t.Errorf("Expected name order, got %s, %s", files[0].Name, files[1].Name)
	}
}

func TestCollectImages_MissingDir(t *testing.T) {
	if _, _, err := collectImages(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestPrintDiseases_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := printDiseases(&buf, disease.Default().All(), "yaml"); err != nil {
		t.Fatalf("printDiseases failed: %v", err)
	}

	var entries []disease.Info
	if err := yaml.Unmarshal(buf.Bytes(), &entries); err != nil {
		t.Fatalf("Output is not valid YAML: %v", err)
	}
	if len(entries) != disease.Default().Len() {
		t.Errorf("Expected %d entries, got %d", disease.Default().Len(), len(entries))
	}
}

func TestPrintDiseases_UnknownFormat(t *testing.T) {
	if err := printDiseases(&bytes.Buffer{}, nil, "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, &dto.Stats{
		ImageStats: model.ImageStats{TotalImages: 3, AnalyzedImages: 2, PendingImages: 1},
		TotalSize:  "1.2 MB",
		MainCounts: map[string]int{"Late Blight": 2},
	})

	out := buf.String()
	for _, want := range []string{"Total images: 3 (1.2 MB)", "Pending: 1", "Late Blight: 2 images"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output should contain %q, got:\n%s", want, out)
		}
	}
}

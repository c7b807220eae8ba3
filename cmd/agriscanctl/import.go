package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agriscan/internal/model"
	"agriscan/internal/service/upload"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var importDir string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Upload every image file in a directory",
	Long: `Upload every image file in --dir through the same encode and store
pipeline the web upload uses. Files are detected by content, not extension.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", ".", "directory with images")
}

func runImport(cmd *cobra.Command, args []string) error {
	files, skipped, err := collectImages(importDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No images found in %s\n", importDir)
		return nil
	}

	mng, closeAll, err := openManager()
	if err != nil {
		return err
	}
	defer closeAll()

	out := cmd.OutOrStdout()
	reported := make(map[string]model.UploadStatus)
	mng.GetUploadTracker().OnChange(func(progress []model.UploadProgress) {
		for _, p := range progress {
			key := p.FileName
			if !p.Terminal() || reported[key] == p.Status {
				continue
			}
			reported[key] = p.Status
			if p.Status == model.UploadError {
				fmt.Fprintf(out, "❌ %s: %s\n", p.FileName, p.Error)
			} else {
				fmt.Fprintf(out, "✅ %s\n", p.FileName)
			}
		}
	})

	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}
	fmt.Fprintf(out, "Importing %d images (%s) from %s\n", len(files), humanize.Bytes(uint64(total)), importDir)

	result, err := mng.GetUploadTracker().Run(cmd.Context(), files)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Imported %d images, %d failed\n", len(result.Created), result.Failed)
	if skipped > 0 {
		fmt.Fprintf(out, "⚠️  Skipped %d non-image files\n", skipped)
	}
	return nil
}

// collectImages reads the image files of dir in name order. Subdirectories
// are ignored and non-image files are counted as skipped.
func collectImages(dir string) ([]upload.File, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []upload.File
	skipped := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := readFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, 0, err
		}
		if !strings.HasPrefix(http.DetectContentType(data), "image/") {
			skipped++
			continue
		}
		files = append(files, upload.File{Name: e.Name(), Data: data})
	}
	return files, skipped, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

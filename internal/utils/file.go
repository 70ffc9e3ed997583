package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Output name prefixes
const (
	CroppedPrefix = "cropped_"
	NoFacePrefix  = "noface_"
	DebugPrefix   = "debug_"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot, lower-cased
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile reports whether a file has one of the accepted input extensions
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png":
		return true
	}
	return false
}

// PrefixedName returns outputDir/prefix+base(inputFile), keeping the
// original extension and its case
func PrefixedName(inputFile, outputDir, prefix string) string {
	return filepath.Join(outputDir, prefix+filepath.Base(inputFile))
}

// DebugName returns the overlay path for inputFile: debug_<stem>.<ext>
func DebugName(inputFile, outputDir, ext string) string {
	baseName := filepath.Base(inputFile)
	stem := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	if ext == "" {
		ext = "png"
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s%s.%s", DebugPrefix, stem, strings.ToLower(ext)))
}

// ListImageFiles lists the regular image files directly inside dir,
// including symlinks to them, sorted by name. Subdirectories are not
// descended into.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !IsImageFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if entry.Type()&os.ModeSymlink != 0 {
			// follow links; dangling ones and links to directories are skipped
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		} else if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)

	return files, nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

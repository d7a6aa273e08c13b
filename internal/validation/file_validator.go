// Package validation checks input and output paths before a load touches
// them.
package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileValidator provides file checks shared by the loader commands
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateFile checks that path exists, is a regular file and is readable
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file", slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateSourceFile checks an event file for the given source kind. A
// SQLite database must already exist; opening a missing one would create
// an empty database.
func (v *FileValidator) ValidateSourceFile(kind, path string) error {
	switch kind {
	case "csv":
		return v.validateExtension(path, ".csv", ".txt")
	case "xlsx":
		if err := v.validateExtension(path, ".xlsx", ".xlsm"); err != nil {
			return err
		}
		if strings.HasPrefix(filepath.Base(path), "~$") {
			v.logger.Warn("Refusing temporary Excel file", slog.String("file", path))
			return fmt.Errorf("file %s is a temporary Excel file", path)
		}
		return nil
	case "sqlite":
		return v.ValidateFile(path)
	}
	return fmt.Errorf("source kind %q is not file based", kind)
}

// ValidateOutputDirectory creates dir if needed and checks it is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)
	return nil
}

func (v *FileValidator) validateExtension(path string, allowed ...string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	v.logger.Error("Unexpected file extension",
		slog.String("file", path),
		slog.String("extension", ext))
	return fmt.Errorf("file %s has extension %q, want one of %s", path, ext, strings.Join(allowed, ", "))
}

package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/clinicdesk/patientkeeper/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml, most specific first.
// When a config.yaml exists in one of them, that directory alone is returned.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case osWindows:
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		configPaths = []string{
			filepath.Dir(exePath),
			filepath.Join(homeDir, "AppData", "Roaming", "patientkeeper"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "patientkeeper"),
			"/etc/patientkeeper",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// moveFile renames src to dst, falling back to copy and delete across filesystems
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	srcFile, err := os.Open(src) //nolint:gosec // temp file created by this package
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // operator-chosen config path
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("error copying file: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("error closing destination file: %w", err)
	}

	return os.Remove(src)
}

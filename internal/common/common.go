package common

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger = logrus.StandardLogger()

// AssertPathExists returns nil only if it has been successfully
// verified that all specified paths exists.
func AssertPathExists(paths ...string) error {
	for _, p := range paths {
		exist, err := PathExists(p)
		if err != nil {
			return err
		}
		if !exist {
			return errors.Errorf("Path %s does not exist", p)
		}
	}
	return nil
}

// PathExists checks if the specified path exists.
func PathExists(path string) (bool, error) {
	_, exists, err := Stat(path)
	return exists, err
}

func Stat(path string) (os.FileInfo, bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info, true, nil
	}
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	return nil, false, err
}

// AssertDirectory returns an error if path does not exist or is not a directory.
func AssertDirectory(path string) error {
	info, exists, err := Stat(path)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("Path %s does not exist", path)
	}
	if !info.IsDir() {
		return errors.Errorf("Path %s is not a directory", path)
	}
	return nil
}

// ListFiles returns the regular files directly inside dir whose name ends in ext, in
// lexical order of their names. Subdirectories and hidden files are not included.
// A directory that does not exist yields an empty list and no error.
func ListFiles(dir, ext string) ([]string, error) {
	info, exists, err := Stat(dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}

	// ReadDir sorts its entries by name, which fixes the order in which callers process files
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) || entry.IsDir() {
			continue
		}
		file := filepath.Join(dir, name)
		// Unstattable entries (e.g. broken symlinks) are kept so the reader reports them
		if stat, err := os.Stat(file); err == nil && !stat.Mode().IsRegular() {
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

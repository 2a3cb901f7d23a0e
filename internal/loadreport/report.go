// Package loadreport records the outcome of a directory scan file by file, so that callers
// and tests can see which files were used, which were skipped and why, and which entries
// overwrote earlier ones.
package loadreport

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Skip describes a file that was not used, and the reason why.
type Skip struct {
	File   string
	Reason error
}

func (s Skip) Error() string {
	return fmt.Sprintf("%s: %v", s.File, s.Reason)
}

func (s Skip) Unwrap() error {
	return s.Reason
}

// Collision describes an entry that was overwritten by an entry with the same key from a
// file processed later.
type Collision struct {
	Key          string
	PreviousFile string
	File         string
}

// Report aggregates per-file results of a single scan. The zero value is ready for use.
type Report struct {
	Directory  string
	Loaded     []string
	Skipped    []Skip
	Collisions []Collision
}

func New(dir string) *Report {
	return &Report{Directory: dir}
}

func (r *Report) AddLoaded(file string) {
	r.Loaded = append(r.Loaded, file)
}

func (r *Report) AddSkipped(file string, reason error) {
	r.Skipped = append(r.Skipped, Skip{File: file, Reason: reason})
}

func (r *Report) AddCollision(key, previousFile, file string) {
	r.Collisions = append(r.Collisions, Collision{Key: key, PreviousFile: previousFile, File: file})
}

// Err returns all skip reasons combined into one error, or nil if nothing was skipped.
// A non-nil Err does not mean the scan failed; it lists what was left out.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, s := range r.Skipped {
		result = multierror.Append(result, s)
	}
	return result.ErrorOrNil()
}

// SkippedFiles returns the names of the skipped files in sorted order.
func (r *Report) SkippedFiles() []string {
	files := make([]string, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		files = append(files, s.File)
	}
	sort.Strings(files)
	return files
}

// Fields returns a summary of the report suitable for structured logging.
func (r *Report) Fields() logrus.Fields {
	return logrus.Fields{
		"directory":  r.Directory,
		"loaded":     len(r.Loaded),
		"skipped":    len(r.Skipped),
		"collisions": len(r.Collisions),
	}
}

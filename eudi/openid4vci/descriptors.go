package openid4vci

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/privacybydesign/pidissuer/internal/common"
	"github.com/privacybydesign/pidissuer/internal/loadreport"
	"github.com/sirupsen/logrus"
)

const JsonExtension = ".json"

var (
	ErrNotAnObject = errors.New("credential descriptor file does not contain a JSON object")
	ErrInvalidUTF8 = errors.New("credential descriptor file is not valid UTF-8")
)

// Descriptors maps credential configuration ids to their descriptor, which is kept as the
// raw JSON read from disk.
type Descriptors map[string]json.RawMessage

// LoadDescriptors reads every JSON file in dir and merges their top-level members into one
// set of descriptors. Files are merged in lexical order of their names; when two files
// define the same id the later file wins. Unreadable or malformed files are skipped, logged
// and recorded in the returned report.
func LoadDescriptors(dir string, logger *logrus.Logger) (Descriptors, *loadreport.Report) {
	report := loadreport.New(dir)
	log := logger.WithField("directory", dir)
	descriptors := Descriptors{}
	origins := map[string]string{}

	files, err := common.ListFiles(dir, JsonExtension)
	if err != nil {
		log.Warnf("cannot list credential descriptor directory: %v", err)
		return descriptors, report
	}
	if len(files) == 0 {
		log.Warn("no credential descriptors found")
	}

	for _, file := range files {
		name := filepath.Base(file)
		entries, err := readDescriptorFile(file)
		if err != nil {
			log.WithField("file", name).Warnf("skipping credential descriptor file: %v", err)
			report.AddSkipped(name, err)
			continue
		}

		// Map iteration order is random, so merge the ids of a single file in sorted order
		// to keep log output stable
		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			if previous, ok := origins[id]; ok {
				log.WithFields(logrus.Fields{
					"id":       id,
					"previous": previous,
					"file":     name,
				}).Warn("duplicate credential configuration id, the later file replaces the earlier one")
				report.AddCollision(id, previous, name)
			}
			descriptors[id] = entries[id]
			origins[id] = name
		}

		log.WithFields(logrus.Fields{"file": name, "configurations": len(ids)}).Debug("loaded credential descriptors")
		report.AddLoaded(name)
	}

	return descriptors, report
}

func readDescriptorFile(file string) (map[string]json.RawMessage, error) {
	bts, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	// Invalid bytes inside raw members pass json.Unmarshal and would be served as is
	if !utf8.Valid(bts) {
		return nil, ErrInvalidUTF8
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(bts, &entries); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: found %s", ErrNotAnObject, typeErr.Value)
		}
		return nil, err
	}
	// null decodes into a nil map without error
	if entries == nil {
		return nil, fmt.Errorf("%w: found null", ErrNotAnObject)
	}
	return entries, nil
}

// IDs returns the credential configuration ids in sorted order.
func (d Descriptors) IDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Formats returns the format member of each descriptor that has one. Descriptors are not
// otherwise validated.
func (d Descriptors) Formats() map[string]CredentialFormatIdentifier {
	formats := make(map[string]CredentialFormatIdentifier, len(d))
	for id, raw := range d {
		var descriptor struct {
			Format CredentialFormatIdentifier `json:"format"`
		}
		if err := json.Unmarshal(raw, &descriptor); err != nil || descriptor.Format == "" {
			continue
		}
		formats[id] = descriptor.Format
	}
	return formats
}

// Lint logs descriptors without a format or with a format unknown to OpenID4VCI. It does
// not change the descriptors.
func (d Descriptors) Lint(logger *logrus.Logger) {
	formats := d.Formats()
	for _, id := range d.IDs() {
		format, ok := formats[id]
		switch {
		case !ok:
			logger.WithField("id", id).Debug("credential descriptor has no format")
		case !format.Known():
			logger.WithFields(logrus.Fields{"id": id, "format": format}).Debug("credential descriptor has an unknown format")
		}
	}
}

// Clone returns a copy of d that shares no state with it.
func (d Descriptors) Clone() Descriptors {
	clone := make(Descriptors, len(d))
	for id, raw := range d {
		clone[id] = append(json.RawMessage(nil), raw...)
	}
	return clone
}

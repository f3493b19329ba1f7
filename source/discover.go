// Package source finds DAS source files for one acquisition day and reads
// their sample matrices.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoFiles is returned when the day directory holds no source files
	ErrNoFiles = errors.New("no source files found")
	// ErrBadFilename is returned for a source file without a _HHMMSS. timestamp
	ErrBadFilename = errors.New("file name has no _HHMMSS. timestamp")
)

// e.g. rhone1khz_UTC_20200719_000030.000.zarr
var timestampPattern = regexp.MustCompile(`_(\d{2})(\d{2})(\d{2})\.`)

// Entry is one discovered source file
type Entry struct {
	Index  int
	Path   string
	Offset time.Duration // time of day encoded in the file name
	Start  time.Time     // acquisition day + Offset
}

// Name returns the file name without its directory
func (e Entry) Name() string {
	return filepath.Base(e.Path)
}

// DayDir returns <root>/YYYYMMDD for the given date
func DayDir(root string, date time.Time) string {
	return filepath.Join(root, date.Format("20060102"))
}

// ParseTimeOfDay decodes the _HHMMSS. timestamp embedded in a file name
func ParseTimeOfDay(name string) (time.Duration, error) {
	m := timestampPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%s: %w", name, ErrBadFilename)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	if h > 23 || mi > 59 || s > 59 {
		return 0, fmt.Errorf("%s: time %s:%s:%s out of range: %w", name, m[1], m[2], m[3], ErrBadFilename)
	}
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(s)*time.Second, nil
}

// Discover lists the files in dir whose name ends in ext and orders them
// chronologically by their file-name timestamp. Files with equal
// timestamps are ordered by name. Every candidate must carry a timestamp.
func Discover(dir string, date time.Time, ext string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	var entries []Entry
	for _, item := range items {
		name := item.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		offset, err := ParseTimeOfDay(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Path:   filepath.Join(dir, name),
			Offset: offset,
			Start:  day.Add(offset),
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s (*%s): %w", dir, ext, ErrNoFiles)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Offset != entries[j].Offset {
			return entries[i].Offset < entries[j].Offset
		}
		return entries[i].Path < entries[j].Path
	})
	for i := range entries {
		entries[i].Index = i
	}
	return entries, nil
}

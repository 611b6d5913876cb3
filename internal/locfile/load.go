package locfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format names a supported location file format.
type Format string

const (
	FormatGeoJSON  Format = "geojson"
	FormatTimeline Format = "timeline"
)

type loadError string

func (e loadError) Error() string { return string(e) }

// ErrUnknownFormat is returned when a file's format cannot be determined.
const ErrUnknownFormat = loadError("unknown location file format")

// sniffSize is how much of a file DetectFormat looks at.
const sniffSize = 4096

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatGeoJSON, FormatTimeline:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat guesses the format from the file name and its first bytes.
func DetectFormat(name string, head []byte) (Format, error) {
	if strings.EqualFold(filepath.Ext(name), ".geojson") {
		return FormatGeoJSON, nil
	}
	switch {
	case bytes.Contains(head, []byte(`"rawSignals"`)):
		return FormatTimeline, nil
	case bytes.Contains(head, []byte(`"FeatureCollection"`)):
		return FormatGeoJSON, nil
	}
	return "", ErrUnknownFormat
}

// Load parses r in the given format.
func Load(r io.Reader, format Format, opts LoadOptions) ([]Location, LoadStats, error) {
	switch format {
	case FormatGeoJSON:
		return ReadGeoJSON(r, opts)
	case FormatTimeline:
		timeline, err := ParseTimeline(r)
		if err != nil {
			return nil, LoadStats{}, err
		}
		locations, stats := ExtractLocations(timeline, opts)
		return locations, stats, nil
	}
	return nil, LoadStats{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// LoadFile opens path and loads it, detecting the format when format is
// empty.
func LoadFile(path string, format Format, opts LoadOptions) ([]Location, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if format == "" {
		format, r, err = Sniff(path, f)
		if err != nil {
			return nil, LoadStats{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return Load(r, format, opts)
}

// Sniff detects the format of r without consuming it. Read the returned
// reader instead of r afterwards.
func Sniff(name string, r io.Reader) (Format, io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", br, fmt.Errorf("failed to read: %w", err)
	}
	format, err := DetectFormat(name, head)
	return format, br, err
}

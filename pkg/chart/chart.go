// Package chart turns stored run files into plot-ready datasets.
package chart

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// MaxFiles is the maximum number of runs plotted together.
const MaxFiles = 10

var (
	ErrMissingBody      = errors.New("missing body")
	ErrInvalidJSON      = errors.New("invalid JSON")
	ErrInvalidFileCount = errors.New("invalid file count")
)

// Reader returns the content of a stored run file.
type Reader interface {
	Read(name string) ([]byte, error)
}

// Point is one [timestamp_ms, thrust_grams] pair.
type Point [2]float64

// Dataset is the series of one run file.
type Dataset struct {
	Name string  `json:"name"`
	Data []Point `json:"data"`
}

// Data is the chart payload.
type Data struct {
	Datasets []Dataset `json:"datasets"`
}

// Request is the JSON body accepted by GenerateJSON.
type Request struct {
	Files []string `json:"files"`
}

// Generate reads each file and returns one dataset per readable file.
// Unreadable files are skipped. When maxPoints > 0 each dataset is
// decimated to at most maxPoints points.
func Generate(r Reader, files []string, maxPoints int) (Data, error) {
	if len(files) == 0 || len(files) > MaxFiles {
		return Data{}, ErrInvalidFileCount
	}

	out := Data{Datasets: make([]Dataset, 0, len(files))}
	for _, name := range files {
		content, err := r.Read(name)
		if err != nil {
			log.Printf("Failed to open file: %s", name)
			continue
		}

		points := parse(content)
		if maxPoints > 0 {
			points = Decimate(nil, points, maxPoints)
		}
		out.Datasets = append(out.Datasets, Dataset{Name: name, Data: points})
	}
	return out, nil
}

// GenerateJSON parses a {"files": [...]} body and returns the chart as JSON.
func GenerateJSON(r Reader, body []byte, maxPoints int) ([]byte, error) {
	if len(body) == 0 {
		return nil, ErrMissingBody
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	data, err := Generate(r, req.Files, maxPoints)
	if err != nil {
		return nil, err
	}
	return json.Marshal(data)
}

// parse reads "timestamp,thrust" rows after the header. Malformed rows are skipped.
func parse(content []byte) []Point {
	cr := csv.NewReader(bytes.NewReader(content))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	points := make([]Point, 0)
	header := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if header {
			header = false
			continue
		}
		if len(rec) < 2 {
			continue
		}
		ts, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			continue
		}
		thrust, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			continue
		}
		points = append(points, Point{ts, thrust})
	}
	return points
}

// Decimate reduces points to at most maxPoints by uniform decimation.
// dst is reused when it has enough capacity.
func Decimate(dst []Point, points []Point, maxPoints int) []Point {
	if len(points) <= maxPoints {
		if cap(dst) >= len(points) {
			dst = dst[:len(points)]
			copy(dst, points)
			return dst
		}
		result := make([]Point, len(points))
		copy(result, points)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Point, 0, maxPoints)
	}

	step := float64(len(points)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(points) {
			dst = append(dst, points[idx])
		}
	}
	return dst
}

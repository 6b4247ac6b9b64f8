// Package sleuth reads the Sleuth/GingerALE text interchange format:
// a reference-space declaration, then per-experiment blocks of annotated
// peak coordinates.
//
//	// Reference=MNI
//	// Smith et al., 2019: Working memory
//	// Subjects=24
//	-38  44  20
//	  6 -12  54
//
//	// Jones, 2020: Verbal fluency
//	// Subjects=18
//	...
package sleuth

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"

	"github.com/Remi-Gau/NiMARE/dataset"
)

// File is the parsed contents of one Sleuth text file.
type File struct {
	// Space is the declared reference space, e.g. "MNI" or "Talairach".
	Space   string
	Studies []dataset.Study
}

// Read parses a Sleuth text file from disk.
func Read(fileName string) (File, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return File{}, err
	}
	defer f.Close()

	out, err := parse(bufio.NewScanner(f))
	if err != nil {
		return File{}, pfx.Err(fmt.Errorf("%s: %w", fileName, err))
	}

	return out, nil
}

func parse(sc *bufio.Scanner) (File, error) {
	var out File
	var cur *dataset.Study

	flush := func() {
		if cur != nil && (len(cur.Foci) > 0 || cur.ID != "") {
			out.Studies = append(out.Studies, *cur)
		}
		cur = nil
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())

		if line == "" {
			flush()
			continue
		}

		if strings.HasPrefix(line, "//") {
			ann := strings.TrimSpace(strings.TrimPrefix(line, "//"))
			if ann == "" {
				continue
			}

			switch {
			case strings.HasPrefix(strings.ToLower(ann), "reference="):
				out.Space = strings.TrimSpace(ann[len("reference="):])
			case strings.HasPrefix(strings.ToLower(ann), "subjects="):
				if cur == nil {
					return File{}, fmt.Errorf("line %d: Subjects annotation outside a study block", lineNo)
				}
				n, err := strconv.Atoi(strings.TrimSpace(ann[len("subjects="):]))
				if err != nil {
					return File{}, fmt.Errorf("line %d: bad Subjects value: %w", lineNo, err)
				}
				cur.SampleSize = n
			default:
				// A study name line. Consecutive name lines before any
				// coordinates describe the same experiment.
				if cur == nil || len(cur.Foci) > 0 {
					flush()
					cur = &dataset.Study{ID: ann}
				} else if cur.ID == "" {
					cur.ID = ann
				} else {
					cur.ID += "; " + ann
				}
			}

			continue
		}

		if cur == nil {
			return File{}, fmt.Errorf("line %d: coordinates before any study annotation", lineNo)
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return File{}, fmt.Errorf("line %d: expected 3 coordinates, got %d fields", lineNo, len(fields))
		}

		var focus [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return File{}, fmt.Errorf("line %d: bad coordinate %q: %w", lineNo, fields[i], err)
			}
			focus[i] = v
		}
		cur.Foci = append(cur.Foci, focus)
	}
	if err := sc.Err(); err != nil {
		return File{}, err
	}
	flush()

	if len(out.Studies) == 0 {
		return File{}, fmt.Errorf("no studies found")
	}

	return out, nil
}

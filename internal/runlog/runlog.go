package runlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/park285/humantune/internal/tuner"
)

// Writer persists the three parallel per-step series of a tuning session as
// append-only tab-delimited tables: the parameter vector, the loss, and the
// binary prediction-correctness flag. External plotting tooling consumes the
// files directly.
type Writer struct {
	params *series
	loss   *series
	acc    *series
}

type series struct {
	f *os.File
	w *bufio.Writer
}

const (
	paramsFile = "params.tsv"
	lossFile   = "loss.tsv"
	accFile    = "accuracy.tsv"
)

// NewWriter creates (or appends to) the series files under dir.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	w := &Writer{}
	var err error
	if w.params, err = openSeries(filepath.Join(dir, paramsFile), paramsHeader()); err != nil {
		return nil, err
	}
	if w.loss, err = openSeries(filepath.Join(dir, lossFile), "step\tloss"); err != nil {
		w.Close()
		return nil, err
	}
	if w.acc, err = openSeries(filepath.Join(dir, accFile), "step\tcorrect"); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func paramsHeader() string {
	cols := make([]string, 0, tuner.NumParams+1)
	cols = append(cols, "step")
	for _, f := range tuner.Fields {
		cols = append(cols, f.Name)
	}
	return strings.Join(cols, "\t")
}

func openSeries(path, header string) (*series, error) {
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &series{f: f, w: bufio.NewWriter(f)}
	if fresh {
		if _, err := s.w.WriteString(header + "\n"); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Append writes one step record to all three series.
func (w *Writer) Append(rec tuner.StepRecord) error {
	cols := make([]string, 0, tuner.NumParams+1)
	cols = append(cols, strconv.Itoa(rec.Step))
	for _, v := range rec.Params {
		cols = append(cols, strconv.FormatFloat(v, 'g', -1, 64))
	}
	if _, err := w.params.w.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
		return err
	}

	line := fmt.Sprintf("%d\t%s\n", rec.Step, strconv.FormatFloat(rec.Loss, 'g', -1, 64))
	if _, err := w.loss.w.WriteString(line); err != nil {
		return err
	}

	correct := 0
	if rec.Correct {
		correct = 1
	}
	if _, err := fmt.Fprintf(w.acc.w, "%d\t%d\n", rec.Step, correct); err != nil {
		return err
	}
	return nil
}

// Flush pushes buffered rows to disk.
func (w *Writer) Flush() error {
	var errs []error
	for _, s := range w.all() {
		if s != nil {
			if err := s.w.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes the series files.
func (w *Writer) Close() error {
	var errs []error
	for _, s := range w.all() {
		if s == nil {
			continue
		}
		if err := s.w.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := s.f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Writer) all() []*series {
	return []*series{w.params, w.loss, w.acc}
}

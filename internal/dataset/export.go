package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

type ExportData struct {
	Session Session             `json:"session"`
	Fields  map[string][]Record `json:"fields"`
}

// ExportJSON writes a session with all its samples as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer, sessionID string) error {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	data := ExportData{Session: sess, Fields: make(map[string][]Record, len(sess.Fields))}
	for _, f := range sess.Fields {
		recs, err := s.Samples(ctx, sess.ID, f.Name)
		if err != nil {
			return err
		}
		data.Fields[f.Name] = recs
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV writes one row per step: the step followed by the flattened
// values of the field.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, sessionID, field string) error {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	var spec *FieldSpec
	for i := range sess.Fields {
		if sess.Fields[i].Name == field {
			spec = &sess.Fields[i]
		}
	}
	if spec == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	recs, err := s.Samples(ctx, sess.ID, field)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"step"}
	for i := 0; i < spec.Len(); i++ {
		header = append(header, fmt.Sprintf("%s%d", field, i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range recs {
		row := []string{strconv.Itoa(rec.Step)}
		for _, v := range rec.Data {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MeanNorms reduces every record of a Nodes x 3 field to the mean norm of
// its rows, the per-step series plotted by the CLI.
func MeanNorms(recs []Record) []float64 {
	out := make([]float64, len(recs))
	for i, rec := range recs {
		out[i] = MeanNorm(rec.Data)
	}
	return out
}

func MeanNorm(data []float64) float64 {
	n := len(data) / 3
	if n == 0 {
		return 0
	}
	norms := make([]float64, n)
	for i := range norms {
		v := data[3*i : 3*i+3]
		norms[i] = math.Sqrt(floats.Dot(v, v))
	}
	return floats.Sum(norms) / float64(n)
}

package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "dataset.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func beamSession() Session {
	return Session{
		Environment:   "BeamTraining",
		InstanceID:    1,
		InstanceCount: 2,
		Mode:          "direct",
		Encoding:      "first-set",
		OutputFill:    "rest",
		Fields: []FieldSpec{
			{Name: "input", Shape: []int{2, 3}},
			{Name: "ground_truth", Shape: []int{2, 3}},
		},
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.BeginSession(ctx, beamSession())
	require.NoError(t, err)
	require.Len(t, id, 36)

	for step := 1; step <= 3; step++ {
		v := float64(step)
		require.NoError(t, s.AddSample(ctx, id, step, map[string][]float64{
			"input":        {0, -v, 0, 0, 0, 0},
			"ground_truth": {v, 0, 0, 0, 0, 0},
		}))
	}
	require.NoError(t, s.EndSession(ctx, id))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	sess := sessions[0]
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, "BeamTraining", sess.Environment)
	assert.Equal(t, 3, sess.Samples)
	assert.Equal(t, "first-set", sess.Encoding)
	assert.Equal(t, "rest", sess.OutputFill)
	assert.Equal(t, beamSession().Fields, sess.Fields)
	require.NotNil(t, sess.EndedAt)
	assert.False(t, sess.EndedAt.Before(sess.StartedAt))

	recs, err := s.Samples(ctx, id, "ground_truth")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 2, recs[1].Step)
	assert.Equal(t, []float64{2, 0, 0, 0, 0, 0}, recs[1].Data)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	byPrefix, err := s.Session(ctx, id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, byPrefix.ID)
}

func TestAddSampleValidation(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	id, err := s.BeginSession(ctx, beamSession())
	require.NoError(t, err)

	err = s.AddSample(ctx, id, 1, map[string][]float64{"input": {1, 2}})
	assert.ErrorIs(t, err, ErrFieldShape)

	err = s.AddSample(ctx, id, 1, map[string][]float64{"force": make([]float64, 6)})
	assert.ErrorIs(t, err, ErrUnknownField)

	err = s.AddSample(ctx, "missing", 1, map[string][]float64{"input": make([]float64, 6)})
	assert.ErrorIs(t, err, ErrUnknownSession)

	assert.ErrorIs(t, s.EndSession(ctx, "missing"), ErrUnknownSession)
	_, err = s.Session(ctx, "zzz")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	id, err := s.BeginSession(ctx, beamSession())
	require.NoError(t, err)
	require.NoError(t, s.AddSample(ctx, id, 5, map[string][]float64{
		"input":        {0, -1, 0, 0, 0, 0},
		"ground_truth": {0.5, 0, 0, 0, 0, 0},
	}))

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(ctx, &buf, id, "input"))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "step", rows[0][0])
	assert.Len(t, rows[0], 7)
	assert.Equal(t, []string{"5", "0", "-1", "0", "0", "0", "0"}, rows[1])

	assert.ErrorIs(t, s.ExportCSV(ctx, &buf, id, "force"), ErrUnknownField)

	buf.Reset()
	require.NoError(t, s.ExportJSON(ctx, &buf, id))
	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, id, data.Session.ID)
	require.Len(t, data.Fields["ground_truth"], 1)
	assert.Equal(t, 0.5, data.Fields["ground_truth"][0].Data[0])
}

func TestMeanNorm(t *testing.T) {
	assert.InDelta(t, 3.0, MeanNorm([]float64{3, 4, 0, 0, 0, 1}), 1e-12)
	assert.Equal(t, 0.0, MeanNorm(nil))
	assert.Equal(t, []float64{1, 2}, MeanNorms([]Record{{Data: []float64{1, 0, 0}}, {Data: []float64{0, 0, 2}}}))
}

package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"dev.csaopt.io/csaopt/internal/core/domain"
	"dev.csaopt.io/csaopt/internal/core/domain/job"
)

func TestProtocolKeys(t *testing.T) {
	require.Equal(t, "csaopt:model:q1", modelKey("q1"))
	require.Equal(t, "csaopt:ack:q1", ackKey("q1"))
	require.Equal(t, "csaopt:jobs:q1", jobsKey("q1"))
	require.Equal(t, "csaopt:results:j1", resultsKey("j1"))
}

func TestEncodeModelRoundTrip(t *testing.T) {
	functions := make(map[string]string)
	for _, fn := range domain.RequiredFunctions() {
		functions[fn] = "def " + fn + "(): pass"
	}
	m := &domain.Model{
		Name:         "langermann",
		Dimensions:   2,
		Precision:    domain.Float32,
		Distribution: domain.Normal,
		Objective:    domain.Maximize,
		Functions:    functions,
	}

	raw, err := encodeModel(m)
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &flat))

	got, err := domain.ModelFromMap(flat)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestEncodeJobCarriesSpec(t *testing.T) {
	j := job.New("rastrigin", "q1", job.Sweep, map[string]float64{"temp": 0.5})

	raw, err := encodeJob(j)
	require.NoError(t, err)

	var p jobPayload
	require.NoError(t, json.Unmarshal(raw, &p))
	require.Equal(t, j.ID.String(), p.JobID)
	require.Equal(t, "rastrigin", p.ModelName)
	require.Equal(t, "sweep", p.Execution)
	require.Equal(t, 0.5, p.Params["temp"])
}

func TestDecodeResult(t *testing.T) {
	rp, err := decodeResult(`{"value": -3.5, "state": [1.0, 2.0]}`)
	require.NoError(t, err)
	require.Equal(t, -3.5, rp.Value)
	require.Equal(t, []float64{1, 2}, rp.State)
	require.False(t, rp.Failed)

	rp, err = decodeResult(`{"failed": true, "message": "kernel compilation failed"}`)
	require.NoError(t, err)
	require.True(t, rp.Failed)
	require.Equal(t, "kernel compilation failed", rp.Message)

	_, err = decodeResult("not json")
	require.Error(t, err)
}

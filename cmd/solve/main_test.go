package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpengine/internal/opt"
)

const exampleYAML = `
costMatrix:
  - [0, 10, 15, 20]
  - [10, 0, 35, 25]
  - [15, 35, 0, 30]
  - [20, 25, 30, 0]
demands: [0, 5, 10, 8]
vehicleCapacities: [15, 15]
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRunTextReport(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", "")
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-budget", "50ms", writeFile(t, "inst.yaml", exampleYAML)}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "Route for vehicle 0:")
	assert.Contains(t, out.String(), "Total distance of all routes: 85")
	assert.Contains(t, out.String(), "Total load of all routes: 23")
}

func TestRunJSONFleetFile(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", "")
	body := `{"costMatrix":[[0,10,15,20],[10,0,35,25],[15,35,0,30],[20,25,30,0]],"demands":[0,5,10,8],"fleet":[{"capacity":15,"count":2}]}`
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-json", "-empty", "-moves", "relocate,swap", "-budget", "20ms", writeFile(t, "inst.json", body)}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	var rep opt.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, 85.0, rep.TotalCost)
	assert.Len(t, rep.Routes, 2)
}

func TestRunLocationsWithoutKey(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", "")
	body := "locations:\n  - {lat: 52.52, lng: 13.40}\n  - {lat: 52.50, lng: 13.42}\ndemands: [0, 1]\nvehicleCapacities: [1]\n"
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-budget", "10ms", writeFile(t, "locs.yaml", body)}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "Route for vehicle 0:")
}

func TestRunErrors(t *testing.T) {
	t.Setenv("TOMTOM_API_KEY", "")
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &out, &errOut), "missing file argument")
	assert.Equal(t, 1, run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.yaml")}, &out, &errOut))
	assert.Equal(t, 2, run(context.Background(), []string{"-moves", "3-opt", writeFile(t, "i.yaml", exampleYAML)}, &out, &errOut))

	tight := "costMatrix: [[0, 1], [1, 0]]\ndemands: [0, 20]\nvehicleCapacities: [15]\n"
	assert.Equal(t, 3, run(context.Background(), []string{writeFile(t, "tight.yaml", tight)}, &out, &errOut))
}

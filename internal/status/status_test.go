package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observed struct {
	running, alive bool
	pid            int
}

func (o observed) IsRunning() bool { return o.running }
func (o observed) IsAlive() bool   { return o.alive }
func (o observed) PID() int        { return o.pid }

func TestReport(t *testing.T) {
	cases := []struct {
		name string
		in   Observed
		want Snapshot
	}{
		{"absent", nil, Snapshot{State: NotStarted}},
		{"alive", observed{running: true, alive: true, pid: 42}, Snapshot{State: Running, PID: 42}},
		{"alive after monitor gave up", observed{alive: true, pid: 7}, Snapshot{State: Running, PID: 7}},
		{"exited while monitored", observed{running: true, pid: -1}, Snapshot{State: ProcessExited}},
		{"stopped", observed{pid: -1}, Snapshot{State: Stopped}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Report(tc.in))
		})
	}
}

func TestSnapshotString(t *testing.T) {
	assert.Equal(t, "Running (PID: 12)", Snapshot{State: Running, PID: 12}.String())
	assert.Equal(t, "Not Started", Snapshot{State: NotStarted}.String())
	assert.Equal(t, "Process Exited", Snapshot{State: ProcessExited}.String())
	assert.Equal(t, "Starting", Snapshot{State: Starting}.String())
	assert.Equal(t, "Stopped", Snapshot{State: Stopped}.String())
}

func TestSnapshotJSON(t *testing.T) {
	b, err := json.Marshal(Snapshot{State: Running, PID: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"running","pid":5}`, string(b))

	b, err = json.Marshal(Snapshot{State: Stopped})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"stopped"}`, string(b))
}

package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/svcwatch/internal/history"
)

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	sink, err := New(Options{Addr: host + ":" + port.Port(), Table: "svc_events"})
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	for i, typ := range []history.EventType{history.EventStart, history.EventExit, history.EventRestart} {
		require.NoError(t, sink.Send(ctx, history.Event{
			Type:       typ,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Name: "worker", PID: 1000 + i},
		}))
	}

	var count uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT count() FROM svc_events WHERE name = 'worker'").Scan(&count))
	assert.Equal(t, uint64(3), count)
}

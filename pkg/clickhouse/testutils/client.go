package testutils

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client matches the interface from pkg/clickhouse.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

// NewTestClient creates a client with a provided connection for testing
// purposes. This lets repository unit tests run without a real ClickHouse
// connection.
func NewTestClient(conn driver.Conn, sugar *zap.SugaredLogger) Client {
	return &testClient{conn: conn, logger: sugar}
}

type testClient struct {
	conn   driver.Conn
	logger *zap.SugaredLogger
}

func (c *testClient) Conn() driver.Conn {
	return c.conn
}

func (c *testClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *testClient) Close() error {
	return c.conn.Close()
}

// Package graph wraps the bolt driver used to reach managed database
// instances: liveness pings, content statistics and version discovery.
package graph

import (
	"context"
	"errors"
	"fmt"

	"graphdock"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
)

// DefaultDatabase is the database every managed instance serves.
const DefaultDatabase = "neo4j"

// Client is an authenticated connection to one database instance.
type Client struct {
	uri    string
	driver neo4j.DriverWithContext
}

// Connect opens a driver against uri and verifies the instance answers an
// authenticated round trip before handing the client out.
func Connect(ctx context.Context, uri, user, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("open driver for %s: %w", uri, err)
	}
	c := &Client{uri: uri, driver: driver}
	if err := c.Ping(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return c, nil
}

// Ping runs a minimal authenticated query.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.readSingle(ctx, "RETURN 1 AS ok"); err != nil {
		return fmt.Errorf("ping %s: %w", c.uri, classify(err))
	}
	return nil
}

// Stats summarizes database content.
type Stats struct {
	Nodes         int64
	Relationships int64
}

// Stats counts nodes and relationships.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	nodes, err := c.count(ctx, "MATCH (n) RETURN count(n) AS count")
	if err != nil {
		return Stats{}, fmt.Errorf("count nodes: %w", classify(err))
	}
	rels, err := c.count(ctx, "MATCH ()-[r]->() RETURN count(r) AS count")
	if err != nil {
		return Stats{}, fmt.Errorf("count relationships: %w", classify(err))
	}
	return Stats{Nodes: nodes, Relationships: rels}, nil
}

// ServerVersion reports the engine version string, e.g. "5.26.0".
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	record, err := c.readSingle(ctx, "CALL dbms.components() YIELD versions RETURN versions[0] AS version")
	if err != nil {
		return "", fmt.Errorf("read server version: %w", classify(err))
	}
	value, _ := record.Get("version")
	version, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("version column is %T, not string", value)
	}
	return version, nil
}

// StopDatabase takes the named database offline through the system
// database. The server process keeps running, so the container stays up;
// offline dump and load operations require this state.
func (c *Client) StopDatabase(ctx context.Context, name string) error {
	if err := c.systemRun(ctx, "STOP DATABASE "+name+" WAIT"); err != nil {
		return fmt.Errorf("stop database %s: %w", name, err)
	}
	return nil
}

// StartDatabase brings the named database back online.
func (c *Client) StartDatabase(ctx context.Context, name string) error {
	if err := c.systemRun(ctx, "START DATABASE "+name+" WAIT"); err != nil {
		return fmt.Errorf("start database %s: %w", name, err)
	}
	return nil
}

// Driver exposes the underlying bolt driver for callers that run their own
// queries over the established connection.
func (c *Client) Driver() neo4j.DriverWithContext { return c.driver }

// URI returns the bolt endpoint this client talks to.
func (c *Client) URI() string { return c.uri }

// Close shuts down the driver and its connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) count(ctx context.Context, cypher string) (int64, error) {
	record, err := c.readSingle(ctx, cypher)
	if err != nil {
		return 0, err
	}
	value, ok := record.Get("count")
	if !ok {
		return 0, fmt.Errorf("result lacks count column")
	}
	n, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("count column is %T, not int64", value)
	}
	return n, nil
}

func (c *Client) readSingle(ctx context.Context, cypher string) (*db.Record, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	return result.Single(ctx)
}

// systemRun executes an administration command against the system database
// and waits for it to finish.
func (c *Client) systemRun(ctx context.Context, cypher string) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "system"})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return classify(err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps credential rejections to the shared error kind so callers
// can tell a wrong password apart from a dead instance.
func classify(err error) error {
	var ne *db.Neo4jError
	if errors.As(err, &ne) && ne.Code == "Neo.ClientError.Security.Unauthorized" {
		return fmt.Errorf("%s: %w", ne.Code, graphdock.ErrAuthMismatch)
	}
	return err
}

package graph

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Prober answers health probes with a short-lived authenticated session.
// The zero value is ready to use.
type Prober struct{}

// Probe checks that uri's TCP endpoint accepts a connection, then runs
// one authenticated query over a throwaway driver. Credential rejections
// come back wrapping the auth mismatch kind; everything else is transient
// from the caller's point of view.
func (Prober) Probe(ctx context.Context, uri, user, password string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("parse uri %q: %w", uri, err)
	}
	d := net.Dialer{Timeout: time.Second}
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Host, err)
	}
	_ = conn.Close()

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return fmt.Errorf("open driver: %w", err)
	}
	defer driver.Close(ctx)

	c := &Client{uri: uri, driver: driver}
	return c.Ping(ctx)
}

package probe

// #region imports
import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// #endregion

// #region prober

// HealthProber checks component liveness against a gRPC health endpoint.
type HealthProber struct {
	client healthpb.HealthClient
	conn   *grpc.ClientConn
}

// NewHealthProber connects to the given health endpoint. The connection is
// lazy; dial errors surface on the first Check.
func NewHealthProber(addr string) (*HealthProber, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial health endpoint %s: %w", addr, err)
	}
	return &HealthProber{
		client: healthpb.NewHealthClient(conn),
		conn:   conn,
	}, nil
}

// NewHealthProberWithClient wraps an existing client. Used by tests.
func NewHealthProberWithClient(client healthpb.HealthClient) *HealthProber {
	return &HealthProber{client: client}
}

// Check reports whether the named service is serving.
func (p *HealthProber) Check(ctx context.Context, service string) (bool, error) {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return false, fmt.Errorf("health check %q: %w", service, err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close tears down the connection, if one was dialed.
func (p *HealthProber) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// #endregion prober

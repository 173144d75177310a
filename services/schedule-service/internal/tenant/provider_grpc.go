//go:build protogen

package tenant

import (
	"context"
	"time"

	"github.com/thatsmartsite/schedule/libs/grpcx"
	tenantv1 "github.com/thatsmartsite/schedule/protos/gen/tenant/v1"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Profile is the slice of tenant metadata the scheduler needs.
type Profile struct {
	TenantID    string
	DisplayName string
	Timezone    string
	Active      bool
	SuspendedAt time.Time
}

type Provider interface {
	GetProfile(ctx context.Context, tenantID string) (Profile, error)
}

type grpcProvider struct {
	client tenantv1.TenantServiceClient
}

func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: tenantv1.NewTenantServiceClient(conn)}, nil
}

func (p *grpcProvider) GetProfile(ctx context.Context, tenantID string) (Profile, error) {
	resp, err := p.client.GetTenant(ctx, &tenantv1.GetTenantRequest{TenantId: tenantID})
	if err != nil {
		return Profile{}, err
	}
	profile := Profile{
		TenantID:    resp.GetTenantId(),
		DisplayName: resp.GetDisplayName(),
		Timezone:    resp.GetTimezone(),
		Active:      resp.GetActive(),
	}
	if ts := resp.GetSuspendedAt(); ts != nil {
		profile.SuspendedAt = suspendedAt(ts)
	}
	return profile, nil
}

func suspendedAt(ts *timestamppb.Timestamp) time.Time {
	return ts.AsTime()
}

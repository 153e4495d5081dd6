//go:build protogen

package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/salonflowhq/salonflow/libs/grpcx"
	salonv1 "github.com/salonflowhq/salonflow/protos/gen/salon/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/salonflowhq/salonflow/services/booking-service/internal/availability"
)

type grpcProvider struct {
	client salonv1.SalonServiceClient
}

func NewGRPCProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: salonv1.NewSalonServiceClient(conn)}, nil
}

func (p *grpcProvider) GetScheduleData(ctx context.Context, salonID, staffID, serviceID, date string) (ScheduleData, error) {
	resp, err := p.client.GetScheduleData(ctx, &salonv1.ScheduleDataRequest{
		SalonId:   salonID,
		StaffId:   staffID,
		ServiceId: serviceID,
		Date:      date,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ScheduleData{}, fmt.Errorf("schedule data: %w", availability.ErrServiceNotFound)
		}
		return ScheduleData{}, err
	}
	return ScheduleData{
		Timezone:        resp.GetTimezone(),
		IsWorking:       resp.GetIsWorking(),
		OnTimeOff:       resp.GetOnTimeOff(),
		WorkStart:       resp.GetWorkStart(),
		WorkEnd:         resp.GetWorkEnd(),
		LunchStart:      resp.GetLunchStart(),
		LunchEnd:        resp.GetLunchEnd(),
		DurationMinutes: int(resp.GetDurationMinutes()),
		BufferMinutes:   int(resp.GetBufferMinutes()),
	}, nil
}

//go:build protogen

package grpcserver

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/salonflowhq/salonflow/libs/config"
	"github.com/salonflowhq/salonflow/libs/db"
	salonv1 "github.com/salonflowhq/salonflow/protos/gen/salon/v1"
	"github.com/salonflowhq/salonflow/services/salon-service/internal/schedule"
	"github.com/salonflowhq/salonflow/services/salon-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type server struct {
	salonv1.UnimplementedSalonServiceServer
	pool     *db.Pool
	repo     *storage.Repository
	resolver *schedule.Resolver
}

func Register(grpcServer *grpc.Server, pool *db.Pool, repo *storage.Repository) {
	salonv1.RegisterSalonServiceServer(grpcServer, &server{
		pool:     pool,
		repo:     repo,
		resolver: schedule.NewResolver(repo),
	})
}

func (s *server) GetSalonProfile(ctx context.Context, req *salonv1.SalonProfileRequest) (*salonv1.SalonProfileResponse, error) {
	offsets := parseOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"))
	timezone := config.String("TIMEZONE", "UTC")
	name := "Demo Salon"

	if s.repo != nil && req.GetSalonId() != "" {
		p, err := s.repo.GetOrCreateProfile(ctx, req.GetSalonId())
		if err == nil {
			if strings.TrimSpace(p.Timezone) != "" {
				timezone = strings.TrimSpace(p.Timezone)
			}
			if strings.TrimSpace(p.Name) != "" {
				name = strings.TrimSpace(p.Name)
			}
			if len(p.OffsetsMins) > 0 {
				offsets = nil
				for _, v := range p.OffsetsMins {
					if v <= 0 {
						continue
					}
					offsets = append(offsets, int32(v))
				}
				if len(offsets) == 0 {
					offsets = parseOffsets("1440,60")
				}
			}
		}
	}

	return &salonv1.SalonProfileResponse{
		SalonId: req.SalonId,
		Name:    name,
		ReminderPolicy: &salonv1.ReminderPolicy{
			ReminderOffsetsMinutes: offsets,
			Timezone:               timezone,
		},
	}, nil
}

func (s *server) GetScheduleData(ctx context.Context, req *salonv1.ScheduleDataRequest) (*salonv1.ScheduleDataResponse, error) {
	if req.GetSalonId() == "" || req.GetStaffId() == "" || req.GetServiceId() == "" || req.GetDate() == "" {
		return nil, status.Error(codes.InvalidArgument, "salon_id, staff_id, service_id, and date are required")
	}

	data, err := s.resolver.Resolve(ctx, req.GetSalonId(), req.GetStaffId(), req.GetServiceId(), req.GetDate())
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrInvalidDate):
			return nil, status.Error(codes.InvalidArgument, "invalid date")
		case errors.Is(err, schedule.ErrServiceNotFound):
			return nil, status.Error(codes.NotFound, "service_not_found")
		case errors.Is(err, schedule.ErrStaffNotFound):
			return nil, status.Error(codes.NotFound, "staff_not_found")
		default:
			return nil, status.Error(codes.Internal, "failed to resolve schedule data")
		}
	}

	return &salonv1.ScheduleDataResponse{
		SalonId:         req.GetSalonId(),
		StaffId:         req.GetStaffId(),
		ServiceId:       req.GetServiceId(),
		Timezone:        data.Timezone,
		IsWorking:       data.IsWorking,
		OnTimeOff:       data.OnTimeOff,
		WorkStart:       data.WorkStart,
		WorkEnd:         data.WorkEnd,
		LunchStart:      data.LunchStart,
		LunchEnd:        data.LunchEnd,
		DurationMinutes: int32(data.DurationMinutes),
		BufferMinutes:   int32(data.BufferMinutes),
	}, nil
}

func parseOffsets(raw string) []int32 {
	var out []int32
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			continue
		}
		out = append(out, int32(mins))
	}
	if len(out) == 0 {
		out = []int32{1440}
	}
	return out
}

package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// SalonEntitlements is the locally cached slice of the billing tier that
// booking enforcement needs. Fed by billing events, never queried live.
type SalonEntitlements struct {
	SalonID                string
	Tier                   string
	MaxMonthlyAppointments int
	UpdatedAt              time.Time
}

func (r *BookingRepository) UpsertSalonEntitlements(ctx context.Context, tx pgx.Tx, ent SalonEntitlements) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO salon_entitlements (salon_id, tier, max_monthly_appointments)
		VALUES ($1, $2, $3)
		ON CONFLICT (salon_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              max_monthly_appointments = EXCLUDED.max_monthly_appointments,
		              updated_at = now()
	`, ent.SalonID, ent.Tier, ent.MaxMonthlyAppointments)
	return err
}

func (r *BookingRepository) GetSalonEntitlements(ctx context.Context, tx pgx.Tx, salonID string) (SalonEntitlements, bool, error) {
	var ent SalonEntitlements
	err := tx.QueryRow(ctx, `
		SELECT salon_id::text, tier, max_monthly_appointments, updated_at
		FROM salon_entitlements
		WHERE salon_id = $1
	`, salonID).Scan(&ent.SalonID, &ent.Tier, &ent.MaxMonthlyAppointments, &ent.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return SalonEntitlements{}, false, nil
		}
		return SalonEntitlements{}, false, err
	}
	return ent, true, nil
}

func (r *BookingRepository) CountBlockingBySalonInRange(ctx context.Context, tx pgx.Tx, salonID string, startInclusive, endExclusive time.Time) (int, error) {
	var cnt int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE salon_id = $1
		  AND `+blockingFilter+`
		  AND start_time >= $2
		  AND start_time < $3
	`, salonID, startInclusive, endExclusive).Scan(&cnt)
	return cnt, err
}

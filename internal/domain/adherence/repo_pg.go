package adherence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adherence/adherence/internal/measure"
	"github.com/adherence/adherence/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reviewCols = `id, fhir_id, patient_id, measure_type, year,
	pdc, covered_days, treatment_days, gap_days_used, gap_days_allowed, gap_days_remaining,
	pdc_status_quo, pdc_perfect, days_until_runout, current_supply, refills_needed,
	fill_count, days_to_year_end, last_fill_date,
	tier, tier_level, delay_budget_per_refill, contact_window, action,
	priority_score, urgency_level,
	is_compliant, is_unsalvageable, is_out_of_meds, is_q4,
	is_multiple_measures, is_new_patient, q4_tightened,
	calculated_at, created_at, updated_at`

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.FHIRID, &rv.PatientID, &rv.MeasureType, &rv.Year,
		&rv.PDC, &rv.CoveredDays, &rv.TreatmentDays, &rv.GapDaysUsed, &rv.GapDaysAllowed, &rv.GapDaysRemaining,
		&rv.PDCStatusQuo, &rv.PDCPerfect, &rv.DaysUntilRunout, &rv.CurrentSupply, &rv.RefillsNeeded,
		&rv.FillCount, &rv.DaysToYearEnd, &rv.LastFillDate,
		&rv.Tier, &rv.TierLevel, &rv.DelayBudgetPerRefill, &rv.ContactWindow, &rv.Action,
		&rv.PriorityScore, &rv.UrgencyLevel,
		&rv.IsCompliant, &rv.IsUnsalvageable, &rv.IsOutOfMeds, &rv.IsQ4,
		&rv.IsMultipleMeasures, &rv.IsNewPatient, &rv.Q4Tightened,
		&rv.CalculatedAt, &rv.CreatedAt, &rv.UpdatedAt)
	return &rv, err
}

func (r *repoPG) Upsert(ctx context.Context, rv *Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	if rv.FHIRID == "" {
		rv.FHIRID = rv.ID.String()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO adherence_review (id, fhir_id, patient_id, measure_type, year,
			pdc, covered_days, treatment_days, gap_days_used, gap_days_allowed, gap_days_remaining,
			pdc_status_quo, pdc_perfect, days_until_runout, current_supply, refills_needed,
			fill_count, days_to_year_end, last_fill_date,
			tier, tier_level, delay_budget_per_refill, contact_window, action,
			priority_score, urgency_level,
			is_compliant, is_unsalvageable, is_out_of_meds, is_q4,
			is_multiple_measures, is_new_patient, q4_tightened,
			calculated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34)
		ON CONFLICT (patient_id, measure_type, year) DO UPDATE SET
			pdc = EXCLUDED.pdc,
			covered_days = EXCLUDED.covered_days,
			treatment_days = EXCLUDED.treatment_days,
			gap_days_used = EXCLUDED.gap_days_used,
			gap_days_allowed = EXCLUDED.gap_days_allowed,
			gap_days_remaining = EXCLUDED.gap_days_remaining,
			pdc_status_quo = EXCLUDED.pdc_status_quo,
			pdc_perfect = EXCLUDED.pdc_perfect,
			days_until_runout = EXCLUDED.days_until_runout,
			current_supply = EXCLUDED.current_supply,
			refills_needed = EXCLUDED.refills_needed,
			fill_count = EXCLUDED.fill_count,
			days_to_year_end = EXCLUDED.days_to_year_end,
			last_fill_date = EXCLUDED.last_fill_date,
			tier = EXCLUDED.tier,
			tier_level = EXCLUDED.tier_level,
			delay_budget_per_refill = EXCLUDED.delay_budget_per_refill,
			contact_window = EXCLUDED.contact_window,
			action = EXCLUDED.action,
			priority_score = EXCLUDED.priority_score,
			urgency_level = EXCLUDED.urgency_level,
			is_compliant = EXCLUDED.is_compliant,
			is_unsalvageable = EXCLUDED.is_unsalvageable,
			is_out_of_meds = EXCLUDED.is_out_of_meds,
			is_q4 = EXCLUDED.is_q4,
			is_multiple_measures = EXCLUDED.is_multiple_measures,
			is_new_patient = EXCLUDED.is_new_patient,
			q4_tightened = EXCLUDED.q4_tightened,
			calculated_at = EXCLUDED.calculated_at,
			updated_at = NOW()`,
		rv.ID, rv.FHIRID, rv.PatientID, rv.MeasureType, rv.Year,
		rv.PDC, rv.CoveredDays, rv.TreatmentDays, rv.GapDaysUsed, rv.GapDaysAllowed, rv.GapDaysRemaining,
		rv.PDCStatusQuo, rv.PDCPerfect, rv.DaysUntilRunout, rv.CurrentSupply, rv.RefillsNeeded,
		rv.FillCount, rv.DaysToYearEnd, rv.LastFillDate,
		rv.Tier, rv.TierLevel, rv.DelayBudgetPerRefill, rv.ContactWindow, rv.Action,
		rv.PriorityScore, rv.UrgencyLevel,
		rv.IsCompliant, rv.IsUnsalvageable, rv.IsOutOfMeds, rv.IsQ4,
		rv.IsMultipleMeasures, rv.IsNewPatient, rv.Q4Tightened,
		rv.CalculatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reviewCols+` FROM adherence_review WHERE id = $1`, id))
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reviewCols+` FROM adherence_review WHERE fhir_id = $1`, fhirID))
}

func (r *repoPG) GetForPatient(ctx context.Context, patientID uuid.UUID, m measure.Type, year int) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reviewCols+` FROM adherence_review
		 WHERE patient_id = $1 AND measure_type = $2 AND year = $3`,
		patientID, m, year))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, year int) ([]*Review, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reviewCols+` FROM adherence_review
		 WHERE patient_id = $1 AND year = $2
		 ORDER BY priority_score DESC, measure_type`, patientID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rv)
	}
	return items, rows.Err()
}

func (r *repoPG) Worklist(ctx context.Context, f WorklistFilter, limit, offset int) ([]*Review, int, error) {
	where := ""
	var args []interface{}
	idx := 1

	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(" AND %s = $%d", clause, idx)
		args = append(args, v)
		idx++
	}
	if f.Year != 0 {
		add("year", f.Year)
	}
	if f.MeasureType != "" {
		add("measure_type", f.MeasureType)
	}
	if f.Tier != "" {
		add("tier", f.Tier)
	}
	if f.Urgency != "" {
		add("urgency_level", f.Urgency)
	}
	if f.MinPriority > 0 {
		where += fmt.Sprintf(" AND priority_score >= $%d", idx)
		args = append(args, f.MinPriority)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM adherence_review WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(append([]interface{}{}, args...), limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM adherence_review WHERE 1=1%s
		ORDER BY priority_score DESC, tier_level, patient_id
		LIMIT $%d OFFSET $%d`, reviewCols, where, idx, idx+1), dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rv)
	}
	return items, total, rows.Err()
}

package dispense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adherence/adherence/internal/measure"
	"github.com/adherence/adherence/internal/platform/db"
	"github.com/adherence/adherence/internal/platform/fhir"
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

const dispenseCols = `id, fhir_id, status, patient_id, measure_type,
	medication_code, medication_display, quantity_value, quantity_unit,
	days_supply, when_prepared, when_handed_over, note, created_at, updated_at`

func scanDispense(row pgx.Row) (*MedicationDispense, error) {
	var md MedicationDispense
	err := row.Scan(&md.ID, &md.FHIRID, &md.Status, &md.PatientID, &md.MeasureType,
		&md.MedicationCode, &md.MedicationDisplay, &md.QuantityValue, &md.QuantityUnit,
		&md.DaysSupply, &md.WhenPrepared, &md.WhenHandedOver, &md.Note, &md.CreatedAt, &md.UpdatedAt)
	return &md, err
}

func (r *repoPG) Create(ctx context.Context, md *MedicationDispense) error {
	md.ID = uuid.New()
	if md.FHIRID == "" {
		md.FHIRID = md.ID.String()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_dispense (id, fhir_id, status, patient_id, measure_type,
			medication_code, medication_display, quantity_value, quantity_unit,
			days_supply, when_prepared, when_handed_over, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		md.ID, md.FHIRID, md.Status, md.PatientID, md.MeasureType,
		md.MedicationCode, md.MedicationDisplay, md.QuantityValue, md.QuantityUnit,
		md.DaysSupply, md.WhenPrepared, md.WhenHandedOver, md.Note)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicationDispense, error) {
	return scanDispense(r.conn(ctx).QueryRow(ctx,
		`SELECT `+dispenseCols+` FROM medication_dispense WHERE id = $1`, id))
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*MedicationDispense, error) {
	return scanDispense(r.conn(ctx).QueryRow(ctx,
		`SELECT `+dispenseCols+` FROM medication_dispense WHERE fhir_id = $1`, fhirID))
}

func (r *repoPG) Update(ctx context.Context, md *MedicationDispense) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication_dispense SET status=$2, measure_type=$3,
			medication_code=$4, medication_display=$5,
			quantity_value=$6, quantity_unit=$7, days_supply=$8,
			when_prepared=$9, when_handed_over=$10, note=$11, updated_at=NOW()
		WHERE id = $1`,
		md.ID, md.Status, md.MeasureType,
		md.MedicationCode, md.MedicationDisplay,
		md.QuantityValue, md.QuantityUnit, md.DaysSupply,
		md.WhenPrepared, md.WhenHandedOver, md.Note)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medication_dispense WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicationDispense, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medication_dispense WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+dispenseCols+` FROM medication_dispense
		WHERE patient_id = $1
		ORDER BY COALESCE(when_handed_over, when_prepared) DESC NULLS LAST
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collect(rows, total)
}

var searchParams = map[string]fhir.SearchParamConfig{
	"patient":        {Type: fhir.SearchParamReference, Column: "patient_id"},
	"status":         {Type: fhir.SearchParamToken, Column: "status"},
	"code":           {Type: fhir.SearchParamToken, Column: "medication_code"},
	"measure":        {Type: fhir.SearchParamToken, Column: "measure_type"},
	"whenhandedover": {Type: fhir.SearchParamDate, Column: "when_handed_over"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicationDispense, int, error) {
	q := fhir.NewSearchQuery()
	for name, cfg := range searchParams {
		if v, ok := params[name]; ok && v != "" {
			q.ApplyParam(cfg, v)
		}
	}
	where, args := q.Where()

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medication_dispense WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(append([]interface{}{}, args...), limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT %s FROM medication_dispense WHERE 1=1%s
		ORDER BY COALESCE(when_handed_over, when_prepared) DESC NULLS LAST
		LIMIT $%d OFFSET $%d`, dispenseCols, where, q.Idx(), q.Idx()+1), dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collect(rows, total)
}

func (r *repoPG) ListForPatientYear(ctx context.Context, patientID uuid.UUID, m measure.Type, year int) ([]*MedicationDispense, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+dispenseCols+` FROM medication_dispense
		WHERE patient_id = $1 AND measure_type = $2 AND status = 'completed'
		  AND COALESCE(when_handed_over, when_prepared) >= $3
		  AND COALESCE(when_handed_over, when_prepared) < $4
		ORDER BY COALESCE(when_handed_over, when_prepared)`,
		patientID, m, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, _, err := collect(rows, 0)
	return items, err
}

func (r *repoPG) ListPatientsWithDispenses(ctx context.Context, year int) ([]PatientMeasure, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT patient_id, measure_type FROM medication_dispense
		WHERE status = 'completed'
		  AND COALESCE(when_handed_over, when_prepared) >= $1
		  AND COALESCE(when_handed_over, when_prepared) < $2`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []PatientMeasure
	for rows.Next() {
		var pm PatientMeasure
		if err := rows.Scan(&pm.PatientID, &pm.MeasureType); err != nil {
			return nil, err
		}
		pairs = append(pairs, pm)
	}
	return pairs, rows.Err()
}

func collect(rows pgx.Rows, total int) ([]*MedicationDispense, int, error) {
	var items []*MedicationDispense
	for rows.Next() {
		md, err := scanDispense(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, md)
	}
	return items, total, rows.Err()
}

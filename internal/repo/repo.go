package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"homebid/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ProjectRef carries the parent-project fields authorization needs for a
// child resource, loaded in the same query as the child row.
type ProjectRef struct {
	ID          string
	HomeownerID string
	Status      string
}

func (p ProjectRef) AsProject() domain.Project {
	return domain.Project{ID: p.ID, HomeownerID: p.HomeownerID, Status: p.Status}
}

const projectColumns = `id,homeowner_id,title,description,location,category,urgency,budget,status,accepted_bid_id,expected_start_date,expected_end_date,actual_start_date,actual_end_date,created_at,updated_at`

type projectScanner interface {
	Scan(dest ...any) error
}

func scanProject(row projectScanner) (domain.Project, error) {
	var p domain.Project
	var desc, location, acceptedBid sql.NullString
	var expStart, expEnd, actStart, actEnd sql.NullString
	var budget sql.NullFloat64
	err := row.Scan(&p.ID, &p.HomeownerID, &p.Title, &desc, &location, &p.Category, &p.Urgency, &budget,
		&p.Status, &acceptedBid, &expStart, &expEnd, &actStart, &actEnd, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if location.Valid {
		p.Location = location.String
	}
	if budget.Valid {
		p.Budget = &budget.Float64
	}
	if acceptedBid.Valid {
		p.AcceptedBidID = &acceptedBid.String
	}
	p.ExpectedStartDate = stringPtr(expStart)
	p.ExpectedEndDate = stringPtr(expEnd)
	p.ActualStartDate = stringPtr(actStart)
	p.ActualEndDate = stringPtr(actEnd)
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.HomeownerID, p.Title, nullable(p.Description), nullable(p.Location), p.Category, p.Urgency,
		nullableFloatPtr(p.Budget), p.Status, nullableStringPtr(p.AcceptedBidID),
		nullableStringPtr(p.ExpectedStartDate), nullableStringPtr(p.ExpectedEndDate),
		nullableStringPtr(p.ActualStartDate), nullableStringPtr(p.ActualEndDate),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

type ProjectFilters struct {
	HomeownerID     string
	Status          string
	Category        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.HomeownerID != "" {
		clauses = append(clauses, "homeowner_id=?")
		args = append(args, f.HomeownerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProject rewrites the mutable project columns in full.
func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET title=?, description=?, location=?, category=?, urgency=?, budget=?, status=?, accepted_bid_id=?, expected_start_date=?, expected_end_date=?, actual_start_date=?, actual_end_date=?, updated_at=? WHERE id=?`,
		p.Title, nullable(p.Description), nullable(p.Location), p.Category, p.Urgency, nullableFloatPtr(p.Budget),
		p.Status, nullableStringPtr(p.AcceptedBidID),
		nullableStringPtr(p.ExpectedStartDate), nullableStringPtr(p.ExpectedEndDate),
		nullableStringPtr(p.ActualStartDate), nullableStringPtr(p.ActualEndDate),
		p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const bidColumns = `b.id,b.project_id,b.contractor_id,b.price,b.estimated_duration,b.description,b.status,b.proposed_start_date,b.warranty_months,b.valid_until,b.created_at,b.updated_at`

func scanBid(row projectScanner) (domain.Bid, ProjectRef, error) {
	var b domain.Bid
	var ref ProjectRef
	var desc, proposedStart, validUntil sql.NullString
	var warranty sql.NullInt64
	err := row.Scan(&b.ID, &b.ProjectID, &b.ContractorID, &b.Price, &b.EstimatedDuration, &desc, &b.Status,
		&proposedStart, &warranty, &validUntil, &b.CreatedAt, &b.UpdatedAt,
		&ref.ID, &ref.HomeownerID, &ref.Status)
	if err == sql.ErrNoRows {
		return b, ref, ErrNotFound
	}
	if err != nil {
		return b, ref, err
	}
	if desc.Valid {
		b.Description = desc.String
	}
	b.ProposedStartDate = stringPtr(proposedStart)
	b.ValidUntil = stringPtr(validUntil)
	if warranty.Valid {
		w := int(warranty.Int64)
		b.WarrantyMonths = &w
	}
	return b, ref, nil
}

func (r Repo) InsertBidTx(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bids(id,project_id,contractor_id,price,estimated_duration,description,status,proposed_start_date,warranty_months,valid_until,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.ProjectID, b.ContractorID, b.Price, b.EstimatedDuration, nullable(b.Description), b.Status,
		nullableStringPtr(b.ProposedStartDate), nullableIntPtr(b.WarrantyMonths), nullableStringPtr(b.ValidUntil),
		b.CreatedAt, b.UpdatedAt)
	return err
}

// GetBid loads a bid together with its parent project's ownership fields.
func (r Repo) GetBid(ctx context.Context, id string) (domain.Bid, ProjectRef, error) {
	return scanBid(r.DB.QueryRowContext(ctx, `SELECT `+bidColumns+`,p.id,p.homeowner_id,p.status FROM bids b JOIN projects p ON p.id=b.project_id WHERE b.id=?`, id))
}

func (r Repo) GetBidTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bid, ProjectRef, error) {
	return scanBid(tx.QueryRowContext(ctx, `SELECT `+bidColumns+`,p.id,p.homeowner_id,p.status FROM bids b JOIN projects p ON p.id=b.project_id WHERE b.id=?`, id))
}

type BidFilters struct {
	ProjectID      string
	ContractorID   string
	ProjectOwnerID string
	Status         string
	Limit          int
}

func (r Repo) ListBids(ctx context.Context, f BidFilters) ([]domain.Bid, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "b.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.ContractorID != "" {
		clauses = append(clauses, "b.contractor_id=?")
		args = append(args, f.ContractorID)
	}
	if f.ProjectOwnerID != "" {
		clauses = append(clauses, "p.homeowner_id=?")
		args = append(args, f.ProjectOwnerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "b.status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + bidColumns + `,p.id,p.homeowner_id,p.status FROM bids b JOIN projects p ON p.id=b.project_id ` + where + ` ORDER BY b.created_at DESC, b.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Bid
	for rows.Next() {
		b, _, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// HasActiveBid reports whether the contractor already has a non-withdrawn
// bid on the project. Pre-check only; the partial unique index on bids is
// what actually closes the race.
func (r Repo) HasActiveBid(ctx context.Context, projectID, contractorID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM bids WHERE project_id=? AND contractor_id=? AND status != 'withdrawn' LIMIT 1`, projectID, contractorID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) UpdateBidTx(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET price=?, estimated_duration=?, description=?, status=?, proposed_start_date=?, warranty_months=?, valid_until=?, updated_at=? WHERE id=?`,
		b.Price, b.EstimatedDuration, nullable(b.Description), b.Status,
		nullableStringPtr(b.ProposedStartDate), nullableIntPtr(b.WarrantyMonths), nullableStringPtr(b.ValidUntil),
		b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateBidStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RejectPendingBidsTx marks every still-pending bid on the project as
// rejected, excluding the accepted one. Returns the number rejected.
func (r Repo) RejectPendingBidsTx(ctx context.Context, tx *sql.Tx, projectID, exceptBidID, updatedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE bids SET status='rejected', updated_at=? WHERE project_id=? AND id != ? AND status='pending'`,
		updatedAt, projectID, exceptBidID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const milestoneColumns = `m.id,m.project_id,m.title,m.description,m.status,m.ord,m.assigned_to,m.payment_amount,m.notes,m.estimated_start_date,m.estimated_end_date,m.actual_start_date,m.actual_end_date,m.created_at,m.updated_at`

func scanMilestone(row projectScanner) (domain.Milestone, ProjectRef, error) {
	var m domain.Milestone
	var ref ProjectRef
	var desc, notes, assigned sql.NullString
	var estStart, estEnd, actStart, actEnd sql.NullString
	var payment sql.NullFloat64
	err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &desc, &m.Status, &m.Order, &assigned, &payment, &notes,
		&estStart, &estEnd, &actStart, &actEnd, &m.CreatedAt, &m.UpdatedAt,
		&ref.ID, &ref.HomeownerID, &ref.Status)
	if err == sql.ErrNoRows {
		return m, ref, ErrNotFound
	}
	if err != nil {
		return m, ref, err
	}
	if desc.Valid {
		m.Description = desc.String
	}
	if notes.Valid {
		m.Notes = notes.String
	}
	m.AssignedTo = stringPtr(assigned)
	if payment.Valid {
		m.PaymentAmount = &payment.Float64
	}
	m.EstimatedStartDate = stringPtr(estStart)
	m.EstimatedEndDate = stringPtr(estEnd)
	m.ActualStartDate = stringPtr(actStart)
	m.ActualEndDate = stringPtr(actEnd)
	return m, ref, nil
}

func (r Repo) InsertMilestoneTx(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO milestones(id,project_id,title,description,status,ord,assigned_to,payment_amount,notes,estimated_start_date,estimated_end_date,actual_start_date,actual_end_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, m.Title, nullable(m.Description), m.Status, m.Order,
		nullableStringPtr(m.AssignedTo), nullableFloatPtr(m.PaymentAmount), nullable(m.Notes),
		nullableStringPtr(m.EstimatedStartDate), nullableStringPtr(m.EstimatedEndDate),
		nullableStringPtr(m.ActualStartDate), nullableStringPtr(m.ActualEndDate),
		m.CreatedAt, m.UpdatedAt)
	return err
}

// GetMilestone loads a milestone together with its parent project's
// ownership fields.
func (r Repo) GetMilestone(ctx context.Context, id string) (domain.Milestone, ProjectRef, error) {
	return scanMilestone(r.DB.QueryRowContext(ctx, `SELECT `+milestoneColumns+`,p.id,p.homeowner_id,p.status FROM milestones m JOIN projects p ON p.id=m.project_id WHERE m.id=?`, id))
}

func (r Repo) GetMilestoneTx(ctx context.Context, tx *sql.Tx, id string) (domain.Milestone, ProjectRef, error) {
	return scanMilestone(tx.QueryRowContext(ctx, `SELECT `+milestoneColumns+`,p.id,p.homeowner_id,p.status FROM milestones m JOIN projects p ON p.id=m.project_id WHERE m.id=?`, id))
}

func (r Repo) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+milestoneColumns+`,p.id,p.homeowner_id,p.status FROM milestones m JOIN projects p ON p.id=m.project_id WHERE m.project_id=? ORDER BY m.ord ASC, m.created_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, _, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) CountMilestones(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM milestones WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

func (r Repo) UpdateMilestoneTx(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET title=?, description=?, status=?, ord=?, assigned_to=?, payment_amount=?, notes=?, estimated_start_date=?, estimated_end_date=?, actual_start_date=?, actual_end_date=?, updated_at=? WHERE id=?`,
		m.Title, nullable(m.Description), m.Status, m.Order,
		nullableStringPtr(m.AssignedTo), nullableFloatPtr(m.PaymentAmount), nullable(m.Notes),
		nullableStringPtr(m.EstimatedStartDate), nullableStringPtr(m.EstimatedEndDate),
		nullableStringPtr(m.ActualStartDate), nullableStringPtr(m.ActualEndDate),
		m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMilestone(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns the most recent events, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with ID greater than after, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, after int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event ID, or zero when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

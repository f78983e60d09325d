package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"homebid/internal/config"
	"homebid/internal/domain"
	"homebid/internal/engine/auth"
	"homebid/internal/events"
	"homebid/internal/identity"
	"homebid/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ResolveCaller turns an asserted user id into a caller context, rejecting
// unknown and deactivated accounts.
func (e Engine) ResolveCaller(ctx context.Context, userID string) (identity.Caller, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return identity.Caller{}, identity.ErrInvalidAssertion
		}
		return identity.Caller{}, err
	}
	if !u.Active {
		return identity.Caller{}, identity.ErrInactiveAccount
	}
	return identity.Caller{UserID: u.ID, Role: u.Role}, nil
}

// RegisterOptions are parameters for creating a user account.
type RegisterOptions struct {
	Email           string
	Password        string
	FirstName       string
	LastName        string
	Role            string
	Phone           string
	Bio             string
	YearsExperience *int
	Specializations []string
}

func (e Engine) Register(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	if opts.Email == "" || opts.Password == "" {
		return domain.User{}, errors.New("email and password are required")
	}
	switch opts.Role {
	case domain.RoleHomeowner, domain.RoleContractor, domain.RoleProjectManager:
	default:
		return domain.User{}, fmt.Errorf("unknown role %s", opts.Role)
	}
	hash, err := identity.HashPassword(opts.Password, e.Config.Server.BcryptCost)
	if err != nil {
		return domain.User{}, err
	}
	now := e.nowStr()
	u := domain.User{
		ID:              uuid.New().String(),
		Email:           strings.ToLower(opts.Email),
		FirstName:       opts.FirstName,
		LastName:        opts.LastName,
		Role:            opts.Role,
		Phone:           opts.Phone,
		Active:          true,
		Bio:             opts.Bio,
		YearsExperience: opts.YearsExperience,
		Specializations: opts.Specializations,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u, hash); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("email %s already registered", u.Email)
		}
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeUserRegistered, "", "user", u.ID, u.ID, events.EventPayload{"role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Login verifies credentials and returns the account. The boundary layer
// mints the token.
func (e Engine) Login(ctx context.Context, email, password string) (domain.User, error) {
	u, hash, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, identity.ErrInvalidAssertion
		}
		return domain.User{}, err
	}
	if !identity.CheckPassword(hash, password) {
		return domain.User{}, identity.ErrInvalidAssertion
	}
	if !u.Active {
		return domain.User{}, identity.ErrInactiveAccount
	}
	return u, nil
}

// ProfileUpdateOptions encapsulates the caller-editable profile fields.
type ProfileUpdateOptions struct {
	FirstName       *string
	LastName        *string
	Phone           *string
	Bio             *string
	YearsExperience *int
	Specializations []string
}

func (e Engine) UpdateProfile(ctx context.Context, caller identity.Caller, opts ProfileUpdateOptions) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, caller.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if opts.FirstName != nil {
		u.FirstName = *opts.FirstName
	}
	if opts.LastName != nil {
		u.LastName = *opts.LastName
	}
	if opts.Phone != nil {
		u.Phone = *opts.Phone
	}
	if opts.Bio != nil {
		u.Bio = *opts.Bio
	}
	if opts.YearsExperience != nil {
		u.YearsExperience = opts.YearsExperience
	}
	if opts.Specializations != nil {
		u.Specializations = opts.Specializations
	}
	u.UpdatedAt = e.nowStr()
	if err := e.Repo.UpdateUserProfile(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ListContractors returns active contractors for browsing, most experienced
// first. An optional specialization narrows the list.
func (e Engine) ListContractors(ctx context.Context, caller identity.Caller, specialization string) ([]domain.User, error) {
	users, err := e.Repo.ListUsers(ctx, domain.RoleContractor)
	if err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(users))
	for _, u := range users {
		if !u.Active {
			continue
		}
		if specialization != "" && !hasSpecialization(u, specialization) {
			continue
		}
		res = append(res, redactContact(caller, u))
	}
	sort.SliceStable(res, func(i, j int) bool {
		return yearsExperience(res[i]) > yearsExperience(res[j])
	})
	return res, nil
}

// GetUserProfile returns a user's public profile. Inactive accounts read
// as not found.
func (e Engine) GetUserProfile(ctx context.Context, caller identity.Caller, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !u.Active {
		return domain.User{}, repo.ErrNotFound
	}
	return redactContact(caller, u), nil
}

// redactContact clears email and phone unless the caller is looking at
// their own profile or is a manager.
func redactContact(caller identity.Caller, u domain.User) domain.User {
	if caller.UserID == u.ID || caller.Role == domain.RoleProjectManager {
		return u
	}
	u.Email = ""
	u.Phone = ""
	return u
}

func hasSpecialization(u domain.User, want string) bool {
	for _, s := range u.Specializations {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

func yearsExperience(u domain.User) int {
	if u.YearsExperience == nil {
		return 0
	}
	return *u.YearsExperience
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Title             string
	Description       string
	Location          string
	Category          string
	Urgency           string
	Budget            *float64
	Open              bool
	ExpectedStartDate *string
	ExpectedEndDate   *string
}

func (e Engine) CreateProject(ctx context.Context, caller identity.Caller, opts ProjectCreateOptions) (domain.Project, error) {
	if err := auth.CanCreateProject(caller); err != nil {
		return domain.Project{}, err
	}
	if opts.Title == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if !e.Config.Category(opts.Category) {
		return domain.Project{}, fmt.Errorf("unknown category %s", opts.Category)
	}
	if opts.Urgency == "" {
		opts.Urgency = e.Config.Marketplace.DefaultUrgency
	}
	status := "draft"
	if opts.Open {
		status = "open"
	}
	now := e.nowStr()
	p := domain.Project{
		ID:                uuid.New().String(),
		HomeownerID:       caller.UserID,
		Title:             opts.Title,
		Description:       opts.Description,
		Location:          opts.Location,
		Category:          opts.Category,
		Urgency:           opts.Urgency,
		Budget:            opts.Budget,
		Status:            status,
		ExpectedStartDate: opts.ExpectedStartDate,
		ExpectedEndDate:   opts.ExpectedEndDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectCreated, p.ID, "project", p.ID, caller.UserID, events.EventPayload{"status": p.Status, "category": p.Category}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, caller identity.Caller, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := auth.CanViewProject(caller, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects applies the caller's visibility: homeowners see their own
// projects, contractors see the marketplace, managers see everything.
func (e Engine) ListProjects(ctx context.Context, caller identity.Caller, f repo.ProjectFilters) ([]domain.Project, error) {
	switch caller.Role {
	case domain.RoleHomeowner:
		f.HomeownerID = caller.UserID
	case domain.RoleContractor:
		if f.Status == "" {
			f.Status = "open"
		} else if f.Status != "open" && f.Status != "in_progress" {
			return nil, auth.DeniedError{Reason: auth.ReasonRoleNotPermitted, Action: "project.list"}
		}
	case domain.RoleProjectManager:
	default:
		return nil, auth.DeniedError{Reason: auth.ReasonRoleNotPermitted, Action: "project.list"}
	}
	return e.Repo.ListProjects(ctx, f)
}

// ProjectUpdateOptions encapsulates the mutable project fields. Status is
// changed through SetProjectStatus only.
type ProjectUpdateOptions struct {
	Title             *string
	Description       *string
	Location          *string
	Category          *string
	Urgency           *string
	Budget            *float64
	ExpectedStartDate *string
	ExpectedEndDate   *string
}

func (e Engine) UpdateProject(ctx context.Context, caller identity.Caller, id string, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := auth.CanUpdateProject(caller, p); err != nil {
		return domain.Project{}, err
	}
	if opts.Title != nil {
		p.Title = *opts.Title
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	if opts.Location != nil {
		p.Location = *opts.Location
	}
	if opts.Category != nil {
		if !e.Config.Category(*opts.Category) {
			return domain.Project{}, fmt.Errorf("unknown category %s", *opts.Category)
		}
		p.Category = *opts.Category
	}
	if opts.Urgency != nil {
		p.Urgency = *opts.Urgency
	}
	if opts.Budget != nil {
		p.Budget = opts.Budget
	}
	if opts.ExpectedStartDate != nil {
		p.ExpectedStartDate = opts.ExpectedStartDate
	}
	if opts.ExpectedEndDate != nil {
		p.ExpectedEndDate = opts.ExpectedEndDate
	}
	p.UpdatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectUpdated, p.ID, "project", p.ID, caller.UserID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) SetProjectStatus(ctx context.Context, caller identity.Caller, id, status string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := auth.CanUpdateProject(caller, p); err != nil {
		return domain.Project{}, err
	}
	if err := ensureProjectTransition(p.Status, status); err != nil {
		return domain.Project{}, err
	}
	from := p.Status
	p.Status = status
	now := e.nowStr()
	if status == "in_progress" && p.ActualStartDate == nil {
		p.ActualStartDate = &now
	}
	if status == "completed" && p.ActualEndDate == nil {
		p.ActualEndDate = &now
	}
	p.UpdatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectStatusSet, p.ID, "project", p.ID, caller.UserID, events.EventPayload{"from": from, "to": status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, caller identity.Caller, id string) error {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.CanUpdateProject(caller, p); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectDeleted, p.ID, "project", p.ID, caller.UserID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// BidCreateOptions are parameters for submitting a bid.
type BidCreateOptions struct {
	Price             float64
	EstimatedDuration int
	Description       string
	ProposedStartDate *string
	WarrantyMonths    *int
	ValidUntil        *string
}

func (e Engine) SubmitBid(ctx context.Context, caller identity.Caller, projectID string, opts BidCreateOptions) (domain.Bid, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Bid{}, err
	}
	hasActive, err := e.Repo.HasActiveBid(ctx, projectID, caller.UserID)
	if err != nil {
		return domain.Bid{}, err
	}
	if err := auth.CanSubmitBid(caller, p, hasActive); err != nil {
		return domain.Bid{}, err
	}
	if opts.Price < e.Config.Marketplace.MinBidPrice {
		return domain.Bid{}, fmt.Errorf("price below minimum %.2f", e.Config.Marketplace.MinBidPrice)
	}
	if opts.EstimatedDuration <= 0 || opts.EstimatedDuration > e.Config.Marketplace.MaxBidDuration {
		return domain.Bid{}, fmt.Errorf("estimated duration must be between 1 and %d days", e.Config.Marketplace.MaxBidDuration)
	}
	if opts.WarrantyMonths != nil && *opts.WarrantyMonths > e.Config.Marketplace.WarrantyCeiling {
		return domain.Bid{}, fmt.Errorf("warranty exceeds %d months", e.Config.Marketplace.WarrantyCeiling)
	}
	now := e.nowStr()
	b := domain.Bid{
		ID:                uuid.New().String(),
		ProjectID:         projectID,
		ContractorID:      caller.UserID,
		Price:             opts.Price,
		EstimatedDuration: opts.EstimatedDuration,
		Description:       opts.Description,
		Status:            "pending",
		ProposedStartDate: opts.ProposedStartDate,
		WarrantyMonths:    opts.WarrantyMonths,
		ValidUntil:        opts.ValidUntil,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bid{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertBidTx(ctx, tx, b); err != nil {
		// The pre-check above races with concurrent submissions; the
		// partial unique index is the authority.
		if isUniqueViolation(err) {
			return domain.Bid{}, ErrDuplicateBid
		}
		return domain.Bid{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeBidSubmitted, projectID, "bid", b.ID, caller.UserID, events.EventPayload{"price": b.Price}); err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, err
	}
	return b, nil
}

func (e Engine) GetBid(ctx context.Context, caller identity.Caller, id string) (domain.Bid, error) {
	b, ref, err := e.Repo.GetBid(ctx, id)
	if err != nil {
		return domain.Bid{}, err
	}
	if err := auth.CanViewBid(caller, b, ref.AsProject()); err != nil {
		return domain.Bid{}, err
	}
	return b, nil
}

// ListProjectBids returns a project's bids for its owner or a manager, and a
// contractor's own bids on it otherwise.
func (e Engine) ListProjectBids(ctx context.Context, caller identity.Caller, projectID string) ([]domain.Bid, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	f := repo.BidFilters{ProjectID: projectID}
	if caller.Role != domain.RoleProjectManager && caller.UserID != p.HomeownerID {
		if caller.Role != domain.RoleContractor {
			return nil, auth.DeniedError{Reason: auth.ReasonNotOwner, Action: "bid.list"}
		}
		f.ContractorID = caller.UserID
	}
	return e.Repo.ListBids(ctx, f)
}

// ListBids is the cross-project listing: contractors see their own bids,
// homeowners see bids on their own projects, managers see everything.
func (e Engine) ListBids(ctx context.Context, caller identity.Caller, f repo.BidFilters) ([]domain.Bid, error) {
	switch caller.Role {
	case domain.RoleProjectManager:
	case domain.RoleContractor:
		f.ContractorID = caller.UserID
	case domain.RoleHomeowner:
		f.ProjectOwnerID = caller.UserID
	default:
		return nil, auth.DeniedError{Reason: auth.ReasonRoleNotPermitted, Action: "bid.list"}
	}
	return e.Repo.ListBids(ctx, f)
}

// BidUpdateOptions encapsulates the fields a contractor may revise while the
// bid is still pending.
type BidUpdateOptions struct {
	Price             *float64
	EstimatedDuration *int
	Description       *string
	ProposedStartDate *string
	WarrantyMonths    *int
	ValidUntil        *string
}

func (e Engine) UpdateBid(ctx context.Context, caller identity.Caller, id string, opts BidUpdateOptions) (domain.Bid, error) {
	b, _, err := e.Repo.GetBid(ctx, id)
	if err != nil {
		return domain.Bid{}, err
	}
	if caller.UserID != b.ContractorID {
		return domain.Bid{}, auth.DeniedError{Reason: auth.ReasonNotOwner, Action: "bid.update"}
	}
	if b.Status != "pending" {
		return domain.Bid{}, InvalidTransitionError{Entity: "bid", From: b.Status, To: b.Status}
	}
	if opts.Price != nil {
		if *opts.Price < e.Config.Marketplace.MinBidPrice {
			return domain.Bid{}, fmt.Errorf("price below minimum %.2f", e.Config.Marketplace.MinBidPrice)
		}
		b.Price = *opts.Price
	}
	if opts.EstimatedDuration != nil {
		b.EstimatedDuration = *opts.EstimatedDuration
	}
	if opts.Description != nil {
		b.Description = *opts.Description
	}
	if opts.ProposedStartDate != nil {
		b.ProposedStartDate = opts.ProposedStartDate
	}
	if opts.WarrantyMonths != nil {
		b.WarrantyMonths = opts.WarrantyMonths
	}
	if opts.ValidUntil != nil {
		b.ValidUntil = opts.ValidUntil
	}
	b.UpdatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bid{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateBidTx(ctx, tx, b); err != nil {
		return domain.Bid{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeBidUpdated, b.ProjectID, "bid", b.ID, caller.UserID, nil); err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, err
	}
	return b, nil
}

// SetBidStatus drives the bid state machine. Acceptance runs the cascade:
// the project moves to in_progress with this bid recorded, and every other
// pending bid is rejected, all in one transaction. Both the bid and the
// project are re-read inside the transaction so a concurrent withdraw or a
// competing accept cannot be overwritten.
func (e Engine) SetBidStatus(ctx context.Context, caller identity.Caller, id, target string) (domain.Bid, error) {
	b, ref, err := e.Repo.GetBid(ctx, id)
	if err != nil {
		return domain.Bid{}, err
	}
	if err := auth.CanSetBidStatus(caller, b, ref.AsProject(), target); err != nil {
		return domain.Bid{}, err
	}
	if err := ensureBidTransition(b.Status, target); err != nil {
		return domain.Bid{}, err
	}
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bid{}, err
	}
	defer tx.Rollback()

	// Acceptance is decided on the project row the transaction sees. A
	// competing accept that already committed shows up here as the project
	// no longer being open.
	var p domain.Project
	if target == "accepted" {
		p, err = e.Repo.GetProjectTx(ctx, tx, b.ProjectID)
		if err != nil {
			return domain.Bid{}, err
		}
		if p.Status != "open" {
			return domain.Bid{}, ErrProjectAlreadyCommitted
		}
	}

	// The bid may have been withdrawn or rejected since the authorization
	// read; verify the transition again on the in-transaction row before
	// writing anything.
	b, _, err = e.Repo.GetBidTx(ctx, tx, id)
	if err != nil {
		return domain.Bid{}, err
	}
	if err := ensureBidTransition(b.Status, target); err != nil {
		return domain.Bid{}, err
	}

	if target == "accepted" {
		if err := e.Repo.UpdateBidStatusTx(ctx, tx, b.ID, "accepted", now); err != nil {
			return domain.Bid{}, err
		}
		rejected, err := e.Repo.RejectPendingBidsTx(ctx, tx, b.ProjectID, b.ID, now)
		if err != nil {
			return domain.Bid{}, err
		}
		p.Status = "in_progress"
		p.AcceptedBidID = &b.ID
		if p.ActualStartDate == nil {
			p.ActualStartDate = &now
		}
		p.UpdatedAt = now
		if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
			return domain.Bid{}, err
		}
		if rejected > 0 {
			if err := e.Events.Append(ctx, tx, events.TypeBidCascadeReject, b.ProjectID, "bid", b.ID, caller.UserID, events.EventPayload{"rejected": rejected}); err != nil {
				return domain.Bid{}, err
			}
		}
	} else {
		if err := e.Repo.UpdateBidStatusTx(ctx, tx, b.ID, target, now); err != nil {
			return domain.Bid{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeBidStatusSet, b.ProjectID, "bid", b.ID, caller.UserID, events.EventPayload{"from": b.Status, "to": target}); err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, err
	}
	b.Status = target
	b.UpdatedAt = now
	return b, nil
}

// MilestoneCreateOptions are parameters for creating a milestone.
type MilestoneCreateOptions struct {
	Title              string
	Description        string
	Order              int
	AssignedTo         *string
	PaymentAmount      *float64
	Notes              string
	EstimatedStartDate *string
	EstimatedEndDate   *string
}

func (e Engine) CreateMilestone(ctx context.Context, caller identity.Caller, projectID string, opts MilestoneCreateOptions) (domain.Milestone, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := auth.CanCreateMilestone(caller, p); err != nil {
		return domain.Milestone{}, err
	}
	if opts.Title == "" {
		return domain.Milestone{}, errors.New("title is required")
	}
	count, err := e.Repo.CountMilestones(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if count >= e.Config.Marketplace.MilestoneLimit {
		return domain.Milestone{}, fmt.Errorf("project already has %d milestones", count)
	}
	if opts.Order <= 0 {
		opts.Order = count + 1
	}
	now := e.nowStr()
	m := domain.Milestone{
		ID:                 uuid.New().String(),
		ProjectID:          projectID,
		Title:              opts.Title,
		Description:        opts.Description,
		Status:             "pending",
		Order:              opts.Order,
		AssignedTo:         opts.AssignedTo,
		PaymentAmount:      opts.PaymentAmount,
		Notes:              opts.Notes,
		EstimatedStartDate: opts.EstimatedStartDate,
		EstimatedEndDate:   opts.EstimatedEndDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMilestoneTx(ctx, tx, m); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeMilestoneCreated, projectID, "milestone", m.ID, caller.UserID, events.EventPayload{"order": m.Order}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

func (e Engine) GetMilestone(ctx context.Context, caller identity.Caller, id string) (domain.Milestone, error) {
	m, ref, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := auth.CanViewMilestone(caller, m, ref.AsProject()); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

func (e Engine) ListMilestones(ctx context.Context, caller identity.Caller, projectID string) ([]domain.Milestone, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := auth.CanViewProject(caller, p); err != nil {
		return nil, err
	}
	return e.Repo.ListMilestones(ctx, projectID)
}

// MilestoneUpdateOptions encapsulates the mutable milestone fields. Client
// supplied actual dates are honored only while the stored value is unset.
type MilestoneUpdateOptions struct {
	Title              *string
	Description        *string
	Order              *int
	AssignedTo         *string
	PaymentAmount      *float64
	Notes              *string
	EstimatedStartDate *string
	EstimatedEndDate   *string
	ActualStartDate    *string
	ActualEndDate      *string
}

func (e Engine) UpdateMilestone(ctx context.Context, caller identity.Caller, id string, opts MilestoneUpdateOptions) (domain.Milestone, error) {
	m, ref, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := auth.CanUpdateMilestone(caller, m, ref.AsProject()); err != nil {
		return domain.Milestone{}, err
	}
	if opts.Title != nil {
		m.Title = *opts.Title
	}
	if opts.Description != nil {
		m.Description = *opts.Description
	}
	if opts.Order != nil {
		m.Order = *opts.Order
	}
	if opts.AssignedTo != nil {
		if *opts.AssignedTo == "" {
			m.AssignedTo = nil
		} else {
			m.AssignedTo = opts.AssignedTo
		}
	}
	if opts.PaymentAmount != nil {
		m.PaymentAmount = opts.PaymentAmount
	}
	if opts.Notes != nil {
		m.Notes = *opts.Notes
	}
	if opts.EstimatedStartDate != nil {
		m.EstimatedStartDate = opts.EstimatedStartDate
	}
	if opts.EstimatedEndDate != nil {
		m.EstimatedEndDate = opts.EstimatedEndDate
	}
	if opts.ActualStartDate != nil && m.ActualStartDate == nil {
		m.ActualStartDate = opts.ActualStartDate
	}
	if opts.ActualEndDate != nil && m.ActualEndDate == nil {
		m.ActualEndDate = opts.ActualEndDate
	}
	m.UpdatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMilestoneTx(ctx, tx, m); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeMilestoneUpdated, m.ProjectID, "milestone", m.ID, caller.UserID, nil); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// SetMilestoneStatus drives the milestone state machine and stamps actual
// dates on the first entry into in_progress and completed.
func (e Engine) SetMilestoneStatus(ctx context.Context, caller identity.Caller, id, status string) (domain.Milestone, error) {
	m, ref, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := auth.CanUpdateMilestone(caller, m, ref.AsProject()); err != nil {
		return domain.Milestone{}, err
	}
	if err := ensureMilestoneTransition(m.Status, status); err != nil {
		return domain.Milestone{}, err
	}
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	// A concurrent status change may have committed since the
	// authorization read; verify the transition on the row this
	// transaction sees before writing.
	m, _, err = e.Repo.GetMilestoneTx(ctx, tx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := ensureMilestoneTransition(m.Status, status); err != nil {
		return domain.Milestone{}, err
	}
	from := m.Status
	m.Status = status
	if status == "in_progress" && m.ActualStartDate == nil {
		m.ActualStartDate = &now
	}
	if status == "completed" && m.ActualEndDate == nil {
		m.ActualEndDate = &now
	}
	m.UpdatedAt = now
	if err := e.Repo.UpdateMilestoneTx(ctx, tx, m); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeMilestoneStatus, m.ProjectID, "milestone", m.ID, caller.UserID, events.EventPayload{"from": from, "to": status}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

func (e Engine) DeleteMilestone(ctx context.Context, caller identity.Caller, id string) error {
	m, ref, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.CanUpdateMilestone(caller, m, ref.AsProject()); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMilestone(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeMilestoneDeleted, m.ProjectID, "milestone", m.ID, caller.UserID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

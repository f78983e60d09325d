package server

import (
	"homebid/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email           string   `json:"email" format:"email"`
	Password        string   `json:"password" minLength:"8"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Role            string   `json:"role" enum:"homeowner,contractor,project_manager"`
	Phone           *string  `json:"phone,omitempty"`
	Bio             *string  `json:"bio,omitempty"`
	YearsExperience *int     `json:"years_experience,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	FirstName       *string  `json:"first_name,omitempty"`
	LastName        *string  `json:"last_name,omitempty"`
	Phone           *string  `json:"phone,omitempty"`
	Bio             *string  `json:"bio,omitempty"`
	YearsExperience *int     `json:"years_experience,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
}

type CreateProjectRequest struct {
	Title             string   `json:"title"`
	Description       *string  `json:"description,omitempty"`
	Location          *string  `json:"location,omitempty"`
	Category          string   `json:"category"`
	Urgency           *string  `json:"urgency,omitempty" enum:"low,medium,high"`
	Budget            *float64 `json:"budget,omitempty"`
	Open              bool     `json:"open,omitempty"`
	ExpectedStartDate *string  `json:"expected_start_date,omitempty" format:"date-time"`
	ExpectedEndDate   *string  `json:"expected_end_date,omitempty" format:"date-time"`
}

type UpdateProjectRequest struct {
	Title             *string  `json:"title,omitempty"`
	Description       *string  `json:"description,omitempty"`
	Location          *string  `json:"location,omitempty"`
	Category          *string  `json:"category,omitempty"`
	Urgency           *string  `json:"urgency,omitempty" enum:"low,medium,high"`
	Budget            *float64 `json:"budget,omitempty"`
	ExpectedStartDate *string  `json:"expected_start_date,omitempty" format:"date-time"`
	ExpectedEndDate   *string  `json:"expected_end_date,omitempty" format:"date-time"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type CreateBidRequest struct {
	Price             float64 `json:"price" minimum:"0"`
	EstimatedDuration int     `json:"estimated_duration" minimum:"1"`
	Description       *string `json:"description,omitempty"`
	ProposedStartDate *string `json:"proposed_start_date,omitempty" format:"date-time"`
	WarrantyMonths    *int    `json:"warranty_months,omitempty"`
	ValidUntil        *string `json:"valid_until,omitempty" format:"date-time"`
}

type UpdateBidRequest struct {
	Price             *float64 `json:"price,omitempty" minimum:"0"`
	EstimatedDuration *int     `json:"estimated_duration,omitempty" minimum:"1"`
	Description       *string  `json:"description,omitempty"`
	ProposedStartDate *string  `json:"proposed_start_date,omitempty" format:"date-time"`
	WarrantyMonths    *int     `json:"warranty_months,omitempty"`
	ValidUntil        *string  `json:"valid_until,omitempty" format:"date-time"`
}

type CreateMilestoneRequest struct {
	Title              string   `json:"title"`
	Description        *string  `json:"description,omitempty"`
	Order              *int     `json:"order,omitempty" minimum:"1"`
	AssignedTo         *string  `json:"assigned_to,omitempty"`
	PaymentAmount      *float64 `json:"payment_amount,omitempty" minimum:"0"`
	Notes              *string  `json:"notes,omitempty"`
	EstimatedStartDate *string  `json:"estimated_start_date,omitempty" format:"date-time"`
	EstimatedEndDate   *string  `json:"estimated_end_date,omitempty" format:"date-time"`
}

type UpdateMilestoneRequest struct {
	Title              *string  `json:"title,omitempty"`
	Description        *string  `json:"description,omitempty"`
	Order              *int     `json:"order,omitempty" minimum:"1"`
	AssignedTo         *string  `json:"assigned_to,omitempty"`
	PaymentAmount      *float64 `json:"payment_amount,omitempty" minimum:"0"`
	Notes              *string  `json:"notes,omitempty"`
	EstimatedStartDate *string  `json:"estimated_start_date,omitempty" format:"date-time"`
	EstimatedEndDate   *string  `json:"estimated_end_date,omitempty" format:"date-time"`
	ActualStartDate    *string  `json:"actual_start_date,omitempty" format:"date-time"`
	ActualEndDate      *string  `json:"actual_end_date,omitempty" format:"date-time"`
}

// Response payloads

type UserResponse struct {
	ID              string   `json:"id"`
	Email           string   `json:"email,omitempty" format:"email"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Role            string   `json:"role" enum:"homeowner,contractor,project_manager"`
	Phone           string   `json:"phone,omitempty"`
	Bio             string   `json:"bio,omitempty"`
	YearsExperience *int     `json:"years_experience,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type ProjectResponse struct {
	ID                string   `json:"id"`
	HomeownerID       string   `json:"homeowner_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Location          string   `json:"location,omitempty"`
	Category          string   `json:"category"`
	Urgency           string   `json:"urgency" enum:"low,medium,high"`
	Budget            *float64 `json:"budget,omitempty"`
	Status            string   `json:"status" enum:"draft,open,in_progress,completed,cancelled"`
	AcceptedBidID     *string  `json:"accepted_bid_id,omitempty"`
	ExpectedStartDate *string  `json:"expected_start_date,omitempty" format:"date-time"`
	ExpectedEndDate   *string  `json:"expected_end_date,omitempty" format:"date-time"`
	ActualStartDate   *string  `json:"actual_start_date,omitempty" format:"date-time"`
	ActualEndDate     *string  `json:"actual_end_date,omitempty" format:"date-time"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type BidResponse struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	ContractorID      string  `json:"contractor_id"`
	Price             float64 `json:"price"`
	EstimatedDuration int     `json:"estimated_duration"`
	Description       string  `json:"description,omitempty"`
	Status            string  `json:"status" enum:"pending,accepted,rejected,withdrawn"`
	ProposedStartDate *string `json:"proposed_start_date,omitempty" format:"date-time"`
	WarrantyMonths    *int    `json:"warranty_months,omitempty"`
	ValidUntil        *string `json:"valid_until,omitempty" format:"date-time"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type MilestoneResponse struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Status             string   `json:"status" enum:"pending,in_progress,completed,blocked"`
	Order              int      `json:"order"`
	AssignedTo         *string  `json:"assigned_to,omitempty"`
	PaymentAmount      *float64 `json:"payment_amount,omitempty"`
	Notes              string   `json:"notes,omitempty"`
	EstimatedStartDate *string  `json:"estimated_start_date,omitempty" format:"date-time"`
	EstimatedEndDate   *string  `json:"estimated_end_date,omitempty" format:"date-time"`
	ActualStartDate    *string  `json:"actual_start_date,omitempty" format:"date-time"`
	ActualEndDate      *string  `json:"actual_end_date,omitempty" format:"date-time"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	UpdatedAt          string   `json:"updated_at" format:"date-time"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty" maxLength:"100"`
}

// APIKeyResponse carries the plaintext key only on creation.
type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            u.Role,
		Phone:           u.Phone,
		Bio:             u.Bio,
		YearsExperience: u.YearsExperience,
		Specializations: u.Specializations,
		CreatedAt:       u.CreatedAt,
	}
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:                p.ID,
		HomeownerID:       p.HomeownerID,
		Title:             p.Title,
		Description:       p.Description,
		Location:          p.Location,
		Category:          p.Category,
		Urgency:           p.Urgency,
		Budget:            p.Budget,
		Status:            p.Status,
		AcceptedBidID:     p.AcceptedBidID,
		ExpectedStartDate: p.ExpectedStartDate,
		ExpectedEndDate:   p.ExpectedEndDate,
		ActualStartDate:   p.ActualStartDate,
		ActualEndDate:     p.ActualEndDate,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func bidResponse(b domain.Bid) BidResponse {
	return BidResponse{
		ID:                b.ID,
		ProjectID:         b.ProjectID,
		ContractorID:      b.ContractorID,
		Price:             b.Price,
		EstimatedDuration: b.EstimatedDuration,
		Description:       b.Description,
		Status:            b.Status,
		ProposedStartDate: b.ProposedStartDate,
		WarrantyMonths:    b.WarrantyMonths,
		ValidUntil:        b.ValidUntil,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func mapBids(items []domain.Bid) []BidResponse {
	res := make([]BidResponse, 0, len(items))
	for _, b := range items {
		res = append(res, bidResponse(b))
	}
	return res
}

func milestoneResponse(m domain.Milestone) MilestoneResponse {
	return MilestoneResponse{
		ID:                 m.ID,
		ProjectID:          m.ProjectID,
		Title:              m.Title,
		Description:        m.Description,
		Status:             m.Status,
		Order:              m.Order,
		AssignedTo:         m.AssignedTo,
		PaymentAmount:      m.PaymentAmount,
		Notes:              m.Notes,
		EstimatedStartDate: m.EstimatedStartDate,
		EstimatedEndDate:   m.EstimatedEndDate,
		ActualStartDate:    m.ActualStartDate,
		ActualEndDate:      m.ActualEndDate,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func mapMilestones(items []domain.Milestone) []MilestoneResponse {
	res := make([]MilestoneResponse, 0, len(items))
	for _, m := range items {
		res = append(res, milestoneResponse(m))
	}
	return res
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

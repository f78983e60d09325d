package domain

const (
	RoleHomeowner      = "homeowner"
	RoleContractor     = "contractor"
	RoleProjectManager = "project_manager"
)

type User struct {
	ID              string   `json:"id"`
	Email           string   `json:"email" format:"email"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Role            string   `json:"role" enum:"homeowner,contractor,project_manager"`
	Phone           string   `json:"phone,omitempty"`
	Active          bool     `json:"active"`
	Bio             string   `json:"bio,omitempty"`
	YearsExperience *int     `json:"years_experience,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID                string   `json:"id"`
	HomeownerID       string   `json:"homeowner_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Location          string   `json:"location,omitempty"`
	Category          string   `json:"category" enum:"kitchen,bathroom,roofing,flooring,painting,plumbing,electrical,landscaping,general"`
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

type Bid struct {
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

type Milestone struct {
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

package auth

import (
	"fmt"

	"homebid/internal/domain"
	"homebid/internal/identity"
)

// Deny reasons carried by DeniedError.
const (
	ReasonNotOwner         = "not_owner"
	ReasonRoleNotPermitted = "role_not_permitted"
	ReasonResourceNotOpen  = "resource_not_open"
	ReasonDuplicateBid     = "duplicate_bid"
)

// DeniedError indicates the caller may not perform an action on a resource.
type DeniedError struct {
	Reason string
	Action string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Action, e.Reason)
}

func deny(action, reason string) error {
	return DeniedError{Reason: reason, Action: action}
}

// manager reports whether the caller holds the superuser role.
func manager(c identity.Caller) bool {
	return c.Role == domain.RoleProjectManager
}

// CanViewProject allows the owner, a manager, or any contractor once the
// project is visible on the marketplace (open or in progress).
func CanViewProject(c identity.Caller, p domain.Project) error {
	if manager(c) || c.UserID == p.HomeownerID {
		return nil
	}
	if c.Role == domain.RoleContractor && (p.Status == "open" || p.Status == "in_progress") {
		return nil
	}
	if c.Role == domain.RoleContractor {
		return deny("project.view", ReasonRoleNotPermitted)
	}
	return deny("project.view", ReasonNotOwner)
}

// CanCreateProject allows homeowners only; managers create on behalf of no one.
func CanCreateProject(c identity.Caller) error {
	if c.Role == domain.RoleHomeowner {
		return nil
	}
	return deny("project.create", ReasonRoleNotPermitted)
}

// CanUpdateProject covers update, delete and status changes on a project.
func CanUpdateProject(c identity.Caller, p domain.Project) error {
	if manager(c) || c.UserID == p.HomeownerID {
		return nil
	}
	return deny("project.update", ReasonNotOwner)
}

// CanViewBid allows the bid's contractor, the parent project's owner, or a manager.
func CanViewBid(c identity.Caller, b domain.Bid, p domain.Project) error {
	if manager(c) || c.UserID == b.ContractorID || c.UserID == p.HomeownerID {
		return nil
	}
	return deny("bid.view", ReasonNotOwner)
}

// CanSubmitBid allows a contractor to bid on an open project, at most one
// live bid per contractor per project. hasActiveBid is the loader's pre-check;
// the storage uniqueness constraint closes the remaining race.
func CanSubmitBid(c identity.Caller, p domain.Project, hasActiveBid bool) error {
	if c.Role != domain.RoleContractor {
		return deny("bid.create", ReasonRoleNotPermitted)
	}
	if p.Status != "open" {
		return deny("bid.create", ReasonResourceNotOpen)
	}
	if hasActiveBid {
		return deny("bid.create", ReasonDuplicateBid)
	}
	return nil
}

// CanSetBidStatus splits by target: only the bid's contractor withdraws,
// only the parent project's owner accepts or rejects.
func CanSetBidStatus(c identity.Caller, b domain.Bid, p domain.Project, target string) error {
	switch target {
	case "withdrawn":
		if c.UserID == b.ContractorID {
			return nil
		}
		return deny("bid.withdraw", ReasonNotOwner)
	case "accepted", "rejected":
		if manager(c) || c.UserID == p.HomeownerID {
			return nil
		}
		return deny("bid.decide", ReasonNotOwner)
	default:
		return deny("bid.set_status", ReasonRoleNotPermitted)
	}
}

// CanViewMilestone allows the parent project's owner, the assignee, or a manager.
func CanViewMilestone(c identity.Caller, m domain.Milestone, p domain.Project) error {
	if manager(c) || c.UserID == p.HomeownerID {
		return nil
	}
	if m.AssignedTo != nil && c.UserID == *m.AssignedTo {
		return nil
	}
	return deny("milestone.view", ReasonNotOwner)
}

// CanCreateMilestone allows the parent project's owner or a manager.
func CanCreateMilestone(c identity.Caller, p domain.Project) error {
	if manager(c) || c.UserID == p.HomeownerID {
		return nil
	}
	return deny("milestone.create", ReasonNotOwner)
}

// CanUpdateMilestone covers update, delete and status changes on a milestone.
func CanUpdateMilestone(c identity.Caller, m domain.Milestone, p domain.Project) error {
	if manager(c) || c.UserID == p.HomeownerID {
		return nil
	}
	if m.AssignedTo != nil && c.UserID == *m.AssignedTo {
		return nil
	}
	return deny("milestone.update", ReasonNotOwner)
}

package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"homebid/internal/config"
	"homebid/internal/db"
	"homebid/internal/domain"
	"homebid/internal/engine"
	"homebid/internal/engine/auth"
	"homebid/internal/identity"
	"homebid/internal/migrate"
	"homebid/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Server.BcryptCost = 4
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func register(t *testing.T, env testEnv, email, role string) identity.Caller {
	t.Helper()
	u, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{
		Email:     email,
		Password:  "hunter2hunter2",
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return identity.Caller{UserID: u.ID, Role: u.Role}
}

func openProject(t *testing.T, env testEnv, owner identity.Caller) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, owner, engine.ProjectCreateOptions{
		Title:    "Kitchen remodel",
		Category: "kitchen",
		Open:     true,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestProjectStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	p, err := env.Engine.CreateProject(env.Ctx, owner, engine.ProjectCreateOptions{
		Title:    "Bathroom refresh",
		Category: "bathroom",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Status != "draft" {
		t.Fatalf("expected draft, got %s", p.Status)
	}
	// draft cannot complete directly
	if _, err := env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "completed"); err == nil {
		t.Fatalf("expected transition error")
	}
	p, err = env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "open")
	if err != nil || p.Status != "open" {
		t.Fatalf("to open: %v", err)
	}
	p, err = env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "in_progress")
	if err != nil || p.Status != "in_progress" {
		t.Fatalf("to in_progress: %v", err)
	}
	if p.ActualStartDate == nil {
		t.Fatalf("expected actual start date stamped")
	}
	p, err = env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "completed")
	if err != nil || p.Status != "completed" {
		t.Fatalf("to completed: %v", err)
	}
	if p.ActualEndDate == nil {
		t.Fatalf("expected actual end date stamped")
	}
	// completed is absorbing
	if _, err := env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "cancelled"); err == nil {
		t.Fatalf("expected completed to be terminal")
	}
	var te engine.InvalidTransitionError
	_, err = env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "open")
	if !errors.As(err, &te) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestProjectCancelIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	p := openProject(t, env, owner)
	p, err := env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "cancelled")
	if err != nil || p.Status != "cancelled" {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "open"); err == nil {
		t.Fatalf("expected cancelled to be terminal")
	}
}

func TestBidAcceptCascade(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	p := openProject(t, env, owner)

	var bids []domain.Bid
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		c := register(t, env, email, domain.RoleContractor)
		b, err := env.Engine.SubmitBid(env.Ctx, c, p.ID, engine.BidCreateOptions{Price: 5000, EstimatedDuration: 30})
		if err != nil {
			t.Fatalf("submit bid: %v", err)
		}
		bids = append(bids, b)
	}

	won, err := env.Engine.SetBidStatus(env.Ctx, owner, bids[0].ID, "accepted")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if won.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", won.Status)
	}

	p, err = env.Engine.GetProject(env.Ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Status != "in_progress" {
		t.Fatalf("expected project in_progress, got %s", p.Status)
	}
	if p.AcceptedBidID == nil || *p.AcceptedBidID != won.ID {
		t.Fatalf("expected accepted bid recorded")
	}
	if p.ActualStartDate == nil {
		t.Fatalf("expected actual start date stamped on accept")
	}

	all, err := env.Engine.ListProjectBids(env.Ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	for _, b := range all {
		want := "rejected"
		if b.ID == won.ID {
			want = "accepted"
		}
		if b.Status != want {
			t.Fatalf("bid %s: expected %s, got %s", b.ID, want, b.Status)
		}
	}
}

func TestAcceptLosesRaceToCommittedProject(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	contractor := register(t, env, "c@example.com", domain.RoleContractor)
	p := openProject(t, env, owner)
	b, err := env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 100, EstimatedDuration: 5})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	// The project commits without this bid; the accept must lose.
	if _, err := env.Engine.SetProjectStatus(env.Ctx, owner, p.ID, "in_progress"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	_, err = env.Engine.SetBidStatus(env.Ctx, owner, b.ID, "accepted")
	if !errors.Is(err, engine.ErrProjectAlreadyCommitted) {
		t.Fatalf("expected ErrProjectAlreadyCommitted, got %v", err)
	}
	// The losing bid is untouched.
	got, err := env.Engine.GetBid(env.Ctx, owner, b.ID)
	if err != nil || got.Status != "pending" {
		t.Fatalf("expected bid still pending: %v %s", err, got.Status)
	}
}

func TestAcceptLosesToInterleavedWithdraw(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	contractor := register(t, env, "c@example.com", domain.RoleContractor)
	p := openProject(t, env, owner)
	b, err := env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 100, EstimatedDuration: 5})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}

	// A withdraw commits after the accept's authorization read but before
	// its transaction begins. The clock hook sits exactly in that window.
	plain := env.Engine
	hooked := env.Engine
	var withdrawn bool
	hooked.Now = func() time.Time {
		if !withdrawn {
			withdrawn = true
			if _, err := plain.SetBidStatus(env.Ctx, contractor, b.ID, "withdrawn"); err != nil {
				t.Errorf("withdraw: %v", err)
			}
		}
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	_, err = hooked.SetBidStatus(env.Ctx, owner, b.ID, "accepted")
	var te engine.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	got, err := env.Engine.GetBid(env.Ctx, owner, b.ID)
	if err != nil || got.Status != "withdrawn" {
		t.Fatalf("expected bid to stay withdrawn: %v %s", err, got.Status)
	}
	p, err = env.Engine.GetProject(env.Ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Status != "open" || p.AcceptedBidID != nil {
		t.Fatalf("expected project untouched, got %s", p.Status)
	}
}

func TestConcurrentAcceptsSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	p := openProject(t, env, owner)

	var bids []domain.Bid
	for _, email := range []string{"a@example.com", "b@example.com"} {
		c := register(t, env, email, domain.RoleContractor)
		b, err := env.Engine.SubmitBid(env.Ctx, c, p.ID, engine.BidCreateOptions{Price: 5000, EstimatedDuration: 30})
		if err != nil {
			t.Fatalf("submit bid: %v", err)
		}
		bids = append(bids, b)
	}

	// Both accepts pass their authorization reads while the project is
	// still open, then commit one after the other.
	arrived := make(chan struct{}, 2)
	proceed := make(chan struct{})
	eng := env.Engine
	eng.Now = func() time.Time {
		arrived <- struct{}{}
		<-proceed
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, b := range bids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := eng.SetBidStatus(env.Ctx, owner, id, "accepted")
			errs <- err
		}(b.ID)
	}
	<-arrived
	<-arrived
	proceed <- struct{}{}
	first := <-errs
	proceed <- struct{}{}
	second := <-errs
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range []error{first, second} {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, engine.ErrProjectAlreadyCommitted):
			losses++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one ErrProjectAlreadyCommitted, got %d/%d", wins, losses)
	}

	p, err := env.Engine.GetProject(env.Ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Status != "in_progress" || p.AcceptedBidID == nil {
		t.Fatalf("expected committed project, got %s", p.Status)
	}
	all, err := env.Engine.ListProjectBids(env.Ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("list bids: %v", err)
	}
	accepted, rejected := 0, 0
	for _, b := range all {
		switch b.Status {
		case "accepted":
			accepted++
			if b.ID != *p.AcceptedBidID {
				t.Fatalf("accepted bid does not match project record")
			}
		case "rejected":
			rejected++
		default:
			t.Fatalf("unexpected bid status %s", b.Status)
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Fatalf("expected 1 accepted and 1 rejected, got %d/%d", accepted, rejected)
	}
}

func TestDuplicateBidAndResubmitAfterWithdraw(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	contractor := register(t, env, "c@example.com", domain.RoleContractor)
	p := openProject(t, env, owner)

	b, err := env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 100, EstimatedDuration: 5})
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	_, err = env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 90, EstimatedDuration: 5})
	var de auth.DeniedError
	if !errors.As(err, &de) || de.Reason != auth.ReasonDuplicateBid {
		t.Fatalf("expected duplicate bid denial, got %v", err)
	}

	if _, err := env.Engine.SetBidStatus(env.Ctx, contractor, b.ID, "withdrawn"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 90, EstimatedDuration: 5}); err != nil {
		t.Fatalf("resubmit after withdraw: %v", err)
	}
}

func TestBidValidation(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	contractor := register(t, env, "c@example.com", domain.RoleContractor)
	p := openProject(t, env, owner)

	if _, err := env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 100, EstimatedDuration: 0}); err == nil {
		t.Fatalf("expected duration validation error")
	}
	months := 600
	_, err := env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 100, EstimatedDuration: 5, WarrantyMonths: &months})
	if err == nil || !strings.Contains(err.Error(), "warranty") {
		t.Fatalf("expected warranty validation error, got %v", err)
	}
}

func TestWithdrawnIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	contractor := register(t, env, "c@example.com", domain.RoleContractor)
	p := openProject(t, env, owner)
	b, err := env.Engine.SubmitBid(env.Ctx, contractor, p.ID, engine.BidCreateOptions{Price: 100, EstimatedDuration: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.SetBidStatus(env.Ctx, contractor, b.ID, "withdrawn"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := env.Engine.SetBidStatus(env.Ctx, owner, b.ID, "accepted"); err == nil {
		t.Fatalf("expected withdrawn to be terminal")
	}
}

func TestMilestoneWorkflowAndDateStamps(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	p := openProject(t, env, owner)
	m, err := env.Engine.CreateMilestone(env.Ctx, owner, p.ID, engine.MilestoneCreateOptions{Title: "Demo day"})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}
	if m.Status != "pending" || m.Order != 1 {
		t.Fatalf("expected pending order 1, got %s %d", m.Status, m.Order)
	}

	m, err = env.Engine.SetMilestoneStatus(env.Ctx, owner, m.ID, "in_progress")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.ActualStartDate == nil {
		t.Fatalf("expected actual start stamped")
	}
	started := *m.ActualStartDate

	// block and resume later: the original start date survives
	env.Engine.Now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	if m, err = env.Engine.SetMilestoneStatus(env.Ctx, owner, m.ID, "blocked"); err != nil {
		t.Fatalf("block: %v", err)
	}
	if m, err = env.Engine.SetMilestoneStatus(env.Ctx, owner, m.ID, "in_progress"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if m.ActualStartDate == nil || *m.ActualStartDate != started {
		t.Fatalf("expected start date unchanged on resume")
	}

	m, err = env.Engine.SetMilestoneStatus(env.Ctx, owner, m.ID, "completed")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if m.ActualEndDate == nil {
		t.Fatalf("expected actual end stamped")
	}
	if _, err := env.Engine.SetMilestoneStatus(env.Ctx, owner, m.ID, "in_progress"); err == nil {
		t.Fatalf("expected completed to be terminal")
	}
	// pending cannot complete directly
	m2, err := env.Engine.CreateMilestone(env.Ctx, owner, p.ID, engine.MilestoneCreateOptions{Title: "Punch list"})
	if err != nil {
		t.Fatalf("create second milestone: %v", err)
	}
	if m2.Order != 2 {
		t.Fatalf("expected order 2, got %d", m2.Order)
	}
	if _, err := env.Engine.SetMilestoneStatus(env.Ctx, owner, m2.ID, "completed"); err == nil {
		t.Fatalf("expected pending->completed rejected")
	}
}

func TestMilestoneActualDatesWriteOnce(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	p := openProject(t, env, owner)
	m, err := env.Engine.CreateMilestone(env.Ctx, owner, p.ID, engine.MilestoneCreateOptions{Title: "Framing"})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}
	first := "2025-05-01T00:00:00Z"
	m, err = env.Engine.UpdateMilestone(env.Ctx, owner, m.ID, engine.MilestoneUpdateOptions{ActualStartDate: &first})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.ActualStartDate == nil || *m.ActualStartDate != first {
		t.Fatalf("expected client start date honored while unset")
	}
	second := "2025-05-09T00:00:00Z"
	m, err = env.Engine.UpdateMilestone(env.Ctx, owner, m.ID, engine.MilestoneUpdateOptions{ActualStartDate: &second})
	if err != nil {
		t.Fatalf("update again: %v", err)
	}
	if *m.ActualStartDate != first {
		t.Fatalf("expected actual start date immutable once set")
	}
}

func TestMilestoneStatusLosesToInterleavedChange(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	p := openProject(t, env, owner)
	m, err := env.Engine.CreateMilestone(env.Ctx, owner, p.ID, engine.MilestoneCreateOptions{Title: "Demo day"})
	if err != nil {
		t.Fatalf("create milestone: %v", err)
	}

	// Another start commits between this call's authorization read and its
	// transaction; the second start must fail instead of restamping dates.
	plain := env.Engine
	hooked := env.Engine
	var raced bool
	hooked.Now = func() time.Time {
		if !raced {
			raced = true
			if _, err := plain.SetMilestoneStatus(env.Ctx, owner, m.ID, "in_progress"); err != nil {
				t.Errorf("interleaved start: %v", err)
			}
		}
		return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	}

	_, err = hooked.SetMilestoneStatus(env.Ctx, owner, m.ID, "in_progress")
	var te engine.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	got, err := env.Engine.GetMilestone(env.Ctx, owner, m.ID)
	if err != nil || got.Status != "in_progress" {
		t.Fatalf("expected milestone in_progress: %v", err)
	}
	if got.ActualStartDate == nil || *got.ActualStartDate != "2025-06-01T12:00:00Z" {
		t.Fatalf("expected start date from the first start, got %v", got.ActualStartDate)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "dup@example.com", domain.RoleHomeowner)
	_, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{
		Email:    "DUP@example.com",
		Password: "hunter2hunter2",
		Role:     domain.RoleContractor,
	})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestLoginAndResolveCaller(t *testing.T) {
	env := newTestEnv(t)
	c := register(t, env, "who@example.com", domain.RoleContractor)

	u, err := env.Engine.Login(env.Ctx, "who@example.com", "hunter2hunter2")
	if err != nil || u.ID != c.UserID {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.Engine.Login(env.Ctx, "who@example.com", "wrong"); !errors.Is(err, identity.ErrInvalidAssertion) {
		t.Fatalf("expected invalid assertion, got %v", err)
	}

	if err := env.Engine.Repo.SetUserActive(env.Ctx, c.UserID, false, "2025-06-01T12:00:00Z"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := env.Engine.ResolveCaller(env.Ctx, c.UserID); !errors.Is(err, identity.ErrInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
	if _, err := env.Engine.Login(env.Ctx, "who@example.com", "hunter2hunter2"); !errors.Is(err, identity.ErrInactiveAccount) {
		t.Fatalf("expected inactive account on login, got %v", err)
	}
}

func TestProjectVisibility(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	other := register(t, env, "other@example.com", domain.RoleHomeowner)
	contractor := register(t, env, "c@example.com", domain.RoleContractor)
	pm := register(t, env, "pm@example.com", domain.RoleProjectManager)

	draft, err := env.Engine.CreateProject(env.Ctx, owner, engine.ProjectCreateOptions{Title: "Hidden", Category: "roofing"})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	open := openProject(t, env, owner)

	// contractors see open projects, not drafts
	if _, err := env.Engine.GetProject(env.Ctx, contractor, open.ID); err != nil {
		t.Fatalf("contractor view open: %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, contractor, draft.ID); err == nil {
		t.Fatalf("expected contractor denied on draft")
	}
	// another homeowner sees neither
	var de auth.DeniedError
	_, err = env.Engine.GetProject(env.Ctx, other, open.ID)
	if !errors.As(err, &de) || de.Reason != auth.ReasonNotOwner {
		t.Fatalf("expected not_owner denial, got %v", err)
	}
	// managers see everything
	if _, err := env.Engine.GetProject(env.Ctx, pm, draft.ID); err != nil {
		t.Fatalf("manager view draft: %v", err)
	}

	// marketplace listing defaults to open for contractors
	items, err := env.Engine.ListProjects(env.Ctx, contractor, repo.ProjectFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != open.ID {
		t.Fatalf("expected only the open project, got %d", len(items))
	}
	if _, err := env.Engine.ListProjects(env.Ctx, contractor, repo.ProjectFilters{Status: "draft"}); err == nil {
		t.Fatalf("expected contractor denied listing drafts")
	}
}

func TestContractorDirectory(t *testing.T) {
	env := newTestEnv(t)
	owner := register(t, env, "owner@example.com", domain.RoleHomeowner)
	pm := register(t, env, "pm@example.com", domain.RoleProjectManager)
	vet := register(t, env, "vet@example.com", domain.RoleContractor)
	rookie := register(t, env, "rookie@example.com", domain.RoleContractor)
	retired := register(t, env, "retired@example.com", domain.RoleContractor)

	twenty, two := 20, 2
	phone := "555-0101"
	if _, err := env.Engine.UpdateProfile(env.Ctx, vet, engine.ProfileUpdateOptions{
		Phone:           &phone,
		YearsExperience: &twenty,
		Specializations: []string{"plumbing", "tiling"},
	}); err != nil {
		t.Fatalf("update vet: %v", err)
	}
	if _, err := env.Engine.UpdateProfile(env.Ctx, rookie, engine.ProfileUpdateOptions{
		YearsExperience: &two,
		Specializations: []string{"plumbing"},
	}); err != nil {
		t.Fatalf("update rookie: %v", err)
	}
	if err := env.Engine.Repo.SetUserActive(env.Ctx, retired.UserID, false, "2025-06-01T12:00:00Z"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// inactive contractors stay out; most experienced first
	got, err := env.Engine.ListContractors(env.Ctx, owner, "")
	if err != nil {
		t.Fatalf("list contractors: %v", err)
	}
	if len(got) != 2 || got[0].ID != vet.UserID || got[1].ID != rookie.UserID {
		t.Fatalf("expected vet then rookie, got %d entries", len(got))
	}
	// contact details are hidden from other homeowners and contractors
	if got[0].Email != "" || got[0].Phone != "" {
		t.Fatalf("expected contact redacted, got %q %q", got[0].Email, got[0].Phone)
	}

	got, err = env.Engine.ListContractors(env.Ctx, owner, "Tiling")
	if err != nil {
		t.Fatalf("filter by specialization: %v", err)
	}
	if len(got) != 1 || got[0].ID != vet.UserID {
		t.Fatalf("expected only the tiler, got %d entries", len(got))
	}

	got, err = env.Engine.ListContractors(env.Ctx, pm, "")
	if err != nil {
		t.Fatalf("manager list: %v", err)
	}
	if got[0].Email != "vet@example.com" || got[0].Phone != phone {
		t.Fatalf("expected manager to see contact details")
	}

	// public profiles: self sees contact, strangers do not, inactive hidden
	u, err := env.Engine.GetUserProfile(env.Ctx, vet, vet.UserID)
	if err != nil || u.Email != "vet@example.com" {
		t.Fatalf("self profile: %v", err)
	}
	u, err = env.Engine.GetUserProfile(env.Ctx, rookie, vet.UserID)
	if err != nil || u.Email != "" || u.Phone != "" {
		t.Fatalf("expected stranger profile redacted: %v", err)
	}
	if _, err := env.Engine.GetUserProfile(env.Ctx, owner, retired.UserID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected inactive profile hidden, got %v", err)
	}
}

func TestOnlyHomeownersCreateProjects(t *testing.T) {
	env := newTestEnv(t)
	contractor := register(t, env, "c@example.com", domain.RoleContractor)
	_, err := env.Engine.CreateProject(env.Ctx, contractor, engine.ProjectCreateOptions{Title: "Nope", Category: "kitchen"})
	var de auth.DeniedError
	if !errors.As(err, &de) || de.Reason != auth.ReasonRoleNotPermitted {
		t.Fatalf("expected role denial, got %v", err)
	}
}

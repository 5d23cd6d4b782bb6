package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
	"github.com/dentacore/dentaflow/internal/repository/memory"
)

type proposalFixture struct {
	svc          *ProposalService
	caseRepo     *memory.CaseRepository
	proposalRepo *memory.ProposalRepository
	doctorRepo   *memory.DoctorRepository
	patientID    uuid.UUID
}

func newProposalFixture(t *testing.T) *proposalFixture {
	t.Helper()

	caseRepo := memory.NewCaseRepository()
	proposalRepo := memory.NewProposalRepository(caseRepo)
	doctorRepo := memory.NewDoctorRepository()
	auditSvc := NewAuditService(memory.NewAuditRepository(), zap.NewNop())
	t.Cleanup(auditSvc.Shutdown)

	return &proposalFixture{
		svc:          NewProposalService(proposalRepo, caseRepo, doctorRepo, auditSvc, zap.NewNop(), 3),
		caseRepo:     caseRepo,
		proposalRepo: proposalRepo,
		doctorRepo:   doctorRepo,
		patientID:    uuid.New(),
	}
}

func (f *proposalFixture) addDoctor(t *testing.T, rating string, experience int) *doctor.Doctor {
	t.Helper()
	d := &doctor.Doctor{
		FirstName:       "A",
		LastName:        "B",
		Rating:          decimal.RequireFromString(rating),
		ExperienceYears: experience,
		Status:          doctor.StatusActive,
	}
	if err := f.doctorRepo.Create(context.Background(), d); err != nil {
		t.Fatalf("creating doctor: %v", err)
	}
	return d
}

func (f *proposalFixture) addOpenCase(t *testing.T, doctors ...uuid.UUID) *dentalcase.Case {
	t.Helper()
	c := &dentalcase.Case{
		PatientID:         f.patientID,
		Title:             "molar extraction",
		Urgency:           dentalcase.UrgencyNormal,
		Status:            dentalcase.StatusOpen,
		PaymentStatus:     dentalcase.PaymentUnpaid,
		AssignedDoctorIDs: doctors,
		CreatedBy:         f.patientID,
	}
	if err := f.caseRepo.Create(context.Background(), c); err != nil {
		t.Fatalf("creating case: %v", err)
	}
	return c
}

func (f *proposalFixture) submit(t *testing.T, caseID uuid.UUID, d *doctor.Doctor, cost int64) *proposal.Proposal {
	t.Helper()
	p, err := f.svc.SubmitProposal(context.Background(), &proposal.SubmitProposalCommand{
		CaseID:   caseID,
		DoctorID: d.ID,
		Cost:     decimal.NewFromInt(cost),
	}, uuid.New(), "doctor", &d.ID, "")
	if err != nil {
		t.Fatalf("SubmitProposal: %v", err)
	}
	return p
}

func TestSubmitProposalMovesCaseToAssigned(t *testing.T) {
	f := newProposalFixture(t)
	d := f.addDoctor(t, "4.5", 10)
	c := f.addOpenCase(t, d.ID)

	p := f.submit(t, c.ID, d, 1000)
	if p.Status != proposal.StatusPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
	if p.DoctorName != d.FullName() {
		t.Errorf("doctor name snapshot = %q, want %q", p.DoctorName, d.FullName())
	}

	reloaded, _ := f.caseRepo.GetByID(context.Background(), c.ID)
	if reloaded.Status != dentalcase.StatusAssigned {
		t.Errorf("case status = %s, want assigned", reloaded.Status)
	}
}

func TestSubmitProposalGuards(t *testing.T) {
	f := newProposalFixture(t)
	assigned := f.addDoctor(t, "4.0", 5)
	stranger := f.addDoctor(t, "4.0", 5)
	c := f.addOpenCase(t, assigned.ID)

	// Unassigned doctor cannot propose.
	_, err := f.svc.SubmitProposal(context.Background(), &proposal.SubmitProposalCommand{
		CaseID: c.ID, DoctorID: stranger.ID, Cost: decimal.NewFromInt(500),
	}, uuid.New(), "doctor", &stranger.ID, "")
	if !errors.Is(err, dentalcase.ErrDoctorNotAssigned) {
		t.Errorf("unassigned submit err = %v, want ErrDoctorNotAssigned", err)
	}

	// Only one pending proposal per doctor per case.
	f.submit(t, c.ID, assigned, 1000)
	_, err = f.svc.SubmitProposal(context.Background(), &proposal.SubmitProposalCommand{
		CaseID: c.ID, DoctorID: assigned.ID, Cost: decimal.NewFromInt(900),
	}, uuid.New(), "doctor", &assigned.ID, "")
	if !errors.Is(err, proposal.ErrDuplicateProposal) {
		t.Errorf("duplicate submit err = %v, want ErrDuplicateProposal", err)
	}

	// A doctor cannot submit under someone else's profile.
	_, err = f.svc.SubmitProposal(context.Background(), &proposal.SubmitProposalCommand{
		CaseID: c.ID, DoctorID: assigned.ID, Cost: decimal.NewFromInt(500),
	}, uuid.New(), "doctor", &stranger.ID, "")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("impersonated submit err = %v, want ErrForbidden", err)
	}
}

func TestEditProposalSnapshotsPreviousCost(t *testing.T) {
	f := newProposalFixture(t)
	d := f.addDoctor(t, "4.0", 5)
	c := f.addOpenCase(t, d.ID)
	p := f.submit(t, c.ID, d, 1000)

	newCost := decimal.NewFromInt(800)
	edited, err := f.svc.EditProposal(context.Background(), p.ID, &proposal.EditProposalCommand{
		Cost: &newCost,
	}, uuid.New(), "doctor", &d.ID, "")
	if err != nil {
		t.Fatalf("EditProposal: %v", err)
	}
	if !edited.Cost.Equal(newCost) {
		t.Errorf("cost = %s, want 800", edited.Cost)
	}
	if edited.PreviousCost == nil || !edited.PreviousCost.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("previous cost = %v, want 1000", edited.PreviousCost)
	}
}

func TestSelectProposalAcceptsOneRejectsSiblings(t *testing.T) {
	f := newProposalFixture(t)
	d1 := f.addDoctor(t, "4.5", 10)
	d2 := f.addDoctor(t, "3.5", 3)
	c := f.addOpenCase(t, d1.ID, d2.ID)

	p1 := f.submit(t, c.ID, d1, 1000)
	p2 := f.submit(t, c.ID, d2, 800)

	accepted, err := f.svc.SelectProposal(context.Background(), c.ID, p1.ID, f.patientID, "patient", "")
	if err != nil {
		t.Fatalf("SelectProposal: %v", err)
	}
	if accepted.Status != proposal.StatusAccepted || accepted.AcceptedAt == nil {
		t.Errorf("accepted = %s/%v, want accepted with timestamp", accepted.Status, accepted.AcceptedAt)
	}

	sibling, _ := f.proposalRepo.GetByID(context.Background(), p2.ID)
	if sibling.Status != proposal.StatusRejected {
		t.Errorf("sibling status = %s, want rejected", sibling.Status)
	}

	reloaded, _ := f.caseRepo.GetByID(context.Background(), c.ID)
	if reloaded.Status != dentalcase.StatusInProgress {
		t.Errorf("case status = %s, want in_progress", reloaded.Status)
	}
	if reloaded.ChosenProposalID == nil || *reloaded.ChosenProposalID != p1.ID {
		t.Errorf("chosen proposal = %v, want %s", reloaded.ChosenProposalID, p1.ID)
	}
}

func TestSelectProposalConcurrentOnlyOneWins(t *testing.T) {
	f := newProposalFixture(t)
	d1 := f.addDoctor(t, "4.5", 10)
	d2 := f.addDoctor(t, "3.5", 3)
	c := f.addOpenCase(t, d1.ID, d2.ID)

	p1 := f.submit(t, c.ID, d1, 1000)
	p2 := f.submit(t, c.ID, d2, 800)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pid := range []uuid.UUID{p1.ID, p2.ID} {
		wg.Add(1)
		go func(i int, pid uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.SelectProposal(context.Background(), c.ID, pid, f.patientID, "patient", "")
		}(i, pid)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, proposal.ErrSelectionConflict),
			errors.Is(err, dentalcase.ErrInvalidStatusTransition),
			errors.Is(err, proposal.ErrProposalNotPending):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins = %d losses = %d, want exactly one of each", wins, losses)
	}

	reloaded, _ := f.caseRepo.GetByID(context.Background(), c.ID)
	if reloaded.ChosenProposalID == nil {
		t.Fatal("no proposal chosen after concurrent selection")
	}
}

func TestStaleCaseWriteCannotRevertSelection(t *testing.T) {
	f := newProposalFixture(t)
	d1 := f.addDoctor(t, "4.5", 10)
	d2 := f.addDoctor(t, "3.5", 3)
	c := f.addOpenCase(t, d1.ID, d2.ID)

	// Snapshot taken before any proposals, the way a slow submit on another
	// instance would hold one across a concurrent selection.
	stale, err := f.caseRepo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	p1 := f.submit(t, c.ID, d1, 1000)
	p2 := f.submit(t, c.ID, d2, 800)

	if _, err := f.svc.SelectProposal(context.Background(), c.ID, p1.ID, f.patientID, "patient", ""); err != nil {
		t.Fatalf("SelectProposal: %v", err)
	}

	// The stale write-back must be refused, not clobber the selection.
	stale.Status = dentalcase.StatusAssigned
	err = f.caseRepo.UpdateStatus(context.Background(), stale, dentalcase.StatusOpen)
	if !errors.Is(err, dentalcase.ErrCaseModified) {
		t.Fatalf("stale UpdateStatus err = %v, want ErrCaseModified", err)
	}

	reloaded, _ := f.caseRepo.GetByID(context.Background(), c.ID)
	if reloaded.Status != dentalcase.StatusInProgress {
		t.Errorf("case status = %s, want in_progress", reloaded.Status)
	}
	if reloaded.ChosenProposalID == nil || *reloaded.ChosenProposalID != p1.ID {
		t.Fatalf("chosen proposal = %v, want %s", reloaded.ChosenProposalID, p1.ID)
	}

	// With the selection intact a second accept is impossible.
	if _, err := f.svc.SelectProposal(context.Background(), c.ID, p2.ID, f.patientID, "patient", ""); err == nil {
		t.Fatal("second selection succeeded on an already decided case")
	}
	second, _ := f.proposalRepo.GetByID(context.Background(), p2.ID)
	if second.Status == proposal.StatusAccepted {
		t.Errorf("second proposal accepted alongside the first")
	}
}

func TestSelectProposalRejectsWrongCase(t *testing.T) {
	f := newProposalFixture(t)
	d := f.addDoctor(t, "4.0", 5)
	c1 := f.addOpenCase(t, d.ID)
	c2 := f.addOpenCase(t, d.ID)
	p := f.submit(t, c1.ID, d, 1000)

	_, err := f.svc.SelectProposal(context.Background(), c2.ID, p.ID, f.patientID, "patient", "")
	if !errors.Is(err, proposal.ErrProposalCaseMismatch) {
		t.Errorf("err = %v, want ErrProposalCaseMismatch", err)
	}
}

func TestDeleteAcceptedProposalFails(t *testing.T) {
	f := newProposalFixture(t)
	d := f.addDoctor(t, "4.0", 5)
	c := f.addOpenCase(t, d.ID)
	p := f.submit(t, c.ID, d, 1000)

	if _, err := f.svc.SelectProposal(context.Background(), c.ID, p.ID, f.patientID, "patient", ""); err != nil {
		t.Fatalf("SelectProposal: %v", err)
	}

	err := f.svc.DeleteProposal(context.Background(), p.ID, uuid.New(), "admin", "")
	if !errors.Is(err, proposal.ErrProposalNotPending) {
		t.Errorf("delete accepted err = %v, want ErrProposalNotPending", err)
	}
}

func TestCompareProposalsRanksPendingOnly(t *testing.T) {
	f := newProposalFixture(t)
	cheap := f.addDoctor(t, "3.0", 2)
	pricey := f.addDoctor(t, "5.0", 15)
	withdrawn := f.addDoctor(t, "4.0", 8)
	c := f.addOpenCase(t, cheap.ID, pricey.ID, withdrawn.ID)

	pCheap := f.submit(t, c.ID, cheap, 500)
	f.submit(t, c.ID, pricey, 900)
	pw := f.submit(t, c.ID, withdrawn, 100)

	if _, err := f.svc.WithdrawProposal(context.Background(), pw.ID, uuid.New(), "doctor", &withdrawn.ID, ""); err != nil {
		t.Fatalf("WithdrawProposal: %v", err)
	}

	ranked, err := f.svc.CompareProposals(context.Background(), c.ID, f.patientID, "patient")
	if err != nil {
		t.Fatalf("CompareProposals: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked %d proposals, want 2", len(ranked))
	}
	if ranked[0].Proposal.ID != pCheap.ID {
		t.Errorf("cheapest pending proposal should rank first")
	}
	if !ranked[0].DoctorRating.Equal(decimal.RequireFromString("3.0")) {
		t.Errorf("doctor rating not joined into comparison")
	}
}

func TestCompleteTreatment(t *testing.T) {
	f := newProposalFixture(t)
	d := f.addDoctor(t, "4.0", 5)
	other := f.addDoctor(t, "4.0", 5)
	c := f.addOpenCase(t, d.ID)
	p := f.submit(t, c.ID, d, 1000)

	if _, err := f.svc.SelectProposal(context.Background(), c.ID, p.ID, f.patientID, "patient", ""); err != nil {
		t.Fatalf("SelectProposal: %v", err)
	}

	// Only the chosen doctor may complete.
	_, err := f.svc.CompleteTreatment(context.Background(), c.ID, uuid.New(), "doctor", &other.ID, "")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("wrong doctor complete err = %v, want ErrForbidden", err)
	}

	completed, err := f.svc.CompleteTreatment(context.Background(), c.ID, uuid.New(), "doctor", &d.ID, "")
	if err != nil {
		t.Fatalf("CompleteTreatment: %v", err)
	}
	if completed.Status != dentalcase.StatusCompleted {
		t.Errorf("case status = %s, want completed", completed.Status)
	}

	chosen, _ := f.proposalRepo.GetByID(context.Background(), p.ID)
	if chosen.Status != proposal.StatusCompleted {
		t.Errorf("proposal status = %s, want completed", chosen.Status)
	}
}

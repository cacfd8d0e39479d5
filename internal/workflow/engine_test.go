package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"grantflow/internal/config"
	"grantflow/internal/db"
	"grantflow/internal/domain"
	"grantflow/internal/migrate"
	"grantflow/internal/repo"
	"grantflow/internal/workflow"
)

type testEnv struct {
	Engine workflow.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("dep-1")
	eng := workflow.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	env := testEnv{Engine: eng, Ctx: context.Background()}
	seedUser(t, env, "admin", domain.RoleAdmin)
	seedUser(t, env, "alice", domain.RoleProposer)
	seedUser(t, env, "rina", domain.RoleReviewer)
	seedUser(t, env, "budi", domain.RoleReviewer)
	return env
}

func seedUser(t *testing.T, env testEnv, id string, role domain.Role) {
	t.Helper()
	err := env.Engine.Repo.InsertUser(env.Ctx, nil, domain.User{
		ID:        id,
		Name:      id,
		Email:     id + "@example.org",
		Role:      role,
		Active:    true,
		CreatedAt: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func submittedProposal(t *testing.T, env testEnv) domain.Proposal {
	t.Helper()
	p, err := env.Engine.CreateProposal(env.Ctx, workflow.ProposalCreateOptions{
		PeriodID:         "2024-1",
		Title:            "Coral reef restoration",
		Abstract:         "Restoring reefs with microfragmentation.",
		FileRef:          "files/proposal-v1.pdf",
		RequestedFunding: 10_000_000,
		ActorID:          "alice",
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	p, err = env.Engine.SubmitProposal(env.Ctx, p.ID, "alice")
	if err != nil {
		t.Fatalf("submit proposal: %v", err)
	}
	return p
}

func screenPass(t *testing.T, env testEnv, proposalID string) {
	t.Helper()
	_, err := env.Engine.Screen(env.Ctx, workflow.ScreeningOptions{
		ProposalID:      proposalID,
		CheckWriting:    true,
		CheckComponents: true,
		Verdict:         domain.ScreeningPass,
		ActorID:         "admin",
	})
	if err != nil {
		t.Fatalf("screen pass: %v", err)
	}
}

func underReviewProposal(t *testing.T, env testEnv) domain.Proposal {
	t.Helper()
	p := submittedProposal(t, env)
	screenPass(t, env, p.ID)
	_, err := env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID:  p.ID,
		ReviewerIDs: []string{"rina", "budi"},
		ActorID:     "admin",
	})
	if err != nil {
		t.Fatalf("assign reviewers: %v", err)
	}
	return p
}

// submitPanelReviews submits a review for every still-pending assignment of
// the proposal, so it also works after a revision opens a new round.
func submitPanelReviews(t *testing.T, env testEnv, proposalID string, scores map[string]int) {
	t.Helper()
	for reviewer, score := range scores {
		assignments, err := env.Engine.AssignmentsFor(env.Ctx, reviewer)
		if err != nil {
			t.Fatalf("assignments for %s: %v", reviewer, err)
		}
		for _, a := range assignments {
			if a.ProposalID != proposalID || a.Review != nil {
				continue
			}
			_, err := env.Engine.SubmitReview(env.Ctx, workflow.ReviewSubmitOptions{
				AssignmentID:   a.ID,
				Score:          score,
				Recommendation: domain.RecommendAccept,
				ActorID:        reviewer,
			})
			if err != nil {
				t.Fatalf("submit review %s: %v", reviewer, err)
			}
		}
	}
}

func acceptedProposal(t *testing.T, env testEnv, funding int64) domain.Proposal {
	t.Helper()
	p := underReviewProposal(t, env)
	submitPanelReviews(t, env, p.ID, map[string]int{"rina": 80, "budi": 90})
	p, err := env.Engine.Approve(env.Ctx, workflow.ApproveOptions{
		ProposalID:      p.ID,
		ApprovedFunding: funding,
		ActorID:         "admin",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return p
}

func executingProposal(t *testing.T, env testEnv) (domain.Proposal, domain.Contract) {
	t.Helper()
	p := acceptedProposal(t, env, 10_000_000)
	c, err := env.Engine.CreateContract(env.Ctx, p.ID, "admin")
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	c, err = env.Engine.ActivateContract(env.Ctx, workflow.ActivateOptions{
		ContractID:      c.ID,
		ContractFileRef: "files/contract-signed.pdf",
		DecreeFileRef:   "files/decree-signed.pdf",
		ActorID:         "admin",
	})
	if err != nil {
		t.Fatalf("activate contract: %v", err)
	}
	p, err = env.Engine.ProposalFor(env.Ctx, p.ID, "admin")
	if err != nil {
		t.Fatalf("reload proposal: %v", err)
	}
	return p, c
}

func TestSubmissionGates(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProposal(env.Ctx, workflow.ProposalCreateOptions{
		PeriodID:         "2024-1",
		Title:            "No file yet",
		Abstract:         "Abstract present.",
		RequestedFunding: 1_000_000,
		ActorID:          "alice",
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, p.ID, "alice"); err == nil {
		t.Fatalf("expected submit to fail without a file")
	}
	if _, err := env.Engine.ReplaceFile(env.Ctx, p.ID, "files/proposal-v1.pdf", "alice"); err != nil {
		t.Fatalf("replace file: %v", err)
	}
	p, err = env.Engine.SubmitProposal(env.Ctx, p.ID, "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p.Status != domain.StatusSubmitted || p.SubmittedAt == nil {
		t.Fatalf("expected submitted proposal, got %s", p.Status)
	}
	// resubmitting is not a legal transition
	_, err = env.Engine.SubmitProposal(env.Ctx, p.ID, "alice")
	var te workflow.IllegalTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if te.From != domain.StatusSubmitted || te.To != domain.StatusSubmitted {
		t.Fatalf("unexpected transition error %v", te)
	}
}

func TestScreeningVerdictGatesReview(t *testing.T) {
	env := newTestEnv(t)
	p := submittedProposal(t, env)

	// failing verdicts need remarks
	_, err := env.Engine.Screen(env.Ctx, workflow.ScreeningOptions{
		ProposalID: p.ID, Verdict: domain.ScreeningFail, ActorID: "admin",
	})
	var ve workflow.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// a pass requires the full checklist
	_, err = env.Engine.Screen(env.Ctx, workflow.ScreeningOptions{
		ProposalID: p.ID, CheckWriting: true, Verdict: domain.ScreeningPass, ActorID: "admin",
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected checklist validation error, got %v", err)
	}

	p, err = env.Engine.Screen(env.Ctx, workflow.ScreeningOptions{
		ProposalID:      p.ID,
		CheckWriting:    true,
		CheckComponents: false,
		Verdict:         domain.ScreeningFail,
		Remarks:         "budget breakdown missing",
		ActorID:         "admin",
	})
	if err != nil {
		t.Fatalf("screen fail: %v", err)
	}
	// a failed screening never moves the status
	if p.Status != domain.StatusSubmitted || p.ScreeningVerdict != domain.ScreeningFail {
		t.Fatalf("expected submitted+fail, got %s/%s", p.Status, p.ScreeningVerdict)
	}
	// screened proposals cannot be screened again
	_, err = env.Engine.Screen(env.Ctx, workflow.ScreeningOptions{
		ProposalID: p.ID, CheckWriting: true, CheckComponents: true,
		Verdict: domain.ScreeningPass, ActorID: "admin",
	})
	var ce workflow.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict on double screening, got %v", err)
	}
	// and cannot enter review
	_, err = env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID: p.ID, ReviewerIDs: []string{"rina", "budi"}, ActorID: "admin",
	})
	var pe workflow.PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	// replacing the document clears the verdict and queues a re-screen
	p, err = env.Engine.ReplaceFile(env.Ctx, p.ID, "files/proposal-v2.pdf", "alice")
	if err != nil {
		t.Fatalf("replace file: %v", err)
	}
	if p.ScreeningVerdict != "" || p.ScreenedBy != nil || p.CheckWriting {
		t.Fatalf("expected cleared screening, got %+v", p)
	}
	screenPass(t, env, p.ID)
}

func TestReviewerPanelRules(t *testing.T) {
	env := newTestEnv(t)
	p := submittedProposal(t, env)
	screenPass(t, env, p.ID)

	var ve workflow.ValidationError
	if _, err := env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID: p.ID, ReviewerIDs: []string{"rina"}, ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected panel size error, got %v", err)
	}
	if _, err := env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID: p.ID, ReviewerIDs: []string{"rina", "rina"}, ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected distinct reviewer error, got %v", err)
	}
	if _, err := env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID: p.ID, ReviewerIDs: []string{"rina", "alice"}, ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected non-reviewer error, got %v", err)
	}

	assignments, err := env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID: p.ID, ReviewerIDs: []string{"rina", "budi"}, ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(assignments) != 2 || assignments[0].Round != 1 {
		t.Fatalf("unexpected assignments %+v", assignments)
	}
	var ce workflow.ConflictError
	if _, err := env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID: p.ID, ReviewerIDs: []string{"rina", "budi"}, ActorID: "admin",
	}); !errors.As(err, &ce) {
		t.Fatalf("expected conflict on second panel, got %v", err)
	}

	// only the assigned reviewer may use the assignment
	_, err = env.Engine.SubmitReview(env.Ctx, workflow.ReviewSubmitOptions{
		AssignmentID: assignments[0].ID, Score: 70,
		Recommendation: domain.RecommendAccept, ActorID: "budi",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for foreign assignment, got %v", err)
	}
	rv, err := env.Engine.SubmitReview(env.Ctx, workflow.ReviewSubmitOptions{
		AssignmentID: assignments[0].ID, Score: 70,
		Recommendation: domain.RecommendAccept, ActorID: "rina",
	})
	if err != nil {
		t.Fatalf("submit review: %v", err)
	}
	if rv.Round != 1 || rv.Score != 70 {
		t.Fatalf("unexpected review %+v", rv)
	}
	// a round's review is immutable
	_, err = env.Engine.SubmitReview(env.Ctx, workflow.ReviewSubmitOptions{
		AssignmentID: assignments[0].ID, Score: 75,
		Recommendation: domain.RecommendAccept, ActorID: "rina",
	})
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict on double review, got %v", err)
	}

	// decision is blocked until the whole panel reports
	var pe workflow.PreconditionError
	if _, err := env.Engine.Approve(env.Ctx, workflow.ApproveOptions{
		ProposalID: p.ID, ApprovedFunding: 1_000_000, ActorID: "admin",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected incomplete panel error, got %v", err)
	}
}

func TestApproveSchedulesTermins(t *testing.T) {
	env := newTestEnv(t)
	p := acceptedProposal(t, env, 10_000_001)
	if p.Status != domain.StatusAccepted || p.ApprovedFunding == nil || *p.ApprovedFunding != 10_000_001 {
		t.Fatalf("unexpected decision %+v", p)
	}
	if p.AverageScore == nil || *p.AverageScore != 85 {
		t.Fatalf("expected average 85, got %v", p.AverageScore)
	}
	ds, err := env.Engine.DisbursementsFor(env.Ctx, p.ID, "alice")
	if err != nil {
		t.Fatalf("list disbursements: %v", err)
	}
	if len(ds) != 3 {
		t.Fatalf("expected 3 termins, got %d", len(ds))
	}
	var total int64
	byTermin := map[int]int64{}
	for _, d := range ds {
		if d.Status != domain.DisbursementPending {
			t.Fatalf("expected pending termin, got %s", d.Status)
		}
		byTermin[d.Termin] = d.Nominal
		total += d.Nominal
	}
	// 50/25/25 with the odd unit landing on the last termin
	if byTermin[1] != 5_000_000 || byTermin[2] != 2_500_000 || byTermin[3] != 2_500_001 {
		t.Fatalf("unexpected split %+v", byTermin)
	}
	if total != 10_000_001 {
		t.Fatalf("termins must sum to the funding, got %d", total)
	}
}

func TestRevisionCeiling(t *testing.T) {
	env := newTestEnv(t)
	p := underReviewProposal(t, env)
	submitPanelReviews(t, env, p.ID, map[string]int{"rina": 60, "budi": 65})

	var ve workflow.ValidationError
	if _, err := env.Engine.RequestRevision(env.Ctx, workflow.DecisionOptions{
		ProposalID: p.ID, ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected remarks validation, got %v", err)
	}

	for cycle := 1; cycle <= 2; cycle++ {
		p, err := env.Engine.RequestRevision(env.Ctx, workflow.DecisionOptions{
			ProposalID: p.ID, Remarks: "tighten the methodology", ActorID: "admin",
		})
		if err != nil {
			t.Fatalf("request revision %d: %v", cycle, err)
		}
		if p.Status != domain.StatusRevisionRequested || p.RevisionCount != cycle {
			t.Fatalf("cycle %d: got %s count %d", cycle, p.Status, p.RevisionCount)
		}
		p, err = env.Engine.ResubmitRevision(env.Ctx, workflow.RevisionOptions{
			ProposalID: p.ID, FileRef: "files/proposal-rev.pdf", ActorID: "alice",
		})
		if err != nil {
			t.Fatalf("resubmit %d: %v", cycle, err)
		}
		if p.Status != domain.StatusUnderReview {
			t.Fatalf("cycle %d: expected under_review, got %s", cycle, p.Status)
		}
		submitPanelReviews(t, env, p.ID, map[string]int{"rina": 60 + cycle, "budi": 65 + cycle})
	}

	// the panel is on a fresh round after each resubmission
	assignments, err := env.Engine.AssignmentsFor(env.Ctx, "rina")
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if len(assignments) != 1 || assignments[0].Round != 3 {
		t.Fatalf("expected round 3, got %+v", assignments)
	}

	_, err = env.Engine.RequestRevision(env.Ctx, workflow.DecisionOptions{
		ProposalID: p.ID, Remarks: "one more pass", ActorID: "admin",
	})
	var le workflow.LimitExceededError
	if !errors.As(err, &le) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
	if le.Limit != 2 {
		t.Fatalf("expected ceiling 2, got %d", le.Limit)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	p := underReviewProposal(t, env)
	submitPanelReviews(t, env, p.ID, map[string]int{"rina": 30, "budi": 35})
	p, err := env.Engine.Reject(env.Ctx, workflow.DecisionOptions{
		ProposalID: p.ID, Remarks: "out of scope for the period", ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if p.Status != domain.StatusRejected || p.DecidedAt == nil {
		t.Fatalf("unexpected proposal %+v", p)
	}
	_, err = env.Engine.RequestRevision(env.Ctx, workflow.DecisionOptions{
		ProposalID: p.ID, Remarks: "try again", ActorID: "admin",
	})
	var te workflow.IllegalTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected illegal transition out of rejected, got %v", err)
	}
}

func TestContractNumberingAndActivation(t *testing.T) {
	env := newTestEnv(t)
	p := underReviewProposal(t, env)
	var pe workflow.PreconditionError
	if _, err := env.Engine.CreateContract(env.Ctx, p.ID, "admin"); !errors.As(err, &pe) {
		t.Fatalf("expected precondition before acceptance, got %v", err)
	}
	submitPanelReviews(t, env, p.ID, map[string]int{"rina": 80, "budi": 90})
	if _, err := env.Engine.Approve(env.Ctx, workflow.ApproveOptions{
		ProposalID: p.ID, ApprovedFunding: 5_000_000, ActorID: "admin",
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	c, err := env.Engine.CreateContract(env.Ctx, p.ID, "admin")
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if c.ContractNumber != "KTR-2024-0001" || c.DecreeNumber != "SK-2024-0001" {
		t.Fatalf("unexpected numbering %s / %s", c.ContractNumber, c.DecreeNumber)
	}
	var ce workflow.ConflictError
	if _, err := env.Engine.CreateContract(env.Ctx, p.ID, "admin"); !errors.As(err, &ce) {
		t.Fatalf("expected conflict on duplicate contract, got %v", err)
	}

	// the sequence is per calendar year
	p2 := acceptedProposal(t, env, 2_000_000)
	c2, err := env.Engine.CreateContract(env.Ctx, p2.ID, "admin")
	if err != nil {
		t.Fatalf("second contract: %v", err)
	}
	if c2.ContractNumber != "KTR-2024-0002" {
		t.Fatalf("unexpected second number %s", c2.ContractNumber)
	}

	var ve workflow.ValidationError
	if _, err := env.Engine.ActivateContract(env.Ctx, workflow.ActivateOptions{
		ContractID: c.ID, ContractFileRef: "files/contract.pdf", ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected both documents required, got %v", err)
	}
	c, err = env.Engine.ActivateContract(env.Ctx, workflow.ActivateOptions{
		ContractID:      c.ID,
		ContractFileRef: "files/contract.pdf",
		DecreeFileRef:   "files/decree.pdf",
		ActorID:         "admin",
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if c.Status != domain.ContractSigned || c.ActivatedAt == nil {
		t.Fatalf("unexpected contract %+v", c)
	}
	got, err := env.Engine.ProposalFor(env.Ctx, p.ID, "admin")
	if err != nil || got.Status != domain.StatusExecuting {
		t.Fatalf("expected executing proposal, got %s (%v)", got.Status, err)
	}
	if _, err := env.Engine.ActivateContract(env.Ctx, workflow.ActivateOptions{
		ContractID:      c.ID,
		ContractFileRef: "files/contract.pdf",
		DecreeFileRef:   "files/decree.pdf",
		ActorID:         "admin",
	}); !errors.As(err, &ce) {
		t.Fatalf("expected conflict on re-activation, got %v", err)
	}
}

func TestMonitoringVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	p, _ := executingProposal(t, env)

	var pe workflow.PreconditionError
	if _, err := env.Engine.SubmitFinalReport(env.Ctx, workflow.ReportOptions{
		ProposalID: p.ID, Text: "done", FileRef: "files/final.pdf", ActorID: "alice",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected final gated on progress, got %v", err)
	}

	var ve workflow.ValidationError
	if _, err := env.Engine.SubmitProgressReport(env.Ctx, workflow.ReportOptions{
		ProposalID: p.ID, Text: "halfway", FileRef: "files/progress.pdf", ActorID: "alice",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected percent validation, got %v", err)
	}
	m, err := env.Engine.SubmitProgressReport(env.Ctx, workflow.ReportOptions{
		ProposalID: p.ID, Text: "halfway", FileRef: "files/progress.pdf", Percent: 50, ActorID: "alice",
	})
	if err != nil {
		t.Fatalf("submit progress: %v", err)
	}
	if m.Progress == nil || m.Progress.Verification != domain.VerificationPending {
		t.Fatalf("unexpected monitoring %+v", m)
	}
	// no resubmission while the verdict is pending
	var ce workflow.ConflictError
	if _, err := env.Engine.SubmitProgressReport(env.Ctx, workflow.ReportOptions{
		ProposalID: p.ID, Text: "halfway again", FileRef: "files/progress2.pdf", Percent: 55, ActorID: "alice",
	}); !errors.As(err, &ce) {
		t.Fatalf("expected pending conflict, got %v", err)
	}

	if _, err := env.Engine.VerifyReport(env.Ctx, workflow.VerifyOptions{
		ProposalID: p.ID, Report: "progress", Approved: false, ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected rejection remarks required, got %v", err)
	}
	m, err = env.Engine.VerifyReport(env.Ctx, workflow.VerifyOptions{
		ProposalID: p.ID, Report: "progress", Approved: false, Remarks: "numbers missing", ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("reject progress: %v", err)
	}
	if m.Progress.Verification != domain.VerificationRejected {
		t.Fatalf("expected rejected slot, got %s", m.Progress.Verification)
	}

	// a rejected slot reopens for resubmission
	if _, err := env.Engine.SubmitProgressReport(env.Ctx, workflow.ReportOptions{
		ProposalID: p.ID, Text: "halfway, with numbers", FileRef: "files/progress3.pdf", Percent: 50, ActorID: "alice",
	}); err != nil {
		t.Fatalf("resubmit progress: %v", err)
	}
	if _, err := env.Engine.VerifyReport(env.Ctx, workflow.VerifyOptions{
		ProposalID: p.ID, Report: "progress", Approved: true, ActorID: "admin",
	}); err != nil {
		t.Fatalf("approve progress: %v", err)
	}
	// an approved slot is closed for good
	if _, err := env.Engine.SubmitProgressReport(env.Ctx, workflow.ReportOptions{
		ProposalID: p.ID, Text: "again", FileRef: "files/progress4.pdf", Percent: 60, ActorID: "alice",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected approved slot closed, got %v", err)
	}

	if _, err := env.Engine.VerifyReport(env.Ctx, workflow.VerifyOptions{
		ProposalID: p.ID, Report: "final", Approved: true, ActorID: "admin",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected missing final report, got %v", err)
	}
	if _, err := env.Engine.SubmitFinalReport(env.Ctx, workflow.ReportOptions{
		ProposalID: p.ID, Text: "all milestones met", FileRef: "files/final.pdf", ActorID: "alice",
	}); err != nil {
		t.Fatalf("submit final: %v", err)
	}
	m, err = env.Engine.VerifyReport(env.Ctx, workflow.VerifyOptions{
		ProposalID: p.ID, Report: "final", Approved: true, ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("approve final: %v", err)
	}
	if m.Final.Verification != domain.VerificationApproved {
		t.Fatalf("expected approved final, got %s", m.Final.Verification)
	}
	// approving the final report closes out the grant
	got, err := env.Engine.ProposalFor(env.Ctx, p.ID, "admin")
	if err != nil || got.Status != domain.StatusFinished {
		t.Fatalf("expected finished proposal, got %s (%v)", got.Status, err)
	}
}

func TestDisbursementProofAndImmutability(t *testing.T) {
	env := newTestEnv(t)
	p := acceptedProposal(t, env, 10_000_000)
	ds, err := env.Engine.DisbursementsFor(env.Ctx, p.ID, "admin")
	if err != nil || len(ds) != 3 {
		t.Fatalf("list disbursements: %v (%d)", err, len(ds))
	}
	first := ds[0]

	// disbursed needs the transfer receipt first
	var pe workflow.PreconditionError
	if _, err := env.Engine.SetDisbursementStatus(env.Ctx, workflow.DisbursementStatusOptions{
		DisbursementID: first.ID, Status: domain.DisbursementDisbursed, ActorID: "admin",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected proof required, got %v", err)
	}
	var ae workflow.AuthorizationError
	if _, err := env.Engine.AttachDisbursementProof(env.Ctx, workflow.ProofOptions{
		DisbursementID: first.ID, ProofRef: "files/transfer-1.pdf", ActorID: "alice",
	}); !errors.As(err, &ae) {
		t.Fatalf("expected forbidden for proposer, got %v", err)
	}
	if _, err := env.Engine.AttachDisbursementProof(env.Ctx, workflow.ProofOptions{
		DisbursementID: first.ID, ProofRef: "files/transfer-1.pdf", ActorID: "admin",
	}); err != nil {
		t.Fatalf("attach proof: %v", err)
	}
	d, err := env.Engine.SetDisbursementStatus(env.Ctx, workflow.DisbursementStatusOptions{
		DisbursementID: first.ID, Status: domain.DisbursementDisbursed, ActorID: "admin",
	})
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if d.Status != domain.DisbursementDisbursed || d.DisbursedAt == nil {
		t.Fatalf("unexpected disbursement %+v", d)
	}
	// a disbursed termin never changes again
	if _, err := env.Engine.SetDisbursementStatus(env.Ctx, workflow.DisbursementStatusOptions{
		DisbursementID: first.ID, Status: domain.DisbursementPending, ActorID: "admin",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected immutable termin, got %v", err)
	}
	if _, err := env.Engine.AttachDisbursementProof(env.Ctx, workflow.ProofOptions{
		DisbursementID: first.ID, ProofRef: "files/other.pdf", ActorID: "admin",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected immutable proof, got %v", err)
	}

	// rejection needs remarks
	second := ds[1]
	var ve workflow.ValidationError
	if _, err := env.Engine.SetDisbursementStatus(env.Ctx, workflow.DisbursementStatusOptions{
		DisbursementID: second.ID, Status: domain.DisbursementRejected, ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected rejection remarks, got %v", err)
	}
	if _, err := env.Engine.SetDisbursementStatus(env.Ctx, workflow.DisbursementStatusOptions{
		DisbursementID: second.ID, Status: domain.DisbursementRejected, Remarks: "report overdue", ActorID: "admin",
	}); err != nil {
		t.Fatalf("reject termin: %v", err)
	}
}

func TestOutputVerification(t *testing.T) {
	env := newTestEnv(t)
	p, _ := executingProposal(t, env)

	o, err := env.Engine.AddOutput(env.Ctx, workflow.OutputCreateOptions{
		ProposalID: p.ID, Kind: "publication", Title: "Reef survival rates", ActorID: "alice",
	})
	if err != nil {
		t.Fatalf("add output: %v", err)
	}
	if o.Status != domain.VerificationPending {
		t.Fatalf("expected pending output, got %s", o.Status)
	}
	var ve workflow.ValidationError
	if _, err := env.Engine.VerifyOutput(env.Ctx, workflow.OutputVerifyOptions{
		OutputID: o.ID, Approved: false, ActorID: "admin",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected rejection remarks, got %v", err)
	}
	o, err = env.Engine.VerifyOutput(env.Ctx, workflow.OutputVerifyOptions{
		OutputID: o.ID, Approved: true, ActorID: "admin",
	})
	if err != nil || o.Status != domain.VerificationApproved {
		t.Fatalf("verify output: %v (%s)", err, o.Status)
	}
	var ce workflow.ConflictError
	if _, err := env.Engine.VerifyOutput(env.Ctx, workflow.OutputVerifyOptions{
		OutputID: o.ID, Approved: true, ActorID: "admin",
	}); !errors.As(err, &ce) {
		t.Fatalf("expected conflict on re-verification, got %v", err)
	}

	// outputs only attach once execution has started
	early := submittedProposal(t, env)
	var pe workflow.PreconditionError
	if _, err := env.Engine.AddOutput(env.Ctx, workflow.OutputCreateOptions{
		ProposalID: early.ID, Kind: "prototype", Title: "too soon", ActorID: "alice",
	}); !errors.As(err, &pe) {
		t.Fatalf("expected precondition for submitted proposal, got %v", err)
	}
}

func TestVisibilityScoping(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env, "dewi", domain.RoleProposer)
	p := submittedProposal(t, env)

	// unrelated proposers and unassigned reviewers cannot see the proposal
	if _, err := env.Engine.ProposalFor(env.Ctx, p.ID, "dewi"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for other proposer, got %v", err)
	}
	if _, err := env.Engine.ProposalFor(env.Ctx, p.ID, "rina"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unassigned reviewer, got %v", err)
	}
	if _, err := env.Engine.ProposalFor(env.Ctx, p.ID, "admin"); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	screenPass(t, env, p.ID)
	if _, err := env.Engine.AssignReviewers(env.Ctx, workflow.AssignOptions{
		ProposalID: p.ID, ReviewerIDs: []string{"rina", "budi"}, ActorID: "admin",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Engine.ProposalFor(env.Ctx, p.ID, "rina"); err != nil {
		t.Fatalf("assigned reviewer read: %v", err)
	}

	mine, err := env.Engine.ListProposalsFor(env.Ctx, repo.ProposalFilters{}, "alice")
	if err != nil || len(mine) != 1 {
		t.Fatalf("creator listing: %v (%d)", err, len(mine))
	}
	theirs, err := env.Engine.ListProposalsFor(env.Ctx, repo.ProposalFilters{}, "dewi")
	if err != nil || len(theirs) != 0 {
		t.Fatalf("expected empty listing for dewi, got %d (%v)", len(theirs), err)
	}

	// the audit trail is admin only
	var ae workflow.AuthorizationError
	if _, err := env.Engine.RecentEventsFor(env.Ctx, 10, 0, "", "alice"); !errors.As(err, &ae) {
		t.Fatalf("expected forbidden event listing, got %v", err)
	}
	evts, err := env.Engine.RecentEventsFor(env.Ctx, 10, 0, p.ID, "admin")
	if err != nil || len(evts) == 0 {
		t.Fatalf("expected event rows: %v (%d)", err, len(evts))
	}
}

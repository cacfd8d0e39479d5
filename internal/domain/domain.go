package domain

// ProposalStatus is the closed set of lifecycle states a proposal moves through.
// Transitions between them are decided in one place (the workflow engine); nothing
// else writes the status column.
type ProposalStatus string

const (
	StatusDraft             ProposalStatus = "draft"
	StatusSubmitted         ProposalStatus = "submitted"
	StatusUnderReview       ProposalStatus = "under_review"
	StatusRevisionRequested ProposalStatus = "revision_requested"
	StatusAccepted          ProposalStatus = "accepted"
	StatusRejected          ProposalStatus = "rejected"
	StatusExecuting         ProposalStatus = "executing"
	StatusFinished          ProposalStatus = "finished"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusRevisionRequested,
		StatusAccepted, StatusRejected, StatusExecuting, StatusFinished:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s ProposalStatus) Terminal() bool {
	return s == StatusRejected || s == StatusFinished
}

// ScreeningVerdict is the administrative screening outcome. Empty means not screened yet.
type ScreeningVerdict string

const (
	ScreeningPass ScreeningVerdict = "pass"
	ScreeningFail ScreeningVerdict = "fail"
)

// Role is the closed role set. Every workflow operation re-checks the acting
// user's role against the users table; roles carried in tokens are advisory only.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProposer Role = "proposer"
	RoleReviewer Role = "reviewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProposer, RoleReviewer:
		return true
	}
	return false
}

// Recommendation is a reviewer's verdict, stored alongside the numeric score.
type Recommendation string

const (
	RecommendAccept Recommendation = "accept"
	RecommendRevise Recommendation = "revise"
	RecommendReject Recommendation = "reject"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendAccept, RecommendRevise, RecommendReject:
		return true
	}
	return false
}

// AssignmentStatus tracks whether a reviewer has delivered the current round's review.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentCompleted AssignmentStatus = "completed"
)

type ContractStatus string

const (
	ContractDraft  ContractStatus = "draft"
	ContractSigned ContractStatus = "signed"
)

// VerificationStatus is the per-report sub-state for monitoring reports and outputs.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type DisbursementStatus string

const (
	DisbursementPending   DisbursementStatus = "pending"
	DisbursementDisbursed DisbursementStatus = "disbursed"
	DisbursementRejected  DisbursementStatus = "rejected"
)

func (s DisbursementStatus) Valid() bool {
	switch s {
	case DisbursementPending, DisbursementDisbursed, DisbursementRejected:
		return true
	}
	return false
}

type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      Role     `json:"role" enum:"admin,proposer,reviewer"`
	Active    bool     `json:"active"`
	Expertise []string `json:"expertise,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Proposal struct {
	ID        string         `json:"id"`
	PeriodID  string         `json:"period_id"`
	SchemeID  string         `json:"scheme_id,omitempty"`
	CreatorID string         `json:"creator_id"`
	Title     string         `json:"title"`
	Abstract  string         `json:"abstract,omitempty"`
	Status    ProposalStatus `json:"status" enum:"draft,submitted,under_review,revision_requested,accepted,rejected,executing,finished"`
	FileRef   *string        `json:"file_ref,omitempty"`

	// Administrative screening sub-state. Verdict is empty until screened;
	// replacing the proposal file after a fail clears it again.
	ScreeningVerdict       ScreeningVerdict `json:"screening_verdict,omitempty" enum:"pass,fail"`
	ScreeningRemarks       string           `json:"screening_remarks,omitempty"`
	CheckWriting           bool             `json:"check_writing,omitempty"`
	CheckWritingRemarks    string           `json:"check_writing_remarks,omitempty"`
	CheckComponents        bool             `json:"check_components,omitempty"`
	CheckComponentsRemarks string           `json:"check_components_remarks,omitempty"`
	ScreenedBy             *string          `json:"screened_by,omitempty"`
	ScreenedAt             *string          `json:"screened_at,omitempty" format:"date-time"`

	RevisionCount    int      `json:"revision_count"`
	RequestedFunding int64    `json:"requested_funding"`
	ApprovedFunding  *int64   `json:"approved_funding,omitempty"`
	AverageScore     *float64 `json:"average_score,omitempty"`
	DecisionRemarks  string   `json:"decision_remarks,omitempty"`

	SubmittedAt *string `json:"submitted_at,omitempty" format:"date-time"`
	DecidedAt   *string `json:"decided_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type ReviewAssignment struct {
	ID         string           `json:"id"`
	ProposalID string           `json:"proposal_id"`
	ReviewerID string           `json:"reviewer_id"`
	Round      int              `json:"round"`
	Status     AssignmentStatus `json:"status" enum:"pending,completed"`
	AssignedAt string           `json:"assigned_at" format:"date-time"`
	Deadline   string           `json:"deadline" format:"date-time"`
	Review     *Review          `json:"review,omitempty"`
}

type Review struct {
	ID             string         `json:"id"`
	AssignmentID   string         `json:"assignment_id"`
	Round          int            `json:"round"`
	Score          int            `json:"score"`
	Recommendation Recommendation `json:"recommendation" enum:"accept,revise,reject"`
	Remarks        string         `json:"remarks,omitempty"`
	EvidenceRef    *string        `json:"evidence_ref,omitempty"`
	Superseded     bool           `json:"superseded,omitempty"`
	SubmittedAt    string         `json:"submitted_at" format:"date-time"`
}

// ReviewAggregate summarizes the current round's reviews for a proposal.
type ReviewAggregate struct {
	Round          int      `json:"round"`
	CompletedCount int      `json:"completed_count"`
	TotalCount     int      `json:"total_count"`
	AverageScore   *float64 `json:"average_score,omitempty"`
	AllComplete    bool     `json:"all_complete"`
}

type Contract struct {
	ID              string         `json:"id"`
	ProposalID      string         `json:"proposal_id"`
	ContractNumber  string         `json:"contract_number"`
	DecreeNumber    string         `json:"decree_number"`
	Status          ContractStatus `json:"status" enum:"draft,signed"`
	ContractFileRef *string        `json:"contract_file_ref,omitempty"`
	DecreeFileRef   *string        `json:"decree_file_ref,omitempty"`
	CreatedBy       string         `json:"created_by"`
	SignedBy        *string        `json:"signed_by,omitempty"`
	ActivatedAt     *string        `json:"activated_at,omitempty" format:"date-time"`
	CreatedAt       string         `json:"created_at" format:"date-time"`
}

// MonitoringReport is one report slot (progress or final) with its verification
// sub-state. A nil slot means the report was never submitted.
type MonitoringReport struct {
	Text               string             `json:"text"`
	FileRef            string             `json:"file_ref"`
	Percent            *int               `json:"percent,omitempty"`
	SubmittedAt        string             `json:"submitted_at" format:"date-time"`
	Verification       VerificationStatus `json:"verification" enum:"pending,approved,rejected"`
	VerificationRemark string             `json:"verification_remark,omitempty"`
	VerifiedBy         *string            `json:"verified_by,omitempty"`
	VerifiedAt         *string            `json:"verified_at,omitempty" format:"date-time"`
}

type Monitoring struct {
	ID         string            `json:"id"`
	ProposalID string            `json:"proposal_id"`
	Progress   *MonitoringReport `json:"progress,omitempty"`
	Final      *MonitoringReport `json:"final,omitempty"`
	CreatedAt  string            `json:"created_at" format:"date-time"`
	UpdatedAt  string            `json:"updated_at" format:"date-time"`
}

type Disbursement struct {
	ID          string             `json:"id"`
	ProposalID  string             `json:"proposal_id"`
	Termin      int                `json:"termin"`
	Share       int                `json:"share"`
	Nominal     int64              `json:"nominal"`
	Status      DisbursementStatus `json:"status" enum:"pending,disbursed,rejected"`
	ProofRef    *string            `json:"proof_ref,omitempty"`
	Remarks     string             `json:"remarks,omitempty"`
	DisbursedAt *string            `json:"disbursed_at,omitempty" format:"date-time"`
	CreatedAt   string             `json:"created_at" format:"date-time"`
	UpdatedAt   string             `json:"updated_at" format:"date-time"`
}

type Output struct {
	ID         string             `json:"id"`
	ProposalID string             `json:"proposal_id"`
	Kind       string             `json:"kind"`
	Title      string             `json:"title"`
	FileRef    *string            `json:"file_ref,omitempty"`
	Status     VerificationStatus `json:"status" enum:"pending,approved,rejected"`
	Remarks    string             `json:"remarks,omitempty"`
	VerifiedBy *string            `json:"verified_by,omitempty"`
	VerifiedAt *string            `json:"verified_at,omitempty" format:"date-time"`
	CreatedAt  string             `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProposalID string `json:"proposal_id,omitempty"`
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

// Timeline is the full per-proposal view: the proposal with its screening
// sub-state, every review round, and downstream entities plus the event trail.
type Timeline struct {
	Proposal      Proposal           `json:"proposal"`
	Assignments   []ReviewAssignment `json:"assignments,omitempty"`
	Reviews       []Review           `json:"reviews,omitempty"`
	Contract      *Contract          `json:"contract,omitempty"`
	Monitoring    *Monitoring        `json:"monitoring,omitempty"`
	Disbursements []Disbursement     `json:"disbursements,omitempty"`
	Outputs       []Output           `json:"outputs,omitempty"`
	Events        []Event            `json:"events,omitempty"`
}

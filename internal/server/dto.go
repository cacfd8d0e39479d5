package server

import "grantflow/internal/domain"

type CreateProposalRequest struct {
	ID               *string `json:"id,omitempty"`
	PeriodID         string  `json:"period_id"`
	SchemeID         *string `json:"scheme_id,omitempty"`
	Title            string  `json:"title"`
	Abstract         *string `json:"abstract,omitempty"`
	FileRef          *string `json:"file_ref,omitempty"`
	RequestedFunding int64   `json:"requested_funding,omitempty"`
}

type UpdateProposalRequest struct {
	Title            *string `json:"title,omitempty"`
	Abstract         *string `json:"abstract,omitempty"`
	FileRef          *string `json:"file_ref,omitempty"`
	RequestedFunding *int64  `json:"requested_funding,omitempty"`
}

type FileRequest struct {
	FileRef string `json:"file_ref"`
}

type RevisionRequest struct {
	FileRef  string  `json:"file_ref"`
	Abstract *string `json:"abstract,omitempty"`
	Remarks  *string `json:"remarks,omitempty"`
}

type ScreeningRequest struct {
	CheckWriting           bool    `json:"check_writing"`
	CheckWritingRemarks    *string `json:"check_writing_remarks,omitempty"`
	CheckComponents        bool    `json:"check_components"`
	CheckComponentsRemarks *string `json:"check_components_remarks,omitempty"`
	Verdict                string  `json:"verdict" enum:"pass,fail"`
	Remarks                *string `json:"remarks,omitempty"`
}

type AssignReviewersRequest struct {
	ReviewerIDs []string `json:"reviewer_ids"`
}

type ReviewRequest struct {
	Score          int     `json:"score" minimum:"0" maximum:"100"`
	Recommendation string  `json:"recommendation" enum:"accept,revise,reject"`
	Remarks        *string `json:"remarks,omitempty"`
	EvidenceRef    *string `json:"evidence_ref,omitempty"`
}

type ApproveRequest struct {
	ApprovedFunding int64   `json:"approved_funding"`
	Remarks         *string `json:"remarks,omitempty"`
}

type DecisionRequest struct {
	Remarks string `json:"remarks"`
}

type ActivateContractRequest struct {
	ContractFileRef string `json:"contract_file_ref"`
	DecreeFileRef   string `json:"decree_file_ref"`
}

type ReportRequest struct {
	Text    string `json:"text"`
	FileRef string `json:"file_ref"`
	Percent *int   `json:"percent,omitempty" minimum:"1" maximum:"100"`
}

type VerifyReportRequest struct {
	Report   string  `json:"report" enum:"progress,final"`
	Approved bool    `json:"approved"`
	Remarks  *string `json:"remarks,omitempty"`
}

type ProofRequest struct {
	ProofRef string `json:"proof_ref"`
}

type DisbursementPatchRequest struct {
	Status  string  `json:"status" enum:"pending,disbursed,rejected"`
	Remarks *string `json:"remarks,omitempty"`
}

type OutputRequest struct {
	Kind    string  `json:"kind"`
	Title   string  `json:"title"`
	FileRef *string `json:"file_ref,omitempty"`
}

type VerifyRequest struct {
	Approved bool    `json:"approved"`
	Remarks  *string `json:"remarks,omitempty"`
}

type CreateUserRequest struct {
	ID        *string  `json:"id,omitempty"`
	Name      string   `json:"name"`
	Email     string   `json:"email" format:"email"`
	Role      string   `json:"role" enum:"admin,proposer,reviewer"`
	Expertise []string `json:"expertise,omitempty"`
}

type UploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content" doc:"Base64 encoded file content"`
}

type UploadResponse struct {
	FileRef string `json:"file_ref"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:",admin,proposer,reviewer"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	User   domain.User `json:"user"`
	Source string      `json:"source"`
}

type ReviewListResponse struct {
	Summary domain.ReviewAggregate `json:"summary"`
	Reviews []domain.Review        `json:"reviews"`
}

type paginatedProposals struct {
	Items      []domain.Proposal `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

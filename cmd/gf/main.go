package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"grantflow/internal/app"
	"grantflow/internal/db"
	"grantflow/internal/domain"
	"grantflow/internal/migrate"
	"grantflow/internal/repo"
	"grantflow/internal/server"
	"grantflow/internal/storage"
	"grantflow/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "gf",
	Short: "Grantflow CLI",
	Long: `Grantflow manages the research grant proposal lifecycle.
Core concepts:
- Workspace: the .grantflow directory holding the database, uploaded files and grantflow.yml.
- Proposal: a funding request moving draft -> submitted -> under_review -> accepted/rejected, then executing -> finished.
- Screening: the administrative checklist gate on submitted proposals; a failed verdict holds the proposal until its file is replaced.
- Reviews: a fixed-size reviewer panel scores each round; revisions supersede earlier rounds instead of editing them.
- Decision: approve (with funding), request a counted revision, or reject.
- Contract: generated contract and decree numbers, activated once both signed documents are attached.
- Monitoring: progress and final reports with admin verification; approving the final report finishes the grant.
- Disbursements: staged termins scheduled at approval, paid out against proof of transfer.
- Event log: diary of changes, view with 'gf log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GRANTFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "admin", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(screeningCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(monitoringCmd())
	rootCmd.AddCommand(disbursementCmd())
	rootCmd.AddCommand(outputCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var deploymentID, adminID, adminName, adminEmail string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace, deploymentID)
			if err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			admin, err := app.EnsureAdmin(cmd.Context(), r, adminID, adminName, adminEmail)
			if err != nil {
				return err
			}
			fmt.Printf("Initialized workspace %s (deployment %s, admin %s)\n", workspace, cfg.Deployment.ID, admin.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&deploymentID, "deployment-id", "", "deployment identifier written to grantflow.yml")
	cmd.Flags().StringVar(&adminID, "admin-id", "admin", "bootstrap admin id")
	cmd.Flags().StringVar(&adminName, "admin-name", "", "bootstrap admin name")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "bootstrap admin email")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userActivateCmd(true))
	user.AddCommand(userActivateCmd(false))
	user.AddCommand(userExpertiseCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var id, name, email, role string
	var expertise []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				u, err := e.CreateUser(ctx, workflow.UserCreateOptions{
					ID:        id,
					Name:      name,
					Email:     email,
					Role:      domain.Role(role),
					Expertise: expertise,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (optional)")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", "", "role (admin, proposer, reviewer)")
	cmd.Flags().StringArrayVar(&expertise, "expertise", []string{}, "expertise area (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				f := repo.UserFilters{Role: role}
				if activeOnly {
					t := true
					f.Active = &t
				}
				users, err := r.ListUsers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "active users only")
	return cmd
}

func userActivateCmd(active bool) *cobra.Command {
	use, short := "activate <id>", "Reactivate a user"
	if !active {
		use, short = "deactivate <id>", "Deactivate a user"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetUserActive(ctx, args[0], active)
			})
		},
	}
}

func userExpertiseCmd() *cobra.Command {
	var areas []string
	cmd := &cobra.Command{
		Use:   "expertise <id>",
		Short: "Replace a user's expertise areas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.ReplaceExpertise(ctx, args[0], areas)
			})
		},
	}
	cmd.Flags().StringArrayVar(&areas, "area", []string{}, "expertise area (repeatable)")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (secret shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetUser(ctx, userID); err != nil {
					return err
				}
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "gfk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.NewString(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "user_id": userID, "key": secret})
				}
				fmt.Printf("API key %s created for %s\n%s\n", key.ID, userID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func proposalCmd() *cobra.Command {
	prop := &cobra.Command{
		Use:   "proposal",
		Short: "Manage proposals",
		Long:  "Proposals are funding requests. They are drafted, submitted for screening, reviewed by a panel, decided on, and then executed under a signed contract.",
	}
	prop.AddCommand(proposalCreateCmd())
	prop.AddCommand(proposalListCmd())
	prop.AddCommand(proposalGetCmd())
	prop.AddCommand(proposalUpdateCmd())
	prop.AddCommand(proposalSubmitCmd())
	prop.AddCommand(proposalFileCmd())
	prop.AddCommand(proposalRevisionCmd())
	prop.AddCommand(proposalDeleteCmd())
	prop.AddCommand(proposalTimelineCmd())
	return prop
}

func proposalCreateCmd() *cobra.Command {
	var opts workflow.ProposalCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.CreateProposal(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "proposal id (optional)")
	cmd.Flags().StringVar(&opts.PeriodID, "period", "", "funding period id")
	cmd.Flags().StringVar(&opts.SchemeID, "scheme", "", "funding scheme id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Abstract, "abstract", "", "abstract")
	cmd.Flags().StringVar(&opts.FileRef, "file", "", "proposal document ref")
	cmd.Flags().Int64Var(&opts.RequestedFunding, "funding", 0, "requested funding")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func proposalListCmd() *cobra.Command {
	var f repo.ProposalFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.ListProposalsFor(ctx, f, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Period", "Creator", "Funding"})
				for _, p := range items {
					funding := p.RequestedFunding
					if p.ApprovedFunding != nil {
						funding = *p.ApprovedFunding
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, p.PeriodID, p.CreatorID, funding})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.PeriodID, "period", "", "period filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum results")
	return cmd
}

func proposalGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.ProposalFor(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func proposalUpdateCmd() *cobra.Command {
	var title, abstract, fileRef string
	var funding int64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a draft proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := workflow.ProposalUpdateOptions{
				ProposalID: args[0],
				ActorID:    viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("abstract") {
				opts.Abstract = &abstract
			}
			if cmd.Flags().Changed("file") {
				opts.FileRef = &fileRef
			}
			if cmd.Flags().Changed("funding") {
				opts.RequestedFunding = &funding
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.UpdateDraft(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&abstract, "abstract", "", "abstract")
	cmd.Flags().StringVar(&fileRef, "file", "", "proposal document ref")
	cmd.Flags().Int64Var(&funding, "funding", 0, "requested funding")
	return cmd
}

func proposalSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a proposal for screening",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.SubmitProposal(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func proposalFileCmd() *cobra.Command {
	var fileRef string
	cmd := &cobra.Command{
		Use:   "file <id>",
		Short: "Replace the proposal document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.ReplaceFile(ctx, args[0], fileRef, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&fileRef, "file", "", "new document ref")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func proposalRevisionCmd() *cobra.Command {
	var opts workflow.RevisionOptions
	cmd := &cobra.Command{
		Use:   "revision <id>",
		Short: "Resubmit a revised proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ProposalID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.ResubmitRevision(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.FileRef, "file", "", "revised document ref")
	cmd.Flags().StringVar(&opts.Abstract, "abstract", "", "revised abstract")
	cmd.Flags().StringVar(&opts.Remarks, "remarks", "", "response to reviewers")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func proposalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.DeleteProposal(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func proposalTimelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show the full lifecycle of a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				t, err := e.TimelineFor(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func screeningCmd() *cobra.Command {
	scr := &cobra.Command{
		Use:   "screening",
		Short: "Administrative screening",
		Long:  "Screening checks a submitted proposal against the administrative checklist. A pass opens reviewer assignment; a fail parks the proposal until the creator replaces the document.",
	}
	scr.AddCommand(screeningRecordCmd())
	return scr
}

func screeningRecordCmd() *cobra.Command {
	var opts workflow.ScreeningOptions
	var verdict string
	cmd := &cobra.Command{
		Use:   "record <proposal-id>",
		Short: "Record a screening verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ProposalID = args[0]
			opts.Verdict = domain.ScreeningVerdict(verdict)
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.Screen(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&verdict, "verdict", "", "pass or fail")
	cmd.Flags().BoolVar(&opts.CheckWriting, "writing-ok", false, "writing technique checklist passed")
	cmd.Flags().StringVar(&opts.CheckWritingRemarks, "writing-remarks", "", "writing technique remarks")
	cmd.Flags().BoolVar(&opts.CheckComponents, "components-ok", false, "component completeness checklist passed")
	cmd.Flags().StringVar(&opts.CheckComponentsRemarks, "components-remarks", "", "component completeness remarks")
	cmd.Flags().StringVar(&opts.Remarks, "remarks", "", "overall remarks (required on fail)")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{
		Use:   "review",
		Short: "Reviewer panel and reviews",
	}
	rev.AddCommand(reviewAssignCmd())
	rev.AddCommand(reviewAssignmentsCmd())
	rev.AddCommand(reviewSubmitCmd())
	rev.AddCommand(reviewSummaryCmd())
	return rev
}

func reviewAssignCmd() *cobra.Command {
	var reviewers []string
	cmd := &cobra.Command{
		Use:   "assign <proposal-id>",
		Short: "Assign the reviewer panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				assignments, err := e.AssignReviewers(ctx, workflow.AssignOptions{
					ProposalID:  args[0],
					ReviewerIDs: reviewers,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(assignments)
			})
		},
	}
	cmd.Flags().StringArrayVar(&reviewers, "reviewer", []string{}, "reviewer user id (repeatable)")
	return cmd
}

func reviewAssignmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assignments",
		Short: "List own review assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				assignments, err := e.AssignmentsFor(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assignments)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Proposal", "Round", "Status", "Deadline"})
				for _, a := range assignments {
					tw.AppendRow(table.Row{a.ID, a.ProposalID, a.Round, a.Status, a.Deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func reviewSubmitCmd() *cobra.Command {
	var opts workflow.ReviewSubmitOptions
	var recommendation string
	cmd := &cobra.Command{
		Use:   "submit <assignment-id>",
		Short: "Submit a scored review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssignmentID = args[0]
			opts.Recommendation = domain.Recommendation(recommendation)
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				rv, err := e.SubmitReview(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Score, "score", 0, "score 0..100")
	cmd.Flags().StringVar(&recommendation, "recommendation", "", "accept, revise or reject")
	cmd.Flags().StringVar(&opts.Remarks, "remarks", "", "review remarks")
	cmd.Flags().StringVar(&opts.EvidenceRef, "evidence", "", "evidence document ref")
	_ = cmd.MarkFlagRequired("score")
	_ = cmd.MarkFlagRequired("recommendation")
	return cmd
}

func reviewSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <proposal-id>",
		Short: "Current round review aggregate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				s, err := e.ReviewSummary(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func decisionCmd() *cobra.Command {
	dec := &cobra.Command{
		Use:   "decision",
		Short: "Decide on reviewed proposals",
	}
	dec.AddCommand(decisionApproveCmd())
	dec.AddCommand(decisionReviseCmd())
	dec.AddCommand(decisionRejectCmd())
	return dec
}

func decisionApproveCmd() *cobra.Command {
	var funding int64
	var remarks string
	cmd := &cobra.Command{
		Use:   "approve <proposal-id>",
		Short: "Approve funding and schedule disbursements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.Approve(ctx, workflow.ApproveOptions{
					ProposalID:      args[0],
					ApprovedFunding: funding,
					Remarks:         remarks,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&funding, "funding", 0, "approved funding amount")
	cmd.Flags().StringVar(&remarks, "remarks", "", "decision remarks")
	_ = cmd.MarkFlagRequired("funding")
	return cmd
}

func decisionReviseCmd() *cobra.Command {
	var remarks string
	cmd := &cobra.Command{
		Use:   "request-revision <proposal-id>",
		Short: "Send the proposal back for revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.RequestRevision(ctx, workflow.DecisionOptions{
					ProposalID: args[0],
					Remarks:    remarks,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&remarks, "remarks", "", "what must change")
	_ = cmd.MarkFlagRequired("remarks")
	return cmd
}

func decisionRejectCmd() *cobra.Command {
	var remarks string
	cmd := &cobra.Command{
		Use:   "reject <proposal-id>",
		Short: "Reject the proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.Reject(ctx, workflow.DecisionOptions{
					ProposalID: args[0],
					Remarks:    remarks,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&remarks, "remarks", "", "reason for rejection")
	_ = cmd.MarkFlagRequired("remarks")
	return cmd
}

func contractCmd() *cobra.Command {
	con := &cobra.Command{Use: "contract", Short: "Contracts and decrees"}
	con.AddCommand(contractCreateCmd())
	con.AddCommand(contractShowCmd())
	con.AddCommand(contractActivateCmd())
	return con
}

func contractCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <proposal-id>",
		Short: "Draft a contract with generated numbers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				c, err := e.CreateContract(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <proposal-id>",
		Short: "Show the proposal's contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				c, err := e.ContractFor(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contractActivateCmd() *cobra.Command {
	var contractFile, decreeFile string
	cmd := &cobra.Command{
		Use:   "activate <contract-id>",
		Short: "Activate a signed contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				c, err := e.ActivateContract(ctx, workflow.ActivateOptions{
					ContractID:      args[0],
					ContractFileRef: contractFile,
					DecreeFileRef:   decreeFile,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&contractFile, "contract-file", "", "signed contract document ref")
	cmd.Flags().StringVar(&decreeFile, "decree-file", "", "signed decree document ref")
	_ = cmd.MarkFlagRequired("contract-file")
	_ = cmd.MarkFlagRequired("decree-file")
	return cmd
}

func monitoringCmd() *cobra.Command {
	mon := &cobra.Command{
		Use:   "monitoring",
		Short: "Progress and final reports",
	}
	mon.AddCommand(monitoringShowCmd())
	mon.AddCommand(monitoringReportCmd("progress"))
	mon.AddCommand(monitoringReportCmd("final"))
	mon.AddCommand(monitoringVerifyCmd())
	return mon
}

func monitoringShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <proposal-id>",
		Short: "Show the monitoring record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				m, err := e.MonitoringFor(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func monitoringReportCmd(kind string) *cobra.Command {
	var opts workflow.ReportOptions
	cmd := &cobra.Command{
		Use:   kind + " <proposal-id>",
		Short: "Submit the " + kind + " report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ProposalID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				var m domain.Monitoring
				var err error
				if kind == "final" {
					m, err = e.SubmitFinalReport(ctx, opts)
				} else {
					m, err = e.SubmitProgressReport(ctx, opts)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Text, "text", "", "report text")
	cmd.Flags().StringVar(&opts.FileRef, "file", "", "report document ref")
	if kind == "progress" {
		cmd.Flags().IntVar(&opts.Percent, "percent", 0, "completion percentage 1..100")
	}
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func monitoringVerifyCmd() *cobra.Command {
	var report, remarks string
	var approve bool
	cmd := &cobra.Command{
		Use:   "verify <proposal-id>",
		Short: "Verify a monitoring report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				m, err := e.VerifyReport(ctx, workflow.VerifyOptions{
					ProposalID: args[0],
					Report:     report,
					Approved:   approve,
					Remarks:    remarks,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "progress or final")
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the report (reject if omitted)")
	cmd.Flags().StringVar(&remarks, "remarks", "", "verification remarks (required on reject)")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

func disbursementCmd() *cobra.Command {
	dis := &cobra.Command{
		Use:   "disbursement",
		Short: "Staged funding termins",
	}
	dis.AddCommand(disbursementListCmd())
	dis.AddCommand(disbursementProofCmd())
	dis.AddCommand(disbursementStatusCmd())
	return dis
}

func disbursementListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <proposal-id>",
		Short: "List the termin schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.DisbursementsFor(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Termin", "Share", "Nominal", "Status"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Termin, fmt.Sprintf("%d%%", d.Share), d.Nominal, d.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func disbursementProofCmd() *cobra.Command {
	var proofRef string
	cmd := &cobra.Command{
		Use:   "proof <disbursement-id>",
		Short: "Attach proof of transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				d, err := e.AttachDisbursementProof(ctx, workflow.ProofOptions{
					DisbursementID: args[0],
					ProofRef:       proofRef,
					ActorID:        viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&proofRef, "proof", "", "transfer receipt document ref")
	_ = cmd.MarkFlagRequired("proof")
	return cmd
}

func disbursementStatusCmd() *cobra.Command {
	var status, remarks string
	cmd := &cobra.Command{
		Use:   "set-status <disbursement-id>",
		Short: "Update termin status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				d, err := e.SetDisbursementStatus(ctx, workflow.DisbursementStatusOptions{
					DisbursementID: args[0],
					Status:         domain.DisbursementStatus(status),
					Remarks:        remarks,
					ActorID:        viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, disbursed or rejected")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks (required on reject)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func outputCmd() *cobra.Command {
	out := &cobra.Command{
		Use:   "output",
		Short: "Research outputs",
	}
	out.AddCommand(outputAddCmd())
	out.AddCommand(outputListCmd())
	out.AddCommand(outputVerifyCmd())
	return out
}

func outputAddCmd() *cobra.Command {
	var opts workflow.OutputCreateOptions
	cmd := &cobra.Command{
		Use:   "add <proposal-id>",
		Short: "Register a research output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ProposalID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				o, err := e.AddOutput(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "output kind (publication, prototype, patent, ...)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "output title")
	cmd.Flags().StringVar(&opts.FileRef, "file", "", "supporting document ref")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func outputListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <proposal-id>",
		Short: "List research outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.OutputsFor(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func outputVerifyCmd() *cobra.Command {
	var remarks string
	var approve bool
	cmd := &cobra.Command{
		Use:   "verify <output-id>",
		Short: "Verify a research output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				o, err := e.VerifyOutput(ctx, workflow.OutputVerifyOptions{
					OutputID: args[0],
					Approved: approve,
					Remarks:  remarks,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the output (reject if omitted)")
	cmd.Flags().StringVar(&remarks, "remarks", "", "verification remarks (required on reject)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var proposalID string
	var after int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.EventsAfter(ctx, n, after, proposalID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&proposalID, "proposal", "", "proposal filter")
	cmd.Flags().Int64Var(&after, "after", 0, "only events after this id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace, "")
			if err != nil {
				return err
			}
			e := workflow.New(conn, cfg)
			store, err := storage.NewLocal(workspace)
			if err != nil {
				return err
			}
			secret := os.Getenv("GRANTFLOW_JWT_SECRET")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" && !cfg.Auth.AllowLegacyActorHead {
				return fmt.Errorf("GRANTFLOW_JWT_SECRET (or auth.jwt_secret) is required for bearer auth")
			}
			authCfg := server.AuthConfig{
				JWTSecret:              secret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHead,
				AllowDevLogin:          devLogin,
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Storage: store})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Grantflow API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the dev token endpoint")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, workflow.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace, "")
	if err != nil {
		return err
	}
	return fn(ctx, workflow.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

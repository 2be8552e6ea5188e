package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-clearance-api/internal/client"
	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	"github.com/noah-isme/sma-clearance-api/internal/service"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
	"github.com/noah-isme/sma-clearance-api/pkg/logger"
)

var (
	flagKind    string
	flagEntity  string
	flagType    string
	flagLink    string
	flagFiles   []string
	flagNotes   string
	flagAnswers []bool
	flagFollow  bool
)

// approvalAPI is the part of the API client the submit flow needs.
type approvalAPI interface {
	service.ItemSource
	ValidateSubmission(ctx context.Context, key models.ItemKey, submission models.Submission) (dto.ValidationResponse, error)
	SubmitApproval(ctx context.Context, key models.ItemKey, submission models.Submission) (*models.ApprovalItem, bool, error)
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Request approval of one item and show the updated items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, semester, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		kind, ok := models.ParseEntityKind(flagKind)
		if !ok {
			return fmt.Errorf("invalid kind %q", flagKind)
		}
		if strings.TrimSpace(flagEntity) == "" {
			return errors.New("--entity is required")
		}
		submission, err := buildSubmission(flagType, flagLink, flagFiles, flagNotes, flagAnswers)
		if err != nil {
			return err
		}
		logr, err := logger.NewCLI(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logr.Sync() //nolint:errcheck

		api := client.New(cfg.APIURL, cfg.APIToken)
		reconciler, hub, _ := newReconciler(logr)
		sub := hub.Subscribe(16)
		defer hub.Unsubscribe(sub)

		ctx := cmd.Context()
		if _, err := reconciler.Poll(ctx, api, flagStudent, semester); err != nil {
			return err
		}
		key := models.ItemKey{StudentID: flagStudent, EntityKind: kind, EntityID: flagEntity, Semester: semester}
		item, changed, err := submitAndTrack(ctx, api, reconciler, key, submission)
		if err != nil {
			return err
		}
		logSubmitted(logr, key, changed)
		out := cmd.OutOrStdout()
		if changed {
			fmt.Fprintf(out, "%s %s is now %s\n", item.EntityKind, item.EntityID, item.Status)
		} else {
			fmt.Fprintf(out, "%s %s unchanged (%s)\n", item.EntityKind, item.EntityID, item.Status)
		}
		printItems(out, reconciler.Items())
		if !flagFollow {
			return nil
		}
		return follow(ctx, out, logr, reconciler, sub, api, semester, cfg.PollInterval)
	},
}

func init() {
	submitCmd.Flags().StringVar(&flagKind, "kind", "subject", "Entity kind (subject or department)")
	submitCmd.Flags().StringVar(&flagEntity, "entity", "", "Subject or department ID")
	submitCmd.Flags().StringVar(&flagType, "type", "file", "Submission type (link, file, text, checklist, other)")
	submitCmd.Flags().StringVar(&flagLink, "link", "", "URL for link submissions")
	submitCmd.Flags().StringSliceVar(&flagFiles, "file", nil, "File reference (repeatable)")
	submitCmd.Flags().StringVar(&flagNotes, "notes", "", "Notes for text submissions")
	submitCmd.Flags().BoolSliceVar(&flagAnswers, "answers", nil, "Checklist answers in order, e.g. true,false,true")
	submitCmd.Flags().BoolVar(&flagFollow, "follow", false, "Keep polling after the request")
	submitCmd.Flags().DurationVar(&flagInterval, "interval", 0, "Poll interval when following (default $CLEARANCE_POLL_INTERVAL)")
}

// buildSubmission turns command line flags into the submission variant of the given type.
func buildSubmission(rawType, link string, files []string, notes string, answers []bool) (models.Submission, error) {
	switch models.ParseRequirementType(rawType) {
	case models.RequirementLink:
		return models.LinkSubmission{URL: strings.TrimSpace(link)}, nil
	case models.RequirementFile:
		return models.FileSubmission{FileRefs: files}, nil
	case models.RequirementChecklist:
		if len(answers) == 0 {
			return nil, errors.New("--answers is required for checklist submissions")
		}
		return models.ChecklistSubmission{Answers: answers}, nil
	case models.RequirementOther:
		return models.OtherSubmission{FileRefs: files, Notes: notes}, nil
	default:
		return models.TextSubmission{FileRefs: files, Notes: notes}, nil
	}
}

// submitAndTrack keeps the submission as a draft until the server accepts it, then records
// the returned item as a local write so an in-flight poll cannot roll it back.
func submitAndTrack(ctx context.Context, api approvalAPI, reconciler *service.Reconciler, key models.ItemKey, submission models.Submission) (*models.ApprovalItem, bool, error) {
	reconciler.SetDraft(key, submission)

	result, err := api.ValidateSubmission(ctx, key, submission)
	if err != nil {
		return nil, false, err
	}
	if !result.OK {
		return nil, false, appErrors.Clone(appErrors.ErrSubmissionInvalid, result.Reason)
	}

	item, changed, err := api.SubmitApproval(ctx, key, submission)
	if err != nil {
		return nil, false, err
	}
	if changed {
		reconciler.ApplyLocal(*item)
	} else {
		reconciler.SetDraft(key, nil)
	}
	return item, changed, nil
}

var _ approvalAPI = (*client.Client)(nil)

func logSubmitted(logr *zap.Logger, key models.ItemKey, changed bool) {
	logr.Info("approval requested", zap.String("item", key.String()), zap.Bool("changed", changed))
}

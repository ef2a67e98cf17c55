package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/worker"
	"github.com/spf13/cobra"
)

var (
	replayFailed bool
	replayForce  bool
	replayLimit  int
)

var replayCmd = &cobra.Command{
	Use:   "replay [raw-event-id...]",
	Short: "Re-publish raw events onto the event log",
	Long: `Re-publish raw events onto the event log.

Examples:
  # Replay specific events
  pipelinectl replay 42 43

  # Replay an event that was already processed
  pipelinectl replay 42 --force

  # Sweep every event whose publish failed
  pipelinectl replay --failed`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayFailed, "failed", false, "replay all forwarding_failed events")
	replayCmd.Flags().BoolVar(&replayForce, "force", false, "replay events that were already processed")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum events to replay with --failed")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if !replayFailed && len(ids) == 0 {
		return fmt.Errorf("pass raw event ids or --failed")
	}

	ctx := cmd.Context()
	rt, err := connect(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()

	if replayFailed {
		reconciler := worker.NewReconciler(rt.Postgres, rt.Publisher, worker.ReconcilerOptions{
			BatchSize: replayLimit,
		}, logger)
		n, err := reconciler.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "replayed %d forwarding_failed events\n", n)
	}

	for _, id := range ids {
		event, err := rt.Postgres.GetRawEvent(ctx, id)
		if err != nil {
			return err
		}
		if event == nil {
			fmt.Fprintf(out, "%d: not found\n", id)
			continue
		}
		if event.Status == domain.StatusProcessed && !replayForce {
			fmt.Fprintf(out, "%d: already processed, skipped (use --force)\n", id)
			continue
		}
		messageID, err := rt.Publisher.Publish(ctx, event)
		if err != nil {
			fmt.Fprintf(out, "%d: publish failed: %v\n", id, err)
			continue
		}
		fmt.Fprintf(out, "%d: published as %s at %s\n", id, messageID, time.Now().Format(time.RFC3339))
	}
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid raw event id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

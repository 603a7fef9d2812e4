package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/weftworks/loom/id"
	"github.com/weftworks/loom/retention"
	"github.com/weftworks/loom/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show a workflow's current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var replayCmd = &cobra.Command{
	Use:   "replay <workflow-id>",
	Short: "Reconstruct a workflow from its event log and print it",
	Long: `Reconstruct the workflow's state purely from the append-only event
log, ignoring stored snapshots and checkpoints. The output is what any
replica would compute from the same history.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE:  runList,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Prune checkpoint history once, outside the schedule",
	RunE:  runSweep,
}

var (
	listState string
	listLimit int
)

func init() {
	listCmd.Flags().StringVar(&listState, "state", "", "filter by state (pending, running, paused, completed, failed)")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum workflows to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	ctx := cmd.Context()

	wfID, err := id.ParseWorkflowID(args[0])
	if err != nil {
		return fmt.Errorf("invalid workflow id %q: %w", args[0], err)
	}

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	wf, err := st.GetWorkflow(ctx, wfID)
	if err != nil {
		return err
	}
	events, err := st.ListEvents(ctx, wfID)
	if err != nil {
		return err
	}

	fmt.Printf("Workflow:  %s\n", wf.ID)
	fmt.Printf("Name:      %s\n", wf.Name)
	fmt.Printf("State:     %s\n", wf.State)
	fmt.Printf("Events:    %d\n", len(events))
	fmt.Printf("Steps:\n")

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tSPECIALTY\tSTATUS\tRETRIES\tERROR")
	for _, step := range wf.Steps {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\n",
			step.Name, step.Specialty, step.Status, step.RetryCount, step.Error)
	}
	return w.Flush()
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	ctx := cmd.Context()

	wfID, err := id.ParseWorkflowID(args[0])
	if err != nil {
		return fmt.Errorf("invalid workflow id %q: %w", args[0], err)
	}

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Replay needs the pristine creation-time snapshot; the creation
	// checkpoint at log position zero carries exactly that.
	events, err := st.ListEvents(ctx, wfID)
	if err != nil {
		return err
	}
	cps, err := st.ListCheckpoints(ctx, wfID)
	if err != nil {
		return err
	}

	var replayed workflow.Workflow
	if len(cps) > 0 && cps[0].EventIndex == 0 {
		replayed = workflow.Fold(cps[0].State, events)
	} else if len(cps) > 0 {
		replayed = workflow.Replay(cps[0], events)
	} else {
		wf, getErr := st.GetWorkflow(ctx, wfID)
		if getErr != nil {
			return getErr
		}
		replayed = workflow.Fold(*wf, events)
	}

	out, err := json.MarshalIndent(replayed, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	workflows, err := st.ListWorkflows(ctx, workflow.ListOpts{
		State: workflow.State(listState),
		Limit: listLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tSTEPS\tUPDATED")
	for _, wf := range workflows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			wf.ID, wf.Name, wf.State, len(wf.Steps),
			wf.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	sweeper, err := retention.New(st, "@every 1h",
		retention.WithKeep(cfg.Retention.Keep),
		retention.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	return sweeper.Sweep(ctx)
}

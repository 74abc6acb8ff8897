package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tactix-ai/tactix/internal/config"
	"github.com/tactix-ai/tactix/internal/coordinator"
	"github.com/tactix-ai/tactix/internal/workflow"
	"github.com/tactix-ai/tactix/pkg/models"
)

var runQuiet bool

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a request through the orchestration engine",
	Long: `Submit a request for decomposition and orchestrated execution.

The request is decomposed into a subtask graph by estimated complexity,
dispatched across the agent pool, validated, corrected where needed, and
escalated through the configured hierarchy levels on repeated failure.

Lifecycle events stream to stdout while the request runs. The final
artifact of the delivery subtask is printed on success; on failure, the
blocking subtasks are named and the full trace is persisted for
'tactix status'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress lifecycle events, print only the result")
}

func runRequest(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.manager.Start(ctx); err != nil {
		return err
	}

	id, err := eng.manager.Submit(input)
	if err != nil {
		eng.manager.Stop()
		return err
	}
	fmt.Printf("request %s submitted\n", color.CyanString(id))

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for event := range eng.manager.Events() {
			if !runQuiet {
				printEvent(event)
			}
		}
	}()

	// Interrupt cancels cooperatively: new dispatch stops, in-flight
	// agent calls finish and are discarded.
	cancelled := make(chan struct{})
	go func() {
		<-ctx.Done()
		select {
		case <-cancelled:
		default:
			eng.manager.Cancel(id)
		}
	}()

	waitErr := eng.manager.Wait(context.Background(), id)
	close(cancelled)

	snap, statusErr := eng.manager.GetStatus(id)
	eng.manager.Stop()
	<-eventsDone

	if waitErr != nil {
		return waitErr
	}
	if statusErr != nil {
		return statusErr
	}

	return printOutcome(snap)
}

// printEvent renders one lifecycle event.
func printEvent(event coordinator.Event) {
	label := string(event.Type)
	switch event.Type {
	case coordinator.EventTaskCompleted, coordinator.EventGraphDone:
		label = color.GreenString(label)
	case coordinator.EventTaskFailed, coordinator.EventTaskBlocked, coordinator.EventValidationFailed:
		label = color.RedString(label)
	case coordinator.EventTaskRetried, coordinator.EventCorrectionStarted:
		label = color.YellowString(label)
	default:
		label = color.CyanString(label)
	}

	line := label
	if event.TaskID != "" {
		line += " " + event.TaskID
	}
	if event.AgentID != "" {
		line += " agent=" + event.AgentID
	}
	if event.Message != "" {
		line += " " + event.Message
	}
	if event.Error != nil {
		line += " error=" + event.Error.Error()
	}
	fmt.Println(line)
}

// printOutcome renders the terminal state of a request.
func printOutcome(snap *workflow.Snapshot) error {
	req := snap.Request
	switch req.Status {
	case models.RequestStatusCompleted:
		fmt.Printf("\n%s request %s completed at level %d\n",
			color.GreenString("✓"), req.ID, req.HierarchyLevel)
		if snap.Delivery != nil {
			fmt.Printf("\n%s\n", snap.Delivery.Content)
		}
		return nil
	case models.RequestStatusCancelled:
		fmt.Printf("\n%s request %s cancelled\n", color.YellowString("⚠"), req.ID)
		printPartial(snap.PartialResults)
		return nil
	default:
		fmt.Printf("\n%s request %s failed at level %d\n",
			color.RedString("✗"), req.ID, req.HierarchyLevel)
		if len(req.BlockingTasks) > 0 {
			fmt.Printf("  blocked by: %s\n", strings.Join(req.BlockingTasks, ", "))
		}
		printPartial(snap.PartialResults)
		fmt.Printf("  trace: %d attempts, %d corrections, %d escalations (see 'tactix status %s')\n",
			len(req.Trace.Attempts), len(req.Trace.Corrections), len(req.Trace.Escalations), req.ID)
		return fmt.Errorf("request %s failed", req.ID)
	}
}

// printPartial lists completed subtasks, so partial progress is visible
// even when the request did not finish.
func printPartial(results map[string]*models.Artifact) {
	if len(results) == 0 {
		return
	}
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Printf("  completed subtasks: %s\n", strings.Join(ids, ", "))
}

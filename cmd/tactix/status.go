package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tactix-ai/tactix/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [request-id]",
	Short: "Show request state and history",
	Long: `Display the state of one request, or the most recent requests.

With a request ID, shows the request's status, hierarchy level, blocking
subtasks, and full attempt/correction/escalation trace. Without
arguments, lists recent requests from the history database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "Number of recent requests to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		req, err := db.GetRequest(args[0])
		if err != nil {
			return err
		}
		if req == nil {
			return fmt.Errorf("unknown request %s", args[0])
		}
		displayRequest(req)
		return nil
	}

	requests, err := db.ListRequests(statusLimit)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Println("No requests recorded. Run 'tactix run <request>' to start.")
		return nil
	}

	for _, req := range requests {
		fmt.Printf("%s  %s  level %d  %s\n",
			req.ID, colorStatus(req.Status), req.HierarchyLevel, truncate(req.Input, 60))
	}
	return nil
}

// displayRequest prints one request with its full trace.
func displayRequest(req *models.OrchestrationRequest) {
	fmt.Printf("request:  %s\n", req.ID)
	fmt.Printf("input:    %s\n", truncate(req.Input, 100))
	fmt.Printf("status:   %s\n", colorStatus(req.Status))
	fmt.Printf("level:    %d\n", req.HierarchyLevel)
	fmt.Printf("submitted: %s\n", req.SubmittedAt.Format("2006-01-02 15:04:05"))
	if req.FinishedAt != nil {
		fmt.Printf("finished:  %s\n", req.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if len(req.BlockingTasks) > 0 {
		fmt.Printf("blocked by: %s\n", strings.Join(req.BlockingTasks, ", "))
	}

	if len(req.Trace.Attempts) > 0 {
		fmt.Printf("\nattempts (%d):\n", len(req.Trace.Attempts))
		for _, a := range req.Trace.Attempts {
			line := fmt.Sprintf("  %s  attempt %d  agent=%s  %s", a.TaskID, a.Attempt, a.AgentID, a.Outcome)
			if a.Error != "" {
				line += "  " + a.Error
			}
			fmt.Println(line)
		}
	}
	if len(req.Trace.Corrections) > 0 {
		fmt.Printf("\ncorrections (%d):\n", len(req.Trace.Corrections))
		for _, c := range req.Trace.Corrections {
			fmt.Printf("  attempt %d  triggered by %s\n",
				c.AttemptNumber, strings.Join(c.ValidatorsTriggered, ", "))
		}
	}
	if len(req.Trace.Escalations) > 0 {
		fmt.Printf("\nescalations (%d):\n", len(req.Trace.Escalations))
		for _, e := range req.Trace.Escalations {
			fmt.Printf("  level %d -> %d  strategy=%s  %s\n", e.FromLevel, e.ToLevel, e.Strategy, e.Reason)
		}
	}
}

// colorStatus renders a request status with terminal colors.
func colorStatus(status models.RequestStatus) string {
	switch status {
	case models.RequestStatusCompleted:
		return color.GreenString(string(status))
	case models.RequestStatusFailed:
		return color.RedString(string(status))
	case models.RequestStatusCancelled, models.RequestStatusEscalated:
		return color.YellowString(string(status))
	default:
		return color.CyanString(string(status))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tactix-ai/tactix/pkg/models"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel a request",
	Long: `Mark a request as cancelled.

Cancellation is cooperative: an owning 'tactix run' process stops new
dispatch on interrupt, and this command records the cancelled state for
a request whose owning process is gone. Terminal requests cannot be
cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	req, err := db.GetRequest(args[0])
	if err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("unknown request %s", args[0])
	}
	if req.Status.Terminal() {
		fmt.Printf("request %s is already %s\n", req.ID, colorStatus(req.Status))
		return nil
	}

	req.Status = models.RequestStatusCancelled
	now := time.Now()
	req.FinishedAt = &now
	if err := db.SaveRequest(req); err != nil {
		return err
	}

	fmt.Printf("%s request %s cancelled\n", color.YellowString("⚠"), req.ID)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailerpro/mailerpro/internal/queue"
)

var queueCampaignID string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Task queue commands",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task queue statistics",
	RunE:  runQueueStats,
}

var queueTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List a campaign's tasks",
	RunE:  runQueueTasks,
}

func init() {
	queueStatsCmd.Flags().StringVar(&queueCampaignID, "campaign", "", "Limit stats to one campaign")
	queueTasksCmd.Flags().StringVar(&queueCampaignID, "campaign", "", "Campaign whose tasks to list")
	queueTasksCmd.MarkFlagRequired("campaign")

	queueCmd.AddCommand(queueStatsCmd, queueTasksCmd)
	rootCmd.AddCommand(queueCmd)
}

func openTaskQueue() (*queue.BoltStorage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	storage, err := queue.NewBoltStorage(cfg.Storage.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open task queue: %w", err)
	}

	return storage, nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	storage, err := openTaskQueue()
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(context.Background(), queueCampaignID)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Println("Task Queue Statistics")
	fmt.Println("---------------------")
	fmt.Printf("Pending:  %d\n", stats.Pending)
	fmt.Printf("Sending:  %d\n", stats.Sending)
	fmt.Printf("Sent:     %d\n", stats.Sent)
	fmt.Printf("Failed:   %d\n", stats.Failed)
	fmt.Printf("Skipped:  %d\n", stats.Skipped)
	fmt.Printf("Total:    %d\n", stats.Total)

	return nil
}

func runQueueTasks(cmd *cobra.Command, args []string) error {
	storage, err := openTaskQueue()
	if err != nil {
		return err
	}
	defer storage.Close()

	tasks, err := storage.ListByCampaign(context.Background(), queueCampaignID)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks for this campaign")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTACT\tSTEP\tVARIATION\tSTATUS\tSCHEDULED\tATTEMPTS\tDETAIL")
	fmt.Fprintln(w, "-------\t----\t---------\t------\t---------\t--------\t------")

	for _, t := range tasks {
		detail := string(t.SkipReason)
		if detail == "" {
			detail = string(t.LastError)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
			t.ContactID,
			t.StepOrder,
			t.VariationName,
			t.Status,
			t.ScheduledAt.Format("2006-01-02 15:04"),
			t.Attempts,
			detail,
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d tasks\n", len(tasks))

	return nil
}

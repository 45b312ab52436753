package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailerpro/mailerpro/internal/campaign"
	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/rotation"
	"github.com/mailerpro/mailerpro/internal/scheduler"
	"github.com/mailerpro/mailerpro/internal/store"
)

var campaignUser string

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign management commands",
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  runCampaignList,
}

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign_id>",
	Short: "Show campaign details and task counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignShow,
}

var campaignStartCmd = &cobra.Command{
	Use:   "start <campaign_id>",
	Short: "Start a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  lifecycleRunner((*campaign.Service).Start),
}

var campaignPauseCmd = &cobra.Command{
	Use:   "pause <campaign_id>",
	Short: "Pause a sending campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  lifecycleRunner((*campaign.Service).Pause),
}

var campaignResumeCmd = &cobra.Command{
	Use:   "resume <campaign_id>",
	Short: "Resume a paused campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  lifecycleRunner((*campaign.Service).Resume),
}

func init() {
	campaignListCmd.Flags().StringVar(&campaignUser, "user", "default", "Owner whose campaigns to list")

	campaignCmd.AddCommand(campaignListCmd, campaignShowCmd, campaignStartCmd, campaignPauseCmd, campaignResumeCmd)
	rootCmd.AddCommand(campaignCmd)
}

// engine holds the offline stack the lifecycle commands need. The
// server must not be running: both stores are single-writer.
type engine struct {
	db        *store.DB
	tasks     *queue.BoltStorage
	campaigns *store.CampaignRepository
	lifecycle *campaign.Service
}

func openEngine() (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	tasks, err := queue.NewBoltStorage(cfg.Storage.QueuePath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open task queue: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	contactRepo := store.NewContactRepository(db)
	accountRepo := store.NewAccountRepository(db)
	campaignRepo := store.NewCampaignRepository(db)

	tracker := rotation.NewTracker()
	all, err := accountRepo.ListAll()
	if err != nil {
		tasks.Close()
		db.Close()
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, acc := range all {
		tracker.Set(acc.ID, acc.SentToday)
	}

	sched := scheduler.New(tasks, rotation.NewRotator(tracker), logger)
	lifecycle := campaign.NewService(campaignRepo, contactRepo, accountRepo, tasks, sched, logger)

	return &engine{
		db:        db,
		tasks:     tasks,
		campaigns: campaignRepo,
		lifecycle: lifecycle,
	}, nil
}

func (e *engine) Close() {
	e.tasks.Close()
	e.db.Close()
}

// lifecycleRunner adapts a campaign service method into a cobra RunE.
func lifecycleRunner(op func(*campaign.Service, context.Context, string) (*models.Campaign, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		c, err := op(eng.lifecycle, context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Campaign %s (%s) is now %s\n", c.ID, c.Name, c.Status)
		return nil
	}
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	list, err := eng.campaigns.List(campaignUser)
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No campaigns")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTEPS\tCONTACTS\tCREATED")
	fmt.Fprintln(w, "--\t----\t------\t-----\t--------\t-------")

	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			c.ID,
			c.Name,
			c.Status,
			len(c.Steps),
			len(c.ContactIDs),
			c.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d campaigns\n", len(list))

	return nil
}

func runCampaignShow(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	c, err := eng.campaigns.GetByID(args[0])
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	if c == nil {
		return fmt.Errorf("campaign not found: %s", args[0])
	}

	fmt.Printf("Campaign: %s\n\n", c.ID)
	fmt.Printf("Name:        %s\n", c.Name)
	if c.Description != "" {
		fmt.Printf("Description: %s\n", c.Description)
	}
	fmt.Printf("Status:      %s\n", c.Status)
	fmt.Printf("Contacts:    %d\n", len(c.ContactIDs))
	fmt.Printf("Accounts:    %d\n", len(c.AccountIDs))
	fmt.Printf("A/B testing: %t\n", c.ABTesting)
	fmt.Printf("Personalize: %t\n", c.Personalization)
	fmt.Printf("Created:     %s\n", c.CreatedAt.Format(time.RFC3339))

	fmt.Println("\nSteps:")
	for _, step := range c.Steps {
		fmt.Printf("  %d. +%dd, %d variation(s)\n", step.Order, step.DelayDays, len(step.Variations))
	}

	stats, err := eng.tasks.Stats(context.Background(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to get task stats: %w", err)
	}
	fmt.Printf("\nTasks: %d total, %d pending, %d sending, %d sent, %d failed, %d skipped\n",
		stats.Total, stats.Pending, stats.Sending, stats.Sent, stats.Failed, stats.Skipped)

	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailerpro/mailerpro/internal/deliverability"
	"github.com/mailerpro/mailerpro/internal/store"
)

var (
	accountsUser   string
	verifySelector string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "SMTP account management commands",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List SMTP accounts",
	RunE:  runAccountsList,
}

var accountsVerifyCmd = &cobra.Command{
	Use:   "verify <account_id>",
	Short: "Check the account's sending domain for SPF, DKIM and DMARC",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsVerify,
}

func init() {
	accountsCmd.PersistentFlags().StringVar(&accountsUser, "user", "default", "Owner of the accounts")
	accountsVerifyCmd.Flags().StringVar(&verifySelector, "selector", "", "DKIM selector (defaults per provider)")

	accountsCmd.AddCommand(accountsListCmd, accountsVerifyCmd)
	rootCmd.AddCommand(accountsCmd)
}

func openAccountStore() (*store.DB, *store.AccountRepository, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, store.NewAccountRepository(db), nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	db, repo, err := openAccountStore()
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := repo.List(accountsUser)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No SMTP accounts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tUSERNAME\tSENT/LIMIT\tACTIVE\tVERIFIED")
	fmt.Fprintln(w, "--\t----\t--------\t--------\t----------\t------\t--------")

	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%t\t%t\n",
			a.ID, a.Name, a.Provider, a.Username, a.SentToday, a.DailyLimit, a.IsActive, a.Verified)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d accounts\n", len(list))

	return nil
}

func runAccountsVerify(cmd *cobra.Command, args []string) error {
	db, repo, err := openAccountStore()
	if err != nil {
		return err
	}
	defer db.Close()

	account, err := repo.GetByID(args[0])
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return fmt.Errorf("account not found: %s", args[0])
	}

	domain, err := deliverability.DomainFromAddress(account.Username)
	if err != nil {
		return fmt.Errorf("account username %q has no usable domain: %w", account.Username, err)
	}

	selector := verifySelector
	if selector == "" {
		selector = deliverability.DefaultSelector(account.Provider)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	checker := deliverability.NewChecker(logger)

	report, err := checker.CheckDomain(context.Background(), domain, selector)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	fmt.Printf("Deliverability report for %s (selector %s)\n\n", domain, selector)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	fmt.Fprintln(w, "-----\t------\t------")
	for _, check := range report.Checks {
		detail := check.Detail
		if detail == "" {
			detail = check.Record
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", check.Name, check.Status, detail)
	}
	w.Flush()

	account.Verified = report.Passed
	if err := repo.Update(account); err != nil {
		return fmt.Errorf("failed to persist verification: %w", err)
	}

	if report.Passed {
		fmt.Println("\nAccount verified")
	} else {
		fmt.Println("\nAccount NOT verified; fix the missing records above")
	}

	return nil
}

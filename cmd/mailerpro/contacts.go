package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailerpro/mailerpro/internal/contacts"
	"github.com/mailerpro/mailerpro/internal/store"
)

var (
	contactsUser      string
	contactsListLimit int
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Contact management commands",
}

var contactsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import contacts from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runContactsImport,
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts",
	RunE:  runContactsList,
}

func init() {
	contactsCmd.PersistentFlags().StringVar(&contactsUser, "user", "default", "Owner of the contacts")
	contactsListCmd.Flags().IntVar(&contactsListLimit, "limit", 50, "Maximum number of contacts to show")

	contactsCmd.AddCommand(contactsImportCmd, contactsListCmd)
	rootCmd.AddCommand(contactsCmd)
}

func openContactStore() (*store.DB, *store.ContactRepository, error) {
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

	return db, store.NewContactRepository(db), nil
}

func runContactsImport(cmd *cobra.Command, args []string) error {
	db, repo, err := openContactStore()
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	importer := contacts.NewImporter(repo, logger)

	result, err := importer.Import(context.Background(), contactsUser, f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Imported %d of %d rows (%d duplicates skipped, %d failed)\n",
		result.Imported, result.TotalRows, result.Skipped, result.Failed)
	for _, rowErr := range result.Errors {
		fmt.Printf("  %s\n", rowErr)
	}

	return nil
}

func runContactsList(cmd *cobra.Command, args []string) error {
	db, repo, err := openContactStore()
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := repo.List(store.ContactFilter{
		UserID: contactsUser,
		Limit:  contactsListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No contacts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tCOMPANY\tUNSUBSCRIBED")
	fmt.Fprintln(w, "--\t----\t-----\t-------\t------------")

	for _, c := range list {
		name := c.FirstName
		if c.LastName != "" {
			name += " " + c.LastName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", c.ID, name, c.Email, c.Company, c.Unsubscribed)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d contacts\n", len(list))

	return nil
}

// Package contacts implements bulk contact ingestion from CSV files.
package contacts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/store"
)

// maxRowErrors caps how many per-row messages an import result
// carries; beyond that only the count grows.
const maxRowErrors = 20

// bom is the UTF-8 byte order mark some spreadsheet exports prepend
// to the header row.
const bom = "\ufeff"

// ImportResult summarizes one CSV import.
type ImportResult struct {
	Imported  int      `json:"imported"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
	TotalRows int      `json:"total_rows"`
}

// Importer reads CSV rows into the contact store.
type Importer struct {
	repo   *store.ContactRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewImporter creates a CSV importer.
func NewImporter(repo *store.ContactRepository, logger *slog.Logger) *Importer {
	return &Importer{repo: repo, logger: logger, now: time.Now}
}

// Import reads a CSV stream and creates a contact per row. The first
// row must be a header; email and first_name columns are required.
// Rows whose email already exists for the user are skipped, invalid
// rows are counted as failed, and neither aborts the import.
func (i *Importer) Import(ctx context.Context, userID string, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := mapColumns(header)
	if _, ok := cols["email"]; !ok {
		return nil, fmt.Errorf("csv header is missing required column: email")
	}
	if _, ok := cols["first_name"]; !ok {
		return nil, fmt.Errorf("csv header is missing required column: first_name")
	}

	result := &ImportResult{}
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Failed++
			result.addError(fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		result.TotalRows++

		contact := buildContact(userID, cols, record, i.now())
		if err := contact.Validate(); err != nil {
			result.Failed++
			result.addError(fmt.Sprintf("row %d: %v", row, err))
			continue
		}

		exists, err := i.repo.EmailExists(userID, contact.Email)
		if err != nil {
			return result, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if exists {
			result.Skipped++
			continue
		}

		if err := i.repo.Create(contact); err != nil {
			if models.IsValidation(err) {
				// Duplicate created concurrently.
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("failed to store contact: %w", err)
		}
		result.Imported++
	}

	i.logger.Info("csv import finished",
		"user_id", userID,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (r *ImportResult) addError(msg string) {
	if len(r.Errors) < maxRowErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// mapColumns builds a normalized header-name to index map. Common
// aliases from exported CRM lists are folded onto the canonical
// field names.
func mapColumns(header []string) map[string]int {
	aliases := map[string]string{
		"e-mail":        "email",
		"email address": "email",
		"firstname":     "first_name",
		"first name":    "first_name",
		"lastname":      "last_name",
		"last name":     "last_name",
		"organization":  "company",
		"phone number":  "phone",
		"tag":           "tags",
	}
	cols := make(map[string]int, len(header))
	for idx, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, bom)))
		if canonical, ok := aliases[key]; ok {
			key = canonical
		}
		if _, seen := cols[key]; !seen {
			cols[key] = idx
		}
	}
	return cols
}

func buildContact(userID string, cols map[string]int, record []string, now time.Time) *models.Contact {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	contact := &models.Contact{
		ID:        uuid.New().String(),
		UserID:    userID,
		FirstName: field("first_name"),
		LastName:  field("last_name"),
		Email:     strings.ToLower(field("email")),
		Company:   field("company"),
		Phone:     field("phone"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if tags := field("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ";") {
			if t := strings.TrimSpace(tag); t != "" {
				contact.Tags = append(contact.Tags, t)
			}
		}
	}
	return contact
}

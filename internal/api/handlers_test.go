package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mailerpro/mailerpro/internal/campaign"
	"github.com/mailerpro/mailerpro/internal/config"
	"github.com/mailerpro/mailerpro/internal/contacts"
	"github.com/mailerpro/mailerpro/internal/deliverability"
	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/rotation"
	"github.com/mailerpro/mailerpro/internal/scheduler"
	"github.com/mailerpro/mailerpro/internal/store"
)

type testEnv struct {
	server    *Server
	contacts  *store.ContactRepository
	accounts  *store.AccountRepository
	campaigns *store.CampaignRepository
	tasks     *queue.BoltStorage
}

func newTestServer(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "mailerpro.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tasks, err := queue.NewBoltStorage(filepath.Join(dir, "queue.db"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { tasks.Close() })

	contactRepo := store.NewContactRepository(db)
	accountRepo := store.NewAccountRepository(db)
	campaignRepo := store.NewCampaignRepository(db)

	rotator := rotation.NewRotator(rotation.NewTracker())
	sched := scheduler.New(tasks, rotator, logger)
	lifecycle := campaign.NewService(campaignRepo, contactRepo, accountRepo, tasks, sched, logger)

	checker := deliverability.NewChecker(logger)
	checker.SetResolver(&staticResolver{
		txt: map[string][]string{
			"example.com":                    {"v=spf1 -all"},
			"default._domainkey.example.com": {"v=DKIM1; p=MIGf"},
			"_dmarc.example.com":             {"v=DMARC1; p=reject"},
		},
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mx1.example.com.", Pref: 10}},
		},
	})

	cfg := &config.APIConfig{ListenAddr: ":0", APIKey: apiKey}
	server := NewServer(Deps{
		Contacts:  contactRepo,
		Accounts:  accountRepo,
		Campaigns: campaignRepo,
		Tasks:     tasks,
		Lifecycle: lifecycle,
		Importer:  contacts.NewImporter(contactRepo, logger),
		Checker:   checker,
	}, cfg, logger)

	return &testEnv{
		server:    server,
		contacts:  contactRepo,
		accounts:  accountRepo,
		campaigns: campaignRepo,
		tasks:     tasks,
	}
}

func doJSON(t *testing.T, env *testEnv, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestServer(t, "")

	rec := doJSON(t, env, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestServer(t, "secret")

	rec := doJSON(t, env, "GET", "/api/v1/contacts", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/contacts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec2.Code)
	}
}

func TestContactCRUD(t *testing.T) {
	env := newTestServer(t, "")

	rec := doJSON(t, env, "POST", "/api/v1/contacts", map[string]any{
		"first_name": "Ada",
		"email":      "ada@example.com",
		"company":    "Analytical",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.Contact
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created contact has no id")
	}

	// Duplicate email is rejected
	rec = doJSON(t, env, "POST", "/api/v1/contacts", map[string]any{
		"first_name": "Ada",
		"email":      "ada@example.com",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", rec.Code)
	}

	// Missing email is rejected
	rec = doJSON(t, env, "POST", "/api/v1/contacts", map[string]any{"first_name": "NoEmail"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, env, "GET", "/api/v1/contacts/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get: status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, env, "PUT", "/api/v1/contacts/"+created.ID, map[string]any{
		"first_name": "Ada",
		"email":      "ada@example.com",
		"company":    "Lovelace Ltd",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated models.Contact
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Company != "Lovelace Ltd" {
		t.Errorf("company = %s, want Lovelace Ltd", updated.Company)
	}

	rec = doJSON(t, env, "DELETE", "/api/v1/contacts/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, env, "GET", "/api/v1/contacts/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestImportContacts(t *testing.T) {
	env := newTestServer(t, "")

	csv := "email,first_name\nada@example.com,Ada\ngrace@example.com,Grace\n"
	req := httptest.NewRequest("POST", "/api/v1/contacts/import", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result contacts.ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2", result.Imported)
	}
}

func TestAccountPasswordNeverSerialized(t *testing.T) {
	env := newTestServer(t, "")

	rec := doJSON(t, env, "POST", "/api/v1/smtp-accounts", map[string]any{
		"name":        "primary",
		"provider":    "custom",
		"host":        "smtp.example.com",
		"port":        587,
		"username":    "sender@example.com",
		"password":    "hunter2",
		"daily_limit": 50,
		"is_active":   true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("password leaked in create response")
	}

	var created models.SmtpAccount
	json.Unmarshal(rec.Body.Bytes(), &created)

	// Credential still stored
	stored, err := env.accounts.GetByID(created.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored account missing: %v", err)
	}
	if stored.Password != "hunter2" {
		t.Errorf("stored password = %q, want hunter2", stored.Password)
	}

	rec = doJSON(t, env, "GET", "/api/v1/smtp-accounts/"+created.ID, nil)
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("password leaked in get response")
	}
}

// staticResolver serves canned DNS answers so verification tests
// never hit the network.
type staticResolver struct {
	txt map[string][]string
	mx  map[string][]*net.MX
}

func (f *staticResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	records, ok := f.txt[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

func (f *staticResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	records, ok := f.mx[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

func TestVerifyAccount(t *testing.T) {
	env := newTestServer(t, "")

	account := &models.SmtpAccount{
		ID:         "acc-verify",
		UserID:     defaultUser,
		Provider:   models.ProviderCustom,
		Host:       "smtp.example.com",
		Port:       587,
		Username:   "sender@example.com",
		Password:   "pw",
		DailyLimit: 50,
		IsActive:   true,
	}
	if err := env.accounts.Create(account); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	rec := doJSON(t, env, "POST", "/api/v1/smtp-accounts/acc-verify/verify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp VerifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !resp.Verified {
		t.Errorf("verified = false, want true: %+v", resp.Report)
	}

	stored, err := env.accounts.GetByID("acc-verify")
	if err != nil || stored == nil {
		t.Fatalf("stored account missing: %v", err)
	}
	if !stored.Verified {
		t.Error("verified flag not persisted")
	}

	// Unknown domain: checks come back missing, account stays
	// unverified.
	account2 := &models.SmtpAccount{
		ID:         "acc-unverified",
		UserID:     defaultUser,
		Provider:   models.ProviderCustom,
		Host:       "smtp.nowhere.test",
		Port:       587,
		Username:   "sender@nowhere.test",
		Password:   "pw",
		DailyLimit: 50,
		IsActive:   true,
	}
	if err := env.accounts.Create(account2); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	rec = doJSON(t, env, "POST", "/api/v1/smtp-accounts/acc-unverified/verify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Verified {
		t.Error("verified = true, want false for domain without records")
	}
}

func TestCampaignLifecycleViaAPI(t *testing.T) {
	env := newTestServer(t, "")

	// Seed a contact and an account directly
	contact := &models.Contact{ID: "con-1", UserID: defaultUser, FirstName: "Ada", Email: "ada@example.com"}
	if err := env.contacts.Create(contact); err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	account := &models.SmtpAccount{
		ID: "acc-1", UserID: defaultUser, Provider: models.ProviderCustom,
		Host: "smtp.example.com", Port: 587, Username: "s@example.com",
		DailyLimit: 50, IsActive: true,
	}
	if err := env.accounts.Create(account); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	rec := doJSON(t, env, "POST", "/api/v1/campaigns", map[string]any{
		"name": "launch",
		"steps": []map[string]any{
			{
				"sequence_order": 1,
				"variations": []map[string]any{
					{"name": "A", "subject": "Hi {{first_name}}", "content": "Hello", "weight": 100},
				},
			},
		},
		"contact_ids": []string{"con-1"},
		"account_ids": []string{"acc-1"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.Campaign
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Status != models.CampaignDraft {
		t.Errorf("status = %s, want draft", created.Status)
	}

	rec = doJSON(t, env, "POST", "/api/v1/campaigns/"+created.ID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var started models.Campaign
	json.Unmarshal(rec.Body.Bytes(), &started)
	if started.Status != models.CampaignSending {
		t.Errorf("status after start = %s, want sending", started.Status)
	}

	// A task exists for the contact now
	rec = doJSON(t, env, "GET", "/api/v1/campaigns/"+created.ID+"/tasks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tasks: status = %d", rec.Code)
	}
	var tasks []*models.SendTask
	json.Unmarshal(rec.Body.Bytes(), &tasks)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}

	// Starting again conflicts
	rec = doJSON(t, env, "POST", "/api/v1/campaigns/"+created.ID+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double start: status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, env, "POST", "/api/v1/campaigns/"+created.ID+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("pause: status = %d, want 200", rec.Code)
	}
	rec = doJSON(t, env, "POST", "/api/v1/campaigns/"+created.ID+"/resume", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("resume: status = %d, want 200", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	env := newTestServer(t, "")

	rec := doJSON(t, env, "POST", "/api/v1/campaigns/preview", map[string]any{
		"subject": "Hi {{first_name}}",
		"content": "Greetings from {{company}}, {{bogus}} stays",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Subject != "Hi Jane" {
		t.Errorf("subject = %q, want 'Hi Jane'", resp.Subject)
	}
	if !strings.Contains(resp.Content, "{{bogus}}") {
		t.Errorf("unknown variable should stay verbatim: %q", resp.Content)
	}
	if resp.Validation.Valid {
		t.Error("validation should flag the unknown variable")
	}
	if len(resp.Validation.UnknownVariables) != 1 || resp.Validation.UnknownVariables[0] != "bogus" {
		t.Errorf("unknown vars = %v, want [bogus]", resp.Validation.UnknownVariables)
	}
}

func TestDashboardStats(t *testing.T) {
	env := newTestServer(t, "")

	contact := &models.Contact{ID: "con-1", UserID: defaultUser, FirstName: "Ada", Email: "ada@example.com"}
	if err := env.contacts.Create(contact); err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	rec := doJSON(t, env, "GET", "/api/v1/dashboard/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats DashboardStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if stats.TotalContacts != 1 {
		t.Errorf("total contacts = %d, want 1", stats.TotalContacts)
	}
}

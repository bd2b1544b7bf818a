package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"bilancio/internal/services"
	"bilancio/internal/storage"
	"bilancio/internal/stream"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	broker := stream.NewBroker()
	ledger := services.NewLedgerService(repo, nil, broker)
	srv := NewServer(":0", repo, ledger,
		services.NewTransferCoordinator(repo), services.NewAmortizer(repo), broker)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		broker.Close()
		_ = ledger.Close()
	})
	return srv
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestAccountNotFoundMapsTo404(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/accounts/999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestInvalidPayloadMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/api/accounts", `{"name": `},
		{"unknown field", "/api/accounts", `{"name":"Conto","kind":"asset","bogus":1}`},
		{"invalid kind", "/api/accounts", `{"name":"Conto","kind":"savings"}`},
		{"entry without account", "/api/entries", `{"kind":"expense","amount_cents":100,"date":"2025-06-01"}`},
		{"entry bad date", "/api/entries", `{"account_id":1,"kind":"expense","amount_cents":100,"date":"junk"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %q)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestEntryLifecycleThroughAPI(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", `{"name":"Conto","kind":"asset"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d (body %q)", rec.Code, rec.Body.String())
	}
	account := decodeBody[accountResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/entries",
		`{"account_id":`+jsonID(account.ID)+`,"kind":"income","amount":"1500,00","date":"2025-06-01","description":"Stipendio"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create entry status = %d (body %q)", rec.Code, rec.Body.String())
	}
	entry := decodeBody[entryResponse](t, rec)
	if entry.AmountCents != 150000 {
		t.Errorf("AmountCents = %d, want 150000 (decimal comma parsing)", entry.AmountCents)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts/"+jsonID(account.ID), "")
	got := decodeBody[accountResponse](t, rec)
	if got.BalanceCents != 150000 {
		t.Errorf("BalanceCents = %d, want 150000", got.BalanceCents)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/entries/"+jsonID(entry.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete entry status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts/"+jsonID(account.ID), "")
	got = decodeBody[accountResponse](t, rec)
	if got.BalanceCents != 0 {
		t.Errorf("BalanceCents after delete = %d, want 0", got.BalanceCents)
	}
}

func TestIncomeOnCreditAccountRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts",
		`{"name":"Carta","kind":"revolving_credit","credit_limit_cents":100000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d (body %q)", rec.Code, rec.Body.String())
	}
	account := decodeBody[accountResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/entries",
		`{"account_id":`+jsonID(account.ID)+`,"kind":"income","amount_cents":5000,"date":"2025-06-01"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTransferEndpointPaysDownCredit(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", `{"name":"Conto","kind":"asset"}`)
	asset := decodeBody[accountResponse](t, rec)
	rec = doJSON(t, srv, http.MethodPost, "/api/accounts",
		`{"name":"Carta","kind":"revolving_credit","credit_limit_cents":100000}`)
	credit := decodeBody[accountResponse](t, rec)

	doJSON(t, srv, http.MethodPost, "/api/entries",
		`{"account_id":`+jsonID(asset.ID)+`,"kind":"income","amount_cents":50000,"date":"2025-06-01"}`)
	doJSON(t, srv, http.MethodPost, "/api/entries",
		`{"account_id":`+jsonID(credit.ID)+`,"kind":"expense","amount_cents":20000,"date":"2025-06-02","category":"Elettronica"}`)

	rec = doJSON(t, srv, http.MethodPost, "/api/transfers",
		`{"from_account_id":`+jsonID(asset.ID)+`,"to_account_id":`+jsonID(credit.ID)+`,"amount_cents":30000,"date":"2025-06-10"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer status = %d (body %q)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts/"+jsonID(asset.ID), "")
	gotAsset := decodeBody[accountResponse](t, rec)
	if gotAsset.BalanceCents != 20000 {
		t.Errorf("asset balance = %d, want 20000", gotAsset.BalanceCents)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/accounts/"+jsonID(credit.ID), "")
	gotCredit := decodeBody[accountResponse](t, rec)
	if gotCredit.BalanceCents != 0 {
		t.Errorf("credit balance = %d, want 0 (pay-down clamped)", gotCredit.BalanceCents)
	}
}

func TestTransferInsufficientBalanceRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", `{"name":"Conto A","kind":"asset"}`)
	a := decodeBody[accountResponse](t, rec)
	rec = doJSON(t, srv, http.MethodPost, "/api/accounts", `{"name":"Conto B","kind":"asset"}`)
	b := decodeBody[accountResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/transfers",
		`{"from_account_id":`+jsonID(a.ID)+`,"to_account_id":`+jsonID(b.ID)+`,"amount_cents":100}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDashboardReflectsLedgerChanges(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", `{"name":"Conto","kind":"asset"}`)
	account := decodeBody[accountResponse](t, rec)
	doJSON(t, srv, http.MethodPost, "/api/entries",
		`{"account_id":`+jsonID(account.ID)+`,"kind":"income","amount_cents":100000,"date":"2025-06-01"}`)

	rec = doJSON(t, srv, http.MethodGet, "/api/dashboard?date=2025-06-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d (body %q)", rec.Code, rec.Body.String())
	}
	first := decodeBody[services.BudgetProjection](t, rec)
	if first.FreeMoney.Cents != 100000 {
		t.Errorf("FreeMoney = %d, want 100000", first.FreeMoney.Cents)
	}
	if first.DaysRemaining != 21 {
		t.Errorf("DaysRemaining = %d, want 21", first.DaysRemaining)
	}

	doJSON(t, srv, http.MethodPost, "/api/entries",
		`{"account_id":`+jsonID(account.ID)+`,"kind":"expense","amount_cents":40000,"date":"2025-06-05","category":"Spesa"}`)

	// Invalidation arrives through the broker asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doJSON(t, srv, http.MethodGet, "/api/dashboard?date=2025-06-10", "")
		got := decodeBody[services.BudgetProjection](t, rec)
		if got.FreeMoney.Cents == 60000 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("FreeMoney = %d, want 60000 after cache invalidation", got.FreeMoney.Cents)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlanEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts",
		`{"name":"Carta","kind":"revolving_credit","credit_limit_cents":500000}`)
	account := decodeBody[accountResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/plans",
		`{"account_id":`+jsonID(account.ID)+`,"description":"Lavatrice","total_cents":120000,"installments":12}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create plan status = %d (body %q)", rec.Code, rec.Body.String())
	}
	plan := decodeBody[planResponse](t, rec)
	if plan.MonthlyCents != 10000 {
		t.Errorf("MonthlyCents = %d, want 10000", plan.MonthlyCents)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/plans/"+jsonID(plan.ID),
		`{"total_cents":60000,"installments":6}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit plan status = %d (body %q)", rec.Code, rec.Body.String())
	}
	edited := decodeBody[planResponse](t, rec)
	if edited.MonthlyCents != 10000 {
		t.Errorf("edited MonthlyCents = %d, want 10000", edited.MonthlyCents)
	}
	if edited.RemainingInstallments != 12 {
		t.Errorf("RemainingInstallments = %d, want 12 (edit preserves it)", edited.RemainingInstallments)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/plans/"+jsonID(plan.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel plan status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/plans", "")
	plans := decodeBody[[]planResponse](t, rec)
	if len(plans) != 1 || plans[0].Active {
		t.Errorf("plans = %v, want one inactive plan", plans)
	}
}

func TestPlanOnAssetAccountRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", `{"name":"Conto","kind":"asset"}`)
	account := decodeBody[accountResponse](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/plans",
		`{"account_id":`+jsonID(account.ID)+`,"description":"Divano","total_cents":50000,"installments":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

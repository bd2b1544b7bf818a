package http

import (
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

type accountRequest struct {
	Name                string `json:"name"`
	Kind                string `json:"kind"`
	CreditLimitCents    int64  `json:"credit_limit_cents"`
	TotalDebtCents      int64  `json:"total_debt_cents"`
	MonthlyPaymentCents int64  `json:"monthly_payment_cents"`
	RemainingMonths     int    `json:"remaining_months"`
	NextPaymentDate     string `json:"next_payment_date"`
}

type accountResponse struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	Kind                string    `json:"kind"`
	BalanceCents        int64     `json:"balance_cents"`
	CreditLimitCents    int64     `json:"credit_limit_cents,omitempty"`
	HeadroomCents       int64     `json:"headroom_cents,omitempty"`
	TotalDebtCents      int64     `json:"total_debt_cents,omitempty"`
	MonthlyPaymentCents int64     `json:"monthly_payment_cents,omitempty"`
	RemainingMonths     int       `json:"remaining_months,omitempty"`
	NextPaymentDate     string    `json:"next_payment_date,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func toAccountResponse(a core.Account) accountResponse {
	resp := accountResponse{
		ID:                  a.ID,
		Name:                a.Name,
		Kind:                string(a.Kind),
		BalanceCents:        a.Balance.Cents,
		CreditLimitCents:    a.CreditLimit.Cents,
		TotalDebtCents:      a.TotalDebt.Cents,
		MonthlyPaymentCents: a.MonthlyPayment.Cents,
		RemainingMonths:     a.RemainingMonths,
		CreatedAt:           a.CreatedAt,
	}
	if a.Kind == core.RevolvingCredit {
		resp.HeadroomCents = a.Headroom().Cents
	}
	if !a.NextPaymentDate.IsZero() {
		resp.NextPaymentDate = a.NextPaymentDate.Format("2006-01-02")
	}
	return resp
}

func (req accountRequest) toAccount() (core.Account, error) {
	a := core.Account{
		Name:            sanitizeInput(req.Name),
		Kind:            core.AccountKind(req.Kind),
		CreditLimit:     core.Money{Cents: req.CreditLimitCents},
		TotalDebt:       core.Money{Cents: req.TotalDebtCents},
		MonthlyPayment:  core.Money{Cents: req.MonthlyPaymentCents},
		RemainingMonths: req.RemainingMonths,
	}
	if req.NextPaymentDate != "" {
		d, err := parseDateField("next_payment_date", req.NextPaymentDate)
		if err != nil {
			return core.Account{}, err
		}
		a.NextPaymentDate = d
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, &core.ValidationError{Reason: err.Error()}
	}
	return a, nil
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.storage.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	account, err := req.toAccount()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.storage.CreateAccount(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(created.ID, "account")
	writeJSON(w, http.StatusCreated, toAccountResponse(created))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	account, err := s.storage.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existing, err := s.storage.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// The kind is fixed at creation: replay semantics differ per kind.
	req.Kind = string(existing.Kind)
	account, err := req.toAccount()
	if err != nil {
		writeError(w, r, err)
		return
	}
	account.ID = id
	if err := s.storage.UpdateAccount(r.Context(), account); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := s.storage.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(id, "account")
	writeJSON(w, http.StatusOK, toAccountResponse(updated))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.storage.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(id, "account")
	w.WriteHeader(http.StatusNoContent)
}

type entryRequest struct {
	AccountID   int64  `json:"account_id"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type entryResponse struct {
	ID            int64  `json:"id"`
	AccountID     int64  `json:"account_id"`
	Kind          string `json:"kind"`
	AmountCents   int64  `json:"amount_cents"`
	Date          string `json:"date"`
	Category      string `json:"category,omitempty"`
	Description   string `json:"description,omitempty"`
	PlanGenerated bool   `json:"plan_generated"`
}

func toEntryResponse(e core.LedgerEntry) entryResponse {
	return entryResponse{
		ID:            e.ID,
		AccountID:     e.AccountID,
		Kind:          string(e.Kind),
		AmountCents:   e.Amount.Cents,
		Date:          e.Date.Format("2006-01-02"),
		Category:      e.Category,
		Description:   e.Description,
		PlanGenerated: e.FromPlan(),
	}
}

func (req entryRequest) toEntry() (core.LedgerEntry, error) {
	amount, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	date, err := parseDateField("date", req.Date)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	return core.LedgerEntry{
		AccountID:   req.AccountID,
		Kind:        core.EntryKind(req.Kind),
		Amount:      amount,
		Date:        date,
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
	}, nil
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.storage.GetAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.storage.ListEntries(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := req.toEntry()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateEntry(r.Context(), entry)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(created))
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := req.toEntry()
	if err != nil {
		writeError(w, r, err)
		return
	}
	entry.ID = id
	updated, err := s.ledger.UpdateEntry(r.Context(), entry)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(updated))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteEntry(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type obligationRequest struct {
	Kind           string `json:"kind"`
	AmountCents    int64  `json:"amount_cents"`
	Amount         string `json:"amount"`
	Every          string `json:"every"`
	NextOccurrence string `json:"next_occurrence"`
	Category       string `json:"category"`
	Description    string `json:"description"`
}

type obligationResponse struct {
	ID             int64  `json:"id"`
	Kind           string `json:"kind"`
	AmountCents    int64  `json:"amount_cents"`
	Every          string `json:"every"`
	NextOccurrence string `json:"next_occurrence"`
	Category       string `json:"category,omitempty"`
	Description    string `json:"description,omitempty"`
}

func toObligationResponse(o core.RecurringObligation) obligationResponse {
	return obligationResponse{
		ID:             o.ID,
		Kind:           string(o.Kind),
		AmountCents:    o.Amount.Cents,
		Every:          string(o.Every),
		NextOccurrence: o.NextOccurrence.Format("2006-01-02"),
		Category:       o.Category,
		Description:    o.Description,
	}
}

func (req obligationRequest) toObligation() (core.RecurringObligation, error) {
	amount, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		return core.RecurringObligation{}, err
	}
	next, err := parseDateField("next_occurrence", req.NextOccurrence)
	if err != nil {
		return core.RecurringObligation{}, err
	}
	o := core.RecurringObligation{
		Kind:           core.EntryKind(req.Kind),
		Amount:         amount,
		Every:          core.Frequency(req.Every),
		NextOccurrence: next,
		Category:       sanitizeInput(req.Category),
		Description:    sanitizeInput(req.Description),
	}
	if err := o.Validate(); err != nil {
		return core.RecurringObligation{}, &core.ValidationError{Reason: err.Error()}
	}
	return o, nil
}

func (s *Server) handleListObligations(w http.ResponseWriter, r *http.Request) {
	obligations, err := s.storage.ListObligations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]obligationResponse, 0, len(obligations))
	for _, o := range obligations {
		resp = append(resp, toObligationResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateObligation(w http.ResponseWriter, r *http.Request) {
	var req obligationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	obligation, err := req.toObligation()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.storage.CreateObligation(r.Context(), obligation)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(0, "obligation")
	writeJSON(w, http.StatusCreated, toObligationResponse(created))
}

func (s *Server) handleUpdateObligation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req obligationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	obligation, err := req.toObligation()
	if err != nil {
		writeError(w, r, err)
		return
	}
	obligation.ID = id
	if err := s.storage.UpdateObligation(r.Context(), obligation); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(0, "obligation")
	writeJSON(w, http.StatusOK, toObligationResponse(obligation))
}

func (s *Server) handleDeleteObligation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.storage.DeleteObligation(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(0, "obligation")
	w.WriteHeader(http.StatusNoContent)
}

type planRequest struct {
	AccountID    int64  `json:"account_id"`
	Description  string `json:"description"`
	TotalCents   int64  `json:"total_cents"`
	Total        string `json:"total"`
	Installments int    `json:"installments"`
}

type planResponse struct {
	ID                    int64  `json:"id"`
	AccountID             int64  `json:"account_id"`
	Description           string `json:"description"`
	TotalCents            int64  `json:"total_cents"`
	Installments          int    `json:"installments"`
	MonthlyCents          int64  `json:"monthly_cents"`
	RemainingInstallments int    `json:"remaining_installments"`
	NextPaymentDate       string `json:"next_payment_date"`
	Active                bool   `json:"active"`
}

func toPlanResponse(p core.InstallmentPlan) planResponse {
	return planResponse{
		ID:                    p.ID,
		AccountID:             p.AccountID,
		Description:           p.Description,
		TotalCents:            p.TotalAmount.Cents,
		Installments:          p.InstallmentCount,
		MonthlyCents:          p.MonthlyAmount.Cents,
		RemainingInstallments: p.RemainingInstallments,
		NextPaymentDate:       p.NextPaymentDate.Format("2006-01-02"),
		Active:                p.Active,
	}
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.storage.ListPlans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		resp = append(resp, toPlanResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	total, err := amountCents(req.TotalCents, req.Total)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.amortizer.CreatePlan(r.Context(), req.AccountID,
		sanitizeInput(req.Description), total, req.Installments, core.DateOf(time.Now()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(created.AccountID, "plan")
	writeJSON(w, http.StatusCreated, toPlanResponse(created))
}

func (s *Server) handleEditPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	total, err := amountCents(req.TotalCents, req.Total)
	if err != nil {
		writeError(w, r, err)
		return
	}
	edited, err := s.amortizer.Edit(r.Context(), id, total, req.Installments)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(edited.AccountID, "plan")
	writeJSON(w, http.StatusOK, toPlanResponse(edited))
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.amortizer.Cancel(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(0, "plan")
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	FromAccountID int64  `json:"from_account_id"`
	ToAccountID   int64  `json:"to_account_id"`
	AmountCents   int64  `json:"amount_cents"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Description   string `json:"description"`
}

type transferResponse struct {
	ID            int64  `json:"id"`
	FromAccountID int64  `json:"from_account_id"`
	ToAccountID   int64  `json:"to_account_id"`
	AmountCents   int64  `json:"amount_cents"`
	Date          string `json:"date"`
	Description   string `json:"description,omitempty"`
}

func toTransferResponse(t core.Transfer) transferResponse {
	return transferResponse{
		ID:            t.ID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		AmountCents:   t.Amount.Cents,
		Date:          t.Date.Format("2006-01-02"),
		Description:   t.Description,
	}
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.storage.GetAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	transfers, err := s.storage.ListTransfers(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		resp = append(resp, toTransferResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date := core.DateOf(time.Now())
	if req.Date != "" {
		date, err = parseDateField("date", req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	created, err := s.transfers.Transfer(r.Context(), req.FromAccountID, req.ToAccountID,
		amount, sanitizeInput(req.Description), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.ledger.NotifyTransfer(r.Context(), created)
	writeJSON(w, http.StatusCreated, toTransferResponse(created))
}

// handleDashboard serves the budget projection for the requested date
// (default today), cached until the next ledger change.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	today := core.DateOf(time.Now())
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := parseDateField("date", raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		today = d
	}

	key := "dashboard:" + today.Format("2006-01-02")
	if projection, ok := s.dashCache.Get(key); ok {
		writeJSON(w, http.StatusOK, projection)
		return
	}

	ledger, err := s.storage.LoadUserLedger(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	projection := services.ProjectBudget(r.Context(), ledger, today)
	s.dashCache.Set(key, projection)
	writeJSON(w, http.StatusOK, projection)
}

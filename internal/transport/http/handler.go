package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"eduquiz-ledger/internal/app"
	"eduquiz-ledger/internal/domain"
)

// DetailsReader is the quiz read path: either the redis cache or the ledger
// itself wrapped by ledgerReader.
type DetailsReader interface {
	GetQuizDetails(ctx context.Context, id domain.QuizID) (domain.Details, error)
	Invalidate(ctx context.Context, id domain.QuizID)
}

// Handler exposes every public ledger operation over HTTP. The caller's
// identity comes from the X-Account header; signing and wallets are handled
// upstream of this service.
type Handler struct {
	ledger  *app.Ledger
	details DetailsReader
}

func NewHandler(ledger *app.Ledger, details DetailsReader) *Handler {
	if details == nil {
		details = ledgerReader{ledger}
	}
	return &Handler{ledger: ledger, details: details}
}

// Register wires all routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/roles/grant", h.grantRole)
	mux.HandleFunc("POST /v1/roles/revoke", h.revokeRole)
	mux.HandleFunc("GET /v1/roles/{role}/{account}", h.hasRole)
	mux.HandleFunc("POST /v1/pause", h.pause)
	mux.HandleFunc("POST /v1/unpause", h.unpause)
	mux.HandleFunc("POST /v1/quizzes", h.createQuiz)
	mux.HandleFunc("GET /v1/quizzes", h.listQuizzes)
	mux.HandleFunc("GET /v1/quizzes/{id}", h.getQuiz)
	mux.HandleFunc("POST /v1/quizzes/{id}/join", h.joinQuiz)
	mux.HandleFunc("POST /v1/quizzes/{id}/end", h.endQuiz)
	mux.HandleFunc("POST /v1/quizzes/{id}/cancel", h.cancelQuiz)
	mux.HandleFunc("POST /v1/courses", h.createCourse)
	mux.HandleFunc("GET /v1/courses", h.listCourses)
	mux.HandleFunc("GET /v1/courses/{id}", h.getCourse)
	mux.HandleFunc("POST /v1/events", h.createEvent)
	mux.HandleFunc("GET /v1/events", h.listEvents)
	mux.HandleFunc("GET /v1/events/{id}", h.getEvent)
	mux.HandleFunc("POST /v1/withdrawals", h.withdraw)
	mux.HandleFunc("GET /v1/credits", h.credits)
	mux.HandleFunc("GET /v1/treasury", h.treasury)
	mux.HandleFunc("POST /v1/treasury/withdraw", h.withdrawFees)
}

func caller(r *http.Request) domain.Address {
	return domain.Address(r.Header.Get("X-Account"))
}

func requireCaller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	acct := caller(r)
	if acct == "" {
		http.Error(w, "missing X-Account header", http.StatusBadRequest)
		return "", false
	}
	return acct, true
}

type roleRequest struct {
	Role    string `json:"role"`
	Account string `json:"account"`
}

func (h *Handler) grantRole(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ledger.GrantRole(r.Context(), acct, role, domain.Address(req.Account)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": role.String(), "account": req.Account})
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ledger.RevokeRole(r.Context(), acct, role, domain.Address(req.Account)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": role.String(), "account": req.Account})
}

func (h *Handler) hasRole(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseRole(r.PathValue("role"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	held := h.ledger.HasRole(role, domain.Address(r.PathValue("account")))
	writeJSON(w, http.StatusOK, map[string]bool{"hasRole": held})
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Pause(r.Context(), acct); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *Handler) unpause(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Unpause(r.Context(), acct); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type createQuizRequest struct {
	Name      string          `json:"name"`
	EntryFee  decimal.Decimal `json:"entryFee"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Payment   decimal.Decimal `json:"payment"`
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createQuizRequest
	if !decode(w, r, &req) {
		return
	}
	details, err := h.ledger.CreateQuiz(r.Context(), acct, req.Name, req.EntryFee, req.StartTime, req.EndTime, req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, details)
}

func (h *Handler) listQuizzes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.ListQuizzes())
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := quizID(w, r)
	if !ok {
		return
	}
	details, err := h.details.GetQuizDetails(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type joinQuizRequest struct {
	Payment decimal.Decimal `json:"payment"`
}

func (h *Handler) joinQuiz(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := quizID(w, r)
	if !ok {
		return
	}
	var req joinQuizRequest
	if !decode(w, r, &req) {
		return
	}
	details, err := h.ledger.JoinQuiz(r.Context(), acct, id, req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}
	h.details.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, details)
}

type endQuizRequest struct {
	Winner string `json:"winner"`
}

func (h *Handler) endQuiz(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := quizID(w, r)
	if !ok {
		return
	}
	var req endQuizRequest
	if !decode(w, r, &req) {
		return
	}
	details, err := h.ledger.EndQuiz(r.Context(), acct, id, domain.Address(req.Winner))
	if err != nil {
		writeError(w, err)
		return
	}
	h.details.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) cancelQuiz(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := quizID(w, r)
	if !ok {
		return
	}
	details, err := h.ledger.CancelQuiz(r.Context(), acct, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.details.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, details)
}

type createCourseRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) createCourse(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createCourseRequest
	if !decode(w, r, &req) {
		return
	}
	course, err := h.ledger.CreateCourse(r.Context(), acct, req.Name, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

func (h *Handler) listCourses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.ListCourses())
}

func (h *Handler) getCourse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course id", http.StatusBadRequest)
		return
	}
	course, err := h.ledger.GetCourse(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

type createEventRequest struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	StartDate time.Time       `json:"startDate"`
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if !decode(w, r, &req) {
		return
	}
	event, err := h.ledger.CreateEvent(r.Context(), acct, req.Name, req.Price, req.StartDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) listEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.ListEvents())
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}
	event, err := h.ledger.GetEvent(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	amount, err := h.ledger.Withdraw(r.Context(), acct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (h *Handler) credits(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": h.ledger.Credits(acct).String()})
}

func (h *Handler) treasury(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fees, err := h.ledger.CollectedFees(acct)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"collectedFees": fees.String()})
}

type withdrawFeesRequest struct {
	To string `json:"to"`
}

func (h *Handler) withdrawFees(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req withdrawFeesRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := h.ledger.WithdrawFees(r.Context(), acct, domain.Address(req.To))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func quizID(w http.ResponseWriter, r *http.Request) (domain.QuizID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid quiz id", http.StatusBadRequest)
		return 0, false
	}
	return domain.QuizID(id), true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errorStatus(err))
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrCourseNotFound),
		errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPaused),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrQuizEnded),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrNothingToWithdraw):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWrongAmount),
		errors.Is(err, domain.ErrInvalidWinner),
		errors.Is(err, domain.ErrInvalidTimeWindow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// ledgerReader adapts the ledger to DetailsReader when no cache is wired.
type ledgerReader struct {
	ledger *app.Ledger
}

func (lr ledgerReader) GetQuizDetails(_ context.Context, id domain.QuizID) (domain.Details, error) {
	return lr.ledger.GetQuizDetails(id)
}

func (lr ledgerReader) Invalidate(context.Context, domain.QuizID) {}

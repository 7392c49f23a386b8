package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchevents/internal/api/api"
	"churchevents/internal/dto"
	"churchevents/internal/mailer"
	"churchevents/internal/model"
	"churchevents/internal/pix"
	"churchevents/internal/repo"
	"churchevents/internal/service"
)

const testJWTSecret = "test-secret"

// fakeRepo is an in-memory Repository honoring the same contract as the
// Postgres implementation, including the transactional register/delete
// semantics.
type fakeRepo struct {
	mu            sync.Mutex
	users         map[string]*model.User
	churches      map[string]*model.Church
	events        map[string]*model.Event
	registrations map[string]*model.Registration
	countCorrected map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:          make(map[string]*model.User),
		churches:       make(map[string]*model.Church),
		events:         make(map[string]*model.Event),
		registrations:  make(map[string]*model.Registration),
		countCorrected: make(map[string]int),
	}
}

func (f *fakeRepo) CreateUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repo.ErrUserNotFound
}

func (f *fakeRepo) UpdateUserProfile(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return repo.ErrUserNotFound
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeRepo) CPFInUseByOther(ctx context.Context, cpf, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.CPF == cpf && u.ID != userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) GetAllChurches(ctx context.Context) ([]model.Church, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Church
	for _, c := range f.churches {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeRepo) GetChurchByID(ctx context.Context, id string) (*model.Church, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.churches[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) CreateEvent(ctx context.Context, e *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f *fakeRepo) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRepo) GetActiveEvents(ctx context.Context) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, e := range f.events {
		if e.Status == model.EventActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountActiveRegistrations(ctx context.Context, eventID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countActiveLocked(eventID), nil
}

func (f *fakeRepo) countActiveLocked(eventID string) int {
	count := 0
	for _, r := range f.registrations {
		if r.EventID == eventID && r.Status.CountsTowardCapacity() {
			count++
		}
	}
	return count
}

func (f *fakeRepo) SetParticipantCount(ctx context.Context, eventID string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[eventID]; ok {
		e.CurrentParticipants = count
		f.countCorrected[eventID]++
	}
	return nil
}

func (f *fakeRepo) RegisterTx(ctx context.Context, reg *model.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.events[reg.EventID]
	if !ok {
		return repo.ErrEventNotFound
	}
	if e.Status != model.EventActive {
		return repo.ErrEventInactive
	}
	if e.CurrentParticipants >= e.MaxParticipants {
		return repo.ErrEventFull
	}
	for _, r := range f.registrations {
		if r.EventID == reg.EventID && r.UserID == reg.UserID {
			return repo.ErrDuplicateRegistration
		}
	}
	if reg.UserCPF != "" {
		for _, r := range f.registrations {
			if r.EventID == reg.EventID && r.UserCPF == reg.UserCPF {
				return repo.ErrDuplicateCPF
			}
		}
	}

	cp := *reg
	cp.Status = model.RegistrationPending
	cp.PaymentStatus = model.PaymentPending
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = time.Now()
	f.registrations[reg.ID] = &cp
	e.CurrentParticipants++
	return nil
}

func (f *fakeRepo) GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[id]
	if !ok {
		return nil, repo.ErrRegistrationNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) GetRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registration
	for _, r := range f.registrations {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetRegistrationPaymentID(ctx context.Context, registrationID, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[registrationID]
	if !ok {
		return repo.ErrRegistrationNotFound
	}
	r.PaymentID = paymentID
	return nil
}

func (f *fakeRepo) MarkRegistrationPaid(ctx context.Context, registrationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[registrationID]
	if !ok {
		return repo.ErrRegistrationNotFound
	}
	now := time.Now()
	r.PaymentStatus = model.PaymentPaid
	r.PaymentDate = &now
	r.Status = model.RegistrationConfirmed
	return nil
}

func (f *fakeRepo) ApproveRegistration(ctx context.Context, registrationID, approverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[registrationID]
	if !ok {
		return repo.ErrRegistrationNotFound
	}
	now := time.Now()
	r.Status = model.RegistrationApproved
	r.ApprovedBy = approverID
	r.ApprovedAt = &now
	return nil
}

func (f *fakeRepo) RejectRegistration(ctx context.Context, registrationID, rejectorID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[registrationID]
	if !ok {
		return repo.ErrRegistrationNotFound
	}
	r.Status = model.RegistrationRejected
	r.RejectedBy = rejectorID
	r.RejectionReason = reason
	return nil
}

func (f *fakeRepo) CheckInRegistration(ctx context.Context, registrationID, byUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[registrationID]
	if !ok {
		return repo.ErrRegistrationNotFound
	}
	now := time.Now()
	r.CheckedIn = true
	r.CheckedInAt = &now
	r.CheckedInBy = byUserID
	return nil
}

func (f *fakeRepo) DeleteRegistrationTx(ctx context.Context, registrationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.registrations[registrationID]
	if !ok {
		return repo.ErrRegistrationNotFound
	}
	delete(f.registrations, registrationID)
	if e, ok := f.events[r.EventID]; ok && e.CurrentParticipants > 0 {
		e.CurrentParticipants--
	}
	return nil
}

func (f *fakeRepo) MigrateUp(string) error   { return nil }
func (f *fakeRepo) MigrateDown(string) error { return nil }

func (f *fakeRepo) registrationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registrations)
}

func (f *fakeRepo) event(id string) model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.events[id]
}

func (f *fakeRepo) registration(id string) model.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.registrations[id]
}

// fakePix is a scriptable in-memory payment API.
type fakePix struct {
	mu          sync.Mutex
	createCalls int
	cancelCalls int
	cancelErr   error
	status      string
	payments    map[string]*pix.PaymentData
}

func newFakePix() *fakePix {
	return &fakePix{status: pix.StatusPending, payments: make(map[string]*pix.PaymentData)}
}

func (f *fakePix) CreatePayment(ctx context.Context, req pix.PaymentRequest) (*pix.PaymentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	p := &pix.PaymentData{
		ID:     fmt.Sprintf("pay-%d", f.createCalls),
		Status: pix.StatusPending,
		QRCode: "00020126pix-code",
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakePix) GetStatus(ctx context.Context, paymentID, registrationID string) (*pix.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &pix.StatusResponse{PaymentID: paymentID, Status: f.status}, nil
}

func (f *fakePix) GetPayment(ctx context.Context, paymentID string) (*pix.PaymentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", paymentID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePix) CancelPayment(ctx context.Context, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakePix) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *fakePix) cancelled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCalls
}

func (f *fakePix) setStatus(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

type testEnv struct {
	router http.Handler
	repo   *fakeRepo
	pix    *fakePix
	poller *pix.Poller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zerolog.Nop()
	repoF := newFakeRepo()
	pixF := newFakePix()
	poller := pix.NewPoller(pixF, 5*time.Millisecond, &log)
	mail := mailer.New(mailer.Config{}, &log)

	svc := service.NewService(repoF, &log, pixF, poller, nil, mail, testJWTSecret)
	router := api.NewRouters(&api.Routers{Service: svc, JWTSecret: testJWTSecret})

	t.Cleanup(poller.StopAll)

	return &testEnv{router: router, repo: repoF, pix: pixF, poller: poller}
}

func (e *testEnv) seedChurch() *model.Church {
	c := &model.Church{ID: "church-1", Name: "Igreja Central", PastorName: "Pr. João"}
	e.repo.churches[c.ID] = c
	return c
}

func (e *testEnv) seedUser(id string) *model.User {
	u := &model.User{
		ID:       id,
		Name:     "Maria Souza",
		Email:    id + "@example.com",
		Phone:    "11987654321",
		CPF:      "52998224725",
		ChurchID: "church-1",
		Role:     model.RoleMember,
	}
	e.repo.users[id] = u
	return u
}

func (e *testEnv) seedEvent(id string, current, max int) *model.Event {
	ev := &model.Event{
		ID:                  id,
		Title:               "Retiro de Jovens",
		Date:                time.Now().Add(30 * 24 * time.Hour),
		MaxParticipants:     max,
		CurrentParticipants: current,
		Price:               50,
		ChurchID:            "church-1",
		Status:              model.EventActive,
	}
	e.repo.events[id] = ev
	return ev
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

type envelope struct {
	Status string          `json:"status"`
	Error  *dto.Error      `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func perform(t *testing.T, router http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestSignUpAndLogin(t *testing.T) {
	env := newTestEnv(t)

	w, _ := perform(t, env.router, http.MethodPost, "/v1/auth/signup", "", dto.SignUpRequest{
		Name:     "Maria Souza",
		Email:    "maria@example.com",
		Password: "super-secret-1",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, resp := perform(t, env.router, http.MethodPost, "/v1/auth/login", "", dto.LoginRequest{
		Email:    "maria@example.com",
		Password: "super-secret-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var auth dto.AuthResponse
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	assert.NotEmpty(t, auth.Token)

	w, _ = perform(t, env.router, http.MethodGet, "/v1/profile", auth.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	perform(t, env.router, http.MethodPost, "/v1/auth/signup", "", dto.SignUpRequest{
		Name:     "Maria Souza",
		Email:    "maria@example.com",
		Password: "super-secret-1",
	})

	w, _ := perform(t, env.router, http.MethodPost, "/v1/auth/login", "", dto.LoginRequest{
		Email:    "maria@example.com",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	user := env.seedUser("u1")
	env.seedEvent("ev1", 0, 10)

	w, resp := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, user.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result dto.RegistrationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.True(t, result.Success)
	require.NotEmpty(t, result.RegistrationID)

	reg := env.repo.registration(result.RegistrationID)
	assert.Equal(t, model.RegistrationPending, reg.Status)
	assert.Equal(t, model.PaymentPending, reg.PaymentStatus)
	assert.Equal(t, "Igreja Central", reg.ChurchName)
	assert.Equal(t, "Pr. João", reg.PastorName)

	assert.Equal(t, 1, env.repo.event("ev1").CurrentParticipants)
}

func TestRegisterDuplicateDoesNotWriteTwice(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	user := env.seedUser("u1")
	env.seedEvent("ev1", 0, 10)

	w, _ := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, user.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, user.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.RegistrationDuplicate, resp.Error.Code)

	assert.Equal(t, 1, env.repo.registrationCount())
	assert.Equal(t, 1, env.repo.event("ev1").CurrentParticipants)
}

func TestRegisterEventFull(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	user := env.seedUser("u1")
	env.seedEvent("ev1", 5, 5)

	w, resp := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, user.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Desc, "lotado")

	assert.Equal(t, 0, env.repo.registrationCount())
	assert.Equal(t, 5, env.repo.event("ev1").CurrentParticipants)
}

func TestRegisterInactiveEvent(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	user := env.seedUser("u1")
	ev := env.seedEvent("ev1", 0, 10)
	ev.Status = model.EventEnded

	w, resp := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, user.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Desc, "não está mais disponível")
}

func TestRegisterIncompleteProfileListsMissingFields(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	user := env.seedUser("u1")
	user.CPF = ""
	user.Phone = ""
	env.seedEvent("ev1", 0, 10)

	w, resp := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, user.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Desc, "CPF")
	assert.Contains(t, resp.Error.Desc, "Telefone")
	assert.NotContains(t, resp.Error.Desc, "Email,")

	assert.Equal(t, 0, env.repo.registrationCount())
}

func TestRegisterDuplicateCPF(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	first := env.seedUser("u1")
	second := env.seedUser("u2")
	second.CPF = first.CPF
	env.seedEvent("ev1", 0, 10)

	w, _ := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, first.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, second.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Desc, "CPF")
	assert.Equal(t, 1, env.repo.registrationCount())
}

func TestEventListSyncsParticipantCounters(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	env.seedEvent("ev1", 5, 10)

	// Three real registrations against a cached count of five.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("reg-%d", i)
		env.repo.registrations[id] = &model.Registration{
			ID:      id,
			EventID: "ev1",
			UserID:  fmt.Sprintf("u%d", i),
			Status:  model.RegistrationPending,
		}
	}

	w, resp := perform(t, env.router, http.MethodGet, "/v1/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var events []dto.EventResponse
	require.NoError(t, json.Unmarshal(resp.Data, &events))
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].CurrentParticipants)

	assert.Equal(t, 3, env.repo.event("ev1").CurrentParticipants)
	assert.Equal(t, 1, env.repo.countCorrected["ev1"])
}

func TestEventListSyncIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	env.seedEvent("ev1", 0, 10)

	perform(t, env.router, http.MethodGet, "/v1/events", "", nil)
	perform(t, env.router, http.MethodGet, "/v1/events", "", nil)

	// Counter already correct: no corrective write happens.
	assert.Equal(t, 0, env.repo.countCorrected["ev1"])
}

func TestApproveRequiresManagerRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedChurch()
	member := env.seedUser("u1")
	manager := env.seedUser("u2")
	manager.Role = model.RolePastor
	env.seedEvent("ev1", 0, 10)

	w, resp := perform(t, env.router, http.MethodPost, "/v1/events/ev1/register", tokenFor(t, member.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var result dto.RegistrationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))

	w, _ = perform(t, env.router, http.MethodPost, "/v1/registrations/"+result.RegistrationID+"/approve", tokenFor(t, member.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = perform(t, env.router, http.MethodPost, "/v1/registrations/"+result.RegistrationID+"/approve", tokenFor(t, manager.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	reg := env.repo.registration(result.RegistrationID)
	assert.Equal(t, model.RegistrationApproved, reg.Status)
	assert.Equal(t, manager.ID, reg.ApprovedBy)
}

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"listinglens/internal/cache"
	"listinglens/internal/coordinator"
	"listinglens/internal/domain"
	"listinglens/internal/enhance"
	"listinglens/internal/http/handlers"
	"listinglens/internal/http/httpapi"
	"listinglens/internal/infra"
	"listinglens/internal/ledger"
	"listinglens/internal/queue"
)

// stubWorks keeps work records in memory behind domain.WorkRepository.
type stubWorks struct {
	mu   sync.Mutex
	recs map[string]*domain.WorkRecord
	led  *ledger.MemoryLedger
}

func newStubWorks(led *ledger.MemoryLedger) *stubWorks {
	return &stubWorks{recs: make(map[string]*domain.WorkRecord), led: led}
}

func (s *stubWorks) Create(_ context.Context, rec *domain.WorkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.recs[cp.ID] = &cp
	if s.led != nil {
		s.led.PutWork(&cp)
	}
	return nil
}

func (s *stubWorks) GetByID(_ context.Context, id string) (*domain.WorkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Prefer the ledger's view, which tracks status transitions.
	if s.led != nil {
		if w := s.led.Work(id); w != nil {
			return w, nil
		}
	}
	rec, ok := s.recs[id]
	if !ok {
		return nil, domain.ErrWorkNotFound
	}
	cp := *rec
	return &cp, nil
}

type stubEnhancer struct {
	err error
}

func (s *stubEnhancer) Enhance(_ context.Context, req enhance.Request) (*enhance.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &enhance.Result{OutputURL: fmt.Sprintf("https://cdn.example.com/%s.png", req.WorkID), Format: "image/png"}, nil
}

type testEnv struct {
	app    *handlers.App
	router http.Handler
	led    *ledger.MemoryLedger
	works  *stubWorks
}

func newTestEnv(t *testing.T, enh enhance.Enhancer, qcfg queue.Config) *testEnv {
	t.Helper()
	if qcfg.MaxConcurrent == 0 {
		qcfg = queue.Config{MaxConcurrent: 2, MaxQueueSize: 10, ProcessingTimeout: time.Minute}
	}
	q, err := queue.New(qcfg)
	if err != nil {
		t.Fatalf("build queue: %v", err)
	}
	t.Cleanup(q.Close)

	led := ledger.NewMemory()
	works := newStubWorks(led)
	logger := infra.NewLogger("test")
	cfg := &infra.Config{AppEnv: "test", RateLimitPerMin: 1000}

	app := &handlers.App{
		Config:      cfg,
		Logger:      logger,
		Coordinator: coordinator.New(q, led, enh, logger),
		Queue:       q,
		Works:       works,
		StatusCache: cache.NewStatusCache(nil),
	}
	return &testEnv{app: app, router: httpapi.NewRouter(app), led: led, works: works}
}

func (e *testEnv) addWork(t *testing.T, id, owner string) {
	t.Helper()
	if err := e.works.Create(context.Background(), &domain.WorkRecord{
		ID: id, OwnerID: owner, SourceURL: "https://example.com/living-room.jpg", Status: domain.WorkPending,
	}); err != nil {
		t.Fatalf("seed work record: %v", err)
	}
}

func (e *testEnv) enhanceReq(t *testing.T, workID string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/works/"+workID+"/enhance", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func TestWorkEnhanceSuccess(t *testing.T) {
	env := newTestEnv(t, &stubEnhancer{}, queue.Config{})
	env.led.SetAccount("acct", 5, 50)
	env.addWork(t, "work-1", "acct")

	res := env.enhanceReq(t, "work-1", map[string]any{"account": "acct", "tier": "professional", "units": 1})

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", res.Code, http.StatusOK, res.Body.String())
	}
	var out struct {
		Status string `json:"status"`
		Result *enhance.Result
	}
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != string(domain.WorkCompleted) {
		t.Fatalf("status = %q, want completed", out.Status)
	}
	if out.Result == nil || out.Result.OutputURL == "" {
		t.Fatalf("expected a result url, got %+v", out.Result)
	}
	if used := env.led.Account("acct").Used; used != 6 {
		t.Fatalf("used = %d, want 6", used)
	}
}

func TestWorkEnhanceInsufficientQuota(t *testing.T) {
	env := newTestEnv(t, &stubEnhancer{}, queue.Config{})
	env.led.SetAccount("acct", 49, 50)
	env.addWork(t, "work-1", "acct")

	res := env.enhanceReq(t, "work-1", map[string]any{"account": "acct", "units": 2})

	if res.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusPaymentRequired)
	}
	if used := env.led.Account("acct").Used; used != 49 {
		t.Fatalf("used = %d, want 49", used)
	}
	if st := env.led.Work("work-1").Status; st != domain.WorkPending {
		t.Fatalf("work status = %q, want pending", st)
	}
	if active := env.app.Queue.GetStatus().ActiveCount; active != 0 {
		t.Fatalf("active = %d, want 0 after rejection", active)
	}
}

func TestWorkEnhanceNotFound(t *testing.T) {
	env := newTestEnv(t, &stubEnhancer{}, queue.Config{})

	res := env.enhanceReq(t, "missing", map[string]any{})
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusNotFound)
	}
}

func TestWorkEnhanceQueueFull(t *testing.T) {
	env := newTestEnv(t, &stubEnhancer{}, queue.Config{
		MaxConcurrent: 1, MaxQueueSize: 0, ProcessingTimeout: time.Minute,
	})
	env.addWork(t, "work-1", "")

	// Hold the only slot so the request has nowhere to go.
	if _, err := env.app.Queue.Enqueue("blocker", "", domain.TierFree); err != nil {
		t.Fatalf("occupy slot: %v", err)
	}

	res := env.enhanceReq(t, "work-1", map[string]any{})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusServiceUnavailable)
	}
}

func TestWorkEnhanceFailureRefundsAndReports(t *testing.T) {
	env := newTestEnv(t, &stubEnhancer{err: errors.New("model overloaded")}, queue.Config{})
	env.led.SetAccount("acct", 5, 50)
	env.addWork(t, "work-1", "acct")

	res := env.enhanceReq(t, "work-1", map[string]any{"account": "acct", "units": 1})

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusOK)
	}
	var out struct {
		Status   string `json:"status"`
		Refunded bool   `json:"refunded"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != string(domain.WorkFailed) {
		t.Fatalf("status = %q, want failed", out.Status)
	}
	if !out.Refunded {
		t.Fatal("expected refunded=true")
	}
	if used := env.led.Account("acct").Used; used != 5 {
		t.Fatalf("used = %d, want 5 (net zero after refund)", used)
	}
}

func TestWorkEnhanceDuplicate(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	enh := &blockingEnhancer{started: started, release: block}
	env := newTestEnv(t, enh, queue.Config{})
	env.addWork(t, "work-1", "")

	go env.enhanceReq(t, "work-1", map[string]any{})
	<-started

	res := env.enhanceReq(t, "work-1", map[string]any{})
	close(block)
	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusConflict)
	}
}

type blockingEnhancer struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingEnhancer) Enhance(ctx context.Context, req enhance.Request) (*enhance.Result, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return &enhance.Result{OutputURL: "https://cdn.example.com/out.png"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestWorkCreateAndStatus(t *testing.T) {
	env := newTestEnv(t, &stubEnhancer{}, queue.Config{})

	body, _ := json.Marshal(map[string]string{"account": "acct", "source_url": "https://example.com/kitchen.jpg"})
	req := httptest.NewRequest(http.MethodPost, "/v1/works", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	env.router.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.Code, http.StatusCreated)
	}
	var created struct {
		WorkID string `json:"work_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.WorkID == "" || created.Status != string(domain.WorkPending) {
		t.Fatalf("unexpected create response: %+v", created)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/works/"+created.WorkID, nil)
	statusRes := httptest.NewRecorder()
	env.router.ServeHTTP(statusRes, statusReq)
	if statusRes.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, want %d", statusRes.Code, http.StatusOK)
	}
}

func TestQueueStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubEnhancer{}, queue.Config{})
	if _, err := env.app.Queue.Enqueue("img-9", "", domain.TierFree); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/queue/status", nil)
	res := httptest.NewRecorder()
	env.router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.Code, http.StatusOK)
	}
	var st queue.Status
	if err := json.Unmarshal(res.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if st.ActiveCount != 1 || len(st.ActiveJobKeys) != 1 {
		t.Fatalf("unexpected snapshot: %+v", st)
	}
}

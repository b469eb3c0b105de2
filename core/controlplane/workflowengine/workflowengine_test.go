package workflowengine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/cordum/mediaflow/core/infra/bus"
	"github.com/cordum/mediaflow/core/infra/config"
	"github.com/cordum/mediaflow/core/infra/deadletter"
	"github.com/cordum/mediaflow/core/infra/locks"
	"github.com/cordum/mediaflow/core/infra/metrics"
	wf "github.com/cordum/mediaflow/core/workflow"
)

type fakeBus struct{ connected bool }

func (b fakeBus) IsConnected() bool { return b.connected }
func (b fakeBus) Status() string {
	if b.connected {
		return "CONNECTED"
	}
	return "RECONNECTING"
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	mux := newMux(fakeBus{connected: true}, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health: %d %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newMux(fakeBus{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unavailable when bus disconnected, got %d", rec.Code)
	}
}

func TestStartHealthServer(t *testing.T) {
	srv := startHealthServer("127.0.0.1:0", nil, nil)
	defer func() {
		_ = srv.Shutdown(context.Background())
	}()
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func memoryService(t *testing.T, cfg *config.Config) *wf.Service {
	t.Helper()
	b, err := openBackends(cfg, config.DefaultEngine())
	if err != nil {
		t.Fatalf("backends: %v", err)
	}
	t.Cleanup(b.Close)
	return newService(cfg, config.DefaultEngine(), b, metrics.Noop{}, bus.Nop{})
}

func TestDispatcherRunsTargetedTrigger(t *testing.T) {
	svc := memoryService(t, &config.Config{StoreBackend: config.StoreMemory, NotificationsEnabled: true})
	ctx := context.Background()
	created, err := svc.CreateWorkflow(ctx, wf.Definition{
		Name:  "echo",
		Steps: []wf.StepDef{{Name: "echo", Type: wf.StepTypeCustom, Config: map[string]any{"file": "{{filePath}}"}}},
	}, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	d := newDispatcher(ctx, svc)
	if err := d.HandleEvent(bus.Event{WorkflowID: created.ID, Data: map[string]any{"filePath": "/a.wav"}}); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if !d.Wait(2 * time.Second) {
		t.Fatalf("dispatch did not finish")
	}
	status, err := svc.GetWorkflowStatus(ctx, created.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != wf.StatusCompleted || len(status.RecentExecutions) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if got := status.RecentExecutions[0].TriggerData["filePath"]; got != "/a.wav" {
		t.Fatalf("trigger data not forwarded: %v", got)
	}

	if err := d.HandleEvent(bus.Event{WorkflowID: "missing"}); err != nil {
		t.Fatalf("unknown workflow should be dropped, got %v", err)
	}
}

type stubTriggers struct {
	mu       sync.Mutex
	status   wf.StatusView
	err      error
	requests []wf.TriggerRequest
	fail     error
}

func (s *stubTriggers) HandleTrigger(_ context.Context, req wf.TriggerRequest) ([]wf.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return nil, s.fail
}

func (s *stubTriggers) GetWorkflowStatus(context.Context, string) (wf.StatusView, error) {
	return s.status, s.err
}

func TestHandleEventRetriesBusyWorkflow(t *testing.T) {
	stub := &stubTriggers{status: wf.StatusView{Status: wf.StatusRunning}}
	d := newDispatcher(context.Background(), stub)
	err := d.HandleEvent(bus.Event{Type: "upload", WorkflowID: "wf-1"})
	delay, ok := bus.RetryDelay(err)
	if !ok || delay != busyRetryDelay || !errors.Is(err, wf.ErrAlreadyRunning) {
		t.Fatalf("expected retryable busy error, got %v", err)
	}

	if err := d.HandleEvent(bus.Event{Type: "upload", Data: map[string]any{"mime": "audio/wav"}}); err != nil {
		t.Fatalf("fan-out event: %v", err)
	}
	d.Wait(time.Second)
	if len(stub.requests) != 1 || stub.requests[0].Type != wf.TriggerUpload || stub.requests[0].WorkflowID != "" {
		t.Fatalf("unexpected requests: %+v", stub.requests)
	}
}

type stubSchedules struct {
	due []string
	at  []time.Time
}

func (s *stubSchedules) DueSchedules(_ context.Context, now time.Time) ([]string, error) {
	s.at = append(s.at, now)
	return s.due, nil
}

func TestSchedulerTickDispatchesDue(t *testing.T) {
	src := &stubSchedules{due: []string{"a", "b"}}
	var got []wf.TriggerRequest
	s := newScheduler(src, nil, func(r wf.TriggerRequest) { got = append(got, r) }, "", 0)
	if s.pollInterval != 30*time.Second || s.owner == "" {
		t.Fatalf("expected defaults, got %+v", s)
	}
	fixed := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	s.tick(context.Background())
	if len(got) != 2 || got[0].Type != wf.TriggerSchedule || got[1].WorkflowID != "b" {
		t.Fatalf("unexpected dispatches: %+v", got)
	}
	if got[0].Data["scheduledAt"] != "2024-01-01T06:00:00Z" {
		t.Fatalf("unexpected data: %+v", got[0].Data)
	}
}

func TestSchedulerSkipsWithoutLock(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()
	lockStore, err := locks.NewRedisStore("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("lock store: %v", err)
	}
	defer lockStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if ok, err := lockStore.Acquire(ctx, schedulerLockKey, "other-replica", time.Minute); err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}
	src := &stubSchedules{due: []string{"a"}}
	var mu sync.Mutex
	fired := 0
	s := newScheduler(src, lockStore, func(wf.TriggerRequest) {
		mu.Lock()
		fired++
		mu.Unlock()
	}, "this-replica", 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	if fired != 0 {
		mu.Unlock()
		t.Fatalf("scheduler must not fire while another replica holds the lock")
	}
	mu.Unlock()

	if _, err := lockStore.Release(ctx, schedulerLockKey, "other-replica"); err != nil {
		t.Fatalf("release: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if fired == 0 {
		t.Fatalf("expected scheduler to fire once the lock was free")
	}
}

func TestScheduledWorkflowEndToEnd(t *testing.T) {
	svc := memoryService(t, &config.Config{StoreBackend: config.StoreMemory})
	ctx := context.Background()
	created, err := svc.CreateWorkflow(ctx, wf.Definition{
		Name:     "tick",
		Triggers: []wf.Trigger{{Type: wf.TriggerSchedule, Config: map[string]any{"interval": "1m"}}},
		Steps:    []wf.StepDef{{Name: "when", Type: wf.StepTypeCustom, Config: map[string]any{"at": "{{scheduledAt}}"}}},
		Notifications: []wf.NotificationTarget{
			{Type: "webhook", Target: "http://127.0.0.1:1/unreachable"},
		},
	}, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d := newDispatcher(ctx, svc)
	s := newScheduler(svc, locks.NewLocalStore(), d.Dispatch, "r1", time.Minute)
	s.now = func() time.Time { return created.CreatedAt.Add(2 * time.Minute) }
	s.tick(ctx)
	if !d.Wait(2 * time.Second) {
		t.Fatalf("scheduled run did not finish")
	}
	got, _ := svc.GetWorkflow(ctx, created.ID)
	if len(got.State.History) != 1 || got.State.History[0].Status != wf.ExecutionCompleted {
		t.Fatalf("unexpected history: %+v", got.State.History)
	}
}

func TestOpenBackendsRedis(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()
	cfg := &config.Config{StoreBackend: config.StoreRedis, RedisURL: "redis://" + srv.Addr()}
	b, err := openBackends(cfg, config.DefaultEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if _, ok := b.store.(*wf.RedisStore); !ok {
		t.Fatalf("expected redis workflow store, got %T", b.store)
	}
	svc := newService(cfg, config.DefaultEngine(), b, metrics.Noop{}, bus.Nop{})
	created, err := svc.CreateWorkflow(context.Background(), wf.Definition{Name: "r", Steps: []wf.StepDef{{Name: "a", Type: wf.StepTypeCustom}}}, "u")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.ExecuteWorkflow(context.Background(), created.ID, nil, nil)
	if err != nil || res.Status != wf.ExecutionCompleted {
		t.Fatalf("execute: %+v err=%v", res, err)
	}
}

func TestMutedNotifier(t *testing.T) {
	res, err := mutedNotifier{}.Deliver(context.Background(), wf.NotificationTarget{Target: "x"}, "workflow.failed", nil)
	if err != nil || !res.Success {
		t.Fatalf("muted notifier must report success: %+v %v", res, err)
	}
}

func TestDispatcherRecordsDeadLetters(t *testing.T) {
	dead := deadletter.NewMemoryStore()
	stub := &stubTriggers{fail: errors.New("storage offline")}
	d := newDispatcher(context.Background(), stub).WithDeadLetters(dead)
	d.Dispatch(wf.TriggerRequest{Type: wf.TriggerUpload, OwnerID: "u1", Data: map[string]any{"filePath": "/x.mp3"}})
	if !d.Wait(time.Second) {
		t.Fatalf("dispatch did not finish")
	}
	entries, err := dead.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one dead letter, got %+v", entries)
	}
	got := entries[0]
	if got.ID == "" || got.TriggerType != "upload" || got.OwnerID != "u1" || got.Reason != "storage offline" || got.Data["filePath"] != "/x.mp3" {
		t.Fatalf("unexpected dead letter: %+v", got)
	}

	rec := httptest.NewRecorder()
	mux := newMux(fakeBus{connected: true}, dead)
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dead-letters?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var listed []deadletter.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil || len(listed) != 1 || listed[0].ID != got.ID {
		t.Fatalf("unexpected listing: %s err=%v", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/dead-letters/"+got.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected delete status %d", rec.Code)
	}
	if entries, _ := dead.List(context.Background(), 10); len(entries) != 0 {
		t.Fatalf("expected dead letter removed, got %+v", entries)
	}
}

func TestDispatcherSkipsDeadLetterWithoutFailure(t *testing.T) {
	dead := deadletter.NewMemoryStore()
	d := newDispatcher(context.Background(), &stubTriggers{}).WithDeadLetters(dead)
	d.Dispatch(wf.TriggerRequest{Type: wf.TriggerManual, WorkflowID: "wf"})
	d.Wait(time.Second)
	if entries, _ := dead.List(context.Background(), 10); len(entries) != 0 {
		t.Fatalf("unexpected dead letters: %+v", entries)
	}
}

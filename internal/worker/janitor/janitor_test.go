package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/kioskd/internal/connection"
	"github.com/hitoshi/kioskd/internal/model"
	"github.com/hitoshi/kioskd/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeJanitor はrepository.Janitorのテスト用実装。
type fakeJanitor struct {
	purgeCalls int
	purgeDays  int
	deleted    int
	purgeErr   error
}

func (j *fakeJanitor) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	j.purgeCalls++
	j.purgeDays = days
	return j.deleted, j.purgeErr
}

func (j *fakeJanitor) ClearAll(ctx context.Context) error { return nil }

// fakePusher はEventPusherのテスト用実装。
type fakePusher struct {
	pushed  [][]*model.OfflineEvent
	pushErr error
}

func (p *fakePusher) PushEvents(ctx context.Context, deviceID string, events []*model.OfflineEvent) error {
	if p.pushErr != nil {
		return p.pushErr
	}
	p.pushed = append(p.pushed, events)
	return nil
}

// drainMetrics はイベント排出数を記録するMetricsCollectorのテスト用実装。
type drainMetrics struct {
	drained int
}

func (m *drainMetrics) RecordSyncSuccess()                       {}
func (m *drainMetrics) RecordSyncFailure()                       {}
func (m *drainMetrics) RecordContentChange()                     {}
func (m *drainMetrics) RecordCacheServe()                        {}
func (m *drainMetrics) RecordSyncLatency(duration time.Duration) {}
func (m *drainMetrics) RecordHeartbeatSuccess()                  {}
func (m *drainMetrics) RecordHeartbeatFailure()                  {}
func (m *drainMetrics) RecordCommandExecuted(cmdType string)     {}
func (m *drainMetrics) RecordEventsDrained(count int)            { m.drained += count }

// --- PurgeJobのテスト ---

func TestPurgeJob_Run(t *testing.T) {
	j := &fakeJanitor{deleted: 7}
	job := NewPurgeJob(j, testLogger(), 30)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Runがエラーを返した: %v", err)
	}
	if j.purgeCalls != 1 {
		t.Errorf("パージ呼び出し回数 = %d, want 1", j.purgeCalls)
	}
	if j.purgeDays != 30 {
		t.Errorf("保持日数 = %d, want 30", j.purgeDays)
	}
}

func TestPurgeJob_DefaultRetention(t *testing.T) {
	j := &fakeJanitor{}
	job := NewPurgeJob(j, testLogger(), 0)

	if job.RetentionDays != 30 {
		t.Errorf("デフォルトの保持日数 = %d, want 30", job.RetentionDays)
	}
}

func TestPurgeJob_RunError(t *testing.T) {
	j := &fakeJanitor{purgeErr: errors.New("db locked")}
	job := NewPurgeJob(j, testLogger(), 30)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("パージ失敗時はエラーを返すべき")
	}
}

// --- DrainJobのテスト ---

func newDrainFixture(t *testing.T) (*DrainJob, repository.EventRepository, *fakePusher, *connection.Tracker, *drainMetrics) {
	t.Helper()

	db, err := repository.Open(t.TempDir())
	if err != nil {
		t.Fatalf("テスト用DBのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eventRepo := repository.NewBoltEventRepo(db)
	pusher := &fakePusher{}
	tracker := connection.NewTracker()
	collector := &drainMetrics{}

	job := NewDrainJob(eventRepo, pusher, tracker, collector, testLogger(), "kiosk-042")
	return job, eventRepo, pusher, tracker, collector
}

func TestDrainJob_DrainsWhenConnected(t *testing.T) {
	job, eventRepo, pusher, tracker, collector := newDrainFixture(t)
	ctx := context.Background()

	eventRepo.Enqueue(ctx, "connection_lost", nil)
	eventRepo.Enqueue(ctx, "connection_restored", nil)
	tracker.RecordSuccess()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("Runがエラーを返した: %v", err)
	}

	if len(pusher.pushed) != 1 {
		t.Fatalf("送信回数 = %d, want 1", len(pusher.pushed))
	}
	// 作成順（古い順）で送信されること
	batch := pusher.pushed[0]
	if len(batch) != 2 || batch[0].Type != "connection_lost" || batch[1].Type != "connection_restored" {
		t.Errorf("送信イベントの順序が不正: %+v", batch)
	}

	// 受理後に同期済みとなり、再送されないこと
	pending, _ := eventRepo.ListPending(ctx)
	if len(pending) != 0 {
		t.Errorf("排出後の未同期イベント数 = %d, want 0", len(pending))
	}
	if collector.drained != 2 {
		t.Errorf("排出メトリクス = %d, want 2", collector.drained)
	}
}

func TestDrainJob_SkipsWhenNotConnected(t *testing.T) {
	job, eventRepo, pusher, _, _ := newDrainFixture(t)
	ctx := context.Background()

	eventRepo.Enqueue(ctx, "connection_lost", nil)

	// 初期状態はConnecting: 排出しない
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Runがエラーを返した: %v", err)
	}
	if len(pusher.pushed) != 0 {
		t.Error("Connected以外の状態では排出しないべき")
	}

	pending, _ := eventRepo.ListPending(ctx)
	if len(pending) != 1 {
		t.Errorf("イベントは保持されるべき: 未同期数 = %d, want 1", len(pending))
	}
}

func TestDrainJob_PushFailureKeepsEvents(t *testing.T) {
	job, eventRepo, pusher, tracker, collector := newDrainFixture(t)
	ctx := context.Background()

	eventRepo.Enqueue(ctx, "connection_lost", nil)
	tracker.RecordSuccess()
	pusher.pushErr = errors.New("connection refused")

	if err := job.Run(ctx); err == nil {
		t.Fatal("送信失敗時はエラーを返すべき")
	}

	// サーバーが受理していないイベントは同期済みにならない（黙って捨てない）
	pending, _ := eventRepo.ListPending(ctx)
	if len(pending) != 1 {
		t.Errorf("送信失敗後の未同期イベント数 = %d, want 1", len(pending))
	}
	if collector.drained != 0 {
		t.Errorf("失敗時に排出メトリクスが記録された: %d", collector.drained)
	}
}

func TestDrainJob_EmptyQueueIsNoop(t *testing.T) {
	job, _, pusher, tracker, _ := newDrainFixture(t)
	tracker.RecordSuccess()

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("空キューのRunがエラーを返した: %v", err)
	}
	if len(pusher.pushed) != 0 {
		t.Error("イベントがない場合は送信しないべき")
	}
}

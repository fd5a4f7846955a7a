package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pubqueue/internal/model"
	"pubqueue/internal/publisher"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTopic = "pubqueue.publish_result"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "queue_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	if err := db.AutoMigrate(&model.PublishingQueueItem{}, &model.OutboxMessage{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}
	return db
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func seedItem(t *testing.T, db *gorm.DB, item *model.PublishingQueueItem) {
	t.Helper()
	if item.ArticleID == "" {
		item.ArticleID = "art-" + item.ID
	}
	if item.OrganizationID == "" {
		item.OrganizationID = "org-1"
	}
	if item.Platform == "" {
		item.Platform = model.PlatformWordPress
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("写入测试条目失败: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	item := &model.PublishingQueueItem{
		ID:             "pq-1",
		ArticleID:      "art-1",
		OrganizationID: "org-1",
		Platform:       model.PlatformGhost,
		Status:         model.StatusPending,
		ScheduledFor:   timePtr(time.Now()),
	}
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, "pq-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ArticleID != "art-1" || got.Platform != model.PlatformGhost {
		t.Fatalf("读回条目不符: %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("缺失条目应返回 ErrItemNotFound，实际 %v", err)
	}
}

func TestCreateRejectsInvalidPlatform(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)

	err := repo.Create(context.Background(), &model.PublishingQueueItem{
		ID:             "pq-1",
		ArticleID:      "art-1",
		OrganizationID: "org-1",
		Platform:       "medium",
		Status:         model.StatusPending,
	})
	if !errors.Is(err, ErrPlatformInvalid) {
		t.Fatalf("期望 ErrPlatformInvalid，实际 %v", err)
	}
}

func TestSelectEligibleScheduledLane(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{
		ID: "due-late", Status: model.StatusPending,
		ScheduledFor: timePtr(time.Now().Add(-time.Hour)),
	})
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "due-early", Status: model.StatusPending,
		ScheduledFor: timePtr(time.Now().Add(-2 * time.Hour)),
	})
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "future", Status: model.StatusPending,
		ScheduledFor: timePtr(time.Now().Add(time.Hour)),
	})
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "no-schedule", Status: model.StatusPending,
	})
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "wrong-status", Status: model.StatusQueued,
		ScheduledFor: timePtr(time.Now().Add(-time.Hour)),
	})

	now := time.Now()
	items, err := repo.SelectEligible(ctx, model.EligibleCriteria{
		Status:          model.StatusPending,
		ScheduledBefore: &now,
		OrderBy:         model.OrderByScheduledFor,
		Limit:           10,
	})
	if err != nil {
		t.Fatalf("SelectEligible: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("期望 2 个到期条目，实际 %d", len(items))
	}
	if items[0].ID != "due-early" || items[1].ID != "due-late" {
		t.Fatalf("应按 scheduled_for 升序: %s, %s", items[0].ID, items[1].ID)
	}
}

func TestScheduledLaneExcludesRetryLaneItems(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	// 经正常路径入队后失败降级的条目：scheduled_for 残留在过去，
	// retry_after 指向未来的退避窗口
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "demoted", Status: model.StatusPending,
		ScheduledFor: timePtr(time.Now().Add(-time.Hour)),
		RetryAfter:   timePtr(time.Now().Add(5 * time.Minute)),
		RetryCount:   1,
	})
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "fresh", Status: model.StatusPending,
		ScheduledFor: timePtr(time.Now().Add(-time.Hour)),
	})

	now := time.Now()
	items, err := repo.SelectEligible(ctx, model.EligibleCriteria{
		Status:          model.StatusPending,
		ScheduledBefore: &now,
		OrderBy:         model.OrderByScheduledFor,
	})
	if err != nil {
		t.Fatalf("SelectEligible: %v", err)
	}
	if len(items) != 1 || items[0].ID != "fresh" {
		t.Fatalf("重试通道条目不得被提升查询选中: %+v", items)
	}

	count, err := repo.CountEligible(ctx, model.EligibleCriteria{
		Status:          model.StatusPending,
		ScheduledBefore: &now,
	})
	if err != nil || count != 1 {
		t.Fatalf("提升计数应排除重试通道条目: count=%d err=%v", count, err)
	}

	// 退避到期后条目由 retry 阶段查询选中
	retryItems, err := repo.SelectEligible(ctx, model.EligibleCriteria{
		Status:      model.StatusPending,
		RetryBefore: timePtr(time.Now().Add(10 * time.Minute)),
		OrderBy:     model.OrderByRetryAfter,
	})
	if err != nil {
		t.Fatalf("SelectEligible: %v", err)
	}
	if len(retryItems) != 1 || retryItems[0].ID != "demoted" {
		t.Fatalf("重试查询应选中降级条目: %+v", retryItems)
	}
}

func TestSelectEligiblePlatformFilter(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{ID: "wp", Status: model.StatusQueued})
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "gh", Status: model.StatusQueued, Platform: model.PlatformGhost,
	})

	items, err := repo.SelectEligible(ctx, model.EligibleCriteria{
		Status:   model.StatusQueued,
		Platform: model.PlatformGhost,
		OrderBy:  model.OrderByPriority,
	})
	if err != nil {
		t.Fatalf("SelectEligible: %v", err)
	}
	if len(items) != 1 || items[0].ID != "gh" {
		t.Fatalf("平台过滤失效: %+v", items)
	}
}

func TestSelectEligiblePriorityTieBreak(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{ID: "b", Status: model.StatusQueued, Priority: 5})
	seedItem(t, db, &model.PublishingQueueItem{ID: "a", Status: model.StatusQueued, Priority: 5})
	seedItem(t, db, &model.PublishingQueueItem{ID: "c", Status: model.StatusQueued, Priority: 9})

	items, err := repo.SelectEligible(ctx, model.EligibleCriteria{
		Status:  model.StatusQueued,
		OrderBy: model.OrderByPriority,
	})
	if err != nil {
		t.Fatalf("SelectEligible: %v", err)
	}

	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("优先级排序不符: 期望 %v，实际 %v", want, ids)
		}
	}
}

func TestConditionalTransitionGuard(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{ID: "pq-1", Status: model.StatusPending})

	now := time.Now()
	ok, err := repo.ConditionalTransition(ctx, "pq-1", model.StatusPending, model.StatusQueued,
		map[string]interface{}{"queued_at": &now})
	if err != nil || !ok {
		t.Fatalf("首次流转应成功: ok=%v err=%v", ok, err)
	}

	// 第二次以同一守卫流转：乐观锁失败，不是错误
	ok, err = repo.ConditionalTransition(ctx, "pq-1", model.StatusPending, model.StatusQueued, nil)
	if err != nil {
		t.Fatalf("乐观锁失败不应返回错误: %v", err)
	}
	if ok {
		t.Fatal("守卫已失效，流转不应成功")
	}

	got, _ := repo.GetByID(ctx, "pq-1")
	if got.Status != model.StatusQueued || got.QueuedAt == nil {
		t.Fatalf("流转结果不符: %+v", got)
	}
}

func TestConditionalTransitionRejectsIllegalEdge(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)

	_, err := repo.ConditionalTransition(context.Background(), "pq-1",
		model.StatusPending, model.StatusPublished, nil)
	if !errors.Is(err, ErrStatusInvalid) {
		t.Fatalf("非法边应返回 ErrStatusInvalid，实际 %v", err)
	}
}

func TestMarkStartedAndCompletedWritesOutbox(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{ID: "pq-1", Status: model.StatusQueued})

	ok, err := repo.MarkStarted(ctx, "pq-1", model.StatusQueued)
	if err != nil || !ok {
		t.Fatalf("MarkStarted: ok=%v err=%v", ok, err)
	}

	got, _ := repo.GetByID(ctx, "pq-1")
	if got.Status != model.StatusPublishing || got.StartedAt == nil {
		t.Fatalf("MarkStarted 结果不符: %+v", got)
	}

	err = repo.MarkCompleted(ctx, "pq-1", &publisher.Result{
		URL:              "https://wordpress.example.com/articles/art-pq-1",
		PlatformResponse: `{"post_id":42}`,
	})
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, _ = repo.GetByID(ctx, "pq-1")
	if got.Status != model.StatusPublished || got.CompletedAt == nil {
		t.Fatalf("MarkCompleted 结果不符: %+v", got)
	}
	if got.PublishedURL == "" || got.PlatformResponse == "" {
		t.Fatalf("发布结果字段缺失: %+v", got)
	}

	var messages []*model.OutboxMessage
	if err := db.Find(&messages).Error; err != nil {
		t.Fatalf("查询 outbox 失败: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("应写入 1 条 outbox 事件，实际 %d", len(messages))
	}
	msg := messages[0]
	if msg.Topic != testTopic || msg.MessageKey != "pq-1" || msg.Status != model.OutboxStatusPending {
		t.Fatalf("outbox 事件不符: %+v", msg)
	}

	var payload model.PublishEventPayload
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		t.Fatalf("解析事件体失败: %v", err)
	}
	if payload.Event != model.EventItemPublished || payload.ItemID != "pq-1" {
		t.Fatalf("事件体不符: %+v", payload)
	}
}

func TestMarkStartedGuardLoss(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{ID: "pq-1", Status: model.StatusCancelled})

	ok, err := repo.MarkStarted(ctx, "pq-1", model.StatusQueued)
	if err != nil {
		t.Fatalf("守卫失败不应返回错误: %v", err)
	}
	if ok {
		t.Fatal("条目不在期望状态，MarkStarted 不应成功")
	}
}

func TestMarkFailedWithRetryDemotesToPending(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{ID: "pq-1", Status: model.StatusPublishing})

	retryAfter := time.Now().Add(5 * time.Minute)
	err := repo.MarkFailed(ctx, "pq-1", "network", "connection refused", &retryAfter)
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, _ := repo.GetByID(ctx, "pq-1")
	if got.Status != model.StatusPending {
		t.Fatalf("可重试失败应降级回 pending，实际 %s", got.Status)
	}
	if got.RetryAfter == nil || got.RetryCount != 1 {
		t.Fatalf("重试字段不符: %+v", got)
	}
	if got.ErrorType != "network" || !strings.Contains(got.ErrorMessage, "connection refused") {
		t.Fatalf("错误字段不符: %+v", got)
	}

	var msg model.OutboxMessage
	if err := db.First(&msg).Error; err != nil {
		t.Fatalf("查询 outbox 失败: %v", err)
	}
	var payload model.PublishEventPayload
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		t.Fatalf("解析事件体失败: %v", err)
	}
	if payload.Event != model.EventItemFailed || payload.RetryCount != 1 {
		t.Fatalf("失败事件不符: %+v", payload)
	}
}

func TestMarkFailedWithoutRetryStaysFailed(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{ID: "pq-1", Status: model.StatusPublishing})

	if err := repo.MarkFailed(ctx, "pq-1", "auth", "invalid token", nil); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, _ := repo.GetByID(ctx, "pq-1")
	if got.Status != model.StatusFailed {
		t.Fatalf("不可重试失败应停在 failed，实际 %s", got.Status)
	}
	if got.RetryAfter != nil {
		t.Fatal("不可重试失败不应设置 retry_after")
	}
}

func TestMarkFailedGuardMismatch(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)

	seedItem(t, db, &model.PublishingQueueItem{ID: "pq-1", Status: model.StatusQueued})

	err := repo.MarkFailed(context.Background(), "pq-1", "network", "x", nil)
	if !errors.Is(err, ErrStatusInvalid) {
		t.Fatalf("未经过 publishing 不得标记失败，实际 %v", err)
	}
}

func TestSoftDeleteHidesItem(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	seedItem(t, db, &model.PublishingQueueItem{
		ID: "pq-1", Status: model.StatusPending,
		ScheduledFor: timePtr(time.Now().Add(-time.Hour)),
	})

	if err := repo.SoftDelete(ctx, "pq-1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	if _, err := repo.GetByID(ctx, "pq-1"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("软删除条目应不可见，实际 %v", err)
	}

	now := time.Now()
	items, err := repo.SelectEligible(ctx, model.EligibleCriteria{
		Status:          model.StatusPending,
		ScheduledBefore: &now,
		OrderBy:         model.OrderByScheduledFor,
	})
	if err != nil {
		t.Fatalf("SelectEligible: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("软删除条目不应被阶段查询选中: %+v", items)
	}

	count, err := repo.CountEligible(ctx, model.EligibleCriteria{
		Status:          model.StatusPending,
		ScheduledBefore: &now,
	})
	if err != nil || count != 0 {
		t.Fatalf("软删除条目不应被计数: count=%d err=%v", count, err)
	}

	if err := repo.SoftDelete(ctx, "pq-1"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("重复删除应返回 ErrItemNotFound，实际 %v", err)
	}
}

func TestListByOrganization(t *testing.T) {
	db := openTestDB(t)
	repo := NewQueueRepository(db, testTopic)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedItem(t, db, &model.PublishingQueueItem{
			ID: "a-" + string(rune('1'+i)), OrganizationID: "org-a", Status: model.StatusPending,
		})
	}
	seedItem(t, db, &model.PublishingQueueItem{
		ID: "b-1", OrganizationID: "org-b", Status: model.StatusPending,
	})

	items, total, err := repo.ListByOrganization(ctx, "org-a", 1, 2)
	if err != nil {
		t.Fatalf("ListByOrganization: %v", err)
	}
	if total != 3 {
		t.Fatalf("org-a 总数应为 3，实际 %d", total)
	}
	if len(items) != 2 {
		t.Fatalf("第一页应有 2 条，实际 %d", len(items))
	}
	for _, it := range items {
		if it.OrganizationID != "org-a" {
			t.Fatalf("混入了其他组织的条目: %+v", it)
		}
	}
}

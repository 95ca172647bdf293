package repository

import (
	"context"
	"testing"
)

func TestStateRepo_SetAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewBoltStateRepo(db)
	ctx := context.Background()

	if err := repo.Set(ctx, "device_id", "kiosk-042"); err != nil {
		t.Fatalf("Setがエラーを返した: %v", err)
	}

	got, err := repo.Get(ctx, "device_id")
	if err != nil {
		t.Fatalf("Getがエラーを返した: %v", err)
	}
	if got != "kiosk-042" {
		t.Errorf("Get = %q, want %q", got, "kiosk-042")
	}
}

func TestStateRepo_Get_MissingKeyReturnsEmpty(t *testing.T) {
	db := openTestDB(t)
	repo := NewBoltStateRepo(db)

	got, err := repo.Get(context.Background(), "last_fingerprint")
	if err != nil {
		t.Fatalf("Getがエラーを返した: %v", err)
	}
	if got != "" {
		t.Errorf("未設定キーには空文字列を返すべき, got %q", got)
	}
}

func TestStateRepo_Set_Overwrites(t *testing.T) {
	db := openTestDB(t)
	repo := NewBoltStateRepo(db)
	ctx := context.Background()

	repo.Set(ctx, "last_fingerprint", "abc")
	repo.Set(ctx, "last_fingerprint", "def")

	got, _ := repo.Get(ctx, "last_fingerprint")
	if got != "def" {
		t.Errorf("上書き後のGet = %q, want %q", got, "def")
	}
}

func TestStateRepo_EmptyKeyRejected(t *testing.T) {
	db := openTestDB(t)
	repo := NewBoltStateRepo(db)
	ctx := context.Background()

	if err := repo.Set(ctx, "", "x"); err == nil {
		t.Error("空キーのSetは拒否されるべき")
	}
	if _, err := repo.Get(ctx, ""); err == nil {
		t.Error("空キーのGetは拒否されるべき")
	}
}

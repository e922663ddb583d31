package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
)

func TestArtifactStore_IncrementAccessIfBelow_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArtifactStore()
	if err := store.Create(ctx, &contract.Artifact{ID: "art-1"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	const workers = 64
	const limit = 5
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.IncrementAccessIfBelow(ctx, "art-1", limit)
			if err != nil {
				t.Errorf("IncrementAccessIfBelow() error: %v", err)
				return
			}
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Errorf("allowed increments = %d, want %d", got, limit)
	}
	a, _ := store.Get(ctx, "art-1")
	if a.AccessCount != limit {
		t.Errorf("AccessCount = %d, want %d", a.AccessCount, limit)
	}
}

func TestArtifactStore_IncrementUnknown(t *testing.T) {
	t.Parallel()

	store := NewArtifactStore()
	if _, _, err := store.IncrementAccessIfBelow(context.Background(), "missing", 1); !errors.Is(err, contract.ErrResourceNotFound) {
		t.Errorf("IncrementAccessIfBelow() error = %v, want ErrResourceNotFound", err)
	}
	if _, err := store.IncrementAccess(context.Background(), "missing"); !errors.Is(err, contract.ErrResourceNotFound) {
		t.Errorf("IncrementAccess() error = %v, want ErrResourceNotFound", err)
	}
}

func TestArtifactStore_DecrementAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArtifactStore()
	_ = store.Create(ctx, &contract.Artifact{ID: "art-1"})
	_, _ = store.IncrementAccess(ctx, "art-1")

	for i, want := range []int64{0, 0} {
		got, err := store.DecrementAccess(ctx, "art-1")
		if err != nil {
			t.Fatalf("DecrementAccess() run %d error: %v", i, err)
		}
		if got != want {
			t.Errorf("DecrementAccess() run %d = %d, want %d", i, got, want)
		}
	}
	if _, err := store.DecrementAccess(ctx, "missing"); !errors.Is(err, contract.ErrResourceNotFound) {
		t.Errorf("DecrementAccess() error = %v, want ErrResourceNotFound", err)
	}
}

func TestArtifactStore_UpdateKeepsAccessCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArtifactStore()
	_ = store.Create(ctx, &contract.Artifact{ID: "art-1"})
	_, _ = store.IncrementAccess(ctx, "art-1")
	_, _ = store.IncrementAccess(ctx, "art-1")

	if err := store.Update(ctx, &contract.Artifact{ID: "art-1", Title: "renamed"}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	a, _ := store.Get(ctx, "art-1")
	if a.AccessCount != 2 || a.Title != "renamed" {
		t.Errorf("Get() = %+v, want count 2 and new title", a)
	}
}

func TestArtifactStore_Links(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArtifactStore()
	_ = store.Create(ctx, &contract.Artifact{ID: "a"})
	_ = store.Create(ctx, &contract.Artifact{ID: "b"})

	if err := store.Link(ctx, "ag-1", "a", "missing"); !errors.Is(err, contract.ErrResourceNotFound) {
		t.Fatalf("Link(missing) error = %v, want ErrResourceNotFound", err)
	}
	arts, _ := store.ArtifactsByAgreement(ctx, "ag-1")
	if len(arts) != 0 {
		t.Fatalf("failed Link left %d links", len(arts))
	}

	if err := store.Link(ctx, "ag-1", "a", "b"); err != nil {
		t.Fatalf("Link() error: %v", err)
	}
	_ = store.Link(ctx, "ag-2", "a")

	arts, _ = store.ArtifactsByAgreement(ctx, "ag-1")
	if len(arts) != 2 || arts[0].ID != "a" || arts[1].ID != "b" {
		t.Errorf("ArtifactsByAgreement() = %v", arts)
	}
	ids, _ := store.AgreementsByArtifact(ctx, "a")
	if len(ids) != 2 {
		t.Errorf("AgreementsByArtifact() = %v", ids)
	}

	_ = store.Unlink(ctx, "ag-1")
	ids, _ = store.AgreementsByArtifact(ctx, "b")
	if len(ids) != 0 {
		t.Errorf("AgreementsByArtifact() after Unlink = %v", ids)
	}
}

func TestArtifactStore_DataSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewArtifactStore()
	_ = store.Create(ctx, &contract.Artifact{ID: "art-1"})

	if err := store.SetData(ctx, "art-1", []byte("payload")); err != nil {
		t.Fatalf("SetData() error: %v", err)
	}
	data, err := store.GetData(ctx, "art-1")
	if err != nil || string(data) != "payload" {
		t.Fatalf("GetData() = %q, %v", data, err)
	}

	for i, want := range []bool{true, false} {
		cleared, err := store.ClearData(ctx, "art-1")
		if err != nil {
			t.Fatalf("ClearData() run %d error: %v", i, err)
		}
		if cleared != want {
			t.Errorf("ClearData() run %d cleared = %v, want %v", i, cleared, want)
		}
	}
	data, _ = store.GetData(ctx, "art-1")
	if data != nil {
		t.Errorf("GetData() after clear = %q, want nil", data)
	}

	if _, err := store.ClearData(ctx, "missing"); !errors.Is(err, contract.ErrResourceNotFound) {
		t.Errorf("ClearData(missing) error = %v", err)
	}
}

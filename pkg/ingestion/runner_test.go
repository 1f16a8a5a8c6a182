package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skuflow/platform/pkg/ledger"
)

func waitFor(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run")
	}
	return nil
}

func TestRunnerCompletesInBackground(t *testing.T) {
	f := newFixture(t)
	file, path := f.upload(t, "a.csv", scenarioCSV, time.Now())
	runner := NewRunner(f.pipeline(nil, nil, Options{}), nil, 2, time.Minute)

	done, err := runner.Submit(file.ID, path)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := waitFor(t, done); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if rec := f.record(t, file.ID); rec.Status != ledger.StatusCompleted || rec.ProcessedRows != 2 {
		t.Fatalf("unexpected record: %s/%d", rec.Status, rec.ProcessedRows)
	}
	if runner.InFlight() != 0 {
		t.Fatalf("expected no runs in flight, got %d", runner.InFlight())
	}
}

func TestRunnerRejectsSecondRunForSameFile(t *testing.T) {
	f := newFixture(t)
	file, path := f.upload(t, "a.csv", scenarioCSV, time.Now())
	gated := newGatedCatalog(f.catalog)
	runner := NewRunner(f.pipeline(gated, nil, Options{}), NewLocalLocker(), 2, time.Minute)

	done, err := runner.Submit(file.ID, path)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-gated.entered

	if _, err := runner.Submit(file.ID, path); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(gated.gate)
	if err := waitFor(t, done); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestRunnerCancelMarksFailed(t *testing.T) {
	f := newFixture(t)
	file, path := f.upload(t, "a.csv", scenarioCSV, time.Now())
	gated := newGatedCatalog(f.catalog)
	runner := NewRunner(f.pipeline(gated, nil, Options{}), nil, 1, time.Minute)

	done, err := runner.Submit(file.ID, path)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-gated.entered
	if !runner.Cancel(file.ID) {
		t.Fatal("expected an active run to cancel")
	}

	if err := waitFor(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rec := f.record(t, file.ID); rec.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
}

func TestRunnerTimeoutMarksFailed(t *testing.T) {
	f := newFixture(t)
	file, path := f.upload(t, "a.csv", scenarioCSV, time.Now())
	gated := newGatedCatalog(f.catalog)
	runner := NewRunner(f.pipeline(gated, nil, Options{}), nil, 1, 50*time.Millisecond)

	done, err := runner.Submit(file.ID, path)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := waitFor(t, done); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if rec := f.record(t, file.ID); rec.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
}

func TestRunnerLastCommittedUpsertWins(t *testing.T) {
	for i := 0; i < 10; i++ {
		f := newFixture(t)
		ordered := &orderedCatalog{Catalog: f.catalog}
		runner := NewRunner(f.pipeline(ordered, nil, Options{}), nil, 2, time.Minute)

		base := time.Now()
		a, pathA := f.upload(t, "a.csv", "UNIQUE_KEY,PRODUCT_TITLE\nX1,a\nK,from A\nX2,a\n", base)
		b, pathB := f.upload(t, "b.csv", "UNIQUE_KEY,PRODUCT_TITLE\nY1,b\nK,from B\nY2,b\n", base.Add(time.Second))

		var wg sync.WaitGroup
		for _, job := range []struct {
			file *ledger.UploadedFile
			path string
		}{{a, pathA}, {b, pathB}} {
			done, err := runner.Submit(job.file.ID, job.path)
			if err != nil {
				t.Fatalf("submit failed: %v", err)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-done
			}()
		}
		wg.Wait()

		commits := ordered.commits["K"]
		if len(commits) != 2 {
			t.Fatalf("expected two commits for K, got %d", len(commits))
		}
		k := f.product(t, "K")
		if k.UploadedFileID != commits[len(commits)-1] {
			t.Fatalf("expected owner to be the last committed file %s, got %s", commits[1], k.UploadedFileID)
		}
		if want := map[bool]string{true: "from A", false: "from B"}[k.UploadedFileID == a.ID]; *k.Title != want {
			t.Fatalf("expected title %q, got %q", want, *k.Title)
		}

		versions, _ := f.catalog.Versions(context.Background(), "K")
		if len(versions) != 2 || versions[0].UploadedFileID != a.ID || versions[1].UploadedFileID != b.ID {
			t.Fatalf("expected history ordered by file creation, got %+v", versions)
		}
	}
}

func TestRunnerShutdownRejectsNewWork(t *testing.T) {
	f := newFixture(t)
	file, path := f.upload(t, "a.csv", scenarioCSV, time.Now())
	runner := NewRunner(f.pipeline(nil, nil, Options{}), nil, 1, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if _, err := runner.Submit(file.ID, path); !errors.Is(err, ErrRunnerClosed) {
		t.Fatalf("expected ErrRunnerClosed, got %v", err)
	}
}

func TestRunnerShutdownCancelsStuckRuns(t *testing.T) {
	f := newFixture(t)
	file, path := f.upload(t, "a.csv", scenarioCSV, time.Now())
	gated := newGatedCatalog(f.catalog)
	runner := NewRunner(f.pipeline(gated, nil, Options{}), nil, 1, time.Minute)

	done, err := runner.Submit(file.ID, path)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-gated.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := runner.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected shutdown deadline, got %v", err)
	}
	if err := waitFor(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled run, got %v", err)
	}
}

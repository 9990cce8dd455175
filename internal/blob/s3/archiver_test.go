package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
)

type fakeUploader struct {
	puts map[string][]byte
	fail bool
}

func (f *fakeUploader) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.fail {
		return io.ErrClosedPipe
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[path] = b
	return nil
}

func (f *fakeUploader) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

// fakeStore keeps opportunities sorted oldest-first.
type fakeStore struct {
	opps []domain.Opportunity
}

func (s *fakeStore) Insert(_ context.Context, opp domain.Opportunity) error {
	s.opps = append(s.opps, opp)
	return nil
}

func (s *fakeStore) ListRecent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	out := make([]domain.Opportunity, len(s.opps))
	copy(out, s.opps)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, o := range s.opps {
		if o.DetectedAt.Before(cutoff) {
			out = append(out, o)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.Opportunity
	var deleted int64
	for _, o := range s.opps {
		if o.DetectedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, o)
	}
	s.opps = kept
	return deleted, nil
}

func opp(id string, at time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:          id,
		Base:        "USD",
		Cycle:       []domain.Currency{"EUR"},
		StartAmount: 100,
		EndAmount:   101,
		DetectedAt:  at,
	}
}

func TestArchiveBeforeExportsAndPrunes(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{opps: []domain.Opportunity{
		opp("a", t0),
		opp("b", t0.Add(time.Hour)),
		opp("c", t0.Add(30*24*time.Hour)), // newer than the cutoff
	}}
	up := &fakeUploader{}
	a := NewArchiver(up, store, "opportunities", slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveBefore(context.Background(), t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ArchiveBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("archived %d rows, want 2", n)
	}
	if len(store.opps) != 1 || store.opps[0].ID != "c" {
		t.Errorf("store left with %+v, want only the newer row", store.opps)
	}
	if len(up.puts) != 1 {
		t.Fatalf("uploaded %d objects, want 1", len(up.puts))
	}

	for path, body := range up.puts {
		if !strings.HasPrefix(path, "opportunities/2026-08/") || !strings.HasSuffix(path, ".jsonl") {
			t.Errorf("object key = %q", path)
		}
		lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
		if len(lines) != 2 {
			t.Fatalf("export has %d lines, want 2", len(lines))
		}
		var first domain.Opportunity
		if err := json.Unmarshal(lines[0], &first); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		if first.ID != "a" {
			t.Errorf("first exported row = %s, want a (oldest first)", first.ID)
		}
	}
}

func TestArchiveBeforeNothingToDo(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUploader{}
	a := NewArchiver(up, store, "opportunities", slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveBefore(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveBefore: %v", err)
	}
	if n != 0 || len(up.puts) != 0 {
		t.Errorf("archived %d rows with %d uploads, want none", n, len(up.puts))
	}
}

func TestArchiveBeforeKeepsRowsOnUploadFailure(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{opps: []domain.Opportunity{opp("a", t0)}}
	a := NewArchiver(&fakeUploader{fail: true}, store, "opportunities", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := a.ArchiveBefore(context.Background(), t0.Add(time.Hour)); err == nil {
		t.Fatal("expected upload error")
	}
	if len(store.opps) != 1 {
		t.Errorf("rows were pruned despite failed upload")
	}
}

package sealing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/docseal/internal/services/signing/blob"
	"github.com/louisbranch/docseal/internal/services/signing/certification"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/pdf"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
	"github.com/louisbranch/docseal/internal/services/signing/webhook"
)

// fakeEngine appends a marker per operation so tests can read the order of
// transformations from the output bytes.
type fakeEngine struct {
	insertErr error
}

func tag(data []byte, marker string) []byte {
	out := make([]byte, 0, len(data)+len(marker)+1)
	out = append(out, data...)
	return append(out, "|"+marker...)
}

func (fakeEngine) Normalize(_ context.Context, data []byte) ([]byte, error) {
	return tag(data, "normalize"), nil
}

func (fakeEngine) FlattenForm(_ context.Context, data []byte) ([]byte, error) {
	return tag(data, "flatten-form"), nil
}

func (fakeEngine) FlattenAnnotations(_ context.Context, data []byte) ([]byte, error) {
	return tag(data, "flatten-annotations"), nil
}

func (fakeEngine) StampRejection(_ context.Context, data []byte, reason string) ([]byte, error) {
	return tag(data, "reject:"+reason), nil
}

func (fakeEngine) AppendPages(_ context.Context, base []byte, extra ...[]byte) ([]byte, error) {
	out := base
	for _, page := range extra {
		out = tag(out, "append:"+string(page))
	}
	return out, nil
}

func (e fakeEngine) InsertField(_ context.Context, data []byte, mark pdf.FieldMark, legacy bool) ([]byte, error) {
	if e.insertErr != nil {
		return nil, e.insertErr
	}
	content := mark.Text
	if len(mark.ImagePNG) > 0 {
		content = "img:" + string(mark.ImagePNG)
	}
	marker := fmt.Sprintf("field:%d:%s", mark.Page, content)
	if legacy {
		marker += ":legacy"
	}
	return tag(data, marker), nil
}

func (fakeEngine) PageCount(context.Context, []byte) (int, error) {
	return 1, nil
}

type fakeSigner struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeSigner) Sign(_ context.Context, data []byte) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return tag(data, "signed"), nil
}

type memBlobs struct {
	mu    sync.Mutex
	items map[string][]byte
	puts  int
}

func newMemBlobs(seed map[string]string) *memBlobs {
	items := make(map[string][]byte, len(seed))
	for ref, value := range seed {
		items[ref] = []byte(value)
	}
	return &memBlobs{items: items}
}

func (m *memBlobs) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.items[ref]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (m *memBlobs) Put(_ context.Context, name string, _ string, data []byte) (string, error) {
	ref, err := blob.Ref(name, data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[ref] = append([]byte(nil), data...)
	m.puts++
	return ref, nil
}

type stubCertification struct {
	err    error
	inputs []certification.Input
}

func (s *stubCertification) Render(in certification.Input) ([]byte, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return []byte("CERT"), nil
}

type stubStandard struct {
	err error
}

func (s stubStandard) StandardCertificate(context.Context, document.Document) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("STD"), nil
}

type emailCall struct {
	documentID int64
	dedupeKey  string
	meta       document.RequestMetadata
}

type fakeEmails struct {
	err   error
	calls []emailCall
}

func (f *fakeEmails) EnqueueCompletedEmail(_ context.Context, documentID int64, dedupeKey string, meta document.RequestMetadata) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, emailCall{documentID: documentID, dedupeKey: dedupeKey, meta: meta})
	return nil
}

type fakeWebhooks struct {
	err    error
	events []webhook.Event
}

func (f *fakeWebhooks) Trigger(_ context.Context, event webhook.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// conflictSeals fails every commit as if the status moved under the run.
type conflictSeals struct {
	storage.SealStore
}

func (conflictSeals) CommitSeal(context.Context, storage.SealCommit) error {
	return storage.ErrStatusConflict
}

// racingSeals lets a competing job commit first, then reports the conflict.
type racingSeals struct {
	storage.SealStore
}

func (r racingSeals) CommitSeal(ctx context.Context, commit storage.SealCommit) error {
	commit.JobID = "competing-" + commit.JobID
	if err := r.SealStore.CommitSeal(ctx, commit); err != nil {
		return err
	}
	return storage.ErrStatusConflict
}

// failingSeals fails every commit with a storage error.
type failingSeals struct {
	storage.SealStore
}

func (failingSeals) CommitSeal(context.Context, storage.SealCommit) error {
	return errors.New("disk full")
}

type logCapture struct {
	mu    sync.Mutex
	lines []string
}

func (l *logCapture) logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *logCapture) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

package search

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeSearcher struct {
	healthy  bool
	searchFn func(Query) ([]Result, int, error)
}

func (f *fakeSearcher) Search(q Query) ([]Result, int, error) {
	if f.searchFn == nil {
		return nil, 0, nil
	}
	return f.searchFn(q)
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

type fakeMeili struct {
	fakeSearcher
}

func (f *fakeMeili) IndexDocument(DocumentRecord) error    { return nil }
func (f *fakeMeili) IndexComment(CommentRecord) error      { return nil }
func (f *fakeMeili) DeleteComment(string) error            { return nil }
func (f *fakeMeili) IndexDocuments([]DocumentRecord) error { return nil }
func (f *fakeMeili) IndexComments([]CommentRecord) error   { return nil }

func TestServiceFallsBackToPgFTS(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	meili := &fakeMeili{fakeSearcher{healthy: true, searchFn: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("meili down")
	}}}
	pg := &fakeSearcher{healthy: true, searchFn: func(q Query) ([]Result, int, error) {
		return []Result{{Type: ResultComment, ID: "c1", DocumentID: "d1"}}, 1, nil
	}}
	svc := &Service{meili: meili, pgfts: pg, logger: logger}

	resp := svc.Search(Query{Text: "quick"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "c1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected fallback warning, got %+v", entry)
	}
}

func TestServiceSkipsUnhealthyMeili(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	called := false
	meili := &fakeMeili{fakeSearcher{healthy: false, searchFn: func(Query) ([]Result, int, error) {
		called = true
		return nil, 0, nil
	}}}
	svc := &Service{meili: meili, pgfts: &fakeSearcher{}, logger: logger}

	resp := svc.Search(Query{Text: "x"})
	if called {
		t.Fatalf("unhealthy meili should not be queried")
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}
}

func TestServiceWithoutBackends(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	resp := NewService(nil, nil, logger).Search(Query{Text: "x"})
	if resp.Query != "x" || resp.Results == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestBuildSearchRequestsScopesComments(t *testing.T) {
	reqs := buildSearchRequests(Query{Text: "fox", FilterDocumentID: "doc-1", Limit: 5})
	if len(reqs) != 1 {
		t.Fatalf("expected only the comment index, got %d requests", len(reqs))
	}
	if reqs[0].IndexUID != idxComments || reqs[0].Limit != 5 {
		t.Fatalf("unexpected request %+v", reqs[0])
	}
	filter, ok := reqs[0].Filter.([]string)
	if !ok || len(filter) != 1 || filter[0] != `documentId = "doc-1"` {
		t.Fatalf("unexpected filter %#v", reqs[0].Filter)
	}

	if reqs := buildSearchRequests(Query{Text: "fox"}); len(reqs) != 2 || reqs[0].Limit != 20 {
		t.Fatalf("expected both indexes with default limit, got %+v", reqs)
	}
	if reqs := buildSearchRequests(Query{Text: "fox", FilterType: ResultDocument}); len(reqs) != 1 || reqs[0].IndexUID != idxDocuments {
		t.Fatalf("expected documents only, got %+v", reqs)
	}
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	hit := meilisearch.Hit{
		"id":         raw("c1"),
		"documentId": raw("d1"),
		"status":     raw("OPEN"),
		"quote":      raw("quick"),
		"body":       raw("why quick?"),
		"_formatted": raw(map[string]string{"body": "why <mark>quick</mark>?"}),
	}
	got := hitToResult(hit, ResultComment)
	want := Result{Type: ResultComment, ID: "c1", Title: "quick", Snippet: "why <mark>quick</mark>?", DocumentID: "d1", Status: "OPEN"}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	doc := hitToResult(meilisearch.Hit{"id": raw("d1"), "title": raw("Plan")}, ResultDocument)
	if doc.DocumentID != "d1" || doc.Title != "Plan" {
		t.Fatalf("unexpected document result %+v", doc)
	}
}

func TestBuildPgQueries(t *testing.T) {
	if _, data, _ := buildPgQueries(Query{Text: "   "}); data != "" {
		t.Fatalf("blank query should not produce SQL")
	}

	_, data, args := buildPgQueries(Query{Text: "fox", FilterDocumentID: "d1"})
	if strings.Contains(data, "FROM documents") {
		t.Fatalf("document filter should exclude documents: %s", data)
	}
	if !strings.Contains(data, "c.document_id = $2") || len(args) != 2 {
		t.Fatalf("expected document scoping, got %s %v", data, args)
	}
	if !strings.Contains(data, "LIMIT 20 OFFSET 0") {
		t.Fatalf("expected default paging: %s", data)
	}
}

func TestFirstNonBlank(t *testing.T) {
	if got := firstNonBlank("", "  ", "a", "b"); got != "a" {
		t.Fatalf("expected a, got %q", got)
	}
	if got := firstNonBlank(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

package discovery

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func graphqlQuery(t *testing.T, r *http.Request) string {
	t.Helper()
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req.Query
}

func TestCandidateKeysDeduplicatedAndSorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := graphqlQuery(t, r)
		switch {
		case strings.Contains(q, "indexers("):
			io.WriteString(w, `{"data":{"indexers":[{"address":"0xaa"},{"address":"0xbb"}]}}`)
		case strings.Contains(q, `"0xaa"`):
			io.WriteString(w, `{"data":{"poiAgreementRatios":[
				{"poi":{"block":{"number":100},"deployment":{"cid":"QmB"}}},
				{"poi":{"block":{"number":5},"deployment":{"cid":"QmA"}}}
			]}}`)
		case strings.Contains(q, `"0xbb"`):
			io.WriteString(w, `{"data":{"poiAgreementRatios":[
				{"poi":{"block":{"number":100},"deployment":{"cid":"QmB"}}}
			]}}`)
		default:
			t.Fatalf("unexpected query: %s", q)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 100, testLogger())
	keys, err := c.CandidateKeys(context.Background())
	if err != nil {
		t.Fatalf("candidate keys: %v", err)
	}
	want := []poi.Key{{Deployment: "QmA", Block: 5}, {Deployment: "QmB", Block: 100}}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, keys)
	}
}

func TestCandidateKeysEmptyIndexerList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"indexers":[]}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 100, testLogger())
	keys, err := c.CandidateKeys(context.Background())
	if err != nil {
		t.Fatalf("candidate keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestCandidateKeysGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errors":[{"message":"internal error"}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 100, testLogger())
	if _, err := c.CandidateKeys(context.Background()); err == nil || !strings.Contains(err.Error(), "internal error") {
		t.Fatalf("expected graphql error, got %v", err)
	}
}

func TestCandidateKeysHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, 100, testLogger())
	if _, err := c.CandidateKeys(context.Background()); err == nil {
		t.Fatalf("expected error on HTTP 502")
	}
}

func TestCandidateKeysUnreachableAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, 100, testLogger())
	if _, err := c.CandidateKeys(context.Background()); err == nil {
		t.Fatalf("expected error when api is unreachable")
	}
}

func TestIndexerPageSizeInQuery(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = graphqlQuery(t, r)
		io.WriteString(w, `{"data":{"indexers":[]}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 25, testLogger())
	if _, err := c.CandidateKeys(context.Background()); err != nil {
		t.Fatalf("candidate keys: %v", err)
	}
	if !strings.Contains(got, "indexers(limit: 25)") {
		t.Fatalf("expected page size in query, got %s", got)
	}
}

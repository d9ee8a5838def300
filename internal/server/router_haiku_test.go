package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/haiku"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stubRepository struct {
	haiku.Repository
	getByIDErr   error
	setPostedErr error
	statsTopN    int
	authorLimit  int
	inserted     []haiku.InsertRequest
}

func (s *stubRepository) GetByID(_ context.Context, id int64) (haiku.Record, error) {
	if s.getByIDErr != nil {
		return haiku.Record{}, s.getByIDErr
	}
	return haiku.Record{ID: id, Text: "old pond", Author: "Basho"}, nil
}

func (s *stubRepository) SetPosted(_ context.Context, _ int64) error {
	return s.setPostedErr
}

func (s *stubRepository) GetStats(_ context.Context, topN int) ([]haiku.AuthorStat, error) {
	s.statsTopN = topN
	return nil, nil
}

func (s *stubRepository) GetByAuthor(_ context.Context, _ string, limit int) ([]haiku.Record, error) {
	s.authorLimit = limit
	return nil, nil
}

func (s *stubRepository) Insert(_ context.Context, request haiku.InsertRequest) (haiku.Record, error) {
	s.inserted = append(s.inserted, request)
	return haiku.Record{ID: 1, Text: request.Text, Author: request.Author}, nil
}

type stubTokens struct {
	err error
}

func (s stubTokens) ValidateRequest(_ *http.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "poster", nil
}

func newStubHandler(t *testing.T, repository haiku.Repository, tokens TokenValidator) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler, err := NewHTTPHandler(Dependencies{
		Repository:   repository,
		TokenManager: tokens,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func serve(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, http.NoBody)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{TokenManager: stubTokens{}}); !errors.Is(err, errMissingRepository) {
		t.Fatalf("expected missing repository error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{Repository: &stubRepository{}}); !errors.Is(err, errMissingTokenManager) {
		t.Fatalf("expected missing token manager error, got %v", err)
	}
}

func TestGetHaikuMapsNotFound(t *testing.T) {
	repository := &stubRepository{getByIDErr: fmt.Errorf("lookup: %w", haiku.ErrNotFound)}
	handler := newStubHandler(t, repository, stubTokens{})

	recorder := serve(handler, http.MethodGet, "/haiku/7", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d", recorder.Code)
	}
	expected := `{"error":"not_found"}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestGetHaikuRejectsMalformedID(t *testing.T) {
	handler := newStubHandler(t, &stubRepository{}, stubTokens{})

	recorder := serve(handler, http.MethodGet, "/haiku/seven", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"error":"invalid_id"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestStatsPassesTopAndReturnsEmptyList(t *testing.T) {
	repository := &stubRepository{}
	handler := newStubHandler(t, repository, stubTokens{})

	recorder := serve(handler, http.MethodGet, "/haiku/stats?top=2", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d", recorder.Code)
	}
	if repository.statsTopN != 2 {
		t.Fatalf("expected top to be forwarded, got %d", repository.statsTopN)
	}
	if recorder.Body.String() != `{"stats":[]}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}

	recorder = serve(handler, http.MethodGet, "/haiku/stats?top=-1", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for negative top, got %d", recorder.Code)
	}
}

func TestByAuthorRequiresQuery(t *testing.T) {
	repository := &stubRepository{}
	handler := newStubHandler(t, repository, stubTokens{})

	recorder := serve(handler, http.MethodGet, "/haiku/by-author", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}

	recorder = serve(handler, http.MethodGet, "/haiku/by-author?q=karl", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d", recorder.Code)
	}
	if repository.authorLimit != 0 {
		t.Fatalf("expected store default limit to apply, got %d", repository.authorLimit)
	}
	if recorder.Body.String() != `{"haiku":[]}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestMutationsRequireToken(t *testing.T) {
	repository := &stubRepository{}
	handler := newStubHandler(t, repository, stubTokens{err: errors.New("no token")})

	recorder := serve(handler, http.MethodPost, "/haiku", `{"haiku":"a\nb\nc","author":"Karl"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}
	recorder = serve(handler, http.MethodPost, "/haiku/1/posted", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}
	if len(repository.inserted) != 0 {
		t.Fatalf("expected no insert without a token")
	}
}

func TestCreateHaikuForwardsPayload(t *testing.T) {
	repository := &stubRepository{}
	handler := newStubHandler(t, repository, stubTokens{})

	recorder := serve(handler, http.MethodPost, "/haiku", `{"haiku":"a\nb\nc","author":"Karl","posted":true,"date":"2026-01-02T03:04:05Z"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(repository.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(repository.inserted))
	}
	request := repository.inserted[0]
	if request.Text != "a\nb\nc" || request.Author != "Karl" || !request.Posted {
		t.Fatalf("unexpected insert request %+v", request)
	}
	if request.Date.IsZero() || request.Date.Year() != 2026 {
		t.Fatalf("expected explicit date to be forwarded, got %v", request.Date)
	}
}

func TestSetPostedMapsStorageFailure(t *testing.T) {
	repository := &stubRepository{setPostedErr: errors.New("disk full")}
	handler := newStubHandler(t, repository, stubTokens{})

	recorder := serve(handler, http.MethodPost, "/haiku/3/posted", "")
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal error status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"error":"internal_error"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

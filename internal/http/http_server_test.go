package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vishnukl-alation/hive/internal/adapter/crypto"
	"github.com/vishnukl-alation/hive/internal/adapter/logging"
	"github.com/vishnukl-alation/hive/internal/config"
	"github.com/vishnukl-alation/hive/internal/core/services/submission"
	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/static/errs"
)

type fakeService struct {
	submission.ISubmissionService
	records   map[uuid.UUID]*domain.JobRecord
	lastQuery submission.QueryRequest
	cancelled []uuid.UUID
	timeout   time.Duration
}

func newFakeService() *fakeService {
	return &fakeService{records: make(map[uuid.UUID]*domain.JobRecord)}
}

func (f *fakeService) SubmitQuery(_ context.Context, req submission.QueryRequest) (*domain.JobRecord, error) {
	if req.Work == nil {
		return nil, errs.ErrInvalidRequest
	}
	f.lastQuery = req
	rec := domain.NewJobRecord(uuid.New(), domain.JobKindStatus, domain.TrackingTag{Description: req.Query, GroupID: "queryId = " + req.Work.QueryID})
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeService) SubmitDriverInfo(context.Context) (*domain.JobRecord, error) {
	return nil, &errs.ChannelError{}
}

func (f *fakeService) GetJob(_ context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, errs.ErrJobNotFound
	}
	return rec, nil
}

func (f *fakeService) ListGroup(_ context.Context, groupID string, _ int) ([]*domain.JobRecord, error) {
	out := make([]*domain.JobRecord, 0)
	for _, rec := range f.records {
		if rec.GroupID == groupID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeService) AwaitJob(_ context.Context, id uuid.UUID, timeout time.Duration) (*submission.JobOutcome, error) {
	f.timeout = timeout
	rec, ok := f.records[id]
	if !ok {
		return nil, errs.ErrJobNotFound
	}
	if rec.Status != domain.JobStatusSucceeded {
		return &submission.JobOutcome{Job: rec}, &errs.TimeoutError{SubmissionID: id.String()}
	}
	return &submission.JobOutcome{Job: rec, Status: &domain.StatusResult{QueryID: "q1"}}, nil
}

func (f *fakeService) CancelJob(_ context.Context, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return errs.ErrJobNotFound
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeService) Live() int {
	return len(f.records)
}

func newTestServer(t *testing.T, secret string) (*fakeService, http.Handler) {
	t.Helper()
	svc := newFakeService()
	tokens := crypto.NewJWTService(&config.JwtConfig{Secret: secret})
	server := NewServer(0, "coordinator", *NewServiceProvider(svc, tokens), logging.NewNopLogger())
	require.NoError(t, server.Init())
	return svc, server.Handler()
}

func do(h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndFetchJob(t *testing.T) {
	require := require.New(t)
	svc, h := newTestServer(t, "")

	body := map[string]any{
		"query":      "select * from t",
		"scratchDir": "/tmp/scratch",
		"work": map[string]any{
			"name":    "work-1",
			"queryId": "q1",
			"works":   []map[string]any{{"name": "Map 1"}},
		},
	}
	resp := do(h, http.MethodPost, "/api/jobs", body, nil)
	require.Equal(http.StatusAccepted, resp.Code)

	var created domain.JobRecord
	require.NoError(json.NewDecoder(resp.Body).Decode(&created))
	require.Equal("queryId = q1", created.GroupID)
	require.Equal("/tmp/scratch", svc.lastQuery.ScratchDir)

	resp = do(h, http.MethodGet, "/api/jobs/"+created.ID.String(), nil, nil)
	require.Equal(http.StatusOK, resp.Code)

	resp = do(h, http.MethodGet, "/api/jobs?group=queryId%20%3D%20q1", nil, nil)
	require.Equal(http.StatusOK, resp.Code)
	var list struct {
		Jobs []domain.JobRecord `json:"jobs"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&list))
	require.Len(list.Jobs, 1)
}

func TestCreateJobValidation(t *testing.T) {
	require := require.New(t)
	_, h := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString("{not json"))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	require.Equal(http.StatusBadRequest, resp.Code)

	resp = do(h, http.MethodPost, "/api/jobs", map[string]any{"query": "select 1"}, nil)
	require.Equal(http.StatusBadRequest, resp.Code)

	resp = do(h, http.MethodGet, "/api/jobs", nil, nil)
	require.Equal(http.StatusBadRequest, resp.Code)
}

func TestResultTimeoutAndSuccess(t *testing.T) {
	require := require.New(t)
	svc, h := newTestServer(t, "")

	rec := domain.NewJobRecord(uuid.New(), domain.JobKindStatus, domain.TrackingTag{})
	svc.records[rec.ID] = rec

	resp := do(h, http.MethodGet, "/api/jobs/"+rec.ID.String()+"/result?timeout=250ms", nil, nil)
	require.Equal(http.StatusAccepted, resp.Code)
	require.Equal(250*time.Millisecond, svc.timeout)

	rec.Status = domain.JobStatusSucceeded
	resp = do(h, http.MethodGet, "/api/jobs/"+rec.ID.String()+"/result", nil, nil)
	require.Equal(http.StatusOK, resp.Code)
	var out submission.JobOutcome
	require.NoError(json.NewDecoder(resp.Body).Decode(&out))
	require.Equal("q1", out.Status.QueryID)

	resp = do(h, http.MethodGet, "/api/jobs/"+rec.ID.String()+"/result?timeout=soon", nil, nil)
	require.Equal(http.StatusBadRequest, resp.Code)
}

func TestCancelAndErrors(t *testing.T) {
	require := require.New(t)
	svc, h := newTestServer(t, "")

	rec := domain.NewJobRecord(uuid.New(), domain.JobKindStatus, domain.TrackingTag{})
	svc.records[rec.ID] = rec

	resp := do(h, http.MethodPost, "/api/jobs/"+rec.ID.String()+"/cancel", nil, nil)
	require.Equal(http.StatusNoContent, resp.Code)
	require.Equal([]uuid.UUID{rec.ID}, svc.cancelled)

	resp = do(h, http.MethodPost, "/api/jobs/"+uuid.NewString()+"/cancel", nil, nil)
	require.Equal(http.StatusNotFound, resp.Code)

	resp = do(h, http.MethodGet, "/api/jobs/not-a-uuid", nil, nil)
	require.Equal(http.StatusBadRequest, resp.Code)

	resp = do(h, http.MethodPost, "/api/driver/info", nil, nil)
	require.Equal(http.StatusServiceUnavailable, resp.Code)
}

func TestJWTMiddleware(t *testing.T) {
	require := require.New(t)
	_, h := newTestServer(t, "s3cret")

	resp := do(h, http.MethodGet, "/healthz", nil, nil)
	require.Equal(http.StatusOK, resp.Code)

	resp = do(h, http.MethodGet, "/api/jobs/"+uuid.NewString(), nil, nil)
	require.Equal(http.StatusUnauthorized, resp.Code)

	resp = do(h, http.MethodGet, "/api/jobs/"+uuid.NewString(), nil, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(http.StatusUnauthorized, resp.Code)

	token, err := crypto.NewJWTService(&config.JwtConfig{Secret: "s3cret"}).GenerateTokenHMAC(context.Background(), "beeline", time.Minute)
	require.NoError(err)
	resp = do(h, http.MethodGet, "/api/jobs/"+uuid.NewString(), nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(http.StatusNotFound, resp.Code)
}

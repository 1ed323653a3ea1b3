package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/infra/memory"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/remote"
)

func newRemoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := remote.NewService(memory.NewRemoteStore(), remote.NewValidator(20), logging.Discard())
	mux := http.NewServeMux()
	NewRemoteHandler(service, "s3cret", logging.Discard()).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRemoteClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	server := newRemoteServer(t)
	client := remote.NewClient(server.URL, server.Client())

	require.NoError(t, client.SubmitAttempt(ctx, domain.AttemptSubmission{
		ID: uuid.NewString(), AnonymousID: "anon-1", Chapter: 3, Score: 7, Total: 10, Percentage: 70,
	}))

	report, err := client.BulkSync(ctx, domain.SyncRequest{
		AnonymousID: "anon-1",
		Attempts: []domain.AttemptSubmission{
			{AnonymousID: "anon-1", Chapter: 3, Score: 6, Total: 10, Percentage: 60},
			{AnonymousID: "anon-1", Chapter: 4, Score: 9, Total: 10, Percentage: 90},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, report.Accepted)
	assert.Equal(t, []int{3}, report.Skipped)

	rec, err := client.Progress(ctx, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, 70, rec.Chapters[3].Percentage)
	assert.Equal(t, 90, rec.Chapters[4].Percentage)

	merged, err := client.Merge(ctx, domain.MergeRequest{AnonymousID: "anon-1", UserID: "user-1", Email: "u@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", merged.Identity)
	assert.Len(t, merged.Chapters, 2)

	empty, err := client.Progress(ctx, "anon-1")
	require.NoError(t, err)
	assert.Empty(t, empty.Chapters)
}

func TestRemoteValidationDetails(t *testing.T) {
	server := newRemoteServer(t)
	body := `{"anonymousId":"","chapter":21,"score":11,"total":10,"percentage":110}`
	resp, err := http.Post(server.URL+"/api/attempts", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	fields := make(map[string]string)
	for _, d := range out.Details {
		fields[d.Field] = d.Rule
	}
	assert.Equal(t, "required", fields["anonymousId"])
	assert.Equal(t, "chapter", fields["chapter"])
	assert.Equal(t, "ltefield", fields["score"])
	assert.Equal(t, "lte", fields["percentage"])
}

func TestRemoteClientSurfacesStatus(t *testing.T) {
	server := newRemoteServer(t)
	client := remote.NewClient(server.URL, server.Client())

	_, err := client.Progress(context.Background(), "")
	var status *remote.StatusError
	require.True(t, errors.As(err, &status), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, status.Status)
	assert.NotEmpty(t, status.Message)
}

func TestRemoteMalformedBody(t *testing.T) {
	server := newRemoteServer(t)
	resp, err := http.Post(server.URL+"/api/merge", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoteAdminRequiresToken(t *testing.T) {
	ctx := context.Background()
	server := newRemoteServer(t)
	client := remote.NewClient(server.URL, server.Client())
	require.NoError(t, client.SubmitAttempt(ctx, domain.AttemptSubmission{
		AnonymousID: "anon-9", Chapter: 1, Score: 5, Total: 5, Percentage: 100,
	}))

	get := func(path, token string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/admin/records", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get("/api/admin/records", "wrong").StatusCode)

	resp := get("/api/admin/records", "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []domain.RemoteRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "anon-9", recs[0].Identity)

	assert.Equal(t, http.StatusNotFound, get("/api/admin/records?identity=nobody", "s3cret").StatusCode)
}

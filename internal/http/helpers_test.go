package httpx

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainjob "github.com/target/intake-pipeline/internal/domain/job"
	"github.com/target/intake-pipeline/internal/mocks"
	"github.com/target/intake-pipeline/internal/service"
)

const testAdminToken = "s3cret-token"

type txLocker struct{}

func (txLocker) WithEmailLock(ctx context.Context, _ string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return fn(ctx, nil)
}

type routerFixture struct {
	handler http.Handler
	subs    *mocks.MockSubscriptionRepository
	assess  *mocks.MockAssessmentRepository
	txJobs  *mocks.MockJobRepositoryTx
	jobs    *mocks.MockJobRepository
}

type fixtureOption func(*RouterServices)

func withoutAdminToken() fixtureOption {
	return func(s *RouterServices) { s.AdminToken = "" }
}

func withReadiness(checks ...ReadinessCheck) fixtureOption {
	return func(s *RouterServices) { s.Readiness = checks }
}

func newRouterFixture(t *testing.T, opts ...fixtureOption) *routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &routerFixture{
		subs:   mocks.NewMockSubscriptionRepository(ctrl),
		assess: mocks.NewMockAssessmentRepository(ctrl),
		txJobs: mocks.NewMockJobRepositoryTx(ctrl),
		jobs:   mocks.NewMockJobRepository(ctrl),
	}

	intake, err := service.NewIntakeService(service.IntakeServiceOptions{
		Locker:        txLocker{},
		Subscriptions: f.subs,
		Assessments:   f.assess,
		Jobs:          f.txJobs,
	})
	require.NoError(t, err)

	status, err := service.NewStatusService(service.StatusServiceOptions{
		Subscriptions: f.subs,
		Assessments:   f.assess,
	})
	require.NoError(t, err)

	backoff, err := domainjob.NewBackoffPolicy(time.Second, time.Minute, false)
	require.NoError(t, err)
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         f.jobs,
		DefaultLease: 30 * time.Second,
		Backoff:      backoff,
	})
	require.NoError(t, err)

	admin, err := service.NewAdminService(service.AdminServiceOptions{
		Subscriptions: f.subs,
		Assessments:   f.assess,
		Jobs:          jobs,
		Status:        status,
	})
	require.NoError(t, err)

	services := RouterServices{
		Intake:             intake,
		Status:             status,
		Admin:              admin,
		AdminToken:         testAdminToken,
		Metrics:            promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		MetricsPath:        "/internal/metrics",
		CORSAllowedOrigins: []string{"https://www.example.com"},
		MaxBodyBytes:       2048,
	}
	for _, opt := range opts {
		opt(&services)
	}
	f.handler = NewRouter(services)
	return f
}

func (f *routerFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func adminRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	req := jsonRequest(t, method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	return req
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

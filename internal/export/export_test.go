package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/render"
	"github.com/drfirst/go-rxpad/pkg/circuitbreaker"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBrowser struct {
	calls atomic.Int32
	fn    func(ctx context.Context, html string) ([]byte, error)
}

func (b *fakeBrowser) PDF(ctx context.Context, html string) ([]byte, error) {
	b.calls.Add(1)
	return b.fn(ctx, html)
}

func (b *fakeBrowser) PNG(ctx context.Context, html string) ([]byte, error) {
	b.calls.Add(1)
	return b.fn(ctx, html)
}

func newService(t *testing.T, b Browser, cfg Config) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	s, err := NewService(b, cfg, m, nil)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })
	return s, m
}

func requireCause(t *testing.T, err error, want Cause) {
	t.Helper()
	rf, ok := AsRenderFailure(err)
	require.True(t, ok, "expected RenderFailure, got %v", err)
	require.Equal(t, want, rf.Cause)
}

func TestServiceRendersPrintMarkup(t *testing.T) {
	var got string
	b := &fakeBrowser{fn: func(_ context.Context, html string) ([]byte, error) {
		got = html
		return []byte("%PDF-1.4 fake"), nil
	}}
	s, m := newService(t, b, DefaultConfig())

	out, err := s.PDF(context.Background(), document.Sample(now))
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 fake"), out)
	require.Contains(t, got, "Dr. Sarah Johnson")
	require.NotContains(t, got, "fullscreen-toggle")
	require.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("pdf")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRenders))
	require.NoError(t, s.Check(context.Background()))
}

func TestServiceFailureCauses(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, html string) ([]byte, error)
		want Cause
	}{
		{
			name: "empty output",
			fn:   func(context.Context, string) ([]byte, error) { return nil, nil },
			want: CauseCrashed,
		},
		{
			name: "browser error",
			fn: func(context.Context, string) ([]byte, error) {
				return nil, errors.New("target crashed")
			},
			want: CauseCrashed,
		},
		{
			name: "no browser",
			fn: func(context.Context, string) ([]byte, error) {
				return nil, render.ErrBrowserUnavailable
			},
			want: CauseUnavailable,
		},
		{
			name: "deadline",
			fn: func(ctx context.Context, _ string) ([]byte, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			want: CauseTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Timeout = 50 * time.Millisecond
			s, m := newService(t, &fakeBrowser{fn: tt.fn}, cfg)

			out, err := s.PNG(context.Background(), document.Sample(now))
			require.Nil(t, out)
			requireCause(t, err, tt.want)
			require.Equal(t, 1.0, testutil.ToFloat64(m.ExportFailures.WithLabelValues(string(tt.want))))
		})
	}
}

func TestServiceBreakerOpensAfterRepeatedFailures(t *testing.T) {
	b := &fakeBrowser{fn: func(context.Context, string) ([]byte, error) {
		return nil, errors.New("boom")
	}}
	cfg := DefaultConfig()
	cfg.Breaker = circuitbreaker.DefaultConfig("test-renderer")
	cfg.Breaker.FailureThreshold = 2
	cfg.Breaker.Timeout = time.Minute
	s, m := newService(t, b, cfg)

	for i := 0; i < 2; i++ {
		_, err := s.PDF(context.Background(), document.Sample(now))
		requireCause(t, err, CauseCrashed)
	}

	_, err := s.PDF(context.Background(), document.Sample(now))
	requireCause(t, err, CauseUnavailable)
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	require.Equal(t, int32(2), b.calls.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("test-renderer")))
	require.EqualError(t, s.Check(context.Background()), "renderer breaker open")
}

func TestServiceBoundsConcurrency(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	b := &fakeBrowser{fn: func(context.Context, string) ([]byte, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return []byte("%PDF-"), nil
	}}
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2
	s, _ := newService(t, b, cfg)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PDF(context.Background(), document.Sample(now))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, peak, 2)
	require.Equal(t, int32(8), b.calls.Load())
}

func TestPrimitiveExporter(t *testing.T) {
	e := NewPrimitiveExporter(nil)

	out, err := e.PDF(context.Background(), document.Sample(now))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	_, err = e.PNG(context.Background(), document.Sample(now))
	requireCause(t, err, CauseUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.PDF(ctx, document.Sample(now))
	requireCause(t, err, CauseTimeout)
}

func TestPrimitiveExporterNotesAndAccents(t *testing.T) {
	doc := document.Sample(now)
	doc.PatientDetails.Name = "José Ñúñez"
	doc.DoctorDetails.FullName = "Đorđe Петровић"
	doc.AdditionalNotes = "Контроль через неделю\nÉviter le soleil"

	out, err := NewPrimitiveExporter(nil).PDF(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestPaintRecoversFromPainterPanic(t *testing.T) {
	out, err := paint(document.Sample(now), func(io.Writer, render.Page) error {
		panic("index out of range [65533] with length 256")
	})
	require.Nil(t, out)
	requireCause(t, err, CauseCrashed)
	require.Contains(t, err.Error(), "index out of range")
}

func TestClient(t *testing.T) {
	var received document.Document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != GeneratePDFPath || json.NewDecoder(r.Body).Decode(&received) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch received.PatientDetails.Name {
		case "fail":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(ErrorBody{Error: "Failed to generate PDF", Message: "chrome exited"})
		case "html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		case "slow":
			time.Sleep(200 * time.Millisecond)
		default:
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 remote"))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	doc := document.Sample(now)

	out, err := c.PDF(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 remote"), out)
	require.Equal(t, doc.DoctorDetails.FullName, received.DoctorDetails.FullName)
	require.Len(t, received.Medications, 3)

	doc.PatientDetails.Name = "fail"
	_, err = c.PDF(context.Background(), doc)
	requireCause(t, err, CauseCrashed)
	rf, _ := AsRenderFailure(err)
	require.Equal(t, "chrome exited", rf.Message)

	doc.PatientDetails.Name = "html"
	_, err = c.PDF(context.Background(), doc)
	requireCause(t, err, CauseCrashed)

	doc.PatientDetails.Name = "slow"
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.PDF(ctx, doc)
	requireCause(t, err, CauseTimeout)

	_, err = c.PNG(context.Background(), doc)
	requireCause(t, err, CauseUnavailable)
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, nil, nil)
	_, err := c.PDF(context.Background(), document.Sample(now))
	requireCause(t, err, CauseUnreachable)
}

func TestNewLocalFallsBackWithoutBrowser(t *testing.T) {
	exp, stop, err := NewLocal(render.ChromeConfig{ExecPath: "/nonexistent/chrome"}, DefaultConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, stop())
	require.IsType(t, &PrimitiveExporter{}, exp)

	out, err := exp.PDF(context.Background(), document.Sample(now))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

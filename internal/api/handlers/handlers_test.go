package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-rxpad/internal/collection"
	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/draft"
	"github.com/drfirst/go-rxpad/internal/export"
	"github.com/drfirst/go-rxpad/internal/observability/metrics"
	"github.com/drfirst/go-rxpad/internal/profile"
	"github.com/drfirst/go-rxpad/internal/storage"
	"github.com/drfirst/go-rxpad/internal/wizard"
)

type fakeExporter struct {
	mu   sync.Mutex
	docs []document.Document
	out  []byte
	err  error
}

func (e *fakeExporter) PDF(_ context.Context, doc document.Document) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = append(e.docs, doc)
	return e.out, e.err
}

func (e *fakeExporter) PNG(ctx context.Context, doc document.Document) ([]byte, error) {
	return e.PDF(ctx, doc)
}

func (e *fakeExporter) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out, e.err = nil, err
}

func (e *fakeExporter) last() document.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docs[len(e.docs)-1]
}

type testAPI struct {
	server    *httptest.Server
	coll      *collection.SlotCollection
	browser   *fakeExporter
	primitive *fakeExporter
	metrics   *metrics.Metrics
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	slot := storage.NewMemorySlot()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	coll := collection.NewSlotCollection(slot, nil)
	profiles := profile.NewStore(slot)
	wiz := wizard.New(draft.NewStore(slot, nil), coll, wizard.WithProfile(profiles), wizard.WithMetrics(m))
	_, err := wiz.Start(context.Background())
	require.NoError(t, err)

	api := &testAPI{
		coll:      coll,
		browser:   &fakeExporter{out: []byte("%PDF-browser")},
		primitive: &fakeExporter{out: []byte("%PDF-primitive")},
		metrics:   m,
	}
	exporters := Exporters{Browser: api.browser, Primitive: api.primitive}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", Catalog)
		r.Mount("/profile", NewProfileHandler(profiles, nil).Routes())
		r.Mount("/draft", NewDraftHandler(wiz, nil).Routes())
		r.Mount("/prescriptions", NewPrescriptionHandler(coll, exporters, m, nil).Routes())
		r.Mount("/sample", NewSampleHandler(exporters, nil).Routes())
	})
	api.server = httptest.NewServer(r)
	t.Cleanup(api.server.Close)
	return api
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (a *testAPI) fillValidDraft(t *testing.T) {
	t.Helper()
	resp, _ := a.do(t, http.MethodPatch, "/api/v1/draft/doctor",
		`{"fullName":"Dr. Jane Doe","specialty":"Cardiologist","licenseNumber":"MD-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.do(t, http.MethodPatch, "/api/v1/draft/patient", `{"name":"John Smith","age":45}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.do(t, http.MethodPost, "/api/v1/draft/medications", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.do(t, http.MethodPatch, "/api/v1/draft/medications/0",
		`{"medicationName":"Amoxicillin","dosage":"500mg","frequency":"Twice daily"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (a *testAPI) finalize(t *testing.T) prescription.Prescription {
	t.Helper()
	a.fillValidDraft(t)
	resp, body := a.do(t, http.MethodPost, "/api/v1/draft/finalize", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var p prescription.Prescription
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func TestDraftWizardFlow(t *testing.T) {
	api := newTestAPI(t)
	api.fillValidDraft(t)

	for want := 2; want <= 3; want++ {
		resp, body := api.do(t, http.MethodPost, "/api/v1/draft/next", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var s wizard.State
		require.NoError(t, json.Unmarshal(body, &s))
		require.EqualValues(t, want, s.Step)
	}

	resp, body := api.do(t, http.MethodPost, "/api/v1/draft/back", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s wizard.State
	require.NoError(t, json.Unmarshal(body, &s))
	require.EqualValues(t, 2, s.Step)
	require.Equal(t, "John Smith", s.Draft.PatientDetails.Name)
	require.Len(t, s.Draft.Medications, 1)

	resp, body = api.do(t, http.MethodGet, "/api/v1/draft/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	require.Contains(t, string(body), "Amoxicillin")
	require.Contains(t, string(body), `class="watermark"`)

	p := api.finalize(t)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "John Smith", p.PatientDetails.Name)

	resp, body = api.do(t, http.MethodGet, "/api/v1/draft/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "Amoxicillin")
	require.NotContains(t, string(body), `class="watermark"`)

	resp, body = api.do(t, http.MethodGet, "/api/v1/draft", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &s))
	require.True(t, s.Finalized)
	require.NotNil(t, s.Result)
	require.Equal(t, p.ID, s.Result.ID)
}

func TestDraftNextRejectsIncompleteStep(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/api/v1/draft/next", "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	require.Equal(t, "validation failed", e.Error)
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	require.Contains(t, fields, "doctorDetails.fullName")

	_, body = api.do(t, http.MethodGet, "/api/v1/draft", "")
	var s wizard.State
	require.NoError(t, json.Unmarshal(body, &s))
	require.EqualValues(t, 1, s.Step)
}

func TestDraftFinalizeRejectsInvalidFollowUpDate(t *testing.T) {
	api := newTestAPI(t)
	api.fillValidDraft(t)

	resp, _ := api.do(t, http.MethodPatch, "/api/v1/draft/content", `{"followUpDate":"2024-02-30"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/api/v1/draft/finalize", "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	require.Len(t, e.Violations, 1)
	require.Equal(t, "followUpDate", e.Violations[0].Field)

	resp, _ = api.do(t, http.MethodPatch, "/api/v1/draft/content", `{"followUpDate":"2024-02-29"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = api.do(t, http.MethodPost, "/api/v1/draft/finalize", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
}

func TestDraftFinalizedConflictsUntilRestart(t *testing.T) {
	api := newTestAPI(t)
	api.finalize(t)

	resp, _ := api.do(t, http.MethodPost, "/api/v1/draft/finalize", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, _ = api.do(t, http.MethodPatch, "/api/v1/draft/patient", `{"name":"Other"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/api/v1/draft/restart", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s wizard.State
	require.NoError(t, json.Unmarshal(body, &s))
	require.False(t, s.Finalized)
	require.Empty(t, s.Draft.PatientDetails.Name)
}

func TestDraftBadRequests(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodPatch, "/api/v1/draft/medications/abc", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = api.do(t, http.MethodDelete, "/api/v1/draft/custom-fields/-1", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = api.do(t, http.MethodPatch, "/api/v1/draft/doctor", `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// out-of-range index leaves the draft unchanged
	resp, body := api.do(t, http.MethodDelete, "/api/v1/draft/medications/5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s wizard.State
	require.NoError(t, json.Unmarshal(body, &s))
	require.Empty(t, s.Draft.Medications)
}

func TestPrescriptionListSearchAndStats(t *testing.T) {
	api := newTestAPI(t)
	p := api.finalize(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/prescriptions?search=smith", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, p.ID, list.Prescriptions[0].ID)

	_, body = api.do(t, http.MethodGet, "/api/v1/prescriptions?search=nobody", "")
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 0, list.Count)
	require.NotNil(t, list.Prescriptions)

	resp, body = api.do(t, http.MethodGet, "/api/v1/prescriptions/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats collection.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.ThisMonth)
	require.Equal(t, 1, stats.Completed)
}

func TestPrescriptionGetAndDelete(t *testing.T) {
	api := newTestAPI(t)
	p := api.finalize(t)

	resp, _ := api.do(t, http.MethodGet, "/api/v1/prescriptions/"+p.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodDelete, "/api/v1/prescriptions/"+p.ID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 1.0, testutil.ToFloat64(api.metrics.PrescriptionsDeleted))

	resp, body := api.do(t, http.MethodGet, "/api/v1/prescriptions/"+p.ID, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.JSONEq(t, `{"error":"prescription not found"}`, string(body))

	resp, _ = api.do(t, http.MethodDelete, "/api/v1/prescriptions/"+p.ID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 1.0, testutil.ToFloat64(api.metrics.PrescriptionsDeleted))
}

func TestPrescriptionExports(t *testing.T) {
	api := newTestAPI(t)
	p := api.finalize(t)
	base := "/api/v1/prescriptions/" + p.ID

	resp, body := api.do(t, http.MethodGet, base+"/pdf", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "prescription-"+p.ID+".pdf")
	require.Equal(t, "%PDF-browser", string(body))
	require.Equal(t, p.CreatedAt.Unix(), api.browser.last().IssuedAt.Unix())

	_, body = api.do(t, http.MethodGet, base+"/pdf?engine=primitive", "")
	require.Equal(t, "%PDF-primitive", string(body))

	resp, _ = api.do(t, http.MethodGet, base+"/pdf?engine=bogus", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, base+"/png", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, body = api.do(t, http.MethodGet, base+"/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "John Smith")

	resp, _ = api.do(t, http.MethodGet, "/api/v1/prescriptions/missing/pdf", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRenderFailureStatus(t *testing.T) {
	cases := []struct {
		cause export.Cause
		want  int
	}{
		{export.CauseUnavailable, http.StatusServiceUnavailable},
		{export.CauseTimeout, http.StatusGatewayTimeout},
		{export.CauseCrashed, http.StatusBadGateway},
		{export.CauseUnreachable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.cause), func(t *testing.T) {
			api := newTestAPI(t)
			api.browser.fail(&export.RenderFailure{Cause: tc.cause, Message: "render failed here"})

			resp, body := api.do(t, http.MethodGet, "/api/v1/sample/pdf", "")
			require.Equal(t, tc.want, resp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			require.Equal(t, tc.cause, e.Cause)
			require.Equal(t, "render failed here", e.Message)
		})
	}
}

func TestSampleEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/sample/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "SAMPLE")

	resp, _ = api.do(t, http.MethodGet, "/api/v1/sample/pdf", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "SAMPLE", api.browser.last().Watermark)
}

func TestProfileAndCatalog(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/v1/profile", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p profile.Profile
	require.NoError(t, json.Unmarshal(body, &p))
	require.Empty(t, p.FullName)

	resp, _ = api.do(t, http.MethodPut, "/api/v1/profile", `{"fullName":"Dr. Ada","qualification":"MBBS"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = api.do(t, http.MethodGet, "/api/v1/profile", "")
	require.NoError(t, json.Unmarshal(body, &p))
	require.Equal(t, "MBBS", p.Qualification)

	// a restarted draft picks up the saved profile
	_, body = api.do(t, http.MethodPost, "/api/v1/draft/restart", "")
	var s wizard.State
	require.NoError(t, json.Unmarshal(body, &s))
	require.Equal(t, "Dr. Ada", s.Draft.DoctorDetails.FullName)

	resp, body = api.do(t, http.MethodGet, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "Cardiologist")
}

func TestPDFServer(t *testing.T) {
	exp := &fakeExporter{out: []byte("%PDF-1.4")}
	srv := httptest.NewServer(NewPDFServerHandler(exp, nil).Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.JSONEq(t, `{"status":"ok","message":"PDF service is running"}`, string(body))

	resp, err = http.Post(srv.URL+export.GeneratePDFPath, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	require.Equal(t, "SAMPLE", exp.last().Watermark)
	require.Len(t, exp.last().Medications, 3)

	doc := `{"patientDetails":{"name":"Ann"},"medications":[{"medicationName":"A","dosage":"1","frequency":"Daily"},{"medicationName":""}]}`
	resp, err = http.Post(srv.URL+export.GeneratePDFPath, "application/json", strings.NewReader(doc))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := exp.last()
	require.Equal(t, "Ann", got.PatientDetails.Name)
	require.Len(t, got.Medications, 1)
	require.NotNil(t, got.LabTests)

	exp.fail(errors.New("browser exploded"))
	resp, err = http.Post(srv.URL+export.GeneratePDFPath, "application/json", nil)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"error":"Failed to generate PDF","message":"browser exploded"}`, string(body))
}

func TestPDFServerRejectsOversizedBody(t *testing.T) {
	exp := &fakeExporter{out: []byte("%PDF-1.4")}
	h := NewPDFServerHandler(exp, nil)

	notes := strings.Repeat("x", maxDocumentBytes)
	doc := `{"patientDetails":{"name":"Ann"},"additionalNotes":"` + notes + `"}`
	rec := httptest.NewRecorder()
	h.GeneratePDF(rec, httptest.NewRequest(http.MethodPost, export.GeneratePDFPath, strings.NewReader(doc)))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.JSONEq(t, `{"error":"Failed to generate PDF","message":"request body exceeds the 1048576 byte limit"}`, rec.Body.String())
	require.Empty(t, exp.docs)

	rec = httptest.NewRecorder()
	h.GeneratePDF(rec, httptest.NewRequest(http.MethodPost, export.GeneratePDFPath, strings.NewReader(`{"patientDetails":{"name":"Ann"}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Ann", exp.last().PatientDetails.Name)
}

func TestReadyReportsFailedChecks(t *testing.T) {
	h := NewHealthHandler("rxpad-api", map[string]Check{
		"storage": func(context.Context) error { return nil },
		"browser": func(context.Context) error { return errors.New("not found") },
	})

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"not ready","checks":{"browser":"not found"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

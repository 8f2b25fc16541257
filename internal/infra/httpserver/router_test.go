package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/shivanishrees/malscan/internal/application"
	appanalysis "github.com/shivanishrees/malscan/internal/application/analysis"
	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
	"github.com/shivanishrees/malscan/internal/domain/scoring"
	"github.com/shivanishrees/malscan/internal/infra/httpserver"
	"github.com/shivanishrees/malscan/internal/infra/quarantine"
	"github.com/shivanishrees/malscan/internal/infra/reconstruct"
	"github.com/shivanishrees/malscan/internal/infra/registry"
	"github.com/shivanishrees/malscan/internal/infra/storage/records"
)

type fastModule struct{ score int }

func (m *fastModule) Name() string { return "static_analysis" }

func (m *fastModule) Execute(_ context.Context, _ domain.ModuleInput) domain.ModuleOutput {
	score := m.score
	return domain.ModuleOutput{
		ModuleName: "static_analysis",
		Status:     domain.ModuleCompleted,
		RiskScore:  &score,
		Confidence: 0.9,
		DurationMS: 1,
	}
}

func testServer(t *testing.T) (*httptest.Server, *quarantine.Store) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	reg := registry.New()
	require.NoError(t, reg.Register(&fastModule{score: 10}))

	cfg := scoring.Default()
	cfg.Modules = map[string]scoring.ModuleConfig{
		"static_analysis": {Weight: 1.0, Critical: true, TimeoutMS: 1000, Enabled: true},
	}

	svc := &appanalysis.Service{
		Repo:     records.NewMemoryStore(time.Hour),
		Registry: reg,
		Scoring:  cfg,
		Clock:    application.SystemClock{},
		Log:      log,
	}

	dir := t.TempDir()
	q, err := quarantine.NewStore(dir+"/q", nil, log)
	require.NoError(t, err)
	rb, err := reconstruct.NewRebuilder(dir+"/recon", log)
	require.NoError(t, err)

	handler := httpserver.NewRouter(svc, q, rb, dir, nil, log)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, q
}

func postMultipart(t *testing.T, url, path, fieldFile string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fieldFile)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func uploadRequest(t *testing.T, url, fieldFile, content string) *http.Response {
	t.Helper()
	return postMultipart(t, url, "/v1/analyses", fieldFile, []byte(content))
}

func TestUploadInitiatesAnalysis(t *testing.T) {
	srv, q := testServer(t)

	resp := uploadRequest(t, srv.URL, "sample.pdf", "not really a pdf")
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		FileHash string `json:"file_hash"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.ID)
	require.Equal(t, string(domain.StatusPending), body.Status)
	require.Len(t, body.FileHash, 64)

	// Original is quarantined under its hash.
	require.FileExists(t, q.Path(body.FileHash))

	// Poll until the verdict lands.
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/v1/analyses/" + body.ID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var rec domain.AnalysisRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			return false
		}
		return rec.Status == domain.StatusCompleted && rec.Verdict == domain.VerdictSafe
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUploadRejectsMissingFilePart(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/v1/analyses", "multipart/form-data; boundary=x", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInitiateByHashValidation(t *testing.T) {
	srv, _ := testServer(t)

	payload := `{"file_hash":"zz","file_name":"a.pdf","file_size":10,"file_type":"pdf"}`
	resp, err := http.Post(srv.URL+"/v1/analyses/hash", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body["error"], "file_hash")
}

func TestInitiateByHashAccepted(t *testing.T) {
	srv, _ := testServer(t)

	payload := fmt.Sprintf(`{"file_hash":%q,"file_name":"a.pdf","file_size":10,"file_type":"pdf"}`,
		"aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899")
	resp, err := http.Post(srv.URL+"/v1/analyses/hash", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestStatusNotFound(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/v1/analyses/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestModulesIntrospection(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/v1/modules")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Modules []string `json:"modules"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, []string{"static_analysis"}, body.Modules)
}

func TestSecureDeleteEndpoint(t *testing.T) {
	srv, q := testServer(t)

	resp := uploadRequest(t, srv.URL, "delete-me.pdf", "to be destroyed")
	var body struct {
		FileHash string `json:"file_hash"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/quarantine/"+body.FileHash, nil)
	require.NoError(t, err)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dresp.Body.Close()
	require.Equal(t, http.StatusOK, dresp.StatusCode)
	require.NoFileExists(t, q.Path(body.FileHash))

	// A second delete finds nothing.
	dresp2, err := http.DefaultClient.Do(req.Clone(req.Context()))
	require.NoError(t, err)
	defer dresp2.Body.Close()
	require.Equal(t, http.StatusNotFound, dresp2.StatusCode)
}

func TestReconstructReturnsSafeCopy(t *testing.T) {
	srv, q := testServer(t)

	resp := postMultipart(t, srv.URL, "/v1/reconstruct", "readme.txt", []byte("plain content"))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		SafeFile string `json:"safe_file"`
		FileHash string `json:"file_hash"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.FileHash, 64)

	content, err := os.ReadFile(body.SafeFile)
	require.NoError(t, err)
	require.Contains(t, string(content), "plain content")
	require.True(t, strings.HasPrefix(string(content), "This is a reconstructed safe file"))

	// The original stays quarantined under its hash.
	require.FileExists(t, q.Path(body.FileHash))
}

func TestReconstructRejectsUnsupportedType(t *testing.T) {
	srv, _ := testServer(t)

	resp := postMultipart(t, srv.URL, "/v1/reconstruct", "tool.exe", []byte{0x4d, 0x5a})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLatestListsRecords(t *testing.T) {
	srv, _ := testServer(t)

	resp := uploadRequest(t, srv.URL, "one.pdf", "first file")
	resp.Body.Close()

	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/v1/analyses/latest?limit=10")
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var list []domain.AnalysisRecord
		if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
			return false
		}
		return len(list) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/orchestrify/internal/audio"
	"github.com/satindergrewal/orchestrify/internal/backend"
	"github.com/satindergrewal/orchestrify/internal/sequence/sequencetest"
	"github.com/satindergrewal/orchestrify/internal/session"
	"github.com/satindergrewal/orchestrify/internal/submit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router    *gin.Engine
	sess      *session.Session
	generated []byte
	genStatus int
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		generated: sequencetest.Build([]sequencetest.NoteSpec{{Key: 67, Start: 0, Duration: 0.5}}),
		genStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":["lakh","jsb"]}`))
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(env.genStatus)
		if env.genStatus != http.StatusOK {
			w.Write([]byte(`{"detail":"model not found"}`))
			return
		}
		w.Write(env.generated)
	})
	mux.HandleFunc("/pianoroll", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>roll</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env.sess = session.New(backend.NewClient(srv.URL, 5*time.Second), audio.NewEngine(0.2), session.Options{
		Limits:           submit.Limits{MaxBytes: submit.DefaultMaxBytes},
		NotifyTTL:        time.Minute,
		ClearOnRetrigger: true,
	})
	t.Cleanup(env.sess.Close)
	require.NoError(t, env.sess.Mount(t.Context()))

	env.router = SetupRouter(env.sess, Streams{})
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) json(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, StateResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := e.do(req)

	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (e *testEnv) upload(t *testing.T, name string, data []byte) (*httptest.ResponseRecorder, StateResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	fw.Write(data)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/form/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(req)

	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (e *testEnv) fill(t *testing.T) {
	t.Helper()
	seed := sequencetest.Build([]sequencetest.NoteSpec{{Key: 60, Start: 0, Duration: 1}})
	rec, _ := e.json(t, http.MethodPut, "/api/form", `{"density":"0.6","model":"lakh"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp := e.upload(t, "seed.mid", seed)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.State.CanSubmit, "errors: %v", resp.State.Errors)
}

func TestIndexAndHealth(t *testing.T) {
	env := newEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "PIANOROLL")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","catalog":"loaded","models":2}`, rec.Body.String())
}

func TestFormValidationErrors(t *testing.T) {
	env := newEnv(t)

	_, resp := env.json(t, http.MethodPut, "/api/form", `{"density":"1.5"}`)
	assert.Equal(t, "Density must not exceed 1", resp.State.Errors[submit.FieldDensity])
	assert.False(t, resp.State.CanSubmit)

	_, resp = env.upload(t, "notes.txt", []byte("hello"))
	assert.Equal(t, "File must be a MIDI file (.mid, .midi)", resp.State.Errors[submit.FieldFile])

	rec, resp := env.json(t, http.MethodPost, "/api/generate", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Model selection is required", resp.State.Errors[submit.FieldModel])
	assert.Nil(t, resp.State.Artifact)
}

func TestOversizedUploadReportsSize(t *testing.T) {
	env := newEnv(t)

	big := make([]byte, submit.DefaultMaxBytes+10)
	copy(big, "MThd")
	rec, resp := env.upload(t, "big.mid", big)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "File size is too large, maximum size is 50 kB", resp.State.Errors[submit.FieldFile])
	assert.Equal(t, int64(len(big)), resp.State.Form.FileSize)
}

func TestGenerateDownloadPlayRender(t *testing.T) {
	env := newEnv(t)
	env.fill(t)

	rec, resp := env.json(t, http.MethodPost, "/api/generate", "")
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)
	require.NotNil(t, resp.State.Artifact)
	assert.Equal(t, "idle", resp.State.State)
	assert.Equal(t, session.FormView{}, resp.State.Form)

	// download
	rec = env.do(httptest.NewRequest(http.MethodGet, resp.State.Artifact.DownloadURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, env.generated, rec.Body.Bytes())
	assert.Equal(t, `attachment; filename="generated.mid"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "audio/midi", rec.Header().Get("Content-Type"))

	// inline view has no attachment header
	rec = env.do(httptest.NewRequest(http.MethodGet, resp.State.Artifact.URL, nil))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))

	rec, resp = env.json(t, http.MethodPost, "/api/play", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Notes)
	assert.Equal(t, 1, resp.State.Playback.Plays)

	rec, resp = env.json(t, http.MethodPost, "/api/pianoroll", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, resp.State.PianoRollURL)

	rec = env.do(httptest.NewRequest(http.MethodGet, resp.State.PianoRollURL, nil))
	assert.Equal(t, "<html>roll</html>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestSupersededArtifactIsGone(t *testing.T) {
	env := newEnv(t)
	env.fill(t)
	_, first := env.json(t, http.MethodPost, "/api/generate", "")
	require.NotNil(t, first.State.Artifact)

	env.fill(t)
	_, second := env.json(t, http.MethodPost, "/api/generate", "")
	require.NotNil(t, second.State.Artifact)

	rec := env.do(httptest.NewRequest(http.MethodGet, first.State.Artifact.URL, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodGet, second.State.Artifact.URL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateServiceErrorNotifies(t *testing.T) {
	env := newEnv(t)
	env.genStatus = http.StatusInternalServerError
	env.fill(t)

	rec, resp := env.json(t, http.MethodPost, "/api/generate", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Nil(t, resp.State.Artifact)
	require.Len(t, resp.State.Notifications, 1)
	n := resp.State.Notifications[0]
	assert.Equal(t, "Error generating file: model not found", n.Message)
	assert.Equal(t, "top-center", n.Placement)

	// click to dismiss
	rec, resp = env.json(t, http.MethodPost, "/api/notifications/"+jsonID(n.ID)+"/dismiss", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.State.Notifications)

	rec, _ = env.json(t, http.MethodPost, "/api/notifications/"+jsonID(n.ID)+"/dismiss", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionsWithoutArtifact(t *testing.T) {
	env := newEnv(t)

	rec, resp := env.json(t, http.MethodPost, "/api/play", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, session.ErrNoArtifact.Error(), resp.Error)

	rec, _ = env.json(t, http.MethodPost, "/api/pianoroll", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/blob/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.json(t, http.MethodPost, "/api/notifications/abc/dismiss", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearFile(t *testing.T) {
	env := newEnv(t)
	env.fill(t)

	rec, resp := env.json(t, http.MethodDelete, "/api/form/file", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.State.Form.FileName)
	assert.Equal(t, "File is required", resp.State.Errors[submit.FieldFile])
	assert.False(t, resp.State.CanSubmit)
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestActionsAfterSessionClose(t *testing.T) {
	env := newEnv(t)
	env.fill(t)
	env.sess.Close()

	for _, path := range []string{"/api/generate", "/api/play", "/api/pianoroll"} {
		rec, resp := env.json(t, http.MethodPost, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, session.ErrClosed.Error(), resp.Error, path)
	}
}

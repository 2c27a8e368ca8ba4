package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/scimark/internal/apperr"
	"github.com/starford/scimark/internal/preprocessor"
	"github.com/starford/scimark/internal/render"
	"github.com/starford/scimark/internal/service"
	"github.com/starford/scimark/internal/storage"
	"github.com/starford/scimark/internal/testutil"
)

type testEnv struct {
	svc     *service.Service
	router  http.Handler
	assets  http.Handler
	src     storage.Provider
	sources string
	runner  *testutil.FakeRunner
}

// newTestEnv sets up a temp book, fragment cache, service and router.
// An empty token means auth is disabled.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, token, nil)
}

func newTestEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) *testEnv {
	t.Helper()

	cache, runner := testutil.TestCache(t)
	_, src := testutil.TestDir(t)
	_, out := testutil.TestDir(t)
	sourcesDir, sources := testutil.TestDir(t)

	engine := preprocessor.New(cache, preprocessor.Config{Assets: sourcesDir})
	svc, err := service.New(engine, cache, src, out)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return &testEnv{
		svc:     svc,
		router:  NewRouter(svc, token != "", token, sseHandler, sources),
		assets:  NewAssetRouter(svc),
		src:     src,
		sources: sourcesDir,
		runner:  runner,
	}
}

func (e *testEnv) writeBook(t *testing.T, content string) {
	t.Helper()
	_ = e.src.Write("book.yaml", []byte("chapters:\n  - name: One\n    file: one.md\n"))
	_ = e.src.Write("src/one.md", []byte(content))
}

func do(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBuildAndStatus(t *testing.T) {
	e := newTestEnv(t, "")

	w := do(e.router, http.MethodGet, "/status", nil)
	var st BuildStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if w.Code != http.StatusOK || st.State != service.StateIdle {
		t.Fatalf("status before build = %d %+v", w.Code, st)
	}

	e.writeBook(t, "$$equation,pyth\na^2+b^2=c^2\n$$\nSee $ref:equ:pyth$.")
	w = do(e.router, http.MethodPost, "/build", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("build = %d, body = %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.State != service.StateOK || st.References != 1 || st.Fragments != 1 {
		t.Errorf("status = %+v", st)
	}

	w = do(e.router, http.MethodGet, "/references/equ/pyth", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"display":"1.1"`) {
		t.Errorf("reference = %d %s", w.Code, w.Body.String())
	}
}

func TestBuild_DocumentErrorIs422(t *testing.T) {
	e := newTestEnv(t, "")
	e.writeBook(t, "odd $ count")

	w := do(e.router, http.MethodPost, "/build", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("build = %d, want 422", w.Code)
	}
	var st BuildStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.State != service.StateFailed || st.Code != apperr.CodeDelimiter {
		t.Errorf("status = %+v", st)
	}
}

func TestBuild_MissingBookIs500(t *testing.T) {
	e := newTestEnv(t, "")
	w := do(e.router, http.MethodPost, "/build", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("build without book.yaml = %d, want 500", w.Code)
	}
}

func TestReferences_ListAndSearch(t *testing.T) {
	e := newTestEnv(t, "")
	e.writeBook(t, "$$latex,rig,Test rig\nx\n$$\n$$equation,ohm\nU=RI\n$$")
	if w := do(e.router, http.MethodPost, "/build", nil); w.Code != http.StatusOK {
		t.Fatalf("build = %d", w.Code)
	}

	var resp ReferenceListResponse
	w := do(e.router, http.MethodGet, "/references?ns=fig", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.References) != 1 || resp.References[0].Display != "Figure 1.1" {
		t.Errorf("fig references = %+v", resp.References)
	}

	w = do(e.router, http.MethodGet, "/references?q=oh", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.References) != 1 || resp.References[0].Label != "ohm" {
		t.Errorf("search = %+v", resp.References)
	}

	if w := do(e.router, http.MethodGet, "/references?ns=tab", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown namespace = %d, want 422", w.Code)
	}
	if w := do(e.router, http.MethodGet, "/references/fig/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown label = %d, want 404", w.Code)
	}
}

func TestRenderAndServeAsset(t *testing.T) {
	e := newTestEnv(t, "")

	body, _ := json.Marshal(RenderRequest{Kind: "equation", Body: "x^2"})
	w := do(e.router, http.MethodPost, "/render", body)
	if w.Code != http.StatusOK {
		t.Fatalf("render = %d, body = %s", w.Code, w.Body.String())
	}
	var sn Snippet
	_ = json.Unmarshal(w.Body.Bytes(), &sn)
	if !strings.HasSuffix(sn.File, ".svg") {
		t.Fatalf("snippet = %+v", sn)
	}

	w = do(e.assets, http.MethodGet, "/"+sn.File, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("asset = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("content type = %q", ct)
	}

	var list FragmentListResponse
	w = do(e.router, http.MethodGet, "/fragments", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Fragments[0].Artifact != sn.File {
		t.Errorf("fragments = %+v", list)
	}
}

func TestRender_Errors(t *testing.T) {
	e := newTestEnv(t, "")
	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing body", `{"kind":"equation"}`, http.StatusBadRequest},
		{"unknown kind", `{"kind":"png","body":"x"}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if w := do(e.router, http.MethodPost, "/render", []byte(c.body)); w.Code != c.want {
				t.Errorf("status = %d, want %d", w.Code, c.want)
			}
		})
	}
}

func TestRender_MalformedMathIs422(t *testing.T) {
	e := newTestEnv(t, "")
	e.runner.Fail = map[string]render.Output{
		"latex": {Stdout: []byte("! Missing $ inserted.\nl.4 \\frac{a\n"), ExitCode: 1},
	}
	w := do(e.router, http.MethodPost, "/render", []byte(`{"kind":"equation","body":"\\frac{a"}`))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("render = %d, want 422", w.Code)
	}
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != apperr.CodeMalformedMath {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestFragments_UnknownKind(t *testing.T) {
	e := newTestEnv(t, "")
	if w := do(e.router, http.MethodGet, "/fragments?kind=png", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind = %d, want 400", w.Code)
	}
}

func TestServeAsset_NotFoundAndTraversal(t *testing.T) {
	e := newTestEnv(t, "")
	for _, name := range []string{"nope.svg", "../secret.md", "..%2F..%2Fetc%2Fpasswd", ".hidden"} {
		w := do(e.assets, http.MethodGet, "/"+name, nil)
		if w.Code == http.StatusOK {
			t.Errorf("asset %q should not return 200", name)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	if w := do(e.router, http.MethodGet, "/status", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_AssetsArePublic(t *testing.T) {
	e := newTestEnv(t, "secret123")
	sn, err := e.svc.RenderSnippet(context.Background(), "equation", "y", 0)
	if err != nil {
		t.Fatal(err)
	}
	if w := do(e.assets, http.MethodGet, "/"+sn.File, nil); w.Code != http.StatusOK {
		t.Errorf("asset without token = %d, want 200", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := newTestEnvWithSSE(t, "secret", blockingSSE())
	if w := do(e.router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := newTestEnvWithSSE(t, "tok", blockingSSE())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// blockingSSE writes headers and blocks until the request context is done.
func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

// Source upload tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadSource_FeedsEmptyBlock(t *testing.T) {
	e := newTestEnv(t, "")

	w := uploadFile(t, e.router, "setup.tex", []byte("\\documentclass{standalone}\n"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Header != "$$latex,setup,setup$$" {
		t.Errorf("header = %q", resp.Header)
	}
	if _, err := os.Stat(filepath.Join(e.sources, "setup.tex")); err != nil {
		t.Fatalf("file not on disk: %v", err)
	}

	e.writeBook(t, resp.Header+"\nSee $ref:fig:setup$.")
	w = do(e.router, http.MethodPost, "/build", nil)
	var st BuildStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if w.Code != http.StatusOK || st.Fragments != 1 {
		t.Errorf("build = %d %+v", w.Code, st)
	}
}

func TestUploadSource_Rejects(t *testing.T) {
	e := newTestEnv(t, "")
	for _, name := range []string{"image.png", ".hidden.tex"} {
		if w := uploadFile(t, e.router, name, []byte("x")); w.Code != http.StatusBadRequest {
			t.Errorf("upload %q = %d, want 400", name, w.Code)
		}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/sources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file field = %d, want 400", w.Code)
	}
}

func TestUploadSource_AuthProtected(t *testing.T) {
	e := newTestEnv(t, "secret")
	if w := uploadFile(t, e.router, "x.tex", []byte("data")); w.Code != http.StatusUnauthorized {
		t.Errorf("upload no auth = %d, want 401", w.Code)
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/kartoza/home-energy-assistant/internal/app"
	"github.com/kartoza/home-energy-assistant/internal/chat"
	"github.com/kartoza/home-energy-assistant/internal/config"
	"github.com/kartoza/home-energy-assistant/internal/llm"
	"github.com/kartoza/home-energy-assistant/internal/ocr"
	"github.com/kartoza/home-energy-assistant/internal/prompt"
)

const energyCSV = `housearea,ave_monthly_income,num_people,num_children,num_ac_units,num_appliances,season,recommended_action
80,2100,2,0,0,6,summer,use_fans
95,2300,2,1,1,7,winter,use_fans
110,2500,3,1,1,8,summer,use_fans
120,2700,3,1,0,9,winter,use_fans
200,4200,4,2,2,12,summer,install_solar
220,4500,5,2,2,13,winter,install_solar
240,4800,5,3,3,14,summer,install_solar
260,5200,6,3,3,15,winter,install_solar
`

type fakeLLM struct {
	prompts []string
	answer  string
	err     error
}

func (f *fakeLLM) Generate(ctx context.Context, p string) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.answer, f.err
}

type fakeOCR struct{ text string }

func (f fakeOCR) Extract(context.Context, []byte) (string, error) { return f.text, nil }

func (f fakeOCR) Name() string { return "fake" }

func testState(t *testing.T, csv string) *app.Context {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/energy.csv", []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Data:  config.DataConfig{Path: "/energy.csv"},
		Model: config.ModelConfig{Enabled: true, Trees: 15, MinLeaf: 1, Seed: 3},
	}
	state, err := app.Build(cfg, fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	return state
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 5000, MaxUploadMB: 1},
		Version: "test",
	}
}

func newTestRouter(t *testing.T, state *app.Context, gen *fakeLLM, ocrText string) *mux.Router {
	t.Helper()
	svc := chat.NewService(state.Summary, fakeOCR{text: ocrText}, gen, prompt.Composer{}, nil)
	h := NewHandler(svc, state, Backends{OCR: "fake", LLM: "fake"}, testConfig(), nil)
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartRequest builds a /chat request. A nil image omits the file part.
func multipartRequest(t *testing.T, fields map[string]string, filename string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if img != nil {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(img)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, testState(t, energyCSV), &fakeLLM{}, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response["status"])
	}
}

func TestInfoEndpoint(t *testing.T) {
	r := newTestRouter(t, testState(t, energyCSV), &fakeLLM{}, "")

	req := httptest.NewRequest("GET", "/info", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(w.Body).Decode(&response)

	if response["version"] != "test" {
		t.Errorf("Expected version 'test', got '%v'", response["version"])
	}
	ds, _ := response["dataset"].(map[string]interface{})
	if ds["rows"] != float64(8) {
		t.Errorf("Expected 8 rows, got %v", ds["rows"])
	}
	model, _ := response["model"].(map[string]interface{})
	if model["available"] != true {
		t.Errorf("Expected model available, got %v", model)
	}
}

func TestChatWithoutImage(t *testing.T) {
	gen := &fakeLLM{answer: "The average is about 165."}
	r := newTestRouter(t, testState(t, energyCSV), gen, "")

	req := multipartRequest(t, map[string]string{"user_question": "What is the average house area?"}, "", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeChat(t, w)
	if resp["response"] == "" {
		t.Error("Expected a non-empty response")
	}
	if !strings.Contains(resp["context"], "User: What is the average house area?") {
		t.Errorf("Context missing question: %q", resp["context"])
	}
	if resp["context"] != "\nUser: What is the average house area?\nAI: The average is about 165." {
		t.Errorf("Unexpected context %q", resp["context"])
	}
	if !strings.Contains(gen.prompts[0], "Statistical Summary:") {
		t.Error("Prompt should include the data summary")
	}
}

func TestChatURLEncoded(t *testing.T) {
	gen := &fakeLLM{answer: "Yes."}
	r := newTestRouter(t, testState(t, energyCSV), gen, "")

	form := url.Values{"user_question": {"Is solar worth it?"}, "context": {"\nUser: hi\nAI: hello"}}
	req := httptest.NewRequest("POST", "/chat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeChat(t, w)
	want := "\nUser: hi\nAI: hello\nUser: Is solar worth it?\nAI: Yes."
	if resp["context"] != want {
		t.Errorf("Expected context %q, got %q", want, resp["context"])
	}
}

func TestChatBlankImageText(t *testing.T) {
	gen := &fakeLLM{answer: "ok"}
	r := newTestRouter(t, testState(t, energyCSV), gen, "   ")

	req := multipartRequest(t, map[string]string{"user_question": "How much was my bill?"}, "bill.png", pngImage(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(gen.prompts[0], "Image Data (if available):\n"+ocr.NoTextFound+"\n") {
		t.Error("Prompt should carry the no-text sentinel")
	}
}

func TestChatEmptyFilenameIsNoImage(t *testing.T) {
	gen := &fakeLLM{answer: "ok"}
	r := newTestRouter(t, testState(t, energyCSV), gen, "from image")

	req := multipartRequest(t, map[string]string{"user_question": "q"}, "", []byte("not an image"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(gen.prompts[0], "from image") {
		t.Error("A file part without a filename should be ignored")
	}
}

func TestChatMalformedImageKeepsServing(t *testing.T) {
	gen := &fakeLLM{answer: "ok"}
	r := newTestRouter(t, testState(t, energyCSV), gen, "text")

	req := multipartRequest(t, map[string]string{"user_question": "q"}, "bill.jpg", []byte("\xff\xd8 broken jpeg"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	var errResp map[string]string
	json.NewDecoder(w.Body).Decode(&errResp)
	if !strings.Contains(errResp["error"], "invalid image") {
		t.Errorf("Unexpected error body %v", errResp)
	}

	req = multipartRequest(t, map[string]string{"user_question": "still there?"}, "", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected follow-up request to succeed, got %d", w.Code)
	}
}

func TestChatImageOverPixelLimit(t *testing.T) {
	state := testState(t, energyCSV)
	gen := &fakeLLM{answer: "ok"}
	svc := chat.NewService(state.Summary, fakeOCR{text: "text"}, gen, prompt.Composer{}, nil)
	svc.MaxPixels = 4
	h := NewHandler(svc, state, Backends{OCR: "fake", LLM: "fake"}, testConfig(), nil)
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	req := multipartRequest(t, map[string]string{"user_question": "q"}, "bill.png", pngImage(t))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "exceeds") {
		t.Errorf("Unexpected error body %s", w.Body.String())
	}
	if len(gen.prompts) != 0 {
		t.Error("Model should not be called for a rejected image")
	}
}

func TestChatDeadline(t *testing.T) {
	tests := []struct {
		write int
		want  time.Duration
	}{
		{write: 0, want: 0},
		{write: 10, want: 9 * time.Second},
		{write: 300, want: 270 * time.Second},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.Server.WriteTimeoutSec = tt.write
		h := NewHandler(nil, nil, Backends{}, cfg, nil)
		if got := h.chatDeadline(); got != tt.want {
			t.Errorf("write timeout %ds: expected deadline %s, got %s", tt.write, tt.want, got)
		}
	}
}

func TestChatUploadTooLarge(t *testing.T) {
	r := newTestRouter(t, testState(t, energyCSV), &fakeLLM{answer: "ok"}, "")

	big := bytes.Repeat([]byte{0}, 2<<20)
	req := multipartRequest(t, map[string]string{"user_question": "q"}, "huge.png", big)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
}

func TestChatUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unreachable", err: &llm.UnreachableError{Host: "ollama", Err: errors.New("refused")}, want: http.StatusBadGateway},
		{name: "timeout", err: &llm.TimeoutError{After: "1s", Attempt: 2}, want: http.StatusGatewayTimeout},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, testState(t, energyCSV), &fakeLLM{err: tt.err}, "")
			req := multipartRequest(t, map[string]string{"user_question": "q"}, "", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRecommendEndpoint(t *testing.T) {
	r := newTestRouter(t, testState(t, energyCSV), &fakeLLM{}, "")

	body := `{"housearea": 250, "num_people": 5, "num_ac_units": 3, "num_appliances": 14, "season": "summer"}`
	req := httptest.NewRequest("POST", "/recommend", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Action        string             `json:"action"`
		Probabilities map[string]float64 `json:"probabilities"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Action != "install_solar" {
		t.Errorf("Expected install_solar, got %s (%v)", resp.Action, resp.Probabilities)
	}
}

func TestRecommendInvalid(t *testing.T) {
	r := newTestRouter(t, testState(t, energyCSV), &fakeLLM{}, "")

	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: `{"housearea":`},
		{name: "missing feature", body: `{"housearea": 100}`},
		{name: "unknown season", body: `{"housearea": 100, "num_people": 2, "num_ac_units": 1, "num_appliances": 5, "season": "monsoon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/recommend", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestRecommendWithoutModel(t *testing.T) {
	noTarget := strings.ReplaceAll(energyCSV, ",recommended_action", "")
	lines := strings.Split(strings.TrimSpace(noTarget), "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = lines[i][:strings.LastIndex(lines[i], ",")]
	}
	state := testState(t, strings.Join(lines, "\n")+"\n")
	if state.HasModel() {
		t.Fatal("Model should be absent")
	}

	gen := &fakeLLM{answer: "still works"}
	r := newTestRouter(t, state, gen, "")

	req := httptest.NewRequest("POST", "/recommend", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	req = multipartRequest(t, map[string]string{"user_question": "q"}, "", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Chat should work without a model, got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if seen == "" || w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Expected generated ID in header and context, got %q / %q", w.Header().Get(RequestIDHeader), seen)
	}

	const incoming = "3f1c6a9e-8d2b-4c1e-9a7f-2b5d8e0c4a11"
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Errorf("Expected incoming ID to be kept, got %s", seen)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "<script>" {
		t.Error("Invalid incoming ID should be replaced")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("wrap: %w", ocr.ErrInvalidImage), want: http.StatusBadRequest},
		{err: fmt.Errorf("%w: boom", ocr.ErrExtraction), want: http.StatusBadGateway},
		{err: fmt.Errorf("%w: boom", chat.ErrLLM), want: http.StatusBadGateway},
		{err: app.ErrNoModel, want: http.StatusServiceUnavailable},
		{err: &http.MaxBytesError{Limit: 10}, want: http.StatusRequestEntityTooLarge},
		{err: errors.New("unexpected"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

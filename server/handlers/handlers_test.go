package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/san-kum/fencing-cv/server/analysis"
	"github.com/san-kum/fencing-cv/server/annotate"
	"github.com/san-kum/fencing-cv/server/cache"
	"github.com/san-kum/fencing-cv/server/models"
	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/pose/posetest"
	"github.com/san-kum/fencing-cv/server/processor"
	"github.com/san-kum/fencing-cv/server/render"
	"github.com/san-kum/fencing-cv/server/store"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEstimator struct {
	landmarks []pose.Landmark
	err       error
}

func (s *stubEstimator) EstimatePose(ctx context.Context, img image.Image) ([]pose.Landmark, error) {
	return s.landmarks, s.err
}

type testServer struct {
	router *gin.Engine
	store  *store.Store
}

func newTestServer(t *testing.T, estimator analysis.PoseEstimator) *testServer {
	t.Helper()

	logger := zap.NewNop()
	renderer, err := render.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	history, err := store.Open(":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { history.Close() })

	memCache := cache.NewMemoryCache(16, time.Minute, logger)
	t.Cleanup(func() { memCache.Close() })

	config := &processor.ProcessorConfig{
		MaxQueueSize:      4,
		MaxWorkers:        2,
		ProcessingTimeout: 10 * time.Second,
		JPEGQuality:       75,
	}
	p := processor.NewAnalysisProcessor(analysis.NewOrchestrator(estimator, annotate.Options{}),
		renderer, memCache, history, config, logger)
	t.Cleanup(func() { p.Shutdown() })

	analyze := NewAnalyzeHandler(p, history, pose.EnGarde, logger)
	ws := NewWebSocketHandler(p, pose.EnGarde, logger)

	router := gin.New()
	router.POST("/analyze", analyze.Analyze)
	api := router.Group("/api/v1")
	api.POST("/analyze-frame", analyze.AnalyzeFrame)
	api.GET("/analyses", analyze.ListAnalyses)
	api.GET("/analyses/:id", analyze.GetAnalysis)
	api.GET("/stats", analyze.GetStats)
	router.GET("/ws", ws.HandleWebSocket)

	return &testServer{router: router, store: history}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 80, G: 80, B: 80, A: 255}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, filename string, data []byte, poseType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if data != nil {
		part, err := writer.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	if poseType != "" {
		writer.WriteField("pose_type", poseType)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAnalyzeUpload(t *testing.T) {
	fixture := posetest.Lunge()
	fixture.BackKnee = 150
	s := newTestServer(t, &stubEstimator{landmarks: fixture.Landmarks()})

	w := s.do(multipartRequest(t, "lunge.png", pngBytes(t), "lunge"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	response := decode[models.AnalyzeResponse](t, w)
	if !response.Success || response.PoseType != "lunge" {
		t.Errorf("unexpected response %+v", response)
	}
	if len(response.Feedback) != 1 || !strings.Contains(response.Feedback[0], "back leg") {
		t.Errorf("feedback = %q", response.Feedback)
	}
	if len(response.Annotations) == 0 {
		t.Error("expected annotations")
	}

	record, err := s.store.Get(context.Background(), response.AnalysisID)
	if err != nil {
		t.Fatalf("history lookup: %v", err)
	}
	if record.PoseType != "lunge" || record.Width != 200 {
		t.Errorf("record = %+v", record)
	}
}

func TestAnalyzeUploadDefaultsToEnGarde(t *testing.T) {
	s := newTestServer(t, &stubEstimator{landmarks: posetest.EnGarde().Landmarks()})

	w := s.do(multipartRequest(t, "stance.png", pngBytes(t), ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	response := decode[models.AnalyzeResponse](t, w)
	if response.PoseType != "en_garde" || len(response.Feedback) != 0 {
		t.Errorf("pose=%s feedback=%q", response.PoseType, response.Feedback)
	}
}

func TestAnalyzeUploadRejects(t *testing.T) {
	s := newTestServer(t, &stubEstimator{landmarks: posetest.EnGarde().Landmarks()})

	tests := []struct {
		name    string
		req     *http.Request
		want    int
		message string
	}{
		{"missing file", multipartRequest(t, "", nil, "lunge"), http.StatusBadRequest, "No image file provided"},
		{"empty filename", multipartRequest(t, "", pngBytes(t), ""), http.StatusBadRequest, "No image file"},
		{"bad pose", multipartRequest(t, "a.png", pngBytes(t), "parry"), http.StatusBadRequest, "Invalid pose type"},
		{"not an image", multipartRequest(t, "a.png", []byte("hello"), ""), http.StatusBadRequest, "Invalid image file"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(tc.req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
			response := decode[models.ErrorResponse](t, w)
			if response.Success || !strings.Contains(response.Error, tc.message) {
				t.Errorf("error = %q, want %q", response.Error, tc.message)
			}
		})
	}
}

func TestAnalyzeNoPose(t *testing.T) {
	s := newTestServer(t, &stubEstimator{err: analysis.ErrNoPoseDetected})

	w := s.do(multipartRequest(t, "empty.png", pngBytes(t), "en_garde"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	response := decode[models.AnalyzeResponse](t, w)
	if response.Status != string(analysis.StatusNoPoseDetected) || response.AnnotatedImage != response.OriginalImage {
		t.Errorf("unexpected response %+v", response)
	}
	if len(response.Feedback) != 1 || response.Feedback[0] != analysis.NoPoseMessage {
		t.Errorf("feedback = %q", response.Feedback)
	}
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	s := newTestServer(t, &stubEstimator{err: errors.New("model crashed")})

	w := s.do(multipartRequest(t, "a.png", pngBytes(t), ""))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	response := decode[models.AnalyzeResponse](t, w)
	if response.Success || !strings.HasPrefix(response.Error, "Analysis failed:") {
		t.Errorf("unexpected response %+v", response)
	}
}

func TestAnalyzeFrameJSON(t *testing.T) {
	s := newTestServer(t, &stubEstimator{landmarks: posetest.EnGarde().Landmarks()})

	body, _ := json.Marshal(models.AnalyzeFrameRequest{
		ImageData: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t)),
		PoseType:  "en_garde",
		ClientID:  "strip-3",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze-frame", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := s.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	response := decode[models.AnalyzeResponse](t, w)

	record, err := s.store.Get(context.Background(), response.AnalysisID)
	if err != nil {
		t.Fatal(err)
	}
	if record.ClientID != "strip-3" {
		t.Errorf("client id = %q", record.ClientID)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/analyze-frame", strings.NewReader(`{"image_data":""}`))
	req.Header.Set("Content-Type", "application/json")
	if w := s.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("empty image status = %d", w.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	s := newTestServer(t, &stubEstimator{landmarks: posetest.EnGarde().Landmarks()})

	w := s.do(multipartRequest(t, "a.png", pngBytes(t), ""))
	id := decode[models.AnalyzeResponse](t, w).AnalysisID

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[struct {
		Count    int                      `json:"count"`
		Analyses []*models.AnalysisRecord `json:"analyses"`
	}](t, w)
	if list.Count != 1 || list.Analyses[0].ID != id {
		t.Errorf("list = %+v", list)
	}

	if w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id, nil)); w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	if w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/missing", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", w.Code)
	}
	if w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=zero", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	stats := decode[struct {
		System  SystemStats           `json:"system"`
		History models.HistorySummary `json:"history"`
	}](t, w)
	if stats.System.TotalRequests != 1 || stats.History.Total != 1 || stats.History.ByPose["en_garde"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{processor.ErrInvalidImage, http.StatusBadRequest},
		{pose.ErrInvalidStance, http.StatusBadRequest},
		{processor.ErrQueueFull, http.StatusTooManyRequests},
		{analysis.ErrUpstreamAnalysis, http.StatusBadGateway},
		{processor.ErrProcessingTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got, _ := errorStatus(tc.err); got != tc.want {
			t.Errorf("%v: status %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	fixture := posetest.Lunge()
	s := newTestServer(t, &stubEstimator{landmarks: fixture.Landmarks()})

	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	read := func() map[string]any {
		t.Helper()
		var message map[string]any
		if err := conn.ReadJSON(&message); err != nil {
			t.Fatalf("read: %v", err)
		}
		return message
	}

	conn.WriteJSON(ClientMessage{Type: "ping"})
	if msg := read(); msg["type"] != "pong" {
		t.Fatalf("got %v, want pong", msg["type"])
	}

	conn.WriteJSON(ClientMessage{Type: "config", Data: `{"pose_type":"fleche"}`})
	if msg := read(); msg["type"] != "error" {
		t.Fatalf("got %v, want error", msg["type"])
	}

	conn.WriteJSON(ClientMessage{Type: "config", Data: `{"pose_type":"lunge"}`})
	if msg := read(); msg["type"] != "config_updated" {
		t.Fatalf("got %v, want config_updated", msg["type"])
	}

	frame := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
	conn.WriteJSON(ClientMessage{Type: "frame", Data: frame})
	msg := read()
	if msg["type"] != "analysis" {
		t.Fatalf("got %v, want analysis", msg)
	}
	data := msg["data"].(map[string]any)
	if data["pose_type"] != "lunge" || data["success"] != true {
		t.Errorf("analysis = %v", data)
	}

	conn.WriteJSON(ClientMessage{Type: "frame", Data: "not base64!"})
	if msg := read(); msg["type"] != "error" {
		t.Errorf("got %v, want error", msg["type"])
	}

	conn.WriteJSON(ClientMessage{Type: "salute"})
	if msg := read(); msg["type"] != "error" {
		t.Errorf("got %v, want error", msg["type"])
	}
}

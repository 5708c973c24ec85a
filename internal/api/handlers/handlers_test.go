package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-scanner/backend/internal/models"
	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

func intPtr(v int) *int { return &v }

type memoryFetcher map[string]image.Image

func (f memoryFetcher) Fetch(_ context.Context, ref string) (image.Image, error) {
	if img, ok := f[ref]; ok {
		return img, nil
	}
	return nil, services.ErrNoImage
}

func cardArt() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 30, 42))
	for y := 0; y < 42; y++ {
		for x := 0; x < 30; x++ {
			v := uint8((x*37 + y*11) % 256)
			img.Set(x, y, color.NRGBA{v, 255 - v, v / 2, 255})
		}
	}
	return img
}

func testRecords() []models.CardRecord {
	return []models.CardRecord{
		{ID: "xy1-4", Name: "Bulbasaur", HP: intPtr(60), SetName: "XY", Caption: "Bulbasaur uses the attack Vine Whip.", ImageURL: "art://bulbasaur"},
		{ID: "xy1-55", Name: "Bulbasaur", HP: intPtr(50), SetName: "XY"},
		{ID: "base1-58", Name: "Pikachu", HP: intPtr(40), SetName: "Base Set"},
	}
}

func newIdentifier(t *testing.T, withFingerprints bool) *services.Identifier {
	t.Helper()
	idx, err := services.NewCatalogIndex(testRecords())
	if err != nil {
		t.Fatal(err)
	}
	var fingerprints *services.FingerprintIndex
	if withFingerprints {
		fingerprints = services.NewFingerprintIndex(idx, memoryFetcher{"art://bulbasaur": cardArt()}, services.FingerprintIndexConfig{})
	}
	id, err := services.NewIdentifier(idx, services.NewFieldExtractor(idx, nil), fingerprints, 8)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func newRouter(t *testing.T, withFingerprints bool, storage *services.ImageStorageService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	id := newIdentifier(t, withFingerprints)

	cards := NewCardHandler(id, nil, storage)
	fingerprints := NewFingerprintHandler(id)
	scan := NewScanHandler(nil)

	r := gin.New()
	r.GET("/api/cards/search", cards.SearchCards)
	r.GET("/api/cards/ocr-status", cards.GetOCRStatus)
	r.GET("/api/cards/:id", cards.GetCard)
	r.POST("/api/cards/identify", cards.IdentifyCard)
	r.POST("/api/cards/identify-image", cards.IdentifyCardFromImage)
	r.GET("/api/fingerprints/status", fingerprints.GetStatus)
	r.POST("/api/fingerprints/build", fingerprints.Build)
	r.GET("/api/scan/latest", scan.GetLatest)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %s: %v", w.Body.String(), err)
	}
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSearchCards(t *testing.T) {
	r := newRouter(t, false, nil)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantCount  int
	}{
		{"missing query", "/api/cards/search", http.StatusBadRequest, 0},
		{"bad limit", "/api/cards/search?q=bulba&limit=x", http.StatusBadRequest, 0},
		{"prefix", "/api/cards/search?q=bulba", http.StatusOK, 2},
		{"limited", "/api/cards/search?q=bulbasaur&limit=1", http.StatusOK, 1},
		{"no match", "/api/cards/search?q=mew", http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var res models.CardSearchResult
			decode(t, w, &res)
			if len(res.Cards) != tt.wantCount {
				t.Errorf("got %d cards, want %d", len(res.Cards), tt.wantCount)
			}
		})
	}
}

func TestGetCard(t *testing.T) {
	r := newRouter(t, false, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/cards/xy1-4", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var card models.CardRecord
	decode(t, w, &card)
	if card.Name != "Bulbasaur" || card.HP == nil || *card.HP != 60 {
		t.Errorf("card = %+v", card)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/cards/nope-1", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown card status = %d, want 404", w.Code)
	}
}

func TestIdentifyCard(t *testing.T) {
	r := newRouter(t, false, nil)

	body := `{"text": "Bulbasaur 60 HP\nVine Whip\n4/102"}`
	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/cards/identify", bytes.NewBufferString(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var res struct {
		Stage      string                     `json:"stage"`
		Cards      []models.CardRecord        `json:"cards"`
		Candidates []services.ScoredCandidate `json:"candidates"`
		Fields     services.ParsedFields      `json:"fields"`
	}
	decode(t, w, &res)
	if res.Stage != services.StageNameNumber {
		t.Errorf("stage = %q, want %q", res.Stage, services.StageNameNumber)
	}
	if len(res.Cards) != 1 || res.Cards[0].ID != "xy1-4" || res.Candidates[0].Score != 120 {
		t.Errorf("cards = %+v, candidates = %+v", res.Cards, res.Candidates)
	}
	if res.Fields.HP == nil || *res.Fields.HP != 60 {
		t.Errorf("fields = %+v", res.Fields)
	}
}

func TestIdentifyCardBadRequests(t *testing.T) {
	r := newRouter(t, false, nil)
	for _, body := range []string{`not json`, `{"text": "   "}`} {
		w := serve(r, httptest.NewRequest(http.MethodPost, "/api/cards/identify", bytes.NewBufferString(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q status = %d, want 400", body, w.Code)
		}
	}
}

func TestIdentifyCardFromImageMultipart(t *testing.T) {
	dir := t.TempDir()
	r := newRouter(t, true, services.NewImageStorageService(dir))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "card.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(pngBytes(t, cardArt()))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/cards/identify-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var res services.ScanResult
	decode(t, w, &res)
	if res.Source != services.SourceVisual || res.Visual == nil || res.Visual.ID != "xy1-4" || res.Visual.Distance != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.Image == "" {
		t.Fatal("upload was not stored")
	}
	if _, err := os.Stat(filepath.Join(dir, res.Image)); err != nil {
		t.Errorf("stored image missing: %v", err)
	}
}

func TestIdentifyCardFromImageBase64(t *testing.T) {
	r := newRouter(t, true, nil)

	payload, _ := json.Marshal(map[string]string{
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, cardArt())),
	})
	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/cards/identify-image", bytes.NewReader(payload)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res services.ScanResult
	decode(t, w, &res)
	if len(res.Candidates) != 1 || res.Candidates[0].Card.ID != "xy1-4" {
		t.Errorf("candidates = %+v", res.Candidates)
	}
}

func TestIdentifyCardFromImageErrors(t *testing.T) {
	tests := []struct {
		name         string
		fingerprints bool
		body         string
		wantStatus   int
	}{
		{"no collaborators", false, `{"image": "aGVsbG8="}`, http.StatusServiceUnavailable},
		{"no image", true, `{}`, http.StatusBadRequest},
		{"bad base64", true, `{"image": "!!!"}`, http.StatusBadRequest},
		{"not an image", true, `{"image": "aGVsbG8="}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, tt.fingerprints, nil)
			w := serve(r, httptest.NewRequest(http.MethodPost, "/api/cards/identify-image", bytes.NewBufferString(tt.body)))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestFingerprintEndpoints(t *testing.T) {
	r := newRouter(t, true, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/fingerprints/status", nil))
	var status services.FingerprintStatus
	decode(t, w, &status)
	if w.Code != http.StatusOK || status.Loaded {
		t.Fatalf("status before build = %d %+v", w.Code, status)
	}

	for _, url := range []string{"/api/fingerprints/build", "/api/fingerprints/build?force=true"} {
		w = serve(r, httptest.NewRequest(http.MethodPost, url, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("POST %s status = %d: %s", url, w.Code, w.Body.String())
		}
		decode(t, w, &status)
		if !status.Loaded || status.Entries != 1 {
			t.Errorf("POST %s status = %+v, want loaded with 1 entry", url, status)
		}
	}

	r = newRouter(t, false, nil)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/fingerprints/status", nil),
		httptest.NewRequest(http.MethodPost, "/api/fingerprints/build", nil),
	} {
		if w := serve(r, req); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s without index = %d, want 503", req.Method, req.URL.Path, w.Code)
		}
	}
}

func TestScanLatest(t *testing.T) {
	r := newRouter(t, false, nil)
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/scan/latest", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled scan loop status = %d, want 503", w.Code)
	}

	gin.SetMode(gin.TestMode)
	loop := services.NewScanLoop(newIdentifier(t, false), nil, t.TempDir(), 0)
	engine := gin.New()
	engine.GET("/api/scan/latest", NewScanHandler(loop).GetLatest)

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/scan/latest", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		Busy   bool                 `json:"busy"`
		Result *services.ScanResult `json:"result"`
	}
	decode(t, w, &res)
	if res.Busy || res.Result != nil {
		t.Errorf("latest before any cycle = %+v", res)
	}
}

func TestGetOCRStatus(t *testing.T) {
	r := newRouter(t, true, nil)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/cards/ocr-status", nil))
	var res map[string]bool
	decode(t, w, &res)
	if res["text_recognition"] || !res["fingerprints"] {
		t.Errorf("ocr-status = %v", res)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sparsh/internal/models/spconfig"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andskur/argon2-hashing"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============= Setup =============

const (
	adminEmail = "admin@sparsh.local"
	adminPass  = "password123"
)

type testEnv struct {
	app    *App
	router *gin.Engine
	conf   *spconfig.Config
}

func setupTestConfig(t *testing.T, geoURL string) *spconfig.Config {
	t.Helper()
	hash, err := argon2.GenerateFromPassword([]byte(adminPass), argon2.DefaultParams)
	require.NoError(t, err)
	if geoURL == "" {
		// aucun appel réseau réel pendant les tests
		geoURL = "http://127.0.0.1:1/json/"
	}

	conf := &spconfig.Config{
		Database: spconfig.DatabaseConfig{
			Db:   "sqlite",
			Path: filepath.Join(t.TempDir(), "test.db"),
		},
		StaticPath: t.TempDir(),
		User: spconfig.UserConfig{
			Login: "admin",
			Email: adminEmail,
			Hash:  string(hash),
		},
		Auth: spconfig.AuthConfig{Secret: "test-secret"},
		Geo:  spconfig.GeoConfig{APIURL: geoURL},
	}
	conf.ApplyDefaults()
	conf.RateLimit.Max = 10000
	conf.RateLimit.Login = 10000
	return conf
}

func setupTestApp(t *testing.T, geoURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conf := setupTestConfig(t, geoURL)
	app, err := newApp(context.Background(), conf)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	r, err := app.Handler()
	require.NoError(t, err)
	return &testEnv{app: app, router: r, conf: conf}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) login(t *testing.T) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": adminEmail, "password": adminPass}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func noisyJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{uint8(rand.IntN(256)), uint8(rand.IntN(256)), uint8(rand.IntN(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// ============= Auth =============

func TestHealth(t *testing.T) {
	env := setupTestApp(t, "")
	w := env.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestLoginHandler(t *testing.T) {
	env := setupTestApp(t, "")

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
	}{
		{"Valid credentials", adminEmail, adminPass, http.StatusOK},
		{"Upper case email", strings.ToUpper(adminEmail), adminPass, http.StatusOK},
		{"Wrong password", adminEmail, "wrongpass", http.StatusUnauthorized},
		{"Wrong email", "nobody@sparsh.local", adminPass, http.StatusUnauthorized},
		{"Missing fields", "", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": tt.email, "password": tt.password}, "")
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestMeAndLogout(t *testing.T) {
	env := setupTestApp(t, "")
	token := env.login(t)

	w := env.do(t, http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, adminEmail, user["email"])
	assert.NotContains(t, user, "passwordHash")

	w = env.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := setupTestApp(t, "")

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/images/admin"},
		{http.MethodPost, "/api/images/upload"},
		{http.MethodPut, "/api/images/1"},
		{http.MethodDelete, "/api/images/1"},
		{http.MethodGet, "/api/reviews/admin"},
		{http.MethodGet, "/api/reviews/admin/stats"},
		{http.MethodPut, "/api/reviews/admin/1/approve"},
		{http.MethodPut, "/api/reviews/admin/1/visibility"},
		{http.MethodDelete, "/api/reviews/admin/1"},
		{http.MethodGet, "/api/analytics/stats"},
		{http.MethodGet, "/api/analytics/overview"},
		{http.MethodGet, "/api/analytics/realtime"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := env.do(t, rt.method, rt.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			w = env.do(t, rt.method, rt.path, nil, "not-a-token")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

// ============= Reviews =============

func TestReviewScenarioA(t *testing.T) {
	env := setupTestApp(t, "")
	token := env.login(t)

	w := env.do(t, http.MethodPost, "/api/reviews/submit", gin.H{
		"name":     "Asha",
		"email":    "a@x.com",
		"role":     "Bride",
		"location": "Chennai",
		"content":  "Loved the saree, fit perfectly and arrived early.",
		"rating":   5,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/reviews/public", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["data"])

	w = env.do(t, http.MethodGet, "/api/reviews/admin?status=pending", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	pending := body["data"].([]any)
	assert.Contains(t, body, "pagination")
	assert.Contains(t, body, "counts")
	require.Len(t, pending, 1)
	review := pending[0].(map[string]any)
	assert.Equal(t, false, review["isApproved"])
	assert.Equal(t, true, review["isVisible"])
	id := int(review["id"].(float64))

	w = env.do(t, http.MethodPut, "/api/reviews/admin/"+strconv.Itoa(id)+"/approve", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/reviews/public", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	public := decode(t, w)["data"].([]any)
	require.Len(t, public, 1)
	pub := public[0].(map[string]any)
	assert.Equal(t, float64(5), pub["rating"])
	assert.Equal(t, "Asha", pub["name"])
	assert.NotContains(t, pub, "email")
	assert.NotContains(t, pub, "ipAddress")

	// même email : refusé
	w = env.do(t, http.MethodPost, "/api/reviews/submit", gin.H{
		"name": "Asha", "email": " A@X.com ", "content": "Encore", "rating": 4,
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, "/api/reviews/admin/"+strconv.Itoa(id)+"/visibility", gin.H{"isVisible": false}, token)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/reviews/public", nil, "")
	assert.Empty(t, decode(t, w)["data"])

	w = env.do(t, http.MethodGet, "/api/reviews/admin/stats", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), stats["hidden"])

	w = env.do(t, http.MethodDelete, "/api/reviews/admin/"+strconv.Itoa(id), nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/api/reviews/admin/"+strconv.Itoa(id), nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewValidation(t *testing.T) {
	env := setupTestApp(t, "")

	w := env.do(t, http.MethodPost, "/api/reviews/submit", gin.H{
		"name": "Asha", "email": "a@x.com", "content": "ok", "rating": 6,
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = env.do(t, http.MethodPut, "/api/reviews/admin/abc/approve", nil, env.login(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewCaptcha(t *testing.T) {
	env := setupTestApp(t, "")
	env.conf.Reviews.Captcha = true
	r, err := env.app.Handler()
	require.NoError(t, err)
	env.router = r

	w := env.do(t, http.MethodPost, "/api/reviews/submit", gin.H{
		"name": "Asha", "email": "a@x.com", "content": "ok", "rating": 5,
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/captcha", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	captcha := decode(t, w)["captcha"].(map[string]any)

	w = env.do(t, http.MethodPost, "/api/reviews/submit", gin.H{
		"name": "Asha", "email": "a@x.com", "content": "ok", "rating": 5,
		"captchaId": captcha["captchaId"], "captchaAnswer": captcha["answer"],
	}, "")
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// ============= Images =============

func TestImageScenarioC(t *testing.T) {
	env := setupTestApp(t, "")
	token := env.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.app.hub.Run(ctx)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.app.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	data := noisyJPEG(t, 1200, 800)
	body, contentType := multipartBody(t, map[string]string{
		"title":    "Bridal Set",
		"sector":   "Bridal",
		"template": "Portrait",
		"tags":     "silk, red",
	}, "bridal.jpg", data)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/images/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Image struct {
			ID       uint     `json:"id"`
			IsActive bool     `json:"isActive"`
			PublicID string   `json:"publicId"`
			Tags     []string `json:"tags"`
		} `json:"image"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.True(t, created.Image.IsActive)
	assert.Equal(t, []string{"silk", "red"}, created.Image.Tags)
	assert.FileExists(t, filepath.Join(env.conf.StaticPath, created.Image.PublicID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Event string `json:"event"`
		Data  struct {
			Image struct {
				ID    uint   `json:"id"`
				Title string `json:"title"`
			} `json:"image"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "imageUploaded", msg.Event)
	assert.Equal(t, "Bridal Set", msg.Data.Image.Title)
	assert.Equal(t, created.Image.ID, msg.Data.Image.ID)

	w := env.do(t, http.MethodGet, "/api/gallery?sector=Bridal", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	gallery := decode(t, w)
	assert.Equal(t, float64(1), gallery["total"])
	grouped := gallery["groupedBySector"].(map[string]any)
	assert.Len(t, grouped["Bridal"], 1)

	w = env.do(t, http.MethodGet, "/api/gallery/filters", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	filters := decode(t, w)
	assert.Equal(t, []any{"Bridal"}, filters["sectors"])
	assert.Equal(t, []any{"Portrait"}, filters["templates"])
	assert.NotContains(t, filters, "filters")

	w = env.do(t, http.MethodGet, "/uploads/"+created.Image.PublicID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestImageScenarioD(t *testing.T) {
	env := setupTestApp(t, "")
	token := env.login(t)

	data := make([]byte, 15<<20)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	body, contentType := multipartBody(t, map[string]string{
		"title":    "Too big",
		"sector":   "Bridal",
		"template": "Portrait",
	}, "huge.jpg", data)

	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/images/admin", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["images"])

	entries, err := os.ReadDir(env.conf.StaticPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImageUpdateAndDelete(t *testing.T) {
	env := setupTestApp(t, "")
	token := env.login(t)

	body, contentType := multipartBody(t, map[string]string{
		"title": "Evening Gown", "sector": "Evening", "template": "Modern",
	}, "gown.jpg", noisyJPEG(t, 64, 64))
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	img := decode(t, w)["image"].(map[string]any)
	id := strconv.Itoa(int(img["id"].(float64)))

	w = env.do(t, http.MethodPut, "/api/images/"+id, gin.H{"sector": "Nope"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/images/"+id, gin.H{"isActive": false}, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/gallery/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodGet, "/api/gallery", nil, "")
	assert.Equal(t, float64(0), decode(t, w)["total"])

	w = env.do(t, http.MethodGet, "/api/gallery/filters", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["sectors"])

	w = env.do(t, http.MethodDelete, "/api/images/"+id, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/api/images/"+id, nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	entries, err := os.ReadDir(env.conf.StaticPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ============= Analytics =============

func TestAnalyticsScenarioB(t *testing.T) {
	var hits atomic.Int32
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"India","countryCode":"IN","region":"MH","city":"Pune","lat":18.52,"lon":73.85,"timezone":"Asia/Kolkata","isp":"Test"}`))
	}))
	defer geo.Close()

	env := setupTestApp(t, geo.URL+"/json/")
	token := env.login(t)

	track := func() map[string]any {
		data, _ := json.Marshal(gin.H{"sessionId": "s1", "page": "/gallery", "isFirstVisit": true})
		req := httptest.NewRequest(http.MethodPost, "/api/analytics/track", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "203.0.113.5")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode(t, w)
	}

	first := track()
	assert.Equal(t, "Pune", first["location"].(map[string]any)["city"])
	assert.Equal(t, "api", first["source"])

	second := track()
	assert.Equal(t, "Pune", second["location"].(map[string]any)["city"])
	assert.Equal(t, "cache", second["source"])
	assert.Equal(t, int32(1), hits.Load())

	w := env.do(t, http.MethodPut, "/api/analytics/track/s1/duration", gin.H{"duration": 42}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["updated"])

	w = env.do(t, http.MethodGet, "/api/analytics/stats?period=countries", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "countries", body["type"])
	countries := body["data"].([]any)
	require.Len(t, countries, 1)
	india := countries[0].(map[string]any)
	assert.Equal(t, "IN", india["countryCode"])
	assert.Equal(t, float64(2), india["totalVisits"])
	assert.Equal(t, float64(1), india["uniqueVisitors"])

	w = env.do(t, http.MethodGet, "/api/analytics/overview", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	overview := decode(t, w)["data"].(map[string]any)
	assert.Len(t, overview["recentVisitors"], 2)

	w = env.do(t, http.MethodGet, "/api/analytics/realtime", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	realtime := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(2), realtime["todayPageViews"])
}

func TestAnalyticsDurationUnknownSession(t *testing.T) {
	env := setupTestApp(t, "")

	w := env.do(t, http.MethodPut, "/api/analytics/track/unknown/duration", gin.H{"duration": 30}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["updated"])

	w = env.do(t, http.MethodPut, "/api/analytics/track/unknown/duration", gin.H{"duration": -5}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/analytics/track/unknown/duration", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyticsStatsQuery(t *testing.T) {
	env := setupTestApp(t, "")
	token := env.login(t)

	tests := []struct {
		query      string
		wantStatus int
		wantType   string
	}{
		{"", http.StatusOK, "daily"},
		{"?period=monthly", http.StatusOK, "monthly"},
		{"?period=daily&startDate=2024-01-01&endDate=2024-01-31", http.StatusOK, "daily"},
		{"?period=daily&startDate=2024-01-01T00:00:00Z", http.StatusOK, "daily"},
		{"?period=weekly", http.StatusBadRequest, ""},
		{"?startDate=yesterday", http.StatusBadRequest, ""},
		{"?startDate=2024-02-01&endDate=2024-01-01", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/analytics/stats"+tt.query, nil, token)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantType != "" {
				body := decode(t, w)
				assert.Equal(t, tt.wantType, body["type"])
				assert.Equal(t, []any{}, body["data"])
			}
		})
	}
}

func TestTrackMissingSession(t *testing.T) {
	env := setupTestApp(t, "")
	w := env.do(t, http.MethodPost, "/api/analytics/track", gin.H{"page": "/"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNoRoute(t *testing.T) {
	env := setupTestApp(t, "")
	w := env.do(t, http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

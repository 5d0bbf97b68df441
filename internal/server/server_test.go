package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/thumbgate/internal/config"
	"github.com/sefazor/thumbgate/internal/controller"
	"github.com/sefazor/thumbgate/internal/handler"
	"github.com/sefazor/thumbgate/internal/middleware"
	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/repository"
	"github.com/sefazor/thumbgate/internal/service"
	"github.com/sefazor/thumbgate/pkg/storage"
	"github.com/sefazor/thumbgate/pkg/thumbor"
	"github.com/sefazor/thumbgate/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    T      `json:"data"`
}

const testRegistrationKey = "bootstrap-key"

type testUser struct {
	ID     uint
	Email  string
	APIKey string
	Token  string
}

type testEnv struct {
	t       *testing.T
	app     *fiber.App
	db      *gorm.DB
	local   *storage.LocalStorage
	hamlet  testUser
	iago    testUser
	othello testUser
}

type envOptions struct {
	thumborURL string
	camoURL    string
	camoKey    string
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:server-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Upload{}))

	cfg := &config.Config{
		ExternalHost:    "chat.example.com",
		JWTSecret:       "test-secret",
		SessionTTL:      time.Hour,
		RegistrationKey: testRegistrationKey,
		Thumbor:         config.ThumborConfig{URL: opts.thumborURL, ThumbnailSize: "0x100"},
		Camo:            config.CamoConfig{URL: opts.camoURL, Key: opts.camoKey},
		Uploads:         config.UploadConfig{Backend: config.UploadBackendLocal, MaxSize: 1 << 20},
	}

	log := zap.NewNop().Sugar()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.SessionTTL, cfg.RegistrationKey, log)
	uploadService := service.NewUploadService(uploadRepo, local, cfg.Uploads.MaxSize, log)
	thumbnailService := service.NewThumbnailService(uploadRepo, cfg, log)

	authController := controller.NewAuthController(authService)
	thumbnailController := controller.NewThumbnailController(thumbnailService, uploadService)
	validator := utils.NewValidator()

	app := NewFiberApp(Handlers{
		Auth:      handler.NewAuthHandler(authController, validator, cfg.SessionTTL, false, log),
		Thumbnail: handler.NewThumbnailHandler(thumbnailController, validator, log),
		Upload:    handler.NewUploadHandler(uploadService, thumbnailController, log),
	}, authService, Options{}, log)

	env := &testEnv{t: t, app: app, db: db, local: local}
	env.hamlet = env.register("King Hamlet", "hamlet@example.com", 2)
	env.iago = env.register("Iago", "iago@example.com", 2)
	env.othello = env.register("Othello", "othello@example.com", 3)
	return env
}

func (e *testEnv) do(req *http.Request) *http.Response {
	e.t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	return resp
}

func registerRequest(name, email string, realmID uint) *http.Request {
	body, _ := json.Marshal(models.RegisterRequest{FullName: name, Email: email, Password: "hunter22", RealmID: realmID})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// register bootstraps a user into realmID with the registration key.
func (e *testEnv) register(name, email string, realmID uint) testUser {
	e.t.Helper()
	req := registerRequest(name, email, realmID)
	req.Header.Set(handler.RegistrationKeyHeader, testRegistrationKey)
	return e.registerWith(req)
}

func (e *testEnv) registerWith(req *http.Request) testUser {
	e.t.Helper()
	resp := e.do(req)
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)

	var out envelope[models.AuthResponse]
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	return testUser{ID: out.Data.User.ID, Email: out.Data.User.Email, APIKey: out.Data.User.APIKey, Token: out.Data.Token}
}

func (e *testEnv) upload(user testUser, name string, realmPublic bool) string {
	e.t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(e.t, err)
	_, err = part.Write([]byte("zulip!"))
	require.NoError(e.t, err)
	if realmPublic {
		require.NoError(e.t, w.WriteField("realm_public", "true"))
	}
	require.NoError(e.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/user_uploads", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+user.Token)

	resp := e.do(req)
	require.Equal(e.t, http.StatusOK, resp.StatusCode)

	var out envelope[models.UploadResponse]
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(e.t, strings.HasPrefix(out.Data.URI, "/user_uploads/"), out.Data.URI)
	return out.Data.URI
}

// thumbnail requests /thumbnail the way rendered messages do: the url
// parameter has no leading slash and is fully quoted.
func (e *testEnv) thumbnail(user *testUser, locator, size string) *http.Response {
	e.t.Helper()
	target := "/thumbnail?url=" + url.QueryEscape(strings.TrimPrefix(locator, "/"))
	if size != "" {
		target += "&size=" + size
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != nil {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: user.Token})
	}
	return e.do(req)
}

func encodedPath(t *testing.T, uri string) string {
	t.Helper()
	p, err := url.PathUnescape(strings.TrimPrefix(uri, "/user_uploads/"))
	require.NoError(t, err)
	enc, err := thumbor.Encode(p)
	require.NoError(t, err)
	return enc
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestLocalFileSourceType(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})
	uri := env.upload(env.hamlet, "zulip.jpeg", false)
	enc := encodedPath(t, uri)

	resp := env.thumbnail(&env.hamlet, uri, "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://test-thumborhost.com/smart/filters:no_upscale()/"+enc+"/source_type/local_file", resp.Header.Get("Location"))

	resp = env.thumbnail(&env.hamlet, uri, "thumbnail")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://test-thumborhost.com/0x100/smart/filters:no_upscale()/"+enc+"/source_type/local_file", resp.Header.Get("Location"))

	// another user of the same realm
	for _, size := range []string{"original", "thumbnail"} {
		resp = env.thumbnail(&env.iago, uri, size)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "You are not authorized to view this file.")
	}

	// anonymous
	resp = env.thumbnail(nil, uri, "original")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "You are not authorized to view this file.")
}

func TestUnicodeFileName(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})
	uri := env.upload(env.hamlet, "μένει.jpg", false)

	resp := env.thumbnail(&env.hamlet, uri, "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "/smart/filters:no_upscale()/"+encodedPath(t, uri)+"/source_type/local_file")
}

func TestAPIAuthentication(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})
	uri := env.upload(env.hamlet, "zulip.jpeg", false)
	quoted := url.QueryEscape(strings.TrimPrefix(uri, "/"))
	want := "/smart/filters:no_upscale()/" + encodedPath(t, uri) + "/source_type/local_file"

	// HTTP basic auth
	req := httptest.NewRequest(http.MethodGet, "/api/v1/thumbnail?url="+quoted+"&size=original", nil)
	req.SetBasicAuth(env.hamlet.Email, env.hamlet.APIKey)
	resp := env.do(req)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), want)

	// api_key query parameter
	req = httptest.NewRequest(http.MethodGet, "/thumbnail?url="+quoted+"&size=original&api_key="+env.hamlet.APIKey, nil)
	resp = env.do(req)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), want)

	// iago's key does not open hamlet's upload
	req = httptest.NewRequest(http.MethodGet, "/thumbnail?url="+quoted+"&size=original&api_key="+env.iago.APIKey, nil)
	resp = env.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// bad credentials are rejected before authorization
	req = httptest.NewRequest(http.MethodGet, "/thumbnail?url="+quoted+"&size=original&api_key=nope", nil)
	resp = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/thumbnail?url="+quoted+"&size=original", nil)
	req.SetBasicAuth(env.iago.Email, env.hamlet.APIKey)
	resp = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// a stale session cookie is treated as anonymous
	req = httptest.NewRequest(http.MethodGet, "/thumbnail?url="+url.QueryEscape("https://example.com/img.png")+"&size=original", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "expired"})
	resp = env.do(req)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestExternalSourceType(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})

	for _, imageURL := range []string{"https://images.foobar.com/12345", "http://images.foobar.com/12345"} {
		enc, err := thumbor.Encode(imageURL)
		require.NoError(t, err)

		for _, user := range []*testUser{&env.hamlet, &env.iago, nil} {
			resp := env.thumbnail(user, imageURL, "original")
			require.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "http://test-thumborhost.com/smart/filters:no_upscale()/"+enc+"/source_type/external", resp.Header.Get("Location"))

			resp = env.thumbnail(user, imageURL, "thumbnail")
			require.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "http://test-thumborhost.com/0x100/smart/filters:no_upscale()/"+enc+"/source_type/external", resp.Header.Get("Location"))
		}
	}
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "127.0.0.1:9995"})

	resp := env.thumbnail(&env.hamlet, "/static/images/cute/turtle.png", "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/static/images/cute/turtle.png", resp.Header.Get("Location"))

	resp = env.thumbnail(nil, "/static/images/cute/turtle.png", "thumbnail")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/static/images/cute/turtle.png", resp.Header.Get("Location"))
}

func TestThumborDisabled(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	uri := env.upload(env.hamlet, "zulip.jpeg", false)

	resp := env.thumbnail(&env.hamlet, uri, "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, uri, resp.Header.Get("Location"))

	for _, external := range []string{
		"https://www.google.com/images/srpr/logo4w.png",
		"http://www.google.com/images/srpr/logo4w.png",
	} {
		resp = env.thumbnail(&env.hamlet, external, "original")
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, external, resp.Header.Get("Location"))
	}

	// authorization still applies in degraded mode
	resp = env.thumbnail(&env.iago, uri, "original")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestThumborDisabledWithCamo(t *testing.T) {
	env := newTestEnv(t, envOptions{camoURL: "https://external-content.zulipcdn.net/", camoKey: "dummy"})

	resp := env.thumbnail(&env.hamlet, "https://www.google.com/images/srpr/logo4w.png", "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://www.google.com/images/srpr/logo4w.png", resp.Header.Get("Location"))

	resp = env.thumbnail(&env.hamlet, "http://www.google.com/images/srpr/logo4w.png", "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t,
		"https://external-content.zulipcdn.net/7b6552b60c635e41e8f6daeb36d88afc4eabde79/687474703a2f2f7777772e676f6f676c652e636f6d2f696d616765732f737270722f6c6f676f34772e706e67",
		resp.Header.Get("Location"))
}

func TestDifferentSizes(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})
	uri := env.upload(env.hamlet, "zulip.jpeg", false)

	resp := env.thumbnail(&env.hamlet, uri, "480x360")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Invalid size.")

	resp = env.thumbnail(&env.hamlet, uri, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Missing 'size' argument")

	// size is checked before the upload lookup
	resp = env.thumbnail(&env.iago, "/user_uploads/2/nope/missing.png", "480x360")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Invalid size.")
}

func TestInvalidAndMissingLocators(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})

	req := httptest.NewRequest(http.MethodGet, "/thumbnail?size=original", nil)
	resp := env.do(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Missing 'url' argument")

	resp = env.thumbnail(&env.hamlet, "ftp://example.com/a.png", "original")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// a missing upload looks exactly like someone else's upload
	resp = env.thumbnail(&env.hamlet, "/user_uploads/2/nope/missing.png", "original")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "You are not authorized to view this file.")
}

func TestRealmPublicUploads(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})
	uri := env.upload(env.hamlet, "shared.png", true)

	resp := env.thumbnail(&env.iago, uri, "thumbnail")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	resp = env.thumbnail(&env.othello, uri, "thumbnail")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.thumbnail(nil, uri, "thumbnail")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOwnHostAbsoluteURL(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})
	uri := env.upload(env.hamlet, "zulip.jpeg", false)

	resp := env.thumbnail(&env.hamlet, "https://chat.example.com"+uri, "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasSuffix(resp.Header.Get("Location"), "/source_type/local_file"))

	resp = env.thumbnail(&env.iago, "https://chat.example.com"+uri, "original")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeAndDeleteUpload(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	uri := env.upload(env.hamlet, "zulip.jpeg", false)

	get := func(user *testUser) *http.Response {
		req := httptest.NewRequest(http.MethodGet, uri, nil)
		if user != nil {
			req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: user.Token})
		}
		return env.do(req)
	}

	resp := get(&env.hamlet)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "zulip!", readBody(t, resp))

	assert.Equal(t, http.StatusForbidden, get(&env.iago).StatusCode)
	assert.Equal(t, http.StatusForbidden, get(nil).StatusCode)

	del := func(user testUser) *http.Response {
		req := httptest.NewRequest(http.MethodDelete, "/api"+uri, nil)
		req.Header.Set("Authorization", "Bearer "+user.Token)
		return env.do(req)
	}

	assert.Equal(t, http.StatusForbidden, del(env.iago).StatusCode)
	assert.Equal(t, http.StatusOK, del(env.hamlet).StatusCode)

	resp = env.thumbnail(&env.hamlet, uri, "original")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, http.StatusForbidden, get(&env.hamlet).StatusCode)
}

func TestUploadRequiresAuth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/user_uploads", strings.NewReader(""))
	resp := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	body, _ := json.Marshal(models.LoginRequest{Email: "hamlet@example.com", Password: "hunter22"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := env.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	body, _ = json.Marshal(models.LoginRequest{Email: "hamlet@example.com", Password: "wrong"})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).StatusCode)

	body, _ = json.Marshal(models.LoginRequest{Email: "not-an-email", Password: "x"})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, env.do(req).StatusCode)
}

func TestRegistrationCannotJoinForeignRealm(t *testing.T) {
	env := newTestEnv(t, envOptions{thumborURL: "http://test-thumborhost.com"})
	uri := env.upload(env.hamlet, "shared.png", true)

	// anonymous signup into realm 2 is refused
	resp := env.do(registerRequest("Mallory", "mallory@evil.test", 2))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req := registerRequest("Mallory", "mallory@evil.test", 2)
	req.Header.Set(handler.RegistrationKeyHeader, "guess")
	resp = env.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// a realm 3 user registering a colleague cannot place them in realm 2
	req = registerRequest("Mallory", "mallory@evil.test", 2)
	req.Header.Set("Authorization", "Bearer "+env.othello.Token)
	mallory := env.registerWith(req)

	resp = env.thumbnail(&mallory, uri, "original")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "You are not authorized to view this file.")

	// a colleague registered by iago lands in realm 2 and sees shared uploads
	req = registerRequest("Emilia", "emilia@example.com", 3)
	req.Header.Set("Authorization", "Bearer "+env.iago.Token)
	emilia := env.registerWith(req)

	resp = env.thumbnail(&emilia, uri, "original")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestUploadPathDecodedOnce(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	// stored names are sanitized, so seed one with a literal '%' directly
	path := "2/abc/100%.png"
	require.NoError(t, env.local.Upload(ctx, path, strings.NewReader("percent"), 7, "image/png"))
	require.NoError(t, env.db.Create(&models.Upload{
		RealmID:  2,
		OwnerID:  env.hamlet.ID,
		Path:     path,
		FileName: "100%.png",
		FileSize: 7,
		Backend:  models.BackendLocalFile,
	}).Error)

	uri := service.UploadURL(path)
	require.Equal(t, "/user_uploads/2/abc/100%25.png", uri)

	req := httptest.NewRequest(http.MethodGet, uri, nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: env.hamlet.Token})
	resp := env.do(req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "percent", readBody(t, resp))

	resp = env.thumbnail(&env.hamlet, uri, "original")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, uri, resp.Header.Get("Location"))
}

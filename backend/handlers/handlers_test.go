package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/database"
	"github.com/PhilHem/secureone/backend/files"
	"github.com/PhilHem/secureone/backend/logger"
	"github.com/PhilHem/secureone/backend/objectstore"
	"github.com/PhilHem/secureone/backend/registration"
	"github.com/PhilHem/secureone/frontend/templates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// recordingIssuer hands out sequential codes and remembers the latest per
// address.
type recordingIssuer struct {
	mu    sync.Mutex
	n     int
	codes map[string]string
}

func (i *recordingIssuer) Issue(ctx context.Context, email, name string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.n++
	code := fmt.Sprintf("%06d", 100000+i.n)
	i.codes[email] = code
	return code, nil
}

func (i *recordingIssuer) last(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

func setupServices(t *testing.T) *recordingIssuer {
	t.Helper()
	config.C = config.Defaults()
	config.C.Session.Secret = testSecret
	config.C.Session.Backend = "cookie"
	require.NoError(t, InitSession())

	db, err := database.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	log := logger.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	issuer := &recordingIssuer{codes: map[string]string{}}
	authCfg := config.AuthConfig{MinPasswordLength: 6, BcryptCost: bcrypt.MinCost}
	Registration = registration.NewService(database.NewUserStore(db), issuer, config.C.OTP, authCfg, log)
	Files = files.NewService(database.NewFileStore(db), objectstore.NewFileSystemStore(t.TempDir()), 1024*1024, log)
	return issuer
}

func testMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HomePage)
	mux.HandleFunc("GET /register", RegisterPage)
	mux.HandleFunc("POST /register", Register)
	mux.HandleFunc("GET /verify", VerifyPage)
	mux.HandleFunc("POST /verify", Verify)
	mux.HandleFunc("POST /verify/resend", ResendOTP)
	mux.HandleFunc("GET /login", LoginPage)
	mux.HandleFunc("POST /login", Login)
	mux.HandleFunc("POST /logout", Logout)
	mux.HandleFunc("GET /dashboard", Dashboard)
	mux.HandleFunc("GET /profile", ProfilePage)
	mux.HandleFunc("GET /api/files", GetFiles)
	mux.HandleFunc("POST /files", Upload)
	mux.HandleFunc("GET /files/{id}/download", Download)
	mux.HandleFunc("POST /files/{id}/delete", DeleteFile)
	mux.HandleFunc("GET /health", Health)
	return mux
}

// client is one browser: it keeps its cookies between requests.
type client struct {
	t       *testing.T
	mux     http.Handler
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T) *client {
	return &client{t: t, mux: testMux(), cookies: map[string]*http.Cookie{}}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.mux.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest("GET", path, nil))
}

func (c *client) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) upload(name string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	fw.Write(content)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest("POST", "/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

// flashes decodes the session cookie and returns its queued messages.
func (c *client) flashes() []templates.Flash {
	req := httptest.NewRequest("GET", "/", nil)
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	return takeFlashes(getSession(req))
}

func (c *client) lastFlash() string {
	f := c.flashes()
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1].Message
}

func registrationForm(name, email, password string) url.Values {
	return url.Values{
		"name":             {name},
		"email":            {email},
		"confirm_email":    {email},
		"password":         {password},
		"confirm_password": {password},
	}
}

// signUp registers and verifies an account, leaving c logged in.
func signUp(t *testing.T, c *client, issuer *recordingIssuer, name, email string) {
	t.Helper()
	rec := c.post("/register", registrationForm(name, email, "secret123"))
	require.Equal(t, "/verify", rec.Header().Get("Location"))
	rec = c.post("/verify", url.Values{"otp": {issuer.last(email)}})
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestRegister_ThenVerify_LogsIn(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)

	rec := c.post("/register", registrationForm("Alice", "alice@example.com", "secret123"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/verify", rec.Header().Get("Location"))

	page := c.get("/verify")
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "alice@example.com")

	rec = c.post("/verify", url.Values{"otp": {issuer.last("alice@example.com")}})
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	dash := c.get("/dashboard")
	assert.Equal(t, http.StatusOK, dash.Code)
	assert.Contains(t, dash.Body.String(), "Alice")
}

func TestRegister_MismatchedPasswords(t *testing.T) {
	setupServices(t)
	c := newClient(t)

	form := registrationForm("Alice", "alice@example.com", "secret123")
	form.Set("confirm_password", "other123")
	rec := c.post("/register", form)

	assert.Equal(t, "/register", rec.Header().Get("Location"))
	assert.Equal(t, "Passwords do not match!", c.lastFlash())
}

func TestRegister_ExistingUserGoesToLogin(t *testing.T) {
	issuer := setupServices(t)
	signUp(t, newClient(t), issuer, "Alice", "alice@example.com")

	c := newClient(t)
	rec := c.post("/register", registrationForm("Alice", "alice@example.com", "secret123"))

	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, "User already exists! Please login.", c.lastFlash())
}

func TestVerify_WrongCodeKeepsPending(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)
	c.post("/register", registrationForm("Alice", "alice@example.com", "secret123"))

	rec := c.post("/verify", url.Values{"otp": {"000000"}})
	assert.Equal(t, "/verify", rec.Header().Get("Location"))
	assert.Equal(t, "Invalid OTP. Please try again.", c.lastFlash())

	rec = c.post("/verify", url.Values{"otp": {issuer.last("alice@example.com")}})
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestVerify_WithoutPendingGoesToRegister(t *testing.T) {
	setupServices(t)
	c := newClient(t)

	rec := c.post("/verify", url.Values{"otp": {"123456"}})
	assert.Equal(t, "/register", rec.Header().Get("Location"))
	assert.Equal(t, "Session expired. Please register again.", c.lastFlash())

	rec = c.get("/verify")
	assert.Equal(t, "/register", rec.Header().Get("Location"))
}

func TestResend_InvalidatesPreviousCode(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)
	c.post("/register", registrationForm("Alice", "alice@example.com", "secret123"))
	first := issuer.last("alice@example.com")

	rec := c.post("/verify/resend", nil)
	assert.Equal(t, "/verify", rec.Header().Get("Location"))
	second := issuer.last("alice@example.com")
	require.NotEqual(t, first, second)

	rec = c.post("/verify", url.Values{"otp": {first}})
	assert.Equal(t, "/verify", rec.Header().Get("Location"))

	rec = c.post("/verify", url.Values{"otp": {second}})
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestLogin_AndLogout(t *testing.T) {
	issuer := setupServices(t)
	signUp(t, newClient(t), issuer, "Alice", "alice@example.com")
	c := newClient(t)

	rec := c.post("/login", url.Values{"email": {"alice@example.com"}, "password": {"wrong-pass"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")

	rec = c.post("/login", url.Values{"email": {"alice@example.com"}, "password": {"secret123"}})
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "/dashboard", c.get("/login").Header().Get("Location"))

	rec = c.post("/logout", nil)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, http.StatusOK, c.get("/login").Code)
}

func TestUploadDownloadDelete(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)
	signUp(t, c, issuer, "Alice", "alice@example.com")

	rec := c.upload("report.pdf", []byte("%PDF-1.4 hello"))
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "File uploaded successfully!", c.lastFlash())

	list, err := Files.List(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].FileID

	assert.Contains(t, c.get("/dashboard").Body.String(), "report.pdf")

	dl := c.get("/files/" + id + "/download")
	assert.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "%PDF-1.4 hello", dl.Body.String())
	assert.Equal(t, "application/pdf", dl.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=report.pdf`, dl.Header().Get("Content-Disposition"))

	rec = c.post("/files/"+id+"/delete", nil)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "File deleted successfully!", c.lastFlash())

	list, err = Files.List(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpload_NoFileSelected(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)
	signUp(t, c, issuer, "Alice", "alice@example.com")

	req := httptest.NewRequest("POST", "/files", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := c.do(req)

	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "No file selected", c.lastFlash())
}

func TestUpload_TooLarge(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)
	signUp(t, c, issuer, "Alice", "alice@example.com")

	c.upload("big.bin", bytes.Repeat([]byte("x"), 1024*1024+1))

	assert.Contains(t, c.lastFlash(), "File is too large")
	list, _ := Files.List(context.Background(), "alice@example.com")
	assert.Empty(t, list)
}

func TestDownload_OtherOwnerSeesNotFound(t *testing.T) {
	issuer := setupServices(t)
	alice := newClient(t)
	signUp(t, alice, issuer, "Alice", "alice@example.com")
	alice.upload("secret.txt", []byte("top secret"))
	list, _ := Files.List(context.Background(), "alice@example.com")
	require.Len(t, list, 1)

	bob := newClient(t)
	signUp(t, bob, issuer, "Bob", "bob@example.com")

	rec := bob.get("/files/" + list[0].FileID + "/download")
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, "File not found", bob.lastFlash())

	rec = bob.post("/files/"+list[0].FileID+"/delete", nil)
	assert.Equal(t, "File not found", bob.lastFlash())

	list, _ = Files.List(context.Background(), "alice@example.com")
	assert.Len(t, list, 1)
}

func TestGetFiles_PaginatesWithTotals(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)
	signUp(t, c, issuer, "Alice", "alice@example.com")
	for i := 0; i < 3; i++ {
		c.upload(fmt.Sprintf("f%d.txt", i), []byte("12345"))
	}

	rec := c.get("/api/files?page=2&per_page=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FilesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Files, 1)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, int64(15), resp.TotalStorage)
}

func TestProfile_ShowsAccount(t *testing.T) {
	issuer := setupServices(t)
	c := newClient(t)
	signUp(t, c, issuer, "Alice", "alice@example.com")

	rec := c.get("/profile")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice@example.com")
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

package httptransport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authservice "verikey/internal/auth/service"
	"verikey/internal/auth/store/refreshtoken"
	"verikey/internal/auth/store/revocation"
	"verikey/internal/auth/token"
	"verikey/internal/blob"
	identityservice "verikey/internal/identity/service"
	userstore "verikey/internal/identity/store/user"
	keyservice "verikey/internal/keys/service"
	keystore "verikey/internal/keys/store/key"
	requestservice "verikey/internal/request/service"
	requeststore "verikey/internal/request/store/request"
	verificationservice "verikey/internal/verification/service"
	verificationstore "verikey/internal/verification/store/verification"
)

const reviewerEmail = "reviewer@example.com"

// =============================================================================
// Router End-to-End Suite
// =============================================================================

// RouterSuite drives the full HTTP surface against real services on memory
// stores: every request passes the middleware chain, the auth gate and the
// JSON codecs exactly as in production.
type RouterSuite struct {
	suite.Suite
	router http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	identity := identityservice.New(userstore.NewInMemoryStore(),
		identityservice.WithPhotoStore(blob.NewInMemoryStore()),
	)
	keys := keyservice.New(keystore.NewInMemoryStore(), identity)
	requests := requestservice.New(requeststore.NewInMemoryStore(), identity, keys)
	verifications := verificationservice.New(
		verificationstore.NewInMemoryStore(), blob.NewInMemoryStore(), identity)

	tokens := token.NewService("router-test-signing-key", time.Hour)
	auth := authservice.New(identity, tokens,
		refreshtoken.NewInMemoryStore(), revocation.NewInMemoryList(), 7*24*time.Hour)

	s.router = NewRouter(Deps{
		Auth:           auth,
		Identity:       identity,
		Requests:       requests,
		Keys:           keys,
		Verifications:  verifications,
		Actors:         identity,
		Verifier:       tokens,
		Revocation:     auth,
		ReviewerEmails: []string{reviewerEmail},
		Logger:         logger,
	})
}

func (s *RouterSuite) do(method, path, accessToken, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

// signup registers an account and returns its access and refresh tokens.
func (s *RouterSuite) signup(email, screenName, firstName string) (accessToken, refreshToken string) {
	rec := s.do(http.MethodPost, "/auth/signup", "", fmt.Sprintf(
		`{"email":%q,"password":"password123","screen_name":%q,"first_name":%q}`,
		email, screenName, firstName))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	body := s.decode(rec)
	return body["access_token"].(string), body["refresh_token"].(string)
}

func imagePayload() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("not really a jpeg"))
}

func (s *RouterSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", s.decode(rec)["status"])
}

func (s *RouterSuite) TestAuthIsRequired() {
	for _, path := range []string{"/profile", "/requests", "/keys", "/verifications/status"} {
		rec := s.do(http.MethodGet, path, "", "")
		s.Equal(http.StatusUnauthorized, rec.Code, path)
	}

	rec := s.do(http.MethodGet, "/profile", "not-a-real-token", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestAuthFlow() {
	accessToken, refreshToken := s.signup("ana@example.com", "ana", "Ana")

	// The issued token opens the app.
	rec := s.do(http.MethodGet, "/auth/verify", accessToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["valid"])

	// Rotation: the new pair works, the spent refresh token does not.
	rec = s.do(http.MethodPost, "/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, refreshToken))
	s.Require().Equal(http.StatusOK, rec.Code)
	rotated := s.decode(rec)

	rec = s.do(http.MethodPost, "/auth/refresh", "", fmt.Sprintf(`{"refresh_token":%q}`, refreshToken))
	s.Equal(http.StatusUnauthorized, rec.Code)

	// Logout revokes the access token immediately.
	newAccess := rotated["access_token"].(string)
	rec = s.do(http.MethodPost, "/auth/logout", newAccess,
		fmt.Sprintf(`{"refresh_token":%q}`, rotated["refresh_token"]))
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/auth/verify", newAccess, "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *RouterSuite) TestLoginWrongPassword() {
	s.signup("ana@example.com", "ana", "Ana")

	rec := s.do(http.MethodPost, "/auth/login", "", `{"email":"ana@example.com","password":"wrong-password"}`)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("unauthorized", s.decode(rec)["error"])
}

func (s *RouterSuite) TestProfileEndpoints() {
	accessToken, _ := s.signup("ana@example.com", "ana", "Ana")
	s.signup("tom@example.com", "tomo", "Tom")

	// Update free-form notes.
	rec := s.do(http.MethodPatch, "/profile", accessToken, `{"notes":"Ask me about hiking"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("Ask me about hiking", s.decode(rec)["notes"])

	// Screen name availability.
	rec = s.do(http.MethodGet, "/profile/check-screen-name?screen_name=tomo", accessToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(false, s.decode(rec)["available"])

	rec = s.do(http.MethodGet, "/profile/check-screen-name?screen_name=fresh_name", accessToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["available"])

	// Directory search and lookup.
	rec = s.do(http.MethodGet, "/users/search?q=tom", accessToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	users := s.decode(rec)["users"].([]any)
	s.Require().Len(users, 1)

	rec = s.do(http.MethodGet, "/users/lookup?identifier=@tomo", accessToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("tomo", s.decode(rec)["screen_name"])

	// Changing the screen name frees the old one.
	rec = s.do(http.MethodPut, "/profile/screen-name", accessToken, `{"screen_name":"ana_renamed"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("ana_renamed", s.decode(rec)["screen_name"])
}

func (s *RouterSuite) TestRequestLifecycle() {
	requesterToken, _ := s.signup("rika@example.com", "rika", "Rika")
	targetToken, _ := s.signup("tom@example.com", "tomo", "Tom")

	rec := s.do(http.MethodPost, "/requests", requesterToken,
		`{"target":"tom@example.com","label":"Identity check","categories":["firstname","age"]}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	created := s.decode(rec)
	requestID := created["id"].(string)
	s.Equal("pending", created["status"])

	// The target sees it in the inbox, the requester in the outbox.
	rec = s.do(http.MethodGet, "/requests?box=inbox", targetToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(s.decode(rec)["inbox"].([]any), 1)

	rec = s.do(http.MethodGet, "/requests?box=outbox", requesterToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(s.decode(rec)["outbox"].([]any), 1)

	// A stranger cannot even see it.
	strangerToken, _ := s.signup("sam@example.com", "samng", "Sam")
	rec = s.do(http.MethodGet, "/requests/"+requestID, strangerToken, "")
	s.Equal(http.StatusNotFound, rec.Code)

	// The target denies; a second deny conflicts.
	rec = s.do(http.MethodPost, "/requests/"+requestID+"/deny", targetToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("denied", s.decode(rec)["status"])

	rec = s.do(http.MethodPost, "/requests/"+requestID+"/deny", targetToken, "")
	s.Equal(http.StatusConflict, rec.Code)

	// Fulfilling a denied request conflicts too.
	rec = s.do(http.MethodPost, "/requests/"+requestID+"/fulfill", targetToken, `{"age":"29"}`)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *RouterSuite) TestFulfillServesKeyAndBundle() {
	requesterToken, _ := s.signup("rika@example.com", "rika", "Rika")
	targetToken, _ := s.signup("tom@example.com", "tomo", "Tom")

	rec := s.do(http.MethodPost, "/requests", requesterToken,
		`{"target":"@tomo","label":"Quick check","categories":["firstname","age"]}`)
	s.Require().Equal(http.StatusCreated, rec.Code)
	requestID := s.decode(rec)["id"].(string)

	rec = s.do(http.MethodPost, "/requests/"+requestID+"/fulfill", targetToken, `{"age":"29"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	result := s.decode(rec)
	s.Equal("completed", result["request"].(map[string]any)["status"])

	key := result["key"].(map[string]any)
	s.Equal("Response to: Quick check", key["label"])
	keyID := key["id"].(string)

	// The requester consumes a view and reads the bundle.
	rec = s.do(http.MethodPost, "/keys/"+keyID+"/view", requesterToken, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	view := s.decode(rec)
	bundle := view["bundle"].(map[string]any)
	s.Equal("29", bundle["age"])
	s.Equal("Tom", bundle["firstname"])
	s.Equal(float64(1), view["key"].(map[string]any)["views_used"])

	// Default budget is two views; the exhausting view still gets the
	// bundle, the one after that gets the authoritative state.
	rec = s.do(http.MethodPost, "/keys/"+keyID+"/view", requesterToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("viewed_out", s.decode(rec)["key"].(map[string]any)["status"])

	rec = s.do(http.MethodPost, "/keys/"+keyID+"/view", requesterToken, "")
	s.Require().Equal(http.StatusConflict, rec.Code)
	s.Contains(s.decode(rec)["error_description"], "viewed_out")

	// The responder, as creator, never had view access.
	rec = s.do(http.MethodPost, "/keys/"+keyID+"/view", targetToken, "")
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestProactiveKeyShare() {
	creatorToken, _ := s.signup("ana@example.com", "ana", "Ana")
	recipientToken, _ := s.signup("tom@example.com", "tomo", "Tom")

	rec := s.do(http.MethodPost, "/keys", creatorToken,
		`{"recipient":"@tomo","label":"Backup ID","categories":["firstname"],"views_allowed":1,"submission":{}}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	keyID := s.decode(rec)["id"].(string)

	// Unviewed keys count toward the recipient's badge.
	rec = s.do(http.MethodGet, "/keys/new-count", recipientToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(float64(1), s.decode(rec)["count"])

	rec = s.do(http.MethodGet, "/keys?box=received", recipientToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(s.decode(rec)["received"].([]any), 1)

	// Revoke is creator-only and terminal; a terminal key can be deleted.
	rec = s.do(http.MethodPost, "/keys/"+keyID+"/revoke", recipientToken, `{"reason":"not mine"}`)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/keys/"+keyID+"/revoke", creatorToken, `{"reason":"shared by mistake"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("revoked", s.decode(rec)["status"])

	rec = s.do(http.MethodPost, "/keys/"+keyID+"/view", recipientToken, "")
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodDelete, "/keys/"+keyID, creatorToken, "")
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *RouterSuite) TestVerificationFlow() {
	userToken, _ := s.signup("ana@example.com", "ana", "Ana")
	reviewerToken, _ := s.signup(reviewerEmail, "reviewer", "Rae")

	// Nothing submitted yet.
	rec := s.do(http.MethodGet, "/verifications/status", userToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("submit", s.decode(rec)["next_step"])

	// Submit a passport (no back image required).
	rec = s.do(http.MethodPost, "/verifications", userToken, fmt.Sprintf(
		`{"document_type":"passport","front_image_data":%q,"first_name":"Ana","last_name":"Silva"}`,
		imagePayload()))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	submitted := s.decode(rec)
	verificationID := submitted["id"].(string)
	s.Equal("needs_review", submitted["status"])

	// Only configured reviewers may decide.
	rec = s.do(http.MethodPost, "/verifications/"+verificationID+"/review", userToken,
		`{"decision":"approve"}`)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/verifications/"+verificationID+"/review", reviewerToken,
		`{"decision":"approve","notes":"checks out"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("approved", s.decode(rec)["status"])

	// Approval marks the account verified.
	rec = s.do(http.MethodGet, "/profile", userToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["is_verified"])

	rec = s.do(http.MethodGet, "/verifications/status", userToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("done", s.decode(rec)["next_step"])
}

func (s *RouterSuite) TestContentTypeGuard() {
	rec := s.do(http.MethodPost, "/auth/login", "", `{"email":"a@b.com","password":"x"}`)
	s.NotEqual(http.StatusUnsupportedMediaType, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("email=a"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnsupportedMediaType, rec.Code)
}

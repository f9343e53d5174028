package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"RS256"}`)) + "." + enc.EncodeToString(payload) + ".sig"
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(topic string, v any) error {
	if topic != Topic {
		return fmt.Errorf("unexpected topic %q", topic)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, v.(Event))
	return nil
}

func (p *recordingPublisher) kinds() []EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]EventKind, 0, len(p.events))
	for _, ev := range p.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// fakeProvider answers identity provider actions from a handler map.
type fakeProvider struct {
	t        *testing.T
	mu       sync.Mutex
	calls    []string
	bodies   map[string]map[string]any
	handlers map[string]func(body map[string]any) (int, any)
}

func newFakeProvider(t *testing.T) *fakeProvider {
	return &fakeProvider{t: t, bodies: map[string]map[string]any{}, handlers: map[string]func(map[string]any) (int, any){}}
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")
	action := target[strings.LastIndex(target, ".")+1:]
	if ct := r.Header.Get("Content-Type"); ct != "application/x-amz-json-1.1" {
		f.t.Errorf("Content-Type = %q", ct)
	}

	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.calls = append(f.calls, action)
	f.bodies[action] = body
	h := f.handlers[action]
	f.mu.Unlock()

	if h == nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"__type":"InvalidActionException","message":"unknown action ` + action + `"}`))
		return
	}
	status, out := h(body)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(out)
}

func (f *fakeProvider) called(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == action {
			n++
		}
	}
	return n
}

func (f *fakeProvider) body(action string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[action]
}

func newTestClient(t *testing.T, fp *fakeProvider, pub EventPublisher) *Client {
	t.Helper()
	server := httptest.NewServer(fp)
	t.Cleanup(server.Close)
	return NewClient(Config{
		Region:           "us-east-1",
		UserPoolID:       "us-east-1_pool",
		ClientID:         "client",
		IdentityPoolID:   "us-east-1:ident",
		Endpoint:         server.URL,
		IdentityEndpoint: server.URL,
	}, pub, nil)
}

func signInHandler(t *testing.T, exp time.Time) func(map[string]any) (int, any) {
	return func(body map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"AuthenticationResult": map[string]any{
				"IdToken": makeToken(t, map[string]any{
					"sub":              "sub-123",
					"email":            "alice@example.com",
					"email_verified":   true,
					"cognito:username": "alice",
					"exp":              exp.Unix(),
				}),
				"AccessToken":  "access-1",
				"RefreshToken": "refresh-1",
				"ExpiresIn":    3600,
			},
		}
	}
}

func TestSignIn(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	pub := &recordingPublisher{}
	c := newTestClient(t, fp, pub)

	sess, err := c.SignIn(context.Background(), "alice", "hunter22")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	if sess.Claims.Subject != "sub-123" || sess.Claims.Username != "alice" || !sess.Claims.EmailVerified {
		t.Errorf("Claims = %+v", sess.Claims)
	}
	if sess.AccessToken != "access-1" || sess.RefreshToken != "refresh-1" {
		t.Errorf("session tokens = %+v", sess)
	}

	body := fp.body("InitiateAuth")
	if body["AuthFlow"] != "USER_PASSWORD_AUTH" || body["ClientId"] != "client" {
		t.Errorf("InitiateAuth body = %v", body)
	}

	kinds := pub.kinds()
	if len(kinds) != 1 || kinds[0] != EventSignedIn {
		t.Fatalf("events = %v, want [signed-in]", kinds)
	}
	if pub.events[0].Session == nil || pub.events[0].Subject != "sub-123" {
		t.Errorf("signed-in event = %+v", pub.events[0])
	}

	token, err := c.Token(context.Background())
	if err != nil || token != sess.IDToken {
		t.Errorf("Token() = %q, %v", token, err)
	}
}

func TestSignInFailure(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = func(map[string]any) (int, any) {
		return http.StatusBadRequest, map[string]any{
			"__type":  "com.amazonaws.cognito#NotAuthorizedException",
			"message": "Incorrect username or password.",
		}
	}
	pub := &recordingPublisher{}
	c := newTestClient(t, fp, pub)

	_, err := c.SignIn(context.Background(), "alice", "wrong")
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error = %v, want *ServiceError", err)
	}
	if svcErr.Type != "NotAuthorizedException" {
		t.Errorf("Type = %q", svcErr.Type)
	}
	if svcErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", svcErr.StatusCode)
	}
	if svcErr.RemoteMessage() != "Incorrect username or password." {
		t.Errorf("RemoteMessage() = %q", svcErr.RemoteMessage())
	}
	if len(pub.kinds()) != 0 {
		t.Errorf("events = %v, want none", pub.kinds())
	}
	if _, err := c.CurrentSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("CurrentSession() error = %v, want ErrNoSession", err)
	}
}

func TestSignInChallenge(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"ChallengeName": "NEW_PASSWORD_REQUIRED"}
	}
	c := newTestClient(t, fp, nil)

	if _, err := c.SignIn(context.Background(), "alice", "temp"); !errors.Is(err, ErrChallengeRequired) {
		t.Errorf("error = %v, want ErrChallengeRequired", err)
	}
}

func TestSignUp(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["SignUp"] = func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"UserSub": "sub-new", "UserConfirmed": false}
	}
	pub := &recordingPublisher{}
	c := newTestClient(t, fp, pub)

	sub, err := c.SignUp(context.Background(), "bob", "pw123456", "bob@example.com")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if sub != "sub-new" {
		t.Errorf("sub = %q", sub)
	}
	attrs := fp.body("SignUp")["UserAttributes"].([]any)
	first := attrs[0].(map[string]any)
	if first["Name"] != "email" || first["Value"] != "bob@example.com" {
		t.Errorf("UserAttributes = %v", attrs)
	}
	if kinds := pub.kinds(); len(kinds) != 1 || kinds[0] != EventSignedUp {
		t.Errorf("events = %v, want [signed-up]", kinds)
	}
}

func TestSignOutClearsLocallyEvenWhenRemoteFails(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	fp.handlers["GlobalSignOut"] = func(map[string]any) (int, any) {
		return http.StatusInternalServerError, map[string]any{"__type": "InternalErrorException", "message": "boom"}
	}
	pub := &recordingPublisher{}
	c := newTestClient(t, fp, pub)

	if _, err := c.SignIn(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	err := c.SignOut(context.Background())
	if err == nil {
		t.Error("SignOut() expected remote error")
	}
	if _, err := c.CurrentSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("CurrentSession() error = %v, want ErrNoSession", err)
	}
	kinds := pub.kinds()
	if len(kinds) != 2 || kinds[1] != EventSignedOut {
		t.Errorf("events = %v, want [signed-in signed-out]", kinds)
	}
	if fp.body("GlobalSignOut")["AccessToken"] != "access-1" {
		t.Errorf("GlobalSignOut body = %v", fp.body("GlobalSignOut"))
	}
}

func TestSignOutWithoutSession(t *testing.T) {
	fp := newFakeProvider(t)
	pub := &recordingPublisher{}
	c := newTestClient(t, fp, pub)

	if err := c.SignOut(context.Background()); err != nil {
		t.Errorf("SignOut() error = %v", err)
	}
	if fp.called("GlobalSignOut") != 0 || len(pub.kinds()) != 0 {
		t.Error("SignOut without session should not call remote or publish")
	}
}

func TestCurrentSessionRefreshesExpiredTokens(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = func(body map[string]any) (int, any) {
		if body["AuthFlow"] == "REFRESH_TOKEN_AUTH" {
			params := body["AuthParameters"].(map[string]any)
			if params["REFRESH_TOKEN"] != "refresh-1" {
				t.Errorf("REFRESH_TOKEN = %v", params["REFRESH_TOKEN"])
			}
			return http.StatusOK, map[string]any{
				"AuthenticationResult": map[string]any{
					"IdToken":     makeToken(t, map[string]any{"sub": "sub-123", "exp": time.Now().Add(time.Hour).Unix()}),
					"AccessToken": "access-2",
				},
			}
		}
		return signInHandler(t, time.Now().Add(-time.Minute))(body)
	}
	c := newTestClient(t, fp, nil)

	if _, err := c.SignIn(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	sess, err := c.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if sess.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want refreshed token", sess.AccessToken)
	}
	if sess.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want carried over", sess.RefreshToken)
	}
	if sess.Claims.Username != "alice" {
		t.Errorf("Username = %q, want carried over", sess.Claims.Username)
	}
}

func TestAttributeOperations(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	fp.handlers["GetUser"] = func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"Username": "alice",
			"UserAttributes": []map[string]string{
				{"Name": "sub", "Value": "sub-123"},
				{"Name": "email", "Value": "alice@example.com"},
				{"Name": "email_verified", "Value": "false"},
			},
		}
	}
	ok := func(map[string]any) (int, any) { return http.StatusOK, map[string]any{} }
	fp.handlers["UpdateUserAttributes"] = ok
	fp.handlers["GetUserAttributeVerificationCode"] = ok
	fp.handlers["VerifyUserAttribute"] = ok
	c := newTestClient(t, fp, nil)
	ctx := context.Background()

	if _, err := c.SignIn(ctx, "alice", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	attrs, err := c.UserAttributes(ctx)
	if err != nil {
		t.Fatalf("UserAttributes() error = %v", err)
	}
	if attrs["email_verified"] != "false" || attrs["email"] != "alice@example.com" {
		t.Errorf("attrs = %v", attrs)
	}

	if err := c.UpdateUserAttributes(ctx, map[string]string{"email": "new@example.com"}); err != nil {
		t.Fatalf("UpdateUserAttributes() error = %v", err)
	}
	if err := c.RequestAttributeVerification(ctx, "email"); err != nil {
		t.Fatalf("RequestAttributeVerification() error = %v", err)
	}
	if err := c.VerifyAttribute(ctx, "email", "123456"); err != nil {
		t.Fatalf("VerifyAttribute() error = %v", err)
	}
	if got := fp.body("VerifyUserAttribute"); got["Code"] != "123456" || got["AttributeName"] != "email" {
		t.Errorf("VerifyUserAttribute body = %v", got)
	}
}

func TestAttributeOperationsRequireSession(t *testing.T) {
	c := newTestClient(t, newFakeProvider(t), nil)
	ctx := context.Background()

	if _, err := c.UserAttributes(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("UserAttributes() error = %v", err)
	}
	if err := c.DeleteUser(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("DeleteUser() error = %v", err)
	}
	if token, err := c.Token(ctx); token != "" || err != nil {
		t.Errorf("Token() = %q, %v, want empty without error", token, err)
	}
	if _, err := c.SignRealtime(ctx, "realtime.example.com"); !errors.Is(err, ErrNoSession) {
		t.Errorf("SignRealtime() error = %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	fp.handlers["DeleteUser"] = func(map[string]any) (int, any) { return http.StatusOK, map[string]any{} }
	pub := &recordingPublisher{}
	c := newTestClient(t, fp, pub)

	if _, err := c.SignIn(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if err := c.DeleteUser(context.Background()); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := c.CurrentSession(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("session should be cleared after delete, got %v", err)
	}
	if kinds := pub.kinds(); kinds[len(kinds)-1] != EventSignedOut {
		t.Errorf("events = %v, want trailing signed-out", kinds)
	}
}

func TestStorageIdentityIsCached(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	fp.handlers["GetId"] = func(body map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"IdentityId": "us-east-1:abc-def"}
	}
	c := newTestClient(t, fp, nil)
	ctx := context.Background()

	if _, err := c.SignIn(ctx, "alice", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		id, err := c.StorageIdentity(ctx)
		if err != nil {
			t.Fatalf("StorageIdentity() error = %v", err)
		}
		if id != "us-east-1:abc-def" {
			t.Errorf("StorageIdentity() = %q", id)
		}
	}
	if n := fp.called("GetId"); n != 1 {
		t.Errorf("GetId called %d times, want 1", n)
	}

	logins := fp.body("GetId")["Logins"].(map[string]any)
	if _, ok := logins["cognito-idp.us-east-1.amazonaws.com/us-east-1_pool"]; !ok {
		t.Errorf("Logins = %v", logins)
	}
}

func TestRetrieveCachesCredentials(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	fp.handlers["GetId"] = func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"IdentityId": "us-east-1:abc-def"}
	}
	fp.handlers["GlobalSignOut"] = func(map[string]any) (int, any) { return http.StatusOK, map[string]any{} }
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	fp.handlers["GetCredentialsForIdentity"] = func(body map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"IdentityId": body["IdentityId"],
			"Credentials": map[string]any{
				"AccessKeyId":  "AKID",
				"SecretKey":    "secret",
				"SessionToken": "session",
				"Expiration":   expires.Unix(),
			},
		}
	}
	c := newTestClient(t, fp, nil)
	ctx := context.Background()

	if _, err := c.Retrieve(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Retrieve() before sign-in error = %v, want ErrNoSession", err)
	}
	if _, err := c.SignIn(ctx, "alice", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		creds, err := c.Retrieve(ctx)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if creds.AccessKeyID != "AKID" || creds.SecretAccessKey != "secret" || creds.SessionToken != "session" {
			t.Errorf("creds = %+v", creds)
		}
		if !creds.CanExpire || !creds.Expires.Equal(expires) {
			t.Errorf("Expires = %v, CanExpire = %v", creds.Expires, creds.CanExpire)
		}
	}
	if n := fp.called("GetCredentialsForIdentity"); n != 1 {
		t.Errorf("GetCredentialsForIdentity called %d times, want 1", n)
	}
	if got := fp.body("GetCredentialsForIdentity")["IdentityId"]; got != "us-east-1:abc-def" {
		t.Errorf("IdentityId = %v", got)
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, err := c.Retrieve(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Retrieve() after sign-out error = %v, want ErrNoSession", err)
	}
}

func TestRetrieveRejected(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	fp.handlers["GetId"] = func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"IdentityId": "us-east-1:abc-def"}
	}
	fp.handlers["GetCredentialsForIdentity"] = func(map[string]any) (int, any) {
		return http.StatusBadRequest, map[string]any{"__type": "NotAuthorizedException", "message": "Invalid login token."}
	}
	c := newTestClient(t, fp, nil)
	ctx := context.Background()

	if _, err := c.SignIn(ctx, "alice", "pw"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	_, err := c.Retrieve(ctx)
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Type != "NotAuthorizedException" {
		t.Fatalf("Retrieve() error = %v, want NotAuthorizedException", err)
	}
}

func TestSignRealtime(t *testing.T) {
	fp := newFakeProvider(t)
	fp.handlers["InitiateAuth"] = signInHandler(t, time.Now().Add(time.Hour))
	c := newTestClient(t, fp, nil)

	sess, err := c.SignIn(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	headers, err := c.SignRealtime(context.Background(), "api.example.com")
	if err != nil {
		t.Fatalf("SignRealtime() error = %v", err)
	}
	if headers["host"] != "api.example.com" || headers["Authorization"] != sess.IDToken {
		t.Errorf("headers = %v", headers)
	}
}

func TestDecodeClaims(t *testing.T) {
	t.Run("string email_verified", func(t *testing.T) {
		token := makeToken(t, map[string]any{"sub": "s", "username": "u", "email_verified": "true", "exp": 1700000000})
		c, err := DecodeClaims(token)
		if err != nil {
			t.Fatalf("DecodeClaims() error = %v", err)
		}
		if !c.EmailVerified || c.Username != "u" {
			t.Errorf("claims = %+v", c)
		}
		if !c.ExpiresAt.Equal(time.Unix(1700000000, 0)) {
			t.Errorf("ExpiresAt = %v", c.ExpiresAt)
		}
	})

	t.Run("signed token", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":              "sub-9",
			"cognito:username": "bob",
			"email":            "bob@example.com",
			"email_verified":   true,
			"exp":              jwt.NewNumericDate(exp),
		}).SignedString([]byte("test-key"))
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		c, err := DecodeClaims(token)
		if err != nil {
			t.Fatalf("DecodeClaims() error = %v", err)
		}
		if c.Subject != "sub-9" || c.Username != "bob" || c.Email != "bob@example.com" || !c.EmailVerified {
			t.Errorf("claims = %+v", c)
		}
		if !c.ExpiresAt.Equal(exp) {
			t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, exp)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, token := range []string{"", "a.b", "a.!!!.c", "a." + base64.RawURLEncoding.EncodeToString([]byte("nope")) + ".c"} {
			if _, err := DecodeClaims(token); !errors.Is(err, ErrMalformedToken) {
				t.Errorf("DecodeClaims(%q) error = %v, want ErrMalformedToken", token, err)
			}
		}
	})
}

func TestSessionIdentity(t *testing.T) {
	sess := &Session{
		IDToken: "id",
		Claims:  Claims{Subject: "sub-1", Username: "alice", Email: "old@example.com", EmailVerified: true},
	}
	id := sess.Identity(map[string]string{"email": "new@example.com", "email_verified": "false"})

	if id.Username != "alice" || id.Session != "id" {
		t.Errorf("identity = %+v", id)
	}
	if id.Subject() != "sub-1" {
		t.Errorf("Subject() = %q", id.Subject())
	}
	if id.Email() != "new@example.com" || id.EmailVerified() {
		t.Errorf("attributes should win over claims: %v", id.Attributes)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	if (&Session{}).Expired(now) {
		t.Error("zero expiry should never expire")
	}
	if !(&Session{ExpiresAt: now}).Expired(now) {
		t.Error("session should be expired at its expiry")
	}
	if (&Session{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Error("session should not be expired before its expiry")
	}
}

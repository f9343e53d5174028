// Package auth provides the hosted identity provider client: sign-in,
// sign-up, sign-out, profile attributes and the storage identity.
//
// Every session transition is published as an Event on the "auth" topic.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/rickgao/storefront/internal/model"
)

// Topic is the bus topic auth events are published on.
const Topic = "auth"

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("no current session")

// ErrChallengeRequired is returned when sign-in needs an extra step
// (new password, MFA) this client does not drive.
var ErrChallengeRequired = errors.New("sign-in challenge required")

// Config holds identity provider settings.
type Config struct {
	Region           string
	UserPoolID       string
	ClientID         string
	IdentityPoolID   string
	Endpoint         string // Overrides the regional user pool endpoint
	IdentityEndpoint string // Overrides the regional identity pool endpoint
}

func (c Config) identityEndpoint() string {
	if c.IdentityEndpoint != "" {
		return c.IdentityEndpoint
	}
	return fmt.Sprintf("https://cognito-identity.%s.amazonaws.com/", c.Region)
}

// loginProvider is the identity pool login key for the user pool.
func (c Config) loginProvider() string {
	return fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// EventPublisher delivers auth events to the rest of the process.
type EventPublisher interface {
	Publish(topic string, v any) error
}

// Session holds the tokens of a signed-in user.
type Session struct {
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Claims       Claims    `json:"claims"`
}

// Expired reports whether the ID token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Identity builds the storefront identity from the session and attrs.
// Claims fill in sub, email and email_verified when attrs lacks them.
func (s *Session) Identity(attrs map[string]string) model.Identity {
	merged := make(map[string]string, len(attrs)+3)
	if s.Claims.Subject != "" {
		merged[model.AttrSubject] = s.Claims.Subject
	}
	if s.Claims.Email != "" {
		merged[model.AttrEmail] = s.Claims.Email
		merged[model.AttrEmailVerified] = fmt.Sprintf("%t", s.Claims.EmailVerified)
	}
	for k, v := range attrs {
		merged[k] = v
	}
	return model.Identity{
		Username:   s.Claims.Username,
		Session:    s.IDToken,
		Attributes: merged,
	}
}

// Client talks to the hosted identity provider and owns the local session.
type Client struct {
	cfg        Config
	userPool   *cip.Client
	httpClient *http.Client
	events     EventPublisher
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.RWMutex
	session    *Session
	identityID string          // Storage identity, cached per session
	creds      aws.Credentials // Identity pool credentials, cached per session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an identity client. events may be nil.
func NewClient(cfg Config, events EventPublisher, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	// User pool calls made by an app client are authorized by tokens in
	// the request, so requests go unsigned. Failures are never retried.
	c.userPool = cip.New(cip.Options{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
		HTTPClient:  c.httpClient,
		Retryer:     aws.NopRetryer{},
	}, func(o *cip.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return c
}

// SignIn authenticates with username and password.
func (c *Client) SignIn(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, errors.New("sign in: username and password are required")
	}

	out, err := c.userPool.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(c.cfg.ClientID),
		AuthParameters: map[string]string{"USERNAME": username, "PASSWORD": password},
	})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", serviceError(err))
	}
	if out.ChallengeName != "" {
		return nil, fmt.Errorf("sign in: %s: %w", out.ChallengeName, ErrChallengeRequired)
	}
	if out.AuthenticationResult == nil {
		return nil, errors.New("sign in: empty authentication result")
	}

	sess, err := c.newSession(out.AuthenticationResult, "")
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if sess.Claims.Username == "" {
		sess.Claims.Username = username
	}

	c.mu.Lock()
	c.session = sess
	c.identityID = ""
	c.creds = aws.Credentials{}
	c.mu.Unlock()

	c.logger.Info("signed in", "username", sess.Claims.Username)
	c.publish(Event{Kind: EventSignedIn, Subject: sess.Claims.Subject, Username: sess.Claims.Username, Session: sess})
	return sess, nil
}

// SignUp registers a new account. The account must be confirmed before
// it can sign in.
func (c *Client) SignUp(ctx context.Context, username, password, email string) (string, error) {
	out, err := c.userPool.SignUp(ctx, &cip.SignUpInput{
		ClientId: aws.String(c.cfg.ClientID),
		Username: aws.String(username),
		Password: aws.String(password),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(model.AttrEmail), Value: aws.String(email)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sign up: %w", serviceError(err))
	}

	sub := aws.ToString(out.UserSub)
	c.logger.Info("signed up", "username", username, "confirmed", out.UserConfirmed)
	c.publish(Event{Kind: EventSignedUp, Subject: sub, Username: username})
	return sub, nil
}

// SignOut clears the local session first, then revokes tokens remotely.
// The local state is gone even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	sess := c.clear()
	if sess == nil {
		return nil
	}
	c.publish(Event{Kind: EventSignedOut, Subject: sess.Claims.Subject, Username: sess.Claims.Username})

	_, err := c.userPool.GlobalSignOut(ctx, &cip.GlobalSignOutInput{AccessToken: aws.String(sess.AccessToken)})
	if err != nil {
		return fmt.Errorf("sign out: %w", serviceError(err))
	}
	return nil
}

// CurrentSession returns the signed-in session, refreshing expired tokens.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	sess := c.session
	c.mu.RUnlock()

	if sess == nil {
		return nil, ErrNoSession
	}
	if !sess.Expired(c.now()) {
		return sess, nil
	}
	return c.refresh(ctx, sess)
}

func (c *Client) refresh(ctx context.Context, sess *Session) (*Session, error) {
	if sess.RefreshToken == "" {
		c.clear()
		return nil, ErrNoSession
	}

	out, err := c.userPool.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(c.cfg.ClientID),
		AuthParameters: map[string]string{"REFRESH_TOKEN": sess.RefreshToken},
	})
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", serviceError(err))
	}
	if out.AuthenticationResult == nil {
		return nil, errors.New("refresh session: empty authentication result")
	}

	fresh, err := c.newSession(out.AuthenticationResult, sess.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if fresh.Claims.Username == "" {
		fresh.Claims.Username = sess.Claims.Username
	}

	c.mu.Lock()
	// A sign-out that raced the refresh wins.
	if c.session != sess {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	c.session = fresh
	c.creds = aws.Credentials{}
	c.mu.Unlock()

	c.logger.Debug("session refreshed", "username", fresh.Claims.Username)
	return fresh, nil
}

// Token returns the current ID token, or "" when nobody is signed in.
func (c *Client) Token(ctx context.Context) (string, error) {
	sess, err := c.CurrentSession(ctx)
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.IDToken, nil
}

// UserAttributes lists the signed-in user's profile attributes.
func (c *Client) UserAttributes(ctx context.Context) (map[string]string, error) {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("user attributes: %w", err)
	}

	out, err := c.userPool.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(sess.AccessToken)})
	if err != nil {
		return nil, fmt.Errorf("user attributes: %w", serviceError(err))
	}

	attrs := make(map[string]string, len(out.UserAttributes))
	for _, a := range out.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return attrs, nil
}

// UpdateUserAttributes changes profile attributes. Changing the email
// makes the provider mark it unverified.
func (c *Client) UpdateUserAttributes(ctx context.Context, attrs map[string]string) error {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("update attributes: %w", err)
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]types.AttributeType, 0, len(names))
	for _, name := range names {
		list = append(list, types.AttributeType{Name: aws.String(name), Value: aws.String(attrs[name])})
	}

	_, err = c.userPool.UpdateUserAttributes(ctx, &cip.UpdateUserAttributesInput{
		AccessToken:    aws.String(sess.AccessToken),
		UserAttributes: list,
	})
	if err != nil {
		return fmt.Errorf("update attributes: %w", serviceError(err))
	}
	return nil
}

// RequestAttributeVerification sends a verification code for attr.
// The provider rate limits this call.
func (c *Client) RequestAttributeVerification(ctx context.Context, attr string) error {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("request verification: %w", err)
	}
	_, err = c.userPool.GetUserAttributeVerificationCode(ctx, &cip.GetUserAttributeVerificationCodeInput{
		AccessToken:   aws.String(sess.AccessToken),
		AttributeName: aws.String(attr),
	})
	if err != nil {
		return fmt.Errorf("request verification: %w", serviceError(err))
	}
	return nil
}

// VerifyAttribute submits the code sent for attr.
func (c *Client) VerifyAttribute(ctx context.Context, attr, code string) error {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("verify attribute: %w", err)
	}
	_, err = c.userPool.VerifyUserAttribute(ctx, &cip.VerifyUserAttributeInput{
		AccessToken:   aws.String(sess.AccessToken),
		AttributeName: aws.String(attr),
		Code:          aws.String(code),
	})
	if err != nil {
		return fmt.Errorf("verify attribute: %w", serviceError(err))
	}
	return nil
}

// DeleteUser irreversibly deletes the signed-in account and ends the session.
func (c *Client) DeleteUser(ctx context.Context) error {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if _, err := c.userPool.DeleteUser(ctx, &cip.DeleteUserInput{AccessToken: aws.String(sess.AccessToken)}); err != nil {
		return fmt.Errorf("delete user: %w", serviceError(err))
	}

	if c.clear() != nil {
		c.publish(Event{Kind: EventSignedOut, Subject: sess.Claims.Subject, Username: sess.Claims.Username})
	}
	c.logger.Info("user deleted", "username", sess.Claims.Username)
	return nil
}

// SignRealtime returns the authorization header object the realtime
// endpoint expects for host.
func (c *Client) SignRealtime(ctx context.Context, host string) (map[string]string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoSession
	}
	return map[string]string{
		"host":          host,
		"Authorization": token,
	}, nil
}

func (c *Client) newSession(res *types.AuthenticationResultType, refreshToken string) (*Session, error) {
	idToken := aws.ToString(res.IdToken)
	claims, err := DecodeClaims(idToken)
	if err != nil {
		return nil, err
	}
	if rt := aws.ToString(res.RefreshToken); rt != "" {
		refreshToken = rt
	}
	sess := &Session{
		IDToken:      idToken,
		AccessToken:  aws.ToString(res.AccessToken),
		RefreshToken: refreshToken,
		Claims:       claims,
	}
	switch {
	case !claims.ExpiresAt.IsZero():
		sess.ExpiresAt = claims.ExpiresAt
	case res.ExpiresIn > 0:
		sess.ExpiresAt = c.now().Add(time.Duration(res.ExpiresIn) * time.Second)
	}
	return sess, nil
}

// clear drops the local session and returns what was there.
func (c *Client) clear() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.session
	c.session = nil
	c.identityID = ""
	c.creds = aws.Credentials{}
	return sess
}

func (c *Client) publish(ev Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(Topic, ev); err != nil {
		c.logger.Warn("publish auth event", "kind", ev.Kind, "error", err)
	}
}

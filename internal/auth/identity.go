package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/rickgao/storefront/internal/version"
)

const identityService = "AWSCognitoIdentityService."

// credentialsSource tags credentials handed out by Retrieve.
const credentialsSource = "CognitoIdentity"

// ServiceError is an error returned by the identity provider.
type ServiceError struct {
	StatusCode int
	Type       string // e.g. NotAuthorizedException
	Message    string

	err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("identity provider %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// RemoteMessage returns the provider's message.
func (e *ServiceError) RemoteMessage() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// serviceError converts an SDK operation error into a *ServiceError.
// Transport failures are returned unchanged.
func serviceError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	e := &ServiceError{Type: apiErr.ErrorCode(), Message: apiErr.ErrorMessage(), err: err}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		e.StatusCode = respErr.HTTPStatusCode()
	}
	if e.Message == "" && e.StatusCode != 0 {
		e.Message = http.StatusText(e.StatusCode)
	}
	return e
}

type getIDInput struct {
	IdentityPoolID string            `json:"IdentityPoolId"`
	Logins         map[string]string `json:"Logins"`
}

type getIDOutput struct {
	IdentityID string `json:"IdentityId"`
}

type getCredentialsInput struct {
	IdentityID string            `json:"IdentityId"`
	Logins     map[string]string `json:"Logins"`
}

type getCredentialsOutput struct {
	IdentityID  string `json:"IdentityId"`
	Credentials struct {
		AccessKeyID  string  `json:"AccessKeyId"`
		SecretKey    string  `json:"SecretKey"`
		SessionToken string  `json:"SessionToken"`
		Expiration   float64 `json:"Expiration"` // Epoch seconds
	} `json:"Credentials"`
}

// StorageIdentity returns the identity pool id of the signed-in user.
// The id scopes uploads to the user's protected storage prefix and is
// cached for the life of the session.
func (c *Client) StorageIdentity(ctx context.Context) (string, error) {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return "", fmt.Errorf("storage identity: %w", err)
	}

	c.mu.RLock()
	id := c.identityID
	c.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	var out getIDOutput
	in := getIDInput{IdentityPoolID: c.cfg.IdentityPoolID, Logins: c.logins(sess)}
	if err := c.callIdentity(ctx, "GetId", in, &out); err != nil {
		return "", fmt.Errorf("storage identity: %w", err)
	}
	if out.IdentityID == "" {
		return "", errors.New("storage identity: empty identity id")
	}

	c.mu.Lock()
	if c.session == sess {
		c.identityID = out.IdentityID
	}
	c.mu.Unlock()
	return out.IdentityID, nil
}

// Retrieve returns temporary storage credentials for the signed-in
// user's identity. It satisfies aws.CredentialsProvider so object
// storage requests are signed as that identity.
func (c *Client) Retrieve(ctx context.Context) (aws.Credentials, error) {
	identityID, err := c.StorageIdentity(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}

	c.mu.RLock()
	sess := c.session
	cached := c.creds
	c.mu.RUnlock()
	if sess == nil {
		return aws.Credentials{}, ErrNoSession
	}
	if cached.HasKeys() && !cached.Expired() {
		return cached, nil
	}

	var out getCredentialsOutput
	in := getCredentialsInput{IdentityID: identityID, Logins: c.logins(sess)}
	if err := c.callIdentity(ctx, "GetCredentialsForIdentity", in, &out); err != nil {
		return aws.Credentials{}, fmt.Errorf("storage credentials: %w", err)
	}

	creds := aws.Credentials{
		AccessKeyID:     out.Credentials.AccessKeyID,
		SecretAccessKey: out.Credentials.SecretKey,
		SessionToken:    out.Credentials.SessionToken,
		Source:          credentialsSource,
	}
	if !creds.HasKeys() {
		return aws.Credentials{}, errors.New("storage credentials: empty credentials")
	}
	if exp := out.Credentials.Expiration; exp > 0 {
		sec, frac := math.Modf(exp)
		creds.CanExpire = true
		creds.Expires = time.Unix(int64(sec), int64(frac*1e9))
	}

	c.mu.Lock()
	if c.session == sess {
		c.creds = creds
	}
	c.mu.Unlock()
	return creds, nil
}

func (c *Client) logins(sess *Session) map[string]string {
	return map[string]string{c.cfg.loginProvider(): sess.IDToken}
}

// callIdentity performs one awsJson1_1 request against the identity pool.
func (c *Client) callIdentity(ctx context.Context, action string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.identityEndpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", identityService+action)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseServiceError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func parseServiceError(status int, body []byte) *ServiceError {
	var payload struct {
		Type    string `json:"__type"`
		Message string `json:"message"`
		Upper   string `json:"Message"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &ServiceError{StatusCode: status, Type: payload.Type, Message: payload.Message}
	if e.Message == "" {
		e.Message = payload.Upper
	}
	if i := strings.LastIndex(e.Type, "#"); i >= 0 {
		e.Type = e.Type[i+1:]
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/bmconsole/internal/config"
	"github.com/tajious/bmconsole/internal/models"
)

const (
	pathDetectRole   = "/accounts/detect-role/"
	pathRequestCode  = "/accounts/request-otp/"
	pathVerifyCode   = "/accounts/verify-otp/"
	pathToken        = "/accounts/token/"
	pathTokenRefresh = "/accounts/token/refresh/"
	pathLogout       = "/accounts/logout/"
)

// Client talks to the accounts service.
type Client struct {
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func (c *Client) DetectRole(ctx context.Context, identity string) (models.Role, error) {
	var resp models.DetectRoleResponse
	status, detail, err := c.post(ctx, pathDetectRole, "", models.DetectRoleRequest{PhoneOrEmail: identity}, &resp)
	if err != nil {
		return "", err
	}
	if status >= 400 && status < 500 {
		return "", &Error{Kind: ErrIdentityNotFound, Status: status, Detail: detail}
	}
	if !isSuccess(status) {
		return "", &Error{Kind: ErrUnexpected, Status: status, Detail: detail}
	}
	if !resp.Role.Valid() {
		return "", &Error{Kind: ErrUnexpected, Status: status, Detail: "unknown role " + string(resp.Role)}
	}
	return resp.Role, nil
}

func (c *Client) RequestCode(ctx context.Context, identity string) error {
	status, detail, err := c.post(ctx, pathRequestCode, "", models.CodeRequest{PhoneOrEmail: identity}, nil)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &Error{Kind: ErrDispatchFailed, Status: status, Detail: detail}
	}
	return nil
}

func (c *Client) VerifyCode(ctx context.Context, identity, code string) (models.TokenPair, error) {
	var pair models.TokenPair
	status, detail, err := c.post(ctx, pathVerifyCode, "", models.VerifyCodeRequest{PhoneOrEmail: identity, OTP: code}, &pair)
	if err != nil {
		return models.TokenPair{}, err
	}
	if status >= 400 && status < 500 {
		return models.TokenPair{}, &Error{Kind: ErrInvalidCode, Status: status, Detail: detail}
	}
	return c.tokenPair(status, detail, pair)
}

func (c *Client) PasswordLogin(ctx context.Context, username, password string) (models.TokenPair, error) {
	var pair models.TokenPair
	status, detail, err := c.post(ctx, pathToken, "", models.PasswordLoginRequest{Username: username, Password: password}, &pair)
	if err != nil {
		return models.TokenPair{}, err
	}
	if status >= 400 && status < 500 {
		return models.TokenPair{}, &Error{Kind: ErrInvalidCredentials, Status: status, Detail: detail}
	}
	return c.tokenPair(status, detail, pair)
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refresh string) (string, error) {
	var resp models.RefreshResponse
	status, detail, err := c.post(ctx, pathTokenRefresh, "", models.RefreshRequest{Refresh: refresh}, &resp)
	if err != nil {
		return "", err
	}
	if status >= 400 && status < 500 {
		return "", &Error{Kind: ErrRefreshRejected, Status: status, Detail: detail}
	}
	if !isSuccess(status) || resp.Access == "" {
		return "", &Error{Kind: ErrUnexpected, Status: status, Detail: detail}
	}
	return resp.Access, nil
}

// Logout revokes the refresh token.
func (c *Client) Logout(ctx context.Context, access, refresh string) error {
	status, detail, err := c.post(ctx, pathLogout, access, models.RefreshRequest{Refresh: refresh}, nil)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &Error{Kind: ErrUnexpected, Status: status, Detail: detail}
	}
	return nil
}

func (c *Client) tokenPair(status int, detail string, pair models.TokenPair) (models.TokenPair, error) {
	if !isSuccess(status) || pair.Access == "" {
		return models.TokenPair{}, &Error{Kind: ErrUnexpected, Status: status, Detail: detail}
	}
	return pair, nil
}

// post sends body as JSON and decodes a 2xx response into out. For non-2xx
// responses the server's error text is returned as detail. err is only set
// for failures where no usable response arrived.
func (c *Client) post(ctx context.Context, path, bearer string, body, out any) (int, string, error) {
	timeout, err := c.deadline(ctx)
	if err != nil {
		return 0, "", &Error{Kind: ErrTransport, Err: err}
	}

	a := fiber.Post(c.baseURL + path)
	a.JSON(body)
	if bearer != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	if timeout > 0 {
		a.Timeout(timeout)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return 0, "", &Error{Kind: ErrTransport, Err: err}
	}

	status, respBody, errs := a.Bytes()
	if len(errs) > 0 {
		c.logger.Warn("upstream request failed", "path", path, "error", errs[0])
		return 0, "", &Error{Kind: ErrTransport, Err: errors.Join(errs...)}
	}

	c.logger.Debug("upstream response", "path", path, "status", status)

	if !isSuccess(status) {
		return status, errorDetail(respBody), nil
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return 0, "", &Error{Kind: ErrUnexpected, Status: status, Err: err}
		}
	}
	return status, "", nil
}

// deadline folds the context deadline into the configured timeout.
func (c *Client) deadline(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		remaining := time.Until(dl)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		if timeout == 0 || remaining < timeout {
			timeout = remaining
		}
	}
	return timeout, nil
}

func errorDetail(body []byte) string {
	var resp models.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	switch {
	case resp.Error != "":
		return resp.Error
	case resp.Detail != "":
		return resp.Detail
	}
	return resp.Message
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

package myq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SessionStatus describes the health of the cloud session.
type SessionStatus string

// Session states.
const (
	// StatusOK means the session is established or has not failed yet.
	StatusOK SessionStatus = "ok"

	// StatusServiceDown means the vendor service is unreachable or
	// returned a malformed or unexpected response.
	StatusServiceDown SessionStatus = "service_down"

	// StatusUnauthorized means the vendor rejected the credentials.
	StatusUnauthorized SessionStatus = "unauthorized"

	// StatusThrottled means login attempts are being refused locally.
	StatusThrottled SessionStatus = "throttled"
)

// Vendor return codes.
const (
	// returnCodeNotLoggedIn is returned on any call with a missing or
	// expired session token.
	returnCodeNotLoggedIn = -3333

	// returnCodeBadCredentials means the username or password is wrong.
	returnCodeBadCredentials = 203

	// returnCodeLastAttempt means one more bad attempt locks the account.
	returnCodeLastAttempt = 205

	// returnCodeLockedOut means the account is locked.
	returnCodeLockedOut = 207
)

// unauthorizedMessage maps a vendor rejection code to its user-facing message.
func unauthorizedMessage(code int) string {
	switch code {
	case returnCodeBadCredentials:
		return "MyQ username and/or password were incorrect"
	case returnCodeLastAttempt:
		return "MyQ username and/or password were incorrect; 1 attempt left before lockout"
	case returnCodeLockedOut:
		return "MyQ account is locked out; please reset password"
	default:
		return fmt.Sprintf("MyQ rejected the request with code %d", code)
	}
}

// parseReturnCode parses the vendor's string-typed return code.
func parseReturnCode(s string) (int, error) {
	var code int
	if _, err := fmt.Sscanf(s, "%d", &code); err != nil {
		return 0, fmt.Errorf("parsing return code %q: %w", s, err)
	}
	return code, nil
}

// Login establishes a session with the vendor service.
//
// The throttle state machine protects the account from lockout:
//
//   - Each attempt increments a counter; the attempt that reaches 3 is
//     refused locally (ErrLoginThrottled), no network call is made, and an
//     automatic retry with override is armed.
//   - The counter resets after a quiet period with no attempts; every
//     attempt re-arms that reset timer.
//   - A transport or parse failure decrements the counter back so flaky
//     networking never walks the account into the throttle. The whole
//     attempt is retried after a delay, up to 3 tries, before giving up
//     as service_down.
//   - Vendor rejection codes (203/205/207) count toward the throttle and
//     are never retried automatically.
//
// Concurrent logins are suppressed: if another login is in flight the
// call returns ErrLoginSuppressed immediately.
//
// Parameters:
//   - ctx: Context for cancellation
//   - overrideThrottle: Zero the attempt counter first (used by the
//     automatic retry and by operator-initiated reconnects)
//
// Returns:
//   - error: nil once a token is stored
func (c *Client) Login(ctx context.Context, overrideThrottle bool) error {
	if !c.loginInFlight.CompareAndSwap(false, true) {
		return ErrLoginSuppressed
	}
	defer c.loginInFlight.Store(false)

	c.sessMu.Lock()
	if overrideThrottle {
		c.throttleAttempts = 0
		if c.resetTimer != nil {
			c.resetTimer.Stop()
		}
	}

	c.throttleAttempts++
	if c.throttleAttempts >= maxLoginAttempts {
		c.status = StatusThrottled
		c.statusMessage = "login attempts throttled"
		c.armThrottleRetryLocked()
		c.sessMu.Unlock()
		return ErrLoginThrottled
	}
	c.armResetTimerLocked()
	c.sessMu.Unlock()

	c.loginsTotal.Add(1)

	var lastErr error
	for try := 1; try <= maxLoginTries; try++ {
		err := c.doLogin(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}

		// Transport or parse failure: the attempt must not count toward
		// the throttle.
		lastErr = err
		c.errorsTotal.Add(1)
		c.logWarn("login transport failure", "try", try, "error", err)

		if try < maxLoginTries {
			select {
			case <-ctx.Done():
				c.undoThrottleIncrement()
				return fmt.Errorf("%w: %w", ErrServiceDown, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}
	}

	c.undoThrottleIncrement()
	c.setStatus(StatusServiceDown, "MyQ service is temporarily unavailable")
	return lastErr
}

// doLogin performs one login exchange with the vendor.
func (c *Client) doLogin(ctx context.Context) error {
	c.logDebug("logging into MyQ", "username", c.username)

	body := map[string]string{
		"username": c.username,
		"password": c.password,
	}

	env, err := c.request(ctx, http.MethodPost, pathLogin, body)
	if err != nil {
		return err
	}

	code, err := parseReturnCode(env.ReturnCode)
	if err != nil {
		return c.fail(StatusServiceDown, "malformed return code in login response")
	}

	switch code {
	case returnCodeBadCredentials, returnCodeLastAttempt, returnCodeLockedOut:
		msg := unauthorizedMessage(code)
		c.setStatus(StatusUnauthorized, msg)
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	}

	if env.SecurityToken == "" {
		return c.fail(StatusServiceDown, "login response missing security token")
	}

	c.sessMu.Lock()
	c.token = env.SecurityToken
	c.status = StatusOK
	c.statusMessage = ""
	c.sessMu.Unlock()

	if len(env.SecurityToken) > 6 {
		c.logDebug("logged in", "token_prefix", env.SecurityToken[:6]+"...")
	}

	return nil
}

// undoThrottleIncrement walks the attempt counter back after a failure
// that should not count toward the throttle.
func (c *Client) undoThrottleIncrement() {
	c.sessMu.Lock()
	if c.throttleAttempts > 0 {
		c.throttleAttempts--
	}
	c.sessMu.Unlock()
}

// armResetTimerLocked (re-)arms the quiet-period timer that zeroes the
// attempt counter. Caller must hold sessMu.
func (c *Client) armResetTimerLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(c.throttleResetAfter, func() {
		c.sessMu.Lock()
		c.throttleAttempts = 0
		c.sessMu.Unlock()
	})
}

// armThrottleRetryLocked arms the one-shot automatic login retry after
// the throttle trips. Caller must hold sessMu. A zero ThrottleRetry
// config disables the retry (tests).
func (c *Client) armThrottleRetryLocked() {
	if c.retryArmed || c.throttleRetryAfter == 0 {
		return
	}
	c.retryArmed = true

	time.AfterFunc(c.throttleRetryAfter, func() {
		c.sessMu.Lock()
		c.retryArmed = false
		c.sessMu.Unlock()

		c.logInfo("retrying login after throttle")
		if err := c.Login(context.Background(), true); err != nil {
			c.logError("automatic login retry failed", err)
		}
	})
}

package myq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Vendor API paths.
const (
	pathLogin     = "/api/v4/User/Validate"
	pathDevices   = "/api/v4/userdevicedetails/get"
	pathAttribute = "/api/v4/deviceattribute/putdeviceattribute"
)

// Vendor door action values for the desireddoorstate attribute.
const (
	actionCloseDoor = 0
	actionOpenDoor  = 1
)

// Default timings. Overridable via Config for tests.
const (
	// defaultHTTPTimeout bounds every request to the vendor service.
	defaultHTTPTimeout = 30 * time.Second

	// defaultRetryDelay is the pause between transport-level login retries.
	defaultRetryDelay = 5 * time.Second

	// defaultThrottleReset is how long the login attempt counter survives
	// without a new attempt before it resets to zero.
	defaultThrottleReset = 10 * time.Second

	// defaultThrottleRetry is the delay before an automatic login retry
	// after the throttle trips.
	defaultThrottleRetry = 30 * time.Second

	// maxLoginAttempts is the throttle ceiling: the attempt that reaches
	// this count is refused without a network call.
	maxLoginAttempts = 3

	// maxLoginTries is the number of transport-level tries inside a single
	// login attempt before giving up as service_down.
	maxLoginTries = 3
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds MyQ client configuration.
type Config struct {
	// Brand selects the vendor variant (endpoint + application id).
	Brand Brand

	// Username is the MyQ account email address.
	Username string

	// Password is the MyQ account password in cleartext.
	Password string

	// HTTPTimeout bounds each request to the vendor service.
	// Default: 30 seconds.
	HTTPTimeout time.Duration

	// RetryDelay is the pause between transport-level login retries.
	// Default: 5 seconds.
	RetryDelay time.Duration

	// ThrottleReset is the quiet period after which the login attempt
	// counter resets. Default: 10 seconds.
	ThrottleReset time.Duration

	// ThrottleRetry is the delay before the automatic login retry after
	// the throttle trips. Zero disables the automatic retry.
	// Default: 30 seconds.
	ThrottleRetry time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	LoginsTotal   uint64
	ReloginsTotal uint64 // Inline re-logins triggered by catalog fetches
	FetchesTotal  uint64
	MovesTotal    uint64
	ErrorsTotal   uint64
	LastUpdated   time.Time
	Status        SessionStatus
	StatusMessage string
}

// Client is the MyQ cloud client.
//
// It owns exactly one session: credentials, the opaque security token, and
// the throttle state machine. Changing credentials means replacing the
// Client instance.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	username   string
	password   string

	// Session state
	sessMu        sync.Mutex
	token         string
	status        SessionStatus
	statusMessage string

	// Throttle state (guarded by sessMu)
	throttleAttempts int
	resetTimer       *time.Timer
	retryArmed       bool

	// loginInFlight suppresses concurrent logins.
	loginInFlight atomic.Bool

	// Device snapshot. Replaced atomically on successful fetch.
	devMu   sync.RWMutex
	devices []Device

	// lastUpdated is the Unix timestamp of the last successful catalog
	// fetch, read by the poll watchdog.
	lastUpdated atomic.Int64

	// Timings (from Config, defaulted in New)
	retryDelay         time.Duration
	throttleResetAfter time.Duration
	throttleRetryAfter time.Duration

	// Statistics (atomic for performance)
	loginsTotal   atomic.Uint64
	reloginsTotal atomic.Uint64
	fetchesTotal  atomic.Uint64
	movesTotal    atomic.Uint64
	errorsTotal   atomic.Uint64

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a MyQ client for the given brand and credentials.
//
// No network call is made; the session is established lazily by Login or
// by the first catalog fetch.
//
// Returns:
//   - *Client: Client ready for use
//   - error: If the brand is not recognised
func New(cfg Config) (*Client, error) {
	if _, err := ParseBrand(string(cfg.Brand)); err != nil {
		return nil, err
	}

	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.ThrottleReset == 0 {
		cfg.ThrottleReset = defaultThrottleReset
	}

	return &Client{
		httpClient:         &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:            cfg.Brand.baseURL(),
		appID:              cfg.Brand.applicationID(),
		username:           cfg.Username,
		password:           cfg.Password,
		status:             StatusOK,
		retryDelay:         cfg.RetryDelay,
		throttleResetAfter: cfg.ThrottleReset,
		throttleRetryAfter: cfg.ThrottleRetry,
	}, nil
}

// envelope is the common vendor response wrapper.
//
// ReturnCode arrives as a JSON string, not a number.
type envelope struct {
	ReturnCode    string            `json:"ReturnCode"`
	ErrorMessage  string            `json:"ErrorMessage"`
	SecurityToken string            `json:"SecurityToken"`
	Devices       []json.RawMessage `json:"Devices"`
}

// FetchDevices retrieves the door operator catalog from the vendor.
//
// An expired session (vendor code -3333) triggers exactly one inline
// re-login followed by one fetch retry; the caller never sees the dance.
// Unauthorized codes fail immediately. Anything else unexpected is
// reported as service_down.
//
// On success the snapshot list and the LastUpdated timestamp are replaced
// atomically.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - []Device: Filtered catalog (door operators only)
//   - error: nil on success
func (c *Client) FetchDevices(ctx context.Context) ([]Device, error) {
	c.fetchesTotal.Add(1)

	// Bounded relogin loop: at most one re-login, then one retry.
	reloggedIn := false
	for {
		devices, retCode, err := c.doFetch(ctx)
		if err != nil {
			return nil, err
		}

		switch retCode {
		case 0:
			c.devMu.Lock()
			c.devices = devices
			c.devMu.Unlock()
			c.lastUpdated.Store(time.Now().Unix())
			c.setStatus(StatusOK, "")
			return devices, nil

		case returnCodeNotLoggedIn:
			if reloggedIn {
				c.errorsTotal.Add(1)
				return nil, c.fail(StatusServiceDown, "session rejected after re-login")
			}
			c.logDebug("session expired, re-logging in")
			c.reloginsTotal.Add(1)
			if err := c.Login(ctx, false); err != nil {
				return nil, err
			}
			reloggedIn = true

		case returnCodeBadCredentials, returnCodeLastAttempt, returnCodeLockedOut:
			c.errorsTotal.Add(1)
			c.setStatus(StatusUnauthorized, unauthorizedMessage(retCode))
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, unauthorizedMessage(retCode))

		default:
			c.errorsTotal.Add(1)
			return nil, c.fail(StatusServiceDown,
				fmt.Sprintf("unexpected return code %d from device list", retCode))
		}
	}
}

// doFetch performs one catalog request and decodes the envelope.
//
// Transport failures and malformed envelopes set service_down and return
// an error; vendor-level return codes are handed back for the caller to
// interpret.
func (c *Client) doFetch(ctx context.Context) ([]Device, int, error) {
	env, err := c.request(ctx, http.MethodGet, pathDevices, nil)
	if err != nil {
		c.errorsTotal.Add(1)
		return nil, 0, err
	}

	retCode, err := parseReturnCode(env.ReturnCode)
	if err != nil {
		c.errorsTotal.Add(1)
		return nil, 0, c.fail(StatusServiceDown, "malformed return code in device list")
	}

	if retCode != 0 {
		if env.ErrorMessage != "" {
			c.logWarn("vendor error on device list", "return_code", retCode, "message", env.ErrorMessage)
		}
		return nil, retCode, nil
	}

	devices := make([]Device, 0, len(env.Devices))
	for _, raw := range env.Devices {
		dev, err := decodeDevice(raw)
		if err != nil {
			// One malformed device never fails the batch.
			c.logWarn("skipping malformed device in catalog", "error", err)
			continue
		}
		if !isBridgeable(dev.TypeID) {
			continue
		}
		devices = append(devices, dev)
	}

	return devices, 0, nil
}

// MoveDoor commands a door to the desired state.
//
// Only DoorStateOpen and DoorStateClosed are valid targets; anything else
// is rejected locally before any network call. The command is
// fire-and-forget: the vendor acknowledges receipt, not completion, so
// the caller should resync shortly afterwards to observe movement.
//
// Parameters:
//   - ctx: Context for cancellation
//   - deviceID: Vendor numeric device id
//   - desired: DoorStateOpen or DoorStateClosed
//
// Returns:
//   - error: nil if the vendor accepted the command
func (c *Client) MoveDoor(ctx context.Context, deviceID int64, desired DoorState) error {
	var action int
	switch desired {
	case DoorStateOpen:
		action = actionOpenDoor
	case DoorStateClosed:
		action = actionCloseDoor
	default:
		return fmt.Errorf("%w: %s", ErrInvalidDoorState, desired)
	}

	c.movesTotal.Add(1)

	body := map[string]any{
		"MyQDeviceId":    deviceID,
		"AttributeName":  "desireddoorstate",
		"AttributeValue": fmt.Sprintf("%d", action),
	}

	c.logInfo("writing door state", "device_id", deviceID, "action", action)

	if _, err := c.request(ctx, http.MethodPut, pathAttribute, body); err != nil {
		c.errorsTotal.Add(1)
		return err
	}

	return nil
}

// request performs one HTTP exchange with the vendor and decodes the
// response envelope. Transport failures and non-2xx responses set
// service_down.
func (c *Client) request(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request: %w", ErrServiceDown, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrServiceDown, err)
	}

	req.Header.Set("MyQApplicationId", c.appID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("SecurityToken", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setStatus(StatusServiceDown, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrServiceDown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("got failure response code from MyQ: %d", resp.StatusCode)
		c.setStatus(StatusServiceDown, msg)
		return nil, fmt.Errorf("%w: %s", ErrServiceDown, msg)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.setStatus(StatusServiceDown, "malformed response from MyQ")
		return nil, fmt.Errorf("%w: decoding response: %w", ErrServiceDown, err)
	}

	return &env, nil
}

// fail records a failure status and returns a wrapped ErrServiceDown.
func (c *Client) fail(status SessionStatus, msg string) error {
	c.setStatus(status, msg)
	return fmt.Errorf("%w: %s", ErrServiceDown, msg)
}

// Devices returns a copy of the last successful catalog snapshot.
func (c *Client) Devices() []Device {
	c.devMu.RLock()
	defer c.devMu.RUnlock()

	devices := make([]Device, len(c.devices))
	copy(devices, c.devices)
	return devices
}

// LastUpdated returns the time of the last successful catalog fetch.
// The zero time means no fetch has succeeded yet.
func (c *Client) LastUpdated() time.Time {
	ts := c.lastUpdated.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// Token returns the current session token (empty before login).
func (c *Client) Token() string {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.token
}

// Status returns the current session status and message.
func (c *Client) Status() (SessionStatus, string) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.status, c.statusMessage
}

// setStatus updates the session status and message.
func (c *Client) setStatus(status SessionStatus, msg string) {
	c.sessMu.Lock()
	c.status = status
	c.statusMessage = msg
	c.sessMu.Unlock()
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	status, msg := c.Status()
	return Stats{
		LoginsTotal:   c.loginsTotal.Load(),
		ReloginsTotal: c.reloginsTotal.Load(),
		FetchesTotal:  c.fetchesTotal.Load(),
		MovesTotal:    c.movesTotal.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
		LastUpdated:   c.LastUpdated(),
		Status:        status,
		StatusMessage: msg,
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

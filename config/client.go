package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crypticpy/Grantscope-2-sub004/debounce"
	"github.com/crypticpy/Grantscope-2-sub004/navigation"
	"github.com/crypticpy/Grantscope-2-sub004/poller"
	"github.com/crypticpy/Grantscope-2-sub004/undo"
)

// Client configures the board client.
type Client struct {
	APIBase string `yaml:"api_base"`
	Bearer  string `yaml:"bearer"`
	// UserID is used to mint a development token when Bearer is empty and
	// DevSecret is set.
	UserID    string `yaml:"user_id"`
	DevSecret string `yaml:"dev_secret"`

	RequestTimeout    time.Duration `yaml:"request_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollMaxAttempts   int           `yaml:"poll_max_attempts"`
	UndoWindow        time.Duration `yaml:"undo_window"`
	DebounceThreshold time.Duration `yaml:"debounce_threshold"`
	SwipeOffset       float64       `yaml:"swipe_offset"`
	SwipeVelocity     float64       `yaml:"swipe_velocity"`

	// Keys overrides key bindings: key -> next|previous|primary|secondary|undo.
	Keys map[string]string `yaml:"keys"`
}

// DefaultClient returns the built-in client settings.
func DefaultClient() Client {
	return Client{
		APIBase:           "http://localhost:8080",
		UserID:            "local-user",
		RequestTimeout:    10 * time.Second,
		PollInterval:      poller.DefaultInterval,
		PollMaxAttempts:   poller.DefaultMaxAttempts,
		UndoWindow:        undo.DefaultWindow,
		DebounceThreshold: debounce.DefaultThreshold,
		SwipeOffset:       navigation.DefaultSwipeOffset,
		SwipeVelocity:     navigation.DefaultSwipeVelocity,
	}
}

// LoadClient reads path over the defaults, then applies environment
// overrides. A missing file is not an error; an empty path skips the file.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Client{}, fmt.Errorf("read client config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Client{}, fmt.Errorf("parse client config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func (c *Client) applyEnv() {
	c.APIBase = EnvString("API_BASE", c.APIBase)
	c.Bearer = EnvString("API_BEARER", c.Bearer)
	c.UserID = EnvString("API_USER", c.UserID)
	c.DevSecret = EnvString("TEST_JWT_SECRET", c.DevSecret)
	c.RequestTimeout = EnvDur("API_TIMEOUT", c.RequestTimeout)
	c.PollInterval = EnvDur("POLL_INTERVAL", c.PollInterval)
	c.PollMaxAttempts = EnvInt("POLL_MAX_ATTEMPTS", c.PollMaxAttempts)
	c.UndoWindow = EnvDur("UNDO_WINDOW", c.UndoWindow)
	c.DebounceThreshold = EnvDur("DEBOUNCE_THRESHOLD", c.DebounceThreshold)
	c.SwipeOffset = EnvFloat("SWIPE_OFFSET", c.SwipeOffset)
	c.SwipeVelocity = EnvFloat("SWIPE_VELOCITY", c.SwipeVelocity)
}

// Validate checks the settings that have no usable fallback.
func (c Client) Validate() error {
	if c.APIBase == "" {
		return errors.New("client config: api_base is required")
	}
	if c.PollInterval <= 0 || c.PollMaxAttempts <= 0 {
		return errors.New("client config: poll_interval and poll_max_attempts must be positive")
	}
	if c.UndoWindow <= 0 || c.DebounceThreshold <= 0 {
		return errors.New("client config: undo_window and debounce_threshold must be positive")
	}
	if _, err := navigation.ParseKeymap(c.Keys); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	return nil
}

// Keymap returns the effective key bindings.
func (c Client) Keymap() navigation.Keymap {
	km, err := navigation.ParseKeymap(c.Keys)
	if err != nil {
		return navigation.DefaultKeymap()
	}
	return km
}

package client

import (
	"encoding/json"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/monitor"
)

// Thresholds mirrors the body of PUT /thresholds.
type Thresholds struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) SetThresholds(low, high int) (string, error) {
	payload, err := json.Marshal(Thresholds{Low: low, High: high})
	if err != nil {
		return "", err
	}
	ret, err := c.Put("/thresholds", string(payload))
	return unquote(ret), err
}

func (c *Client) SetInterval(seconds int) (string, error) {
	ret, err := c.Put("/interval", strconv.Itoa(seconds))
	return unquote(ret), err
}

func (c *Client) SetSound(enabled bool) (string, error) {
	ret, err := c.Put("/sound", strconv.FormatBool(enabled))
	return unquote(ret), err
}

// Check runs a tick now and returns what it saw.
func (c *Client) Check() (*monitor.Result, error) {
	ret, err := c.Post("/check", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to check battery")
	}

	var res monitor.Result
	if err := json.Unmarshal([]byte(ret), &res); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal check result")
	}

	return &res, nil
}

func (c *Client) GetStatus() (*monitor.Status, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st monitor.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}

	return &st, nil
}

func (c *Client) StartMonitor() (string, error) {
	ret, err := c.Post("/monitor/start", "")
	return unquote(ret), err
}

func (c *Client) StopMonitor() (string, error) {
	ret, err := c.Post("/monitor/stop", "")
	return unquote(ret), err
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

// unquote strips the JSON string quoting gin adds to plain messages.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}

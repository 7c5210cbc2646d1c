package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/events"
	"github.com/charlie0129/battalert/pkg/powerinfo"
	"github.com/charlie0129/battalert/pkg/version"
)

// Thresholds is the body of PUT /thresholds.
type Thresholds struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func abortWithError(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

// configErrorCode maps config validation failures to 400 and the rest,
// e.g. a failed save, to 500.
func configErrorCode(err error) int {
	if errors.Is(err, config.ErrInvalidConfig) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *server) setThresholds(c *gin.Context) {
	var t Thresholds
	if err := c.BindJSON(&t); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.conf.SetThresholds(t.Low, t.High); err != nil {
		abortWithError(c, configErrorCode(err), err)
		return
	}
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	// Thresholds apply from the next tick. Reload also resumes a monitor
	// that was suspended by a bad config.
	if err := s.monitor.Reload(c.Request.Context()); err != nil {
		abortWithError(c, configErrorCode(err), err)
		return
	}

	msg := fmt.Sprintf("set low/high thresholds to %d%%/%d%%", s.conf.LowThreshold(), s.conf.HighThreshold())
	logrus.Info(msg)

	c.IndentedJSON(http.StatusCreated, msg)
}

func (s *server) setInterval(c *gin.Context) {
	var seconds int
	if err := c.BindJSON(&seconds); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if seconds <= 0 {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("interval must be positive, got %d", seconds))
		return
	}

	d := time.Duration(seconds) * time.Second
	s.conf.SetPollInterval(d)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	if err := s.monitor.SetInterval(c.Request.Context(), d); err != nil {
		abortWithError(c, configErrorCode(err), err)
		return
	}

	msg := fmt.Sprintf("set poll interval to %s", s.conf.PollInterval())
	if d < config.MinPollInterval {
		msg += fmt.Sprintf(" (minimum is %s)", config.MinPollInterval)
	}
	logrus.Info(msg)

	c.IndentedJSON(http.StatusCreated, msg)
}

func (s *server) setSound(c *gin.Context) {
	var enabled bool
	if err := c.BindJSON(&enabled); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	s.conf.SetSoundEnabled(enabled)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set alert sound to %t", enabled)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *server) check(c *gin.Context) {
	if !s.checkLimiter.Allow() {
		abortWithError(c, http.StatusTooManyRequests, errors.New("too many checks, try again later"))
		return
	}

	res, err := s.monitor.CheckNow(c.Request.Context())
	if err != nil {
		var qerr *powerinfo.QueryError
		if errors.As(err, &qerr) {
			abortWithError(c, http.StatusServiceUnavailable, err)
			return
		}
		abortWithError(c, configErrorCode(err), err)
		return
	}

	c.IndentedJSON(http.StatusOK, res)
}

func (s *server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.monitor.Status())
}

func (s *server) startMonitor(c *gin.Context) {
	if err := s.monitor.Start(c.Request.Context()); err != nil {
		abortWithError(c, configErrorCode(err), err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *server) stopMonitor(c *gin.Context) {
	s.monitor.Stop()

	c.IndentedJSON(http.StatusCreated, "ok")
}

// streamEvents sends the current monitor state first, then every hub event
// until the client goes away.
func (s *server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	st := s.monitor.Status()
	c.SSEvent(events.MonitorState, events.MonitorStateEvent{
		Running:         st.Running,
		IntervalSeconds: st.IntervalSeconds,
		Ts:              time.Now().Unix(),
	})
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

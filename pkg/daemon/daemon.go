package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/events"
	"github.com/charlie0129/battalert/pkg/monitor"
	"github.com/charlie0129/battalert/pkg/notify"
)

const (
	shutdownTimeout = 5 * time.Second

	// A desktop sink that fails this many times in a row is paused for
	// desktopCoolDown, e.g. when notifications are not permitted.
	desktopFailures = 3
	desktopCoolDown = 10 * time.Minute

	checkRate  = 2 * time.Second
	checkBurst = 3
)

type server struct {
	conf    config.Config
	monitor *monitor.Monitor
	hub     *events.Hub

	checkLimiter *rate.Limiter
}

func newServer(conf config.Config, mon *monitor.Monitor, hub *events.Hub) *server {
	return &server{
		conf:         conf,
		monitor:      mon,
		hub:          hub,
		checkLimiter: rate.NewLimiter(rate.Every(checkRate), checkBurst),
	}
}

func (s *server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", s.getConfig)
	router.PUT("/thresholds", s.setThresholds)
	router.PUT("/interval", s.setInterval)
	router.PUT("/sound", s.setSound)
	router.POST("/check", s.check)
	router.GET("/status", s.getStatus)
	router.POST("/monitor/start", s.startMonitor)
	router.POST("/monitor/stop", s.stopMonitor)
	router.GET("/events", s.streamEvents)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/version", getVersion)

	return router
}

// reload applies whatever the config now says to the running monitor.
func (s *server) reload(ctx context.Context) {
	if err := s.monitor.Reload(ctx); err != nil {
		logrus.Errorf("failed to apply reloaded config: %v", err)
	}
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	reader, closeReader := newReader()
	defer closeReader()

	hub := events.NewHub()
	dispatcher := notify.NewDispatcher(
		notify.LogSink{},
		notify.HubSink{Hub: hub},
		notify.NewBreakerSink(notify.NewCommandSink(), desktopFailures, desktopCoolDown),
	)

	mon := monitor.New(reader, conf, dispatcher)
	mon.Hub = hub

	s := newServer(conf, mon, hub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Remove a stale socket left by a crashed daemon.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			_ = l.Close()
			return pkgerrors.Wrapf(err, "failed to change permissions of %s", unixSocketPath)
		}
	}

	srv := &http.Server{
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return pkgerrors.Wrapf(err, "http server failed")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("failed to shutdown http server: %v", err)
		}
		return nil
	})

	// Receive SIGHUP to reload config
	g.Go(func() error {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		defer signal.Stop(sigc)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigc:
				if err := conf.Load(); err != nil {
					logrus.Errorf("failed to reload config: %v", err)
					continue
				}
				logrus.WithFields(conf.LogrusFields()).Info("config reloaded")
				s.reload(ctx)
			}
		}
	})

	watcher, err := config.NewWatcher(conf, func() { s.reload(ctx) })
	if err != nil {
		logrus.Warnf("config file changes will need a SIGHUP: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logrus.Warnf("config file changes will need a SIGHUP: %v", err)
	}

	if err := mon.Start(ctx); err != nil {
		logrus.Errorf("monitor not started, fix the config to start it: %v", err)
	}

	err = g.Wait()

	mon.Stop()
	logrus.Info("exiting")

	return err
}

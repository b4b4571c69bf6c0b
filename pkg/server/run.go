package server

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gaugeread/gaugeread/pkg/client"
	"github.com/gaugeread/gaugeread/pkg/config"
)

type Options struct {
	ConfigPath string
	// Listen is "host:port" or "unix:///path/to.sock".
	Listen string
	// SocketMode is applied to a unix socket after it is created.
	SocketMode fs.FileMode
	// WatchConfig reloads the config when its file changes, in addition to SIGHUP.
	WatchConfig bool
}

// Run serves until ctx is done or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	conf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	s := New(conf)

	l, err := listen(opts.Listen, opts.SocketMode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		defer signal.Stop(sigc)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigc:
				if err := s.Reload(); err != nil {
					logrus.Errorf("failed to reload config: %v", err)
					continue
				}
				logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
			}
		}
	}()

	if opts.WatchConfig {
		go func() {
			if err := config.Watch(ctx, opts.ConfigPath, conf, s.applyConfig); err != nil {
				logrus.Errorf("config watcher stopped: %v", err)
			}
		}()
	}

	s.janitor.Start()

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var runErr error
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case <-ctx.Done():
		logrus.Info("context done: shutting down.")
	case runErr = <-serveErr:
		logrus.Errorf("http server failed: %v", runErr)
	}

	// Event streams never finish on their own.
	s.hub.Close()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	s.janitor.Stop()

	logrus.Info("exiting")
	return runErr
}

// listen opens a TCP or unix listener. A stale socket file left by a crashed
// server is removed first.
func listen(addr string, mode fs.FileMode) (net.Listener, error) {
	path, ok := strings.CutPrefix(addr, client.UnixPrefix)
	if !ok {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to listen on %s", addr)
		}
		return l, nil
	}

	if fi, err := os.Lstat(path); err == nil && fi.Mode()&fs.ModeSocket != 0 {
		if err := os.Remove(path); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to remove stale socket %s", path)
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to listen on %s", path)
	}
	if mode != 0 {
		logrus.Infof("changing permissions of %s to %o", path, mode)
		if err := os.Chmod(path, mode); err != nil {
			_ = l.Close()
			return nil, pkgerrors.Wrapf(err, "failed to chmod %s", path)
		}
	}
	return l, nil
}

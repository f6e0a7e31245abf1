package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cams3/camnode/pkg/clock"
	"github.com/cams3/camnode/pkg/config"
	"github.com/cams3/camnode/pkg/credential"
	"github.com/cams3/camnode/pkg/events"
	"github.com/cams3/camnode/pkg/frame"
	"github.com/cams3/camnode/pkg/metrics"
	"github.com/cams3/camnode/pkg/notify"
	"github.com/cams3/camnode/pkg/portal"
	"github.com/cams3/camnode/pkg/provisioning"
	"github.com/cams3/camnode/pkg/wifi"
)

const (
	shutdownTimeout    = 5 * time.Second
	mqttConnectTimeout = 10 * time.Second
)

func newSource(conf config.Config) frame.Source {
	if path := conf.ImageFile(); path != "" {
		logrus.WithField("path", path).Info("using still image instead of the camera")
		return frame.NewImageFileSource(path)
	}
	return frame.NewFFmpegSource(conf.CameraDevice(), conf.FrameWidth(), conf.FrameHeight())
}

func newNotifier(conf config.Config) notify.Notifier {
	broker := conf.MQTTBroker()
	if broker == "" {
		logrus.Debug("no mqtt broker configured, motion events stay local")
		return notify.Nop{}
	}

	n := notify.NewMQTTNotifier(notify.MQTTOptions{
		Broker:   broker,
		Topic:    conf.MQTTTopic(),
		ClientID: conf.DeviceName(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), mqttConnectTimeout)
	defer cancel()
	if err := n.Connect(ctx); err != nil {
		// The client keeps retrying in the background.
		logrus.WithError(err).Warn("mqtt broker not reachable yet")
	}
	return n
}

// Run starts the node and blocks until it is told to stop. After a
// credential reset the process re-executes itself, so Run only returns on
// a termination signal or a failure.
func Run(configPath string) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	metrics.RegisterMetrics()
	s := newServer(conf, events.NewEventHub(), clock.Real{})

	runner := wifi.ExecRunner{}
	ap := wifi.NewAccessPoint(runner, wifi.APConfig{
		Interface:    conf.APInterface(),
		Address:      conf.APAddress(),
		DNSConfigDir: wifi.DefaultDNSConfigDir,
	})
	linkCfg := wifi.LinkConfig{
		Interface:         conf.WiFiInterface(),
		ReconnectInterval: conf.ReconnectInterval(),
	}
	if conf.APInterface() == conf.WiFiInterface() {
		// One radio: a station connect would drop the fallback network.
		linkCfg.APActive = ap.Running
	}
	link := wifi.NewLink(runner, linkCfg)
	// NetworkManager's dnsmasq leaves port 53 to us through the AP drop-in.
	captive := portal.New(net.JoinHostPort(conf.APAddress(), "53"), net.ParseIP(conf.APAddress()))
	store := credential.NewFileStore(conf.CredentialPath())

	hwAddr, err := wifi.HardwareAddr(conf.APInterface())
	if err != nil {
		logrus.WithError(err).Warn("failed to read hardware address, fallback network name has no suffix")
	}

	s.link = link
	s.scanner = link
	s.source = newSource(conf)
	s.notifier = newNotifier(conf)
	s.controller = provisioning.New(link, store, ap, captive, provisioning.Options{
		STATimeout:    conf.STATimeout(),
		SwitchTimeout: conf.SwitchTimeout(),
		APPrefix:      conf.APPrefix(),
		HardwareAddr:  hwAddr,
		Clock:         s.clock,
		OnTransition:  s.onTransition,
	})
	metrics.SetProvisioningState(string(provisioning.StateStartup), stateNames())

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			s.applyMotionConfig()
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	s.engine.Initialize()
	if err := s.controller.Begin(); err != nil {
		logrus.Errorf("failed to start provisioning: %v", err)
	}

	srv := &http.Server{
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	l, err := net.Listen("tcp", conf.ListenAddr())
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", conf.ListenAddr())
	}
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){s.provisioningLoop, s.linkLoop, s.captureLoop} {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(ctx)
		}(loop)
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	restart := false
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case <-s.restartc:
		logrus.Info("restart requested: shutting down.")
		restart = true
	}

	logrus.Info("shutting down http server")
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := srv.Shutdown(sctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	scancel()

	logrus.Info("stopping background loops")
	cancel()
	wg.Wait()
	s.notifyWg.Wait()

	if err := s.notifier.Close(); err != nil {
		logrus.Errorf("failed to close notifier: %v", err)
	}
	if err := s.source.Close(); err != nil {
		logrus.Errorf("failed to close frame source: %v", err)
	}
	link.Close()
	if err := captive.Stop(); err != nil {
		logrus.Errorf("failed to stop captive portal: %v", err)
	}
	if err := ap.Stop(); err != nil {
		logrus.Errorf("failed to stop access point: %v", err)
	}

	if restart {
		logrus.Info("restarting")
		return execSelf()
	}

	logrus.Info("exiting")
	return nil
}

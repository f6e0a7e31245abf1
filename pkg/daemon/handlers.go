package daemon

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cams3/camnode/pkg/config"
	"github.com/cams3/camnode/pkg/frame"
	"github.com/cams3/camnode/pkg/motion"
	"github.com/cams3/camnode/pkg/powerinfo"
	"github.com/cams3/camnode/pkg/provisioning"
	"github.com/cams3/camnode/pkg/version"
)

//go:embed web/index.html
var indexPage []byte

const scanTimeout = 20 * time.Second

// WiFiRequest is the body of POST /wifi.
type WiFiRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func (s *server) getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

func (s *server) getHealth(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": s.clock.Now().Sub(s.startedAt).Round(time.Second).String(),
		"state":  s.controller.State(),
	})
}

func (s *server) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *server) getPower(c *gin.Context) {
	st, err := powerinfo.Read()
	if err != nil {
		logrus.Errorf("getPower failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (s *server) getState(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.controller.Status())
}

func (s *server) postWiFi(c *gin.Context) {
	var req WiFiRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	err := s.controller.SaveAndConnect(req.SSID, req.Password)
	switch {
	case errors.Is(err, provisioning.ErrInvalidCredential):
		abort(c, http.StatusBadRequest, err)
		return
	case err != nil:
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusAccepted, fmt.Sprintf("credential for %q saved, switching networks", req.SSID))
}

func (s *server) deleteWiFi(c *gin.Context) {
	if err := s.controller.Reset(); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusAccepted, "credential cleared, restarting")
	s.requestRestart()
}

func (s *server) getWiFiScan(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), scanTimeout)
	defer cancel()

	networks, err := s.scanner.Scan(ctx)
	if err != nil {
		logrus.Errorf("wifi scan failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, networks)
}

func (s *server) getMotion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.engine.Snapshot())
}

func (s *server) getMotionConfig(c *gin.Context) {
	cfg := s.engine.Config()
	c.IndentedJSON(http.StatusOK, gin.H{
		"threshold":    cfg.Threshold,
		"triggerCount": cfg.TriggerCount,
	})
}

// bindUint8 reads a JSON integer in 0-255 from the request body.
func bindUint8(c *gin.Context, name string) (uint8, bool) {
	var v int
	if err := c.BindJSON(&v); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return 0, false
	}
	if v < 0 || v > 255 {
		abort(c, http.StatusBadRequest, fmt.Errorf("%s must be between 0 and 255, got %d", name, v))
		return 0, false
	}
	return uint8(v), true
}

func (s *server) setMotionThreshold(c *gin.Context) {
	v, ok := bindUint8(c, "threshold")
	if !ok {
		return
	}

	s.engine.SetThreshold(v)
	s.conf.SetMotionThreshold(v)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set motion threshold to %d", v)
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set motion threshold to %d", v))
}

func (s *server) setMotionTriggerCount(c *gin.Context) {
	v, ok := bindUint8(c, "trigger count")
	if !ok {
		return
	}

	s.engine.SetTriggerCount(v)
	s.conf.SetMotionTriggerCount(v)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set motion trigger count to %d", v)
	msg := fmt.Sprintf("set motion trigger count to %d", v)
	if int(v) > motion.GridCells {
		msg += fmt.Sprintf(". The grid has only %d cells, so motion will never be reported.", motion.GridCells)
	}
	c.IndentedJSON(http.StatusCreated, msg)
}

func (s *server) getSnapshot(c *gin.Context) {
	f, _ := s.latestFrame()
	if f == nil {
		abort(c, http.StatusServiceUnavailable, errors.New("no frame captured yet"))
		return
	}

	data, err := frame.EncodeJPEG(f, frame.DefaultJPEGQuality)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// getStream serves captured frames as MJPEG until the client goes away.
func (s *server) getStream(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(s.conf.MotionCheckInterval())
	defer ticker.Stop()

	var sent uint64
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
		}

		f, seq := s.latestFrame()
		if f == nil || seq == sent {
			return true
		}
		data, err := frame.EncodeJPEG(f, frame.DefaultJPEGQuality)
		if err != nil {
			logrus.WithError(err).Debug("skipping unencodable frame")
			return true
		}
		sent = seq

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
			return false
		}
		if _, err := w.Write(data); err != nil {
			return false
		}
		_, err = io.WriteString(w, "\r\n")
		return err == nil
	})
}

// getEvents streams hub events as server-sent events.
func (s *server) getEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(io.Writer) bool {
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

// captivePaths are the connectivity probes of common client OSes.
var captivePaths = []string{
	"/generate_204",
	"/gen_204",
	"/hotspot-detect.html",
	"/library/test/success.html",
	"/connecttest.txt",
	"/ncsi.txt",
	"/redirect",
	"/success.txt",
	"/canonical.html",
}

func (s *server) inFallback() bool {
	switch s.controller.State() {
	case provisioning.StateBroadcastingFallback, provisioning.StateSwitchingToHome:
		return true
	}
	return false
}

func (s *server) portalURL() string {
	return "http://" + s.conf.APAddress() + "/"
}

// captiveProbe sends connectivity checks to the provisioning page while the
// fallback network is up, and answers them normally otherwise.
func (s *server) captiveProbe(c *gin.Context) {
	if s.inFallback() {
		c.Redirect(http.StatusFound, s.portalURL())
		return
	}
	if c.Request.URL.Path == "/generate_204" || c.Request.URL.Path == "/gen_204" {
		c.Status(http.StatusNoContent)
		return
	}
	c.String(http.StatusOK, "success")
}

func (s *server) noRoute(c *gin.Context) {
	if s.inFallback() && c.Request.Method == http.MethodGet {
		c.Redirect(http.StatusFound, s.portalURL())
		return
	}
	c.IndentedJSON(http.StatusNotFound, "not found")
}

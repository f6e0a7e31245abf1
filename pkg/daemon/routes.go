package daemon

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cams3/camnode/pkg/metrics"
)

func (s *server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.Use(metrics.RequestMetricsMiddleware())
	if origins := corsOrigins(s.conf.CORSOrigins()); len(origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/", s.getIndex)
	router.GET("/health", s.getHealth)
	router.GET("/version", s.getVersion)
	router.GET("/config", s.getConfig)
	router.GET("/power", s.getPower)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/events", s.getEvents)

	router.GET("/state", s.getState)
	router.POST("/wifi", s.postWiFi)
	router.DELETE("/wifi", s.deleteWiFi)
	router.GET("/wifi/scan", s.getWiFiScan)

	router.GET("/motion", s.getMotion)
	router.GET("/motion/config", s.getMotionConfig)
	router.PUT("/motion/threshold", s.setMotionThreshold)
	router.PUT("/motion/trigger-count", s.setMotionTriggerCount)
	router.GET("/snapshot", s.getSnapshot)
	router.GET("/stream", s.getStream)

	for _, p := range captivePaths {
		router.GET(p, s.captiveProbe)
	}
	router.NoRoute(s.noRoute)

	return router
}

// corsOrigins drops entries cors.New would reject.
func corsOrigins(origins []string) []string {
	var valid []string
	for _, o := range origins {
		if o == "*" || strings.HasPrefix(o, "http://") || strings.HasPrefix(o, "https://") {
			valid = append(valid, o)
			continue
		}
		logrus.WithField("origin", o).Warn("ignoring invalid cors origin")
	}
	return valid
}

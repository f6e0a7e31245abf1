package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cams3/camnode/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		ListenAddr:               ptr.To(":80"),
		WiFiInterface:            ptr.To("wlan0"),
		APPrefix:                 ptr.To("MyCam-"),
		APAddress:                ptr.To("192.164.4.1"),
		STATimeoutSeconds:        ptr.To(30),
		SwitchTimeoutSeconds:     ptr.To(30),
		ReconnectIntervalSeconds: ptr.To(5),
		ProvisioningTickMs:       ptr.To(100),
		CredentialPath:           ptr.To("/var/lib/camnode/wifi.json"),
		CameraDevice:             ptr.To("/dev/video0"),
		ImageFile:                ptr.To(""),
		FrameWidth:               ptr.To(640),
		FrameHeight:              ptr.To(480),
		MotionThreshold:          ptr.To(uint8(30)),
		MotionTriggerCount:       ptr.To(uint8(5)),
		MotionCheckIntervalMs:    ptr.To(200),
		MQTTBroker:               ptr.To(""),
		MQTTTopic:                ptr.To("camnode/motion"),
		DeviceName:               ptr.To("camS3"),
	}
)

var _ Config = &File{}

type format int

const (
	formatJSON format = iota
	formatTOML
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", "":
		return formatJSON, nil
	case ".toml":
		return formatTOML, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, pkgerrors.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	ListenAddr               *string  `json:"listenAddr,omitempty" toml:"listenAddr,omitempty" yaml:"listenAddr,omitempty"`
	WiFiInterface            *string  `json:"wifiInterface,omitempty" toml:"wifiInterface,omitempty" yaml:"wifiInterface,omitempty"`
	APInterface              *string  `json:"apInterface,omitempty" toml:"apInterface,omitempty" yaml:"apInterface,omitempty"`
	APPrefix                 *string  `json:"apPrefix,omitempty" toml:"apPrefix,omitempty" yaml:"apPrefix,omitempty"`
	APAddress                *string  `json:"apAddress,omitempty" toml:"apAddress,omitempty" yaml:"apAddress,omitempty"`
	STATimeoutSeconds        *int     `json:"staTimeoutSeconds,omitempty" toml:"staTimeoutSeconds,omitempty" yaml:"staTimeoutSeconds,omitempty"`
	SwitchTimeoutSeconds     *int     `json:"switchTimeoutSeconds,omitempty" toml:"switchTimeoutSeconds,omitempty" yaml:"switchTimeoutSeconds,omitempty"`
	ReconnectIntervalSeconds *int     `json:"reconnectIntervalSeconds,omitempty" toml:"reconnectIntervalSeconds,omitempty" yaml:"reconnectIntervalSeconds,omitempty"`
	ProvisioningTickMs       *int     `json:"provisioningTickMs,omitempty" toml:"provisioningTickMs,omitempty" yaml:"provisioningTickMs,omitempty"`
	CredentialPath           *string  `json:"credentialPath,omitempty" toml:"credentialPath,omitempty" yaml:"credentialPath,omitempty"`
	CameraDevice             *string  `json:"cameraDevice,omitempty" toml:"cameraDevice,omitempty" yaml:"cameraDevice,omitempty"`
	ImageFile                *string  `json:"imageFile,omitempty" toml:"imageFile,omitempty" yaml:"imageFile,omitempty"`
	FrameWidth               *int     `json:"frameWidth,omitempty" toml:"frameWidth,omitempty" yaml:"frameWidth,omitempty"`
	FrameHeight              *int     `json:"frameHeight,omitempty" toml:"frameHeight,omitempty" yaml:"frameHeight,omitempty"`
	MotionThreshold          *uint8   `json:"motionThreshold,omitempty" toml:"motionThreshold,omitempty" yaml:"motionThreshold,omitempty"`
	MotionTriggerCount       *uint8   `json:"motionTriggerCount,omitempty" toml:"motionTriggerCount,omitempty" yaml:"motionTriggerCount,omitempty"`
	MotionCheckIntervalMs    *int     `json:"motionCheckIntervalMs,omitempty" toml:"motionCheckIntervalMs,omitempty" yaml:"motionCheckIntervalMs,omitempty"`
	MQTTBroker               *string  `json:"mqttBroker,omitempty" toml:"mqttBroker,omitempty" yaml:"mqttBroker,omitempty"`
	MQTTTopic                *string  `json:"mqttTopic,omitempty" toml:"mqttTopic,omitempty" yaml:"mqttTopic,omitempty"`
	DeviceName               *string  `json:"deviceName,omitempty" toml:"deviceName,omitempty" yaml:"deviceName,omitempty"`
	CORSOrigins              []string `json:"corsOrigins,omitempty" toml:"corsOrigins,omitempty" yaml:"corsOrigins,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		ListenAddr:               ptr.To(c.ListenAddr()),
		WiFiInterface:            ptr.To(c.WiFiInterface()),
		APInterface:              ptr.To(c.APInterface()),
		APPrefix:                 ptr.To(c.APPrefix()),
		APAddress:                ptr.To(c.APAddress()),
		STATimeoutSeconds:        ptr.To(int(c.STATimeout() / time.Second)),
		SwitchTimeoutSeconds:     ptr.To(int(c.SwitchTimeout() / time.Second)),
		ReconnectIntervalSeconds: ptr.To(int(c.ReconnectInterval() / time.Second)),
		ProvisioningTickMs:       ptr.To(int(c.ProvisioningTick() / time.Millisecond)),
		CredentialPath:           ptr.To(c.CredentialPath()),
		CameraDevice:             ptr.To(c.CameraDevice()),
		ImageFile:                ptr.To(c.ImageFile()),
		FrameWidth:               ptr.To(c.FrameWidth()),
		FrameHeight:              ptr.To(c.FrameHeight()),
		MotionThreshold:          ptr.To(c.MotionThreshold()),
		MotionTriggerCount:       ptr.To(c.MotionTriggerCount()),
		MotionCheckIntervalMs:    ptr.To(int(c.MotionCheckInterval() / time.Millisecond)),
		MQTTBroker:               ptr.To(c.MQTTBroker()),
		MQTTTopic:                ptr.To(c.MQTTTopic()),
		DeviceName:               ptr.To(c.DeviceName()),
		CORSOrigins:              c.CORSOrigins(),
	}

	return rawConfig, nil
}

// get reads one field under the read lock, falling back to its default.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(field(f.c), *field(defaultFileConfig))
}

// positive is like get for counts and durations, where zero or less means
// the default.
func positive(f *File, field func(*RawFileConfig) *int) int {
	v := get(f, field)
	if v <= 0 {
		return *field(defaultFileConfig)
	}
	return v
}

func (f *File) ListenAddr() string {
	return get(f, func(c *RawFileConfig) *string { return c.ListenAddr })
}

func (f *File) WiFiInterface() string {
	return get(f, func(c *RawFileConfig) *string { return c.WiFiInterface })
}

// APInterface defaults to the station interface.
func (f *File) APInterface() string {
	f.mu.RLock()
	v := f.c.APInterface
	f.mu.RUnlock()

	if v == nil || *v == "" {
		return f.WiFiInterface()
	}
	return *v
}

func (f *File) APPrefix() string {
	return get(f, func(c *RawFileConfig) *string { return c.APPrefix })
}

func (f *File) APAddress() string {
	return get(f, func(c *RawFileConfig) *string { return c.APAddress })
}

func (f *File) STATimeout() time.Duration {
	return time.Duration(positive(f, func(c *RawFileConfig) *int { return c.STATimeoutSeconds })) * time.Second
}

func (f *File) SwitchTimeout() time.Duration {
	return time.Duration(positive(f, func(c *RawFileConfig) *int { return c.SwitchTimeoutSeconds })) * time.Second
}

func (f *File) ReconnectInterval() time.Duration {
	return time.Duration(positive(f, func(c *RawFileConfig) *int { return c.ReconnectIntervalSeconds })) * time.Second
}

func (f *File) ProvisioningTick() time.Duration {
	return time.Duration(positive(f, func(c *RawFileConfig) *int { return c.ProvisioningTickMs })) * time.Millisecond
}

func (f *File) CredentialPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.CredentialPath })
}

func (f *File) CameraDevice() string {
	return get(f, func(c *RawFileConfig) *string { return c.CameraDevice })
}

// ImageFile, when set, replaces the camera with a still image that is
// re-read on every capture.
func (f *File) ImageFile() string {
	return get(f, func(c *RawFileConfig) *string { return c.ImageFile })
}

func (f *File) FrameWidth() int {
	return positive(f, func(c *RawFileConfig) *int { return c.FrameWidth })
}

func (f *File) FrameHeight() int {
	return positive(f, func(c *RawFileConfig) *int { return c.FrameHeight })
}

func (f *File) MotionThreshold() uint8 {
	return get(f, func(c *RawFileConfig) *uint8 { return c.MotionThreshold })
}

func (f *File) MotionTriggerCount() uint8 {
	return get(f, func(c *RawFileConfig) *uint8 { return c.MotionTriggerCount })
}

func (f *File) MotionCheckInterval() time.Duration {
	return time.Duration(positive(f, func(c *RawFileConfig) *int { return c.MotionCheckIntervalMs })) * time.Millisecond
}

// MQTTBroker is empty when motion events are not published.
func (f *File) MQTTBroker() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTBroker })
}

func (f *File) MQTTTopic() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTTopic })
}

func (f *File) DeviceName() string {
	return get(f, func(c *RawFileConfig) *string { return c.DeviceName })
}

func (f *File) CORSOrigins() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]string(nil), f.c.CORSOrigins...)
}

func (f *File) SetMotionThreshold(v uint8) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.MotionThreshold = &v
}

func (f *File) SetMotionTriggerCount(v uint8) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.MotionTriggerCount = &v
}

func (f *File) Path() string {
	return f.filepath
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ft, err := formatOf(f.filepath)
	if err != nil {
		return err
	}

	b, err := os.ReadFile(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if len(bytes.TrimSpace(b)) == 0 {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	switch ft {
	case formatTOML:
		err = toml.Unmarshal(b, &conf)
	case formatYAML:
		err = yaml.Unmarshal(b, &conf)
	default:
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	ft, err := formatOf(f.filepath)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch ft {
	case formatTOML:
		err = toml.NewEncoder(&buf).Encode(f.c)
	case formatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	if err := os.WriteFile(f.filepath, buf.Bytes(), 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"listenAddr":         f.ListenAddr(),
		"wifiInterface":      f.WiFiInterface(),
		"apInterface":        f.APInterface(),
		"apAddress":          f.APAddress(),
		"staTimeout":         f.STATimeout().String(),
		"switchTimeout":      f.SwitchTimeout().String(),
		"cameraDevice":       f.CameraDevice(),
		"imageFile":          f.ImageFile(),
		"motionThreshold":    f.MotionThreshold(),
		"motionTriggerCount": f.MotionTriggerCount(),
		"mqttBroker":         f.MQTTBroker(),
		"deviceName":         f.DeviceName(),
	}
}

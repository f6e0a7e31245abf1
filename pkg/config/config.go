package config

import "time"

type Config interface {
	ListenAddr() string
	WiFiInterface() string
	APInterface() string
	APPrefix() string
	APAddress() string
	STATimeout() time.Duration
	SwitchTimeout() time.Duration
	ReconnectInterval() time.Duration
	ProvisioningTick() time.Duration
	CredentialPath() string

	CameraDevice() string
	ImageFile() string
	FrameWidth() int
	FrameHeight() int
	MotionThreshold() uint8
	MotionTriggerCount() uint8
	MotionCheckInterval() time.Duration

	MQTTBroker() string
	MQTTTopic() string
	DeviceName() string
	CORSOrigins() []string

	SetMotionThreshold(uint8)
	SetMotionTriggerCount(uint8)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

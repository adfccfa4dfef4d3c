// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sensor source names accepted by SENSOR_SOURCE.
const (
	SourceMock   = "mock"
	SourceIMU    = "imu"
	SourceMQTT   = "mqtt"
	SourceReplay = "replay"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor source
	SensorSource string
	ReplayPath   string
	ReplayLoop   bool

	// MQTT
	MQTTBroker           string
	MQTTClientIDCompass  string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string
	MQTTClientIDWeb      string
	MQTTPublishEnable    bool

	// Topics
	TopicSensorEvents string
	TopicOrientation  string

	// IMU Hardware (MPU-9250 accel + gyro)
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange      byte
	IMUSampleInterval int // milliseconds

	// Magnetometer (HMC5983 over I2C)
	MagEnable     bool
	MagI2CBus     string
	MagI2CAddr    uint16
	MagODRHz      int
	MagAvgSamples int
	MagGainCode   int

	// Console
	ConsoleEnable      bool
	ConsoleLogInterval int // milliseconds

	// OLED display
	DisplayEnable         bool
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	// Web Server
	WebEnable     bool
	WebServerPort int
	WebStaticDir  string

	// NMEA heading output
	NMEAEnable     bool
	NMEASerialPort string
	NMEABaudRate   int
}

// Default returns a configuration that runs the mock source with console
// output and the web server, which needs no hardware.
func Default() *Config {
	return &Config{
		SensorSource: SourceMock,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDCompass:  "compass-level",
		MQTTClientIDProducer: "compass-level-producer",
		MQTTClientIDConsole:  "compass-level-console",
		MQTTClientIDDisplay:  "compass-level-display",
		MQTTClientIDWeb:      "compass-level-web",

		TopicSensorEvents: "compass/sensors",
		TopicOrientation:  "compass/orientation",

		IMUSPIDevice:      "/dev/spidev0.0",
		IMUCSPin:          "8",
		IMUSampleInterval: 60,

		MagI2CBus:     "1",
		MagI2CAddr:    0x1E,
		MagODRHz:      15,
		MagAvgSamples: 1,
		MagGainCode:   1,

		ConsoleEnable:      true,
		ConsoleLogInterval: 500,

		DisplayI2CBus:         "1",
		DisplayUpdateInterval: 200,

		WebEnable:     true,
		WebServerPort: 8080,
		WebStaticDir:  "web",

		NMEASerialPort: "/dev/ttyUSB0",
		NMEABaudRate:   4800,
	}
}

// Package-level singleton: InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct. Keys not
// present in the file keep their Default values.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines from r. Empty lines and lines starting with
// '#' are ignored.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Sensor source
	case "SENSOR_SOURCE":
		c.SensorSource = strings.ToLower(value)
	case "REPLAY_PATH":
		c.ReplayPath = value
	case "REPLAY_LOOP":
		c.ReplayLoop, err = parseBool(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_COMPASS":
		c.MQTTClientIDCompass = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_PUBLISH_ENABLE":
		c.MQTTPublishEnable, err = parseBool(key, value)

	// Topics
	case "TOPIC_SENSOR_EVENTS":
		c.TopicSensorEvents = value
	case "TOPIC_ORIENTATION":
		c.TopicOrientation = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		var v int
		if v, err = parseIntRange(key, value, 0, 3); err == nil {
			c.IMUAccelRange = byte(v)
		}
	case "IMU_GYRO_RANGE":
		var v int
		if v, err = parseIntRange(key, value, 0, 3); err == nil {
			c.IMUGyroRange = byte(v)
		}
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseInt(key, value)

	// Magnetometer
	case "MAG_ENABLE":
		c.MagEnable, err = parseBool(key, value)
	case "MAG_I2C_BUS":
		c.MagI2CBus = value
	case "MAG_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid MAG_I2C_ADDR %q: %w", value, perr)
		}
		c.MagI2CAddr = uint16(addr)
	case "MAG_ODR_HZ":
		c.MagODRHz, err = parseInt(key, value)
	case "MAG_AVG_SAMPLES":
		c.MagAvgSamples, err = parseInt(key, value)
		if err == nil && c.MagAvgSamples != 1 && c.MagAvgSamples != 2 && c.MagAvgSamples != 4 && c.MagAvgSamples != 8 {
			err = fmt.Errorf("MAG_AVG_SAMPLES must be 1, 2, 4 or 8, got %d", c.MagAvgSamples)
		}
	case "MAG_GAIN_CODE":
		c.MagGainCode, err = parseIntRange(key, value, 0, 7)

	// Console
	case "CONSOLE_ENABLE":
		c.ConsoleEnable, err = parseBool(key, value)
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInt(key, value)

	// Display
	case "DISPLAY_ENABLE":
		c.DisplayEnable, err = parseBool(key, value)
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	// Web Server
	case "WEB_ENABLE":
		c.WebEnable, err = parseBool(key, value)
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseIntRange(key, value, 1, 65535)
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// NMEA
	case "NMEA_ENABLE":
		c.NMEAEnable, err = parseBool(key, value)
	case "NMEA_SERIAL_PORT":
		c.NMEASerialPort = value
	case "NMEA_BAUD_RATE":
		c.NMEABaudRate, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseIntRange(key, value string, min, max int) (int, error) {
	v, err := parseInt(key, value)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// validate checks that the selected features have what they need.
func (c *Config) validate() error {
	switch c.SensorSource {
	case SourceMock, SourceIMU:
	case SourceMQTT:
		if c.TopicSensorEvents == "" {
			return fmt.Errorf("TOPIC_SENSOR_EVENTS is required for SENSOR_SOURCE=mqtt")
		}
	case SourceReplay:
		if c.ReplayPath == "" {
			return fmt.Errorf("REPLAY_PATH is required for SENSOR_SOURCE=replay")
		}
	default:
		return fmt.Errorf("SENSOR_SOURCE must be one of mock, imu, mqtt, replay, got %q", c.SensorSource)
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.MQTTPublishEnable && c.TopicOrientation == "" {
		return fmt.Errorf("TOPIC_ORIENTATION is required when MQTT_PUBLISH_ENABLE is set")
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be > 0")
	}
	if c.ConsoleLogInterval < 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be >= 0")
	}
	if c.DisplayEnable && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be > 0")
	}
	if c.NMEAEnable {
		if c.NMEASerialPort == "" {
			return fmt.Errorf("NMEA_SERIAL_PORT is required when NMEA_ENABLE is set")
		}
		if c.NMEABaudRate <= 0 {
			return fmt.Errorf("NMEA_BAUD_RATE must be > 0")
		}
	}
	return nil
}

// SampleInterval is IMU_SAMPLE_INTERVAL as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.IMUSampleInterval) * time.Millisecond
}

// ConsoleInterval is CONSOLE_LOG_INTERVAL as a duration.
func (c *Config) ConsoleInterval() time.Duration {
	return time.Duration(c.ConsoleLogInterval) * time.Millisecond
}

// DisplayInterval is DISPLAY_UPDATE_INTERVAL as a duration.
func (c *Config) DisplayInterval() time.Duration {
	return time.Duration(c.DisplayUpdateInterval) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads anything; later calls return the first result.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Consensus  ConsensusConfig  `mapstructure:"consensus"`
	Gate       GateConfig       `mapstructure:"gate"`
	Hardware   HardwareConfig   `mapstructure:"hardware"`
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
}

type CheckpointConfig struct {
	Name           string `mapstructure:"name"`
	ApprovalPhrase string `mapstructure:"approval_phrase"`
}

type CameraConfig struct {
	URL            string        `mapstructure:"url"`
	FrameSkip      int           `mapstructure:"frame_skip"`
	Width          int           `mapstructure:"width"`
	Height         int           `mapstructure:"height"`
	ReopenInterval time.Duration `mapstructure:"reopen_interval"`
}

type DetectorConfig struct {
	Backend       string  `mapstructure:"backend"`
	Model         string  `mapstructure:"model"`
	InputSize     int     `mapstructure:"input_size"`
	ConfThreshold float32 `mapstructure:"conf_threshold"`
	NMSThreshold  float32 `mapstructure:"nms_threshold"`
}

type OCRConfig struct {
	Language  string `mapstructure:"language"`
	Whitelist string `mapstructure:"whitelist"`
	Threshold uint8  `mapstructure:"threshold"`
	MinLength int    `mapstructure:"min_length"`
}

type ConsensusConfig struct {
	Capacity      int     `mapstructure:"capacity"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type GateConfig struct {
	OpenAngle   int           `mapstructure:"open_angle"`
	RestAngle   int           `mapstructure:"rest_angle"`
	ClosedAngle int           `mapstructure:"closed_angle"`
	HomeOnStart bool          `mapstructure:"home_on_start"`
	Hold        time.Duration `mapstructure:"hold"`
	Settle      time.Duration `mapstructure:"settle"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	QueueSize   int           `mapstructure:"queue_size"`
}

type HardwareConfig struct {
	Backend      string       `mapstructure:"backend"`
	ServoPin     string       `mapstructure:"servo_pin"`
	SensorPin    string       `mapstructure:"sensor_pin"`
	SensorActive string       `mapstructure:"sensor_active"`
	PWMFrequency int          `mapstructure:"pwm_frequency"`
	Serial       SerialConfig `mapstructure:"serial"`
}

type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	FallbackURL    string   `mapstructure:"fallback_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads the file at path (optional when empty) and applies
// CHECKPOINT_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("checkpoint")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("checkpoint.name", "main-gate")
	v.SetDefault("checkpoint.approval_phrase", "AUTHORIZED TO PASS")

	v.SetDefault("camera.url", "0")
	v.SetDefault("camera.frame_skip", 2)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.reopen_interval", 10*time.Second)

	v.SetDefault("detector.backend", "yolo")
	v.SetDefault("detector.model", "license_plate_detector.onnx")
	v.SetDefault("detector.input_size", 640)
	v.SetDefault("detector.conf_threshold", 0.25)
	v.SetDefault("detector.nms_threshold", 0.45)

	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.whitelist", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	v.SetDefault("ocr.threshold", 64)
	v.SetDefault("ocr.min_length", 7)

	v.SetDefault("consensus.capacity", 6)
	v.SetDefault("consensus.min_confidence", 0.3)

	v.SetDefault("gate.open_angle", 180)
	v.SetDefault("gate.rest_angle", 80)
	v.SetDefault("gate.closed_angle", 80)
	v.SetDefault("gate.home_on_start", false)
	v.SetDefault("gate.hold", 5*time.Second)
	v.SetDefault("gate.settle", 200*time.Millisecond)
	v.SetDefault("gate.step_timeout", 3*time.Second)
	v.SetDefault("gate.queue_size", 1)

	v.SetDefault("hardware.backend", "gpio")
	v.SetDefault("hardware.servo_pin", "GPIO18")
	v.SetDefault("hardware.sensor_pin", "GPIO23")
	v.SetDefault("hardware.sensor_active", "low")
	v.SetDefault("hardware.pwm_frequency", 50)
	v.SetDefault("hardware.serial.port", "/dev/ttyUSB0")
	v.SetDefault("hardware.serial.baud_rate", 115200)
	v.SetDefault("hardware.serial.read_timeout", 100*time.Millisecond)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=checkpoint dbname=checkpoint sslmode=disable")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.fallback_url", "/vehicles/new")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "checkpoint-gate")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func (c *Config) Validate() error {
	if c.Camera.URL == "" {
		return fmt.Errorf("camera.url is required")
	}
	if c.Camera.FrameSkip < 0 {
		return fmt.Errorf("camera.frame_skip must be >= 0, got %d", c.Camera.FrameSkip)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera.width and camera.height must be positive")
	}
	switch c.Detector.Backend {
	case "yolo", "contour":
	default:
		return fmt.Errorf("unsupported detector.backend %q: expected yolo or contour", c.Detector.Backend)
	}
	if c.Detector.Backend == "yolo" && c.Detector.Model == "" {
		return fmt.Errorf("detector.model is required for the yolo backend")
	}
	if c.OCR.MinLength < 1 {
		return fmt.Errorf("ocr.min_length must be positive")
	}
	if c.Consensus.Capacity < 1 {
		return fmt.Errorf("consensus.capacity must be positive, got %d", c.Consensus.Capacity)
	}
	if c.Consensus.MinConfidence < 0 || c.Consensus.MinConfidence > 1 {
		return fmt.Errorf("consensus.min_confidence must be within [0,1]")
	}
	for name, angle := range map[string]int{
		"gate.open_angle":   c.Gate.OpenAngle,
		"gate.rest_angle":   c.Gate.RestAngle,
		"gate.closed_angle": c.Gate.ClosedAngle,
	} {
		if angle < 0 || angle > 180 {
			return fmt.Errorf("%s must be within [0,180], got %d", name, angle)
		}
	}
	if c.Gate.QueueSize < 0 {
		return fmt.Errorf("gate.queue_size must be >= 0")
	}
	if c.Gate.StepTimeout <= 0 {
		return fmt.Errorf("gate.step_timeout must be positive")
	}
	if c.Gate.StepTimeout <= c.Gate.Settle {
		return fmt.Errorf("gate.step_timeout must exceed gate.settle")
	}
	switch c.Hardware.Backend {
	case "gpio", "serial", "simulated":
	default:
		return fmt.Errorf("unsupported hardware.backend %q: expected gpio, serial or simulated", c.Hardware.Backend)
	}
	switch c.Hardware.SensorActive {
	case "low", "high":
	default:
		return fmt.Errorf("hardware.sensor_active must be low or high")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q: expected postgres or sqlite", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

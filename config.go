package btbricks

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use forms like
// "5s" or "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrap(err, "parse duration")
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the file-backed engine configuration. Zero values leave the
// engine defaults untouched.
type Config struct {
	ConnectTimeout Duration `yaml:"connect_timeout"`
	ScanWindow     Duration `yaml:"scan_window"`
	TargetMTU      int      `yaml:"target_mtu"`
	MaxLinks       int      `yaml:"max_peripheral_links"`

	Serial SerialConfig `yaml:"serial"`
}

// SerialConfig locates the UART-attached radio controller.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud uint   `yaml:"baud"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Options translates the configuration into engine options.
func (c *Config) Options() []Option {
	var oo []Option
	if c.ConnectTimeout > 0 {
		oo = append(oo, OptConnectTimeout(c.ConnectTimeout.Std()))
	}
	if c.ScanWindow > 0 {
		oo = append(oo, OptScanWindow(c.ScanWindow.Std()))
	}
	if c.TargetMTU > 0 {
		oo = append(oo, OptTargetMTU(c.TargetMTU))
	}
	if c.MaxLinks > 0 {
		oo = append(oo, OptMaxPeripheralLinks(c.MaxLinks))
	}
	return oo
}

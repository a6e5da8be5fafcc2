package trafficlight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/goccy/go-yaml"
)

const (
	DefaultMinCycle        = 4 * time.Second
	DefaultMaxCycle        = 6 * time.Second
	DefaultCycleStep       = time.Second
	DefaultPollInterval    = time.Millisecond
	DefaultNotifierTimeout = 5 * time.Second
	DefaultNotifierWorkers = 4
	DefaultListenAddr      = ":8080"
)

type Config struct {
	Light     *LightConfig      `yaml:"light"`
	Responder *ResponderConfig  `yaml:"responder"`
	Notifiers []*NotifierConfig `yaml:"notifiers"`
	Workers   int               `yaml:"workers"`
}

type ResponderConfig struct {
	Addr string `yaml:"addr"`
}

type LightConfig struct {
	MinCycle      time.Duration `yaml:"min_cycle"`
	MaxCycle      time.Duration `yaml:"max_cycle"`
	CycleStep     time.Duration `yaml:"cycle_step"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ResampleCycle bool          `yaml:"resample_cycle"`
	QueueOrder    string        `yaml:"queue_order"`
	Seed          int64         `yaml:"seed"`
}

// NewLightConfig returns a LightConfig cycling every 4, 5 or 6 seconds.
func NewLightConfig() *LightConfig {
	return &LightConfig{
		MinCycle:     DefaultMinCycle,
		MaxCycle:     DefaultMaxCycle,
		CycleStep:    DefaultCycleStep,
		PollInterval: DefaultPollInterval,
		QueueOrder:   string(OrderFIFO),
	}
}

// fillDefaults sets zero fields left by a partial light section.
func (c *LightConfig) fillDefaults() {
	d := NewLightConfig()
	if c.MinCycle == 0 {
		c.MinCycle = d.MinCycle
	}
	if c.MaxCycle == 0 {
		c.MaxCycle = max(d.MaxCycle, c.MinCycle)
	}
	if c.CycleStep == 0 {
		c.CycleStep = d.CycleStep
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.QueueOrder == "" {
		c.QueueOrder = d.QueueOrder
	}
}

func (c *LightConfig) Validate() error {
	if c.MinCycle <= 0 {
		return fmt.Errorf("min_cycle must be positive: %s", c.MinCycle)
	}
	if c.MaxCycle < c.MinCycle {
		return fmt.Errorf("max_cycle %s must not be less than min_cycle %s", c.MaxCycle, c.MinCycle)
	}
	if c.CycleStep <= 0 {
		return fmt.Errorf("cycle_step must be positive: %s", c.CycleStep)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive: %s", c.PollInterval)
	}
	if _, err := ParseOrder(c.QueueOrder); err != nil {
		return err
	}
	return nil
}

type NotifierConfig struct {
	Name    string        `yaml:"name"`
	Phase   string        `yaml:"phase"`
	Timeout time.Duration `yaml:"timeout"`

	Command *CommandNotifierConfig `yaml:"command"`
	TCP     *TCPNotifierConfig     `yaml:"tcp"`
	HTTP    *HTTPNotifierConfig    `yaml:"http"`
}

func LoadConfig(ctx context.Context, src string) (*Config, error) {
	config := &Config{
		Light: NewLightConfig(),
		Responder: &ResponderConfig{
			Addr: DefaultListenAddr,
		},
		Workers: DefaultNotifierWorkers,
	}
	b, err := loadURL(ctx, src)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", src, err)
	}
	if config.Light == nil {
		config.Light = NewLightConfig()
	}
	config.Light.fillDefaults()
	if config.Responder == nil {
		config.Responder = &ResponderConfig{Addr: DefaultListenAddr}
	}
	if config.Workers <= 0 {
		config.Workers = DefaultNotifierWorkers
	}
	if err := config.Light.Validate(); err != nil {
		return nil, fmt.Errorf("invalid light config: %w", err)
	}
	for i, c := range config.Notifiers {
		if c.Timeout == 0 {
			c.Timeout = DefaultNotifierTimeout
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("notifier-%d", i)
		}
		if c.Phase != "" {
			if _, err := ParsePhase(c.Phase); err != nil {
				return nil, fmt.Errorf("notifier %s: %w", c.Name, err)
			}
		}
	}
	return config, nil
}

func loadURL(ctx context.Context, s string) ([]byte, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", s, err)
	}
	switch u.Scheme {
	case "http", "https":
		return loadHTTP(ctx, u)
	case "file", "": // empty scheme is treated as file
		return os.ReadFile(u.Path)
	case "s3":
		return loadS3(ctx, u)
	default:
		return nil, fmt.Errorf("invalid url %s: scheme must be http, https, file, or s3", s)
	}
}

func loadHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http get %s failed: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func loadS3(ctx context.Context, u *url.URL) ([]byte, error) {
	awscfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	svc := s3.NewFromConfig(awscfg)
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	out, err := svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object s3://%s/%s failed: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

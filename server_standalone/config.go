package main

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pkg/tftp"
)

// Config is the server configuration, read from an optional YAML file and then overridden by flags.
type Config struct {
	Addr        string        `yaml:"addr"`
	Root        string        `yaml:"root"`
	ReadOnly    bool          `yaml:"read_only"`
	NoOverwrite bool          `yaml:"no_overwrite"`
	MaxRetries  int           `yaml:"max_retries"`
	Linger      time.Duration `yaml:"linger"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	Debug       bool          `yaml:"debug"`

	// Backend is "file" (the default) or "s3".
	Backend string   `yaml:"backend"`
	S3      S3Config `yaml:"s3"`
}

// S3Config selects the bucket served when Backend is "s3".
type S3Config struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	AccessKeyID string `yaml:"access_key_id"`
	SecretKey   string `yaml:"secret_key"`
	Token       string `yaml:"token"`
	KMSKeyID    string `yaml:"kms_key_id"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:       ":69",
		MaxRetries: tftp.DefaultMaxRetries,
		Linger:     tftp.DefaultLinger,
		Backend:    "file",
	}
}

// loadConfig reads the YAML file at path over the defaults.
// An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	return cfg, nil
}

// parseFlags parses args, loads the -config file if one is named,
// and applies every flag that was explicitly set on top of it.
func parseFlags(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tftp-server", flag.ContinueOnError)

	var (
		configPath  string
		addr        string
		root        string
		readOnly    bool
		noOverwrite bool
		retries     int
		debugStderr bool
	)

	fs.StringVar(&configPath, "config", "", "YAML configuration file")
	fs.StringVar(&addr, "addr", ":69", "UDP address to listen on")
	fs.StringVar(&root, "root", "", "directory to serve (default: working directory)")
	fs.BoolVar(&readOnly, "R", false, "read-only server")
	fs.BoolVar(&noOverwrite, "no-overwrite", false, "refuse uploads replacing an existing file")
	fs.IntVar(&retries, "retries", tftp.DefaultMaxRetries, "retransmissions before a transfer is abandoned")
	fs.BoolVar(&debugStderr, "e", false, "debug to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = addr
		case "root":
			cfg.Root = root
		case "R":
			cfg.ReadOnly = readOnly
		case "no-overwrite":
			cfg.NoOverwrite = noOverwrite
		case "retries":
			cfg.MaxRetries = retries
		case "e":
			cfg.Debug = debugStderr
		}
	})

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "", "file":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 backend requires a bucket")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	if c.MaxRetries < 0 {
		return errors.Errorf("negative retries %d", c.MaxRetries)
	}

	return nil
}

func (c *Config) logger(w io.Writer) *slog.Logger {
	if !c.Debug {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// serverOptions translates c into options for tftp.NewServer.
func (c *Config) serverOptions(lg *slog.Logger) ([]tftp.ServerOption, error) {
	opts := []tftp.ServerOption{
		tftp.WithLogger(lg),
		tftp.WithMaxRetries(c.MaxRetries),
		tftp.AllowOverwrite(!c.NoOverwrite),
	}

	if c.ReadOnly {
		opts = append(opts, tftp.ReadOnly())
	}
	if c.Linger > 0 {
		opts = append(opts, tftp.WithLinger(c.Linger))
	}
	if c.IdleTimeout > 0 {
		opts = append(opts, tftp.WithIdleTimeout(c.IdleTimeout))
	}

	if c.Backend != "s3" {
		return append(opts, tftp.WithRootDir(c.Root)), nil
	}

	var kmsKeyID *string
	if c.S3.KMSKeyID != "" {
		kmsKeyID = &c.S3.KMSKeyID
	}

	b, err := tftp.NewS3Backend(
		c.S3.Bucket,
		c.S3.Prefix,
		c.S3.Region,
		c.S3.AccessKeyID,
		c.S3.SecretKey,
		c.S3.Token,
		kmsKeyID,
		lg,
	)
	if err != nil {
		return nil, err
	}

	return append(opts, tftp.WithBackend(b)), nil
}

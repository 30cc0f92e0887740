package config

import (
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"sync"
	"time"
)

type Config struct {
	IsDebug  bool   `yaml:"is_debug" env:"PIXTIP_DEBUG" env-default:"false"`
	TimeZone string `yaml:"time_zone" env-default:"America/Sao_Paulo"`
	Listen   struct {
		BindIP   string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PIXTIP_PORT" env-default:"5000"`
		TLS      bool   `yaml:"tls_enabled" env-default:"false"`
		CertFile string `yaml:"cert_file" env-default:""`
		KeyFile  string `yaml:"key_file" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:""`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
		Database string `yaml:"database" env-default:"pixtip"`
	} `yaml:"mongo"`
	Pix struct {
		DefaultCity    string `yaml:"default_city" env-default:"Cidade"`
		Description    string `yaml:"description" env-default:"Gorjeta Musical"`
		ReferenceLabel string `yaml:"reference_label" env-default:"***"`
	} `yaml:"pix"`
	Gateway struct {
		Disabled     bool   `yaml:"disabled" env-default:"false"`
		BaseUrl      string `yaml:"base_url" env:"GATEWAY_URL" env-default:"https://api.mercadopago.com"`
		PayerDomain  string `yaml:"payer_domain" env-default:"musicalmenu.com"`
		PayerName    string `yaml:"payer_name" env-default:"Visitante"`
		Timeout      int    `yaml:"timeout" env-default:"15"`
		PollInterval int    `yaml:"poll_interval" env-default:"3"`
		PollTimeout  int    `yaml:"poll_timeout" env-default:"600"`
	} `yaml:"gateway"`
	Sessions struct {
		TTL   int `yaml:"ttl" env-default:"60"`
		Sweep int `yaml:"sweep" env-default:"60"`
	} `yaml:"sessions"`
	Pusher struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		AppID   string `yaml:"app_id" env:"PUSHER_APP_ID" env-default:""`
		Key     string `yaml:"key" env:"PUSHER_KEY" env-default:""`
		Secret  string `yaml:"secret" env:"PUSHER_SECRET" env-default:""`
		Cluster string `yaml:"cluster" env-default:"eu"`
	} `yaml:"pusher"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	} `yaml:"telegram"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"9100"`
	} `yaml:"metrics"`
}

// GatewayTimeout is the deadline of a single gateway call
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.Timeout) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Gateway.PollInterval) * time.Second
}

// PollTimeout bounds automatic confirmation of a single charge
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Gateway.PollTimeout) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.TTL) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sessions.Sweep) * time.Second
}

var instance *Config
var once sync.Once

func GetConfig() (*Config, error) {
	var err error
	once.Do(func() {
		log.Println("reading config")
		instance, err = ReadConfig("config.yml")
	})
	return instance, err
}

func ReadConfig(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		log.Println(desc)
		return nil, err
	}
	return conf, nil
}

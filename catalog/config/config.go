package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ebookshare/catalog-service/catalog/internal/blob"
	"github.com/ebookshare/catalog-service/catalog/internal/fetcher"
	"github.com/ebookshare/catalog-service/pkg/kafka"
	"github.com/ebookshare/catalog-service/pkg/logger"
	"github.com/ebookshare/catalog-service/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"CATALOG_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"CATALOG_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration
}

// Admin describes the user bootstrapped once at startup; empty email or
// password disables the bootstrap.
type Admin struct {
	Email    string `yaml:"email" envconfig:"ADMIN_EMAIL"`
	Name     string `yaml:"name" envconfig:"ADMIN_NAME" default:"admin"`
	Password string `yaml:"password" envconfig:"ADMIN_PASSWORD" json:"-"`
}

type Config struct {
	Server   HTTPServer     `yaml:"server"`
	Database postgres.DB    `yaml:"db"`
	Blob     blob.Config    `yaml:"blob"`
	Fetch    fetcher.Config `yaml:"fetch"`
	Kafka    kafka.Config   `yaml:"kafka"`
	Admin    Admin          `yaml:"admin"`
	JWTKey   string         `yaml:"jwtKey" envconfig:"JWT_KEY" required:"true" json:"-"`
	Log      logger.Log     `yaml:"log"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = &config
		printConfig(cfg)
	})

	return cfg
}

func printConfig(cfg *Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	RabbitConnection        string `yaml:"rabbit_connection" env:"RABBIT_CONNECTION"`
	RedisConnection         `yaml:"redis_connection"`
	IdentityProvider        `yaml:"identity_provider"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Batch                   `yaml:"batch"`
	SMTPConnection          `yaml:"smtp_connection"`
}

// HTTPServer структура для настройки административного API
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"localhost:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// IdentityProvider структура для настройки клиента провайдера идентификации
type IdentityProvider struct {
	IdentityAPIURL string `yaml:"identity_api_url"`
	IdentityKey    string `yaml:"identity_key"`
	IdentitySecret string `yaml:"identity_secret"`
}

// JWTToken структура для работы с jwt-токеном административного API
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"1h"`
}

// Batch структура для настройки пакетных заданий: размер страницы
// сканирования и пауза между страницами для ограничения нагрузки на хранилище
type Batch struct {
	BatchSize  int           `yaml:"batch_size" env-default:"500"`
	BatchDelay time.Duration `yaml:"batch_delay" env-default:"100ms"`
}

// SMTPConnection структура для настройки отправки писем бухгалтерии
type SMTPConnection struct {
	SMTPHost      string `yaml:"smtp_host"`
	SMTPPort      string `yaml:"smtp_port" env-default:"587"`
	SMTPUser      string `yaml:"smtp_user"`
	SMTPPass      string `yaml:"smtp_pass"`
	AccountingDst string `yaml:"accounting_dst"`
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

package main

import (
	"time"

	env "github.com/Netflix/go-env"
)

type Config struct {
	Host            string        `env:"CHAT_HOST"`
	Port            int           `env:"CHAT_PORT,default=8080"`
	SessionSecret   string        `env:"CHAT_SESSION_SECRET,required=true"`
	SessionTTL      time.Duration `env:"CHAT_SESSION_TTL,default=24h"`
	BadgerFilepath  string        `env:"CHAT_BADGER_FILEPATH,default=./data/users"`
	SendBufferSize  int           `env:"CHAT_SEND_BUFFER_SIZE,default=256"`
	StaticDir       string        `env:"CHAT_STATIC_DIR,default=./web/static"`
	ShutdownTimeout time.Duration `env:"CHAT_SHUTDOWN_TIMEOUT,default=30s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

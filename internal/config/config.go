package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	// Host is the externally visible base URL, used for OAuth redirects.
	Host          string        `koanf:"host"`
	Server        Server        `koanf:"server"`
	Database      Database      `koanf:"db"`
	Auth          Auth          `koanf:"auth"`
	RateLimit     RateLimit     `koanf:"ratelimit"`
	Notifications Notifications `koanf:"notifications"`
	Google        Google        `koanf:"google"`
}

type Server struct {
	Addr string `koanf:"addr"`
}

type Database struct {
	Path string `koanf:"path"`
}

type Auth struct {
	AccessTokenSecret     string `koanf:"accesstokensecret"`
	RefreshTokenSecret    string `koanf:"refreshtokensecret"`
	AccessTokenTTLMinutes int    `koanf:"accesstokenttlminutes"`
	RefreshTokenTTLDays   int    `koanf:"refreshtokenttldays"`
	Issuer                string `koanf:"issuer"`
	Audience              string `koanf:"audience"`
}

type RateLimit struct {
	PerMinute        int `koanf:"perminute"`
	LoginPerMinute   int `koanf:"loginperminute"`
	RefreshPerMinute int `koanf:"refreshperminute"`
}

type Notifications struct {
	// SessionBuffer is the per-session outbound channel capacity.
	SessionBuffer int `koanf:"sessionbuffer"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Application{
		Host: "http://localhost:8080",
		Server: Server{
			Addr: ":8080",
		},
		Database: Database{
			Path: "./data/event-manager.db",
		},
		Auth: Auth{
			AccessTokenTTLMinutes: 30,
			RefreshTokenTTLDays:   7,
			Issuer:                "event-manager-api",
			Audience:              "event-manager-client",
		},
		RateLimit: RateLimit{
			PerMinute:        200,
			LoginPerMinute:   5,
			RefreshPerMinute: 30,
		},
		Notifications: Notifications{
			SessionBuffer: 32,
		},
	}, "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "EVENTMANAGER_",
		TransformFunc: func(k, v string) (string, any) {
			// Transform the key.
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "EVENTMANAGER_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}

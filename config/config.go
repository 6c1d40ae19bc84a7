package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppConfig struct {
	App struct {
		Name string `mapstructure:"NAME"`
		Port string `mapstructure:"PORT"`
	}

	DATABASE struct {
		Mongo struct {
			Url  string `mapstructure:"URL"`
			Name string `mapstructure:"NAME"`
		}
		Redis struct {
			Addr     string `mapstructure:"ADDR"`
			Password string `mapstructure:"PASSWORD"`
		}
	}

	STORAGE struct {
		Bucket    string `mapstructure:"BUCKET"`
		CDNDomain string `mapstructure:"CDN_DOMAIN"`
	}

	NOTIFY struct {
		WebhookURL string `mapstructure:"WEBHOOK_URL"`
	}

	WORKER struct {
		Num int `mapstructure:"NUM"`
	}
}

var Conf *AppConfig

func LoadConfig() error {
	viper.SetConfigName("application")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("SEASURE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	var config AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	if config.WORKER.Num <= 0 {
		config.WORKER.Num = 5
	}

	Conf = &config
	log.Info().Msg("configuration loaded...")
	return nil
}

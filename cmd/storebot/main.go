package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"storebot/core/bootstrap"
	corecmd "storebot/core/cmd"
	coredatabase "storebot/core/database"
	"storebot/internal/bot"
	appconfig "storebot/internal/config"
)

func main() {
	// Optional: local development convenience, production passes real env.
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return appconfig.Load(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*appconfig.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}

			var dbCfg *coredatabase.Config
			if cfg.Storage.Backend == appconfig.BackendPostgres {
				dbCfg = &cfg.Database
			}
			res, err := bootstrap.Run(bootstrap.Options{
				Config:   cfg.CoreConfig(),
				Database: dbCfg,
			})
			if err != nil {
				return nil, err
			}
			return bot.New(cfg, res.DB)
		},
	})
	if err != nil {
		log.Printf("storebot: %v", err)
		os.Exit(1)
	}
}

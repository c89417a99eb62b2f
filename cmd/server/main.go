// Command server runs the user management front-end.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/simp-lee/usercrud/internal/app"
	"github.com/simp-lee/usercrud/internal/config"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", configPathFromEnv(), "path to configuration file (env APP_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config %s: %v", *configPath, err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	if err := a.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func configPathFromEnv() string {
	if p := os.Getenv("APP_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

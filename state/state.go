package state

import (
	"context"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/infinitybotlist/eureka/genconfig"
	"github.com/infinitybotlist/eureka/snippets"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/guardianbot/guardian/config"
)

var (
	Config    *config.Config
	Logger    *zap.Logger
	Rueidis   rueidis.Client // nil unless meta.redis_url is set
	Discord   *discordgo.Session
	Context   = context.Background()
	Validator = validator.New()
)

func Setup() {
	genconfig.GenConfig(config.Config{})

	cfg, err := os.ReadFile("config.yaml")

	if err != nil {
		panic(err)
	}

	err = yaml.Unmarshal(cfg, &Config)

	if err != nil {
		panic(err)
	}

	err = Validator.Struct(Config)

	if err != nil {
		panic("configError: " + err.Error())
	}

	Logger = snippets.CreateZap()

	if Config.Meta.RedisURL != "" {
		ruOptions, err := rueidis.ParseURL(Config.Meta.RedisURL)

		if err != nil {
			Logger.Fatal("Error parsing redis url", zap.Error(err))
		}

		Rueidis, err = rueidis.NewClient(ruOptions)

		if err != nil {
			Logger.Fatal("Error connecting to redis", zap.Error(err))
		}
	}
}

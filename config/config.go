package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("telegram_bot_token", "TG_BOT_TOKEN")
		viper.BindEnv("telegram_chat_id", "TG_CHAT_ID")
		viper.BindEnv("cmc_api_key", "CMC_API_KEY")
		viper.BindEnv("cmc_base_url", "CMC_BASE_URL")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("data_dir", "DATA_DIR")
		viper.BindEnv("check_interval", "CHECK_INTERVAL")

		viper.SetDefault("cmc_base_url", "https://pro-api.coinmarketcap.com/v1")
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("data_dir", "./data")
		viper.SetDefault("check_interval", "60s")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

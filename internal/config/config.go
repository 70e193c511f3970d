package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local"`
	WhatsApp struct {
		AccessToken   string   `yaml:"access_token" env:"WHATSAPP_TOKEN" env-default:""`
		PhoneNumberID string   `yaml:"phone_number_id" env:"PHONE_NUMBER_ID" env-default:""`
		VerifyToken   string   `yaml:"verify_token" env:"VERIFY_TOKEN" env-default:""`
		AppSecret     string   `yaml:"app_secret" env:"META_APP_SECRET" env-default:""`
		BotNumbers    []string `yaml:"bot_numbers" env:"WHATSAPP_BOT_NUMBERS" env-default:""`
		APIVersion    string   `yaml:"api_version" env-default:"v21.0"`
	} `yaml:"whatsapp"`
	Paynow struct {
		ZwgIntegrationID  string  `yaml:"zwg_integration_id" env:"PAYNOW_ZWG_ID" env-default:""`
		ZwgIntegrationKey string  `yaml:"zwg_integration_key" env:"PAYNOW_ZWG_KEY" env-default:""`
		UsdIntegrationID  string  `yaml:"usd_integration_id" env:"PAYNOW_USD_ID" env-default:""`
		UsdIntegrationKey string  `yaml:"usd_integration_key" env:"PAYNOW_USD_KEY" env-default:""`
		ReturnURL         string  `yaml:"return_url" env:"PAYNOW_RETURN_URL" env-default:""`
		ResultURL         string  `yaml:"result_url" env:"PAYNOW_RESULT_URL" env-default:""`
		AuthEmail         string  `yaml:"auth_email" env:"PAYNOW_AUTH_EMAIL" env-default:""`
		MaxAmount         float64 `yaml:"max_amount" env-default:"480"`
	} `yaml:"paynow"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:""`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"pledgepay"`
	} `yaml:"mongo"`
	Admin struct {
		AdminPhone     string `yaml:"admin_phone" env:"ADMIN_PHONE" env-default:""`
		FinancePhone   string `yaml:"finance_phone" env:"FINANCE_PHONE" env-default:""`
		DashboardToken string `yaml:"dashboard_token" env:"DASHBOARD_TOKEN" env-default:""`
	} `yaml:"admin"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		AdminId int64  `yaml:"admin_id" env:"TELEGRAM_ADMIN_ID" env-default:"0"`
	} `yaml:"telegram"`
	Session struct {
		TimeoutMinutes     int `yaml:"timeout_minutes" env-default:"15"`
		WarnMinutes        int `yaml:"warn_minutes" env-default:"14"`
		DedupWindowMinutes int `yaml:"dedup_window_minutes" env-default:"15"`
	} `yaml:"session"`
	Flow struct {
		PrivateKeyPath string `yaml:"private_key_path" env:"PRIVATE_KEY_PATH" env-default:"private.pem"`
		Passphrase     string `yaml:"passphrase" env:"PRIVATE_KEY_PASSPHRASE" env-default:""`
	} `yaml:"flow"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port   string `yaml:"port" env:"PORT" env-default:"8010"`
	} `yaml:"listen"`
}

// IsAdmin reports whether the phone belongs to a configured administrator.
func (c *Config) IsAdmin(phone string) bool {
	if phone == "" {
		return false
	}
	return phone == c.Admin.AdminPhone || phone == c.Admin.FinancePhone
}

// IsBotNumber reports whether the phone is one of the bot's own identities.
func (c *Config) IsBotNumber(phone string) bool {
	if phone != "" && phone == c.WhatsApp.PhoneNumberID {
		return true
	}
	for _, n := range c.WhatsApp.BotNumbers {
		if n != "" && n == phone {
			return true
		}
	}
	return false
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("%s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}

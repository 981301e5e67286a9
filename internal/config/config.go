package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`
	AdminUserID  string `env:"ADMIN_USER_ID"`

	DataDir       string `env:"DATA_DIR" envDefault:"./data"`
	DashboardAddr string `env:"DASHBOARD_ADDR" envDefault:":8080"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	// Room inactivity handling. The warning fires once, WarningWindow
	// before Timeout elapses.
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"300s"`
	WarningWindow   time.Duration `env:"WARNING_WINDOW" envDefault:"60s"`
	WatchdogTick    time.Duration `env:"WATCHDOG_TICK" envDefault:"30s"`
	SyncCooldown    time.Duration `env:"SYNC_COOLDOWN" envDefault:"30s"`
	RequestCooldown time.Duration `env:"REQUEST_COOLDOWN" envDefault:"2s"`

	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"15s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogOutput string `env:"LOG_OUTPUT" envDefault:"stdout"`
	LogFile   string `env:"LOG_FILE" envDefault:"bot.log"`

	NowPlayingColor int    `env:"NOW_PLAYING_COLOR" envDefault:"39423"` // 0x0099ff
	EmbedThumbnail  string `env:"EMBED_THUMBNAIL" envDefault:"https://cdn-icons-png.flaticon.com/512/727/727245.png"`
	EmbedFooterText string `env:"EMBED_FOOTER_TEXT" envDefault:"Sakudoko Music Bot | Enjoy your music!"`
	EmbedFooterIcon string `env:"EMBED_FOOTER_ICON" envDefault:"https://cdn-icons-png.flaticon.com/512/727/727245.png"`
}

// Load parses the environment into a Config and prepares the data
// directory.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return cfg, nil
}

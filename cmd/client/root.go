package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sharetube/tandem/internal/app"
	"github.com/sharetube/tandem/internal/platform/spotify"
)

const envPrefix = "TANDEM"

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Listen to music together with one other person",
	Long: `tandem keeps two Spotify players in step through a relay server.

One person creates a room and shares its id, the other joins it. From then on
play, pause, seek and track changes on either side are mirrored on the other.`,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server-url", "ws://localhost:8080/api/v1/ws", "Relay websocket url")
	flags.String("display-name", "", "Name shown to your partner")
	flags.String("avatar-url", "", "Avatar shown to your partner")
	flags.String("spotify-token", "", "Spotify access token, an offline player is used when empty")
	flags.String("spotify-api-url", spotify.DefaultBaseURL, "Spotify Web API base url")
	flags.Duration("poll-interval", time.Second, "How often the local player state is read")
	flags.Duration("settle-interval", 50*time.Millisecond, "Pause between a corrective seek and play")
	flags.Duration("request-timeout", 5*time.Second, "How long to wait for the relay to answer create and join")
	flags.Int("reconnect-attempts", 5, "Reconnect attempts before giving up")
	flags.Duration("reconnect-max-delay", 10*time.Second, "Longest wait between reconnect attempts")
	flags.String("log-level", "WARN", "Logging level")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlags(flags)

	rootCmd.AddCommand(createCmd, joinCmd)
}

func loadClientConfig() (*app.ClientConfig, error) {
	config := &app.ClientConfig{
		ServerURL:         viper.GetString("server-url"),
		DisplayName:       viper.GetString("display-name"),
		AvatarURL:         viper.GetString("avatar-url"),
		SpotifyToken:      viper.GetString("spotify-token"),
		SpotifyAPIURL:     viper.GetString("spotify-api-url"),
		PollInterval:      viper.GetDuration("poll-interval"),
		SettleInterval:    viper.GetDuration("settle-interval"),
		RequestTimeout:    viper.GetDuration("request-timeout"),
		ReconnectAttempts: viper.GetInt("reconnect-attempts"),
		ReconnectMaxDelay: viper.GetDuration("reconnect-max-delay"),
		LogLevel:          viper.GetString("log-level"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func runClient(cmd *cobra.Command, params *app.EnterParams) error {
	config, err := loadClientConfig()
	if err != nil {
		return err
	}

	return app.RunClient(cmd.Context(), config, params, cmd.InOrStdin(), cmd.OutOrStdout())
}

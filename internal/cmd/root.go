// Package cmd implements the roundtable command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roundtable-games/roundtable/internal/cmd/config"
	appconfig "github.com/roundtable-games/roundtable/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Discussion-phase orchestrator for multi-agent games",
	Long: `Roundtable runs the discussion phase of multi-participant games:
timed statement turns, free discussion, capped private chats and a
final answer round, with reasoning providers speaking for each seat.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/roundtable/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	config.Register(rootCmd)
}

func initConfig() {
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath("$HOME/.config/roundtable")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ROUNDTABLE")
	// ROUNDTABLE_DISCUSSION_MAX_PRIVATE_CHATS for discussion.max_private_chats
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Missing config file is fine
	_ = viper.ReadInConfig()
}

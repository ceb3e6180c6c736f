package main

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func init() {
	cobra.OnInitialize(loadConfig)
	setDefaults(config.Default())

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: first bitonic.toml in . or etc)")
	RootCmd.PersistentFlags().String("log_level", "info", "log level: debug, info, warn, error")
	viper.BindPFlag("log_level", RootCmd.PersistentFlags().Lookup("log_level"))

	initRunCmd()
	initPlanCmd()
	initConfigCmd()
}

var cfgFile string

var info = "bitonic sorts power-of-two arrays on a WebGPU device"
var RootCmd = &cobra.Command{
	Use:          "bitonic",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use bitonic --help or -h")
	},
}

// setDefaults registers every config key so values missing from both file and flags
// resolve to the built-in defaults.
func setDefaults(c config.Config) {
	viper.SetDefault("log_level", c.LogLevel)
	viper.SetDefault("backend.type", c.Backend.Type)
	viper.SetDefault("backend.force_fallback_adapter", c.Backend.ForceFallbackAdapter)
	viper.SetDefault("backend.power_preference", c.Backend.PowerPreference)
	viper.SetDefault("backend.poll_interval", c.Backend.PollInterval)
	viper.SetDefault("backend.host_workers", c.Backend.HostWorkers)
	viper.SetDefault("sort.group_capacity_log", c.Sort.GroupCapacityLog)
	viper.SetDefault("sort.max_attempts", c.Sort.MaxAttempts)
	viper.SetDefault("sort.verify", c.Sort.Verify)
	viper.SetDefault("run.log_len", c.Run.LogLen)
	viper.SetDefault("run.element", c.Run.Element)
	viper.SetDefault("run.seed", c.Run.Seed)
	viper.SetDefault("run.profile", c.Run.Profile)
}

// effectiveConfig merges defaults, the config file and command line flags.
func effectiveConfig() (config.Config, error) {
	var c config.Config
	c.LogLevel = viper.GetString("log_level")
	c.Backend.Type = viper.GetString("backend.type")
	c.Backend.ForceFallbackAdapter = viper.GetBool("backend.force_fallback_adapter")
	c.Backend.PowerPreference = viper.GetString("backend.power_preference")
	c.Backend.PollInterval = viper.GetString("backend.poll_interval")
	c.Backend.HostWorkers = viper.GetInt("backend.host_workers")
	c.Sort.GroupCapacityLog = viper.GetUint32("sort.group_capacity_log")
	c.Sort.MaxAttempts = viper.GetInt("sort.max_attempts")
	c.Sort.Verify = viper.GetBool("sort.verify")
	c.Run.LogLen = viper.GetUint32("run.log_len")
	c.Run.Element = viper.GetString("run.element")
	c.Run.Seed = viper.GetUint64("run.seed")
	c.Run.Profile = viper.GetBool("run.profile")
	c.ApplyDefaults()
	return c, c.Validate()
}

func loadConfig() {
	path := cfgFile
	if path == "" {
		found, ok := config.Find()
		if !ok {
			return
		}
		path = found
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("toml")
	if err := viper.ReadInConfig(); err != nil {
		logger, _ := common.NewLogger("error")
		common.LoggerOrNop(logger).Error("viper load config file failed",
			zap.String("fpath", path),
			zap.Error(err))
		os.Exit(1)
	}
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

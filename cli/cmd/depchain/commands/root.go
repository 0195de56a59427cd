package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/cli"
	"github.com/buildbeaver/depchain/common/version"
)

const (
	DefaultConfigDir = "$HOME"
	ConfigFileName   = ".depchain"
	EnvPrefix        = "DEPCHAIN"
)

// Config keys. Each can be set by flag, by DEPCHAIN_<KEY> (with '-' replaced by '_') or in the config file.
const (
	WorkDirKey      = "workdir"
	VerboseKey      = "verbose"
	JSONKey         = "json"
	PipelineKey     = "pipeline"
	ParallelJobsKey = "parallel-jobs"
	EndpointKey     = "endpoint"
	LogLevelsKey    = "log-levels"
)

type GlobalConfig struct {
	ConfigFilePath string
	WorkDir        string
	Verbose        bool
	JSON           bool
	PipelinePaths  []string
	ParallelJobs   int
	Endpoint       string
	LogLevels      string
}

var Global = &GlobalConfig{}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVarP(
		&Global.ConfigFilePath,
		"config",
		"c",
		"",
		fmt.Sprintf("The config file to use. Defaults to %s.yaml in the current directory or %s.", ConfigFileName, DefaultConfigDir))
	RootCmd.PersistentFlags().StringP(
		WorkDirKey,
		"w",
		".",
		"The directory containing the pipeline. Local run state is kept in its .depchain directory.")
	RootCmd.PersistentFlags().BoolP(
		VerboseKey,
		"v",
		false,
		"Show command output instead of progress spinners.")
	RootCmd.PersistentFlags().BoolP(
		JSONKey,
		"j",
		false,
		"Enable structured JSON output.")
	RootCmd.PersistentFlags().StringSlice(
		PipelineKey,
		nil,
		"A pipeline file, or directory of pipeline files, relative to the work dir. May be repeated.")
	RootCmd.PersistentFlags().Int(
		ParallelJobsKey,
		0,
		"The number of jobs that may run at the same time. Defaults to half the number of CPUs.")
	RootCmd.PersistentFlags().String(
		EndpointKey,
		"http://localhost:3000",
		"The URL of the depchain server, for remote commands.")
	RootCmd.PersistentFlags().String(
		LogLevelsKey,
		"",
		"A comma separated list of name=level pairs configuring the log file.")

	for _, key := range []string{WorkDirKey, VerboseKey, JSONKey, PipelineKey, ParallelJobsKey, EndpointKey, LogLevelsKey} {
		err := viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(key))
		if err != nil {
			panic(err)
		}
	}
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cli.Exit(RootCmd.Execute())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if Global.ConfigFilePath != "" {
		viper.SetConfigFile(Global.ConfigFilePath)
	} else {
		viper.SetConfigName(ConfigFileName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(DefaultConfigDir)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	err := viper.ReadInConfig()
	if err == nil {
		Global.ConfigFilePath = viper.ConfigFileUsed()
	} else {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
		default:
			cli.Exit(fmt.Errorf("error loading config file (%s): %s", viper.ConfigFileUsed(), err))
		}
	}

	Global.WorkDir = viper.GetString(WorkDirKey)
	Global.Verbose = viper.GetBool(VerboseKey)
	Global.JSON = viper.GetBool(JSONKey)
	Global.PipelinePaths = viper.GetStringSlice(PipelineKey)
	Global.ParallelJobs = viper.GetInt(ParallelJobsKey)
	Global.Endpoint = viper.GetString(EndpointKey)
	Global.LogLevels = viper.GetString(LogLevelsKey)
}

var RootCmd = &cobra.Command{
	Use:     "depchain",
	Short:   "depchain runs build jobs and the jobs they depend on",
	Long:    `depchain resolves the dependencies of a build job, reuses previous successful runs where allowed, runs everything else in dependency order and passes artifacts between jobs.`,
	Version: version.VersionToString(),
}

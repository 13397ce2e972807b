package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/client"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pdf2xml",
	Short: "Convert PDFs to structured XML through a PDF2XML server",
	Long: `pdf2xml uploads PDFs to a PDF2XML server and browses the results.

Settings come from flags, PDF2XML_* environment variables, or a config
file (./pdf2xml.yaml or ~/.pdf2xml/pdf2xml.yaml):

  server: http://localhost:8080
  token:  <JWT>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return setOutputFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "server URL")
	rootCmd.PersistentFlags().String("token", "", "JWT bearer token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "yaml", "output format: yaml or json")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func initConfig() error {
	viper.SetEnvPrefix("PDF2XML")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pdf2xml")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.pdf2xml")
	}

	// The config file is optional.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func newClient() (*client.Client, error) {
	token := viper.GetString("token")
	if token == "" {
		return nil, errors.New("no token configured; set --token or PDF2XML_TOKEN")
	}
	return client.New(viper.GetString("server"), token), nil
}

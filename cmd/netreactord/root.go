// File: cmd/netreactord/root.go
// Command-line front end built with github.com/spf13/cobra and
// github.com/spf13/viper, in the shape of ValentinKolb-dKV's cmd/serve/
// root.go: PersistentFlags bound to viper so every setting can also come
// from an env var (NETREACTORD_<FLAG>).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "netreactord",
	Short: "Reactor-based TCP/Unix socket runtime",
	Long:  "netreactord runs or drives a reactor-based, length-delimited-framing network runtime over TCP or Unix domain sockets.",
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warning, error, fatal")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dialCmd)
}

func initConfig() {
	viper.SetEnvPrefix("netreactord")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

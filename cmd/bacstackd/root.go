// Copyright 2025 Scadalynx
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command bacstackd runs a BACnet/IP device as a standalone daemon, and
// provides a couple of thin diagnostic subcommands around the same
// configuration (serve, whois, version).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	localAddress  string
	networkNumber uint16
	deviceID      uint32
	deviceName    string
	vendorID      uint32
	maxAPDU       uint16
	bbmdAddress   string
	bbmdPort      int
	bbmdTTL       time.Duration
	verbose       bool
	auditLog      bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bacstackd",
	Short: "A BACnet/IP device daemon and diagnostic CLI",
	Long: `bacstackd runs a BACnet/IP device application: object database,
service dispatch, COV subscriptions, and the event-reporting engine,
reachable over UDP from other BACnet devices and clients.

Examples:
  # Run a device on the standard port, registering with a BBMD
  bacstackd serve --device 1001 --bbmd 192.168.1.1

  # Discover devices on the local network
  bacstackd whois

  # Print version information
  bacstackd version`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		localAddress = viper.GetString("local")
		networkNumber = uint16(viper.GetUint32("network"))
		deviceID = viper.GetUint32("device")
		deviceName = viper.GetString("device-name")
		vendorID = viper.GetUint32("vendor-id")
		maxAPDU = uint16(viper.GetUint32("max-apdu"))
		bbmdAddress = viper.GetString("bbmd")
		bbmdPort = viper.GetInt("bbmd-port")
		bbmdTTL = viper.GetDuration("bbmd-ttl")
		auditLog = viper.GetBool("audit-log")

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bacstackd.yaml)")
	rootCmd.PersistentFlags().StringVar(&localAddress, "local", "0.0.0.0:47808", "local address to bind to")
	rootCmd.PersistentFlags().Uint16Var(&networkNumber, "network", 0, "local BACnet network number (0 = not numbered)")
	rootCmd.PersistentFlags().Uint32Var(&deviceID, "device", 1, "local device object instance")
	rootCmd.PersistentFlags().StringVar(&deviceName, "device-name", "bacstackd", "local device object name")
	rootCmd.PersistentFlags().Uint32Var(&vendorID, "vendor-id", 0, "vendor identifier announced in I-Am/Device object")
	rootCmd.PersistentFlags().Uint16Var(&maxAPDU, "max-apdu", 1476, "max APDU length accepted")
	rootCmd.PersistentFlags().StringVar(&bbmdAddress, "bbmd", "", "BBMD address for foreign device registration")
	rootCmd.PersistentFlags().IntVar(&bbmdPort, "bbmd-port", 0xBAC0, "BBMD port")
	rootCmd.PersistentFlags().DurationVar(&bbmdTTL, "bbmd-ttl", 300*time.Second, "foreign device registration lifetime")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&auditLog, "audit-log", false, "emit a structured audit record for every confirmed request served")

	viper.BindPFlag("local", rootCmd.PersistentFlags().Lookup("local"))
	viper.BindPFlag("network", rootCmd.PersistentFlags().Lookup("network"))
	viper.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("device-name", rootCmd.PersistentFlags().Lookup("device-name"))
	viper.BindPFlag("vendor-id", rootCmd.PersistentFlags().Lookup("vendor-id"))
	viper.BindPFlag("max-apdu", rootCmd.PersistentFlags().Lookup("max-apdu"))
	viper.BindPFlag("bbmd", rootCmd.PersistentFlags().Lookup("bbmd"))
	viper.BindPFlag("bbmd-port", rootCmd.PersistentFlags().Lookup("bbmd-port"))
	viper.BindPFlag("bbmd-ttl", rootCmd.PersistentFlags().Lookup("bbmd-ttl"))
	viper.BindPFlag("audit-log", rootCmd.PersistentFlags().Lookup("audit-log"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(whoisCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".bacstackd")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACSTACK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bacstackd version 0.1.0")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

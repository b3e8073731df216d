// File: cmd/netreactord/dial.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/client"
	"github.com/momentics/netreactor/internal/logsink"
)

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a netreactord server and echo stdin lines",
	RunE:  runDial,
}

func init() {
	dialCmd.Flags().String("host", "127.0.0.1", "peer address (IPv4/IPv6)")
	dialCmd.Flags().Uint16("port", 9000, "peer port")
	dialCmd.Flags().String("unix-socket", "", "Unix domain socket path (overrides host/port)")
	dialCmd.Flags().Bool("crc32", false, "enable CRC32 protection on outbound messages")
	_ = viper.BindPFlags(dialCmd.Flags())
}

func runDial(cmd *cobra.Command, args []string) error {
	// serve binds flags under the same keys; rebind so dial's own flags win.
	_ = viper.BindPFlags(cmd.Flags())
	logger := logsink.NewConsole(logLevelFromFlag())

	c, err := client.New(
		client.WithCRC32(viper.GetBool("crc32")),
		client.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("client.New: %w", err)
	}

	connected := make(chan struct{}, 1)
	c.SetOnConnected(func(info api.ConnectionInfo) {
		logger.Log(api.LevelInfo, "netreactord", "connected", api.Fields{"peer": info.PeerAddress, "port": info.PeerPort})
		connected <- struct{}{}
	})
	c.SetOnMessage(func(data []byte) {
		fmt.Printf("< %s\n", string(data))
	})
	c.SetOnDisconnected(func() {
		logger.Log(api.LevelInfo, "netreactord", "disconnected", nil)
	})
	c.SetOnError(func(netErr api.NetworkError, detail string) {
		logger.Log(api.LevelWarning, "netreactord", "connection error", api.Fields{"error": netErr.String(), "detail": detail})
	})

	if path := viper.GetString("unix-socket"); path != "" {
		if err := c.ConnectUnixDomain(path); err != nil {
			return fmt.Errorf("ConnectUnixDomain: %w", err)
		}
	} else {
		host := viper.GetString("host")
		port := uint16(viper.GetUint("port"))
		if err := c.ConnectIPv4(host, port); err != nil {
			return fmt.Errorf("ConnectIPv4: %w", err)
		}
	}

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for connection")
	}

	var messageID uint64
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		messageID++
		if !c.SendData(messageID, scanner.Bytes(), 2*time.Second) {
			return fmt.Errorf("send failed for message %d", messageID)
		}
	}
	return c.GracefulShutdown(5 * time.Second)
}

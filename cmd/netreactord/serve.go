// File: cmd/netreactord/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/internal/logsink"
	"github.com/momentics/netreactor/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an echo server over TCP or a Unix domain socket",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "listen address (IPv4/IPv6)")
	serveCmd.Flags().Uint16("port", 9000, "listen port")
	serveCmd.Flags().String("unix-socket", "", "Unix domain socket path (overrides host/port)")
	serveCmd.Flags().Int("reactors", api.DefaultWorkerCount, "number of Reactor shards")
	serveCmd.Flags().Int("worker-shards", api.DefaultWorkerCount, "number of worker pool shards")
	serveCmd.Flags().Bool("crc32", false, "enable CRC32 protection on outbound messages")
	_ = viper.BindPFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logsink.NewConsole(logLevelFromFlag())

	srv, err := server.New(server.Handler{
		OnConnected: func(info api.ConnectionInfo) {
			logger.Log(api.LevelInfo, "netreactord", "connected", api.Fields{"peer": info.PeerAddress, "port": info.PeerPort})
		},
		OnMessage: func(id api.ConnectionID, data []byte) {
			_ = srvSendEcho(id, data)
		},
		OnDisconnected: func(id api.ConnectionID) {
			logger.Log(api.LevelInfo, "netreactord", "disconnected", api.Fields{"connection_id": uint64(id)})
		},
		OnError: func(id api.ConnectionID, netErr api.NetworkError, detail string) {
			logger.Log(api.LevelWarning, "netreactord", "connection error", api.Fields{
				"connection_id": uint64(id), "error": netErr.String(), "detail": detail,
			})
		},
	},
		server.WithReactorCount(viper.GetInt("reactors")),
		server.WithWorkerShards(viper.GetInt("worker-shards")),
		server.WithCRC32(viper.GetBool("crc32")),
		server.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	activeServer = srv

	if err := srv.Start(); err != nil {
		return fmt.Errorf("server.Start: %w", err)
	}

	if path := viper.GetString("unix-socket"); path != "" {
		if err := srv.StartUnixDomain(path); err != nil {
			return fmt.Errorf("StartUnixDomain: %w", err)
		}
		logger.Log(api.LevelInfo, "netreactord", "listening", api.Fields{"unix_socket": path})
	} else {
		host := viper.GetString("host")
		port := uint16(viper.GetUint("port"))
		if err := srv.StartIPv4(host, port); err != nil {
			return fmt.Errorf("StartIPv4: %w", err)
		}
		logger.Log(api.LevelInfo, "netreactord", "listening", api.Fields{"host": host, "port": port})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Log(api.LevelInfo, "netreactord", "shutting down", nil)
	return srv.Stop()
}

// activeServer and echoMessageID let srvSendEcho encode a reply without
// threading server/message-id state through the Handler closures above.
var (
	activeServer  *server.Server
	echoMessageID uint64
)

func srvSendEcho(id api.ConnectionID, data []byte) error {
	echoMessageID++
	return activeServer.SendMessage(id, echoMessageID, data)
}

func logLevelFromFlag() api.Level {
	switch viper.GetString("log-level") {
	case "trace":
		return api.LevelTrace
	case "debug":
		return api.LevelDebug
	case "warning":
		return api.LevelWarning
	case "error":
		return api.LevelError
	case "fatal":
		return api.LevelFatal
	default:
		return api.LevelInfo
	}
}

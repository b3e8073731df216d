package server_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/client"
	"github.com/momentics/netreactor/server"
)

type printLogger struct{}

func (printLogger) Log(level api.Level, component, message string, fields api.Fields) {
	fmt.Printf("[%v] %s: %s %+v\n", level, component, message, fields)
}

func TestDebugEcho(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "netreactor-echo-dbg.sock")

	var srv *server.Server
	handler := server.Handler{
		OnMessage: func(id api.ConnectionID, data []byte) {
			fmt.Println("server got message:", string(data))
			err := srv.SendMessage(id, 1, data)
			fmt.Println("SendMessage err:", err)
		},
	}
	srv, err := server.New(handler, server.WithReactorCount(1), server.WithWorkerShards(1), server.WithLogger(printLogger{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	if err := srv.StartUnixDomain(sockPath); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	c, err := client.New()
	if err != nil {
		t.Fatal(err)
	}
	connected := make(chan struct{}, 1)
	c.SetOnConnected(func(api.ConnectionInfo) { connected <- struct{}{} })
	gotMessage := make(chan struct{}, 1)
	c.SetOnMessage(func(data []byte) {
		fmt.Println("client got message:", string(data))
		gotMessage <- struct{}{}
	})

	if err := c.ConnectUnixDomain(sockPath); err != nil {
		t.Fatal(err)
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed OnConnected")
	}

	ok := c.SendData(1, []byte("ping"), time.Second)
	fmt.Println("SendData ok:", ok)

	select {
	case <-gotMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the echoed message")
	}
}

// Uplink: reads newline-terminated JSON telemetry from a controller on a
// serial port and forwards each message to the bridge over a websocket.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"BobbyCloud/internal/device"
	"BobbyCloud/internal/uplink"
	"BobbyCloud/internal/util"
)

func main() {
	dev := flag.String("dev", "/dev/ttyUSB0", "serial device the controller is attached to")
	baud := flag.Int("baud", 115200, "baud rate")
	bridge := flag.String("bridge", "ws://localhost:1234", "bridge websocket url")
	id := flag.String("id", "", "client id used as the host tag")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	if err := util.SetupLogger(*level); err != nil {
		log.Fatalf("logger: %v", err)
	}
	fwd, err := uplink.NewForwarder(*bridge, *id)
	if err != nil {
		log.Fatalf("%v", err)
	}
	port, err := device.NewSerialDevice(*dev, *baud)
	if err != nil {
		log.Fatalf("open serial: %v", err)
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			util.Warn("close serial: %v", cerr)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		if err := device.ReadMessages(ctx, port, msgs); err != nil && !errors.Is(err, context.Canceled) {
			util.Error("[uplink] serial: %v", err)
		}
	}()

	util.Info("[uplink] forwarding %s to %s", *dev, fwd.URL)
	if err := fwd.Run(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
		util.Error("[uplink] %v", err)
	}
}

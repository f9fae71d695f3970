// Telemetry simulator: sends random vehicle records to the bridge.
// Use this for local testing when you don't have real vehicle hardware.
package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"BobbyCloud/internal/model"
	"BobbyCloud/internal/parser"
	"BobbyCloud/internal/uplink"
	"BobbyCloud/internal/util"
)

func main() {
	bridge := flag.String("bridge", "ws://localhost:1234", "bridge websocket url")
	id := flag.String("id", "SIM_01", "simulated vehicle id")
	interval := flag.Int("interval", 1000, "ms between records")
	batch := flag.Int("batch", 0, "records per message; 0 sends flat records")
	flag.Parse()

	fwd, err := uplink.NewForwarder(*bridge, *id)
	if err != nil {
		log.Fatalf("%v", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	msgs := make(chan []byte, 16)
	go produce(ctx, msgs, time.Duration(*interval)*time.Millisecond, *batch)

	util.Info("simulator sending to %s every %dms", fwd.URL, *interval)
	if err := fwd.Run(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
		util.Error("%v", err)
	}
}

func produce(ctx context.Context, out chan<- []byte, every time.Duration, batch int) {
	defer close(out)
	start := time.Now()
	tick := time.NewTicker(every)
	defer tick.Stop()

	var pending []model.TelemetryRecord
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			rec := randomRecord(now, now.Sub(start))
			var (
				msg []byte
				err error
			)
			if batch <= 0 {
				msg, err = parser.MarshalRecord(rec)
			} else {
				pending = append(pending, rec)
				if len(pending) < batch {
					continue
				}
				msg, err = parser.MarshalBatch(pending)
				pending = pending[:0]
			}
			if err != nil {
				util.Error("marshal: %v", err)
				continue
			}
			select {
			case out <- msg:
				util.Debug("queued: %s", msg)
			case <-ctx.Done():
				return
			}
		}
	}
}

func randomRecord(now time.Time, uptime time.Duration) model.TelemetryRecord {
	rssi := int64(-40 - rand.Intn(50))
	gas := int64(rand.Intn(4096))
	brake := int64(rand.Intn(4096))
	gasP := float64(gas) / 4095
	brakeP := float64(brake) / 4095
	return model.TelemetryRecord{
		UptimeMs:       uptime.Milliseconds(),
		UtcMs:          now.UnixMilli(),
		FreeMemory8:    int64(20 + rand.Intn(10)),
		RSSI:           &rssi,
		GasRaw:         &gas,
		BrakeRaw:       &brake,
		GasProcessed:   &gasP,
		BrakeProcessed: &brakeP,
		Front:          randomController(),
		Back:           randomController(),
	}
}

func randomController() *model.ControllerReading {
	motor := func() model.MotorReading {
		return model.MotorReading{
			TargetInput: int64(rand.Intn(1000)),
			Speed:       rand.Float64() * 30,
			Current:     rand.Float64() * 5,
		}
	}
	return &model.ControllerReading{
		Voltage:     36 + rand.Float64()*6,
		Temperature: 20 + rand.Float64()*20,
		Left:        motor(),
		Right:       motor(),
	}
}

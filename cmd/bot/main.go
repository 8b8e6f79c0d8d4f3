// Command bot runs headless soak clients against a server. Each bot joins a
// zone, wanders, shoots, and rolls so prediction, reconciliation, and the
// transport can be exercised without a rendering client.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"lanternfall/internal/client"
	"lanternfall/internal/net"
	"lanternfall/internal/net/ws"
)

func main() {
	var (
		host   = flag.String("host", "127.0.0.1", "server host")
		port   = flag.Int("port", 4000, "server port")
		secret = flag.String("secret", "dev-secret", "admission secret")
		count  = flag.Int("bots", 4, "number of concurrent bots")
		zoneID = flag.Int("zone", 1, "zone to join")
	)
	flag.Parse()

	stop := make(chan struct{})
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		<-signals
		close(stop)
	}()

	var wg sync.WaitGroup
	for i := 0; i < *count; i++ {
		wg.Add(1)
		go func(seat int) {
			defer wg.Done()
			if err := runBot(seat, *host, *port, *secret, int32(*zoneID), stop); err != nil {
				log.Printf("bot %d: %v", seat, err)
			}
		}(i)
	}
	wg.Wait()
}

func runBot(seat int, host string, port int, secret string, zoneID int32, stop <-chan struct{}) error {
	transport, err := ws.New(net.KindWebSocket, ws.Config{Secret: secret})
	if err != nil {
		return err
	}
	if err := transport.Connect(host, port); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer transport.Disconnect()

	session := client.NewSession(transport, client.Config{ZoneID: zoneID})
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(seat)))

	const frameDelta = 1.0 / 60
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	var input client.Input
	frames := 0
	errorSum, errorPeak := 0.0, 0.0
	for {
		select {
		case <-stop:
			return nil
		case now := <-ticker.C:
			frames++
			// Change heading roughly twice a second, with occasional pauses.
			if frames%30 == 0 {
				if rng.Float64() < 0.2 {
					input.MoveX, input.MoveY = 0, 0
				} else {
					input.MoveX = rng.Float64()*2 - 1
					input.MoveY = rng.Float64()*2 - 1
				}
			}

			input.Shoot = false
			input.Roll = false
			if session.Joined() {
				if rng.Float64() < 0.01 {
					x, y := session.Position()
					input.Shoot = true
					input.TargetX = float32(x + rng.Float64()*200 - 100)
					input.TargetY = float32(y + rng.Float64()*200 - 100)
				}
				if rng.Float64() < 0.003 {
					input.Roll = true
				}
			}

			session.Update(frameDelta, input, now)

			if session.JoinFailed() {
				return fmt.Errorf("zone %d rejected the join", zoneID)
			}
			if predErr := session.PredictionError(); predErr > 0 {
				errorSum += predErr
				if predErr > errorPeak {
					errorPeak = predErr
				}
			}
			if frames%600 == 0 && session.Joined() {
				x, y := session.Position()
				log.Printf("bot %d: player=%d pos=(%.1f, %.1f) health=%d rtt=%dms remotes=%d predErr avg=%.2f peak=%.2f",
					seat, session.PlayerID(), x, y, session.Health(), session.RTT(), session.Remotes().Len(),
					errorSum/float64(frames), errorPeak)
			}
		}
	}
}

// Command preview enters one auditorium scene offline, prints who sits where
// and writes the pre-show screen as a PNG. It is the quickest way to check a
// layout file or a presentation time without starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"auditorium/internal/config"
	"auditorium/internal/countdown"
	"auditorium/internal/presentation"
	"auditorium/internal/scene"
	"auditorium/internal/seating"
)

func main() {
	_ = godotenv.Load(".env")

	avatarPtr := flag.String("avatar", "woman.glb", "Local avatar id")
	namePtr := flag.String("name", "Preview", "Local pseudonym")
	seedPtr := flag.Int64("seed", 0, "Seating seed (0 picks a random one)")
	chatPtr := flag.String("chat", "", "Optional message shown above the local seat")
	outputPtr := flag.String("output", "screen.png", "Placeholder PNG path (empty skips rendering)")
	widthPtr := flag.Int("width", presentation.DefaultScreenWidth, "Placeholder width")
	heightPtr := flag.Int("height", presentation.DefaultScreenHeight, "Placeholder height")
	flag.Parse()

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	seed := *seedPtr
	if seed == 0 {
		if seed, err = seating.NewSeed(); err != nil {
			log.Fatalf("❌ seed: %v", err)
		}
	}

	sc := scene.New(scene.Config{
		SessionID:  "preview",
		Slots:      appConfig.Layout.Seats,
		Catalog:    appConfig.Layout.Guests,
		Selectable: appConfig.Layout.Selectable,
		ChatTTL:    appConfig.Scene.ChatTTL,
		Countdown: countdown.TimeOfDay{
			Hour:   appConfig.Scene.PresentationHour,
			Minute: appConfig.Scene.PresentationMinute,
			Second: appConfig.Scene.PresentationSecond,
		},
		DaysAhead:     appConfig.Scene.DaysAhead,
		FPS:           appConfig.Scene.FPS,
		VideoURL:      appConfig.Scene.VideoURL,
		AuditoriumURL: appConfig.Scene.AuditoriumURL,
	}, scene.Deps{Rand: seating.NewRand(seed)})
	defer sc.Teardown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sc.Enter(ctx, scene.Params{AvatarID: *avatarPtr, Pseudonym: *namePtr}); err != nil {
		log.Fatalf("❌ enter: %v", err)
	}

	if *chatPtr != "" {
		if _, err := sc.SendChat(*chatPtr); err != nil {
			log.Fatalf("❌ chat: %v", err)
		}
	}
	// One frame so every seat has started fading in
	sc.Frame(1.0 / float64(appConfig.Scene.FPS))

	snap := sc.Snapshot()
	fmt.Printf("Seed %d, presentation in %s (%s)\n\n",
		seed, snap.Countdown.Formatted, snap.Countdown.Target.Format(time.RFC1123))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEAT\tLABEL\tAVATAR\tPOSITION\tCLIP\tCHAT")
	for _, s := range snap.Seats {
		chat := ""
		if s.Chat != nil {
			chat = s.Chat.Text
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t(%.2f, %.2f, %.2f)\t%s\t%s\n",
			s.Seat, s.Label, s.Avatar, s.Position.X, s.Position.Y, s.Position.Z, s.Animation.Clip, chat)
	}
	tw.Flush()

	if *outputPtr == "" {
		return
	}
	f, err := os.Create(*outputPtr)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer f.Close()
	if err := presentation.RenderPlaceholder(f, *widthPtr, *heightPtr, snap.Countdown.Formatted); err != nil {
		log.Fatalf("❌ render: %v", err)
	}
	log.Printf("✅ Screen written to %s", *outputPtr)
}

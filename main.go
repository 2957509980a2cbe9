package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cloudflare/tableflip"
	"go.uber.org/zap"

	"github.com/guardianbot/guardian/bgtasks"
	"github.com/guardianbot/guardian/bot"
	"github.com/guardianbot/guardian/bytestore"
	"github.com/guardianbot/guardian/engine"
	"github.com/guardianbot/guardian/engine/heat"
	"github.com/guardianbot/guardian/engine/joinwatch"
	"github.com/guardianbot/guardian/guildconfig"
	"github.com/guardianbot/guardian/snapshots"
	"github.com/guardianbot/guardian/state"
	"github.com/guardianbot/guardian/webserver"
)

func main() {
	if len(os.Args) < 2 {
		os.Args = append(os.Args, "bot")
	}

	switch os.Args[1] {
	case "bot":
		runBot()
	default:
		fmt.Println("usage: guardian [bot]")
		os.Exit(1)
	}
}

func runBot() {
	state.Setup()

	backing, err := bytestore.New(&state.Config.Storage)

	if err != nil {
		state.Logger.Fatal("Error creating byte store", zap.Error(err))
	}

	store := guildconfig.NewStore(state.Logger, backing)

	tracker, err := heat.NewTracker()

	if err != nil {
		state.Logger.Fatal("Error creating heat tracker", zap.Error(err))
	}

	joins, err := joinwatch.NewDetector()

	if err != nil {
		state.Logger.Fatal("Error creating join detector", zap.Error(err))
	}

	eng := &engine.Engine{
		Logger: state.Logger,
		Store:  store,
		Heat:   tracker,
		Joins:  joins,
	}

	snaps := &snapshots.Store{
		Redis:   state.Rueidis,
		Backing: backing,
	}

	// Warm restart: restore recent heat state if a snapshot exists
	data, err := snaps.LoadHeat(state.Context)

	if err == nil {
		err = tracker.Restore(data)

		if err != nil {
			state.Logger.Warn("Failed to restore heat snapshot", zap.Error(err))
		}
	} else if !errors.Is(err, snapshots.ErrNoSnapshot) {
		state.Logger.Warn("Failed to load heat snapshot", zap.Error(err))
	}

	state.Discord, err = discordgo.New("Bot " + state.Config.DiscordAuth.Token)

	if err != nil {
		state.Logger.Fatal("Error creating Discord session", zap.Error(err))
	}

	state.Discord.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildMembers |
		discordgo.IntentMessageContent

	bot.New(state.Logger, state.Discord, eng)

	err = state.Discord.Open()

	if err != nil {
		state.Logger.Fatal("Error opening Discord session", zap.Error(err))
	}

	defer state.Discord.Close()

	bgtasks.BgTaskRegistry = append(bgtasks.BgTaskRegistry,
		bgtasks.MaintenanceSweep{
			Engine:   eng,
			Interval: time.Duration(state.Config.Meta.SweepInterval) * time.Second,
		},
		bgtasks.HeatSnapshot{
			Tracker:   tracker,
			Snapshots: snaps,
			Interval:  time.Duration(state.Config.Meta.SnapshotInterval) * time.Second,
		},
	)

	bgtasks.StartAllTasks()

	r := webserver.CreateWebserver(eng)

	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		upg, _ := tableflip.New(tableflip.Options{})
		defer upg.Stop()

		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGHUP)
			for range sig {
				state.Logger.Info("Received SIGHUP, upgrading server")
				upg.Upgrade()
			}
		}()

		// Listen must be called before Ready
		ln, err := upg.Listen("tcp", ":"+strconv.Itoa(state.Config.Meta.Port))

		if err != nil {
			state.Logger.Fatal("Error binding to socket", zap.Error(err))
		}

		defer ln.Close()

		server := http.Server{
			ReadTimeout: 30 * time.Second,
			Handler:     r,
		}

		go func() {
			err := server.Serve(ln)
			if err != http.ErrServerClosed {
				state.Logger.Error("Server failed due to unexpected error", zap.Error(err))
			}
		}()

		if err := upg.Ready(); err != nil {
			state.Logger.Fatal("Error calling upg.Ready", zap.Error(err))
		}

		<-upg.Exit()
	} else {
		// Tableflip not supported
		state.Logger.Warn("Tableflip not supported on this platform, this is not a production-capable server.")
		err := http.ListenAndServe(":"+strconv.Itoa(state.Config.Meta.Port), r)

		if err != nil {
			state.Logger.Fatal("Error binding to socket", zap.Error(err))
		}
	}

	// Best-effort final snapshot so a clean restart keeps recent heat
	data, err = tracker.Snapshot()

	if err == nil {
		err = snaps.SaveHeat(state.Context, data)
	}

	if err != nil {
		state.Logger.Warn("Failed to write final heat snapshot", zap.Error(err))
	}
}

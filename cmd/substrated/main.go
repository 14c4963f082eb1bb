package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relaykernel/substrate/substrate/facet"
	"github.com/relaykernel/substrate/substrate/kernel"
	"github.com/relaykernel/substrate/substrate/logging"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/queue"
	"github.com/relaykernel/substrate/substrate/router"
	"github.com/relaykernel/substrate/substrate/subsystem"
	"github.com/relaykernel/substrate/substrate/system"
)

// echoBuilder assembles the "echo" subsystem: a single unauthenticated
// route that hands its body straight back, used to show a second
// subsystem sharing the same MessageSystem as "chat".
func echoBuilder() *facet.Builder {
	b := facet.NewBuilder()
	b.Use(&facet.Hook{
		Kind: "router",
		Fn: func(ctx *facet.Context, api *facet.API, name string) (*facet.Facet, error) {
			r := router.New(router.Options{})
			_ = r.Register("echo://ping", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
				return msg.Body, nil
			}, router.RegisterOptions{})
			return &facet.Facet{Kind: "router", Value: r}, nil
		},
	})
	return b
}

// chatBuilder assembles the "chat" subsystem's router facet. Posting to a
// room requires the "rw" level on the "chat.room" scope (spec §4.2, §4.7).
func chatBuilder(ac router.ScopeEnforcer) *facet.Builder {
	b := facet.NewBuilder()
	b.Use(&facet.Hook{
		Kind: "router",
		Fn: func(ctx *facet.Context, api *facet.API, name string) (*facet.Facet, error) {
			r := router.New(router.Options{Enforcer: ac})
			_ = r.Register("chat://room/{id}/post", func(ctx context.Context, msg *message.Message, params map[string]string, options map[string]any) (any, error) {
				fmt.Printf("chat room %s: %v\n", params["id"], msg.Body)
				return "ok", nil
			}, router.RegisterOptions{
				RequiredPermission: "rw",
				Scope:              "chat.room",
			})
			return &facet.Facet{Kind: "router", Value: r}, nil
		},
	})
	return b
}

func main() {
	debug := flag.Bool("debug", false, "raise log verbosity to debug")
	tickBudgetMs := flag.Int("scheduler.tick-budget-ms", 0, "override the global scheduler's per-subsystem tick budget")
	flag.Parse()

	fmt.Println("substrated starting...")
	ctx := context.Background()

	cfg := system.DefaultConfig()
	cfg.Debug = *debug
	cfg.Logger = logging.New(logging.Config{Component: "substrated", Debug: *debug})
	if *tickBudgetMs > 0 {
		cfg.SchedulerTickBudgetMs = *tickBudgetMs
	}

	ms := system.New(cfg)
	if err := ms.Bootstrap(ctx); err != nil {
		fmt.Println("bootstrap failed:", err)
		os.Exit(1)
	}

	ms.InitializeProfiles(map[string]map[string]string{
		"member": {"chat.room": "rw"},
	})

	ac := &kernel.AccessControl{Registry: ms.Kernel.Principals, Profiles: ms.Kernel.Profiles}
	chat := subsystem.New("chat", subsystem.Options{Queue: queue.DefaultOptions(), Logger: cfg.Logger})
	if err := ms.RegisterSubsystem(ctx, "chat", chat, chatBuilder(ac)); err != nil {
		fmt.Println("register chat failed:", err)
		os.Exit(1)
	}

	echo := subsystem.New("echo", subsystem.Options{Queue: queue.DefaultOptions(), Logger: cfg.Logger})
	if err := ms.RegisterSubsystem(ctx, "echo", echo, echoBuilder()); err != nil {
		fmt.Println("register echo failed:", err)
		os.Exit(1)
	}

	ms.Start(ctx)
	defer ms.Stop()

	alice := ms.Kernel.Principals.NewPrincipal("member")
	ms.CreateChannel("chat://room/1/post", alice.PKR)

	msg := message.New("chat://room/1/post", "hello from alice", message.Command)
	if _, err := ms.Kernel.SendProtected(ctx, alice.PKR, msg, nil); err != nil {
		fmt.Println("send failed:", err)
	}

	if res, err := ms.Send(ctx, "echo://ping", "hi", message.Query, map[string]any{"immediate": true}); err != nil {
		fmt.Println("echo send failed:", err)
	} else {
		fmt.Println("echo replied:", res.Value)
	}

	time.Sleep(50 * time.Millisecond)
	fmt.Println("substrated exiting")
}

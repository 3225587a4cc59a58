// chatcli is a manual test tool: an interactive terminal consumer that
// streams replies from a running relay server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lumenlabs/chat-starter/backend/pkg/client"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	server := flag.String("server", "http://localhost:8080", "relay server base URL")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-turn timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printed := 0
	conv := client.NewConversation(client.New(*server), func(t client.Transcript) {
		last := t[len(t)-1]
		if last.Role != client.RoleAssistant {
			return
		}
		if len(last.Content) < printed {
			// Failure replacement shrank the message; reprint it whole.
			fmt.Print("\n" + last.Content)
			printed = len(last.Content)
			return
		}
		if len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
			printed = len(last.Content)
		}
	})

	fmt.Printf("connected to %s, ctrl-d to quit\n", *server)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			fmt.Print("> ")
			continue
		}

		printed = 0
		turnCtx, cancel := context.WithTimeout(ctx, *timeout)
		conv.SendMessage(turnCtx, line)
		cancel()

		fmt.Println()
		if ctx.Err() != nil {
			return
		}
		fmt.Print("> ")
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}
}

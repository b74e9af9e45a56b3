package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nutrichat/nutrichat/internal/app"
	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/config"
	"github.com/nutrichat/nutrichat/internal/log"
	"github.com/nutrichat/nutrichat/internal/state"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	profileID := activeProfile(ctx, a)
	if profileID == uuid.Nil {
		fmt.Println("No active profile. The assistant will ask you to create one.")
	} else if p, err := a.Profiles.Get(ctx, profileID); err == nil {
		fmt.Printf("Chatting as %s.\n", p.Name)
	}

	sessionID := uuid.Nil
	if profileID != uuid.Nil {
		s, err := a.Sessions.Create(ctx, profileID, "")
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		sessionID = s.ID
		if err := a.State.Put(ctx, state.ActiveSessionKey(profileID), s.ID.String()); err != nil {
			logger.Warn("setting active session", "error", err)
		}
	}

	fmt.Println("Type a message, or 'exit' to quit.")
	fmt.Println()

	firstTurn := true
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye.")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye.")
			return nil
		}

		streamFn := func(ctx context.Context, ev chat.Event) error {
			switch ev.Type {
			case chat.EventText:
				fmt.Print(ev.Text)
			case chat.EventTool:
				fmt.Printf("\n[%s]\n", ev.Tool)
			case chat.EventError:
				fmt.Printf("\n%s\n", ev.Text)
			}
			return nil
		}

		if _, err := a.Chat.HandleTurn(ctx, profileID, sessionID, input, streamFn); err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("\nGoodbye.")
				return nil
			}
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		fmt.Println()
		fmt.Println()

		if firstTurn && sessionID != uuid.Nil {
			firstTurn = false
			title := a.Chat.GenerateTitle(ctx, input)
			if err := a.Sessions.Rename(ctx, sessionID, title); err != nil {
				logger.Warn("renaming session", "error", err)
			}
		}
	}
}

// activeProfile resolves the stored active profile pointer. A dangling
// pointer is treated as no profile.
func activeProfile(ctx context.Context, a *app.App) uuid.UUID {
	stored, err := a.State.Get(ctx, state.KeyActiveProfile)
	if err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(stored)
	if err != nil {
		return uuid.Nil
	}
	if _, err := a.Profiles.Get(ctx, id); err != nil {
		return uuid.Nil
	}
	return id
}

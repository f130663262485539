package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/zhouzirui/agent-chat/internal/conversation"
	"github.com/zhouzirui/agent-chat/internal/model/chat"
)

// Conversation is what the REPL drives.
type Conversation interface {
	Enter(ctx context.Context) error
	Submit(ctx context.Context, text string) (conversation.Exchange, error)
	Exit(ctx context.Context)
	Messages() []chat.Message
}

var (
	assistantColor = color.New(color.FgCyan)
	promptColor    = color.New(color.FgGreen)
	noticeColor    = color.New(color.FgYellow)
)

// runREPL reads one message per line. /exit restarts the conversation and
// /quit leaves.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, conv Conversation) error {
	if err := conv.Enter(ctx); err != nil {
		return fmt.Errorf("starting conversation: %w", err)
	}
	printMessages(out, conv.Messages())
	noticeColor.Fprintln(out, "Type a message, /exit to restart, /quit to leave.")

	scanner := bufio.NewScanner(in)
	for {
		promptColor.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/exit":
			conv.Exit(ctx)
			noticeColor.Fprintln(out, "Conversation ended.")
			if err := conv.Enter(ctx); err != nil {
				return fmt.Errorf("restarting conversation: %w", err)
			}
			printMessages(out, conv.Messages())
			continue
		}

		exchange, err := conv.Submit(ctx, line)
		switch {
		case errors.Is(err, conversation.ErrBusy):
			noticeColor.Fprintln(out, "Still waiting for the previous reply.")
		case err != nil:
			return err
		default:
			printAssistant(out, exchange.Assistant.Text)
		}
	}
}

func printMessages(out io.Writer, messages []chat.Message) {
	for _, msg := range messages {
		if msg.Sender == chat.SenderAssistant {
			printAssistant(out, msg.Text)
		}
	}
}

func printAssistant(out io.Writer, text string) {
	assistantColor.Fprint(out, "agent: ")
	fmt.Fprintln(out, text)
}

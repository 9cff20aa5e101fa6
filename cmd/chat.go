package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BioHazard786/callrelay/internal/client"
	"github.com/BioHazard786/callrelay/internal/peer"
	"github.com/BioHazard786/callrelay/internal/ui"
)

// runChat waits for the data channel, then pipes stdin lines to the peer and
// prints what comes back.
func runChat(ctx context.Context, p *peer.Peer, self string) error {
	stopSpinner := ui.Spin(ui.Connecting, "Establishing WebRTC connection...")
	select {
	case <-p.Opened():
		stopSpinner()
	case <-p.Done():
		stopSpinner()
		return client.NewError("connect", client.ErrPeerUnavailable)
	case <-ctx.Done():
		stopSpinner()
		return nil
	case <-time.After(connectTimeout):
		stopSpinner()
		return client.WrapError("connect", client.ErrTimeout, "data channel did not open")
	}

	ui.PrintSuccess("Connected. Type a message and press enter, Ctrl+D to hang up.")

	stop := make(chan struct{})
	defer close(stop)
	lines := readLines(os.Stdin, stop)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			if err := p.Send(self, line); err != nil {
				ui.PrintWarningf("message not sent: %v", err)
			}

		case msg := <-p.Messages():
			fmt.Println(ui.ChatLine(msg.From, msg.Text, false))

		case <-p.Done():
			ui.PrintWarning("Call ended")
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// readLines scans r on its own goroutine. The channel closes at EOF or once
// stop is closed and the pending line cannot be handed over.
func readLines(r io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}

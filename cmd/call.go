package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/callrelay/internal/client"
	"github.com/BioHazard786/callrelay/internal/ui"
)

var (
	callRoom string
	callAs   string
	callTo   string
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Join a room and call another identity",
	Long: `Join a room under an identity, send a WebRTC offer to another identity and
open a text chat over the resulting data channel.

Examples:
  callrelay call --room R1 --as alice --to bob
  callrelay call --room R1 --as alice --to bob --codec msgpack`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return placeCall(cmd.Context(), callRoom, callAs, callTo)
	},
}

func placeCall(ctx context.Context, roomID, self, target string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	stopSpinner := ui.Spin(ui.Connecting, "Connecting to server...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return err
	}
	defer conn.Close()

	joined, err := conn.Join(ctx, roomID, self)
	if err != nil {
		return err
	}
	fmt.Println(ui.JoinedView(joined.RoomID, self, joined.ExistingUsers))

	p, err := conn.NewPeer()
	if err != nil {
		return err
	}
	defer p.Close()

	p.OnCandidate(func(c []byte) {
		if err := conn.Client.SendCandidate(target, c); err != nil {
			conn.Log.Debug("candidate not sent", "error", err)
		}
	})
	go conn.ForwardCandidates(p)

	offer, err := p.CreateOffer()
	if err != nil {
		return err
	}
	if err := conn.Client.CallUser(target, offer); err != nil {
		return err
	}

	stopSpinner = ui.Spin(ui.Waiting, fmt.Sprintf("%s Calling %s...", ui.IconCall, target))
	var answer []byte
	select {
	case a, ok := <-conn.Handler.Answer:
		stopSpinner()
		if !ok {
			return client.NewError("call", client.ErrConnectionClosed)
		}
		answer = a
	case msg := <-conn.Handler.Error:
		stopSpinner()
		return client.WrapError("call", client.ErrServer, msg)
	case <-ctx.Done():
		stopSpinner()
		return nil
	case <-time.After(connectTimeout):
		stopSpinner()
		return client.WrapError("call", client.ErrTimeout, target+" did not answer")
	}

	if err := p.SetAnswer(answer); err != nil {
		return err
	}
	return runChat(ctx, p, self)
}

func init() {
	callCmd.Flags().StringVarP(&callRoom, "room", "r", "", "room to join")
	callCmd.Flags().StringVar(&callAs, "as", "", "identity to register")
	callCmd.Flags().StringVar(&callTo, "to", "", "identity to call")
	_ = callCmd.MarkFlagRequired("room")
	_ = callCmd.MarkFlagRequired("as")
	_ = callCmd.MarkFlagRequired("to")
	addClientFlags(callCmd)

	rootCmd.AddCommand(callCmd)
}

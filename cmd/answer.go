package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/callrelay/internal/client"
	"github.com/BioHazard786/callrelay/internal/ui"
)

var (
	answerRoom   string
	answerAs     string
	answerLegacy bool
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Join a room and wait for an incoming call",
	Long: `Join a room under an identity, wait for the first incoming call, answer it
and open a text chat over the resulting data channel.

The answer is sent as call-accepted by default. --legacy sends answer-call
instead, for callers that listen for call-answered.

Examples:
  callrelay answer --room R1 --as bob
  callrelay answer --room R1 --as bob --legacy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return answerCall(cmd.Context(), answerRoom, answerAs, answerLegacy)
	},
}

func answerCall(ctx context.Context, roomID, self string, legacy bool) error {
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

	stopSpinner = ui.Spin(ui.Waiting, "Waiting for a call...")
	var from string
	var offer []byte
	select {
	case call, ok := <-conn.Handler.IncomingCall:
		stopSpinner()
		if !ok {
			return client.NewError("answer", client.ErrConnectionClosed)
		}
		from, offer = call.From, call.Offer
	case msg := <-conn.Handler.Error:
		stopSpinner()
		return client.WrapError("answer", client.ErrServer, msg)
	case <-ctx.Done():
		stopSpinner()
		return nil
	}
	ui.PrintInfof("%s Incoming call from %s", ui.IconCall, ui.PeerStyle.Render(from))

	p, err := conn.NewPeer()
	if err != nil {
		return err
	}
	defer p.Close()

	p.OnCandidate(func(c []byte) {
		if err := conn.Client.SendCandidate(from, c); err != nil {
			conn.Log.Debug("candidate not sent", "error", err)
		}
	})
	go conn.ForwardCandidates(p)

	answer, err := p.Accept(offer)
	if err != nil {
		return err
	}

	if legacy {
		err = conn.Client.AnswerCall(from, answer)
	} else {
		err = conn.Client.AcceptCall(from, answer)
	}
	if err != nil {
		return err
	}
	return runChat(ctx, p, self)
}

func init() {
	answerCmd.Flags().StringVarP(&answerRoom, "room", "r", "", "room to join")
	answerCmd.Flags().StringVar(&answerAs, "as", "", "identity to register")
	answerCmd.Flags().BoolVar(&answerLegacy, "legacy", false, "reply with answer-call instead of call-accepted")
	_ = answerCmd.MarkFlagRequired("room")
	_ = answerCmd.MarkFlagRequired("as")
	addClientFlags(answerCmd)

	rootCmd.AddCommand(answerCmd)
}

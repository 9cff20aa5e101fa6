package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/callrelay/internal/client"
	"github.com/BioHazard786/callrelay/internal/config"
	"github.com/BioHazard786/callrelay/internal/peer"
	"github.com/BioHazard786/callrelay/internal/signaling"
)

const (
	joinTimeout    = 10 * time.Second
	connectTimeout = 30 * time.Second
)

var clientOpts config.ClientOptions

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&clientOpts.URL, "server", "s", "", "relay websocket URL (env CALLRELAY_URL)")
}

func addClientFlags(cmd *cobra.Command) {
	addServerFlags(cmd)
	cmd.Flags().StringVar(&clientOpts.Codec, "codec", "", "wire encoding, json or msgpack (env CALLRELAY_CODEC)")
	cmd.Flags().StringVar(&clientOpts.STUNServer, "stun", "", "STUN server URL (env STUN_SERVER)")
	cmd.Flags().StringVar(&clientOpts.TURNServer, "turn", "", "TURN server host (env TURN_SERVER)")
	cmd.Flags().StringVar(&clientOpts.TURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	cmd.Flags().StringVar(&clientOpts.TURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	cmd.Flags().BoolVar(&clientOpts.ForceRelay, "relay", false, "relay media through TURN only (env FORCE_RELAY)")
}

type ConnectionContext struct {
	Client  *client.Client
	Handler *client.Handler
	Config  *config.ClientConfig
	Log     *slog.Logger
}

func LoadConfig() (*config.ClientConfig, error) {
	cfg, err := config.LoadClient(clientOpts)
	if err != nil {
		return nil, client.NewError("load config", err)
	}
	return cfg, nil
}

func NewConnectionContext(ctx context.Context, cfg *config.ClientConfig) (*ConnectionContext, error) {
	codec := signaling.JSONCodec
	if cfg.Codec == "msgpack" {
		codec = signaling.MsgpackCodec
	}

	log := slog.Default()
	c := client.NewClient(cfg.URL, codec, log)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	handler := client.NewHandler(c, log)
	go handler.Start()

	return &ConnectionContext{
		Client:  c,
		Handler: handler,
		Config:  cfg,
		Log:     log,
	}, nil
}

// Join enters roomID as identity and waits for the acknowledgment.
func (c *ConnectionContext) Join(ctx context.Context, roomID, identity string) (*signaling.JoinedRoomPayload, error) {
	if err := c.Client.JoinRoom(roomID, identity); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	return c.Handler.WaitJoined(ctx)
}

func (c *ConnectionContext) NewPeer() (*peer.Peer, error) {
	return peer.New(c.Config, c.Log)
}

// ForwardCandidates feeds relayed ICE candidates into p until the
// connection ends.
func (c *ConnectionContext) ForwardCandidates(p *peer.Peer) {
	for candidate := range c.Handler.Candidate {
		if err := p.AddCandidate(candidate); err != nil {
			c.Log.Warn("dropping remote candidate", "error", err)
		}
	}
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

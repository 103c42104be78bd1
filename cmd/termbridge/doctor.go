package main

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/internal/appconfig"
	"pkt.systems/termbridge/schema"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to the session host",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger.Info("doctor start", "host_url", cfg.Bridge.HostURL)

			dialer := websocket.Dialer{HandshakeTimeout: timeout}
			conn, _, err := dialer.DialContext(cmd.Context(), cfg.Bridge.HostURL, nil)
			if err != nil {
				return fmt.Errorf("dial session host: %w", err)
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(timeout))
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read greeting: %w", err)
			}
			msg, err := schema.DecodeHostMessage(frame)
			if err != nil {
				return fmt.Errorf("decode greeting: %w", err)
			}
			hello, ok := msg.(schema.HelloMessage)
			if !ok {
				return fmt.Errorf("unexpected greeting frame %T", msg)
			}
			if hello.Version != schema.ProtocolVersion {
				return fmt.Errorf("protocol version mismatch: host %d, bridge %d", hello.Version, schema.ProtocolVersion)
			}
			logger.Info("doctor hello ok", "version", hello.Version)

			listFrame, err := schema.EncodeBridgeMessage(schema.ListMessage{})
			if err != nil {
				return err
			}
			conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := conn.WriteMessage(websocket.TextMessage, listFrame); err != nil {
				return fmt.Errorf("send list: %w", err)
			}
			conn.SetReadDeadline(time.Now().Add(timeout))
			_, frame, err = conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read list reply: %w", err)
			}
			msg, err = schema.DecodeHostMessage(frame)
			if err != nil {
				return fmt.Errorf("decode list reply: %w", err)
			}
			listed, ok := msg.(schema.ListedMessage)
			if !ok {
				return fmt.Errorf("unexpected list reply frame %T", msg)
			}
			logger.Info("doctor ok", "sessions", len(listed.Items))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-step timeout")
	return cmd
}

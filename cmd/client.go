package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/parcel/client"
	"github.com/luma/parcel/internal/console"
	"github.com/luma/parcel/internal/env"
)

var (
	// The server to connect to
	serverIP string

	serverPort int
)

func init() {
	flags := ClientCmd.PersistentFlags()

	flags.StringVar(&serverIP, "ip", "127.0.0.1", "The server address to connect to")
	flags.IntVarP(&serverPort, "port", "p", 4444, "The server port to connect to")
}

var ClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to a Parcel server and send it a packet",
	Long: `Connect to a Parcel server and send it a packet

The client sends KEY from the config file as a message, then reads lines
from the console. Every line becomes a field of a single packet, which is
sent once an empty line is entered.

Usage
	parcel client --config config.txt

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, err := env.LoadConfig(ctx, configPath)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("ip") {
			conf.IP = serverIP
		}
		if flags.Changed("port") {
			conf.Port = serverPort
		}

		log, err := env.MakeLogger(conf.LogLevel, conf.LogEncoding)
		if err != nil {
			return err
		}
		defer func() {
			_ = log.Sync()
		}()

		log.Info("Loaded config", zap.String("key", conf.Key))

		c := client.New(log.Named("client"))
		if err := c.Connect(ctx, net.JoinHostPort(conf.IP, strconv.Itoa(conf.Port))); err != nil {
			return err
		}

		if err := c.Handshake(); err != nil {
			return err
		}

		defer func() {
			if derr := c.Disconnect(); derr != nil {
				log.Warn("Failed to disconnect cleanly", zap.Error(derr))
			}
		}()

		if err := c.SendMessage(conf.Key); err != nil {
			return err
		}

		p, err := console.ReadPacket(os.Stdin, os.Stdout, log.Named("console"))
		if err != nil {
			return err
		}

		return c.SendPacket(p)
	},
}

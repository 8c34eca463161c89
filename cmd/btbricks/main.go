// Command btbricks exercises the connection engine over a serial
// radio: scan for peers, run a UART console on either side of the
// link, or drive a smart hub.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/cache"
	"github.com/antonvh/btbricks/engine"
	"github.com/antonvh/btbricks/hub"
	"github.com/antonvh/btbricks/transport/serial"
	"github.com/antonvh/btbricks/uart"
)

func main() {
	app := cli.NewApp()
	app.Name = "btbricks"
	app.Usage = "connect bricks, hubs and consoles over a serial radio"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "configuration file",
			Value: "btbricks.yaml",
		},
		cli.StringFlag{
			Name:  "port, p",
			Usage: "serial port of the radio",
		},
		cli.StringFlag{
			Name:  "cache",
			Usage: "handle profile cache file",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "debug logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "scan",
			Usage:  "print advertising peers for the scan window",
			Action: runScan,
		},
		{
			Name:      "uart",
			Usage:     "attach a console to a named UART peer",
			ArgsUsage: "<name>",
			Action:    runUart,
		},
		{
			Name:      "serve",
			Usage:     "expose a UART console under a name",
			ArgsUsage: "<name>",
			Action:    runServe,
		},
		{
			Name:      "hub",
			Usage:     "connect to a smart hub and dump its status frames",
			Action:    runHub,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "name, n",
					Usage: "connect to a specific hub by name",
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*engine.Engine, error) {
	if c.GlobalBool("debug") {
		ble.SetLogLevelMax()
	}

	cfg, err := ble.LoadConfig(c.GlobalString("config"))
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			return nil, err
		}
		cfg = &ble.Config{}
	}
	if port := c.GlobalString("port"); port != "" {
		cfg.Serial.Port = port
	}
	if cfg.Serial.Port == "" {
		return nil, fmt.Errorf("no serial port configured")
	}

	radio, err := serial.New(serial.Options{
		Port: cfg.Serial.Port,
		Baud: cfg.Serial.Baud,
	})
	if err != nil {
		return nil, err
	}

	opts := cfg.Options()
	if file := c.GlobalString("cache"); file != "" {
		opts = append(opts, ble.OptHandleCache(cache.New(file)))
	}

	return engine.New(radio, opts...)
}

func runScan(c *cli.Context) error {
	eng, err := setup(c)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	remove := eng.Discovery().Observe(func(r ble.ScanResult) {
		if seen[r.Addr.String()] {
			return
		}
		seen[r.Addr.String()] = true
		fmt.Printf("%s rssi=%d name=%q services=%d\n", r.Addr, r.RSSI, r.Name, len(r.Services))
	})
	defer remove()

	// Empty criteria never match, so the session runs the full window
	// and resolves with no record.
	window := 10 * time.Second
	done := make(chan struct{})
	err = eng.Discovery().Start(engine.SearchCriteria{}, window,
		func(*ble.ScanResult) { close(done) })
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-interrupt():
		return eng.Discovery().Stop()
	}
	return nil
}

func runUart(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("peer name required")
	}

	eng, err := setup(c)
	if err != nil {
		return err
	}
	client, err := uart.NewClient(eng)
	if err != nil {
		return err
	}

	if err := client.Connect(name, 0); err != nil {
		return err
	}
	defer client.Disconnect()

	if err := client.OnReceive(func(data []byte) {
		os.Stdout.Write(data)
	}); err != nil {
		return err
	}
	dropped := make(chan struct{})
	client.OnDisconnected(func() { close(dropped) })

	lines := make(chan string)
	go readLines(lines)
	sig := interrupt()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := client.Send([]byte(line + "\n")); err != nil {
				return err
			}
		case <-dropped:
			return fmt.Errorf("peer disconnected")
		case <-sig:
			return nil
		}
	}
}

func runServe(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("advertised name required")
	}

	eng, err := setup(c)
	if err != nil {
		return err
	}
	server, err := uart.NewServer(eng)
	if err != nil {
		return err
	}

	if err := server.OnReceive(func(data []byte) {
		os.Stdout.Write(data)
	}); err != nil {
		return err
	}
	if err := server.Start(name); err != nil {
		return err
	}
	defer server.Stop()

	lines := make(chan string)
	go readLines(lines)
	sig := interrupt()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !server.Connected() {
				fmt.Fprintln(os.Stderr, "no peer attached")
				continue
			}
			if err := server.Send([]byte(line + "\n")); err != nil {
				return err
			}
		case <-sig:
			return nil
		}
	}
}

func runHub(c *cli.Context) error {
	eng, err := setup(c)
	if err != nil {
		return err
	}
	h, err := hub.New(eng)
	if err != nil {
		return err
	}

	if name := c.String("name"); name != "" {
		err = h.ConnectNamed(name, 0)
	} else {
		err = h.Connect(0)
	}
	if err != nil {
		return err
	}
	defer h.Disconnect()

	if err := h.OnReceive(func(data []byte) {
		fmt.Printf("hub: [% 02x]\n", data)
	}); err != nil {
		return err
	}

	dropped := make(chan struct{})
	h.OnDisconnected(func() { close(dropped) })

	fmt.Println("connected, ctrl-c to quit")
	select {
	case <-dropped:
		return fmt.Errorf("hub disconnected")
	case <-interrupt():
		return nil
	}
}

func readLines(out chan<- string) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		out <- sc.Text()
	}
	close(out)
}

func interrupt() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

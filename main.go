package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gitlab.com/gomidi/midi"
	driver "gitlab.com/gomidi/rtmididrv"
	"go.uber.org/zap"
)

const appName = "midikeyd"

func main() {
	configFlag := flag.String("config", "", "path to config file (default ~/"+configFileName+")")
	listFlag := flag.Bool("list", false, "print available MIDI input ports and exit")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := newLogger(*debugFlag)
	defer log.Sync()

	drv, err := driver.New()
	if err != nil {
		log.Fatalw("failed to create MIDI driver", "error", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		log.Fatalw("failed to enumerate MIDI input ports", "error", err)
	}

	if *listFlag {
		for _, in := range ins {
			fmt.Println(in.String())
		}
		return
	}

	path := *configFlag
	if path == "" {
		if path, err = defaultConfigPath(); err != nil {
			log.Fatalw("failed to locate config file", "error", err)
		}
	}
	settings, err := loadSettings(path)
	if err != nil {
		log.Fatalw("failed to load settings", "path", path, "error", err)
	}
	log.Debugw("settings loaded", "path", path, "rules", len(settings.MidiMapping))

	in := findPort(ins, settings.DevicePortName)
	if in == nil {
		log.Fatalw("no MIDI port matches the configured device_port_name",
			"device_port_name", settings.DevicePortName, "available", portNames(ins))
	}
	log.Infow("selected MIDI port", "port", in.String())

	backend, err := newEvdevBackend()
	if err != nil {
		log.Fatalw("failed to open input backend", "error", err)
	}
	defer backend.Close()

	d := newDispatcher(settings, backend, spawnCommand, log)

	if err := in.Open(); err != nil {
		log.Fatalw("failed to open MIDI port", "port", in.String(), "error", err)
	}
	defer in.Close()
	err = in.SetListener(func(data []byte, deltaMicroseconds int64) {
		log.Debugw("received MIDI message", "bytes", data, "delta_us", deltaMicroseconds)
		d.onEvent(data)
	})
	if err != nil {
		log.Fatalw("failed to attach MIDI listener", "port", in.String(), "error", err)
	}
	log.Infow("daemon initialized")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Infow("shutting down")
	in.StopListening()
}

// build the process-wide logger
func newLogger(debug bool) *zap.SugaredLogger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err.Error())
	}
	return logger.Sugar()
}

// return the first port whose name contains the configured substring
func findPort(ins []midi.In, name string) midi.In {
	for _, in := range ins {
		if strings.Contains(in.String(), name) {
			return in
		}
	}
	return nil
}

// port names for error messages
func portNames(ins []midi.In) []string {
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names
}

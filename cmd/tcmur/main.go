//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/tcmur/tcmur/control"
	"github.com/tcmur/tcmur/dispatch"
	"github.com/tcmur/tcmur/fsio"
	"github.com/tcmur/tcmur/fuseadapter"
	"github.com/tcmur/tcmur/handler"
	"github.com/tcmur/tcmur/handler/implementations"
	"github.com/tcmur/tcmur/registry"
	"github.com/tcmur/tcmur/tree"
)

const usage string = `tcmur file-system

tcmur is a FUSE daemon that exposes loadable block-storage handler
plug-ins as files: load a handler, add a device against it, and the
device appears under the mount point as a block-device-shaped file
backed by that handler's Read/Write/Flush.
`

// Globals populated at build time.
var (
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	var prof interface{ Stop() }

	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	if cpuProfOn {
		prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	if memProfOn {
		prof = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	return prof, nil
}

// exitHandler unmounts and exits on receiving a termination signal.
// It does not wait for in-flight tasks: os.Exit ends the process with
// any pending completion waits still outstanding.
func exitHandler(signalChan chan os.Signal, srv *fuseadapter.Server, prof interface{ Stop() }) {
	s := <-signalChan
	logrus.Warnf("tcmur caught signal: %s", s)
	logrus.Info("Unmounting ...")

	if err := srv.Unmount(); err != nil {
		logrus.Warnf("unmount: %v", err)
	}
	if prof != nil {
		prof.Stop()
	}
	if s == syscall.SIGSEGV || s == syscall.SIGQUIT || s == syscall.SIGABRT {
		stacktrace := make([]byte, 32768)
		n := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:n]))
	}
	logrus.Info("Exiting ...")
	os.Exit(0)
}

// setupControlNode wires /dev/tcmur into t: writes feed the
// interpreter, reads serve successive slices of its tree dump, per
// spec.md section 4.6.
func setupControlNode(t *tree.Tree, in *control.Interpreter) error {
	if _, err := t.Mkdir("/dev"); err != nil {
		return err
	}
	dev, err := t.Lookup("/dev")
	if err != nil {
		return err
	}
	ops := &tree.Ops{
		Read: func(n *tree.Node, buf []byte, off int64) (int, error) {
			data := in.ReadDump(off, len(buf))
			return copy(buf, data), nil
		},
		Write: func(n *tree.Node, buf []byte, off int64) (int, error) {
			var out bytes.Buffer
			in.Feed(buf, &out)
			for _, line := range bytes.Split(out.Bytes(), []byte("\n")) {
				if len(line) > 0 {
					logrus.Info(string(line))
				}
			}
			return len(buf), nil
		},
	}
	_, err = t.Add(dev, "tcmur", tree.ModeRegular, ops, nil)
	return err
}

func main() {
	app := cli.NewApp()
	app.Name = "tcmur"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "mountpoint",
			Value: "/tcmur",
			Usage: "mount-point location",
		},
		cli.StringFlag{
			Name:  "handler-prefix",
			Value: "/usr/local/lib/tcmu-runner/handler_",
			Usage: "plug-in path prefix; the loader resolves <prefix><subtype>.so",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("tcmur\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n\tbuilt by: \t%s\n",
			c.App.Version, commitId, builtAt, builtBy)
	}

	app.Before = func(ctx *cli.Context) error {
		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
			if err != nil {
				logrus.Fatalf("opening log file %v: %v. Exiting ...", path, err)
				return err
			}
			logrus.SetOutput(f)
			log.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
			log.SetOutput(os.Stderr)
		}

		if ctx.GlobalString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch ctx.GlobalString("log-level") {
		case "debug":
			flag.Set("fuse.debug", "true")
			logrus.SetLevel(logrus.DebugLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.SetLevel(logrus.InfoLevel)
		}
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating tcmur ...")

		mountpoint := ctx.GlobalString("mountpoint")
		prefix := ctx.GlobalString("handler-prefix")

		reg := registry.New()
		fs := fsio.NewOS()
		hsvc := handler.NewService(prefix, reg.RegisterHandler, reg.FindHandler, reg.UnregisterHandler)
		disp := dispatch.New()
		t := tree.New()

		for subtype, ctor := range implementations.Builtins(fs) {
			handler.RegisterBuiltin(subtype, ctor)
			logrus.Infof("built-in handler available: %s", subtype)
		}

		cwd, err := os.Getwd()
		if err != nil {
			cwd = "/"
		}
		in, err := control.New(hsvc, t, disp, fs, cwd, reg.FindHandler, reg.AddDevice, reg.RemoveDevice)
		if err != nil {
			return fmt.Errorf("setting up /dev: %w", err)
		}
		if err := setupControlNode(t, in); err != nil {
			return fmt.Errorf("setting up control node: %w", err)
		}
		if _, err := t.Mkdir("/sys/module"); err != nil {
			return fmt.Errorf("setting up /sys/module: %w", err)
		}

		srv := fuseadapter.New(mountpoint, t, disp)
		if err := srv.Mount(); err != nil {
			return fmt.Errorf("mounting %s: %w", mountpoint, err)
		}

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGSEGV, syscall.SIGQUIT)
		go exitHandler(exitChan, srv, prof)

		logrus.Infof("Mounted at %s. Ready ...", mountpoint)

		if err := srv.Serve(); err != nil {
			logrus.Errorf("fuse server exited: %v", err)
			return err
		}

		logrus.Info("Done.")
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

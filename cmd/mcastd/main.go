// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// mcastd joins a multicast group, prints every received sample and optionally publishes stdin's lines.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-mcast/pkg/multicast"
	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/watchdog"
)

// daemon bundles a DataLink with its Dispatcher and status consumer.
type daemon struct {
	link       *multicast.DataLink
	dispatcher *watchdog.Dispatcher
	status     *multicast.StatusReceiver
	rest       *http.Server

	out io.Writer
}

// newDaemon creates and starts a DataLink on the socket. Received samples are printed to out.
func newDaemon(local msgs.PeerId, conf multicast.Config, socket multicast.DatagramSocket, queueSize int, out io.Writer) (*daemon, error) {
	d := &daemon{
		dispatcher: watchdog.NewDispatcher(queueSize),
		status:     multicast.NewStatusReceiver(64),
		out:        out,
	}

	link, err := multicast.NewDataLink(local, conf, socket, d.dispatcher, d.status)
	if err != nil {
		_ = d.dispatcher.Close()
		return nil, err
	}
	d.link = link

	go d.handleStatus()

	if err := d.link.Start(); err != nil {
		_ = d.dispatcher.Close()
		return nil, err
	}
	return d, nil
}

// handleStatus consumes the DataLink's Status channel.
func (d *daemon) handleStatus() {
	for status := range d.status.Channel() {
		switch status.Type {
		case multicast.SampleReceived:
			sample := status.Message.(multicast.Sample)
			_, _ = fmt.Fprintf(d.out, "%v %d: %s\n", sample.Remote, sample.Sequence, sample.Payload)

		case multicast.DataUnavailable:
			log.WithFields(log.Fields{
				"peer":  status.Remote,
				"range": status.Message,
			}).Warn("Samples are unavailable")

		default:
			log.WithFields(log.Fields{
				"peer":    status.Remote,
				"message": status.Message,
			}).Info(status.Type.String())
		}
	}
}

// publishStdin sends each line read from stdin.
func (d *daemon) publishStdin() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if seq, err := d.link.Send(scanner.Bytes()); err != nil {
			log.WithError(err).Warn("Failed to publish line")
		} else {
			log.WithField("sequence", seq).Debug("Published line")
		}
	}

	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("Reading stdin failed")
	}
}

// startRest serves the REST status API.
func (d *daemon) startRest(listen string) {
	d.rest = &http.Server{
		Addr:    listen,
		Handler: newRestApi(d.link),
	}

	go func() {
		if err := d.rest.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("REST API stopped")
		}
	}()

	log.WithField("listen", listen).Info("Started REST API")
}

// close the daemon's components.
func (d *daemon) close() (err error) {
	if d.rest != nil {
		if restErr := d.rest.Close(); restErr != nil {
			err = multierror.Append(err, restErr)
		}
	}
	if linkErr := d.link.Close(); linkErr != nil {
		err = multierror.Append(err, linkErr)
	}
	if dispErr := d.dispatcher.Close(); dispErr != nil {
		err = multierror.Append(err, dispErr)
	}
	return
}

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	d, err := parseDaemon(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	waitSigint()
	log.Info("Shutting down..")

	if err := d.close(); err != nil {
		log.WithError(err).Warn("Shutdown failed")
	}
}

// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-mcast/pkg/multicast"
	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// RestSendRequest describes a JSON to be POSTed to /send.
type RestSendRequest struct {
	Payload string `json:"payload"`
}

// RestSendResponse describes a JSON response for /send.
type RestSendResponse struct {
	Error    string          `json:"error"`
	Sequence sequence.Number `json:"sequence"`
}

// restApi exposes a DataLink's sessions and allows publishing.
type restApi struct {
	router *mux.Router
	link   *multicast.DataLink
}

// newRestApi for a DataLink.
func newRestApi(link *multicast.DataLink) *restApi {
	ra := &restApi{
		router: mux.NewRouter(),
		link:   link,
	}

	ra.router.HandleFunc("/sessions", ra.handleSessions).Methods(http.MethodGet)
	ra.router.HandleFunc("/sessions/{peer}", ra.handleSession).Methods(http.MethodGet)
	ra.router.HandleFunc("/send", ra.handleSend).Methods(http.MethodPost)

	return ra
}

func (ra *restApi) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ra.router.ServeHTTP(w, r)
}

// handleSessions processes /sessions GET requests.
func (ra *restApi) handleSessions(w http.ResponseWriter, _ *http.Request) {
	ra.writeJson(w, ra.link.Sessions())
}

// handleSession processes /sessions/{peer} GET requests.
func (ra *restApi) handleSession(w http.ResponseWriter, r *http.Request) {
	peer, err := msgs.ParsePeerId(mux.Vars(r)["peer"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, ok := ra.link.Session(peer)
	if !ok {
		http.Error(w, "unknown peer", http.StatusNotFound)
		return
	}
	ra.writeJson(w, info)
}

// handleSend processes /send POST requests.
func (ra *restApi) handleSend(w http.ResponseWriter, r *http.Request) {
	var (
		sendRequest  RestSendRequest
		sendResponse RestSendResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&sendRequest); jsonErr != nil {
		sendResponse.Error = jsonErr.Error()
	} else if seq, sendErr := ra.link.Send([]byte(sendRequest.Payload)); sendErr != nil {
		sendResponse.Error = sendErr.Error()
	} else {
		sendResponse.Sequence = seq
	}

	log.WithFields(log.Fields{
		"response": sendResponse,
	}).Debug("Processing REST send")

	ra.writeJson(w, sendResponse)
}

func (ra *restApi) writeJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write REST response")
	}
}

// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/clients"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
)

// RegisterClientHandler handles POST /oauth/register requests.
// It implements RFC 7591 Dynamic Client Registration for public clients.
func (r *Router) RegisterClientHandler(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBody)

	var dcrReq DCRRequest
	if err := json.NewDecoder(req.Body).Decode(&dcrReq); err != nil {
		writeDCRError(w, http.StatusBadRequest, &DCRError{
			Error:            DCRErrorInvalidClientMetadata,
			ErrorDescription: "invalid JSON request body",
		})
		return
	}

	validated, dcrErr := ValidateDCRRequest(&dcrReq)
	if dcrErr != nil {
		writeDCRError(w, http.StatusBadRequest, dcrErr)
		return
	}

	client, err := r.server.RegisterClient(validated)
	if err != nil {
		logger.Errorw("failed to persist registered client", "error", err.Error())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	logger.Infow("registered new DCR client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
	)

	// The persisted record's JSON shape doubles as the RFC 7591 Section
	// 3.2.1 response.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(client); err != nil {
		logger.Errorw("failed to encode DCR response", "error", err.Error())
	}
}

// RegisterClient mints an id for a validated registration request and
// persists it in the client registry.
func (s *Server) RegisterClient(validated *DCRRequest) (*clients.Client, error) {
	client := &clients.Client{
		ClientID:                uuid.NewString(),
		ClientIDIssuedAt:        s.now().Unix(),
		RedirectURIs:            validated.RedirectURIs,
		ClientName:              validated.ClientName,
		TokenEndpointAuthMethod: validated.TokenEndpointAuthMethod,
		GrantTypes:              validated.GrantTypes,
		ResponseTypes:           validated.ResponseTypes,
		Scope:                   validated.Scope,
	}
	if err := s.registry.Upsert(client); err != nil {
		return nil, err
	}
	return client, nil
}

// writeDCRError writes a DCR error response per RFC 7591 Section 3.2.2.
func writeDCRError(w http.ResponseWriter, statusCode int, dcrErr *DCRError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(dcrErr)
}

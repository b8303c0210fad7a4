// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the simulation orchestrator.
//
// This file contains the push-channel message envelope and its type
// discriminators. Server-initiated and client-initiated types share one
// envelope; payload shape depends on the type.
package datatypes

import "encoding/json"

// MessageType discriminates push-channel messages.
type MessageType string

// Server-initiated message types.
const (
	MessageCalculationStarted   MessageType = "calculation_started"
	MessageResultsUpdate        MessageType = "results_update"
	MessageCalculationCompleted MessageType = "calculation_completed"
	MessageSensitivityUpdate    MessageType = "sensitivity_update"
	MessageError                MessageType = "error"
	MessagePong                 MessageType = "pong"
)

// Client-initiated message types.
const (
	MessagePing      MessageType = "ping"
	MessageCalculate MessageType = "calculate"
)

// ChannelMessage is the envelope for every push-channel frame.
//
// Payload stays raw until a registered handler for Type decodes it; types
// without a registered handler are ignored so new server event types do not
// break old clients.
type ChannelMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChannelError is the payload of an error message.
type ChannelError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

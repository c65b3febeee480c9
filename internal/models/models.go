// Package models defines the core data structures for LeadPipe.
//
// It includes the conversation session, inbound and outbound message envelopes,
// lead records and the API response helpers shared across modules.
package models

import (
	"errors"
	"time"
)

// Channel is the tag attached to every record produced by the bot.
const Channel = "whatsapp"

// Error variables for better error handling and testability
var (
	ErrEmptyIdentity = errors.New("identity cannot be empty")
	ErrUnknownKind   = errors.New("unknown outbound message kind")
)

// OutboundKind identifies which delivery call an outbound message maps to.
type OutboundKind string

const (
	// OutboundText is a plain text message.
	OutboundText OutboundKind = "text"
	// OutboundDocument is a document sent by URL.
	OutboundDocument OutboundKind = "document"
	// OutboundLocation is a map pin.
	OutboundLocation OutboundKind = "location"
	// OutboundImage is an image sent by URL.
	OutboundImage OutboundKind = "image"
)

// Outbound is a single message the bot wants delivered to a user.
// Which fields are meaningful depends on Kind.
type Outbound struct {
	Kind     OutboundKind `json:"kind"`
	Body     string       `json:"body,omitempty"`
	URL      string       `json:"url,omitempty"`
	Caption  string       `json:"caption,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Lat      float64      `json:"lat,omitempty"`
	Lng      float64      `json:"lng,omitempty"`
	Name     string       `json:"name,omitempty"`
	Address  string       `json:"address,omitempty"`
}

// Text builds a text outbound message.
func Text(body string) Outbound {
	return Outbound{Kind: OutboundText, Body: body}
}

// Document builds a document outbound message.
func Document(url, caption, filename string) Outbound {
	return Outbound{Kind: OutboundDocument, URL: url, Caption: caption, Filename: filename}
}

// Location builds a location outbound message.
func Location(lat, lng float64, name, address string) Outbound {
	return Outbound{Kind: OutboundLocation, Lat: lat, Lng: lng, Name: name, Address: address}
}

// Image builds an image outbound message.
func Image(url, caption string) Outbound {
	return Outbound{Kind: OutboundImage, URL: url, Caption: caption}
}

// Inbound is a text message received from a user on some transport.
type Inbound struct {
	Vertical  string    `json:"vertical"`
	Identity  string    `json:"identity"`
	Text      string    `json:"text"`
	MessageID string    `json:"message_id,omitempty"`
	Received  time.Time `json:"received"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

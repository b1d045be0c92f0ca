/*
Package stompx carries STOMP 1.2 frames over WebSocket text messages.

Each WebSocket message holds exactly one STOMP frame (or a bare heart-beat newline).
Frame encoding and decoding are delegated to the go-stomp frame codec; this package adds
the room-scoped destinations used by the chat backend and constructors for the handful of
frames the client and the development backend exchange.
*/
package stompx

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
)

// Protocol version negotiated on CONNECT.
const Version = "1.2"

// Header names used by the chat channel.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrAuthorization = "Authorization"
	HdrDestination   = "destination"
	HdrContentType   = "content-type"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrMessage       = "message"
	HdrSession       = "session"
)

const (
	subscribePrefix = "/sub/chat/room/"
	publishPrefix   = "/pub/chat/room/"

	jsonContentType = "application/json"
)

// SubscribeDestination is the topic a member subscribes to for roomID.
func SubscribeDestination(roomID int64) string {
	return subscribePrefix + strconv.FormatInt(roomID, 10)
}

// PublishDestination is the address a member publishes to for roomID.
func PublishDestination(roomID int64) string {
	return publishPrefix + strconv.FormatInt(roomID, 10)
}

// ParseSubscribeDestination extracts the room id of a subscribe destination.
func ParseSubscribeDestination(dest string) (int64, bool) {
	return parseRoom(dest, subscribePrefix)
}

// ParsePublishDestination extracts the room id of a publish destination.
func ParsePublishDestination(dest string) (int64, bool) {
	return parseRoom(dest, publishPrefix)
}

func parseRoom(dest, prefix string) (int64, bool) {
	if !strings.HasPrefix(dest, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(dest[len(prefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Encode serializes f into one WebSocket payload. A nil frame encodes a heart-beat.
func Encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("stompx: encode %s: %w", commandOf(f), err)
	}
	return buf.Bytes(), nil
}

// Decode parses one WebSocket payload. It returns a nil frame for a heart-beat.
func Decode(data []byte) (*frame.Frame, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("stompx: decode: %w", err)
	}
	return f, nil
}

func commandOf(f *frame.Frame) string {
	if f == nil {
		return "heart-beat"
	}
	return f.Command
}

// FormatHeartBeat renders the heart-beat header value in milliseconds.
func FormatHeartBeat(send, receive int) string {
	return fmt.Sprintf("%d,%d", send, receive)
}

// Connect builds the CONNECT frame. An empty token omits the Authorization header.
func Connect(host, token, heartBeat string) *frame.Frame {
	f := frame.New(frame.CONNECT,
		HdrAcceptVersion, Version,
		HdrHost, host,
		HdrHeartBeat, heartBeat,
	)
	if token != "" {
		f.Header.Add(HdrAuthorization, "Bearer "+token)
	}
	return f
}

// Subscribe builds a SUBSCRIBE frame.
func Subscribe(id, destination string) *frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		HdrID, id,
		HdrDestination, destination,
	)
}

// Unsubscribe builds an UNSUBSCRIBE frame.
func Unsubscribe(id string) *frame.Frame {
	return frame.New(frame.UNSUBSCRIBE, HdrID, id)
}

// Send builds a SEND frame carrying a JSON body.
func Send(destination string, body []byte) *frame.Frame {
	f := frame.New(frame.SEND,
		HdrDestination, destination,
		HdrContentType, jsonContentType,
	)
	f.Body = body
	return f
}

// Disconnect builds a DISCONNECT frame requesting a receipt.
func Disconnect(receipt string) *frame.Frame {
	return frame.New(frame.DISCONNECT, HdrReceipt, receipt)
}

// Connected builds the broker's CONNECTED reply.
func Connected(session, heartBeat string) *frame.Frame {
	return frame.New(frame.CONNECTED,
		HdrVersion, Version,
		HdrSession, session,
		HdrHeartBeat, heartBeat,
	)
}

// Message builds a MESSAGE frame delivered to one subscription.
func Message(subscription, messageID, destination string, body []byte) *frame.Frame {
	f := frame.New(frame.MESSAGE,
		HdrSubscription, subscription,
		HdrMessageID, messageID,
		HdrDestination, destination,
		HdrContentType, jsonContentType,
	)
	f.Body = body
	return f
}

// Receipt builds a RECEIPT frame.
func Receipt(receiptID string) *frame.Frame {
	return frame.New(frame.RECEIPT, HdrReceiptID, receiptID)
}

// Error builds an ERROR frame with a short message header and a detail body.
func Error(message, detail string) *frame.Frame {
	f := frame.New(frame.ERROR, HdrMessage, message)
	f.Body = []byte(detail)
	return f
}

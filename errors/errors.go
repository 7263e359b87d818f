package errors

import "fmt"

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrMalformedMessage     = fmt.Errorf("malformed message")
	ErrDuplicateTopic       = fmt.Errorf("a session already exists for this topic")
	ErrProtectedSession     = fmt.Errorf("session is protected and cannot be deleted")
	ErrSessionNotFound      = fmt.Errorf("session not found")
	ErrTransportUnavailable = fmt.Errorf("transport unavailable")
	ErrTransportTimeout     = fmt.Errorf("transport timeout")
	ErrRevokeTargetMissing  = fmt.Errorf("revoke target not found")
	ErrEmptyContent         = fmt.Errorf("message content is empty")
	ErrEmptyNickname        = fmt.Errorf("nickname is empty")
	ErrNotMessageOwner      = fmt.Errorf("only the sender can revoke a message")
	ErrQueueFull            = fmt.Errorf("outbound queue is full")
	ErrInvalidTopic         = fmt.Errorf("invalid topic")
	ErrInvalidPeer          = fmt.Errorf("invalid peer id")
	ErrEmptySessionName     = fmt.Errorf("session name is empty")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrEmptyWords           = fmt.Errorf("no censored words loaded")
	ErrEchoUnavailable      = fmt.Errorf("echo bus is not connected")
	ErrMessageTooLarge      = fmt.Errorf("message exceeds the transport size limit")
)

package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid connector credentials")
	ErrUnknownTicket      = errors.New("unknown session ticket")
	ErrSessionExpired     = errors.New("session ticket expired")
)

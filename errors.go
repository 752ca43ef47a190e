/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Errors returned by the registry and resolver. The text of each is shown
// to players as-is.
var (
	ErrRoomNotFound         = errors.New("Room does not exist.")
	ErrRoomFull             = errors.New("This room is already full.")
	ErrDuplicateRoom        = errors.New("Room already exists. Choose a different name.")
	ErrCapacityExceeded     = errors.New("Maximum number of rooms reached.")
	ErrInvalidChoice        = errors.New("Invalid choice. Pick either silent or tattle.")
	ErrRoundAlreadyResolved = errors.New("This round has already been resolved.")
	ErrNotInRoom            = errors.New("You are not in this room.")
	ErrAlreadyInRoom        = errors.New("You are already in this room.")
	ErrMissingRoomID        = errors.New("A room name is required.")
	ErrMalformedMessage     = errors.New("Could not understand that message.")
	ErrUnknownEvent         = errors.New("Unknown event type.")
	ErrTooManyMessages      = errors.New("Slow down! Too many messages.")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(prefix, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(prefix))
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"%s/\">%s</a></body></html>", prefix, body))

	return htmlBody.String()
}

package httpapi

import (
	"errors"

	"github.com/opskernel/pluginhost/internal/kernel/netguard"
)

var (
	errInvalidRequest  = errors.New("invalid request body")
	errTooManyAttempts = errors.New("too many token requests, slow down")
)

func netguardRequest(req netRequestRequest) netguard.Request {
	return netguard.Request{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Headers,
		Body:    req.Body,
	}
}

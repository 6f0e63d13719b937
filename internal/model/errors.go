package model

import "errors"

// Core failure taxonomy. Callers branch with errors.Is; everything else is
// wrapped context around one of these.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("session already active")
	ErrDispatch   = errors.New("command dispatch failed")
	ErrParse      = errors.New("malformed payload")
)

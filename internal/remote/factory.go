package remote

import (
	"fmt"
	"log"
	"time"
)

// Kind selects a Store implementation.
type Kind string

const (
	KindDrive  Kind = "drive"
	KindDir    Kind = "dir"
	KindMemory Kind = "memory"
)

// Kinds lists the supported store kinds.
var Kinds = []Kind{KindDrive, KindDir, KindMemory}

// IsValid reports whether k names a known implementation.
func (k Kind) IsValid() bool {
	switch k {
	case KindDrive, KindDir, KindMemory:
		return true
	}
	return false
}

// Options configures New.
type Options struct {
	Kind    Kind
	BaseURL string        // drive
	Token   TokenSource   // drive
	Timeout time.Duration // drive
	Dir     string        // dir
	Logger  *log.Logger
}

// New creates the Store selected by opts.Kind.
func New(opts Options) (Store, error) {
	switch opts.Kind {
	case KindDrive:
		return NewDriveStore(DriveConfig{
			BaseURL: opts.BaseURL,
			Token:   opts.Token,
			Timeout: opts.Timeout,
			Logger:  opts.Logger,
		}), nil
	case KindDir:
		if opts.Dir == "" {
			return nil, fmt.Errorf("remote kind %q requires a directory", opts.Kind)
		}
		return NewDirStore(opts.Dir)
	case KindMemory:
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q (available: %v)", opts.Kind, Kinds)
	}
}

// NeedsToken reports whether stores of this kind authenticate each call.
// Local kinds work without a credential.
func (k Kind) NeedsToken() bool {
	return k == KindDrive
}

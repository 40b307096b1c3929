package ens

import "errors"

// ErrNotNodeOwner is returned when the acting identity does not own the node
// it tries to mutate. The registrar translates it into its canonical
// "the contract does not own the domain" failure.
var ErrNotNodeOwner = errors.New("caller does not own the node")
